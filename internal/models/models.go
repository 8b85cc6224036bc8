// Package models defines the core data structures for asesorbot.
//
// It includes types for inbound messages, listings, classification results,
// and delivery receipts, which are shared across modules.
package models

import (
	"context"
	"errors"
	"strings"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser marks a turn written by the customer.
	RoleUser Role = "user"
	// RoleAssistant marks a turn written by the advisor bot.
	RoleAssistant Role = "assistant"
)

// Turn is one message (user or assistant) in a conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ListingType categorizes a property listing.
type ListingType string

const (
	ListingTypeHouse     ListingType = "house"
	ListingTypeApartment ListingType = "apartment"
	ListingTypeLand      ListingType = "land"
	ListingTypeRanch     ListingType = "ranch"
	ListingTypeOther     ListingType = "other"
)

// Listing is one active property in the inventory snapshot. The core never
// mutates listings; it only filters and renders a snapshot fetched per turn.
type Listing struct {
	ID          int64       `json:"id"`
	Title       string      `json:"title"`
	Location    string      `json:"location"`
	Price       int64       `json:"price"` // currency-agnostic integer units
	Type        ListingType `json:"type"`
	Description string      `json:"description,omitempty"`
}

// MediaFetcher lazily downloads the media attached to an inbound message.
// It returns the raw bytes and the MIME type.
type MediaFetcher func(ctx context.Context) ([]byte, string, error)

// Message represents an inbound message event from the messaging connector.
type Message struct {
	From      string `json:"from"`
	PushName  string `json:"push_name,omitempty"`
	Body      string `json:"body"`
	HasMedia  bool   `json:"has_media,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	Time      int64  `json:"time"`

	// Download fetches the attached media on demand. Nil when HasMedia is false.
	Download MediaFetcher `json:"-"`
}

// IsImage reports whether the attached media is an image.
func (m *Message) IsImage() bool {
	return m.HasMedia && strings.HasPrefix(m.MediaType, "image/")
}

// Classification is the structured decision record produced for each inbound
// message. Multiple routing flags may be true simultaneously; the
// orchestrator's fixed branch priority resolves ambiguity.
type Classification struct {
	Language            string    `json:"language"`
	IsDomainQuery       bool      `json:"is_domain_query"`
	NeedsHuman          bool      `json:"needs_human"`
	IsAboutCapabilities bool      `json:"is_about_capabilities"`
	IsImageRequest      bool      `json:"is_image_request"`
	IsInventoryQuery    bool      `json:"is_inventory_query"`
	MatchedListings     []Listing `json:"matched_listings,omitempty"`
}

// DefaultLanguage is the language assumed when detection fails or is absent.
const DefaultLanguage = "es"

// SafeDefaultClassification returns the degraded-mode classification used when
// the delegated classifier fails: a general domain query in the default
// language with the delegated flags at their zero values, preserving whatever
// the local matcher already found. The caller restores the locally computed
// inventory-mention flag alongside the matched listings.
func SafeDefaultClassification(matched []Listing) Classification {
	return Classification{
		Language:        DefaultLanguage,
		IsDomainQuery:   true,
		MatchedListings: matched,
	}
}

// MessageStatus represents the delivery status of an outbound message.
type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
)

// Receipt records the delivery status of an outbound message.
type Receipt struct {
	To     string        `json:"to"`
	Status MessageStatus `json:"status"`
	Time   int64         `json:"time"`
}

// Error variables shared across modules for better error handling and testability.
var (
	ErrEmptyRecipient  = errors.New("recipient cannot be empty")
	ErrEmptyBody       = errors.New("message body cannot be empty")
	ErrInvalidIntent   = errors.New("invalid blacklist intent")
	ErrMissingQuestion = errors.New("question is required")
)

// SendMessageRequest is the payload for POST /v1/messages.
type SendMessageRequest struct {
	Number  string `json:"number"`
	Message string `json:"message"`
}

// Validate checks a SendMessageRequest for required fields.
func (r *SendMessageRequest) Validate() error {
	if strings.TrimSpace(r.Number) == "" {
		return ErrEmptyRecipient
	}
	if strings.TrimSpace(r.Message) == "" {
		return ErrEmptyBody
	}
	return nil
}

// RegisterRequest is the payload for POST /v1/register.
type RegisterRequest struct {
	Number string `json:"number"`
	Name   string `json:"name,omitempty"`
}

// Validate checks a RegisterRequest for required fields.
func (r *RegisterRequest) Validate() error {
	if strings.TrimSpace(r.Number) == "" {
		return ErrEmptyRecipient
	}
	return nil
}

// InquiryRequest is the payload for POST /v1/real-estate.
type InquiryRequest struct {
	Number   string `json:"number"`
	Question string `json:"question"`
}

// Validate checks an InquiryRequest for required fields.
func (r *InquiryRequest) Validate() error {
	if strings.TrimSpace(r.Number) == "" {
		return ErrEmptyRecipient
	}
	if strings.TrimSpace(r.Question) == "" {
		return ErrMissingQuestion
	}
	return nil
}

// BlacklistIntent selects the operation for POST /v1/blacklist.
type BlacklistIntent string

const (
	BlacklistIntentAdd    BlacklistIntent = "add"
	BlacklistIntentRemove BlacklistIntent = "remove"
	BlacklistIntentCheck  BlacklistIntent = "check"
)

// BlacklistRequest is the payload for POST /v1/blacklist.
type BlacklistRequest struct {
	Number string          `json:"number"`
	Intent BlacklistIntent `json:"intent"`
}

// Validate checks a BlacklistRequest for required fields.
func (r *BlacklistRequest) Validate() error {
	if strings.TrimSpace(r.Number) == "" {
		return ErrEmptyRecipient
	}
	switch r.Intent {
	case BlacklistIntentAdd, BlacklistIntentRemove, BlacklistIntentCheck:
		return nil
	default:
		return ErrInvalidIntent
	}
}

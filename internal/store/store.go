// Package store provides storage backends for asesorbot.
//
// It persists the property inventory, per-advisor prompt instructions, and
// the blocked-contact list. An in-memory implementation backs tests and
// store-less deployments; SQLite and PostgreSQL implementations provide
// durability. Conversation history is deliberately not persisted here: it is
// an in-memory, process-lifetime concern of the conversation package.
package store

import (
	"context"
	"strings"

	"github.com/inmolabs/asesorbot/internal/models"
)

// Store defines the persistence operations consumed by the conversation core
// and the HTTP control surface. Read operations may fail; callers degrade to
// empty snapshots rather than failing the turn.
type Store interface {
	// ActiveListings returns the current active property inventory.
	ActiveListings(ctx context.Context) ([]models.Listing, error)

	// AdvisorInstructions returns free-text rules merged into the system
	// prompt on every turn.
	AdvisorInstructions(ctx context.Context) ([]string, error)

	// BlacklistedContacts returns the numbers in the store-backed blocklist.
	BlacklistedContacts(ctx context.Context) ([]string, error)

	// AddBlacklistedContact adds a number to the blocklist. Adding an existing
	// number is a no-op.
	AddBlacklistedContact(ctx context.Context, number string) error

	// RemoveBlacklistedContact removes a number from the blocklist. Removing
	// an unknown number is a no-op.
	RemoveBlacklistedContact(ctx context.Context, number string) error

	// IsBlacklisted reports whether a number is in the store-backed blocklist.
	IsBlacklisted(ctx context.Context, number string) (bool, error)

	// Close releases any underlying resources.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// NewFromDSN creates a store matching the DSN type. An empty DSN yields the
// in-memory store with the seed inventory.
func NewFromDSN(dsn string) (Store, error) {
	if dsn == "" {
		return NewInMemoryStore(), nil
	}
	if DetectDSNType(dsn) == "postgres" {
		return NewPostgresStore(WithDSN(dsn))
	}
	return NewSQLiteStore(WithDSN(dsn))
}

// DetectDSNType classifies a connection string as "postgres" or "sqlite".
// PostgreSQL DSNs use URL schemes or key=value pairs; everything else is
// treated as a SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite"
}

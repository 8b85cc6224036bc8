package store

import (
	"context"
	"sync"

	"github.com/inmolabs/asesorbot/internal/models"
)

// seedListings is the default inventory used when no database is configured.
// It mirrors the agency's starter portfolio so the bot is demonstrable out of
// the box.
var seedListings = []models.Listing{
	{ID: 1, Title: "CASA EN VENTA VILLAS DE ANAHUAC", Location: "Escobedo", Price: 4750000, Type: models.ListingTypeHouse, Description: "Casa en venta ubicada en Villas de Anahuac, Escobedo."},
	{ID: 2, Title: "Casa Bosques de las Misiones", Location: "Bosques de las Misiones", Price: 12500000, Type: models.ListingTypeHouse, Description: "Casa en venta en Bosques de las Misiones."},
	{ID: 3, Title: "Terrenos Bosques de las Misiones", Location: "Bosques de las Misiones", Price: 4200000, Type: models.ListingTypeLand, Description: "Terreno en venta en Bosques de las Misiones."},
	{ID: 4, Title: "Departamentos Vivía Roma TEC", Location: "Zona TEC", Price: 4000000, Type: models.ListingTypeApartment, Description: "Departamento en venta cerca del TEC."},
	{ID: 5, Title: "Quinta en venta Zuazua", Location: "Zuazua", Price: 3700000, Type: models.ListingTypeRanch, Description: "Quinta en venta ubicada en Zuazua."},
	{ID: 6, Title: "Departamento en venta Zona Universidad", Location: "Zona Universidad", Price: 1800000, Type: models.ListingTypeApartment, Description: "Departamento en venta en Zona Universidad."},
	{ID: 7, Title: "Departamento en venta Zona Anahuac", Location: "Zona Anahuac", Price: 4400000, Type: models.ListingTypeApartment, Description: "Departamento en venta en Zona Anahuac."},
}

// InMemoryStore is a thread-safe in-memory Store used for tests and
// store-less operation.
type InMemoryStore struct {
	mu           sync.RWMutex
	listings     []models.Listing
	instructions []string
	blacklist    map[string]bool
}

// NewInMemoryStore creates an in-memory store preloaded with the seed inventory.
func NewInMemoryStore() *InMemoryStore {
	listings := make([]models.Listing, len(seedListings))
	copy(listings, seedListings)
	return &InMemoryStore{
		listings:  listings,
		blacklist: make(map[string]bool),
	}
}

// NewEmptyInMemoryStore creates an in-memory store with no listings (for tests).
func NewEmptyInMemoryStore() *InMemoryStore {
	return &InMemoryStore{blacklist: make(map[string]bool)}
}

// SetListings replaces the inventory snapshot (for tests and seeding).
func (s *InMemoryStore) SetListings(listings []models.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings = make([]models.Listing, len(listings))
	copy(s.listings, listings)
}

// SetInstructions replaces the advisor instruction set (for tests and seeding).
func (s *InMemoryStore) SetInstructions(instructions []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instructions = make([]string, len(instructions))
	copy(s.instructions, instructions)
}

// ActiveListings returns a copy of the current inventory.
func (s *InMemoryStore) ActiveListings(ctx context.Context) ([]models.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Listing, len(s.listings))
	copy(out, s.listings)
	return out, nil
}

// AdvisorInstructions returns a copy of the advisor instruction set.
func (s *InMemoryStore) AdvisorInstructions(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.instructions))
	copy(out, s.instructions)
	return out, nil
}

// BlacklistedContacts returns the numbers in the blocklist.
func (s *InMemoryStore) BlacklistedContacts(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.blacklist))
	for number := range s.blacklist {
		out = append(out, number)
	}
	return out, nil
}

// AddBlacklistedContact adds a number to the blocklist.
func (s *InMemoryStore) AddBlacklistedContact(ctx context.Context, number string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blacklist[number] = true
	return nil
}

// RemoveBlacklistedContact removes a number from the blocklist.
func (s *InMemoryStore) RemoveBlacklistedContact(ctx context.Context, number string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blacklist, number)
	return nil
}

// IsBlacklisted reports whether a number is in the blocklist.
func (s *InMemoryStore) IsBlacklisted(ctx context.Context, number string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blacklist[number], nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}

// Package store provides storage backends for asesorbot.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "embed"

	"github.com/inmolabs/asesorbot/internal/models"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore implements Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run PostgreSQL migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgreSQL migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// ActiveListings returns all listings marked active.
func (s *PostgresStore) ActiveListings(ctx context.Context) ([]models.Listing, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, location, price, type, COALESCE(description, '') FROM listings WHERE active = TRUE ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore ActiveListings query failed", "error", err)
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		var l models.Listing
		if err := rows.Scan(&l.ID, &l.Title, &l.Location, &l.Price, &l.Type, &l.Description); err != nil {
			slog.Error("PostgresStore ActiveListings scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan listing row: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate listing rows: %w", err)
	}
	slog.Debug("PostgresStore ActiveListings succeeded", "count", len(listings))
	return listings, nil
}

// AdvisorInstructions returns all active advisor instructions.
func (s *PostgresStore) AdvisorInstructions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT instruction FROM advisor_instructions WHERE active = TRUE ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore AdvisorInstructions query failed", "error", err)
		return nil, fmt.Errorf("failed to query advisor instructions: %w", err)
	}
	defer rows.Close()

	var instructions []string
	for rows.Next() {
		var instruction string
		if err := rows.Scan(&instruction); err != nil {
			return nil, fmt.Errorf("failed to scan instruction row: %w", err)
		}
		instructions = append(instructions, instruction)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate instruction rows: %w", err)
	}
	return instructions, nil
}

// BlacklistedContacts returns all blocked numbers.
func (s *PostgresStore) BlacklistedContacts(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT number FROM blacklisted_contacts`)
	if err != nil {
		slog.Error("PostgresStore BlacklistedContacts query failed", "error", err)
		return nil, fmt.Errorf("failed to query blacklisted contacts: %w", err)
	}
	defer rows.Close()

	var numbers []string
	for rows.Next() {
		var number string
		if err := rows.Scan(&number); err != nil {
			return nil, fmt.Errorf("failed to scan blacklist row: %w", err)
		}
		numbers = append(numbers, number)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate blacklist rows: %w", err)
	}
	return numbers, nil
}

// AddBlacklistedContact adds a number to the blocklist.
func (s *PostgresStore) AddBlacklistedContact(ctx context.Context, number string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO blacklisted_contacts (number) VALUES ($1) ON CONFLICT (number) DO NOTHING`, number)
	if err != nil {
		slog.Error("PostgresStore AddBlacklistedContact failed", "error", err, "number", number)
		return fmt.Errorf("failed to insert blacklisted contact %s: %w", number, err)
	}
	slog.Debug("PostgresStore AddBlacklistedContact succeeded", "number", number)
	return nil
}

// RemoveBlacklistedContact removes a number from the blocklist.
func (s *PostgresStore) RemoveBlacklistedContact(ctx context.Context, number string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM blacklisted_contacts WHERE number = $1`, number)
	if err != nil {
		slog.Error("PostgresStore RemoveBlacklistedContact failed", "error", err, "number", number)
		return fmt.Errorf("failed to delete blacklisted contact %s: %w", number, err)
	}
	slog.Debug("PostgresStore RemoveBlacklistedContact succeeded", "number", number)
	return nil
}

// IsBlacklisted reports whether a number is in the blocklist.
func (s *PostgresStore) IsBlacklisted(ctx context.Context, number string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM blacklisted_contacts WHERE number = $1`, number).Scan(&count)
	if err != nil {
		slog.Error("PostgresStore IsBlacklisted query failed", "error", err, "number", number)
		return false, fmt.Errorf("failed to check blacklist for %s: %w", number, err)
	}
	return count > 0, nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close PostgreSQL database", "error", err)
	}
	return err
}

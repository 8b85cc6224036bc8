// Package store provides storage backends for asesorbot.
//
// This file implements the SQLite-backed store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/inmolabs/asesorbot/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore implements Store backed by a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN. The DSN is a
// file path to the SQLite database; the containing directory is created when
// missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// ActiveListings returns all listings marked active.
func (s *SQLiteStore) ActiveListings(ctx context.Context) ([]models.Listing, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, location, price, type, COALESCE(description, '') FROM listings WHERE active = 1 ORDER BY id`)
	if err != nil {
		slog.Error("SQLiteStore ActiveListings query failed", "error", err)
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		var l models.Listing
		if err := rows.Scan(&l.ID, &l.Title, &l.Location, &l.Price, &l.Type, &l.Description); err != nil {
			slog.Error("SQLiteStore ActiveListings scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan listing row: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ActiveListings rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate listing rows: %w", err)
	}
	slog.Debug("SQLiteStore ActiveListings succeeded", "count", len(listings))
	return listings, nil
}

// AdvisorInstructions returns all active advisor instructions.
func (s *SQLiteStore) AdvisorInstructions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT instruction FROM advisor_instructions WHERE active = 1 ORDER BY id`)
	if err != nil {
		slog.Error("SQLiteStore AdvisorInstructions query failed", "error", err)
		return nil, fmt.Errorf("failed to query advisor instructions: %w", err)
	}
	defer rows.Close()

	var instructions []string
	for rows.Next() {
		var instruction string
		if err := rows.Scan(&instruction); err != nil {
			slog.Error("SQLiteStore AdvisorInstructions scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan instruction row: %w", err)
		}
		instructions = append(instructions, instruction)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate instruction rows: %w", err)
	}
	slog.Debug("SQLiteStore AdvisorInstructions succeeded", "count", len(instructions))
	return instructions, nil
}

// BlacklistedContacts returns all blocked numbers.
func (s *SQLiteStore) BlacklistedContacts(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT number FROM blacklisted_contacts`)
	if err != nil {
		slog.Error("SQLiteStore BlacklistedContacts query failed", "error", err)
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
func (s *SQLiteStore) AddBlacklistedContact(ctx context.Context, number string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO blacklisted_contacts (number) VALUES (?)`, number)
	if err != nil {
		slog.Error("SQLiteStore AddBlacklistedContact failed", "error", err, "number", number)
		return fmt.Errorf("failed to insert blacklisted contact %s: %w", number, err)
	}
	slog.Debug("SQLiteStore AddBlacklistedContact succeeded", "number", number)
	return nil
}

// RemoveBlacklistedContact removes a number from the blocklist.
func (s *SQLiteStore) RemoveBlacklistedContact(ctx context.Context, number string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM blacklisted_contacts WHERE number = ?`, number)
	if err != nil {
		slog.Error("SQLiteStore RemoveBlacklistedContact failed", "error", err, "number", number)
		return fmt.Errorf("failed to delete blacklisted contact %s: %w", number, err)
	}
	slog.Debug("SQLiteStore RemoveBlacklistedContact succeeded", "number", number)
	return nil
}

// IsBlacklisted reports whether a number is in the blocklist.
func (s *SQLiteStore) IsBlacklisted(ctx context.Context, number string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM blacklisted_contacts WHERE number = ?`, number).Scan(&count)
	if err != nil {
		slog.Error("SQLiteStore IsBlacklisted query failed", "error", err, "number", number)
		return false, fmt.Errorf("failed to check blacklist for %s: %w", number, err)
	}
	return count > 0, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}

// Package contacts caches the server's contact list in a local SQLite
// database so recipient autocomplete works instantly and offline.
package contacts

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/dtran/mailflow/internal/model"
)

// Store is the SQLite-backed contact cache.
type Store struct {
	db *sqlx.DB
}

// NewStore opens (or creates) the contact database at dbPath, enables WAL
// mode, and runs any pending schema migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *Store) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// ReplaceAll swaps the cached contact list for the server's. Contacts
// without an id get one assigned.
func (s *Store) ReplaceAll(ctx context.Context, list []model.Contact) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM contacts"); err != nil {
		return fmt.Errorf("clearing contacts: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO contacts (id, email, name, send_count)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range list {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.Email, c.Name, c.SendCount); err != nil {
			return fmt.Errorf("inserting contact %s: %w", c.Email, err)
		}
	}

	return tx.Commit()
}

// Search returns contacts whose email or name starts with prefix, most
// frequently used first.
func (s *Store) Search(ctx context.Context, prefix string) ([]model.Contact, error) {
	q := prefix + "%"
	var out []model.Contact
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, email, name, send_count FROM contacts
		WHERE email LIKE ? OR name LIKE ?
		ORDER BY send_count DESC, email ASC
		LIMIT 10`, q, q)
	if err != nil {
		return nil, fmt.Errorf("searching contacts: %w", err)
	}
	return out, nil
}

// All returns every cached contact ordered by usage.
func (s *Store) All(ctx context.Context) ([]model.Contact, error) {
	var out []model.Contact
	err := s.db.SelectContext(ctx,
		&out, "SELECT id, email, name, send_count FROM contacts ORDER BY send_count DESC, email ASC")
	if err != nil {
		return nil, fmt.Errorf("querying contacts: %w", err)
	}
	return out, nil
}

// Bump increments the send counter for a contact email, inserting it if it
// is not cached yet.
func (s *Store) Bump(ctx context.Context, email string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE contacts SET send_count = send_count + 1 WHERE email = ?", email)
	if err != nil {
		return fmt.Errorf("bumping contact %s: %w", email, err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO contacts (id, email, name, send_count)
		VALUES (?, ?, '', 1)`, uuid.New().String(), email)
	if err != nil {
		return fmt.Errorf("inserting contact %s: %w", email, err)
	}
	return nil
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package templates

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/rigrun-answer/internal/model"
)

// =============================================================================
// SCHEMA
// =============================================================================

// Schema creates the template table.
const Schema = `
CREATE TABLE IF NOT EXISTS query_templates (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    input TEXT NOT NULL,
    query TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL -- Unix timestamp
);

CREATE INDEX IF NOT EXISTS idx_query_templates_created ON query_templates(created_at);
`

// =============================================================================
// STORE
// =============================================================================

// Record is a stored template with its id.
type Record struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	model.QueryTemplate
}

// Store keeps templates in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

var _ Provider = (*Store)(nil)

// OpenStore opens or creates the database at path. ":memory:" opens a
// private in-memory database.
func OpenStore(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add inserts a template and returns its id.
func (s *Store) Add(ctx context.Context, t model.QueryTemplate) (int64, error) {
	t = clean(t)
	if !valid(t) {
		return 0, errors.New("template needs an input and a query")
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO query_templates (input, query, description, created_at) VALUES (?, ?, ?, ?)",
		t.Input, t.Query, t.Description, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to insert template: %w", err)
	}
	return res.LastInsertId()
}

// Get returns the template with id.
func (s *Store) Get(ctx context.Context, id int64) (Record, error) {
	var r Record
	var created int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id, input, query, description, created_at FROM query_templates WHERE id = ?", id).
		Scan(&r.ID, &r.Input, &r.Query, &r.Description, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to get template: %w", err)
	}
	r.CreatedAt = time.Unix(created, 0)
	return r, nil
}

// Delete removes the template with id.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM query_templates WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

// List returns every stored template in insertion order.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, input, query, description, created_at FROM query_templates ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var created int64
		if err := rows.Scan(&r.ID, &r.Input, &r.Query, &r.Description, &created); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		r.CreatedAt = time.Unix(created, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Templates returns every stored template in insertion order.
func (s *Store) Templates(ctx context.Context) ([]model.QueryTemplate, error) {
	records, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.QueryTemplate, len(records))
	for i, r := range records {
		out[i] = r.QueryTemplate
	}
	return out, nil
}

// Count returns the number of stored templates.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM query_templates").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count templates: %w", err)
	}
	return n, nil
}

// Replace swaps the stored set for list in one transaction. Templates
// without an input or query are skipped. It returns how many were stored.
func (s *Store) Replace(ctx context.Context, list []model.QueryTemplate) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM query_templates"); err != nil {
		return 0, fmt.Errorf("failed to clear templates: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO query_templates (input, query, description, created_at) VALUES (?, ?, ?, ?)")
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	n := 0
	for _, t := range list {
		t = clean(t)
		if !valid(t) {
			continue
		}
		if _, err := stmt.ExecContext(ctx, t.Input, t.Query, t.Description, now); err != nil {
			return 0, fmt.Errorf("failed to insert template: %w", err)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit templates: %w", err)
	}
	return n, nil
}

package state

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteAdapter is the default local StateAdapter: a single-writer
// SQLite table keyed by component id, on the pure-Go modernc.org/sqlite
// driver so no C toolchain is needed to build.
type SQLiteAdapter struct {
	db *sql.DB
}

// NewSQLiteAdapter opens (creating if necessary) a SQLite database at
// path and ensures the state table exists.
func NewSQLiteAdapter(path string) (*SQLiteAdapter, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite state db: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS component_state (
		component_id TEXT PRIMARY KEY,
		blob BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create component_state table: %w", err)
	}

	return &SQLiteAdapter{db: db}, nil
}

func (a *SQLiteAdapter) Save(ctx context.Context, componentID string, blob []byte) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO component_state (component_id, blob) VALUES (?, ?)
		 ON CONFLICT(component_id) DO UPDATE SET blob = excluded.blob`,
		componentID, blob)
	if err != nil {
		return fmt.Errorf("sqlite state save %q: %w", componentID, err)
	}
	return nil
}

func (a *SQLiteAdapter) Load(ctx context.Context, componentID string) ([]byte, bool, error) {
	var blob []byte
	err := a.db.QueryRowContext(ctx,
		`SELECT blob FROM component_state WHERE component_id = ?`, componentID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite state load %q: %w", componentID, err)
	}
	return blob, true, nil
}

func (a *SQLiteAdapter) Delete(ctx context.Context, componentID string) error {
	_, err := a.db.ExecContext(ctx, `DELETE FROM component_state WHERE component_id = ?`, componentID)
	if err != nil {
		return fmt.Errorf("sqlite state delete %q: %w", componentID, err)
	}
	return nil
}

func (a *SQLiteAdapter) Close() error { return a.db.Close() }

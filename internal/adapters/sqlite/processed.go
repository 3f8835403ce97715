package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"reelrelay/internal/core/domain"
	"reelrelay/internal/core/ports"
)

const schema = `CREATE TABLE IF NOT EXISTS processed (
	niche     TEXT NOT NULL,
	post_id   TEXT NOT NULL,
	marked_at DATETIME NOT NULL,
	PRIMARY KEY (niche, post_id)
)`

// DB keeps the processed ids of every niche in one SQLite file.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database at path. Pass ":memory:" for an
// in-memory database (used by tests).
func Open(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode=WAL", "PRAGMA synchronous=FULL"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Niche returns the processed store of one niche.
func (d *DB) Niche(name string) *NicheStore {
	return &NicheStore{db: d.db, niche: name}
}

// Opener adapts DB to the runner's per-niche opener signature.
func (d *DB) Opener() func(domain.NicheConfig) (ports.ProcessedStore, error) {
	return func(n domain.NicheConfig) (ports.ProcessedStore, error) {
		return d.Niche(n.Name), nil
	}
}

// NicheStore implements ports.ProcessedStore for one niche.
type NicheStore struct {
	db    *sql.DB
	niche string
}

// Load returns every id marked for the niche.
func (s *NicheStore) Load(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT post_id FROM processed WHERE niche = ?`, s.niche)
	if err != nil {
		return nil, fmt.Errorf("querying processed ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning processed id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// Mark records id. Marking an id twice is a no-op.
func (s *NicheStore) Mark(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO processed (niche, post_id, marked_at) VALUES (?, ?, ?)`,
		s.niche, id, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("marking %s processed: %w", id, err)
	}
	return nil
}

package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/lattice-mc/lattice-mc/sim"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}
	// One writer at a time; concurrent chains would otherwise hit SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) Exists(ctx context.Context, key string) (bool, error) {
	db, err := s.getDB()
	if err != nil {
		return false, err
	}

	var one int
	err = db.QueryRowContext(ctx, `SELECT 1 FROM configs WHERE key = ?`, key).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Insert adds rec unless its key is already stored.
func (s *SQLiteStore) Insert(ctx context.Context, rec sim.CatalogRecord) (bool, error) {
	db, err := s.getDB()
	if err != nil {
		return false, err
	}

	payload, err := EncodeRecord(rec)
	if err != nil {
		return false, err
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO configs (key, id, policy, score, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO NOTHING
	`, rec.Key, rec.ID, rec.Policy, rec.Score, payload)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (sim.CatalogRecord, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return sim.CatalogRecord{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM configs WHERE key = ?`, key).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sim.CatalogRecord{}, false, nil
		}
		return sim.CatalogRecord{}, false, err
	}

	rec, err := DecodeRecord(payload)
	if err != nil {
		return sim.CatalogRecord{}, false, fmt.Errorf("decode config %s: %w", key, err)
	}
	return rec, true, nil
}

func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT key FROM configs ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errNotInitialized
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS configs (
			key TEXT PRIMARY KEY,
			id TEXT NOT NULL,
			policy TEXT NOT NULL,
			score REAL NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	return err
}

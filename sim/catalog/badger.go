package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/lattice-mc/lattice-mc/sim"
)

const keyPrefix = "config/"

// BadgerStore keeps records in a BadgerDB directory. An empty path opens an
// in-memory database.
type BadgerStore struct {
	path string

	mu sync.RWMutex
	db *badger.DB
}

func NewBadgerStore(path string) *BadgerStore {
	return &BadgerStore{path: path}
}

// badgerLogger routes BadgerDB's logging through logrus, demoting its
// informational messages to debug.
type badgerLogger struct {
	entry *logrus.Entry
}

func (l badgerLogger) Errorf(format string, args ...interface{})   { l.entry.Errorf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...interface{}) { l.entry.Warnf(format, args...) }
func (l badgerLogger) Infof(format string, args ...interface{})    { l.entry.Debugf(format, args...) }
func (l badgerLogger) Debugf(format string, args ...interface{})   { l.entry.Debugf(format, args...) }

func (s *BadgerStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	var opts badger.Options
	if s.path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(s.path, 0o750); err != nil {
			return fmt.Errorf("create catalog directory %s: %w", s.path, err)
		}
		opts = badger.DefaultOptions(s.path).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1).
		WithLogger(badgerLogger{entry: logrus.WithField("component", "badger")})

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("open badger catalog: %w", err)
	}
	s.db = db
	return nil
}

func (s *BadgerStore) Exists(ctx context.Context, key string) (bool, error) {
	db, err := s.getDB(ctx)
	if err != nil {
		return false, err
	}
	var found bool
	err = db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(keyPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

// Insert adds rec unless its key is already stored. Concurrent inserts of
// the same key conflict in badger; the loser retries and sees the winner.
func (s *BadgerStore) Insert(ctx context.Context, rec sim.CatalogRecord) (bool, error) {
	db, err := s.getDB(ctx)
	if err != nil {
		return false, err
	}
	payload, err := EncodeRecord(rec)
	if err != nil {
		return false, err
	}
	for {
		isNew := false
		err = db.Update(func(txn *badger.Txn) error {
			_, err := txn.Get([]byte(keyPrefix + rec.Key))
			if err == nil {
				return nil
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			isNew = true
			return txn.Set([]byte(keyPrefix+rec.Key), payload)
		})
		if errors.Is(err, badger.ErrConflict) {
			if err := ctx.Err(); err != nil {
				return false, err
			}
			continue
		}
		if err != nil {
			return false, err
		}
		return isNew, nil
	}
}

func (s *BadgerStore) Get(ctx context.Context, key string) (sim.CatalogRecord, bool, error) {
	db, err := s.getDB(ctx)
	if err != nil {
		return sim.CatalogRecord{}, false, err
	}
	var payload []byte
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return sim.CatalogRecord{}, false, nil
	}
	if err != nil {
		return sim.CatalogRecord{}, false, err
	}
	rec, err := DecodeRecord(payload)
	if err != nil {
		return sim.CatalogRecord{}, false, fmt.Errorf("decode config %s: %w", key, err)
	}
	return rec, true, nil
}

// Keys returns every stored key in byte order.
func (s *BadgerStore) Keys(ctx context.Context) ([]string, error) {
	db, err := s.getDB(ctx)
	if err != nil {
		return nil, err
	}
	var keys []string
	err = db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().Key()[len(keyPrefix):]))
		}
		return nil
	})
	return keys, err
}

func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *BadgerStore) getDB(ctx context.Context) (*badger.DB, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errNotInitialized
	}
	return s.db, nil
}

package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-mc/lattice-mc/sim"
)

func testRecord(key string, score float64) sim.CatalogRecord {
	return sim.CatalogRecord{
		ID:           "id-" + key,
		Key:          key,
		Policy:       "canonical",
		Occupation:   []int{0, 1, 1, 0},
		Score:        score,
		Metric:       "-potential_energy",
		Temperature:  300,
		ParamChemPot: []float64{-0.1},
		Properties: sim.PropertySnapshot{
			FormationEnergy: -0.25,
			Corr:            []float64{1, 0.5},
			CompN:           []float64{0.5, 0.5},
			Comp:            []float64{0.5},
		},
		SavedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": NewSQLiteStore(filepath.Join(dir, "catalog.db")),
		"badger": NewBadgerStore(""),
	}
	for name, s := range stores {
		require.NoError(t, s.Init(context.Background()), name)
		t.Cleanup(func() { _ = CloseIfSupported(s) })
	}
	return stores
}

func TestStores_InsertNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			// GIVEN an empty store
			exists, err := store.Exists(ctx, "0.0.1.1")
			require.NoError(t, err)
			assert.False(t, exists)

			// WHEN a key is inserted twice with different records
			isNew, err := store.Insert(ctx, testRecord("0.0.1.1", -1))
			require.NoError(t, err)
			assert.True(t, isNew)
			isNew, err = store.Insert(ctx, testRecord("0.0.1.1", 5))
			require.NoError(t, err)

			// THEN the second insert reports a known key and the first record stays
			assert.False(t, isNew)
			rec, ok, err := store.Get(ctx, "0.0.1.1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, -1.0, rec.Score)
			assert.Equal(t, []int{0, 1, 1, 0}, rec.Occupation)
			assert.Equal(t, []float64{0.5}, rec.Properties.Comp)
			assert.True(t, rec.SavedAt.Equal(testRecord("", 0).SavedAt))

			exists, err = store.Exists(ctx, "0.0.1.1")
			require.NoError(t, err)
			assert.True(t, exists)

			_, ok, err = store.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStores_KeysSorted(t *testing.T) {
	ctx := context.Background()
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range []string{"0.1.1.1", "0.0.0.1", "0.0.1.1"} {
				_, err := store.Insert(ctx, testRecord(k, 0))
				require.NoError(t, err)
			}
			keys, err := store.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"0.0.0.1", "0.0.1.1", "0.1.1.1"}, keys)
		})
	}
}

func TestStores_ConcurrentInsertOneWinner(t *testing.T) {
	ctx := context.Background()
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			var mu sync.Mutex
			winners := 0
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					isNew, err := store.Insert(ctx, testRecord("p:0.1|0.1", float64(i)))
					assert.NoError(t, err)
					if isNew {
						mu.Lock()
						winners++
						mu.Unlock()
					}
				}(i)
			}
			wg.Wait()
			assert.Equal(t, 1, winners)
		})
	}
}

func TestStores_RequireInit(t *testing.T) {
	ctx := context.Background()
	for name, store := range map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": NewSQLiteStore(filepath.Join(t.TempDir(), "x.db")),
		"badger": NewBadgerStore(""),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := store.Keys(ctx)
			assert.Error(t, err)
			_, err = store.Insert(ctx, testRecord("a", 0))
			assert.Error(t, err)
		})
	}
}

func TestPersistentStores_SurviveReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	for _, kind := range []string{"sqlite", "badger"} {
		t.Run(kind, func(t *testing.T) {
			path := filepath.Join(dir, kind)
			store, err := NewStore(kind, path)
			require.NoError(t, err)
			require.NoError(t, store.Init(ctx))
			_, err = store.Insert(ctx, testRecord("0.0.0.1", 1))
			require.NoError(t, err)
			require.NoError(t, CloseIfSupported(store))

			reopened, err := NewStore(kind, path)
			require.NoError(t, err)
			require.NoError(t, reopened.Init(ctx))
			defer func() { _ = CloseIfSupported(reopened) }()
			keys, err := reopened.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"0.0.0.1"}, keys)
		})
	}
}

func TestSQLiteStore_RequiresPath(t *testing.T) {
	assert.Error(t, NewSQLiteStore("").Init(context.Background()))
}

func TestNewStore_Backends(t *testing.T) {
	for kind, want := range map[string]string{
		"":       "*catalog.MemoryStore",
		"memory": "*catalog.MemoryStore",
		"sqlite": "*catalog.SQLiteStore",
		"badger": "*catalog.BadgerStore",
	} {
		store, err := NewStore(kind, "x")
		require.NoError(t, err)
		assert.Equal(t, want, fmt.Sprintf("%T", store))
	}
	_, err := NewStore("postgres", "")
	assert.Error(t, err)

	assert.NoError(t, CloseIfSupported(NewMemoryStore()))
}

func TestDecodeRecord_VersionMismatch(t *testing.T) {
	payload, err := EncodeRecord(testRecord("k", 0))
	require.NoError(t, err)
	rec, err := DecodeRecord(payload)
	require.NoError(t, err)
	assert.Equal(t, "k", rec.Key)

	_, err = DecodeRecord([]byte(`{"schema_version": 99, "record": {}}`))
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

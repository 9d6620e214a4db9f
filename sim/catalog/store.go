// Package catalog persists configurations promoted from enumeration halls of
// fame. Records are keyed by canonical configuration key and never
// overwritten.
package catalog

import (
	"context"

	"github.com/lattice-mc/lattice-mc/sim"
)

// Store is a sim.Catalog that can also return stored records.
type Store interface {
	sim.Catalog
	Get(ctx context.Context, key string) (sim.CatalogRecord, bool, error)
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*BadgerStore)(nil)
)

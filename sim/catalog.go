package sim

import (
	"context"
	"time"
)

// CatalogRecord is one configuration promoted from a hall of fame.
type CatalogRecord struct {
	ID           string           `json:"id"`
	Key          string           `json:"key"`
	Policy       string           `json:"policy"`
	Occupation   []int            `json:"occupation"`
	Primitive    []int            `json:"primitive,omitempty"`
	IsPrimitive  bool             `json:"is_primitive"`
	Score        float64          `json:"score"`
	Metric       string           `json:"metric"`
	Temperature  float64          `json:"temperature"`
	ParamChemPot []float64        `json:"param_chem_pot"`
	Properties   PropertySnapshot `json:"properties"`
	SavedAt      time.Time        `json:"saved_at"`
}

// Catalog is the persistent store of known canonical configurations.
// Implementations live in sim/catalog. Insert never overwrites: a key
// already present reports isNew == false and keeps the stored record.
type Catalog interface {
	Init(ctx context.Context) error
	Exists(ctx context.Context, key string) (bool, error)
	Insert(ctx context.Context, rec CatalogRecord) (isNew bool, err error)
	Keys(ctx context.Context) ([]string, error)
}

package sim

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCatalog is an in-memory Catalog for tests.
type fakeCatalog struct {
	mu      sync.Mutex
	records map[string]CatalogRecord
	failOn  string
}

func newFakeCatalog(keys ...string) *fakeCatalog {
	c := &fakeCatalog{records: map[string]CatalogRecord{}}
	for _, k := range keys {
		c.records[k] = CatalogRecord{Key: k}
	}
	return c
}

func (c *fakeCatalog) Init(context.Context) error { return nil }

func (c *fakeCatalog) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.records[key]
	return ok, nil
}

func (c *fakeCatalog) Insert(_ context.Context, rec CatalogRecord) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec.Key == c.failOn {
		return false, errors.New("disk full")
	}
	if _, ok := c.records[rec.Key]; ok {
		return false, nil
	}
	c.records[rec.Key] = rec
	return true, nil
}

func (c *fakeCatalog) Keys(context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.records))
	for k := range c.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func enumRing(t *testing.T) (symmetricRing, PropertySnapshot) {
	t.Helper()
	m := symmetricRing{newRingModel(4, []float64{0, 0.1}, 0)}
	gc := newTestChain(t, m, binaryConverter(t), NewConditions(300, []float64{0}, 1e-6), 1)
	return m, gc.Snapshot()
}

func TestEnumConfig_DefaultsAndValidate(t *testing.T) {
	c := EnumConfig{}.WithDefaults()
	assert.Equal(t, EnumOnSample, c.SampleMode)
	assert.Equal(t, "true", c.Check)
	assert.Equal(t, "-potential_energy", c.Metric)
	assert.Equal(t, 100, c.HallOfFameSize)
	assert.True(t, c.Canonical())
	assert.NoError(t, c.Validate())

	bad := c
	bad.SampleMode = "sometimes"
	assert.Error(t, bad.Validate())

	raw := c
	f := false
	raw.InsertCanonical = &f
	raw.CheckExistence = true
	assert.Error(t, raw.Validate(), "existence checks need a symmetry-aware key")
}

func TestNewMonteCarloEnum_RejectsBadExpressions(t *testing.T) {
	m, proto := enumRing(t)
	tests := []struct {
		name  string
		cfg   EnumConfig
		field string
	}{
		{"unparsable check", EnumConfig{Check: "comp(0) >"}, "enumeration.check"},
		{"check not boolean", EnumConfig{Check: "comp(0)"}, "enumeration.check"},
		{"unknown metric", EnumConfig{Metric: "entropy"}, "enumeration.metric"},
		{"metric out of range", EnumConfig{Metric: "corr(9)"}, "enumeration.metric"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewMonteCarloEnum(tc.cfg.WithDefaults(), m, proto, nil)
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tc.field, cfgErr.Field)
		})
	}

	_, err := NewMonteCarloEnum(EnumConfig{SaveConfigs: true}.WithDefaults(), m, proto, nil)
	assert.Error(t, err, "saving without a catalog")
}

func TestMonteCarloEnum_CheckPredicateFilters(t *testing.T) {
	m, proto := enumRing(t)
	e, err := NewMonteCarloEnum(EnumConfig{Check: "comp(0) > 0.4"}.WithDefaults(), m, proto, nil)
	require.NoError(t, err)

	props := proto
	props.Comp = []float64{0.25}
	res, err := e.Insert([]int{1, 0, 0, 0}, &props)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCheckFailed, res.Outcome)
	assert.Equal(t, 0, e.Len())

	props.Comp = []float64{0.5}
	res, err = e.Insert([]int{1, 1, 0, 0}, &props)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInserted, res.Outcome)
	assert.Equal(t, 1, e.Len())
}

func TestMonteCarloEnum_CanonicalDuplicatesRankOnce(t *testing.T) {
	m, proto := enumRing(t)
	e, err := NewMonteCarloEnum(EnumConfig{Metric: "formation_energy"}.WithDefaults(), m, proto, nil)
	require.NoError(t, err)

	props := proto
	props.FormationEnergy = 1
	_, err = e.Insert([]int{1, 0, 0, 0}, &props)
	require.NoError(t, err)
	props.FormationEnergy = 2
	res, err := e.Insert([]int{0, 0, 1, 0}, &props)
	require.NoError(t, err)

	assert.Equal(t, OutcomeReplaced, res.Outcome)
	require.Equal(t, 1, e.Len())
	assert.Equal(t, 2.0, e.Entries()[0].Score)
	assert.Equal(t, []int{0, 0, 0, 1}, e.Entries()[0].Value.Form.Config.Occupation)
}

func TestMonteCarloEnum_SaveConfigsAndExistence(t *testing.T) {
	// GIVEN a catalog that already knows the single-solute configuration
	m, proto := enumRing(t)
	catalog := newFakeCatalog("0.0.0.1")
	cfg := EnumConfig{CheckExistence: true, SaveConfigs: true, Metric: "formation_energy"}.WithDefaults()
	e, err := NewMonteCarloEnum(cfg, m, proto, catalog)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, e.Reset(ctx))

	// WHEN a known and a new configuration are offered
	props := proto
	res, err := e.Insert([]int{0, 1, 0, 0}, &props)
	require.NoError(t, err)
	assert.Equal(t, OutcomeExcluded, res.Outcome)
	res, err = e.Insert([]int{1, 1, 0, 0}, &props)
	require.NoError(t, err)
	require.True(t, res.Success)

	// THEN a dry run reports the new one without writing it
	cond := NewConditions(300, []float64{0.1}, 1e-6)
	dry, err := e.SaveConfigs(ctx, cond, true)
	require.NoError(t, err)
	require.Len(t, dry, 1)
	assert.True(t, dry[0].IsNew)
	assert.False(t, dry[0].Saved)
	keys, _ := catalog.Keys(ctx)
	assert.Len(t, keys, 1)

	// AND saving writes it and excludes it from later insertions
	saved, err := e.SaveConfigs(ctx, cond, false)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.True(t, saved[0].IsNew)
	assert.True(t, saved[0].Saved)
	assert.True(t, e.IsExcluded("0.0.1.1"))
	rec := catalog.records["0.0.1.1"]
	assert.Equal(t, "canonical", rec.Policy)
	assert.Equal(t, []float64{0.1}, rec.ParamChemPot)
	assert.NotEmpty(t, rec.ID)

	// saving again finds nothing new
	again, err := e.SaveConfigs(ctx, cond, false)
	require.NoError(t, err)
	assert.False(t, again[0].IsNew)

	// a fresh segment reloads the exclusion set from the catalog
	require.NoError(t, e.Reset(ctx))
	assert.Equal(t, 0, e.Len())
	res, err = e.Insert([]int{0, 1, 1, 0}, &props)
	require.NoError(t, err)
	assert.Equal(t, OutcomeExcluded, res.Outcome)
}

func TestMonteCarloEnum_SaveWithoutCheckExistenceDoesNotExclude(t *testing.T) {
	// GIVEN enumeration that saves but does not check existence
	m, proto := enumRing(t)
	catalog := newFakeCatalog()
	cfg := EnumConfig{SaveConfigs: true, Metric: "formation_energy"}.WithDefaults()
	e, err := NewMonteCarloEnum(cfg, m, proto, catalog)
	require.NoError(t, err)
	ctx := context.Background()
	props := proto

	res, err := e.Insert([]int{1, 1, 0, 0}, &props)
	require.NoError(t, err)
	require.Equal(t, OutcomeInserted, res.Outcome)

	// WHEN the entry is saved as new and the next segment starts
	saved, err := e.SaveConfigs(ctx, NewConditions(300, []float64{0.1}, 1e-6), false)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	require.True(t, saved[0].IsNew)
	require.NoError(t, e.Reset(ctx))

	// THEN the saved configuration is not excluded and ranks again
	assert.False(t, e.IsExcluded(saved[0].Key))
	res, err = e.Insert([]int{1, 1, 0, 0}, &props)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInserted, res.Outcome)
	assert.Equal(t, 1, e.Len())
}

func TestMonteCarloEnum_SavePrimitiveOnlySkips(t *testing.T) {
	m, proto := enumRing(t)
	cfg := EnumConfig{SaveConfigs: true, SavePrimitiveOnly: true}.WithDefaults()
	catalog := newFakeCatalog()
	e, err := NewMonteCarloEnum(cfg, m, proto, catalog)
	require.NoError(t, err)

	props := proto
	props.PotentialEnergy = -1
	_, err = e.Insert([]int{1, 0, 1, 0}, &props)
	require.NoError(t, err)
	props.PotentialEnergy = 0
	_, err = e.Insert([]int{1, 1, 0, 0}, &props)
	require.NoError(t, err)

	results, err := e.SaveConfigs(context.Background(), Conditions{}, false)
	require.NoError(t, err)
	require.Len(t, results, 2)
	// -potential_energy ranks the alternating configuration first
	assert.Equal(t, "0.1.0.1", results[0].Key)
	assert.True(t, results[0].Skipped)
	assert.True(t, results[1].Saved)
	assert.Len(t, catalog.records, 1)
}

func TestMonteCarloEnum_SaveErrorPropagates(t *testing.T) {
	m, proto := enumRing(t)
	catalog := newFakeCatalog()
	catalog.failOn = "0.0.0.1"
	e, err := NewMonteCarloEnum(EnumConfig{SaveConfigs: true}.WithDefaults(), m, proto, catalog)
	require.NoError(t, err)
	props := proto
	_, err = e.Insert([]int{1, 0, 0, 0}, &props)
	require.NoError(t, err)

	_, err = e.SaveConfigs(context.Background(), Conditions{}, false)
	assert.ErrorContains(t, err, "disk full")
}

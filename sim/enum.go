package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Enumeration sample modes.
const (
	EnumOnSample = "on_sample"
	EnumOnAccept = "on_accept"
)

var validEnumSampleModes = map[string]bool{EnumOnSample: true, EnumOnAccept: true}

// EnumConfig configures hall-of-fame enumeration during a run.
type EnumConfig struct {
	SampleMode          string `yaml:"sample_mode"`
	Check               string `yaml:"check"`
	Metric              string `yaml:"metric"`
	HallOfFameSize      int    `yaml:"halloffame_size" validate:"gte=0"`
	CheckExistence      bool   `yaml:"check_existence"`
	InsertCanonical     *bool  `yaml:"insert_canonical,omitempty"`
	InsertPrimitiveOnly bool   `yaml:"insert_primitive_only"`
	SavePrimitiveOnly   bool   `yaml:"save_primitive_only"`
	SaveConfigs         bool   `yaml:"save_configs"`
}

// WithDefaults fills unset fields: on_sample, check "true", metric
// "-potential_energy", capacity 100, canonical insertion.
func (c EnumConfig) WithDefaults() EnumConfig {
	if c.SampleMode == "" {
		c.SampleMode = EnumOnSample
	}
	if c.Check == "" {
		c.Check = "true"
	}
	if c.Metric == "" {
		c.Metric = "-potential_energy"
	}
	if c.HallOfFameSize == 0 {
		c.HallOfFameSize = 100
	}
	if c.InsertCanonical == nil {
		t := true
		c.InsertCanonical = &t
	}
	return c
}

// Canonical reports whether configurations are canonicalized before insertion.
func (c EnumConfig) Canonical() bool {
	return c.InsertCanonical == nil || *c.InsertCanonical
}

// Validate checks the sample mode and the option combinations.
func (c EnumConfig) Validate() error {
	if !validEnumSampleModes[c.SampleMode] {
		return configErrorf("enumeration.sample_mode", "unknown mode %q; valid options: on_sample, on_accept", c.SampleMode)
	}
	if c.HallOfFameSize < 1 {
		return configErrorf("enumeration.halloffame_size", "must be >= 1, got %d", c.HallOfFameSize)
	}
	if c.CheckExistence && !c.Canonical() && !c.InsertPrimitiveOnly {
		return configErrorf("enumeration.check_existence", "requires insert_canonical or insert_primitive_only")
	}
	return nil
}

// EnumEntry is the value ranked by the enumeration hall of fame.
type EnumEntry struct {
	Form       CanonicalForm
	Properties PropertySnapshot
}

// SaveResult reports the catalog promotion of one hall-of-fame entry.
type SaveResult struct {
	Pos     int     `json:"pos"`
	Key     string  `json:"key"`
	Score   float64 `json:"score"`
	IsNew   bool    `json:"is_new"`
	Saved   bool    `json:"saved"`
	Skipped bool    `json:"skipped,omitempty"` // not primitive while save_primitive_only is set
}

// MonteCarloEnum ranks configurations seen during a run by a metric
// expression and promotes the best ones to a catalog.
type MonteCarloEnum struct {
	cfg     EnumConfig
	check   *Query
	metric  *Query
	canon   *Canonicalizer
	hall    *HallOfFame[EnumEntry]
	catalog Catalog
}

// NewMonteCarloEnum parses and test-evaluates the check and metric
// expressions against proto. catalog may be nil unless check_existence or
// save_configs is set.
func NewMonteCarloEnum(cfg EnumConfig, model EnergyModel, proto PropertySnapshot, catalog Catalog) (*MonteCarloEnum, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if catalog == nil && (cfg.CheckExistence || cfg.SaveConfigs) {
		return nil, configErrorf("catalog", "check_existence and save_configs require a catalog")
	}
	check, err := ParseQuery(cfg.Check)
	if err != nil {
		return nil, &ConfigError{Field: "enumeration.check", Reason: err.Error()}
	}
	if _, err := check.Bool(&proto); err != nil {
		return nil, &ConfigError{Field: "enumeration.check", Reason: err.Error()}
	}
	metric, err := ParseQuery(cfg.Metric)
	if err != nil {
		return nil, &ConfigError{Field: "enumeration.metric", Reason: err.Error()}
	}
	if _, err := metric.Float(&proto); err != nil {
		return nil, &ConfigError{Field: "enumeration.metric", Reason: err.Error()}
	}
	canon, err := NewCanonicalizer(model, cfg.Canonical(), cfg.InsertPrimitiveOnly)
	if err != nil {
		return nil, err
	}
	hall, err := NewHallOfFame[EnumEntry](cfg.HallOfFameSize)
	if err != nil {
		return nil, err
	}
	return &MonteCarloEnum{cfg: cfg, check: check, metric: metric, canon: canon, hall: hall, catalog: catalog}, nil
}

// Config returns the enumeration settings.
func (e *MonteCarloEnum) Config() EnumConfig { return e.cfg }

// Reset empties the hall of fame. With check_existence the exclusion set is
// reloaded from the catalog.
func (e *MonteCarloEnum) Reset(ctx context.Context) error {
	e.hall.Clear()
	if !e.cfg.CheckExistence {
		return nil
	}
	e.hall.ClearExcluded()
	keys, err := e.catalog.Keys(ctx)
	if err != nil {
		return fmt.Errorf("loading catalog keys: %w", err)
	}
	for _, k := range keys {
		e.hall.Exclude(k)
	}
	logrus.Debugf("enumeration reset: %d known configurations excluded", len(keys))
	return nil
}

// Insert offers the configuration occ with properties props. Configurations
// failing the check predicate are not offered to the hall of fame.
func (e *MonteCarloEnum) Insert(occ []int, props *PropertySnapshot) (InsertResult, error) {
	ok, err := e.check.Bool(props)
	if err != nil {
		return InsertResult{}, err
	}
	if !ok {
		return InsertResult{Outcome: OutcomeCheckFailed, Pos: -1, ExistingPos: -1}, nil
	}
	score, err := e.metric.Float(props)
	if err != nil {
		return InsertResult{}, err
	}
	form := e.canon.Form(occ)
	res := e.hall.Insert(form.Key, score, EnumEntry{Form: form, Properties: *props})
	if res.Success {
		logrus.Debugf("hall of fame %s %s at %d (score %g)", res.Outcome, form.Key, res.Pos, score)
	}
	return res, nil
}

// Entries returns the ranked entries, best first.
func (e *MonteCarloEnum) Entries() []HallOfFameEntry[EnumEntry] { return e.hall.Entries() }

// Len is the number of ranked entries.
func (e *MonteCarloEnum) Len() int { return e.hall.Len() }

// IsExcluded reports whether key is in the exclusion set.
func (e *MonteCarloEnum) IsExcluded(key string) bool { return e.hall.IsExcluded(key) }

// SaveConfigs promotes every ranked entry to the catalog. With
// check_existence, keys that turn out to be new are added to the exclusion set. With dryRun the catalog is only
// queried.
func (e *MonteCarloEnum) SaveConfigs(ctx context.Context, cond Conditions, dryRun bool) ([]SaveResult, error) {
	entries := e.hall.Entries()
	results := make([]SaveResult, 0, len(entries))
	for pos, entry := range entries {
		r := SaveResult{Pos: pos, Key: entry.Key, Score: entry.Score}
		if e.cfg.SavePrimitiveOnly && !entry.Value.Form.IsPrimitive {
			r.Skipped = true
			results = append(results, r)
			continue
		}
		if dryRun {
			exists, err := e.catalog.Exists(ctx, entry.Key)
			if err != nil {
				return results, fmt.Errorf("checking %s: %w", entry.Key, err)
			}
			r.IsNew = !exists
		} else {
			rec := CatalogRecord{
				ID:           uuid.NewString(),
				Key:          entry.Key,
				Policy:       e.canon.Policy(),
				Occupation:   entry.Value.Form.Config.Occupation,
				Primitive:    entry.Value.Form.Primitive,
				IsPrimitive:  entry.Value.Form.IsPrimitive,
				Score:        entry.Score,
				Metric:       e.metric.String(),
				Temperature:  cond.Temperature,
				ParamChemPot: append([]float64(nil), cond.ParamChemPot...),
				Properties:   entry.Value.Properties,
				SavedAt:      time.Now().UTC(),
			}
			isNew, err := e.catalog.Insert(ctx, rec)
			if err != nil {
				return results, fmt.Errorf("saving %s: %w", entry.Key, err)
			}
			r.IsNew = isNew
			r.Saved = true
			if isNew && e.cfg.CheckExistence {
				e.hall.Exclude(entry.Key)
			}
		}
		results = append(results, r)
	}
	logSaveTable(results, dryRun)
	return results, nil
}

func logSaveTable(results []SaveResult, dryRun bool) {
	verb := "saved"
	if dryRun {
		verb = "would save"
	}
	newCount := 0
	for _, r := range results {
		if r.IsNew {
			newCount++
		}
	}
	logrus.Infof("hall of fame: %s %d new of %d configurations", verb, newCount, len(results))
	logrus.Infof("%-6s %-14s %-6s %s", "pos", "score", "is_new", "key")
	for _, r := range results {
		status := fmt.Sprint(r.IsNew)
		if r.Skipped {
			status = "skip"
		}
		logrus.Infof("%-6d %-14.8g %-6s %s", r.Pos, r.Score, status, r.Key)
	}
}

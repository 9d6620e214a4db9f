package sim

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Drive modes.
const (
	DriveIncremental = "incremental"
	DriveCustom      = "custom"
)

var validDriveModes = map[string]bool{DriveIncremental: true, DriveCustom: true}

// Catalog backends accepted by sim/catalog.NewStore.
var validCatalogBackends = map[string]bool{"": true, "memory": true, "sqlite": true, "badger": true}

// settingsValidate checks struct tags on Settings.
var settingsValidate *validator.Validate

func init() {
	settingsValidate = validator.New()
}

// Settings is the YAML run configuration.
type Settings struct {
	Seed            int64                   `yaml:"seed"`
	Model           ModelSettings           `yaml:"model"`
	CompositionAxes CompositionAxesSettings `yaml:"composition_axes"`
	Driver          DriverSettings          `yaml:"driver"`
	Data            DataSettings            `yaml:"data"`
	Enumeration     *EnumConfig             `yaml:"enumeration,omitempty"`
	Catalog         CatalogSettings         `yaml:"catalog"`
	Trace           TraceSettings           `yaml:"trace"`
}

// ConditionsSettings is one point in (T, mu) space. Chemical potentials are
// keyed by composition axis name: a, b, c, ...
type ConditionsSettings struct {
	Temperature  float64            `yaml:"temperature" validate:"gte=0"`
	ParamChemPot map[string]float64 `yaml:"param_chem_pot"`
	Tolerance    float64            `yaml:"tolerance" validate:"gte=0"`
}

// IncrementSettings is the step between incremental conditions. Components
// may be negative, e.g. a cooling sweep.
type IncrementSettings struct {
	Temperature  float64            `yaml:"temperature"`
	ParamChemPot map[string]float64 `yaml:"param_chem_pot"`
	Tolerance    float64            `yaml:"tolerance" validate:"gte=0"`
}

// Conditions converts the increment for nAxes composition axes.
func (is IncrementSettings) Conditions(nAxes int) (Conditions, error) {
	return ConditionsSettings(is).Conditions(nAxes)
}

// DriverSettings selects the conditions path.
type DriverSettings struct {
	Mode                        string               `yaml:"mode"`
	DependentRuns               *bool                `yaml:"dependent_runs,omitempty"`
	InitialConditions           *ConditionsSettings  `yaml:"initial_conditions,omitempty"`
	FinalConditions             *ConditionsSettings  `yaml:"final_conditions,omitempty"`
	IncrementalConditions       *IncrementSettings   `yaml:"incremental_conditions,omitempty"`
	CustomConditions            []ConditionsSettings `yaml:"custom_conditions,omitempty" validate:"dive"`
	Motif                       MotifSettings        `yaml:"motif"`
	EquilibrationPassesFirstRun int                  `yaml:"equilibration_passes_first_run" validate:"gte=0"`
	EquilibrationPassesEachRun  int                  `yaml:"equilibration_passes_each_run" validate:"gte=0"`
}

// OutputSettings controls the files written per segment.
type OutputSettings struct {
	OutputDirectory   string `yaml:"output_directory"`
	WriteObservations bool   `yaml:"write_observations"`
	WriteTrajectory   bool   `yaml:"write_trajectory"`
}

// DataSettings controls sampling, completion and output.
type DataSettings struct {
	SamplingConfig `yaml:",inline"`
	Completion     CompletionCheckParams `yaml:"completion"`
	Storage        OutputSettings        `yaml:"storage"`
	LTE            bool                  `yaml:"lte"`
}

// CatalogSettings selects the catalog backend.
type CatalogSettings struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// TraceSettings selects the decision trace level ("none" or "decisions").
type TraceSettings struct {
	Level string `yaml:"level"`
}

// LoadSettings reads a YAML settings file. Uses strict parsing: unrecognized
// keys (typos) are rejected.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	return ParseSettings(data)
}

// ParseSettings decodes YAML settings and fills defaults.
func ParseSettings(data []byte) (*Settings, error) {
	var s Settings
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("parsing settings: %w", err)
	}
	s.applyDefaults()
	return &s, nil
}

func (s *Settings) applyDefaults() {
	s.Data.SamplingConfig = s.Data.SamplingConfig.WithDefaults()
	s.Data.Completion = s.Data.Completion.WithDefaults()
	if s.Driver.DependentRuns == nil {
		t := true
		s.Driver.DependentRuns = &t
	}
	if s.Enumeration != nil {
		e := s.Enumeration.WithDefaults()
		s.Enumeration = &e
	}
	if s.Catalog.Backend == "" {
		s.Catalog.Backend = "memory"
	}
}

// Validate checks struct constraints and cross-field rules.
func (s *Settings) Validate() error {
	if err := settingsValidate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return configErrorf(fe.Namespace(), "failed %q constraint (param %q), got %v", fe.Tag(), fe.Param(), fe.Value())
		}
		return err
	}
	if !IsValidEnergyModel(s.Model.Type) {
		return configErrorf("model.type", "unknown energy model %q; valid options: %v", s.Model.Type, ValidEnergyModelNames())
	}
	if !validDriveModes[s.Driver.Mode] {
		return configErrorf("driver.mode", "unknown mode %q; valid options: incremental, custom", s.Driver.Mode)
	}
	switch s.Driver.Mode {
	case DriveIncremental:
		if s.Driver.InitialConditions == nil || s.Driver.FinalConditions == nil || s.Driver.IncrementalConditions == nil {
			return configErrorf("driver", "incremental mode requires initial_conditions, final_conditions and incremental_conditions")
		}
	case DriveCustom:
		if len(s.Driver.CustomConditions) == 0 {
			return configErrorf("driver.custom_conditions", "custom mode requires at least one conditions entry")
		}
	}
	if !validCatalogBackends[s.Catalog.Backend] {
		return configErrorf("catalog.backend", "unknown backend %q; valid options: memory, sqlite, badger", s.Catalog.Backend)
	}
	if s.Catalog.Backend != "memory" && s.Catalog.Path == "" {
		return configErrorf("catalog.path", "required for the %s backend", s.Catalog.Backend)
	}
	if !validTraceLevels[s.Trace.Level] {
		return configErrorf("trace.level", "unknown level %q; valid options: none, decisions", s.Trace.Level)
	}
	if err := s.Data.SamplingConfig.Validate(); err != nil {
		return err
	}
	if err := s.Data.Completion.Validate(); err != nil {
		return err
	}
	if s.Enumeration != nil {
		if err := s.Enumeration.Validate(); err != nil {
			return err
		}
	}
	return nil
}

var validTraceLevels = map[string]bool{"": true, "none": true, "decisions": true}

// Conditions converts a settings entry for nAxes composition axes.
func (cs ConditionsSettings) Conditions(nAxes int) (Conditions, error) {
	mu := make([]float64, nAxes)
	for k := 0; k < nAxes; k++ {
		v, ok := cs.ParamChemPot[AxisName(k)]
		if !ok {
			return Conditions{}, configErrorf("param_chem_pot", "missing chemical potential for axis %s", AxisName(k))
		}
		mu[k] = v
	}
	if len(cs.ParamChemPot) != nAxes {
		var extra []string
		for name := range cs.ParamChemPot {
			if !isAxisName(name, nAxes) {
				extra = append(extra, name)
			}
		}
		sort.Strings(extra)
		return Conditions{}, configErrorf("param_chem_pot", "unknown composition axes %v", extra)
	}
	return NewConditions(cs.Temperature, mu, cs.Tolerance), nil
}

func isAxisName(name string, nAxes int) bool {
	for k := 0; k < nAxes; k++ {
		if AxisName(k) == name {
			return true
		}
	}
	return false
}

// ConditionsList expands the driver settings into the conditions of every
// segment.
func (d DriverSettings) ConditionsList(nAxes int) ([]Conditions, error) {
	if d.Mode == DriveCustom {
		list := make([]Conditions, len(d.CustomConditions))
		for i, cs := range d.CustomConditions {
			c, err := cs.Conditions(nAxes)
			if err != nil {
				return nil, fmt.Errorf("driver.custom_conditions[%d]: %w", i, err)
			}
			list[i] = c
		}
		return list, nil
	}
	initial, err := d.InitialConditions.Conditions(nAxes)
	if err != nil {
		return nil, fmt.Errorf("driver.initial_conditions: %w", err)
	}
	final, err := d.FinalConditions.Conditions(nAxes)
	if err != nil {
		return nil, fmt.Errorf("driver.final_conditions: %w", err)
	}
	incr, err := d.IncrementalConditions.Conditions(nAxes)
	if err != nil {
		return nil, fmt.Errorf("driver.incremental_conditions: %w", err)
	}
	return IncrementalConditions(initial, final, incr)
}

// DriverConfig builds the immutable run configuration.
func (s *Settings) DriverConfig(conv *CompositionConverter) (DriverConfig, error) {
	conds, err := s.Driver.ConditionsList(conv.NumAxes())
	if err != nil {
		return DriverConfig{}, err
	}
	cfg := DriverConfig{
		Conditions:                  conds,
		DependentRuns:               s.Driver.DependentRuns == nil || *s.Driver.DependentRuns,
		Motif:                       s.Driver.Motif,
		EquilibrationPassesFirstRun: s.Driver.EquilibrationPassesFirstRun,
		EquilibrationPassesEachRun:  s.Driver.EquilibrationPassesEachRun,
		Sampling:                    s.Data.SamplingConfig,
		Completion:                  s.Data.Completion,
		LTE:                         s.Data.LTE,
		Seed:                        s.Seed,
	}
	if s.Enumeration != nil {
		e := *s.Enumeration
		cfg.Enumeration = &e
	}
	return cfg, nil
}

package sim

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Properties are the model-evaluated quantities of a configuration. Values
// returned by an EnergyModel are extensive (summed over the supercell); the
// engine divides by Volume to report per-unit-cell values.
type Properties struct {
	FormationEnergy float64
	Corr            []float64 // correlation vector, one entry per basis function
	CompN           []float64 // number of each species
	Eta             []float64 // order parameter components; nil when the model has none
}

// Clone returns a deep copy.
func (p Properties) Clone() Properties {
	return Properties{
		FormationEnergy: p.FormationEnergy,
		Corr:            append([]float64(nil), p.Corr...),
		CompN:           append([]float64(nil), p.CompN...),
		Eta:             cloneOrNil(p.Eta),
	}
}

func cloneOrNil(v []float64) []float64 {
	if v == nil {
		return nil
	}
	return append([]float64(nil), v...)
}

// EnergyModel evaluates configurations of a fixed periodic supercell.
// Occupations are given as occupant indices into AllowedOccupants(site)'s
// species list; species indices returned by AllowedOccupants index CompN.
type EnergyModel interface {
	// NumSites is the number of sites in the supercell.
	NumSites() int
	// Volume is the number of primitive unit cells in the supercell.
	Volume() int
	// AllowedOccupants returns the species indices that may occupy site.
	// Occupation values are positions in this slice.
	AllowedOccupants(site int) []int
	// NumSpecies is the length of CompN.
	NumSpecies() int
	// Evaluate computes extensive properties of occ from scratch.
	Evaluate(occ []int) (Properties, error)
	// EvaluateDelta computes the extensive change in properties when the
	// occupant of site changes from occ[site] to newOcc. occ is not modified.
	EvaluateDelta(occ []int, site, newOcc int) (Properties, error)
}

// SpeciesNamer is implemented by models that can name their species. Used
// for the occupation key output.
type SpeciesNamer interface {
	SpeciesName(species int) string
}

// SymmetryProvider is implemented by models that expose supercell symmetry
// as site permutations. Each permutation p maps site i to p[i]; the
// configuration transformed by p has occ'[p[i]] = occ[i].
type SymmetryProvider interface {
	// Translations returns the supercell lattice translations, identity included.
	Translations() [][]int
	// FactorGroup returns all supercell symmetry operations, identity included.
	FactorGroup() [][]int
}

// NonZeroECIProvider is implemented by models that know which correlation
// indices have a non-zero effective cluster interaction.
type NonZeroECIProvider interface {
	NonZeroECI() []int
}

// ModelSettings selects and parameterizes an energy model by registered type.
type ModelSettings struct {
	Type   string    `yaml:"type"`
	Params yaml.Node `yaml:"params" validate:"-"`
}

// EnergyModelFactory builds an energy model from its raw YAML parameters.
type EnergyModelFactory func(params *yaml.Node) (EnergyModel, error)

var energyModelFactories = map[string]EnergyModelFactory{}

// RegisterEnergyModel makes an energy model available under name. Sub-packages
// call it from init(); registering the same name twice panics.
func RegisterEnergyModel(name string, factory EnergyModelFactory) {
	if _, dup := energyModelFactories[name]; dup {
		panic(fmt.Sprintf("energy model %q registered twice", name))
	}
	energyModelFactories[name] = factory
}

// IsValidEnergyModel reports whether name is a registered energy model type.
func IsValidEnergyModel(name string) bool {
	_, ok := energyModelFactories[name]
	return ok
}

// ValidEnergyModelNames returns the registered model types, sorted.
func ValidEnergyModelNames() []string {
	names := make([]string, 0, len(energyModelFactories))
	for name := range energyModelFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewEnergyModel builds the model selected by s.
func NewEnergyModel(s ModelSettings) (EnergyModel, error) {
	factory, ok := energyModelFactories[s.Type]
	if !ok {
		return nil, configErrorf("model.type", "unknown energy model %q; valid options: %v", s.Type, ValidEnergyModelNames())
	}
	m, err := factory(&s.Params)
	if err != nil {
		return nil, fmt.Errorf("building %s energy model: %w", s.Type, err)
	}
	return m, nil
}

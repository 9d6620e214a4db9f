// Package clex provides a reference cluster-expansion energy model on simple
// periodic lattices. Correlations use an occupation-indicator basis: the
// empty cluster, one point function per non-reference species, and one pair
// function per neighbor shell and unordered pair of non-reference species.
package clex

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/lattice-mc/lattice-mc/sim"
)

// Order parameter patterns.
const (
	PatternUniform   = "uniform"
	PatternStaggered = "staggered"
)

// OrderParameterParams defines one order-parameter component as
// sum over sites of sign(site) * values[species].
type OrderParameterParams struct {
	Pattern string    `yaml:"pattern"`
	Values  []float64 `yaml:"values"`
}

// Params is the YAML parameter block of the "clex" energy model.
//
// ECI order: empty, point(1..K-1), then for each shell the pairs (k, l) with
// 1 <= k <= l <= K-1.
type Params struct {
	Lattice        string                 `yaml:"lattice"`
	Size           []int                  `yaml:"size"`
	Species        []string               `yaml:"species"`
	Shells         int                    `yaml:"shells"`
	ECI            []float64              `yaml:"eci"`
	OrderParameter []OrderParameterParams `yaml:"order_parameter,omitempty"`
}

type pairFunction struct {
	shell int
	k, l  int
}

type orderParameter struct {
	sign   []float64 // per site
	values []float64 // per species
}

// Model is a cluster expansion on a periodic supercell.
type Model struct {
	cell    *supercell
	species []string
	k       int

	// plus[b][site] and minus[b][site] are the neighbors of site along the
	// b-th half-space offset and its inverse; bondShell[b] is its shell.
	plus, minus [][]int
	bondShell   []int

	pairs     []pairFunction
	pairIndex map[pairFunction]int // correlation index
	eci       []float64
	ops       []orderParameter
	allowed   []int
}

var _ sim.EnergyModel = (*Model)(nil)
var _ sim.SymmetryProvider = (*Model)(nil)

// NewModel validates p and precomputes the neighbor tables.
func NewModel(p Params) (*Model, error) {
	cell, err := newSupercell(p.Lattice, p.Size)
	if err != nil {
		return nil, err
	}
	if len(p.Species) < 2 {
		return nil, errors.New("at least two species are required")
	}
	if p.Shells < 0 {
		return nil, fmt.Errorf("shells must be non-negative, got %d", p.Shells)
	}
	shells, err := shellOffsets(len(p.Size), p.Shells)
	if err != nil {
		return nil, err
	}

	m := &Model{
		cell:      cell,
		species:   append([]string(nil), p.Species...),
		k:         len(p.Species),
		pairIndex: map[pairFunction]int{},
	}
	for i := range m.species {
		m.allowed = append(m.allowed, i)
	}
	for s, offsets := range shells {
		for _, o := range offsets {
			neg := make([]int, len(o))
			for i := range o {
				neg[i] = -o[i]
			}
			plus := make([]int, cell.n)
			minus := make([]int, cell.n)
			for site := 0; site < cell.n; site++ {
				plus[site] = cell.translate(site, o)
				minus[site] = cell.translate(site, neg)
			}
			m.plus = append(m.plus, plus)
			m.minus = append(m.minus, minus)
			m.bondShell = append(m.bondShell, s)
		}
	}
	base := 1 + (m.k - 1)
	for s := 0; s < p.Shells; s++ {
		for a := 1; a < m.k; a++ {
			for b := a; b < m.k; b++ {
				pf := pairFunction{shell: s, k: a, l: b}
				m.pairIndex[pf] = base + len(m.pairs)
				m.pairs = append(m.pairs, pf)
			}
		}
	}
	if len(p.ECI) != m.NumCorr() {
		return nil, fmt.Errorf("eci has %d values, the basis has %d correlations", len(p.ECI), m.NumCorr())
	}
	m.eci = append([]float64(nil), p.ECI...)

	for i, op := range p.OrderParameter {
		if len(op.Values) != m.k {
			return nil, fmt.Errorf("order_parameter[%d] has %d values, want one per species (%d)", i, len(op.Values), m.k)
		}
		sign := make([]float64, cell.n)
		for site := range sign {
			sign[site] = 1
			if op.Pattern == PatternStaggered {
				sum := 0
				for _, c := range cell.coords(site) {
					sum += c
				}
				if sum%2 == 1 {
					sign[site] = -1
				}
			} else if op.Pattern != PatternUniform && op.Pattern != "" {
				return nil, fmt.Errorf("order_parameter[%d]: unknown pattern %q; valid options: uniform, staggered", i, op.Pattern)
			}
		}
		m.ops = append(m.ops, orderParameter{sign: sign, values: append([]float64(nil), op.Values...)})
	}
	return m, nil
}

// NewModelFromYAML decodes the params node strictly and builds the model.
func NewModelFromYAML(node *yaml.Node) (sim.EnergyModel, error) {
	raw, err := yaml.Marshal(node)
	if err != nil {
		return nil, err
	}
	var p Params
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&p); err != nil {
		return nil, fmt.Errorf("parsing clex params: %w", err)
	}
	return NewModel(p)
}

// NumCorr is the length of the correlation vector.
func (m *Model) NumCorr() int { return 1 + (m.k - 1) + len(m.pairs) }

func (m *Model) NumSites() int { return m.cell.n }

// Volume equals NumSites: every lattice has a single-site basis.
func (m *Model) Volume() int { return m.cell.n }

func (m *Model) NumSpecies() int { return m.k }

func (m *Model) AllowedOccupants(int) []int { return m.allowed }

func (m *Model) SpeciesName(species int) string { return m.species[species] }

// NonZeroECI returns the correlation indices with a non-zero coefficient.
func (m *Model) NonZeroECI() []int {
	var idx []int
	for i, v := range m.eci {
		if v != 0 {
			idx = append(idx, i)
		}
	}
	return idx
}

// Translations returns the supercell translation permutations.
func (m *Model) Translations() [][]int { return m.cell.translations() }

// FactorGroup returns the supercell symmetry permutations.
func (m *Model) FactorGroup() [][]int { return m.cell.factorGroup() }

func (m *Model) checkOcc(occ []int) error {
	if len(occ) != m.cell.n {
		return fmt.Errorf("occupation has %d sites, supercell has %d", len(occ), m.cell.n)
	}
	for site, s := range occ {
		if s < 0 || s >= m.k {
			return fmt.Errorf("occupant %d not allowed on site %d", s, site)
		}
	}
	return nil
}

// Evaluate sums every cluster function over the supercell.
func (m *Model) Evaluate(occ []int) (sim.Properties, error) {
	if err := m.checkOcc(occ); err != nil {
		return sim.Properties{}, err
	}
	corr := make([]float64, m.NumCorr())
	compN := make([]float64, m.k)
	corr[0] = float64(m.cell.n)
	for _, s := range occ {
		compN[s]++
		if s > 0 {
			corr[s]++
		}
	}
	for b, plus := range m.plus {
		shell := m.bondShell[b]
		for site, j := range plus {
			m.addPair(corr, shell, occ[site], occ[j], 1)
		}
	}
	return sim.Properties{
		FormationEnergy: m.energy(corr),
		Corr:            corr,
		CompN:           compN,
		Eta:             m.eta(occ),
	}, nil
}

func (m *Model) addPair(corr []float64, shell, a, b int, w float64) {
	if a == 0 || b == 0 {
		return
	}
	if a > b {
		a, b = b, a
	}
	corr[m.pairIndex[pairFunction{shell: shell, k: a, l: b}]] += w
}

func (m *Model) energy(corr []float64) float64 {
	var e float64
	for i, v := range corr {
		e += m.eci[i] * v
	}
	return e
}

func (m *Model) eta(occ []int) []float64 {
	if len(m.ops) == 0 {
		return nil
	}
	eta := make([]float64, len(m.ops))
	for i, op := range m.ops {
		for site, s := range occ {
			eta[i] += op.sign[site] * op.values[s]
		}
	}
	return eta
}

// EvaluateDelta computes the change from changing site's occupant to newOcc
// by visiting only the bonds that contain site.
func (m *Model) EvaluateDelta(occ []int, site, newOcc int) (sim.Properties, error) {
	if site < 0 || site >= m.cell.n {
		return sim.Properties{}, fmt.Errorf("site %d out of range [0, %d)", site, m.cell.n)
	}
	if newOcc < 0 || newOcc >= m.k {
		return sim.Properties{}, fmt.Errorf("occupant %d not allowed on site %d", newOcc, site)
	}
	old := occ[site]
	if old < 0 || old >= m.k {
		return sim.Properties{}, fmt.Errorf("current occupant %d not allowed on site %d", old, site)
	}
	d := sim.Properties{
		Corr:  make([]float64, m.NumCorr()),
		CompN: make([]float64, m.k),
	}
	d.CompN[old]--
	d.CompN[newOcc]++
	if old > 0 {
		d.Corr[old]--
	}
	if newOcc > 0 {
		d.Corr[newOcc]++
	}
	for b := range m.plus {
		shell := m.bondShell[b]
		j := m.plus[b][site]
		if j == site {
			m.addPair(d.Corr, shell, newOcc, newOcc, 1)
			m.addPair(d.Corr, shell, old, old, -1)
			continue
		}
		h := m.minus[b][site]
		m.addPair(d.Corr, shell, newOcc, occ[j], 1)
		m.addPair(d.Corr, shell, old, occ[j], -1)
		m.addPair(d.Corr, shell, occ[h], newOcc, 1)
		m.addPair(d.Corr, shell, occ[h], old, -1)
	}
	d.FormationEnergy = m.energy(d.Corr)
	if len(m.ops) > 0 {
		d.Eta = make([]float64, len(m.ops))
		for i, op := range m.ops {
			d.Eta[i] = op.sign[site] * (op.values[newOcc] - op.values[old])
		}
	}
	return d, nil
}

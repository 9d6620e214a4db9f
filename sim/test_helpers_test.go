package sim

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// ringModel is a test energy model on a ring of sites: each species has an
// on-site energy and neighboring sites that both hold non-zero species
// interact with coupling j. Corr is [sites, occupied neighbor pairs].
type ringModel struct {
	allowed    [][]int // species allowed per site
	nSpecies   int
	siteEnergy []float64 // per species
	j          float64
	withEta    bool

	failDelta   bool
	deltaCorrSz int // overrides the delta correlation length when > 0
}

// newRingModel builds a ring of n sites, each allowing every species.
func newRingModel(n int, siteEnergy []float64, j float64) *ringModel {
	all := make([]int, len(siteEnergy))
	for i := range all {
		all[i] = i
	}
	allowed := make([][]int, n)
	for i := range allowed {
		allowed[i] = all
	}
	return &ringModel{allowed: allowed, nSpecies: len(siteEnergy), siteEnergy: siteEnergy, j: j}
}

func (m *ringModel) NumSites() int { return len(m.allowed) }
func (m *ringModel) Volume() int { return len(m.allowed) }
func (m *ringModel) AllowedOccupants(s int) []int { return m.allowed[s] }
func (m *ringModel) NumSpecies() int { return m.nSpecies }

func (m *ringModel) SpeciesName(species int) string { return fmt.Sprintf("S%d", species) }

func (m *ringModel) NonZeroECI() []int {
	if m.j == 0 {
		return nil
	}
	return []int{1}
}

func (m *ringModel) Evaluate(occ []int) (Properties, error) {
	n := len(m.allowed)
	if len(occ) != n {
		return Properties{}, fmt.Errorf("occupation has %d sites, want %d", len(occ), n)
	}
	p := Properties{Corr: make([]float64, 2), CompN: make([]float64, m.nSpecies)}
	p.Corr[0] = float64(n)
	var eta float64
	for i, o := range occ {
		s := m.allowed[i][o]
		p.CompN[s]++
		p.FormationEnergy += m.siteEnergy[s]
		next := m.allowed[(i+1)%n][occ[(i+1)%n]]
		if s > 0 && next > 0 {
			p.Corr[1]++
		}
		if s > 0 {
			if i%2 == 0 {
				eta++
			} else {
				eta--
			}
		}
	}
	p.FormationEnergy += m.j * p.Corr[1]
	if m.withEta {
		p.Eta = []float64{eta}
	}
	return p, nil
}

func (m *ringModel) EvaluateDelta(occ []int, site, newOcc int) (Properties, error) {
	if m.failDelta {
		return Properties{}, errors.New("delta not available")
	}
	before, err := m.Evaluate(occ)
	if err != nil {
		return Properties{}, err
	}
	next := append([]int(nil), occ...)
	next[site] = newOcc
	after, err := m.Evaluate(next)
	if err != nil {
		return Properties{}, err
	}
	d := Properties{FormationEnergy: after.FormationEnergy - before.FormationEnergy}
	d.Corr = diff(after.Corr, before.Corr)
	d.CompN = diff(after.CompN, before.CompN)
	if m.withEta {
		d.Eta = diff(after.Eta, before.Eta)
	}
	if m.deltaCorrSz > 0 {
		d.Corr = make([]float64, m.deltaCorrSz)
	}
	return d, nil
}

func diff(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}

// symmetricRing adds ring translations and reflections.
type symmetricRing struct {
	*ringModel
}

func (m symmetricRing) Translations() [][]int {
	n := m.NumSites()
	perms := make([][]int, n)
	for t := range perms {
		p := make([]int, n)
		for i := range p {
			p[i] = (i + t) % n
		}
		perms[t] = p
	}
	return perms
}

func (m symmetricRing) FactorGroup() [][]int {
	n := m.NumSites()
	perms := m.Translations()
	for t := 0; t < n; t++ {
		p := make([]int, n)
		for i := range p {
			p[i] = ((t-i)%n + n) % n
		}
		perms = append(perms, p)
	}
	return perms
}

// binaryConverter has species 0 at the origin and species 1 at the end member.
func binaryConverter(t *testing.T) *CompositionConverter {
	t.Helper()
	conv, err := NewCompositionConverter(CompositionAxesSettings{
		Origin:     []float64{1, 0},
		EndMembers: [][]float64{{0, 1}},
	})
	require.NoError(t, err)
	return conv
}

// newTestChain builds a grand-canonical chain for model at cond.
func newTestChain(t *testing.T, model EnergyModel, conv *CompositionConverter, cond Conditions, seed int64) *GrandCanonical {
	t.Helper()
	exch, err := NewSiteExchanger(model)
	require.NoError(t, err)
	gc, err := NewGrandCanonical(model, conv, exch, cond, make([]int, model.NumSites()), rand.New(rand.NewSource(seed)))
	require.NoError(t, err)
	return gc
}

func int64Ptr(v int64) *int64 { return &v }
func float64Ptr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool { return &v }

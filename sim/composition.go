package sim

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// CompositionAxesSettings is the YAML form of a CompositionConverter: the
// per-unit-cell species counts at the origin and at each end member.
type CompositionAxesSettings struct {
	Origin     []float64   `yaml:"origin" validate:"required,min=1"`
	EndMembers [][]float64 `yaml:"end_members" validate:"required,min=1"`
}

// CompositionConverter maps per-unit-cell species counts n to parametric
// composition x through n = origin + A x, where column k of A is
// endMember_k - origin. The inverse uses the Moore-Penrose pseudo-inverse.
type CompositionConverter struct {
	origin []float64
	ends   [][]float64
	pinv   *mat.Dense // nAxes x nSpecies
}

// NewCompositionConverter validates the axes and precomputes the pseudo-inverse.
func NewCompositionConverter(s CompositionAxesSettings) (*CompositionConverter, error) {
	nSpecies := len(s.Origin)
	if nSpecies == 0 {
		return nil, configErrorf("composition_axes.origin", "no composition axes defined")
	}
	nAxes := len(s.EndMembers)
	if nAxes == 0 {
		return nil, configErrorf("composition_axes.end_members", "no composition axes defined")
	}
	if nAxes > nSpecies {
		return nil, configErrorf("composition_axes.end_members", "%d axes exceed %d species", nAxes, nSpecies)
	}

	a := mat.NewDense(nSpecies, nAxes, nil)
	for k, end := range s.EndMembers {
		if len(end) != nSpecies {
			return nil, configErrorf("composition_axes.end_members", "end member %s has %d species, origin has %d",
				AxisName(k), len(end), nSpecies)
		}
		for i := range end {
			a.Set(i, k, end[i]-s.Origin[i])
		}
	}

	// pinv = (A^T A)^-1 A^T; A has full column rank iff A^T A is invertible.
	var ata mat.Dense
	ata.Mul(a.T(), a)
	var ataInv mat.Dense
	if err := ataInv.Inverse(&ata); err != nil {
		return nil, configErrorf("composition_axes", "end members are not linearly independent: %v", err)
	}
	pinv := mat.NewDense(nAxes, nSpecies, nil)
	pinv.Mul(&ataInv, a.T())

	ends := make([][]float64, nAxes)
	for k := range s.EndMembers {
		ends[k] = append([]float64(nil), s.EndMembers[k]...)
	}
	return &CompositionConverter{
		origin: append([]float64(nil), s.Origin...),
		ends:   ends,
		pinv:   pinv,
	}, nil
}

// NumAxes is the number of independent composition axes.
func (c *CompositionConverter) NumAxes() int { return len(c.ends) }

// NumSpecies is the number of species counted by comp_n.
func (c *CompositionConverter) NumSpecies() int { return len(c.origin) }

// ParamComposition returns x for per-unit-cell species counts compN.
func (c *CompositionConverter) ParamComposition(compN []float64) []float64 {
	d := make([]float64, len(compN))
	for i := range compN {
		d[i] = compN[i] - c.origin[i]
	}
	return c.DParamComposition(d)
}

// DParamComposition returns the change in x for a change dCompN in species
// counts. The map is linear, so extensive changes map to extensive changes.
func (c *CompositionConverter) DParamComposition(dCompN []float64) []float64 {
	out := mat.NewVecDense(c.NumAxes(), nil)
	out.MulVec(c.pinv, mat.NewVecDense(len(dCompN), append([]float64(nil), dCompN...)))
	return out.RawVector().Data
}

// CompN returns the species counts per unit cell at parametric composition x.
func (c *CompositionConverter) CompN(x []float64) []float64 {
	n := append([]float64(nil), c.origin...)
	for k, xk := range x {
		for i := range n {
			n[i] += xk * (c.ends[k][i] - c.origin[i])
		}
	}
	return n
}

// CheckModel verifies the converter counts the same species as model.
func (c *CompositionConverter) CheckModel(model EnergyModel) error {
	if model.NumSpecies() != c.NumSpecies() {
		return configErrorf("composition_axes.origin", "has %d species but the energy model has %d",
			c.NumSpecies(), model.NumSpecies())
	}
	return nil
}

func (c *CompositionConverter) String() string {
	return fmt.Sprintf("origin=%v end_members=%v", c.origin, c.ends)
}

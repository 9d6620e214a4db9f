package sim

// CanonicalForm is the representative of a configuration under the active
// canonicalization policy. Key identifies the representative: two
// configurations are duplicates iff their keys are equal.
type CanonicalForm struct {
	Config      Configuration
	Key         string
	Primitive   []int // occupation on translation-orbit representatives; nil unless computed
	IsPrimitive bool  // no non-identity supercell translation leaves the configuration invariant
}

// Canonicalizer maps configurations to their canonical forms.
//
//   - raw: the occupation itself
//   - canonical: the lexicographically smallest occupation over the supercell
//     factor group
//   - primitive: the canonical occupation reduced to one site per orbit of the
//     translations that leave it invariant
type Canonicalizer struct {
	canonical    bool
	primitive    bool
	translations [][]int
	factorGroup  [][]int
}

// NewCanonicalizer builds a canonicalizer. Symmetry-aware policies require a
// model implementing SymmetryProvider.
func NewCanonicalizer(model EnergyModel, canonical, primitive bool) (*Canonicalizer, error) {
	c := &Canonicalizer{canonical: canonical, primitive: primitive}
	sym, ok := model.(SymmetryProvider)
	if !ok {
		if canonical || primitive {
			return nil, configErrorf("enumeration", "canonical and primitive forms require an energy model that provides supercell symmetry")
		}
		return c, nil
	}
	c.translations = sym.Translations()
	c.factorGroup = sym.FactorGroup()
	return c, nil
}

// Policy names the canonicalization policy.
func (c *Canonicalizer) Policy() string {
	switch {
	case c.primitive:
		return "primitive"
	case c.canonical:
		return "canonical"
	}
	return "raw"
}

// Form computes the canonical form of occ.
func (c *Canonicalizer) Form(occ []int) CanonicalForm {
	rep := occ
	if c.canonical || c.primitive {
		rep = c.lexMin(occ)
	}
	f := CanonicalForm{Config: NewConfiguration(rep), IsPrimitive: true}
	if c.translations != nil {
		prim, isPrim := c.reduce(rep)
		f.IsPrimitive = isPrim
		if c.primitive {
			f.Primitive = prim.occ
			f.Key = "p:" + occupationKey(prim.sites) + "|" + occupationKey(prim.occ)
			return f
		}
	}
	f.Key = occupationKey(rep)
	return f
}

// lexMin returns the smallest image of occ under the factor group. Each
// permutation p maps site i to p[i], so the image has image[p[i]] = occ[i].
func (c *Canonicalizer) lexMin(occ []int) []int {
	best := append([]int(nil), occ...)
	img := make([]int, len(occ))
	for _, p := range c.factorGroup {
		for i, site := range p {
			img[site] = occ[i]
		}
		if lexLess(img, best) {
			copy(best, img)
		}
	}
	return best
}

func lexLess(a, b []int) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

type primitiveCell struct {
	sites []int // orbit representatives, ascending
	occ   []int
}

// reduce finds the translations leaving occ invariant and keeps the smallest
// site of each orbit.
func (c *Canonicalizer) reduce(occ []int) (primitiveCell, bool) {
	var invariant [][]int
	for _, t := range c.translations {
		same := true
		for i, site := range t {
			if occ[site] != occ[i] {
				same = false
				break
			}
		}
		if same {
			invariant = append(invariant, t)
		}
	}
	var cell primitiveCell
	for i := range occ {
		isRep := true
		for _, t := range invariant {
			if t[i] < i {
				isRep = false
				break
			}
		}
		if isRep {
			cell.sites = append(cell.sites, i)
			cell.occ = append(cell.occ, occ[i])
		}
	}
	return cell, len(invariant) <= 1
}

package clex

import (
	"fmt"
	"sort"
)

// Lattice types with a single-site basis.
const (
	LatticeChain  = "chain"
	LatticeSquare = "square"
	LatticeCubic  = "cubic"
)

var latticeDims = map[string]int{LatticeChain: 1, LatticeSquare: 2, LatticeCubic: 3}

// neighborRange bounds the offsets searched for neighbor shells.
const neighborRange = 2

// supercell is a periodic grid of unit cells with one site per cell.
type supercell struct {
	dims []int
	n    int
}

func newSupercell(lattice string, size []int) (*supercell, error) {
	d, ok := latticeDims[lattice]
	if !ok {
		return nil, fmt.Errorf("unknown lattice %q; valid options: chain, square, cubic", lattice)
	}
	if len(size) != d {
		return nil, fmt.Errorf("%s lattice needs %d supercell dimensions, got %d", lattice, d, len(size))
	}
	n := 1
	for i, l := range size {
		if l < 1 {
			return nil, fmt.Errorf("supercell dimension %d must be >= 1, got %d", i, l)
		}
		n *= l
	}
	return &supercell{dims: append([]int(nil), size...), n: n}, nil
}

func (s *supercell) coords(site int) []int {
	c := make([]int, len(s.dims))
	for i, l := range s.dims {
		c[i] = site % l
		site /= l
	}
	return c
}

func (s *supercell) index(c []int) int {
	site := 0
	for i := len(s.dims) - 1; i >= 0; i-- {
		l := s.dims[i]
		site = site*l + ((c[i]%l)+l)%l
	}
	return site
}

// translate returns the site reached from site by offset, wrapping periodically.
func (s *supercell) translate(site int, offset []int) int {
	c := s.coords(site)
	for i := range c {
		c[i] += offset[i]
	}
	return s.index(c)
}

// shellOffsets groups the half-space of lattice offsets by squared length
// and returns the first nShells groups. An offset is in the half-space when
// its first non-zero component is positive, so each bond is listed once.
func shellOffsets(dim, nShells int) ([][][]int, error) {
	byLen := map[int][][]int{}
	var walk func(prefix []int)
	walk = func(prefix []int) {
		if len(prefix) == dim {
			if !positiveHalf(prefix) {
				return
			}
			l2 := 0
			for _, v := range prefix {
				l2 += v * v
			}
			byLen[l2] = append(byLen[l2], append([]int(nil), prefix...))
			return
		}
		for v := -neighborRange; v <= neighborRange; v++ {
			walk(append(prefix, v))
		}
	}
	walk(nil)

	lengths := make([]int, 0, len(byLen))
	for l2 := range byLen {
		lengths = append(lengths, l2)
	}
	sort.Ints(lengths)
	// Shells beyond neighborRange in any direction are incomplete.
	maxComplete := 0
	for _, l2 := range lengths {
		if l2 <= neighborRange*neighborRange {
			maxComplete++
		}
	}
	if nShells > maxComplete {
		return nil, fmt.Errorf("at most %d neighbor shells are supported in %d dimensions, got %d", maxComplete, dim, nShells)
	}
	shells := make([][][]int, nShells)
	for i := 0; i < nShells; i++ {
		shells[i] = byLen[lengths[i]]
	}
	return shells, nil
}

func positiveHalf(v []int) bool {
	for _, x := range v {
		if x != 0 {
			return x > 0
		}
	}
	return false
}

// pointOps returns the signed axis permutations that map the supercell onto
// itself: axes may only be exchanged when their lengths are equal.
func (s *supercell) pointOps() [][]int {
	d := len(s.dims)
	var perms [][]int
	var permute func(prefix []int, used []bool)
	permute = func(prefix []int, used []bool) {
		if len(prefix) == d {
			perms = append(perms, append([]int(nil), prefix...))
			return
		}
		for a := 0; a < d; a++ {
			if used[a] || s.dims[a] != s.dims[len(prefix)] {
				continue
			}
			used[a] = true
			permute(append(prefix, a), used)
			used[a] = false
		}
	}
	permute(nil, make([]bool, d))

	// op encoding: op[i] = axis*2 + sign bit, for output axis i.
	var ops [][]int
	for _, p := range perms {
		for signs := 0; signs < 1<<d; signs++ {
			op := make([]int, d)
			for i := 0; i < d; i++ {
				op[i] = p[i]*2 + (signs>>i)&1
			}
			ops = append(ops, op)
		}
	}
	return ops
}

func applyPointOp(op, c []int) []int {
	out := make([]int, len(c))
	for i, code := range op {
		v := c[code/2]
		if code%2 == 1 {
			v = -v
		}
		out[i] = v
	}
	return out
}

// translations lists the site permutations of every lattice translation.
func (s *supercell) translations() [][]int {
	perms := make([][]int, 0, s.n)
	for t := 0; t < s.n; t++ {
		shift := s.coords(t)
		p := make([]int, s.n)
		for site := range p {
			p[site] = s.translate(site, shift)
		}
		perms = append(perms, p)
	}
	return perms
}

// factorGroup lists the site permutations of every translation combined
// with every point operation. Duplicate permutations are removed.
func (s *supercell) factorGroup() [][]int {
	seen := map[string]bool{}
	var perms [][]int
	for _, op := range s.pointOps() {
		for t := 0; t < s.n; t++ {
			shift := s.coords(t)
			p := make([]int, s.n)
			for site := range p {
				c := applyPointOp(op, s.coords(site))
				for i := range c {
					c[i] += shift[i]
				}
				p[site] = s.index(c)
			}
			key := fmt.Sprint(p)
			if seen[key] {
				continue
			}
			seen[key] = true
			perms = append(perms, p)
		}
	}
	return perms
}

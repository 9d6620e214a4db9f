package sim

import (
	"fmt"
	"math/rand"
	"strings"
)

// ExchangeGroup is a set of variable sites sharing the same allowed-occupant list.
type ExchangeGroup struct {
	Allowed []int // species indices allowed on every site of the group
	Sites   []int
}

// SiteExchanger is the precomputed table of sites whose occupant may change,
// grouped by allowed-occupant equivalence. It is read-only after construction
// and may be shared between chains.
type SiteExchanger struct {
	variable []int // all sites with more than one allowed occupant, ascending
	nAllowed []int // per site: number of allowed occupants
	groups   []ExchangeGroup
}

// NewSiteExchanger builds the exchange table for model. A supercell with no
// variable sites is a configuration error: no event can ever be proposed.
func NewSiteExchanger(model EnergyModel) (*SiteExchanger, error) {
	n := model.NumSites()
	se := &SiteExchanger{nAllowed: make([]int, n)}
	groupIndex := map[string]int{}
	for site := 0; site < n; site++ {
		allowed := model.AllowedOccupants(site)
		se.nAllowed[site] = len(allowed)
		if len(allowed) == 0 {
			return nil, configErrorf("model", "site %d has no allowed occupants", site)
		}
		if len(allowed) < 2 {
			continue
		}
		se.variable = append(se.variable, site)
		key := allowedKey(allowed)
		g, ok := groupIndex[key]
		if !ok {
			g = len(se.groups)
			groupIndex[key] = g
			se.groups = append(se.groups, ExchangeGroup{Allowed: append([]int(nil), allowed...)})
		}
		se.groups[g].Sites = append(se.groups[g].Sites, site)
	}
	if len(se.variable) == 0 {
		return nil, configErrorf("model", "no site has more than one allowed occupant")
	}
	return se, nil
}

func allowedKey(allowed []int) string {
	parts := make([]string, len(allowed))
	for i, a := range allowed {
		parts[i] = fmt.Sprint(a)
	}
	return strings.Join(parts, ",")
}

// VariableSites returns the number of sites that can change occupant.
func (se *SiteExchanger) VariableSites() int { return len(se.variable) }

// Groups returns the exchange groups in order of first appearance.
func (se *SiteExchanger) Groups() []ExchangeGroup { return se.groups }

// NumAllowed returns the number of allowed occupants on site.
func (se *SiteExchanger) NumAllowed(site int) int { return se.nAllowed[site] }

// Draw picks a variable site uniformly, then a new occupant uniformly among
// the allowed occupants other than current(site). Exactly two draws are taken
// from rng per call.
func (se *SiteExchanger) Draw(rng *rand.Rand, occ []int) (site, newOcc int) {
	site = se.variable[rng.Intn(len(se.variable))]
	k := rng.Intn(se.nAllowed[site] - 1)
	if k >= occ[site] {
		k++
	}
	return site, k
}

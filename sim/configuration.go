package sim

import (
	"strconv"
	"strings"
)

// Configuration is an assignment of an occupant index to every site of the
// supercell. occ[i] indexes the model's AllowedOccupants(i).
type Configuration struct {
	Occupation []int `json:"occupation"`
}

// NewConfiguration copies occ.
func NewConfiguration(occ []int) Configuration {
	return Configuration{Occupation: append([]int(nil), occ...)}
}

// Clone returns a deep copy.
func (c Configuration) Clone() Configuration {
	return NewConfiguration(c.Occupation)
}

// Key is the raw occupation string, e.g. "0.1.1.0".
func (c Configuration) Key() string {
	return occupationKey(c.Occupation)
}

func occupationKey(occ []int) string {
	var b strings.Builder
	for i, o := range occ {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.Itoa(o))
	}
	return b.String()
}

// MotifSettings selects the starting configuration of the first segment.
// An empty Occupation fills each site with its first allowed occupant.
type MotifSettings struct {
	Occupation []int `yaml:"occupation"`
}

// InitialOccupation resolves the motif against model.
func (m MotifSettings) InitialOccupation(model EnergyModel) ([]int, error) {
	n := model.NumSites()
	if len(m.Occupation) == 0 {
		return make([]int, n), nil
	}
	if len(m.Occupation) != n {
		return nil, configErrorf("driver.motif.occupation", "has %d sites, supercell has %d", len(m.Occupation), n)
	}
	for site, o := range m.Occupation {
		if o < 0 || o >= len(model.AllowedOccupants(site)) {
			return nil, configErrorf("driver.motif.occupation", "occupant %d not allowed on site %d", o, site)
		}
	}
	return append([]int(nil), m.Occupation...), nil
}

package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

// Stream names.
const (
	// SubsystemChain is the stream of the dependent-runs chain. It is seeded
	// with the run seed itself.
	SubsystemChain = "chain"
	// SubsystemLTE seeds the chains built only to evaluate the low
	// temperature expansion. They never propose events.
	SubsystemLTE = "lte"
)

// SubsystemIndependentChain names the stream of the independent chain at
// conditions index i.
func SubsystemIndependentChain(i int) string {
	return fmt.Sprintf("chain_%d", i)
}

// PartitionedRNG hands out one reproducible *rand.Rand per named stream of
// a run: the chain stream uses the seed, any other name seed^fnv1a(name).
// Not safe for concurrent use; derive every stream before starting chains.
type PartitionedRNG struct {
	seed    int64
	streams map[string]*rand.Rand
}

func NewPartitionedRNG(seed int64) *PartitionedRNG {
	return &PartitionedRNG{seed: seed, streams: map[string]*rand.Rand{}}
}

// ForSubsystem returns the stream for name, creating it on first use.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if r, ok := p.streams[name]; ok {
		return r
	}
	s := p.seed
	if name != SubsystemChain {
		h := fnv.New64a()
		h.Write([]byte(name))
		s ^= int64(h.Sum64())
	}
	r := rand.New(rand.NewSource(s))
	p.streams[name] = r
	return r
}

func (p *PartitionedRNG) Seed() int64 { return p.seed }

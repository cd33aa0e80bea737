package domain

import (
	"errors"
	"fmt"
	"math/bits"
	"math/rand/v2"

	"github.com/MrSnakeDoc/mlvd/internal/filter"
)

var (
	// ErrNoMatch is returned when no relay survives the criteria.
	ErrNoMatch = errors.New("no relay matches the given filters")
	// ErrInvalidWeights is returned when every candidate has weight 0.
	ErrInvalidWeights = errors.New("all candidate relays have zero weight")
)

// Criteria narrows a directory down to selection candidates.
type Criteria struct {
	// Location is matched against the relay location OR its hostname.
	Location *filter.Filter
	// Provider is matched against the relay provider.
	Provider *filter.Filter
	// RequireActive drops inactive relays.
	RequireActive bool
}

// Matches reports whether r satisfies every criterion.
func (c Criteria) Matches(r Relay) bool {
	if c.RequireActive && !r.Active {
		return false
	}
	if !c.Location.Empty() && !c.Location.MatchAny(r.Location, r.Hostname) {
		return false
	}
	return c.Provider.Match(r.Provider)
}

// Filter returns the relays of d satisfying c, in directory order.
func (d Directory) Filter(c Criteria) []Relay {
	out := make([]Relay, 0, len(d.relays))
	for _, r := range d.relays {
		if c.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}

// RandomSource draws uniform integers in [0, n). *rand.Rand satisfies it.
type RandomSource interface {
	Uint64N(n uint64) uint64
}

// processSource uses the runtime-seeded global generator, which differs on
// every process start.
type processSource struct{}

func (processSource) Uint64N(n uint64) uint64 { return rand.Uint64N(n) }

// NewSeededSource returns a deterministic source for tests.
func NewSeededSource(seed uint64) RandomSource {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Selector picks one relay out of a directory by capacity weight.
type Selector struct {
	rng RandomSource
}

// NewSelector creates a selector. A nil source uses the process generator.
func NewSelector(rng RandomSource) *Selector {
	if rng == nil {
		rng = processSource{}
	}
	return &Selector{rng: rng}
}

// Select filters d by c and draws one candidate with probability
// proportional to its weight. A single candidate is returned without
// sampling.
func (s *Selector) Select(d Directory, c Criteria) (Relay, error) {
	return s.Choose(d.Filter(c))
}

// Choose draws one of candidates, skipping the draw when there is only one.
// A lone candidate is returned whatever its weight.
func (s *Selector) Choose(candidates []Relay) (Relay, error) {
	switch len(candidates) {
	case 0:
		return Relay{}, ErrNoMatch
	case 1:
		return candidates[0], nil
	}
	return s.Pick(candidates)
}

// Pick performs the weighted draw. Zero-weight relays are never chosen.
func (s *Selector) Pick(candidates []Relay) (Relay, error) {
	if len(candidates) == 0 {
		return Relay{}, ErrNoMatch
	}

	var total uint64
	for _, r := range candidates {
		sum, carry := bits.Add64(total, r.Weight, 0)
		if carry != 0 {
			return Relay{}, fmt.Errorf("%w: total weight of %d candidates overflows", ErrInvalidWeights, len(candidates))
		}
		total = sum
	}
	if total == 0 {
		return Relay{}, fmt.Errorf("%w (%d candidates)", ErrInvalidWeights, len(candidates))
	}

	target := s.rng.Uint64N(total)
	var cumulative uint64
	for _, r := range candidates {
		cumulative += r.Weight
		if target < cumulative {
			return r, nil
		}
	}
	// unreachable: target < total == final cumulative
	return candidates[len(candidates)-1], nil
}

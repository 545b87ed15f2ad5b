package random

import (
	"math/rand"
	"time"
)

// Source is the single generator a run draws from. Seeding it pins every
// selection, delay and coin flip of the run, which keeps simulated runs
// reproducible. Not safe for concurrent draws, the attrition loop owns it.
type Source struct {
	seed int64
	rng  *rand.Rand
}

// NewSource returns a generator seeded with the given value
func NewSource(seed int64) *Source {
	return &Source{
		seed: seed,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// TimeSeeded returns a generator for live runs, where reproducibility is not
// expected
func TimeSeeded() *Source {
	return NewSource(time.Now().UnixNano())
}

// Seed returns the value the source was seeded with
func (s *Source) Seed() int64 {
	return s.seed
}

// Float64 returns the next draw in [0.0, 1.0)
func (s *Source) Float64() float64 {
	return s.rng.Float64()
}

// Shuffle pseudo-randomizes the order of n elements through swap
func (s *Source) Shuffle(n int, swap func(i, j int)) {
	s.rng.Shuffle(n, swap)
}

// DurationUpTo returns a random duration in [0, max)
func (s *Source) DurationUpTo(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(s.rng.Float64() * float64(max))
}

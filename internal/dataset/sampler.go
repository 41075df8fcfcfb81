package dataset

import (
	"math/rand"

	"github.com/pkg/errors"
)

// Sampler draws sample indices uniformly with replacement.
type Sampler struct {
	rng *rand.Rand
	n   int
}

// NewSampler returns a sampler over [0, n). A zero seed selects 42.
func NewSampler(n int, seed int64) (*Sampler, error) {
	if n <= 0 {
		return nil, errors.New("sampler: empty set")
	}
	if seed == 0 {
		seed = 42
	}
	return &Sampler{rng: rand.New(rand.NewSource(seed)), n: n}, nil
}

// Next returns the next sample index.
func (s *Sampler) Next() int {
	return s.rng.Intn(s.n)
}

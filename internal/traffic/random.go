package traffic

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Random is a goroutine-safe, seedable random source shared by the
// resolver and context deriver.
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom returns a source seeded with seed. A zero seed draws one from the clock.
func NewRandom(seed int64) *Random {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Random{rng: rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))}
}

// Float64 returns a value in [0, 1).
func (r *Random) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

// Uniform returns a value in [lo, hi).
func (r *Random) Uniform(lo, hi float64) float64 {
	return lo + r.Float64()*(hi-lo)
}

// Bernoulli returns true with probability p.
func (r *Random) Bernoulli(p float64) bool {
	return r.Float64() < p
}

package provider

import (
	"context"
	"math/rand"
	"sync"
)

// Fixed always returns the same message. Useful for wiring tests and
// for users who just want a canned greeting on a hotkey.
type Fixed struct {
	Message string
}

// Name implements Provider.
func (f *Fixed) Name() string { return "fixed" }

// Generate implements Provider.
func (f *Fixed) Generate(ctx context.Context, req Request) (Reply, error) {
	return Reply{Text: f.Message}, nil
}

// Random picks a message from a configured list.
type Random struct {
	Messages []string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom creates a Random provider seeded from seed, or the global
// source when seed is zero.
func NewRandom(messages []string, seed int64) *Random {
	r := &Random{Messages: messages}
	if seed != 0 {
		r.rng = rand.New(rand.NewSource(seed))
	}
	return r
}

// Name implements Provider.
func (r *Random) Name() string { return "random" }

// Generate implements Provider.
func (r *Random) Generate(ctx context.Context, req Request) (Reply, error) {
	if len(r.Messages) == 0 {
		return Reply{}, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var i int
	if r.rng != nil {
		i = r.rng.Intn(len(r.Messages))
	} else {
		i = rand.Intn(len(r.Messages))
	}
	return Reply{Text: r.Messages[i]}, nil
}

var (
	_ Provider = (*Fixed)(nil)
	_ Provider = (*Random)(nil)
)

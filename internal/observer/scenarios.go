package observer

import (
	"context"
	"math/rand"
	"sync"
)

// DefaultScenarios are coarse match situations used when no capture
// pipeline is configured. They keep generated messages varied without
// any screen access.
var DefaultScenarios = []string{
	"We just won the round comfortably.",
	"We lost the round but it was close.",
	"We got destroyed this round.",
	"A teammate just clutched a 1v3.",
	"Someone on our team failed a 1v1.",
	"The match just started.",
	"It's match point for us.",
	"It's match point for the enemy.",
	"A teammate accidentally team-killed.",
	"The enemy team is trash talking.",
	"It's quiet, nobody is talking.",
	"We are rushing the objective.",
	"We are camping the objective.",
	"A teammate is AFK.",
	"Someone made a funny mistake.",
}

// Scenarios returns a random entry from a fixed situation list.
type Scenarios struct {
	list []string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewScenarios creates a scenario observer. An empty list falls back
// to DefaultScenarios. A non-zero seed makes selection deterministic.
func NewScenarios(list []string, seed int64) *Scenarios {
	if len(list) == 0 {
		list = DefaultScenarios
	}
	s := &Scenarios{list: list}
	if seed != 0 {
		s.rng = rand.New(rand.NewSource(seed))
	}
	return s
}

// Context implements Observer.
func (s *Scenarios) Context(ctx context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rng != nil {
		return s.list[s.rng.Intn(len(s.list))]
	}
	return s.list[rand.Intn(len(s.list))]
}

var _ Observer = (*Scenarios)(nil)

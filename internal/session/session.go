// Package session holds the controller's working state as an immutable
// snapshot behind an atomic pointer. Only the controller's consumer
// loop writes; the diagnostics server and metrics read concurrently and
// can never observe a half-applied update.
package session

import (
	"sync/atomic"
	"time"
)

// Persona is one selectable voice for generated messages.
type Persona struct {
	Name  string `koanf:"name" json:"name"`
	Style string `koanf:"style" json:"style"`
}

// Snapshot is one immutable view of the session. Mutating operations
// produce a new snapshot; the Personas slice must never be modified
// after the snapshot is published.
type Snapshot struct {
	Personas     []Persona
	PersonaIndex int
	Language     string
	DryRun       bool
	CacheEnabled bool
	LastEventAt  time.Time
}

// Persona returns the currently selected persona, or a zero Persona if
// none are configured.
func (s Snapshot) Persona() Persona {
	if len(s.Personas) == 0 {
		return Persona{}
	}
	return s.Personas[s.PersonaIndex]
}

// State is the atomically swappable session container.
type State struct {
	cur atomic.Pointer[Snapshot]
}

// New creates session state from an initial snapshot. A persona index
// out of range is clamped to zero.
func New(snap Snapshot) *State {
	if snap.PersonaIndex < 0 || snap.PersonaIndex >= len(snap.Personas) {
		snap.PersonaIndex = 0
	}
	st := &State{}
	st.cur.Store(&snap)
	return st
}

// Current returns the live snapshot.
func (s *State) Current() Snapshot {
	return *s.cur.Load()
}

// CycleNext advances the persona selection, wrapping at the end, and
// returns the newly selected persona. Pure state mutation, no I/O.
func (s *State) CycleNext() Persona {
	return s.cycle(1)
}

// CyclePrevious retreats the persona selection, wrapping at the start.
func (s *State) CyclePrevious() Persona {
	return s.cycle(-1)
}

func (s *State) cycle(delta int) Persona {
	snap := *s.cur.Load()
	if n := len(snap.Personas); n > 0 {
		snap.PersonaIndex = ((snap.PersonaIndex+delta)%n + n) % n
	}
	s.cur.Store(&snap)
	return snap.Persona()
}

// Touch records the time the consumer last handled an event.
func (s *State) Touch(t time.Time) {
	snap := *s.cur.Load()
	snap.LastEventAt = t
	s.cur.Store(&snap)
}

// Reload swaps in a new persona list, keeping the current selection if
// a persona with the same name still exists, otherwise falling back to
// the first persona. An empty list keeps the previous snapshot so the
// controller is never left without a persona; the caller decides
// whether to log that. Returns true if the list was applied.
func (s *State) Reload(personas []Persona) bool {
	if len(personas) == 0 {
		return false
	}
	snap := *s.cur.Load()
	selected := snap.Persona().Name

	idx := 0
	for i, p := range personas {
		if p.Name == selected {
			idx = i
			break
		}
	}
	snap.Personas = personas
	snap.PersonaIndex = idx
	s.cur.Store(&snap)
	return true
}

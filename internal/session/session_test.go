package session

import (
	"testing"
	"time"
)

func twoPersonas() []Persona {
	return []Persona{
		{Name: "Toxic", Style: "salty and sarcastic"},
		{Name: "Hype", Style: "relentlessly positive"},
	}
}

func TestCycleWraps(t *testing.T) {
	st := New(Snapshot{Personas: twoPersonas()})

	// Three CycleNext over two personas: 0 -> 1 -> 0 -> 1.
	names := []string{"Hype", "Toxic", "Hype"}
	for i, want := range names {
		if got := st.CycleNext(); got.Name != want {
			t.Errorf("cycle %d: got %s, want %s", i, got.Name, want)
		}
	}

	if got := st.CyclePrevious(); got.Name != "Toxic" {
		t.Errorf("CyclePrevious: got %s, want Toxic", got.Name)
	}
	// Wrap backwards from index 0.
	if got := st.CyclePrevious(); got.Name != "Hype" {
		t.Errorf("CyclePrevious wrap: got %s, want Hype", got.Name)
	}
}

func TestCycleEmptyPersonas(t *testing.T) {
	st := New(Snapshot{})
	if got := st.CycleNext(); got.Name != "" {
		t.Errorf("CycleNext on empty personas returned %q", got.Name)
	}
}

func TestReloadPreservesSelection(t *testing.T) {
	st := New(Snapshot{Personas: twoPersonas()})
	st.CycleNext() // select Hype

	reordered := []Persona{
		{Name: "Chill", Style: "laid back"},
		{Name: "Hype", Style: "rewritten style"},
	}
	if !st.Reload(reordered) {
		t.Fatal("Reload rejected a non-empty persona list")
	}

	cur := st.Current()
	if cur.Persona().Name != "Hype" {
		t.Errorf("selected persona after reload = %s, want Hype", cur.Persona().Name)
	}
	if cur.Persona().Style != "rewritten style" {
		t.Errorf("persona style not refreshed: %s", cur.Persona().Style)
	}
}

func TestReloadFallsBackToFirst(t *testing.T) {
	st := New(Snapshot{Personas: twoPersonas()})
	st.CycleNext() // select Hype

	replaced := []Persona{{Name: "Zen", Style: "calm"}}
	st.Reload(replaced)

	if got := st.Current().Persona().Name; got != "Zen" {
		t.Errorf("persona after removal = %s, want Zen", got)
	}
}

func TestReloadRejectsEmptyList(t *testing.T) {
	st := New(Snapshot{Personas: twoPersonas()})
	if st.Reload(nil) {
		t.Error("Reload accepted an empty persona list")
	}
	if got := len(st.Current().Personas); got != 2 {
		t.Errorf("personas after rejected reload = %d, want 2", got)
	}
}

func TestTouch(t *testing.T) {
	st := New(Snapshot{Personas: twoPersonas()})
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st.Touch(at)
	if got := st.Current().LastEventAt; !got.Equal(at) {
		t.Errorf("LastEventAt = %v, want %v", got, at)
	}
}

func TestNewClampsIndex(t *testing.T) {
	st := New(Snapshot{Personas: twoPersonas(), PersonaIndex: 7})
	if got := st.Current().PersonaIndex; got != 0 {
		t.Errorf("out-of-range index clamped to %d, want 0", got)
	}
}

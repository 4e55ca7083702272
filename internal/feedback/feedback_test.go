package feedback

import (
	"testing"
	"time"
)

type beepCall struct {
	freq float64
	dur  time.Duration
}

type fakeBeeper struct {
	calls []beepCall
}

func (f *fakeBeeper) Beep(freq float64, d time.Duration) {
	f.calls = append(f.calls, beepCall{freq, d})
}

func TestTones(t *testing.T) {
	b := &fakeBeeper{}
	tones := NewTones(b)

	tones.Success()
	tones.Failure()
	tones.PersonaSwitch(2)

	want := []beepCall{
		{1000, 150 * time.Millisecond},
		{400, 500 * time.Millisecond},
		{700, 200 * time.Millisecond},
	}
	if len(b.calls) != len(want) {
		t.Fatalf("got %d beeps, want %d", len(b.calls), len(want))
	}
	for i, w := range want {
		if b.calls[i] != w {
			t.Errorf("beep %d = %+v, want %+v", i, b.calls[i], w)
		}
	}
}

func TestPersonaSwitchPitchCapped(t *testing.T) {
	b := &fakeBeeper{}
	NewTones(b).PersonaSwitch(100)
	if got := b.calls[0].freq; got != 3000 {
		t.Errorf("capped frequency = %v, want 3000", got)
	}
}

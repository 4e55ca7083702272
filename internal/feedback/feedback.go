// Package feedback gives the user a best-effort audible cue about what
// the assistant just did. Failures here are swallowed; a missed beep
// must never affect a dispatch.
package feedback

import (
	"log/slog"
	"time"
)

// Signaler emits user-facing cues for dispatch outcomes.
type Signaler interface {
	Success()
	Failure()
	PersonaSwitch(index int)
}

// Beeper plays a tone; *audio.Output satisfies it.
type Beeper interface {
	Beep(freq float64, d time.Duration)
}

// Tones maps outcomes to distinguishable pitches: a short high tone
// for success, a long low tone for failure, and a per-persona pitch so
// cycling is audible without looking away from the game.
type Tones struct {
	beeper Beeper
}

// NewTones creates an audible signaler.
func NewTones(beeper Beeper) *Tones {
	return &Tones{beeper: beeper}
}

// Success implements Signaler.
func (t *Tones) Success() {
	t.beeper.Beep(1000, 150*time.Millisecond)
}

// Failure implements Signaler.
func (t *Tones) Failure() {
	t.beeper.Beep(400, 500*time.Millisecond)
}

// PersonaSwitch implements Signaler. The pitch rises with the persona
// index, capped before it gets painful.
func (t *Tones) PersonaSwitch(index int) {
	freq := 400 + float64(index)*150
	if freq > 3000 {
		freq = 3000
	}
	t.beeper.Beep(freq, 200*time.Millisecond)
}

// Log is the fallback signaler for hosts without an audio device.
type Log struct {
	Logger *slog.Logger
}

// Success implements Signaler.
func (l Log) Success() { l.logger().Info("feedback", slog.String("signal", "success")) }

// Failure implements Signaler.
func (l Log) Failure() { l.logger().Info("feedback", slog.String("signal", "failure")) }

// PersonaSwitch implements Signaler.
func (l Log) PersonaSwitch(index int) {
	l.logger().Info("feedback", slog.String("signal", "persona_switch"), slog.Int("index", index))
}

func (l Log) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

var (
	_ Signaler = (*Tones)(nil)
	_ Signaler = Log{}
)

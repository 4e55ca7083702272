// Package audio owns the process-wide playback context. oto permits a
// single context per process, so the speech player and the feedback
// beeper share this one output.
package audio

import (
	"bytes"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/ebitengine/oto/v3"
)

// DefaultSampleRate matches the PCM format requested from the speech
// backend, so synthesized audio plays without resampling.
const DefaultSampleRate = 24000

// Output plays 16-bit little-endian mono PCM.
type Output struct {
	ctx        *oto.Context
	sampleRate int
	logger     *slog.Logger
}

// New initializes the audio device. Call once per process.
func New(sampleRate int, logger *slog.Logger) (*Output, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("open audio device: %w", err)
	}
	<-ready

	return &Output{ctx: ctx, sampleRate: sampleRate, logger: logger}, nil
}

// SampleRate reports the context's fixed sample rate.
func (o *Output) SampleRate() int { return o.sampleRate }

// Play renders pcm to completion and returns any device error.
func (o *Output) Play(pcm []byte) error {
	p := o.ctx.NewPlayer(bytes.NewReader(pcm))
	p.Play()
	for p.IsPlaying() {
		time.Sleep(10 * time.Millisecond)
	}
	return p.Close()
}

// Beep plays a synthesized tone without blocking the caller. Errors
// are logged and swallowed; feedback is best-effort.
func (o *Output) Beep(freq float64, d time.Duration) {
	pcm := Tone(o.sampleRate, freq, d)
	go func() {
		if err := o.Play(pcm); err != nil {
			o.logger.Debug("beep playback failed", slog.String("error", err.Error()))
		}
	}()
}

// Tone synthesizes a sine wave as 16-bit LE mono PCM.
func Tone(sampleRate int, freq float64, d time.Duration) []byte {
	n := int(float64(sampleRate) * d.Seconds())
	out := make([]byte, n*2)
	const amplitude = 0.3 * math.MaxInt16
	for i := 0; i < n; i++ {
		v := int16(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
	return out
}

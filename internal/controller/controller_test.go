package controller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/banterworks/banterbot/internal/cache"
	"github.com/banterworks/banterbot/internal/event"
	"github.com/banterworks/banterbot/internal/metrics"
	"github.com/banterworks/banterbot/internal/provider"
	"github.com/banterworks/banterbot/internal/session"
)

type fakeProvider struct {
	mu       sync.Mutex
	reply    provider.Reply
	err      error
	requests []provider.Request
	block    chan struct{} // when non-nil, Generate waits on it
	resets   int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(ctx context.Context, req provider.Request) (provider.Reply, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return provider.Reply{}, ctx.Err()
		}
	}
	if f.err != nil {
		return provider.Reply{}, f.err
	}
	return f.reply, nil
}

func (f *fakeProvider) ResetHistory() {
	f.mu.Lock()
	f.resets++
	f.mu.Unlock()
}

func (f *fakeProvider) calls() []provider.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]provider.Request(nil), f.requests...)
}

type fakeTyper struct {
	mu    sync.Mutex
	sent  []string
	drys  []bool
	err   error
	calls chan struct{}
}

func (f *fakeTyper) Send(ctx context.Context, text string, dryRun bool) error {
	f.mu.Lock()
	f.sent = append(f.sent, text)
	f.drys = append(f.drys, dryRun)
	f.mu.Unlock()
	if f.calls != nil {
		f.calls <- struct{}{}
	}
	return f.err
}

func (f *fakeTyper) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type fakeRecorder struct {
	mu      sync.Mutex
	samples []metrics.Sample
	done    chan struct{} // signaled on every Record
}

func (f *fakeRecorder) Record(s metrics.Sample) {
	f.mu.Lock()
	f.samples = append(f.samples, s)
	f.mu.Unlock()
	if f.done != nil {
		f.done <- struct{}{}
	}
}

func (f *fakeRecorder) Close() error { return nil }

func (f *fakeRecorder) all() []metrics.Sample {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]metrics.Sample(nil), f.samples...)
}

type fakeSignaler struct {
	mu        sync.Mutex
	successes int
	failures  int
	switches  []int
}

func (f *fakeSignaler) Success() {
	f.mu.Lock()
	f.successes++
	f.mu.Unlock()
}

func (f *fakeSignaler) Failure() {
	f.mu.Lock()
	f.failures++
	f.mu.Unlock()
}

func (f *fakeSignaler) PersonaSwitch(index int) {
	f.mu.Lock()
	f.switches = append(f.switches, index)
	f.mu.Unlock()
}

type blockingObserver struct{}

func (blockingObserver) Context(ctx context.Context) string {
	<-ctx.Done()
	return ""
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPersonas() []session.Persona {
	return []session.Persona{
		{Name: "Toxic", Style: "salty"},
		{Name: "Hype", Style: "loud"},
	}
}

func newState(dryRun bool) *session.State {
	return session.New(session.Snapshot{
		Personas:     testPersonas(),
		Language:     "en",
		DryRun:       dryRun,
		CacheEnabled: true,
	})
}

// runController starts Run in a goroutine and returns a stop function
// that publishes Shutdown and waits for the loop to exit.
func runController(t *testing.T, c *Controller, bus *event.Bus) func() {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()
	return func() {
		bus.Publish(event.New(event.Shutdown))
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run() error = %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("controller did not stop")
		}
	}
}

func TestDispatchMissThenHit(t *testing.T) {
	bus := event.NewBus(testLogger())
	prov := &fakeProvider{reply: provider.Reply{Text: "gg ez", PromptTokens: 12, CompletionTokens: 3}}
	typer := &fakeTyper{}
	rec := &fakeRecorder{done: make(chan struct{}, 8)}

	c := New(bus, newState(false), prov,
		WithCache(cache.NewMemory(), time.Hour),
		WithTyper(typer),
		WithMetrics(rec),
		WithLogger(testLogger()))
	stop := runController(t, c, bus)
	defer stop()

	bus.Publish(event.New(event.TriggerPrimary))
	<-rec.done
	bus.Publish(event.New(event.TriggerPrimary))
	<-rec.done

	if got := prov.calls(); len(got) != 1 {
		t.Fatalf("provider called %d times, want 1", len(got))
	}
	msgs := typer.messages()
	if len(msgs) != 2 || msgs[0] != "gg ez" || msgs[1] != "gg ez" {
		t.Fatalf("typer sent %v, want [gg ez gg ez]", msgs)
	}

	samples := rec.all()
	if samples[0].CacheStatus != metrics.CacheMiss {
		t.Errorf("first sample cache status = %s, want miss", samples[0].CacheStatus)
	}
	if samples[1].CacheStatus != metrics.CacheHit {
		t.Errorf("second sample cache status = %s, want hit", samples[1].CacheStatus)
	}
	for _, s := range samples {
		if s.Outcome != metrics.OutcomeSuccess {
			t.Errorf("sample outcome = %s, want success", s.Outcome)
		}
		if s.Persona != "Toxic" {
			t.Errorf("sample persona = %q, want Toxic", s.Persona)
		}
	}
}

func TestPersonaCycleWraps(t *testing.T) {
	bus := event.NewBus(testLogger())
	prov := &fakeProvider{}
	sig := &fakeSignaler{}
	state := newState(false)

	c := New(bus, state, prov,
		WithFeedback(sig),
		WithLogger(testLogger()))
	stop := runController(t, c, bus)

	bus.Publish(event.New(event.CycleNext))
	bus.Publish(event.New(event.CycleNext))
	bus.Publish(event.New(event.CycleNext))
	stop()

	if got := state.Current().PersonaIndex; got != 1 {
		t.Errorf("persona index = %d, want 1 after three cycles over two personas", got)
	}
	if len(prov.calls()) != 0 {
		t.Error("persona cycling must not call the provider")
	}
	sig.mu.Lock()
	switches := append([]int(nil), sig.switches...)
	sig.mu.Unlock()
	if len(switches) != 3 {
		t.Errorf("persona switch signaled %d times, want 3", len(switches))
	}
	prov.mu.Lock()
	resets := prov.resets
	prov.mu.Unlock()
	if resets != 3 {
		t.Errorf("history reset %d times, want 3", resets)
	}
}

func TestReloadFallsBackWhenPersonaRemoved(t *testing.T) {
	bus := event.NewBus(testLogger())
	prov := &fakeProvider{}
	state := newState(false)

	replacement := []session.Persona{{Name: "Zen", Style: "calm"}}
	c := New(bus, state, prov,
		WithReload(func() ([]session.Persona, error) { return replacement, nil }),
		WithLogger(testLogger()))
	stop := runController(t, c, bus)

	bus.Publish(event.New(event.ConfigReloaded))
	stop()

	snap := state.Current()
	if snap.Persona().Name != "Zen" {
		t.Errorf("persona after reload = %q, want Zen", snap.Persona().Name)
	}
	if snap.PersonaIndex != 0 {
		t.Errorf("persona index after reload = %d, want 0", snap.PersonaIndex)
	}
}

func TestReloadErrorKeepsPersonas(t *testing.T) {
	bus := event.NewBus(testLogger())
	state := newState(false)

	c := New(bus, state, &fakeProvider{},
		WithReload(func() ([]session.Persona, error) { return nil, errors.New("boom") }),
		WithLogger(testLogger()))
	stop := runController(t, c, bus)

	bus.Publish(event.New(event.ConfigReloaded))
	stop()

	if got := len(state.Current().Personas); got != 2 {
		t.Errorf("persona count after failed reload = %d, want 2", got)
	}
}

func TestProviderFailureSignalsAndRecords(t *testing.T) {
	bus := event.NewBus(testLogger())
	prov := &fakeProvider{err: errors.New("rate limited")}
	typer := &fakeTyper{}
	rec := &fakeRecorder{done: make(chan struct{}, 8)}
	sig := &fakeSignaler{}

	c := New(bus, newState(false), prov,
		WithTyper(typer),
		WithMetrics(rec),
		WithFeedback(sig),
		WithLogger(testLogger()))
	stop := runController(t, c, bus)
	defer stop()

	bus.Publish(event.New(event.TriggerPrimary))
	<-rec.done

	if len(typer.messages()) != 0 {
		t.Error("output must not run after a provider failure")
	}
	samples := rec.all()
	if samples[0].Outcome != metrics.OutcomeFailed {
		t.Errorf("sample outcome = %s, want failed", samples[0].Outcome)
	}
	sig.mu.Lock()
	failures := sig.failures
	sig.mu.Unlock()
	if failures != 1 {
		t.Errorf("failure signaled %d times, want 1", failures)
	}
}

func TestDryRunPurity(t *testing.T) {
	bus := event.NewBus(testLogger())
	prov := &fakeProvider{reply: provider.Reply{Text: "canned"}}
	typer := &fakeTyper{}
	rec := &fakeRecorder{done: make(chan struct{}, 8)}
	mem := cache.NewMemory()

	c := New(bus, newState(true), prov,
		WithCache(mem, time.Hour),
		WithTyper(typer),
		WithMetrics(rec),
		WithLogger(testLogger()))
	stop := runController(t, c, bus)
	defer stop()

	bus.Publish(event.New(event.TriggerPrimary))
	<-rec.done

	calls := prov.calls()
	if len(calls) != 1 || !calls[0].DryRun {
		t.Fatalf("provider calls = %+v, want one dry-run request", calls)
	}
	typer.mu.Lock()
	drys := append([]bool(nil), typer.drys...)
	typer.mu.Unlock()
	if len(drys) != 1 || !drys[0] {
		t.Fatalf("typer dry flags = %v, want [true]", drys)
	}
	if stats := mem.Stats(); stats.Valid != 0 {
		t.Errorf("cache holds %d entries after dry-run, want 0", stats.Valid)
	}
	samples := rec.all()
	if samples[0].CacheStatus != metrics.CacheBypassed {
		t.Errorf("dry-run cache status = %s, want bypassed", samples[0].CacheStatus)
	}
	if !samples[0].DryRun {
		t.Error("sample not marked dry-run")
	}
}

func TestObserverTimeoutDegradesToEmptyContext(t *testing.T) {
	bus := event.NewBus(testLogger())
	prov := &fakeProvider{reply: provider.Reply{Text: "still here"}}
	typer := &fakeTyper{}
	rec := &fakeRecorder{done: make(chan struct{}, 8)}

	c := New(bus, newState(false), prov,
		WithObserver(blockingObserver{}, 50*time.Millisecond),
		WithTyper(typer),
		WithMetrics(rec),
		WithLogger(testLogger()))
	stop := runController(t, c, bus)
	defer stop()

	bus.Publish(event.New(event.TriggerPrimary))
	<-rec.done

	calls := prov.calls()
	if len(calls) != 1 {
		t.Fatalf("provider called %d times, want 1", len(calls))
	}
	if calls[0].Context != "" {
		t.Errorf("provider context = %q, want empty after observer timeout", calls[0].Context)
	}
	if rec.all()[0].Outcome != metrics.OutcomeSuccess {
		t.Error("dispatch should succeed despite observer timeout")
	}
}

func TestVoiceTriggerUsesSpeechPath(t *testing.T) {
	bus := event.NewBus(testLogger())
	prov := &fakeProvider{reply: provider.Reply{Text: "hold this angle"}}
	typer := &fakeTyper{}
	rec := &fakeRecorder{done: make(chan struct{}, 8)}

	var synthesized []string
	var played [][]byte
	var mu sync.Mutex
	synth := synthFunc(func(ctx context.Context, text string, dryRun bool) ([]byte, error) {
		mu.Lock()
		synthesized = append(synthesized, text)
		mu.Unlock()
		return []byte{1, 2, 3}, nil
	})
	player := playFunc(func(pcm []byte) error {
		mu.Lock()
		played = append(played, pcm)
		mu.Unlock()
		return nil
	})

	c := New(bus, newState(false), prov,
		WithTyper(typer),
		WithSpeech(synth, player),
		WithMetrics(rec),
		WithLogger(testLogger()))
	stop := runController(t, c, bus)
	defer stop()

	bus.Publish(event.New(event.TriggerSecondary))
	<-rec.done

	calls := prov.calls()
	if len(calls) != 1 || calls[0].Mode != provider.ModeVoice {
		t.Fatalf("provider calls = %+v, want one voice-mode request", calls)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(synthesized) != 1 || synthesized[0] != "hold this angle" {
		t.Errorf("synthesized = %v", synthesized)
	}
	if len(played) != 1 {
		t.Errorf("played %d buffers, want 1", len(played))
	}
	if len(typer.messages()) != 0 {
		t.Error("voice trigger must not use the typer")
	}
}

type synthFunc func(ctx context.Context, text string, dryRun bool) ([]byte, error)

func (f synthFunc) Synthesize(ctx context.Context, text string, dryRun bool) ([]byte, error) {
	return f(ctx, text, dryRun)
}

type playFunc func(pcm []byte) error

func (f playFunc) Play(pcm []byte) error { return f(pcm) }

func TestSingleFlight(t *testing.T) {
	bus := event.NewBus(testLogger())
	release := make(chan struct{})
	prov := &fakeProvider{reply: provider.Reply{Text: "slow"}, block: release}
	rec := &fakeRecorder{done: make(chan struct{}, 8)}

	c := New(bus, newState(false), prov,
		WithTyper(&fakeTyper{}),
		WithMetrics(rec),
		WithLogger(testLogger()))
	stop := runController(t, c, bus)
	defer stop()

	bus.Publish(event.New(event.TriggerPrimary))
	bus.Publish(event.New(event.TriggerPrimary))

	// The first dispatch is parked inside Generate. The second trigger
	// must not have reached the provider yet.
	deadline := time.After(2 * time.Second)
	for {
		if len(prov.calls()) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected one in-flight provider call, got %d", len(prov.calls()))
		case <-time.After(10 * time.Millisecond):
		}
	}
	time.Sleep(100 * time.Millisecond)
	if got := len(prov.calls()); got != 1 {
		t.Fatalf("second dispatch started before first finished: %d provider calls", got)
	}

	close(release)
	<-rec.done
	<-rec.done

	if got := len(prov.calls()); got != 2 {
		t.Fatalf("provider called %d times, want 2", got)
	}
}

func TestOutputFailureDoesNotRegenerate(t *testing.T) {
	bus := event.NewBus(testLogger())
	prov := &fakeProvider{reply: provider.Reply{Text: "gg"}}
	typer := &fakeTyper{err: errors.New("window not focused")}
	rec := &fakeRecorder{done: make(chan struct{}, 8)}
	mem := cache.NewMemory()

	c := New(bus, newState(false), prov,
		WithCache(mem, time.Hour),
		WithTyper(typer),
		WithMetrics(rec),
		WithLogger(testLogger()))
	stop := runController(t, c, bus)
	defer stop()

	bus.Publish(event.New(event.TriggerPrimary))
	<-rec.done

	if got := len(prov.calls()); got != 1 {
		t.Fatalf("provider called %d times, want 1", got)
	}
	if rec.all()[0].Outcome != metrics.OutcomeFailed {
		t.Error("output failure should record a failed outcome")
	}
	// The generated text stays cached for the next trigger.
	if stats := mem.Stats(); stats.Valid != 1 {
		t.Errorf("cache holds %d entries, want 1", stats.Valid)
	}
}

func TestTriggerWithoutPersonasIsSkipped(t *testing.T) {
	bus := event.NewBus(testLogger())
	prov := &fakeProvider{reply: provider.Reply{Text: "gg"}}
	typer := &fakeTyper{}
	rec := &fakeRecorder{done: make(chan struct{}, 8)}
	sig := &fakeSignaler{}
	state := session.New(session.Snapshot{Language: "en", CacheEnabled: true})

	c := New(bus, state, prov,
		WithTyper(typer),
		WithMetrics(rec),
		WithFeedback(sig),
		WithLogger(testLogger()))
	stop := runController(t, c, bus)
	defer stop()

	bus.Publish(event.New(event.TriggerPrimary))
	<-rec.done

	if len(prov.calls()) != 0 {
		t.Error("provider must not run without a persona")
	}
	if len(typer.messages()) != 0 {
		t.Error("typer must not run without a persona")
	}
	if got := rec.all()[0].Outcome; got != metrics.OutcomeSkipped {
		t.Errorf("sample outcome = %s, want skipped", got)
	}
	sig.mu.Lock()
	defer sig.mu.Unlock()
	if sig.successes != 0 || sig.failures != 0 {
		t.Errorf("feedback signaled (%d success, %d failure), want silence",
			sig.successes, sig.failures)
	}
}

func TestExternalCancellationClosesBus(t *testing.T) {
	bus := event.NewBus(testLogger())
	c := New(bus, newState(false), &fakeProvider{}, WithLogger(testLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() after cancellation = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("controller did not stop on cancellation")
	}

	// Cancellation is a terminal state: the bus is closed and late
	// publishes are dropped, same as an explicit shutdown event.
	bus.Publish(event.New(event.TriggerPrimary))
	if got := bus.Len(); got != 0 {
		t.Errorf("bus queued %d events after cancellation, want 0", got)
	}
	if _, err := bus.Consume(context.Background()); !errors.Is(err, event.ErrClosed) {
		t.Errorf("Consume after cancellation error = %v, want ErrClosed", err)
	}
}

func TestShutdownClosesBus(t *testing.T) {
	bus := event.NewBus(testLogger())
	c := New(bus, newState(false), &fakeProvider{}, WithLogger(testLogger()))

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	bus.Publish(event.New(event.Shutdown))
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("controller did not stop")
	}

	if _, err := bus.Consume(context.Background()); !errors.Is(err, event.ErrClosed) {
		t.Errorf("Consume after shutdown error = %v, want ErrClosed", err)
	}
}

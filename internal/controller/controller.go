// Package controller owns the single consumer loop of the event bus
// and the per-event dispatch pipelines. Exactly one dispatch runs at a
// time; producers never touch session state or collaborators directly.
package controller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/banterworks/banterbot/internal/cache"
	"github.com/banterworks/banterbot/internal/event"
	"github.com/banterworks/banterbot/internal/feedback"
	"github.com/banterworks/banterbot/internal/metrics"
	"github.com/banterworks/banterbot/internal/observer"
	"github.com/banterworks/banterbot/internal/output"
	"github.com/banterworks/banterbot/internal/provider"
	"github.com/banterworks/banterbot/internal/session"
	"github.com/banterworks/banterbot/internal/tokens"
)

const (
	defaultObserverTimeout = 2 * time.Second
	defaultProviderTimeout = 10 * time.Second
)

// ReloadFunc supplies a fresh persona list when a ConfigReloaded event
// arrives. Returning an error keeps the current personas.
type ReloadFunc func() ([]session.Persona, error)

// Controller consumes events and runs the dispatch pipeline. Session
// state and the cache are touched only from Run's goroutine, so they
// need no locking here.
type Controller struct {
	bus      *event.Bus
	state    *session.State
	provider provider.Provider

	observer        observer.Observer
	observerTimeout time.Duration
	providerTimeout time.Duration

	cache    cache.Cache
	cacheTTL time.Duration

	typer  output.Typer
	speech output.Synthesizer
	player output.Player

	recorder metrics.Recorder
	signaler feedback.Signaler
	counter  *tokens.Counter
	reload   ReloadFunc

	logger *slog.Logger
	tracer trace.Tracer
}

// Option customizes a Controller.
type Option func(*Controller)

// WithObserver sets the context source for trigger dispatches.
func WithObserver(o observer.Observer, timeout time.Duration) Option {
	return func(c *Controller) {
		c.observer = o
		if timeout > 0 {
			c.observerTimeout = timeout
		}
	}
}

// WithProviderTimeout bounds each provider call.
func WithProviderTimeout(timeout time.Duration) Option {
	return func(c *Controller) {
		if timeout > 0 {
			c.providerTimeout = timeout
		}
	}
}

// WithCache enables response caching with the given TTL.
func WithCache(ca cache.Cache, ttl time.Duration) Option {
	return func(c *Controller) {
		c.cache = ca
		if ttl > 0 {
			c.cacheTTL = ttl
		}
	}
}

// WithTyper sets the text output sink.
func WithTyper(t output.Typer) Option {
	return func(c *Controller) { c.typer = t }
}

// WithSpeech sets the voice output pair. A nil player skips playback
// while still exercising synthesis.
func WithSpeech(s output.Synthesizer, p output.Player) Option {
	return func(c *Controller) {
		c.speech = s
		c.player = p
	}
}

// WithMetrics sets the dispatch sample recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithFeedback sets the user-facing outcome signaler.
func WithFeedback(s feedback.Signaler) Option {
	return func(c *Controller) { c.signaler = s }
}

// WithTokenCounter sets the fallback counter used when a provider
// reply carries no usage numbers.
func WithTokenCounter(counter *tokens.Counter) Option {
	return func(c *Controller) { c.counter = counter }
}

// WithReload sets the persona source consulted on ConfigReloaded.
func WithReload(fn ReloadFunc) Option {
	return func(c *Controller) { c.reload = fn }
}

// WithLogger sets the controller's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// New assembles a controller around the bus, session state, and
// provider. Every other collaborator defaults to a no-op.
func New(bus *event.Bus, state *session.State, p provider.Provider, opts ...Option) *Controller {
	c := &Controller{
		bus:             bus,
		state:           state,
		provider:        p,
		observer:        observer.Noop{},
		observerTimeout: defaultObserverTimeout,
		providerTimeout: defaultProviderTimeout,
		cacheTTL:        cache.DefaultTTL,
		typer:           output.DebugTyper{},
		recorder:        metrics.Noop{},
		signaler:        feedback.Log{},
		logger:          slog.Default(),
		tracer:          otel.Tracer("banterbot/controller"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run consumes events until a Shutdown event arrives or ctx is
// canceled. Each event is handled to completion, including its metrics
// record, before the next is dequeued.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("controller started",
		slog.String("provider", c.provider.Name()),
		slog.Bool("cache", c.cache != nil))

	for {
		ev, err := c.bus.Consume(ctx)
		if err != nil {
			// External cancellation and a closed bus both end in the
			// same terminal state: bus closed, loop stopped, clean
			// return. A canceled Ctrl-C context is a normal stop, not
			// an error to escalate.
			c.bus.Close()
			if errors.Is(err, event.ErrClosed) {
				c.logger.Info("event bus closed, controller stopping")
			} else {
				c.logger.Info("controller stopping", slog.String("reason", err.Error()))
			}
			return nil
		}

		c.state.Touch(time.Now())

		switch ev.Kind {
		case event.TriggerPrimary, event.TriggerSecondary:
			c.finish(c.dispatch(ctx, ev))

		case event.CycleNext, event.CyclePrevious:
			c.cyclePersona(ev.Kind)

		case event.ConfigReloaded:
			c.reloadPersonas()

		case event.Shutdown:
			c.logger.Info("shutdown event received")
			c.bus.Close()
			return nil

		default:
			c.logger.Warn("dropping event of unknown kind", slog.String("kind", string(ev.Kind)))
		}
	}
}

// cyclePersona mutates session state only. No I/O besides feedback.
func (c *Controller) cyclePersona(kind event.Kind) {
	var p session.Persona
	if kind == event.CycleNext {
		p = c.state.CycleNext()
	} else {
		p = c.state.CyclePrevious()
	}
	c.resetHistory()

	snap := c.state.Current()
	c.logger.Info("persona switched",
		slog.String("persona", p.Name),
		slog.Int("index", snap.PersonaIndex))
	c.signaler.PersonaSwitch(snap.PersonaIndex)
}

func (c *Controller) reloadPersonas() {
	if c.reload == nil {
		c.logger.Warn("config reloaded but no persona source configured")
		return
	}
	personas, err := c.reload()
	if err != nil {
		c.logger.Error("persona reload failed, keeping current set",
			slog.String("error", err.Error()))
		return
	}
	before := c.state.Current().Persona().Name
	if !c.state.Reload(personas) {
		c.logger.Warn("persona reload produced an empty list, keeping current set")
		return
	}
	after := c.state.Current().Persona().Name
	if after != before {
		c.resetHistory()
	}
	c.logger.Info("personas reloaded",
		slog.Int("count", len(personas)),
		slog.String("selected", after))
}

// resetHistory clears provider conversation memory so one persona's
// register does not bleed into the next.
func (c *Controller) resetHistory() {
	if r, ok := c.provider.(provider.HistoryResetter); ok {
		r.ResetHistory()
	}
}

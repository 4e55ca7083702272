package controller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/banterworks/banterbot/internal/cache"
	"github.com/banterworks/banterbot/internal/event"
	"github.com/banterworks/banterbot/internal/metrics"
	"github.com/banterworks/banterbot/internal/provider"
)

// dispatch runs the full pipeline for one trigger event: context
// gather, cache lookup, provider call on miss, output, in that order.
// Every failure is contained here; the caller records metrics and
// plays feedback off the returned result regardless of outcome.
func (c *Controller) dispatch(ctx context.Context, ev event.Event) DispatchResult {
	snap := c.state.Current()

	mode := provider.ModeText
	if ev.Kind == event.TriggerSecondary {
		mode = provider.ModeVoice
	}

	res := DispatchResult{
		Kind:        ev.Kind,
		Persona:     snap.Persona().Name,
		DryRun:      snap.DryRun,
		CacheStatus: metrics.CacheBypassed,
	}

	if len(snap.Personas) == 0 {
		// Nothing sensible to generate without a persona; skip rather
		// than fail so feedback stays quiet.
		res.Outcome = metrics.OutcomeSkipped
		c.logger.Warn("no personas configured, skipping trigger",
			slog.String("kind", string(ev.Kind)))
		return res
	}

	ctx, span := c.tracer.Start(ctx, "dispatch", trace.WithAttributes(
		attribute.String("event.kind", string(ev.Kind)),
		attribute.String("persona", res.Persona),
		attribute.Bool("dry_run", res.DryRun),
	))
	defer span.End()

	// Context is an enrichment, never a hard dependency. A slow or
	// failing observer yields an empty string and the dispatch
	// proceeds. Dry-run skips the gather entirely.
	var matchContext string
	if !res.DryRun {
		start := time.Now()
		octx, cancel := context.WithTimeout(ctx, c.observerTimeout)
		matchContext = c.observer.Context(octx)
		cancel()
		res.ContextGather = time.Since(start)
	}

	req := provider.Request{
		Persona:  snap.Persona(),
		Context:  matchContext,
		Mode:     mode,
		Language: snap.Language,
		DryRun:   res.DryRun,
	}

	useCache := c.cache != nil && snap.CacheEnabled && !res.DryRun
	key := cache.Fingerprint(req.Persona.Name, req.Context, string(req.Mode), req.Language)

	if useCache {
		if text, ok := c.cache.Get(key); ok {
			res.CacheStatus = metrics.CacheHit
			res.Text = text
			span.SetAttributes(attribute.String("cache", "hit"))
			c.logger.Debug("cache hit", slog.String("persona", res.Persona))
			return c.deliver(ctx, res)
		}
		res.CacheStatus = metrics.CacheMiss
	}

	start := time.Now()
	pctx, cancel := context.WithTimeout(ctx, c.providerTimeout)
	reply, err := c.provider.Generate(pctx, req)
	cancel()
	res.ProviderCall = time.Since(start)

	if err != nil {
		// No retry within this dispatch. A later trigger may succeed.
		res.Outcome = metrics.OutcomeFailed
		res.Err = fmt.Errorf("provider %s: %w", c.provider.Name(), err)
		span.RecordError(res.Err)
		c.logger.Error("generation failed",
			slog.String("provider", c.provider.Name()),
			slog.String("persona", res.Persona),
			slog.Duration("elapsed", res.ProviderCall),
			slog.String("error", err.Error()))
		return res
	}

	res.Text = reply.Text
	res.PromptTokens = reply.PromptTokens
	res.CompletionTokens = reply.CompletionTokens
	if res.CompletionTokens == 0 && c.counter != nil {
		res.CompletionTokens = c.counter.Count(reply.Text)
	}

	if useCache {
		c.cache.Put(key, reply.Text, c.cacheTTL)
	}

	return c.deliver(ctx, res)
}

// deliver routes the text to the mode-appropriate sink and settles the
// outcome. An output failure does not re-invoke the provider; the
// generated text stays cached and the user may retrigger.
func (c *Controller) deliver(ctx context.Context, res DispatchResult) DispatchResult {
	start := time.Now()
	var err error
	if res.Kind == event.TriggerSecondary && c.speech != nil {
		err = c.speak(ctx, res.Text, res.DryRun)
	} else {
		err = c.typer.Send(ctx, res.Text, res.DryRun)
	}
	res.Output = time.Since(start)

	if err != nil {
		res.Outcome = metrics.OutcomeFailed
		res.Err = fmt.Errorf("output: %w", err)
		c.logger.Error("output failed",
			slog.String("persona", res.Persona),
			slog.String("error", err.Error()))
		return res
	}

	res.Outcome = metrics.OutcomeSuccess
	c.logger.Info("dispatched",
		slog.String("kind", string(res.Kind)),
		slog.String("persona", res.Persona),
		slog.String("cache", string(res.CacheStatus)),
		slog.Bool("dry_run", res.DryRun),
		slog.String("text", res.Text))
	return res
}

func (c *Controller) speak(ctx context.Context, text string, dryRun bool) error {
	pcm, err := c.speech.Synthesize(ctx, text, dryRun)
	if err != nil {
		return err
	}
	if dryRun || c.player == nil || len(pcm) == 0 {
		return nil
	}
	return c.player.Play(pcm)
}

// finish records metrics and plays outcome feedback. Always runs,
// success or failure, before the next event is dequeued.
func (c *Controller) finish(res DispatchResult) {
	c.recorder.Record(res.sample())
	switch res.Outcome {
	case metrics.OutcomeSuccess:
		c.signaler.Success()
	case metrics.OutcomeFailed:
		c.signaler.Failure()
	}
}

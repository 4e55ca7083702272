package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/banterworks/banterbot/internal/audio"
	"github.com/banterworks/banterbot/internal/cache"
	"github.com/banterworks/banterbot/internal/config"
	"github.com/banterworks/banterbot/internal/controller"
	"github.com/banterworks/banterbot/internal/diag"
	"github.com/banterworks/banterbot/internal/event"
	"github.com/banterworks/banterbot/internal/feedback"
	"github.com/banterworks/banterbot/internal/input"
	"github.com/banterworks/banterbot/internal/metrics"
	"github.com/banterworks/banterbot/internal/observer"
	"github.com/banterworks/banterbot/internal/output"
	"github.com/banterworks/banterbot/internal/provider"
	"github.com/banterworks/banterbot/internal/session"
	"github.com/banterworks/banterbot/internal/telemetry"
	"github.com/banterworks/banterbot/internal/tokens"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	dryRun := flag.Bool("dry-run", false, "force dry-run mode regardless of config")
	flag.Parse()

	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	shutdownTracer, err := telemetry.Init("banterbot", logger)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("tracer shutdown failed", slog.String("error", err.Error()))
		}
	}()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *dryRun {
		cfg.DryRun = true
	}

	if err := run(cfg, *configPath, logger); err != nil {
		logger.Error("fatal", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, configPath string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := event.NewBus(logger)
	state := session.New(session.Snapshot{
		Personas:     cfg.Personas,
		PersonaIndex: cfg.PersonaIndex(),
		Language:     cfg.Language,
		DryRun:       cfg.DryRun,
		CacheEnabled: cfg.Cache.Enabled,
	})

	if cfg.DryRun {
		logger.Info("dry-run mode: no chat output, no audio, no provider charges")
	}

	responseCache, err := buildCache(cfg, logger)
	if err != nil {
		return err
	}
	defer responseCache.Close()

	prov, err := buildProvider(cfg, logger)
	if err != nil {
		return err
	}

	obs := buildObserver(cfg, logger)

	var audioOut *audio.Output
	if cfg.Audio.Enabled {
		audioOut, err = audio.New(cfg.Audio.SampleRate, logger)
		if err != nil {
			logger.Warn("audio unavailable, falling back to log feedback",
				slog.String("error", err.Error()))
		}
	}

	var signaler feedback.Signaler = feedback.Log{Logger: logger}
	if audioOut != nil {
		signaler = feedback.NewTones(audioOut)
	}

	typer := buildTyper(cfg, logger)

	var synth output.Synthesizer
	var player output.Player
	if cfg.Speech.Enabled {
		synth = output.NewElevenLabs(cfg.Speech.APIKey, cfg.Speech.VoiceID, cfg.Speech.ModelID, logger)
		if audioOut != nil {
			player = audioOut
		}
	}

	var recorder metrics.Recorder = metrics.Noop{}
	var usage diag.Summarizer
	if cfg.Metrics.Enabled {
		sqlRec, err := metrics.NewSQLiteRecorder(cfg.Metrics.Path, logger)
		if err != nil {
			logger.Warn("metrics store unavailable, samples will be discarded",
				slog.String("error", err.Error()))
		} else {
			recorder = sqlRec
			usage = sqlRec
		}
	}
	defer recorder.Close()

	ctrl := controller.New(bus, state, prov,
		controller.WithObserver(obs, cfg.ObserverTimeout()),
		controller.WithProviderTimeout(cfg.ProviderTimeout()),
		controller.WithCache(responseCache, cfg.CacheTTL()),
		controller.WithTyper(typer),
		controller.WithSpeech(synth, player),
		controller.WithMetrics(recorder),
		controller.WithFeedback(signaler),
		controller.WithTokenCounter(tokens.NewCounter(cfg.Provider.Model)),
		controller.WithReload(func() ([]session.Persona, error) {
			fresh, err := config.Load(configPath)
			if err != nil {
				return nil, err
			}
			return fresh.Personas, nil
		}),
		controller.WithLogger(logger))

	if err := config.Watch(ctx, configPath, logger, func(*config.Config) {
		bus.Publish(event.New(event.ConfigReloaded))
	}); err != nil {
		logger.Warn("config watch unavailable", slog.String("error", err.Error()))
	}

	var diagSrv *diag.Server
	if cfg.Diag.Enabled {
		diagSrv = diag.New(cfg.Diag.Addr, responseCache, usage, state, logger)
		go func() {
			if err := diagSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("diagnostics server failed", slog.String("error", err.Error()))
			}
		}()
	}

	go runInput(ctx, cfg, bus, logger)

	// A signal cancels ctx; the controller lets any in-flight dispatch
	// drain, closes the bus, and returns cleanly.
	err = ctrl.Run(ctx)

	if diagSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := diagSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("diagnostics shutdown failed", slog.String("error", err.Error()))
		}
	}

	logger.Info("shutdown complete")
	return err
}

func buildCache(cfg *config.Config, logger *slog.Logger) (cache.Cache, error) {
	switch cfg.Cache.Type {
	case "sqlite":
		c, err := cache.NewSQLite(cfg.Cache.Path, logger)
		if err != nil {
			logger.Warn("sqlite cache unavailable, using in-memory cache",
				slog.String("error", err.Error()))
			return cache.NewMemory(), nil
		}
		return c, nil
	case "memory", "":
		return cache.NewMemory(), nil
	default:
		return nil, errors.New("unknown cache type " + cfg.Cache.Type)
	}
}

func buildProvider(cfg *config.Config, logger *slog.Logger) (provider.Provider, error) {
	switch cfg.Provider.Type {
	case "openai", "":
		opts := []provider.OpenAIOption{
			provider.WithModel(cfg.Provider.Model),
			provider.WithHTTPClient(&http.Client{
				Transport: otelhttp.NewTransport(http.DefaultTransport),
			}),
		}
		if cfg.Provider.BaseURL != "" {
			opts = append(opts, provider.WithBaseURL(cfg.Provider.BaseURL))
		}
		return provider.NewOpenAI(cfg.Provider.APIKey, logger, opts...), nil
	case "fixed":
		return &provider.Fixed{Message: cfg.Provider.FixedMessage}, nil
	case "random":
		return provider.NewRandom(cfg.Provider.Messages, 0), nil
	default:
		return nil, errors.New("unknown provider type " + cfg.Provider.Type)
	}
}

func buildObserver(cfg *config.Config, logger *slog.Logger) observer.Observer {
	switch cfg.Observer.Type {
	case "exec":
		return observer.NewExec(cfg.Observer.Command, cfg.Observer.Args, logger)
	case "none":
		return observer.Noop{}
	default:
		return observer.NewScenarios(cfg.Observer.Scenarios, 0)
	}
}

func buildTyper(cfg *config.Config, logger *slog.Logger) output.Typer {
	if cfg.Typer.Type == "exec" && cfg.Typer.Command != "" {
		return output.NewExecTyper(cfg.Typer.Command, cfg.Typer.Args, cfg.Typer.MaxLength, logger)
	}
	return output.DebugTyper{Logger: logger}
}

func runInput(ctx context.Context, cfg *config.Config, bus *event.Bus, logger *slog.Logger) {
	bindings, err := input.Bindings(
		cfg.Keys.Trigger, cfg.Keys.VoiceTrigger,
		cfg.Keys.NextPersona, cfg.Keys.PrevPersona)
	if err != nil {
		logger.Error("invalid key bindings, hotkeys disabled", slog.String("error", err.Error()))
		return
	}
	listener, err := input.NewListener(bus, bindings, logger)
	if err != nil {
		logger.Error("no terminal available, hotkeys disabled", slog.String("error", err.Error()))
		return
	}
	if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("input listener stopped", slog.String("error", err.Error()))
	}
}

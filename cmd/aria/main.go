// Command aria runs the Aria voice session engine as a long-lived agent: it
// keeps a realtime session alive against the configured endpoints and serves
// health and metrics endpoints for operators.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/lumenwell/aria/internal/config"
	"github.com/lumenwell/aria/internal/health"
	"github.com/lumenwell/aria/internal/observe"
	"github.com/lumenwell/aria/internal/session"
	"github.com/lumenwell/aria/internal/title"
	"github.com/lumenwell/aria/pkg/audio"
	"github.com/lumenwell/aria/pkg/convo"
	convopg "github.com/lumenwell/aria/pkg/convo/postgres"
	"github.com/lumenwell/aria/pkg/realtime"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "aria: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "aria: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("aria starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Conversation store ────────────────────────────────────────────────────
	var (
		store    convo.Store
		checkers []health.Checker
	)
	if dsn := cfg.Storage.PostgresDSN; dsn != "" {
		pg, err := convopg.NewStore(ctx, dsn)
		if err != nil {
			slog.Error("failed to open conversation store", "err", err)
			return 1
		}
		defer pg.Close()
		store = pg
		checkers = append(checkers, health.PingChecker("store", pg))
		slog.Info("conversation store ready", "backend", "postgres")
	} else {
		store = convo.NewMemoryStore()
		slog.Info("conversation store ready", "backend", "memory")
	}

	// ── Conversation titler (optional) ────────────────────────────────────────
	var titler realtime.Titler
	if cfg.Title.APIKey != "" {
		var opts []title.Option
		if cfg.Title.BaseURL != "" {
			opts = append(opts, title.WithBaseURL(cfg.Title.BaseURL))
		}
		g, err := title.New(cfg.Title.APIKey, cfg.Title.Model, opts...)
		if err != nil {
			slog.Error("failed to create titler", "err", err)
			return 1
		}
		titler = g
	}

	// ── Session runner ────────────────────────────────────────────────────────
	capture := audio.DefaultCaptureOptions()
	if v := cfg.Audio.EchoCancellation; v != nil {
		capture.EchoCancellation = *v
	}
	if v := cfg.Audio.NoiseSuppression; v != nil {
		capture.NoiseSuppression = *v
	}
	if v := cfg.Audio.AutoGainControl; v != nil {
		capture.AutoGainControl = *v
	}

	runner := session.NewRunner(session.RunnerConfig{
		Base: realtime.Config{
			Broker: &realtime.Broker{
				Endpoint:  cfg.Realtime.BrokerURL,
				AuthToken: cfg.Realtime.AuthToken,
			},
			SignalURL: cfg.Realtime.SignalURL,
			EventsURL: cfg.Realtime.EventsURL,
			Device:    audio.NullDevice{},
			Capture:   &capture,
			Store:     store,
			Titler:    titler,
			Callbacks: logCallbacks(),
		},
		MaxRetries: cfg.Realtime.MaxRetries,
		Metrics:    metrics,
	})

	// ── HTTP server: health + metrics ─────────────────────────────────────────
	mux := http.NewServeMux()
	health.New(checkers...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		start := time.Now()
		if err := runner.Connect(gctx); err != nil {
			return fmt.Errorf("session connect: %w", err)
		}
		metrics.ConnectDuration.Record(gctx, time.Since(start).Seconds())
		runner.Monitor(gctx)
		slog.Info("session connected — press Ctrl+C to shut down")
		<-gctx.Done()
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		slog.Info("shutdown signal received, stopping…")
		if err := runner.Stop(); err != nil {
			slog.Warn("session stop error", "err", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// logCallbacks surfaces session activity in the agent log. A UI embedding
// the engine supplies its own callbacks instead.
func logCallbacks() realtime.Callbacks {
	return realtime.Callbacks{
		OnConnect:    func() { slog.Info("session connected") },
		OnDisconnect: func() { slog.Info("session disconnected") },
		OnError:      func(err error) { slog.Error("session error", "err", err) },
		OnUserTranscript: func(text string, final bool) {
			if final {
				slog.Info("user said", "text", text)
			}
		},
		OnAssistantTranscript: func(text string, final bool) {
			if final {
				slog.Info("assistant said", "text", text)
			}
		},
		OnTurnComplete: func() { slog.Debug("turn complete") },
		OnConversationCreated: func(id string) {
			slog.Info("conversation created", "id", id)
		},
	}
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// Command readalong runs a playbook end to end: it loads a story manifest,
// serves the host bridge and metrics endpoints, and drives the reading
// session until the book finishes or the process is signalled.
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
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/ponderpaw/readalong/internal/bridge"
	"github.com/ponderpaw/readalong/internal/config"
	"github.com/ponderpaw/readalong/internal/engine"
	"github.com/ponderpaw/readalong/internal/health"
	"github.com/ponderpaw/readalong/internal/observe"
	"github.com/ponderpaw/readalong/internal/playbook"
	"github.com/ponderpaw/readalong/pkg/assets"
	"github.com/ponderpaw/readalong/pkg/conversation"
	"github.com/ponderpaw/readalong/pkg/conversation/elevenlabs"
	"github.com/ponderpaw/readalong/pkg/events"
	"github.com/ponderpaw/readalong/pkg/media"
	mediamock "github.com/ponderpaw/readalong/pkg/media/mock"
)

const version = "0.3.0"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	playbookPath := flag.String("playbook", "", "path to the playbook manifest (defaults to <story dir>/playbook.json)")
	storyDir := flag.String("story", "", "story directory override (defaults to story.dir from config)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "readalong: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "readalong: %v\n", err)
		}
		return 1
	}
	if *storyDir != "" {
		cfg.Story.Dir = *storyDir
	}
	manifest := *playbookPath
	if manifest == "" {
		manifest = filepath.Join(cfg.Story.Dir, "playbook.json")
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	logger.Info("readalong starting",
		"version", version,
		"config", *configPath,
		"playbook", manifest,
		"bridge_addr", cfg.Server.BridgeAddr,
	)

	// ── Playbook ──────────────────────────────────────────────────────────────
	doc, err := playbook.Load(manifest)
	if err != nil {
		logger.Error("failed to load playbook", "err", err)
		return 1
	}
	logger.Info("playbook loaded",
		"title", doc.Meta["title"],
		"pages", doc.TotalPages(),
		"actions", len(doc.ActionsByKey),
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		logger.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		logger.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Engine ────────────────────────────────────────────────────────────────
	bus := events.NewBus()
	eng := engine.New(doc, bus, engineConfig(cfg), engine.Deps{
		Player:        newPlayer(logger),
		Conversations: newConversations(cfg, logger),
		Assets:        assets.NewDirResolver(cfg.Story.Dir),
		Logger:        logger,
		Metrics:       metrics,
	})

	// ── Serve + drive the session ─────────────────────────────────────────────
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return serveBridge(ctx, cfg, eng, bus, logger) })
	if cfg.Server.MetricsAddr != "" {
		g.Go(func() error { return serveOps(ctx, cfg, logger) })
	}
	g.Go(func() error { return driveSession(ctx, cfg, eng, bus, doc, logger) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("readalong exited with error", "err", err)
		return 1
	}
	logger.Info("readalong stopped")
	return 0
}

// driveSession starts the book after the configured delay and, when
// auto-advance is on, turns pages as they become ready. Auto-advance is host
// policy: the engine itself never turns a page.
func driveSession(ctx context.Context, cfg *config.Config, eng *engine.Engine, bus *events.Bus, doc *playbook.Document, logger *slog.Logger) error {
	ready := make(chan int, 1)
	ended := make(chan struct{}, 1)
	unsubscribe := bus.Subscribe(func(ev events.Event) {
		switch e := ev.(type) {
		case events.PageReady:
			select {
			case ready <- e.Current:
			default:
			}
		case events.BookEnded:
			select {
			case ended <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	select {
	case <-time.After(cfg.Engine.StartDelay.Std()):
	case <-ctx.Done():
		return ctx.Err()
	}

	// Start blocks until the first page resolves; run it on its own
	// goroutine so the advance loop below can react to its events.
	go func() {
		if err := eng.Start(ctx); err != nil {
			logger.Error("session start failed", "err", err)
		}
	}()

	for {
		select {
		case page := <-ready:
			if !cfg.Engine.AutoAdvance || page >= doc.TotalPages() {
				continue
			}
			go func() {
				select {
				case <-time.After(cfg.Engine.PageGap.Std()):
				case <-ctx.Done():
					return
				}
				if err := eng.Play(ctx, page); err != nil {
					logger.Error("auto-advance failed", "page", page+1, "err", err)
				}
			}()
		case <-ended:
			logger.Info("book ended")
			return nil
		case <-ctx.Done():
			eng.Stop()
			return ctx.Err()
		}
	}
}

func serveBridge(ctx context.Context, cfg *config.Config, eng *engine.Engine, bus *events.Bus, logger *slog.Logger) error {
	br := bridge.New(eng, bus, logger)
	srv := &http.Server{
		Addr:              cfg.Server.BridgeAddr,
		Handler:           br.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return serveHTTP(ctx, srv, "bridge", logger)
}

func serveOps(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	health.New(health.StoryDir(cfg.Story.Dir)).Register(mux)
	srv := &http.Server{
		Addr:              cfg.Server.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return serveHTTP(ctx, srv, "metrics", logger)
}

func serveHTTP(ctx context.Context, srv *http.Server, name string, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info(name+" listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return fmt.Errorf("%s server: %w", name, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn(name+" shutdown", "err", err)
		}
		return ctx.Err()
	}
}

func engineConfig(cfg *config.Config) engine.Config {
	return engine.Config{
		ReadGap:      cfg.Engine.ReadGap.Std(),
		PageSettle:   cfg.Engine.PageSettle.Std(),
		UnknownGrace: cfg.Engine.UnknownGrace.Std(),
		FadeOut:      cfg.Engine.FadeOut.Std(),
		Language:     cfg.Story.Language,
		Voice: engine.VoicePolicy{
			Window:          cfg.Voice.Window.Std(),
			MaxRetries:      cfg.Voice.MaxRetries,
			BaseThreshold:   cfg.Voice.BaseThreshold,
			RelaxStep:       cfg.Voice.RelaxStep,
			PressTimeout:    cfg.Voice.PressTimeout.Std(),
			ReleaseDebounce: cfg.Voice.ReleaseDebounce.Std(),
		},
	}
}

// newPlayer returns the media player for this host. The reference binary is
// headless, so playback is simulated in real time; embedding hosts supply a
// platform player instead.
func newPlayer(logger *slog.Logger) media.Player {
	logger.Info("using simulated media playback")
	return &mediamock.Player{Duration: 2 * time.Second}
}

func newConversations(cfg *config.Config, logger *slog.Logger) conversation.Starter {
	if cfg.Conversation.Provider != "elevenlabs" {
		return nil
	}
	var opts []elevenlabs.Option
	if cfg.Conversation.BaseURL != "" {
		opts = append(opts, elevenlabs.WithBaseURL(cfg.Conversation.BaseURL))
	}
	logger.Info("conversation provider configured", "provider", cfg.Conversation.Provider)
	return elevenlabs.New(cfg.Conversation.APIKey, cfg.Conversation.AgentID, opts...)
}

func newLogger(level config.LogLevel) *slog.Logger {
	var l slog.Level
	switch level {
	case config.LogDebug:
		l = slog.LevelDebug
	case config.LogWarn:
		l = slog.LevelWarn
	case config.LogError:
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

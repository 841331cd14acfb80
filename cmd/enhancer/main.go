package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/enhance-client/internal/config"
	"github.com/rickgao/enhance-client/internal/connection"
	"github.com/rickgao/enhance-client/internal/database"
	"github.com/rickgao/enhance-client/internal/jobs"
	"github.com/rickgao/enhance-client/internal/metrics"
	"github.com/rickgao/enhance-client/internal/store"
	"github.com/rickgao/enhance-client/internal/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "configs/enhancer.local.yaml", "path to config file")
	kindFlag := flag.String("kind", string(jobs.KindDefault), "enhancement type: default, anime or traditional")
	outDir := flag.String("out", "", "output directory (overrides jobs.output_dir)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("enhancer", version.String())
		return 0
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "config", *configPath, "error", err)
		return 1
	}
	if *outDir != "" {
		cfg.Jobs.OutputDir = *outDir
	}

	// Set up structured logging
	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting enhancer",
		"version", version.String(),
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
		"server_url", cfg.Server.URL,
	)

	kind, err := jobs.ParseKind(*kindFlag)
	if err != nil {
		logger.Error("invalid -kind", "error", err)
		return 2
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	m := metrics.New()

	// Optional job journal
	var (
		pool    *pgxpool.Pool
		journal *store.Journal
	)
	if cfg.Database.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)
		pool, err = database.Connect(ctx, cfg.Database, "enhancer-"+cfg.Instance.ID)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			return 1
		}
		defer pool.Close()

		if err := store.EnsureSchema(ctx, pool); err != nil {
			logger.Error("failed to create job table", "error", err)
			return 1
		}

		journal = store.NewJournal(store.Config{
			InstanceID:    cfg.Instance.ID,
			BatchSize:     cfg.Database.BatchSize,
			FlushInterval: cfg.Database.FlushInterval,
		}, pool, logger.With("component", "journal"))
		journal.Start(ctx)
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			if err := journal.Stop(stopCtx); err != nil {
				logger.Error("final journal flush failed", "error", err)
			}
		}()
		logger.Info("database connected")
	}

	// Connection manager
	mcfg := managerConfig(cfg)
	dialer := connection.NewDialer(mcfg, authHeader(cfg.Server.AuthToken), logger)
	mgr := connection.NewManager(mcfg, logger,
		connection.WithDialer(dialer),
		connection.WithObserver(m),
	)

	// Job tracker
	trackerOpts := []jobs.Option{jobs.WithObserver(m)}
	if journal != nil {
		trackerOpts = append(trackerOpts, jobs.WithJournal(journal))
	}
	tracker := jobs.NewTracker(trackerConfig(cfg.Jobs), mgr, logger.With("component", "jobs"), trackerOpts...)
	mgr.SetOnMessage(tracker.HandleMessage)

	// Metrics and health server
	var server *http.Server
	if cfg.Metrics.Port > 0 {
		server = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: createHealthHandler(cfg.Metrics.Path, m, mgr, tracker, pool),
		}
		go func() {
			logger.Info("starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := server.ListenAndServe(); err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	trackerCtx, stopTracker := context.WithCancel(ctx)
	trackerDone := make(chan struct{})
	go func() {
		defer close(trackerDone)
		tracker.Run(trackerCtx)
	}()

	mgr.Connect()

	images := flag.Args()
	failed := 0
	if len(images) == 0 {
		logger.Info("no images given, holding connection until shutdown")
		<-ctx.Done()
	} else {
		failed = enhanceAll(ctx, tracker, kind, images, cfg.Jobs, logger)
	}

	logger.Info("shutting down...")

	stopTracker()
	<-trackerDone
	mgr.Disconnect()

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		server.Shutdown(shutdownCtx)
	}

	stats := mgr.Stats()
	logger.Info("enhancer stopped",
		"frames_sent", stats.FramesSent,
		"frames_received", stats.FramesReceived,
		"failed_images", failed,
	)

	if failed > 0 {
		return 1
	}
	return 0
}

// enhanceAll submits every image with bounded concurrency and returns how many failed.
func enhanceAll(ctx context.Context, tracker *jobs.Tracker, kind jobs.Kind, images []string, cfg config.JobsConfig, logger *slog.Logger) int {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		logger.Error("failed to create output directory", "dir", cfg.OutputDir, "error", err)
		return len(images)
	}

	var failed atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Concurrency > 0 {
		g.SetLimit(cfg.Concurrency)
	}

	for _, path := range images {
		g.Go(func() error {
			out, err := enhanceOne(gctx, tracker, kind, path, cfg.OutputDir)
			if err != nil {
				failed.Add(1)
				logger.Error("image failed", "path", path, "error", err)
				// Shutdown aborts the rest; one bad image does not
				if errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			}
			logger.Info("image enhanced", "path", path, "output", out)
			return nil
		})
	}

	g.Wait()
	return int(failed.Load())
}

func enhanceOne(ctx context.Context, tracker *jobs.Tracker, kind jobs.Kind, path, outDir string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	job, err := tracker.Submit(ctx, kind, data)
	if err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}

	res, err := job.Wait(ctx)
	if err != nil {
		return "", err
	}

	out := filepath.Join(outDir, outputName(kind, path))
	if err := os.WriteFile(out, res.Image, 0o644); err != nil {
		return "", fmt.Errorf("write result: %w", err)
	}
	return out, nil
}

// outputName returns enhanced_<kind>_<name>.png for an input path.
func outputName(kind jobs.Kind, path string) string {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return fmt.Sprintf("enhanced_%s_%s.png", kind, name)
}

func managerConfig(cfg *config.ClientConfig) connection.ManagerConfig {
	return connection.ManagerConfig{
		URL:              cfg.Server.URL,
		HandshakeTimeout: cfg.Server.HandshakeTimeout,
		WriteTimeout:     cfg.Server.WriteTimeout,
		PingInterval:     cfg.Server.PingInterval,
		PingTimeout:      cfg.Server.PingTimeout,
		MaxPayloadBytes:  cfg.Server.MaxPayloadBytes,
		Reconnect: connection.ReconnectPolicy{
			InitialDelay: cfg.Reconnect.InitialDelay,
			MaxDelay:     cfg.Reconnect.MaxDelay,
			Multiplier:   cfg.Reconnect.Multiplier,
			Enabled:      !cfg.Reconnect.Disabled,
			MaxAttempts:  cfg.Reconnect.MaxAttempts,
		},
	}
}

func trackerConfig(cfg config.JobsConfig) jobs.Config {
	return jobs.Config{
		ResendAfter:  cfg.ResendAfter,
		Timeout:      cfg.Timeout,
		MaxResends:   cfg.MaxResends,
		TickInterval: cfg.TickInterval,
	}
}

func authHeader(token string) http.Header {
	if token == "" {
		return nil
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// createHealthHandler serves /health and the Prometheus metrics path.
func createHealthHandler(metricsPath string, m *metrics.Metrics, mgr connection.Manager, tracker *jobs.Tracker, pool *pgxpool.Pool) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(metricsPath, m.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		stats := mgr.Stats()
		health.Components["websocket"] = map[string]any{
			"state":    stats.State.String(),
			"attempts": stats.Attempts,
		}
		if stats.State != connection.StateOpen {
			health.Status = "degraded"
		}

		health.Components["jobs"] = map[string]any{
			"pending": tracker.Pending(),
		}

		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["postgres"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["postgres"] = "connected"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}

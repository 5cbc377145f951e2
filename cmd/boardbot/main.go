package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/72rs3/Gamble-5k-board-tracker/internal/bot"
	"github.com/72rs3/Gamble-5k-board-tracker/internal/bot/commands"
	"github.com/72rs3/Gamble-5k-board-tracker/internal/clock"
	"github.com/72rs3/Gamble-5k-board-tracker/internal/config"
	"github.com/72rs3/Gamble-5k-board-tracker/internal/eval"
	"github.com/72rs3/Gamble-5k-board-tracker/internal/health"
	"github.com/72rs3/Gamble-5k-board-tracker/internal/leader"
	"github.com/72rs3/Gamble-5k-board-tracker/internal/notify"
	"github.com/72rs3/Gamble-5k-board-tracker/internal/roster"
	"github.com/72rs3/Gamble-5k-board-tracker/internal/sched"
	"github.com/72rs3/Gamble-5k-board-tracker/internal/store"
	"github.com/72rs3/Gamble-5k-board-tracker/internal/telemetry"
	"github.com/72rs3/Gamble-5k-board-tracker/internal/tracker"

	// Register store drivers so they are available via store.Open.
	_ "github.com/72rs3/Gamble-5k-board-tracker/internal/store/snapshot"
	_ "github.com/72rs3/Gamble-5k-board-tracker/internal/store/syncstore"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load configuration.
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup telemetry.
	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	// Open the board store using the configured driver (snapshot or redis).
	adapter, err := store.Open(ctx, cfg.Store, clk)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Store.Driver, err)
	}
	defer adapter.Close()

	logger.InfoContext(ctx, "connected to store", slog.String("driver", cfg.Store.Driver))

	// Initialize the board manager.
	evaluator := eval.New(cfg.Roster.InactivityWindow)
	alerts := notify.NewTracker(cfg.Roster.WarningWindow, nil, logger)
	mgr := tracker.NewManager(adapter, evaluator, alerts, clk, cfg.Roster, logger, tp.TracerProvider)

	if err := mgr.Load(ctx); err != nil {
		return fmt.Errorf("loading board state: %w", err)
	}

	// Synchronized backends push remote changes into the manager.
	if watcher, ok := adapter.(store.Watcher); ok {
		if err := watcher.Watch(ctx, func(state *roster.State) {
			mgr.Replace(ctx, state)
		}); err != nil {
			return fmt.Errorf("watching store changes: %w", err)
		}
		logger.InfoContext(ctx, "watching for remote board changes")
	}

	// Setup health checks.
	healthHandler := health.NewHandler(clk,
		health.Checker{
			Name:  "store",
			Check: adapter.Ping,
		},
	)

	// Start HTTP server for health checks (runs on all replicas).
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler.LivenessHandler())
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler())

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "starting health server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && listenErr != http.ErrServerClosed {
			logger.ErrorContext(ctx, "health server error", slog.Any("error", listenErr))
		}
	}()

	// The evaluation loop runs on every replica; status transitions are
	// idempotent, so replicas racing on the same tick converge.
	scheduler := sched.New(cfg.Roster.EvaluationInterval, logger)
	go scheduler.Run(ctx, mgr.Tick)

	// startBot is the surface that only the leader should run.
	startBot := func(ctx context.Context) {
		handlers := commands.NewHandlers(mgr, logger, tp.TracerProvider)
		discordBot, botErr := bot.New(cfg.Discord, handlers, alerts, logger, tp.TracerProvider)
		if botErr != nil {
			logger.ErrorContext(ctx, "creating bot failed", slog.Any("error", botErr))
			return
		}

		if botErr = discordBot.Start(ctx); botErr != nil {
			logger.ErrorContext(ctx, "starting bot failed", slog.Any("error", botErr))
			return
		}

		healthHandler.SetReady(true)
		logger.InfoContext(ctx, "boardbot is running (leader)", slog.String("version", version))

		// Block until leadership is lost or process is shutting down.
		<-ctx.Done()

		healthHandler.SetReady(false)
		if stopErr := discordBot.Stop(); stopErr != nil {
			logger.Error("bot shutdown error", slog.Any("error", stopErr))
		}
	}

	if cfg.LeaderElection.Enabled {
		logger.InfoContext(ctx, "leader election enabled, waiting for leadership...")

		if leaderErr := leader.Run(ctx, leader.Config(cfg.LeaderElection), logger, startBot, func() {
			logger.Info("lost leadership, shutting down...")
			cancel()
		}); leaderErr != nil {
			return fmt.Errorf("leader election: %w", leaderErr)
		}
	} else {
		// No leader election, run directly.
		handlers := commands.NewHandlers(mgr, logger, tp.TracerProvider)
		discordBot, botErr := bot.New(cfg.Discord, handlers, alerts, logger, tp.TracerProvider)
		if botErr != nil {
			return fmt.Errorf("creating bot: %w", botErr)
		}

		if botErr = discordBot.Start(ctx); botErr != nil {
			return fmt.Errorf("starting bot: %w", botErr)
		}

		healthHandler.SetReady(true)
		logger.InfoContext(ctx, "boardbot is running", slog.String("version", version))

		// Wait for shutdown signal.
		<-ctx.Done()
		logger.Info("shutting down...")

		healthHandler.SetReady(false)

		if stopErr := discordBot.Stop(); stopErr != nil {
			logger.Error("bot shutdown error", slog.Any("error", stopErr))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}

	logger.Info("shutdown complete")
	return nil
}

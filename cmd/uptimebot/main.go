package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/uptimebot/internal/bot"
	"github.com/hazz-dev/uptimebot/internal/config"
	"github.com/hazz-dev/uptimebot/internal/control"
	"github.com/hazz-dev/uptimebot/internal/escalation"
	"github.com/hazz-dev/uptimebot/internal/logger"
	"github.com/hazz-dev/uptimebot/internal/metrics"
	"github.com/hazz-dev/uptimebot/internal/monitor"
	"github.com/hazz-dev/uptimebot/internal/notify"
	"github.com/hazz-dev/uptimebot/internal/probe"
	"github.com/hazz-dev/uptimebot/internal/redisconn"
	"github.com/hazz-dev/uptimebot/internal/server"
	"github.com/hazz-dev/uptimebot/internal/storage"
	"github.com/hazz-dev/uptimebot/internal/telegram"
	"github.com/hazz-dev/uptimebot/internal/version"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "uptimebot",
		Short:        "Uptime monitor with Telegram alerts",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "config.yml", "config file path")

	root.AddCommand(versionCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(checkCmd())
	root.AddCommand(statusCmd())

	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "uptimebot "+version.String())
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the monitor, the bot and the HTTP API",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	// 1. Load config
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// 2. Logger
	log, syncLog, err := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer syncLog()
	slog.SetDefault(log)
	log.Info("config loaded", "version", version.String(), "config", cfgFile, "owner", cfg.OwnerID, "notify", cfg.Notify.Type)

	// 3. Signal context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// 4. Open SQLite
	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	// 5. Pause flag, shared through Redis when configured
	var state control.State = control.NewMemoryState()
	if cfg.Redis.Addr != "" {
		client, err := redisconn.Connect(ctx, redisconn.Options{
			Addr:           cfg.Redis.Addr,
			Password:       cfg.Redis.Password,
			DB:             cfg.Redis.DB,
			ConnectTimeout: cfg.Redis.ConnectTimeout.Duration,
		}, log)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer client.Close()
		state = control.NewRedisState(client, cfg.Redis.Key)
	}

	// 6. Telegram client, notifier, metrics
	var tg *telegram.Client
	if cfg.Telegram.Token != "" {
		tg = telegram.New(cfg.Telegram.Token, cfg.Telegram.APIURL)
	}
	notifier, err := notify.New(cfg, tg, log)
	if err != nil {
		return fmt.Errorf("building notifier: %w", err)
	}
	m := metrics.New()

	// 7. Monitor loop
	ctl := control.New(db, state, cfg.OwnerID, log)
	loop := monitor.New(
		db,
		probe.New(cfg.Monitor.ProbeTimeout.Duration),
		escalation.New(cfg.Monitor.RetryCount, cfg.Monitor.RetryDelay.Duration),
		notifier,
		state,
		monitor.Options{
			Interval:    cfg.Monitor.Interval.Duration,
			Recipient:   cfg.OwnerID,
			SelfPingURL: cfg.Monitor.SelfPingURL,
			Metrics:     m,
			Logger:      log,
		},
	)
	loop.Start(ctx)

	workers := []waiter{loop}

	// 8. Bot poller
	if tg != nil {
		poller := bot.New(tg, bot.NewHandler(ctl, log), cfg.Telegram.PollTimeout.Duration, log)
		poller.Start(ctx)
		workers = append(workers, poller)
	} else {
		log.Warn("telegram token not set, bot commands disabled")
	}

	// 9. HTTP API
	var httpServer *http.Server
	serverErr := make(chan error, 1)
	if cfg.Server.Address != "" {
		httpServer = &http.Server{
			Addr:              cfg.Server.Address,
			Handler:           server.New(ctl, db, m, log).Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info("listening", "address", cfg.Server.Address)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	// 10. Wait for signal or server error
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		stop()
		runErr = fmt.Errorf("HTTP server: %w", err)
	}

	// 11. Graceful shutdown; background workers finish before the DB closes
	waitWorkers(workers)
	if runErr != nil {
		return runErr
	}
	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown", "error", err)
		}
	}

	log.Info("shutdown complete")
	return nil
}

type waiter interface {
	Wait()
}

// waitWorkers blocks until every worker has stopped.
func waitWorkers(workers []waiter) {
	for _, w := range workers {
		w.Wait()
	}
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Probe every registered service once without changing its state",
		RunE:  runCheck,
	}
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	return executeCheck(cmd, db, probe.New(cfg.Monitor.ProbeTimeout.Duration))
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print stored service state from database",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	return executeStatus(cmd, db)
}

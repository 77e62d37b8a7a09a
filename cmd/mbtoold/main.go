// mbtoold is the privileged daemon that performs filesystem operations on
// behalf of unprivileged clients.
//
// Configuration is loaded from /etc/mbtool/config.yaml (or the path given
// by -config); a missing file means defaults.
//
// Lifecycle:
//  1. Load configuration and set up the JSON logger
//  2. Open the operation journal and start its pruner
//  3. Listen on the Unix socket
//  4. Notify systemd that the service is ready (Type=notify)
//  5. Serve until SIGTERM/SIGINT
//  6. Notify systemd that the service is stopping
//  7. Coordinated shutdown: server, pruner, journal
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Anik1199/DualBootPatcher/internal/config"
	"github.com/Anik1199/DualBootPatcher/internal/daemon"
	"github.com/Anik1199/DualBootPatcher/internal/journal"
	"github.com/Anik1199/DualBootPatcher/internal/logging"
	"github.com/Anik1199/DualBootPatcher/internal/shutdown"
	"github.com/Anik1199/DualBootPatcher/internal/systemd"
	"github.com/Anik1199/DualBootPatcher/internal/version"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	dumpJournal := flag.Int("dump-journal", 0, "print the newest `N` journal entries and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info("mbtoold"))
		os.Exit(0)
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: failed to load configuration from %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	if *dumpJournal > 0 {
		if err := printJournal(os.Stdout, cfg.JournalPath, *dumpJournal); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	logger := logging.SetupLogger(cfg.LogLevel)
	logger.Info("mbtoold starting",
		slog.String("version", version.Version),
		slog.String("commit", version.Commit),
		slog.String("build_time", version.BuildTime),
		slog.String("config_path", *configPath),
		slog.String("socket_path", cfg.SocketPath),
		slog.Any("allowed_uids", cfg.AllowedUIDs),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("daemon failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	coordinator := shutdown.NewCoordinator(logger)

	j, err := journal.Open(cfg.JournalPath)
	if err != nil {
		return err
	}
	coordinator.Register("journal", shutdown.Func(j.Close))

	pruner, err := journal.NewPruner(j, cfg.JournalPruneSchedule, cfg.JournalRetention(), logger)
	if err != nil {
		j.Close()
		return err
	}
	go pruner.Run(ctx)
	coordinator.Register("journal-pruner", pruner)

	srv := daemon.NewServer(daemon.Config{
		AllowedUIDs:    cfg.AllowedUIDs,
		RequestTimeout: cfg.RequestTimeout(),
	}, daemon.NewHandler(version.Version), j, logging.WithComponent(logger, "mbtoold"))

	ln, err := daemon.Listen(cfg.SocketPath)
	if err != nil {
		shutdownAll(coordinator, logger)
		return err
	}
	defer os.Remove(cfg.SocketPath)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ctx, ln) }()
	coordinator.Register("daemon", srv)

	systemd.NotifyReady()
	systemd.StartWatchdog(ctx, srv.Listening)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, starting graceful shutdown")
	case err := <-serveErr:
		if err != nil {
			logger.Error("server stopped unexpectedly", slog.String("error", err.Error()))
		}
	}

	systemd.NotifyStopping()
	return shutdownAll(coordinator, logger)
}

func shutdownAll(coordinator *shutdown.Coordinator, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := coordinator.Shutdown(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("shutdown timed out", slog.Duration("timeout", shutdownTimeout))
		}
		return err
	}
	return nil
}

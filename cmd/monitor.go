package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/sigclaw/internal/bus"
	"github.com/nextlevelbuilder/sigclaw/internal/channels"
	signalchannel "github.com/nextlevelbuilder/sigclaw/internal/channels/signal"
	"github.com/nextlevelbuilder/sigclaw/internal/config"
	"github.com/nextlevelbuilder/sigclaw/internal/store"
	"github.com/nextlevelbuilder/sigclaw/internal/store/file"
	"github.com/nextlevelbuilder/sigclaw/internal/store/pg"
	"github.com/nextlevelbuilder/sigclaw/internal/store/sqlite"
	"github.com/nextlevelbuilder/sigclaw/internal/telemetry"
)

func monitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Run the Signal inbound monitor",
		Run: func(cmd *cobra.Command, args []string) {
			runMonitor()
		},
	}
}

func runMonitor() {
	// Setup structured logging
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if !cfg.Signal.Enabled {
		fmt.Println("Signal channel is not enabled.")
		fmt.Println()
		fmt.Println("Set signal.enabled and signal.account in config.json,")
		fmt.Println("or export SIGCLAW_SIGNAL_ACCOUNT.")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Error("telemetry setup failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	stores, closeStores, err := openStores(ctx, cfg)
	if err != nil {
		slog.Error("failed to open stores", "error", err)
		os.Exit(1)
	}
	defer closeStores()

	msgBus := bus.NewMessageBus()
	manager := channels.NewManager(msgBus)

	sig, err := signalchannel.New(cfg, msgBus, stores)
	if err != nil {
		slog.Error("failed to create signal channel", "error", err)
		os.Exit(1)
	}
	manager.Register(sig)

	if err := manager.StartAll(ctx); err != nil {
		slog.Error("failed to start channels", "error", err)
		os.Exit(1)
	}
	slog.Info("sigclaw monitor started", "account", cfg.Signal.Account, "mode", storageMode(cfg))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		consumeInbound(gctx, msgBus, stores)
		return nil
	})

	<-gctx.Done()
	slog.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := manager.StopAll(stopCtx); err != nil {
		slog.Warn("channel shutdown incomplete", "error", err)
	}
	g.Wait()
}

// consumeInbound is the hand-off point to the reply pipeline. Each authorized
// message is surfaced together with any queued notifications for its session.
func consumeInbound(ctx context.Context, msgBus *bus.MessageBus, stores *store.Stores) {
	for {
		msg, ok := msgBus.ConsumeInbound(ctx)
		if !ok {
			return
		}

		notes, err := stores.Notifications.Drain(ctx, msg.SessionKey)
		if err != nil {
			slog.Warn("notification drain failed", "session", msg.SessionKey, "error", err)
		}
		for _, n := range notes {
			slog.Info("delivering queued notification",
				"session", n.SessionKey,
				"body", n.Body,
			)
		}

		slog.Info("inbound message ready",
			"channel", msg.Channel,
			"sender", msg.SenderID,
			"session", msg.SessionKey,
			"authorized", msg.Authorized,
			"preview", channels.Truncate(msg.Content, 50),
		)
	}
}

// openStores builds the storage backends for the configured mode. Managed
// mode keeps pairing/allowlist state in Postgres; standalone mode uses JSON
// files under the state directory. The notification queue is sqlite in both
// modes.
func openStores(ctx context.Context, cfg *config.Config) (*store.Stores, func(), error) {
	stateDir := cfg.StateDir()
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create state dir: %w", err)
	}

	queue, err := sqlite.OpenNotificationQueue(filepath.Join(stateDir, "notifications.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("open notification queue: %w", err)
	}

	if cfg.IsManagedMode() {
		pool, err := pg.NewPool(ctx, cfg.Database.PostgresDSN)
		if err != nil {
			queue.Close()
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		stores := &store.Stores{
			Pairing:       pg.NewPairingStore(pool),
			Allowlist:     pg.NewAllowlistStore(pool),
			Notifications: queue,
		}
		return stores, func() { queue.Close(); pool.Close() }, nil
	}

	stores := &store.Stores{
		Pairing:       file.NewPairingStore(filepath.Join(stateDir, "pairing.json")),
		Allowlist:     file.NewAllowlistStore(filepath.Join(stateDir, "allowlist.json")),
		Notifications: queue,
	}
	return stores, func() { queue.Close() }, nil
}

func storageMode(cfg *config.Config) string {
	if cfg.IsManagedMode() {
		return "managed"
	}
	return "standalone"
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/kiwitu-chat/internal/config"
	"github.com/DoyleJ11/kiwitu-chat/internal/engine"
	"github.com/DoyleJ11/kiwitu-chat/internal/httpapi"
	"github.com/DoyleJ11/kiwitu-chat/internal/hub"
	"github.com/DoyleJ11/kiwitu-chat/internal/logging"
	"github.com/DoyleJ11/kiwitu-chat/internal/ws"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "kiwitu",
		Short:        "Multi-room chat lobby over WebSocket",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a config file (yaml, toml or json)")
	cmd.Flags().String("addr", "", "listen address")
	cmd.Flags().String("static-dir", "", "directory served at /")
	cmd.Flags().String("log-level", "", "debug, info, warn or error")
	cmd.Flags().String("log-format", "", "console or json")
	return cmd
}

func run(parent context.Context, cfg *config.Config) (err error) {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() {
		// Sync on a terminal returns ENOTTY; nothing useful to report there.
		_ = log.Sync()
	}()

	state := engine.NewState(engine.WithRoomLimit(cfg.RoomLimit))
	h := hub.NewHub(context.Background(), state,
		hub.WithLogger(log.Named("hub")),
		hub.WithInboxSize(cfg.InboxSize))

	handler := httpapi.SetupRoutes(h, httpapi.Config{
		StaticDir: cfg.StaticDir,
		WS: ws.HandlerConfig{
			Session: ws.Settings{
				HeartbeatInterval: cfg.HeartbeatInterval,
				ClientTimeout:     cfg.ClientTimeout,
				WriteTimeout:      cfg.WriteTimeout,
				OutboxSize:        cfg.OutboxSize,
			},
			ReadLimit:      cfg.ReadLimit,
			OriginPatterns: cfg.OriginPatterns,
		},
	}, log)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.Addr), zap.String("static", cfg.StaticDir))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-serveErr:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Closing the hub first ends every WebSocket session, which the HTTP
	// server does not track once connections are hijacked.
	h.Shutdown()
	select {
	case <-h.Done():
	case <-shutdownCtx.Done():
		err = multierr.Append(err, errors.New("hub did not stop in time"))
	}
	err = multierr.Append(err, srv.Shutdown(shutdownCtx))
	if err != nil {
		log.Error("shutdown", zap.Error(err))
		return err
	}
	log.Info("server exited gracefully")
	return nil
}

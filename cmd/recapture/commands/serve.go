package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/recapture/internal/api"
	"github.com/bryanchriswhite/recapture/internal/logger"
	"github.com/bryanchriswhite/recapture/internal/obs"
	"github.com/bryanchriswhite/recapture/internal/tracker"
	"github.com/bryanchriswhite/recapture/internal/window"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the recapture daemon",
	Long: `Start the tracking daemon.

The daemon connects to the window system and to OBS, keeps the configured
capture source pointed at its target window, and serves a control API for
status, configuration, and a live event stream.`,
	Example: `  # Start with the default config
  recapture serve

  # Start with a specific config file
  recapture serve --config /path/to/config.yaml

  # Force the X11 backend and debug logging
  recapture serve --backend x11 --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	fmt.Println("🎯 recapture - dynamic window capture for OBS")

	configMgr, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger.Init(cfg.LogLevel, true)
	log := logger.WithComponent("serve")
	log.Info().Str("path", configMgr.Path()).Msg("Configuration loaded")

	backend, err := window.Open(cfg.Backend)
	if err != nil {
		return fmt.Errorf("failed to open window backend: %w", err)
	}
	defer backend.Close()
	log.Info().Str("backend", backend.Name()).Msg("Window backend connected")

	host := obs.NewClient(cfg.OBS.URL, cfg.OBS.Password)
	trk := tracker.New(backend, host, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go host.Run(ctx)
	go trk.Run(ctx, host.Events(), configMgr.Subscribe())
	go func() {
		if err := configMgr.Watch(ctx); err != nil {
			log.Warn().Err(err).Msg("Config watcher stopped")
		}
	}()

	server := api.NewServer(backend, trk, configMgr, host)
	go func() {
		if err := server.Start(cfg.ServerPort); err != nil {
			log.Fatal().Err(err).Msg("Control API failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	log.Info().
		Int("port", cfg.ServerPort).
		Str("obs", cfg.OBS.URL).
		Str("source", cfg.Target.Source).
		Msg("recapture is running, press Ctrl+C to stop")

	<-sigChan

	log.Info().Msg("Shutting down")
	cancel()
	host.Close()
	return nil
}

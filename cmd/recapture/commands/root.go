package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bryanchriswhite/recapture/internal/config"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "recapture",
		Short: "recapture - Keep OBS window capture locked onto moving targets",
		Long: `recapture keeps an OBS window capture source pointed at a window whose
title keeps changing, like games, emulators, and browsers.

It enumerates the desktop's windows, finds the one owned by a configured
executable whose title matches a regular expression, and rewrites the
capture source's settings over obs-websocket whenever the window closes,
changes its title, or the program scene switches.`,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/recapture/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "control API port (default is 8080)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("obs-url", "", "obs-websocket URL (default is ws://localhost:4455)")
	rootCmd.PersistentFlags().String("backend", "", "window backend: auto, x11, or mutter")

	// Bind flags to viper
	viper.BindPFlag("server_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("obs_url", rootCmd.PersistentFlags().Lookup("obs-url"))
	viper.BindPFlag("backend", rootCmd.PersistentFlags().Lookup("backend"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the config file and applies flag overrides to the
// snapshot. Overrides are for this invocation only; they are never written
// back to the file.
func loadConfig() (*config.Manager, config.Config, error) {
	configMgr, err := config.NewManager(cfgFile)
	if err != nil {
		return nil, config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}

	cfg := configMgr.Get()
	if port := viper.GetInt("server_port"); port > 0 {
		cfg.ServerPort = port
	}
	if level := viper.GetString("log_level"); level != "" {
		cfg.LogLevel = level
	}
	if url := viper.GetString("obs_url"); url != "" {
		cfg.OBS.URL = url
	}
	if backend := viper.GetString("backend"); backend != "" {
		cfg.Backend = backend
	}

	if err := cfg.Validate(); err != nil {
		return nil, config.Config{}, err
	}
	return configMgr, cfg, nil
}

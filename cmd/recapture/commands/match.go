package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/recapture/internal/logger"
	"github.com/bryanchriswhite/recapture/internal/obs"
	"github.com/bryanchriswhite/recapture/internal/tracker"
	"github.com/bryanchriswhite/recapture/internal/window"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Run a one-shot search for the target window",
	Long: `Search for the window the configured target describes and print it.

This is the dry-run path for debugging a target: the same matching the
daemon performs, without arming a watch. Pass --reconcile to also point the
capture source at the matched window once.`,
	Example: `  # Search using the configured target
  recapture match

  # Try a different pattern without saving it
  recapture match --executable retroarch --pattern "RetroArch .*"

  # Match and update the capture source once
  recapture match --reconcile`,
	RunE: runMatch,
}

var (
	matchExecutable string
	matchPattern    string
	matchRetry      int
	matchReconcile  bool
)

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().StringVarP(&matchExecutable, "executable", "e", "", "executable owning the window")
	matchCmd.Flags().StringVarP(&matchPattern, "pattern", "p", "", "title pattern, matched from the start of the title")
	matchCmd.Flags().IntVarP(&matchRetry, "retry", "r", 0, "extra enumeration passes before giving up")
	matchCmd.Flags().BoolVar(&matchReconcile, "reconcile", false, "update the capture source with the match")
}

func runMatch(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger.Init(cfg.LogLevel, true)

	target := cfg.Target
	if cmd.Flags().Changed("executable") {
		target.Executable = matchExecutable
	}
	if cmd.Flags().Changed("pattern") {
		target.TitlePattern = matchPattern
	}
	if cmd.Flags().Changed("retry") {
		target.RetryCount = matchRetry
	}

	if target.Executable == "" {
		return fmt.Errorf("no executable to search for; configure a target or pass --executable")
	}
	if err := target.Validate(); err != nil {
		return err
	}

	backend, err := window.Open(cfg.Backend)
	if err != nil {
		return fmt.Errorf("failed to open window backend: %w", err)
	}
	defer backend.Close()

	matcher := tracker.NewMatcher(backend)
	win, err := matcher.Match(context.Background(), target)
	if err != nil {
		return err
	}

	fmt.Println("✅ Matched window")
	fmt.Printf("   ID:    %d\n", win.ID)
	fmt.Printf("   App:   %s\n", win.App)
	fmt.Printf("   Title: %s\n", win.Title)

	if !matchReconcile {
		return nil
	}
	if target.Source == "" {
		return fmt.Errorf("no capture source configured; set one with 'recapture target set --source NAME'")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := obs.NewClient(cfg.OBS.URL, cfg.OBS.Password)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to obs: %w", err)
	}
	defer client.Close()

	outcome, err := tracker.NewReconciler(client).Reconcile(ctx, target.Source, win, tracker.UpdateAll)
	if err != nil {
		return err
	}

	switch outcome {
	case tracker.OutcomeUpdated:
		fmt.Printf("✅ Updated source %q\n", target.Source)
	case tracker.OutcomeUnchanged:
		fmt.Printf("Source %q already points at this window\n", target.Source)
	case tracker.OutcomeSourceMissing:
		fmt.Printf("⚠️  No window capture source named %q in the current scene\n", target.Source)
	}
	return nil
}

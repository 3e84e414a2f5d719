package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/recapture/internal/config"
)

var targetCmd = &cobra.Command{
	Use:   "target",
	Short: "Manage the capture target",
	Long: `Show or change the window the daemon keeps the capture source pointed at.

A target names a capture source in OBS, the executable owning the window,
and a title pattern matched from the start of the title.`,
}

var targetShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the configured target",
	RunE:  runTargetShow,
}

var targetSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update the configured target",
	Example: `  # Track a RetroArch window whose title carries the core name
  recapture target set --source "Game Capture" --executable retroarch --pattern "RetroArch .*"

  # Only change the retry count
  recapture target set --retry 5`,
	RunE: runTargetSet,
}

var (
	targetSource     string
	targetExecutable string
	targetPattern    string
	targetRetry      int
	targetRetryDelay int
)

func init() {
	rootCmd.AddCommand(targetCmd)
	targetCmd.AddCommand(targetShowCmd)
	targetCmd.AddCommand(targetSetCmd)

	targetSetCmd.Flags().StringVarP(&targetSource, "source", "s", "", "capture source name in OBS")
	targetSetCmd.Flags().StringVarP(&targetExecutable, "executable", "e", "", "executable owning the window")
	targetSetCmd.Flags().StringVarP(&targetPattern, "pattern", "p", "", "title pattern, matched from the start of the title")
	targetSetCmd.Flags().IntVar(&targetRetry, "retry", 0, "extra enumeration passes before giving up")
	targetSetCmd.Flags().IntVar(&targetRetryDelay, "retry-delay", 0, "pause between retries in milliseconds")
}

func runTargetShow(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	target := configMgr.Get().Target

	fmt.Println("Capture target:")
	fmt.Printf("  Source:      %s\n", orNone(target.Source))
	fmt.Printf("  Executable:  %s\n", orNone(target.Executable))
	fmt.Printf("  Pattern:     %s\n", orNone(target.TitlePattern))
	fmt.Printf("  Retries:     %d\n", target.RetryCount)
	fmt.Printf("  Retry delay: %dms\n", target.RetryDelayMS)
	if !target.Configured() {
		fmt.Println("\nTarget is incomplete; the daemon stays idle until source and executable are set.")
	}
	return nil
}

func runTargetSet(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	target := configMgr.Get().Target
	changed := false
	if cmd.Flags().Changed("source") {
		target.Source = targetSource
		changed = true
	}
	if cmd.Flags().Changed("executable") {
		target.Executable = targetExecutable
		changed = true
	}
	if cmd.Flags().Changed("pattern") {
		target.TitlePattern = targetPattern
		changed = true
	}
	if cmd.Flags().Changed("retry") {
		target.RetryCount = targetRetry
		changed = true
	}
	if cmd.Flags().Changed("retry-delay") {
		target.RetryDelayMS = targetRetryDelay
		changed = true
	}
	if !changed {
		return fmt.Errorf("nothing to change; pass at least one flag")
	}

	if err := target.Validate(); err != nil {
		return err
	}
	if err := configMgr.SetTarget(target); err != nil {
		return fmt.Errorf("failed to save target: %w", err)
	}

	fmt.Printf("✅ Target updated: %s tracking %s (%s)\n", orNone(target.Source), target.Executable, orNone(target.TitlePattern))
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

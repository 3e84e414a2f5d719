package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/recapture/internal/logger"
	"github.com/bryanchriswhite/recapture/internal/window"
)

var windowsCmd = &cobra.Command{
	Use:   "windows",
	Short: "List open windows",
	Long: `List all top-level windows the backend can see.

Use this to find the application name and title to build a capture target
from.`,
	Example: `  # List windows in table format (default)
  recapture windows

  # List windows in JSON format
  recapture windows --format json

  # Force the Mutter backend
  recapture windows --backend mutter`,
	RunE: runWindows,
}

var windowsFormat string

func init() {
	rootCmd.AddCommand(windowsCmd)

	windowsCmd.Flags().StringVarP(&windowsFormat, "format", "f", "table", "output format (table or json)")
}

func runWindows(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger.Init(cfg.LogLevel, true)

	backend, err := window.Open(cfg.Backend)
	if err != nil {
		return fmt.Errorf("failed to open window backend: %w", err)
	}
	defer backend.Close()

	windows, err := backend.Windows()
	if err != nil {
		return fmt.Errorf("failed to list windows: %w", err)
	}

	switch windowsFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(windows)
	case "table":
		return printWindowsTable(windows)
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", windowsFormat)
	}
}

func printWindowsTable(windows []window.Window) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "ID\tAPP\tPID\tTITLE")
	fmt.Fprintln(w, "--\t---\t---\t-----")

	for _, win := range windows {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", win.ID, win.App, win.PID, win.Title)
	}

	return nil
}

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/recapture/internal/logger"
	"github.com/bryanchriswhite/recapture/internal/obs"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List window capture sources in OBS",
	Long: `List the window capture inputs OBS knows about.

Only window capture kinds can be tracked; other inputs are hidden. The name
shown here is what the capture target's source field must be set to.`,
	Example: `  # List capture sources
  recapture sources

  # Against a remote OBS instance
  recapture sources --obs-url ws://studio-pc:4455`,
	RunE: runSources,
}

var sourcesFormat string

func init() {
	rootCmd.AddCommand(sourcesCmd)

	sourcesCmd.Flags().StringVarP(&sourcesFormat, "format", "f", "table", "output format (table or json)")
}

func runSources(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger.Init(cfg.LogLevel, true)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := obs.NewClient(cfg.OBS.URL, cfg.OBS.Password)
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to obs: %w", err)
	}
	defer client.Close()

	inputs, err := client.Inputs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list inputs: %w", err)
	}

	sources := make([]obs.Input, 0, len(inputs))
	for _, in := range inputs {
		if obs.IsWindowCaptureKind(in.Kind) {
			sources = append(sources, in)
		}
	}

	switch sourcesFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(sources)
	case "table":
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		defer w.Flush()
		fmt.Fprintln(w, "NAME\tKIND")
		fmt.Fprintln(w, "----\t----")
		for _, src := range sources {
			fmt.Fprintf(w, "%s\t%s\n", src.Name, src.Kind)
		}
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", sourcesFormat)
	}
}

// Command polyconv converts Calabi-Yau classification datasets from their
// legacy text formats into partitioned columnar files.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "polyconv",
	Short: "Convert Calabi-Yau weight-system datasets to columnar files",
	Long: `polyconv converts the line-oriented text formats produced by the
weight-system and polytope classification tools into partitioned,
analysis-friendly parquet files.

The ipws subcommand correlates a weight-system stream with its
polytope-info stream, classifies every record as non-IP, non-reflexive or
reflexive, and writes one partition per class. Prior outputs can be
supplied to resume an interrupted run. The palp subcommand converts
PALP-style output into a single parquet file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("polyconv failed", "error", err)
		os.Exit(1)
	}
}

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"polyconv/internal/pipeline"
)

var revCfg pipeline.ReverseConfig

var reverseCmd = &cobra.Command{
	Use:   "reverse",
	Short: "Convert partition files back into the weight-system text streams",
	RunE: func(cmd *cobra.Command, args []string) error {
		revCfg.Logger = slog.Default()
		_, err := pipeline.Reverse(cmd.Context(), revCfg)
		return err
	},
}

func init() {
	f := reverseCmd.Flags()

	f.StringVar(&revCfg.Inputs.NonIP, "non-ip-in", "", "non-ip partition file of a previous conversion")
	f.StringVar(&revCfg.Inputs.NonReflexive, "non-reflexive-in", "", "non-reflexive partition file of a previous conversion")
	f.StringVar(&revCfg.Inputs.Reflexive, "reflexive-in", "", "reflexive partition file of a previous conversion")

	f.StringVar(&revCfg.WeightSystemPath, "ws-out", "", "weight-system text output (plain, .gz, .zst or .lz4)")
	f.StringVar(&revCfg.PolytopeInfoPath, "polytope-info-out", "", "polytope-info text output (plain, .gz, .zst or .lz4)")

	f.Uint64Var(&revCfg.Limit, "limit", 0, "maximum number of records to write (0 = unlimited)")

	for _, name := range []string{"non-ip-in", "non-reflexive-in", "reflexive-in"} {
		_ = reverseCmd.MarkFlagRequired(name)
	}

	rootCmd.AddCommand(reverseCmd)
}

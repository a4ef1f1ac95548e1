package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"polyconv/internal/pipeline"
	"polyconv/internal/pqcol"
)

var ipwsCfg pipeline.Config

var ipwsCmd = &cobra.Command{
	Use:   "ipws",
	Short: "Correlate, classify and convert weight-system records",
	RunE: func(cmd *cobra.Command, args []string) error {
		ipwsCfg.Logger = slog.Default()
		_, err := pipeline.Run(cmd.Context(), ipwsCfg)
		return err
	},
}

func init() {
	f := ipwsCmd.Flags()

	f.StringVar(&ipwsCfg.WeightSystemPath, "ws-in", "", "weight-system input file (plain, .gz, .zst or .lz4)")
	f.StringVar(&ipwsCfg.PolytopeInfoPath, "polytope-info-in", "", "polytope-info input file (plain, .gz, .zst or .lz4)")

	f.StringVar(&ipwsCfg.Outputs.NonIP, "non-ip-out", "", "output file for weight systems without an interior point")
	f.StringVar(&ipwsCfg.Outputs.NonReflexive, "non-reflexive-out", "", "output file for non-reflexive weight systems")
	f.StringVar(&ipwsCfg.Outputs.Reflexive, "reflexive-out", "", "output file for reflexive weight systems")

	f.StringVar(&ipwsCfg.Priors.NonIP, "prior-non-ip", "", "prior non-ip output to resume from")
	f.StringVar(&ipwsCfg.Priors.NonReflexive, "prior-non-reflexive", "", "prior non-reflexive output to resume from")
	f.StringVar(&ipwsCfg.Priors.Reflexive, "prior-reflexive", "", "prior reflexive output to resume from")

	f.BoolVarP(&ipwsCfg.IncludeDerived, "include-derived-quantities", "i", false, "compute h22 and the euler characteristic for six-dimensional reflexive records")
	f.Uint64Var(&ipwsCfg.Limit, "limit", 0, "maximum number of correlated records to process (0 = unlimited)")
	f.IntVar(&ipwsCfg.RowGroupSize, "row-group-size", pqcol.DefaultOptions.RowGroupSize, "rows per output row group")
	f.Uint64Var(&ipwsCfg.MalformedLimit, "malformed-limit", 0, "malformed input lines tolerated before aborting")
	f.IntVar(&ipwsCfg.EnrichWorkers, "enrich-workers", 1, "goroutines for derived-quantity computation")

	for _, name := range []string{"ws-in", "polytope-info-in", "non-ip-out", "non-reflexive-out", "reflexive-out"} {
		_ = ipwsCmd.MarkFlagRequired(name)
	}

	rootCmd.AddCommand(ipwsCmd)
}

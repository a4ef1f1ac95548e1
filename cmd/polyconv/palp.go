package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"polyconv/internal/palp"
	"polyconv/internal/pqcol"
)

var (
	palpIn           string
	palpOut          string
	palpRowGroupSize int
)

var palpCmd = &cobra.Command{
	Use:   "palp",
	Short: "Convert PALP classification output to a columnar file",
	RunE: func(cmd *cobra.Command, args []string) error {
		rows, err := palp.Convert(palpIn, palpOut, func(o *pqcol.Options) {
			o.RowGroupSize = palpRowGroupSize
		})
		if err != nil {
			return err
		}
		slog.Info("conversion finished", "polytopes", rows, "output", palpOut)
		return nil
	},
}

func init() {
	f := palpCmd.Flags()

	f.StringVar(&palpIn, "palp-in", "", "PALP input file (plain, .gz, .zst or .lz4)")
	f.StringVar(&palpOut, "parquet-out", "", "output file")
	f.IntVar(&palpRowGroupSize, "row-group-size", pqcol.DefaultOptions.RowGroupSize, "rows per output row group")

	_ = palpCmd.MarkFlagRequired("palp-in")
	_ = palpCmd.MarkFlagRequired("parquet-out")

	rootCmd.AddCommand(palpCmd)
}

package main

import (
	"github.com/spf13/cobra"

	"healthkey/indexer"
)

func newExportCmd() *cobra.Command {
	var driver, dsn, out string
	var fromSlot uint64
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export indexed rewards to CSV and Parquet",
		Long: `Reads the reward history straight from the indexer database and writes
rewards.csv and rewards.parquet to --out. The node may keep running.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ix, err := indexer.Open(driver, dsn, nil)
			if err != nil {
				return err
			}
			defer ix.Close()
			result, err := ix.ExportRewards(cmd.Context(), out, fromSlot)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
	cmd.Flags().StringVar(&driver, "driver", indexer.DriverSQLite, "Indexer driver (sqlite or postgres)")
	cmd.Flags().StringVar(&dsn, "dsn", "healthkey-data/indexer.db", "Indexer data source name")
	cmd.Flags().StringVar(&out, "out", "export", "Output directory")
	cmd.Flags().Uint64Var(&fromSlot, "from-slot", 0, "First slot to include")
	return cmd
}

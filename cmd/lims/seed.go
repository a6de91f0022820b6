package main

import (
	"fmt"

	"github.com/labtrack/lims/pkg/lims/seed"
	"github.com/spf13/cobra"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load reference data from a YAML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := seed.Load(seedFile)
		if err != nil {
			return err
		}

		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.service.Migrate(cmd.Context()); err != nil {
			return err
		}
		sum, err := seed.Apply(cmd.Context(), a.service, f)
		if err != nil {
			return err
		}
		for collection, n := range sum.Created {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d created, %d skipped\n", collection, n, sum.Skipped[collection])
		}
		for collection, n := range sum.Skipped {
			if _, ok := sum.Created[collection]; !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: 0 created, %d skipped\n", collection, n)
			}
		}
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "seed.yaml", "seed file")
}

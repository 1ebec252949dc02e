package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/f1-etl/internal/legacy"
)

var legacyCmd = &cobra.Command{
	Use:   "legacy",
	Short: "Convert a new-schema drivers CSV to the legacy layout",
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := cmd.Flags()
		var o legacy.Options
		o.DriversPath, _ = f.GetString("drivers")
		o.RacePath, _ = f.GetString("race")
		o.OutPath, _ = f.GetString("out")

		_, err := legacy.Convert(cmd.Context(), o)
		return err
	},
}

func init() {
	f := legacyCmd.Flags()
	f.String("drivers", "", "path to the new-schema drivers CSV")
	f.String("race", "", "path to a race features CSV (optional)")
	f.String("out", "", "output path for the legacy CSV")
	_ = legacyCmd.MarkFlagRequired("drivers")
	_ = legacyCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(legacyCmd)
}

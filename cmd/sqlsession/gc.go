package main

import (
	"github.com/aretw0/sqlsession/internal/cli"
	"github.com/spf13/cobra"
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Delete every expired session now",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, _, _, err := runtime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := rt.Provider.Collect(cmd.Context()); err != nil {
			return err
		}
		cli.NewPrinter(cmd.OutOrStdout()).Success("Expired sessions collected")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(gcCmd)
}

package main

import (
	"fmt"

	"github.com/aretw0/sqlsession"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of sqlsession",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "sqlsession version %s\n", sqlsession.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

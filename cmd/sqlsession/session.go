package main

import (
	"fmt"

	"github.com/aretw0/sqlsession/internal/cli"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect and remove stored sessions",
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect <session-id>",
	Short: "Print the payload of a live session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, _, _, err := runtime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		data, found, err := rt.Provider.Peek(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("error loading session '%s': %w", args[0], err)
		}
		if !found {
			return fmt.Errorf("session '%s' not found or expired", args[0])
		}
		_, err = cmd.OutOrStdout().Write(append(data, '\n'))
		return err
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm <session-id>...",
	Short: "Remove one or more sessions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, _, _, err := runtime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		out := cli.NewPrinter(cmd.OutOrStdout())
		failed := 0
		for _, id := range args {
			if err := rt.Provider.Destroy(cmd.Context(), id); err != nil {
				out.Fail("Error removing '%s': %v", id, err)
				failed++
				continue
			}
			out.Success("Removed session '%s'", id)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d sessions could not be removed", failed, len(args))
		}
		return nil
	},
}

var sessionSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the CREATE TABLE statement for the configured table",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), cfg.Table.Schema().CreateTable()+";")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionInspectCmd)
	sessionCmd.AddCommand(sessionRmCmd)
	sessionCmd.AddCommand(sessionSchemaCmd)
}

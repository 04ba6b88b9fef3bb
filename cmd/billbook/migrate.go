package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the ledger schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Starting the engine runs the store migrations.
			_, stop, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer stop()

			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", a.cfg.Store.Driver)
			return nil
		},
	}
}

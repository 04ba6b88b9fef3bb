package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xraph/billbook/access"
	"github.com/xraph/billbook/branch"
)

func newBranchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "branch",
		Short: "Manage sales branches",
	}
	cmd.AddCommand(newBranchCreateCmd(a), newBranchListCmd(a))
	return cmd
}

func newBranchCreateCmd(a *app) *cobra.Command {
	var b branch.Branch

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a branch and its invoice code",
		Example: `  billbook branch create --name "Connaught Place" --code DEL
  billbook branch create --name Bandra --code BOM --phone "+91 22 5550 1234"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, stop, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer stop()

			b.Active = true
			if err := eng.CreateBranch(cmd.Context(), access.System, &b); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created branch %s (%s) %s\n", b.Code, b.Name, b.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&b.Name, "name", "", "branch name (unique)")
	cmd.Flags().StringVar(&b.Code, "code", "", "3-5 letter invoice code (unique)")
	cmd.Flags().StringVar(&b.Address, "address", "", "postal address")
	cmd.Flags().StringVar(&b.Contact.Phone, "phone", "", "contact phone")
	cmd.Flags().StringVar(&b.Contact.Email, "email", "", "contact email")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

func newBranchListCmd(a *app) *cobra.Command {
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List branches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, stop, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer stop()

			branches, err := eng.ListBranches(cmd.Context(), branch.ListOpts{ActiveOnly: activeOnly})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CODE\tNAME\tACTIVE\tID")
			for _, b := range branches {
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", b.Code, b.Name, b.Active, b.ID)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&activeOnly, "active", false, "only active branches")
	return cmd
}

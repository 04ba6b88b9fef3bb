package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xraph/billbook"
	"github.com/xraph/billbook/access"
	"github.com/xraph/billbook/export"
)

// rangeFlags are the --from/--to/--branch flags shared by export and
// report commands.
type rangeFlags struct {
	from   string
	to     string
	branch string
}

func (r *rangeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.from, "from", "", "first day, YYYY-MM-DD (inclusive)")
	cmd.Flags().StringVar(&r.to, "to", "", "last day, YYYY-MM-DD (inclusive)")
	cmd.Flags().StringVar(&r.branch, "branch", "", "branch code; all branches when empty")
}

// filter resolves the flags against eng: days are read in the engine's
// location and the branch code is looked up.
func (r *rangeFlags) filter(cmd *cobra.Command, eng *billbook.Engine) (export.Filter, error) {
	from, to, err := parseRange(r.from, r.to, eng.Location())
	if err != nil {
		return export.Filter{}, err
	}
	f := export.Filter{From: from, To: to}

	if r.branch != "" {
		b, err := eng.GetBranchByCode(cmd.Context(), r.branch)
		if err != nil {
			return export.Filter{}, fmt.Errorf("branch %s: %w", r.branch, err)
		}
		f.BranchID = b.ID
	}
	return f, nil
}

func newExportCmd(a *app) *cobra.Command {
	var rf rangeFlags

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export unexported invoices as a Tally voucher batch",
		Long: `Claims every invoice in the range that has not been exported yet,
writes them as one Tally XML artifact to the export directory and marks them
exported. Running it again exports only invoices created since.`,
		Example: `  billbook export --from 2024-03-01 --to 2024-03-31
  billbook export --from 2024-03-15 --to 2024-03-15 --branch DEL`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, stop, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer stop()

			f, err := rf.filter(cmd, eng)
			if err != nil {
				return err
			}

			res, err := eng.ExportBatch(cmd.Context(), access.System, f)
			if errors.Is(err, billbook.ErrNoPendingInvoices) {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to export")
				return nil
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "batch %s: %d invoices, %s\n", res.Batch.ID, res.Batch.InvoiceCount, res.Batch.Total)
			fmt.Fprintf(out, "artifact: %s\n", res.Batch.Artifact)
			return nil
		},
	}

	rf.register(cmd)
	cmd.Flags().StringVar(&a.exportDir, "dir", "", "export directory (overrides export.dir)")
	return cmd
}

func newExportStatusCmd(a *app) *cobra.Command {
	var rf rangeFlags

	cmd := &cobra.Command{
		Use:   "export-status",
		Short: "Count exported and pending invoices in a range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, stop, err := a.engine(cmd.Context())
			if err != nil {
				return err
			}
			defer stop()

			f, err := rf.filter(cmd, eng)
			if err != nil {
				return err
			}
			st, err := eng.ExportStatus(cmd.Context(), access.System, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "total %d, exported %d, pending %d\n", st.Total, st.Exported, st.Pending)
			return nil
		},
	}

	rf.register(cmd)
	return cmd
}

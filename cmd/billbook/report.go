package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xraph/billbook/access"
	"github.com/xraph/billbook/invoice"
	"github.com/xraph/billbook/report"
)

func newReportCmd(a *app) *cobra.Command {
	var (
		rf      rangeFlags
		csvPath string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the sales summary and payment analysis for a range",
		Example: `  billbook report --from 2024-03-01 --to 2024-03-31
  billbook report --from 2024-03-01 --to 2024-03-31 --branch BOM --csv march.csv`,
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
			opts := invoice.ListOpts{Start: f.From, End: f.To, BranchID: f.BranchID}

			sum, err := eng.SalesReport(cmd.Context(), access.System, opts)
			if err != nil {
				return err
			}
			modes, err := eng.PaymentAnalysis(cmd.Context(), access.System, opts)
			if err != nil {
				return err
			}

			if err := printReport(cmd, sum, modes); err != nil {
				return err
			}

			if csvPath == "" {
				return nil
			}
			rows, err := eng.SalesRows(cmd.Context(), access.System, opts)
			if err != nil {
				return err
			}
			return writeCSVFile(csvPath, rows)
		},
	}

	rf.register(cmd)
	cmd.Flags().StringVar(&csvPath, "csv", "", "also write one row per invoice to this CSV file")
	return cmd
}

func printReport(cmd *cobra.Command, sum *report.Summary, modes []report.ModeAnalysis) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', tabwriter.AlignRight)

	fmt.Fprintf(w, "Invoices\t%d\t\n", sum.InvoiceCount)
	fmt.Fprintf(w, "Total sales\t%s\t\n", sum.TotalSales)
	if sum.Skipped > 0 {
		fmt.Fprintf(w, "Skipped (other currency)\t%d\t\n", sum.Skipped)
	}

	fmt.Fprintln(w, "\t\t")
	fmt.Fprintln(w, "Day\tSales\t")
	for _, day := range sum.Days() {
		fmt.Fprintf(w, "%s\t%s\t\n", day, sum.Daily[day])
	}

	fmt.Fprintln(w, "\t\t")
	fmt.Fprintln(w, "Mode\tAmount\tCount\tDone\tFailed\tPending\tSuccess\t")
	for _, m := range modes {
		rate := "-"
		if m.SuccessRate != nil {
			rate = fmt.Sprintf("%.1f%%", *m.SuccessRate)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%s\t\n",
			m.Mode, m.Amount, m.Count, m.Completed, m.Failed, m.Pending, rate)
	}
	return w.Flush()
}

func writeCSVFile(path string, rows []report.Row) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return report.WriteCSV(f, rows)
}

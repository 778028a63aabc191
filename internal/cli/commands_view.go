package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"moneytrack/internal/core"
	"moneytrack/internal/export"
	"moneytrack/internal/services"
)

func newHealthCmd(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the backend health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := rt.App()
			if err != nil {
				return err
			}
			if !app.Coordinator.CheckHealth(cmd.Context()) {
				fmt.Fprintf(rt.Out, "backend %s: unreachable\n", app.Remote.BaseURL())
				return services.ErrBackendUnreachable
			}
			fmt.Fprintf(rt.Out, "backend %s: ok\n", app.Remote.BaseURL())
			return nil
		},
	}
}

func newListCmd(rt *Runtime) *cobra.Command {
	var (
		filters filterFlags
		limit   int
		match   string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions matching the filters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := filters.criteria()
			if err != nil {
				return err
			}
			app, err := rt.App()
			if err != nil {
				return err
			}
			st, err := load(cmd.Context(), rt.Out, app, f)
			if err != nil {
				return err
			}

			txs := st.Transactions
			if match != "" {
				txs = st.SearchLocal(match)
			}
			if limit > 0 {
				if match == "" {
					txs = st.RecentTransactions(limit)
				} else if len(txs) > limit {
					txs = txs[:limit]
				}
			}
			printTransactions(rt.Out, txs)
			return nil
		},
	}
	filters.register(cmd)
	cmd.Flags().IntVar(&limit, "limit", 0, "show only the N most recent transactions")
	cmd.Flags().StringVar(&match, "match", "", "filter the loaded list by title, category or description")
	return cmd
}

func newSummaryCmd(rt *Runtime) *cobra.Command {
	var (
		filters filterFlags
		top     int
	)
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show totals, the monthly series and top categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := filters.criteria()
			if err != nil {
				return err
			}
			app, err := rt.App()
			if err != nil {
				return err
			}
			st, err := load(cmd.Context(), rt.Out, app, f)
			if err != nil {
				return err
			}

			totals := st.Summary.Totals
			fmt.Fprintf(rt.Out, "Income:  %s\nExpense: %s\nBalance: %s\n",
				totals.Income.Fixed(), totals.Expense.Fixed(), totals.Balance().Fixed())

			if len(st.Summary.Monthly) > 0 {
				fmt.Fprintln(rt.Out, "\nMonth\tIncome\tExpense")
				tw := tabwriter.NewWriter(rt.Out, 0, 4, 2, ' ', 0)
				for _, m := range st.Summary.Monthly {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", m.Month, m.Income.Fixed(), m.Expense.Fixed())
				}
				tw.Flush()
			}

			if cats := st.TopCategories(top); len(cats) > 0 {
				fmt.Fprintln(rt.Out, "\nTop categories")
				tw := tabwriter.NewWriter(rt.Out, 0, 4, 2, ' ', 0)
				for _, c := range cats {
					fmt.Fprintf(tw, "%s\t%s\t%d\n", c.Category, c.Total.Fixed(), c.Count)
				}
				tw.Flush()
			}
			return nil
		},
	}
	filters.register(cmd)
	cmd.Flags().IntVar(&top, "top", 5, "number of categories to show")
	return cmd
}

func newExportCmd(rt *Runtime) *cobra.Command {
	var (
		filters  filterFlags
		out      string
		toSheets bool
		header   bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the loaded transactions as CSV",
		Long: `Export writes the loaded transactions as CSV. Use --out - for stdout.
With --sheets the same rows are also appended to the configured Google Sheet.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := filters.criteria()
			if err != nil {
				return err
			}
			app, err := rt.App()
			if err != nil {
				return err
			}
			st, err := load(cmd.Context(), rt.ErrOut, app, f)
			if err != nil {
				return err
			}

			if out == "" {
				out = export.FileName(rt.Now())
			}
			if err := writeCSVTo(rt.Out, out, st.Transactions); err != nil {
				return err
			}
			app.Metrics.ObserveExport("csv", len(st.Transactions))
			if out != "-" {
				fmt.Fprintf(rt.ErrOut, "wrote %d transactions to %s\n", len(st.Transactions), out)
			}

			if !toSheets {
				return nil
			}
			exporter, err := app.SheetsExporter(cmd.Context())
			if err != nil {
				return err
			}
			updated, err := exporter.Append(cmd.Context(), st.Transactions, header)
			if err != nil {
				return err
			}
			app.Metrics.ObserveExport("sheets", len(st.Transactions))
			fmt.Fprintf(rt.ErrOut, "appended to sheet range %s\n", updated)
			return nil
		},
	}
	filters.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default expenses-YYYY-MM-DD.csv, - for stdout)")
	cmd.Flags().BoolVar(&toSheets, "sheets", false, "also append rows to Google Sheets")
	cmd.Flags().BoolVar(&header, "sheet-header", false, "write the header row to the sheet first")
	return cmd
}

func writeCSVTo(stdout io.Writer, path string, txs []core.Transaction) error {
	if path == "-" {
		return export.WriteCSV(stdout, txs)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	if err := export.WriteCSV(f, txs); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func newCategoriesCmd(rt *Runtime) *cobra.Command {
	var typ string
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List the categories offered for a transaction type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var t core.TransactionType
			if typ != "" {
				parsed, err := core.ParseTransactionType(typ)
				if err != nil {
					return err
				}
				t = parsed
			}
			for _, c := range core.CategoriesFor(t) {
				fmt.Fprintln(rt.Out, c)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&typ, "type", "", "income or expense (default both)")
	return cmd
}

func printTransactions(w io.Writer, txs []core.Transaction) {
	if len(txs) == 0 {
		fmt.Fprintln(w, "no transactions")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTYPE\tCATEGORY\tAMOUNT\tTITLE")
	for _, t := range txs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", t.ID, t.Date, t.Type, t.Category, t.Amount.Fixed(), t.Title)
	}
	tw.Flush()
}

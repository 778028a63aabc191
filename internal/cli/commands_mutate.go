package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"moneytrack/internal/core"
)

type txFlags struct {
	title       string
	amount      string
	typ         string
	category    string
	date        string
	description string
}

func (f *txFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "transaction title")
	cmd.Flags().StringVar(&f.amount, "amount", "", "amount, e.g. 12.50")
	cmd.Flags().StringVar(&f.typ, "type", "", "income or expense")
	cmd.Flags().StringVar(&f.category, "category", "", "category name")
	cmd.Flags().StringVar(&f.date, "date", "", "date as YYYY-MM-DD")
	cmd.Flags().StringVar(&f.description, "description", "", "free-text note")
}

// draft applies the flags over the form defaults.
func (f *txFlags) draft(base core.Transaction) (core.Transaction, error) {
	t := base
	t.Title = strings.TrimSpace(f.title)
	t.Description = strings.TrimSpace(f.description)

	amount, err := core.ParseAmount(f.amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("amount %q: %w", f.amount, err)
	}
	t.Amount = amount

	if f.typ != "" {
		typ, err := core.ParseTransactionType(f.typ)
		if err != nil {
			return core.Transaction{}, err
		}
		t.Type = typ
		t.Category = core.DefaultCategory(typ)
	}
	if f.category != "" {
		t.Category = f.category
	}
	if f.date != "" {
		d, err := core.ParseDate(f.date)
		if err != nil {
			return core.Transaction{}, fmt.Errorf("date %q: %w", f.date, err)
		}
		t.Date = d
	}
	return t, nil
}

// update carries only the flags the user set.
func (f *txFlags) update(cmd *cobra.Command) (core.TransactionUpdate, error) {
	var u core.TransactionUpdate
	changed := cmd.Flags().Changed

	if changed("title") {
		title := strings.TrimSpace(f.title)
		u.Title = &title
	}
	if changed("amount") {
		amount, err := core.ParseAmount(f.amount)
		if err != nil {
			return u, fmt.Errorf("amount %q: %w", f.amount, err)
		}
		u.Amount = &amount
	}
	if changed("type") {
		typ, err := core.ParseTransactionType(f.typ)
		if err != nil {
			return u, err
		}
		u.Type = &typ
	}
	if changed("category") {
		category := f.category
		u.Category = &category
	}
	if changed("date") {
		d, err := core.ParseDate(f.date)
		if err != nil {
			return u, fmt.Errorf("date %q: %w", f.date, err)
		}
		u.Date = &d
	}
	if changed("description") {
		description := strings.TrimSpace(f.description)
		u.Description = &description
	}
	return u, nil
}

func newAddCmd(rt *Runtime) *cobra.Command {
	var flags txFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a transaction on the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			draft, err := flags.draft(core.NewDraft(rt.Now()))
			if err != nil {
				return err
			}
			if err := draft.Validate(); err != nil {
				return err
			}
			app, err := rt.App()
			if err != nil {
				return err
			}
			created, err := app.Coordinator.Add(cmd.Context(), draft)
			if err != nil {
				return fmt.Errorf("add transaction: %w", err)
			}
			fmt.Fprintf(rt.Out, "created %s: %s %s (%s, %s)\n",
				created.ID, created.Title, created.Amount.Fixed(), created.Type, created.Category)
			return nil
		},
	}
	flags.register(cmd)
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newEditCmd(rt *Runtime) *cobra.Command {
	var flags txFlags
	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Change fields of an existing transaction",
		Long:  "Only the flags given on the command line are sent to the backend.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			changes, err := flags.update(cmd)
			if err != nil {
				return err
			}
			if err := changes.Validate(); err != nil {
				return err
			}
			app, err := rt.App()
			if err != nil {
				return err
			}
			updated, err := app.Coordinator.Update(cmd.Context(), args[0], changes)
			if err != nil {
				return fmt.Errorf("edit transaction: %w", err)
			}
			fmt.Fprintf(rt.Out, "updated %s: %s %s (%s, %s)\n",
				updated.ID, updated.Title, updated.Amount.Fixed(), updated.Type, updated.Category)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newDeleteCmd(rt *Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a transaction on the backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := rt.App()
			if err != nil {
				return err
			}
			if err := app.Coordinator.Delete(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("delete transaction: %w", err)
			}
			fmt.Fprintf(rt.Out, "deleted %s\n", args[0])
			return nil
		},
	}
}

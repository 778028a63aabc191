package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"moneytrack/internal/core"
	"moneytrack/internal/services"
)

type filterFlags struct {
	typ      string
	category string
	month    int
	year     int
	search   string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.typ, "type", "", "income or expense")
	cmd.Flags().StringVar(&f.category, "category", "", "category name")
	cmd.Flags().IntVar(&f.month, "month", 0, "month number, 1-12")
	cmd.Flags().IntVar(&f.year, "year", 0, "four-digit year")
	cmd.Flags().StringVar(&f.search, "search", "", "server-side text search")
}

func (f *filterFlags) criteria() (core.FilterCriteria, error) {
	c := core.FilterCriteria{
		Category: f.category,
		Month:    f.month,
		Year:     f.year,
		Search:   f.search,
	}
	if f.typ != "" {
		t, err := core.ParseTransactionType(f.typ)
		if err != nil {
			return core.FilterCriteria{}, err
		}
		c.Type = t
	}
	if err := c.Validate(); err != nil {
		return core.FilterCriteria{}, err
	}
	return c, nil
}

// load runs one cycle with f. A failed cycle still leaves fallback data in
// the store, so only caller cancellation is an error here; the banner is
// printed instead.
func load(ctx context.Context, out io.Writer, app *App, f core.FilterCriteria) (services.State, error) {
	err := app.Coordinator.ApplyFilters(ctx, f)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return services.State{}, err
	}
	st := app.Coordinator.State()
	if st.Error != "" {
		fmt.Fprintf(out, "! %s (showing %s data)\n", st.Error, st.Source)
	}
	return st, nil
}

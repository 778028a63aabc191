package cli

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"moneytrack/internal/log"
)

// Runtime carries what commands share. Tests replace Now and the writers.
type Runtime struct {
	Out    io.Writer
	ErrOut io.Writer
	Now    func() time.Time

	configPath string
	app        *App
}

// App builds the application on first use so commands that need no backend,
// such as categories, never touch configuration side effects.
func (rt *Runtime) App() (*App, error) {
	if rt.app != nil {
		return rt.app, nil
	}
	cfg, err := LoadConfig(rt.configPath)
	if err != nil {
		return nil, err
	}
	logger := SetupLogger(cfg, rt.ErrOut)
	app, err := NewApp(cfg, logger, rt.Now)
	if err != nil {
		return nil, err
	}
	rt.app = app
	return app, nil
}

func (rt *Runtime) close() {
	if rt.app == nil {
		return
	}
	if err := rt.app.Close(); err != nil {
		rt.app.Logger.Warn("Failed to close resources", log.FieldError, err.Error())
	}
	rt.app = nil
}

// NewRootCommand assembles the command tree.
func NewRootCommand(rt *Runtime) *cobra.Command {
	if rt.Out == nil {
		rt.Out = os.Stdout
	}
	if rt.ErrOut == nil {
		rt.ErrOut = os.Stderr
	}
	if rt.Now == nil {
		rt.Now = time.Now
	}

	root := &cobra.Command{
		Use:   "moneytrack",
		Short: "Track income and expenses against the money backend",
		Long: `moneytrack talks to the expense backend, keeps a consistent view of
transactions, summary and category analytics, and falls back to cached or
demo data when the backend cannot be reached.`,
		SilenceUsage: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			rt.close()
		},
	}
	root.SetOut(rt.Out)
	root.SetErr(rt.ErrOut)
	root.PersistentFlags().StringVar(&rt.configPath, "config", "", "TOML file overlaid on the environment")

	root.AddCommand(
		newHealthCmd(rt),
		newListCmd(rt),
		newSummaryCmd(rt),
		newAddCmd(rt),
		newEditCmd(rt),
		newDeleteCmd(rt),
		newExportCmd(rt),
		newCategoriesCmd(rt),
		newServeCmd(rt),
		newWatchCmd(rt),
	)
	return root
}

// Execute runs the CLI with process defaults.
func Execute(ctx context.Context) error {
	LoadEnvFile()
	rt := &Runtime{}
	defer rt.close()
	return NewRootCommand(rt).ExecuteContext(ctx)
}

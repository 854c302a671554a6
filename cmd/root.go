package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/artharvest/internal/app"
	"github.com/JakeFAU/artharvest/internal/config"
	"github.com/JakeFAU/artharvest/internal/logging"
	"github.com/JakeFAU/artharvest/internal/pipeline"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

type rootOptions struct {
	cfgFile  string
	pipeline string
	force    bool
	// app is set once PersistentPreRunE succeeds.
	app *app.App
}

// close releases the application services, if they were built.
func (o *rootOptions) close() {
	if o.app != nil {
		closeApp(o.app)
		o.app = nil
	}
}

// newRootCmd creates the root command and its subcommands. Callers close
// the returned options once the command has executed.
func newRootCmd() (*cobra.Command, *rootOptions) {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "artharvest",
		Short: "Harvests artist, artwork and exhibition metadata into versioned artifacts.",
		Long: `artharvest crawls art catalog sites into resumable batch files, collapses
them into deduplicated datasets and builds the artifacts behind the
recommendation service.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Build the application once config is known and before any RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(opts.cfgFile)
			if err != nil {
				return err
			}
			opts.app = a
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},

		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(opts.pipeline) == "" {
				return fmt.Errorf("--pipeline is required (one of %v)", pipeline.Names())
			}
			return runPipeline(cmd, opts.pipeline, opts.force)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (default is $CONFIG_PATH or config.yml)")
	cmd.Flags().StringVar(&opts.pipeline, "pipeline", "", fmt.Sprintf("pipeline to run, one of %v", pipeline.Names()))
	cmd.Flags().BoolVar(&opts.force, "force", false, "re-crawl even when outputs already exist")

	cmd.AddCommand(newPublishCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newTagsCmd())

	return cmd, opts
}

func newApp(cfgFile string) (*app.App, error) {
	cfg, err := config.Load(config.ResolvePath(cfgFile))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	a, err := app.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application services: %w", err)
	}
	return a, nil
}

func closeApp(a *app.App) {
	logger := a.Logger()
	if err := a.Close(); err != nil {
		logger.Warn("Error closing application services", zap.Error(err))
	}
	// Sync fails on some terminals; nothing useful to do about it.
	_ = logger.Sync()
}

func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey).(*app.App)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}

func runPipeline(cmd *cobra.Command, name string, force bool) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	runner, err := a.Pipeline(name, force)
	if err != nil {
		return err
	}
	a.Logger().Info("Starting pipeline", zap.String("pipeline", name), zap.Bool("force", force))
	if err := runner.Run(cmd.Context()); err != nil {
		return fmt.Errorf("run %s pipeline: %w", name, err)
	}
	a.Logger().Info("Pipeline finished", zap.String("pipeline", name))
	return nil
}

// Execute runs the CLI and exits non-zero on failure. SIGINT and SIGTERM
// cancel the running command, which flushes pending batches before exiting.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	root, opts := newRootCmd()
	err := root.ExecuteContext(ctx)
	if err != nil {
		zap.L().Error("Command execution failed", zap.Error(err))
	}
	opts.close()
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

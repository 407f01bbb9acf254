package main

import (
	"PrintForge/internal/catalog"
	"PrintForge/internal/config"
	"PrintForge/internal/importer"
	"PrintForge/internal/pipeline"
	"PrintForge/internal/sdk"
	"PrintForge/pkg/tool"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath   string
	workflowName string
	paperName    string
	inputPath    string
	libraryDir   string
	verbose      bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run-workflow",
		Short: "Run one print workflow against one exported image.",
		Long: `
Runs a single workflow from the definition file against one exported image.
Each step either shells out to an external tool or computes print metadata
in-process; the first failing step aborts the run and removes the partial
output.`,
		Example: `
	# Prepare an export for A4 paper
	run-workflow --config config.yaml --workflow "Fine Print" --paper "Matte A4" --input export.jpg

	# Import the result into the collection library as well
	run-workflow --config config.yaml --workflow "Fine Print" --input export.jpg --library ~/pictures/library`,
		RunE:          runWorkflow,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().StringVar(&configPath, "config", "config.yaml", "Path to the configuration file.")
	cmd.Flags().StringVar(&workflowName, "workflow", "", "Name of the workflow to run.")
	cmd.Flags().StringVar(&paperName, "paper", "", "Paper profile for print resolution; empty skips the PPI computation.")
	cmd.Flags().StringVar(&inputPath, "input", "", "Exported image file to process.")
	cmd.Flags().StringVar(&libraryDir, "library", "", "Collection library directory; overrides import.library_dir from the config.")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Log at debug level.")

	cmd.MarkFlagRequired("workflow")
	cmd.MarkFlagRequired("input")

	return cmd
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	logger, err := buildLogger(verbose)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	cfg, err := config.NewConfigLoader(logger).Load(configPath)
	if err != nil {
		return err
	}
	if libraryDir != "" {
		cfg.Import.LibraryDir = libraryDir
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A one-shot invocation has nothing to degrade into, so a broken
	// definition file fails here instead of as an unknown workflow
	catalogStore := catalog.NewStore(catalog.NewLoader(logger), cfg.Pipeline.DefinitionsPath, nil, logger)
	if err := catalogStore.Reload(ctx); err != nil {
		return err
	}

	engine, err := pipeline.NewEngine(tool.NewRunner(cfg.Pipeline.Shell), pipeline.Options{
		ExiftoolPath: cfg.Pipeline.ExiftoolPath,
		StepOptions:  cfg.Pipeline.StepOptions,
	}, nil, logger)
	if err != nil {
		return err
	}

	var imp *importer.Importer
	if cfg.Import.LibraryDir != "" {
		imp = importer.New(cfg.Import.LibraryDir, logger)
	}

	client := sdk.NewClient(catalogStore, engine, imp, nil, cfg.Import, logger)
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("Error closing pipeline client", zap.Error(err))
		}
	}()

	started := time.Now()
	res, err := client.RunWorkflow(ctx, pipeline.Request{
		ID:       uuid.New(),
		Workflow: workflowName,
		Paper:    paperName,
		Input:    inputPath,
	})
	if err != nil {
		var stepErr *pipeline.StepExecutionError
		if errors.As(err, &stepErr) {
			fmt.Fprintln(os.Stderr, stepErr.Step)
		}
		return err
	}

	run := res.Run
	fmt.Printf("Workflow %q succeeded: %d steps in %s\n",
		run.Workflow, len(run.Results), time.Since(started).Round(time.Millisecond))
	if run.PPI > 0 {
		fmt.Printf("Print resolution: %d PPI\n", run.PPI)
	}
	if res.Imported != nil {
		fmt.Printf("Imported into library: %s\n", res.Imported.Path)
	}
	return nil
}

// buildLogger keeps the CLI quiet at warn level unless --verbose asks
// for the full debug stream.
func buildLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	return zapCfg.Build()
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"

	"warpdrive-eval/internal/config"
	"warpdrive-eval/internal/dataset"
	"warpdrive-eval/internal/evaluator"
	"warpdrive-eval/internal/model"
	"warpdrive-eval/internal/report"
)

const testSplit = "test"

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		slog.Error("evaluation failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:           "warpdrive-eval",
		Short:         "Evaluate a trained classifier on the test split",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfgPath, stdout)
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "configs/test-config.yaml", "Path to YAML config")
	return cmd
}

func run(ctx context.Context, cfgPath string, stdout io.Writer) error {
	logger := slog.Default().With("run_id", uuid.NewString())

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger.Info("loaded config", "path", cfgPath, "context", cfg.Training.SaveContext, "device", cfg.Training.Device)

	device, err := model.ParseDevice(cfg.Training.Device)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.OutputDir(), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	loaders, classes, err := dataset.LoadersFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("build data loaders: %w", err)
	}
	if err := cfg.ResolveClasses(classes); err != nil {
		return err
	}

	mdl, err := model.Build(cfg.Model, cfg.Training.Seed)
	if err != nil {
		return fmt.Errorf("build model: %w", err)
	}
	loader, ok := loaders[testSplit]
	if !ok {
		return fmt.Errorf("no %q split under %s", testSplit, cfg.Data.Root)
	}
	logger.Info("evaluating split", "split", testSplit, "shards", len(loader.Shards()), "batch_size", loader.BatchSize(), "classes", len(classes))

	res, err := evaluator.Run(ctx, mdl, loader, evaluator.Options{
		Device:   device,
		Classes:  classes,
		Out:      stdout,
		LogEvery: cfg.Training.LogEvery,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	w := report.NewWriter(cfg.Training.SaveDir, cfg.Training.SaveContext)
	if err := w.WriteAll(res.Confusion, res.Report, classes); err != nil {
		return err
	}
	logger.Info("wrote results", "report", w.ReportPath(), "heatmap", w.HeatmapPath())
	return nil
}

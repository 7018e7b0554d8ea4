package evaluator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/exp/slog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"warpdrive-eval/internal/metrics"
	"warpdrive-eval/internal/model"
)

// BatchSource is a finite, restartable sequence of batches.
type BatchSource interface {
	Iterate(ctx context.Context, fn func(model.Batch) error) error
}

// Options configures a single evaluation pass.
type Options struct {
	Device model.Device
	// Classes names the labels 0..len(Classes)-1. When empty the labels are
	// the sorted union of observed true and predicted values, named by value.
	Classes []string
	// Out receives the printed confusion matrix and report. Nil discards.
	Out      io.Writer
	LogEvery int
	Logger   *slog.Logger
}

// Result is the outcome of one pass.
type Result struct {
	Predictions []int
	Labels      []int
	Confusion   *metrics.ConfusionMatrix
	Report      *metrics.ClassificationReport
}

// Run evaluates mdl over every batch of src in source order.
func Run(ctx context.Context, mdl model.Model, src BatchSource, opts Options) (*Result, error) {
	if mdl == nil {
		return nil, errors.New("evaluator: nil model")
	}
	if src == nil {
		return nil, errors.New("evaluator: nil batch source")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.LogEvery <= 0 {
		opts.LogEvery = 50
	}
	device := opts.Device
	if device == "" {
		device = model.CPU
	}

	numClasses := mdl.NumClasses()
	if len(opts.Classes) > 0 && len(opts.Classes) != numClasses {
		return nil, fmt.Errorf("evaluator: %d class names but model scores %d classes", len(opts.Classes), numClasses)
	}
	if err := mdl.To(device); err != nil {
		return nil, err
	}
	mdl.SetTraining(false)

	res := &Result{}
	var window metrics.Window
	step := 0
	lastDone := time.Now()

	err := src.Iterate(ctx, func(batch model.Batch) error {
		step++
		dataTime := time.Since(lastDone)
		if err := batch.Validate(); err != nil {
			return fmt.Errorf("batch %d: %w", step, err)
		}
		batch, err := batch.To(device)
		if err != nil {
			return fmt.Errorf("batch %d: %w", step, err)
		}

		startCompute := time.Now()
		scores, err := mdl.Forward(batch.Inputs)
		if err != nil {
			return fmt.Errorf("batch %d: forward: %w", step, err)
		}
		preds, err := argmax(scores, batch.Len(), numClasses)
		if err != nil {
			return fmt.Errorf("batch %d: %w", step, err)
		}
		computeTime := time.Since(startCompute)

		correct := 0
		for i, p := range preds {
			if p == batch.Labels[i] {
				correct++
			}
		}
		res.Predictions = append(res.Predictions, preds...)
		res.Labels = append(res.Labels, batch.Labels...)
		window.Record(batch.Len(), correct, dataTime, computeTime)

		if step%opts.LogEvery == 0 {
			snap := window.Snapshot()
			logger.Info("evaluating",
				"step", step,
				"examples", len(res.Predictions),
				"window_batches", snap.Batches,
				"window_samples", snap.Samples,
				"images_per_sec", fmt.Sprintf("%.1f", snap.ImagesPerSec),
				"data_ms", fmt.Sprintf("%.2f", snap.AvgDataMS),
				"compute_ms", fmt.Sprintf("%.2f", snap.AvgComputeMS),
				"window_acc", fmt.Sprintf("%.4f", snap.Accuracy),
			)
		}
		lastDone = time.Now()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}

	// Without names the label set is whatever was observed.
	labelRange := 0
	if len(opts.Classes) > 0 {
		labelRange = len(opts.Classes)
	}
	res.Confusion, err = metrics.ComputeConfusion(res.Labels, res.Predictions, labelRange)
	if err != nil {
		return nil, fmt.Errorf("confusion matrix: %w", err)
	}
	res.Report, err = metrics.NewClassificationReport(res.Confusion, opts.Classes)
	if err != nil {
		return nil, fmt.Errorf("classification report: %w", err)
	}
	logger.Info("evaluation done", "batches", step, "examples", res.Confusion.Total(), "accuracy", res.Report.Accuracy)

	if opts.Out != nil {
		if _, err := fmt.Fprintf(opts.Out, "%s\n%s", res.Confusion, res.Report); err != nil {
			return nil, fmt.Errorf("print results: %w", err)
		}
	}
	return res, nil
}

// argmax picks the highest-scoring class per row, lowest index on ties.
func argmax(scores *mat.Dense, rows, numClasses int) ([]int, error) {
	r, c := scores.Dims()
	if r != rows {
		return nil, fmt.Errorf("model returned %d score rows for %d inputs", r, rows)
	}
	if c != numClasses {
		return nil, fmt.Errorf("model returned %d scores per input, want %d", c, numClasses)
	}
	preds := make([]int, r)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, scores)
		preds[i] = floats.MaxIdx(row)
	}
	return preds, nil
}

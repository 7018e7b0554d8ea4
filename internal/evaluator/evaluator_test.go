package evaluator

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
	"gonum.org/v1/gonum/mat"

	"warpdrive-eval/internal/metrics"
	"warpdrive-eval/internal/model"
)

// sliceSource replays fixed batches.
type sliceSource struct {
	batches []model.Batch
	err     error
}

func (s *sliceSource) Iterate(ctx context.Context, fn func(model.Batch) error) error {
	for _, b := range s.batches {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(b); err != nil {
			return err
		}
	}
	return s.err
}

// fixedModel scores class `always` highest, or echoes the first feature as
// the class index when always < 0.
type fixedModel struct {
	classes  int
	always   int
	width    int
	training bool
	modes    []bool
}

func (m *fixedModel) Forward(inputs [][]float64) (*mat.Dense, error) {
	m.modes = append(m.modes, m.training)
	width := m.width
	if width == 0 {
		width = m.classes
	}
	scores := mat.NewDense(len(inputs), width, nil)
	for i, in := range inputs {
		c := m.always
		if c < 0 {
			c = int(in[0])
		}
		if c < width {
			scores.Set(i, c, 1)
		}
	}
	return scores, nil
}

func (m *fixedModel) SetTraining(training bool) { m.training = training }
func (m *fixedModel) To(dev model.Device) error { return nil }
func (m *fixedModel) NumClasses() int           { return m.classes }

func quietOptions() Options {
	return Options{
		Device: model.CPU,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func batchesOf(labels ...[]int) []model.Batch {
	out := make([]model.Batch, 0, len(labels))
	for _, ls := range labels {
		b := model.Batch{Labels: ls}
		for _, l := range ls {
			b.Inputs = append(b.Inputs, []float64{float64(l)})
		}
		out = append(out, b)
	}
	return out
}

func TestRunAlwaysPredictsPositive(t *testing.T) {
	src := &sliceSource{batches: batchesOf([]int{0}, []int{1}, []int{1}, []int{0})}
	mdl := &fixedModel{classes: 2, always: 1, training: true}

	res, err := Run(context.Background(), mdl, src, quietOptions())
	require.NoError(t, err)
	require.Equal(t, [][]int{{0, 2}, {0, 2}}, res.Confusion.Rows())
	require.Equal(t, []int{1, 1, 1, 1}, res.Predictions)
	require.Equal(t, []int{0, 1, 1, 0}, res.Labels)
}

func TestRunAccumulatesEveryExample(t *testing.T) {
	src := &sliceSource{batches: batchesOf([]int{0, 1, 2}, []int{2, 2}, []int{1})}
	mdl := &fixedModel{classes: 3, always: -1}

	res, err := Run(context.Background(), mdl, src, quietOptions())
	require.NoError(t, err)
	require.Len(t, res.Predictions, 6)
	require.Len(t, res.Labels, 6)
	require.Equal(t, 6, res.Confusion.Total())
	require.Equal(t, res.Labels, res.Predictions)
	require.Equal(t, [][]int{{1, 0, 0}, {0, 2, 0}, {0, 0, 3}}, res.Confusion.Rows())
	require.InDelta(t, 1.0, res.Report.Accuracy, 1e-9)
}

func TestRunUsesInferenceMode(t *testing.T) {
	src := &sliceSource{batches: batchesOf([]int{0}, []int{1})}
	mdl := &fixedModel{classes: 2, always: 0, training: true}

	_, err := Run(context.Background(), mdl, src, quietOptions())
	require.NoError(t, err)
	require.Equal(t, []bool{false, false}, mdl.modes)
}

func TestRunIsRepeatable(t *testing.T) {
	src := &sliceSource{batches: batchesOf([]int{0, 1}, []int{1, 0}, []int{1})}
	mdl := &fixedModel{classes: 2, always: 1}

	first, err := Run(context.Background(), mdl, src, quietOptions())
	require.NoError(t, err)
	second, err := Run(context.Background(), mdl, src, quietOptions())
	require.NoError(t, err)
	require.Equal(t, first.Confusion.Rows(), second.Confusion.Rows())
}

func TestRunReportRowsFollowClasses(t *testing.T) {
	src := &sliceSource{batches: batchesOf([]int{0, 1})}
	mdl := &fixedModel{classes: 3, always: -1}
	opts := quietOptions()
	opts.Classes = []string{"cat", "dog", "bird"}

	res, err := Run(context.Background(), mdl, src, opts)
	require.NoError(t, err)
	require.Len(t, res.Report.Classes, 3)
	require.Equal(t, "bird", res.Report.Classes[2].Name)
	require.Equal(t, 3, res.Confusion.Size())
}

func TestRunPrintsMatrixAndReport(t *testing.T) {
	src := &sliceSource{batches: batchesOf([]int{0, 1, 1, 0})}
	mdl := &fixedModel{classes: 2, always: 1}
	out := &bytes.Buffer{}
	opts := quietOptions()
	opts.Out = out
	opts.Classes = []string{"neg", "pos"}

	res, err := Run(context.Background(), mdl, src, opts)
	require.NoError(t, err)
	require.Equal(t, "[[0 2]\n [0 2]]\n"+res.Report.String(), out.String())
}

func TestRunOutputWidthMismatch(t *testing.T) {
	src := &sliceSource{batches: batchesOf([]int{0})}
	mdl := &fixedModel{classes: 2, always: 0, width: 3}

	_, err := Run(context.Background(), mdl, src, quietOptions())
	require.Error(t, err)
}

func TestRunClassNameCountMismatch(t *testing.T) {
	src := &sliceSource{batches: batchesOf([]int{0})}
	opts := quietOptions()
	opts.Classes = []string{"a", "b", "c"}

	_, err := Run(context.Background(), &fixedModel{classes: 2}, src, opts)
	require.Error(t, err)
}

func TestRunWithoutClassesUsesObservedLabels(t *testing.T) {
	src := &sliceSource{batches: batchesOf([]int{0}, []int{1}, []int{1}, []int{0})}
	mdl := &fixedModel{classes: 3, always: 1}

	res, err := Run(context.Background(), mdl, src, quietOptions())
	require.NoError(t, err)
	require.Equal(t, []int{0, 1}, res.Confusion.Labels())
	require.Equal(t, [][]int{{0, 2}, {0, 2}}, res.Confusion.Rows())
	require.Len(t, res.Report.Classes, 2)
	require.Equal(t, "0", res.Report.Classes[0].Name)
	require.Equal(t, "1", res.Report.Classes[1].Name)
}

func TestRunLabelOutOfRange(t *testing.T) {
	src := &sliceSource{batches: batchesOf([]int{0, 5})}
	opts := quietOptions()
	opts.Classes = []string{"neg", "pos"}

	_, err := Run(context.Background(), &fixedModel{classes: 2, always: 0}, src, opts)
	require.Error(t, err)
}

func TestRunSourceErrorAborts(t *testing.T) {
	boom := errors.New("shard corrupted")
	src := &sliceSource{batches: batchesOf([]int{0}), err: boom}

	_, err := Run(context.Background(), &fixedModel{classes: 2, always: 0}, src, quietOptions())
	require.ErrorIs(t, err, boom)
}

func TestRunEmptySource(t *testing.T) {
	_, err := Run(context.Background(), &fixedModel{classes: 2}, &sliceSource{}, quietOptions())
	require.ErrorIs(t, err, metrics.ErrNoExamples)
}

func TestRunMismatchedBatch(t *testing.T) {
	src := &sliceSource{batches: []model.Batch{{Inputs: [][]float64{{0}, {1}}, Labels: []int{0}}}}
	_, err := Run(context.Background(), &fixedModel{classes: 2}, src, quietOptions())
	require.Error(t, err)
}

func TestArgmaxTiesPickLowestIndex(t *testing.T) {
	scores := mat.NewDense(2, 3, []float64{
		0.5, 0.5, 0.1,
		0.0, 0.2, 0.2,
	})
	preds, err := argmax(scores, 2, 3)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1}, preds)
}

func TestRunLogsWindowCounts(t *testing.T) {
	src := &sliceSource{batches: batchesOf([]int{0, 1}, []int{1}, []int{0, 0, 1})}
	logs := &bytes.Buffer{}
	opts := quietOptions()
	opts.Logger = slog.New(slog.NewTextHandler(logs, nil))
	opts.LogEvery = 3

	_, err := Run(context.Background(), &fixedModel{classes: 2, always: 1}, src, opts)
	require.NoError(t, err)
	require.Contains(t, logs.String(), "window_batches=3")
	require.Contains(t, logs.String(), "window_samples=6")
	require.Contains(t, logs.String(), "examples=6")
}

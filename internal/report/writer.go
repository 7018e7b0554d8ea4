package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"warpdrive-eval/internal/metrics"
)

// TestDir is the subdirectory of the run output that evaluation writes to.
const TestDir = "test"

// Writer persists evaluation artifacts under <root>/<context>/test.
type Writer struct {
	Root    string
	Context string
	// HeatmapSize is the side of the square heatmap image in centimetres.
	HeatmapSize float64
}

// NewWriter returns a Writer for the run named context under root.
func NewWriter(root, context string) *Writer {
	return &Writer{Root: root, Context: context, HeatmapSize: 16}
}

// Dir is the directory artifacts are written to.
func (w *Writer) Dir() string {
	return filepath.Join(w.Root, w.Context, TestDir)
}

// ReportPath is <dir>/<context>_clfreport.log.
func (w *Writer) ReportPath() string {
	return filepath.Join(w.Dir(), w.Context+"_clfreport.log")
}

// HeatmapPath is <dir>/<context>_confmat.jpg.
func (w *Writer) HeatmapPath() string {
	return filepath.Join(w.Dir(), w.Context+"_confmat.jpg")
}

// EnsureDir creates the output directory and its parents if missing.
func (w *Writer) EnsureDir() error {
	if w.Root == "" || w.Context == "" {
		return errors.New("report: root and context must be set")
	}
	if err := os.MkdirAll(w.Dir(), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", w.Dir(), err)
	}
	return nil
}

// WriteReport writes the report text, replacing any previous file.
func (w *Writer) WriteReport(r *metrics.ClassificationReport) error {
	if err := w.EnsureDir(); err != nil {
		return err
	}
	f, err := os.Create(w.ReportPath())
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(r.String()); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return f.Close()
}

// WriteHeatmap renders cm as an annotated heatmap JPEG, replacing any
// previous file. names labels rows and columns; when empty the label values
// are used.
func (w *Writer) WriteHeatmap(cm *metrics.ConfusionMatrix, names []string) error {
	if err := w.EnsureDir(); err != nil {
		return err
	}
	if len(names) == 0 {
		for _, label := range cm.Labels() {
			names = append(names, strconv.Itoa(label))
		}
	}
	p, err := Heatmap(cm, names, w.Context)
	if err != nil {
		return err
	}
	size := w.HeatmapSize
	if size <= 0 {
		size = 16
	}
	if err := savePlot(p, size, w.HeatmapPath()); err != nil {
		return fmt.Errorf("save heatmap: %w", err)
	}
	return nil
}

// WriteAll writes both the report and the heatmap.
func (w *Writer) WriteAll(cm *metrics.ConfusionMatrix, r *metrics.ClassificationReport, names []string) error {
	if err := w.WriteReport(r); err != nil {
		return err
	}
	return w.WriteHeatmap(cm, names)
}

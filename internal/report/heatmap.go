package report

import (
	"fmt"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"

	"warpdrive-eval/internal/metrics"
)

// confusionGrid adapts a confusion matrix to plotter.GridXYZ. Grid row 0 is
// drawn at the bottom, so it maps to the last matrix row to keep true class 0
// at the top of the image.
type confusionGrid struct {
	rows [][]int
}

func (g confusionGrid) Dims() (c, r int)   { return len(g.rows), len(g.rows) }
func (g confusionGrid) Z(c, r int) float64 { return float64(g.rows[len(g.rows)-1-r][c]) }
func (g confusionGrid) X(c int) float64    { return float64(c) }
func (g confusionGrid) Y(r int) float64    { return float64(r) }

// Heatmap builds an annotated heatmap of cm: columns are predicted classes,
// rows are true classes, and every cell is labelled with its count.
func Heatmap(cm *metrics.ConfusionMatrix, names []string, title string) (*plot.Plot, error) {
	n := cm.Size()
	if len(names) != n {
		return nil, fmt.Errorf("report: %d class names for a %dx%d matrix", len(names), n, n)
	}
	grid := confusionGrid{rows: cm.Rows()}

	hm := plotter.NewHeatMap(grid, palette.Heat(16, 1))
	if hm.Min == hm.Max {
		hm.Max = hm.Min + 1
	}

	xys := make(plotter.XYs, 0, n*n)
	counts := make([]string, 0, n*n)
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			xys = append(xys, plotter.XY{X: grid.X(c), Y: grid.Y(r)})
			counts = append(counts, strconv.Itoa(int(grid.Z(c, r))))
		}
	}
	labels, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: counts})
	if err != nil {
		return nil, fmt.Errorf("report: cell labels: %w", err)
	}
	for i := range labels.TextStyle {
		labels.TextStyle[i].XAlign = text.XCenter
		labels.TextStyle[i].YAlign = text.YCenter
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Predicted"
	p.Y.Label.Text = "True"
	p.Add(hm, labels)
	p.NominalX(names...)
	reversed := make([]string, n)
	for i, name := range names {
		reversed[n-1-i] = name
	}
	p.NominalY(reversed...)
	return p, nil
}

func savePlot(p *plot.Plot, sizeCM float64, path string) error {
	side := vg.Length(sizeCM) * vg.Centimeter
	return p.Save(side, side, path)
}

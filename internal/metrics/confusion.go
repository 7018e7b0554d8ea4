package metrics

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// ErrNoExamples is returned when there is nothing to score.
var ErrNoExamples = errors.New("metrics: no examples")

// ConfusionMatrix counts (true, predicted) label pairs. Row i holds examples
// whose true label is Labels()[i]; column j those predicted as Labels()[j].
type ConfusionMatrix struct {
	labels []int
	index  map[int]int
	counts *mat.Dense
}

// NewConfusionMatrix returns an empty matrix over the given label values.
func NewConfusionMatrix(labels []int) (*ConfusionMatrix, error) {
	if len(labels) == 0 {
		return nil, errors.New("metrics: confusion matrix needs at least one label")
	}
	index := make(map[int]int, len(labels))
	for i, label := range labels {
		if _, dup := index[label]; dup {
			return nil, fmt.Errorf("metrics: duplicate label %d", label)
		}
		index[label] = i
	}
	return &ConfusionMatrix{
		labels: append([]int(nil), labels...),
		index:  index,
		counts: mat.NewDense(len(labels), len(labels), nil),
	}, nil
}

// ComputeConfusion builds the matrix for parallel true/predicted sequences.
// With numClasses > 0 the labels are 0..numClasses-1 and anything outside that
// range is an error; otherwise the labels are the sorted union of both
// sequences.
func ComputeConfusion(trueLabels, preds []int, numClasses int) (*ConfusionMatrix, error) {
	if len(trueLabels) != len(preds) {
		return nil, fmt.Errorf("metrics: %d labels but %d predictions", len(trueLabels), len(preds))
	}
	if len(trueLabels) == 0 {
		return nil, ErrNoExamples
	}

	var labels []int
	if numClasses > 0 {
		labels = make([]int, numClasses)
		for i := range labels {
			labels[i] = i
		}
	} else {
		labels = unionLabels(trueLabels, preds)
	}

	cm, err := NewConfusionMatrix(labels)
	if err != nil {
		return nil, err
	}
	for i := range trueLabels {
		if err := cm.Add(trueLabels[i], preds[i]); err != nil {
			return nil, fmt.Errorf("example %d: %w", i, err)
		}
	}
	return cm, nil
}

func unionLabels(a, b []int) []int {
	seen := make(map[int]struct{})
	for _, v := range a {
		seen[v] = struct{}{}
	}
	for _, v := range b {
		seen[v] = struct{}{}
	}
	labels := make([]int, 0, len(seen))
	for v := range seen {
		labels = append(labels, v)
	}
	sort.Ints(labels)
	return labels
}

// Add counts one example.
func (c *ConfusionMatrix) Add(trueLabel, pred int) error {
	row, ok := c.index[trueLabel]
	if !ok {
		return fmt.Errorf("metrics: true label %d not in %v", trueLabel, c.labels)
	}
	col, ok := c.index[pred]
	if !ok {
		return fmt.Errorf("metrics: predicted label %d not in %v", pred, c.labels)
	}
	c.counts.Set(row, col, c.counts.At(row, col)+1)
	return nil
}

// Labels returns the label value of each row/column.
func (c *ConfusionMatrix) Labels() []int {
	return append([]int(nil), c.labels...)
}

// Size returns the number of rows (and columns).
func (c *ConfusionMatrix) Size() int {
	return len(c.labels)
}

// At returns the count at row i, column j.
func (c *ConfusionMatrix) At(i, j int) int {
	return int(c.counts.At(i, j))
}

// Total is the number of counted examples.
func (c *ConfusionMatrix) Total() int {
	return int(mat.Sum(c.counts))
}

// Trace is the number of correctly predicted examples.
func (c *ConfusionMatrix) Trace() int {
	return int(mat.Trace(c.counts))
}

// Dense returns a copy of the counts.
func (c *ConfusionMatrix) Dense() *mat.Dense {
	return mat.DenseCopyOf(c.counts)
}

// Rows returns the counts as nested slices.
func (c *ConfusionMatrix) Rows() [][]int {
	n := c.Size()
	rows := make([][]int, n)
	for i := range rows {
		rows[i] = make([]int, n)
		for j := range rows[i] {
			rows[i][j] = c.At(i, j)
		}
	}
	return rows
}

// String renders the counts like a numpy integer array: [[0 2]\n [0 2]].
func (c *ConfusionMatrix) String() string {
	rows := c.Rows()
	width := 1
	for _, row := range rows {
		for _, v := range row {
			if n := len(strconv.Itoa(v)); n > width {
				width = n
			}
		}
	}
	var b strings.Builder
	b.WriteString("[")
	for i, row := range rows {
		if i > 0 {
			b.WriteString("\n ")
		}
		b.WriteString("[")
		for j, v := range row {
			if j > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "%*d", width, v)
		}
		b.WriteString("]")
	}
	b.WriteString("]")
	return b.String()
}

package metrics

import (
	"fmt"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ClassScore holds precision, recall and F1 for one class or average.
type ClassScore struct {
	Name      string
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// ClassificationReport summarizes a confusion matrix per class.
type ClassificationReport struct {
	Classes     []ClassScore
	Accuracy    float64
	MacroAvg    ClassScore
	WeightedAvg ClassScore
	Total       int
	// Digits is the number of decimals String prints.
	Digits int
}

// NewClassificationReport scores every class of cm. names labels the rows in
// matrix order; when empty the label values are used.
func NewClassificationReport(cm *ConfusionMatrix, names []string) (*ClassificationReport, error) {
	n := cm.Size()
	if len(names) > 0 && len(names) != n {
		return nil, fmt.Errorf("metrics: %d class names for %d labels", len(names), n)
	}
	total := cm.Total()
	if total == 0 {
		return nil, ErrNoExamples
	}

	counts := cm.Dense()
	supports := make([]float64, n)
	predicted := make([]float64, n)
	for i := 0; i < n; i++ {
		supports[i] = floats.Sum(mat.Row(nil, i, counts))
		predicted[i] = floats.Sum(mat.Col(nil, i, counts))
	}

	report := &ClassificationReport{Total: total, Digits: 2}
	precision := make([]float64, n)
	recall := make([]float64, n)
	f1 := make([]float64, n)
	for i := 0; i < n; i++ {
		tp := counts.At(i, i)
		precision[i] = safeDiv(tp, predicted[i])
		recall[i] = safeDiv(tp, supports[i])
		f1[i] = safeDiv(2*tp, predicted[i]+supports[i])

		name := strconv.Itoa(cm.labels[i])
		if len(names) > 0 {
			name = names[i]
		}
		report.Classes = append(report.Classes, ClassScore{
			Name:      name,
			Precision: precision[i],
			Recall:    recall[i],
			F1:        f1[i],
			Support:   int(supports[i]),
		})
	}

	report.Accuracy = safeDiv(float64(cm.Trace()), float64(total))
	report.MacroAvg = ClassScore{
		Name:      "macro avg",
		Precision: floats.Sum(precision) / float64(n),
		Recall:    floats.Sum(recall) / float64(n),
		F1:        floats.Sum(f1) / float64(n),
		Support:   total,
	}
	report.WeightedAvg = ClassScore{
		Name:      "weighted avg",
		Precision: floats.Dot(precision, supports) / float64(total),
		Recall:    floats.Dot(recall, supports) / float64(total),
		F1:        floats.Dot(f1, supports) / float64(total),
		Support:   total,
	}
	return report, nil
}

// safeDiv treats 0/0 as 0.
func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// String renders the report in the familiar precision/recall/f1-score/support
// table layout.
func (r *ClassificationReport) String() string {
	width := len(r.WeightedAvg.Name)
	for _, c := range r.Classes {
		if len(c.Name) > width {
			width = len(c.Name)
		}
	}
	digits := r.Digits
	if digits <= 0 {
		digits = 2
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%*s ", width, "")
	for _, h := range []string{"precision", "recall", "f1-score", "support"} {
		fmt.Fprintf(&b, " %9s", h)
	}
	b.WriteString("\n\n")

	row := func(c ClassScore) {
		fmt.Fprintf(&b, "%*s  %9.*f %9.*f %9.*f %9d\n",
			width, c.Name,
			digits, c.Precision,
			digits, c.Recall,
			digits, c.F1,
			c.Support)
	}
	for _, c := range r.Classes {
		row(c)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%*s  %9s %9s %9.*f %9d\n", width, "accuracy", "", "", digits, r.Accuracy, r.Total)
	row(r.MacroAvg)
	row(r.WeightedAvg)
	return b.String()
}

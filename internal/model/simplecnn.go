package model

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// SimpleCNN is a tiny linear classifier over grid-sampled image intensities.
type SimpleCNN struct {
	numClasses int
	inputSize  int
	weights    *mat.Dense
	bias       []float64
	dropout    float64
	training   bool
	rng        *rand.Rand
}

// NewSimpleCNN constructs the model with random initialization. The model
// starts in training mode.
func NewSimpleCNN(numClasses, inputSize int, dropout float64, seed int64) *SimpleCNN {
	if numClasses <= 0 {
		numClasses = 10
	}
	if inputSize <= 0 {
		inputSize = 64
	}
	if dropout < 0 || dropout >= 1 {
		dropout = 0
	}
	rng := rand.New(rand.NewSource(seed))
	weights := make([]float64, numClasses*inputSize)
	for i := range weights {
		weights[i] = (rng.Float64()*2 - 1) * 0.01
	}
	return &SimpleCNN{
		numClasses: numClasses,
		inputSize:  inputSize,
		weights:    mat.NewDense(numClasses, inputSize, weights),
		bias:       make([]float64, numClasses),
		dropout:    dropout,
		training:   true,
		rng:        rng,
	}
}

// NumClasses reports the width of the score matrix.
func (m *SimpleCNN) NumClasses() int { return m.numClasses }

// SetTraining toggles input dropout.
func (m *SimpleCNN) SetTraining(training bool) { m.training = training }

// To places the parameters on dev.
func (m *SimpleCNN) To(dev Device) error { return dev.check() }

// Forward computes inputs·Wᵀ + b.
func (m *SimpleCNN) Forward(inputs [][]float64) (*mat.Dense, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("simplecnn: empty batch")
	}
	flat := make([]float64, 0, len(inputs)*m.inputSize)
	for i, input := range inputs {
		if len(input) != m.inputSize {
			return nil, fmt.Errorf("simplecnn: input %d has %d features, want %d", i, len(input), m.inputSize)
		}
		flat = append(flat, input...)
	}
	if m.training && m.dropout > 0 {
		keep := 1 - m.dropout
		for i := range flat {
			if m.rng.Float64() < m.dropout {
				flat[i] = 0
			} else {
				flat[i] /= keep
			}
		}
	}

	x := mat.NewDense(len(inputs), m.inputSize, flat)
	logits := mat.NewDense(len(inputs), m.numClasses, nil)
	logits.Mul(x, m.weights.T())
	logits.Apply(func(_, c int, v float64) float64 {
		return v + m.bias[c]
	}, logits)
	return logits, nil
}

// Weights is the on-disk form of a SimpleCNN's parameters.
type Weights struct {
	NumClasses int       `json:"num_classes"`
	InputSize  int       `json:"input_size"`
	Weights    []float64 `json:"weights"`
	Bias       []float64 `json:"bias"`
}

// LoadWeights replaces the parameters with the JSON document read from r.
func (m *SimpleCNN) LoadWeights(r io.Reader) error {
	var w Weights
	if err := json.NewDecoder(r).Decode(&w); err != nil {
		return fmt.Errorf("decode weights: %w", err)
	}
	if w.NumClasses != m.numClasses || w.InputSize != m.inputSize {
		return fmt.Errorf("weights shape %dx%d does not match model %dx%d", w.NumClasses, w.InputSize, m.numClasses, m.inputSize)
	}
	if len(w.Weights) != w.NumClasses*w.InputSize {
		return fmt.Errorf("weights has %d values, want %d", len(w.Weights), w.NumClasses*w.InputSize)
	}
	if len(w.Bias) != w.NumClasses {
		return fmt.Errorf("bias has %d values, want %d", len(w.Bias), w.NumClasses)
	}
	m.weights = mat.NewDense(m.numClasses, m.inputSize, w.Weights)
	m.bias = w.Bias
	return nil
}

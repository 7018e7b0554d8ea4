package model

import (
	"errors"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Batch represents a minibatch of features and labels.
type Batch struct {
	Inputs [][]float64
	Labels []int
}

// Len returns the number of examples in the batch.
func (b Batch) Len() int {
	return len(b.Inputs)
}

// Validate checks that inputs and labels line up.
func (b Batch) Validate() error {
	if len(b.Inputs) != len(b.Labels) {
		return fmt.Errorf("batch has %d inputs but %d labels", len(b.Inputs), len(b.Labels))
	}
	return nil
}

// To places the batch on dev.
func (b Batch) To(dev Device) (Batch, error) {
	if err := dev.check(); err != nil {
		return Batch{}, err
	}
	return b, nil
}

// Model defines the inference functionality required by the evaluator.
type Model interface {
	// Forward returns a len(inputs) x NumClasses() score matrix.
	Forward(inputs [][]float64) (*mat.Dense, error)
	// SetTraining toggles training-only behavior such as dropout.
	SetTraining(training bool)
	// To places the model parameters on dev.
	To(dev Device) error
	NumClasses() int
}

// ErrDeviceUnavailable is returned for accelerators this build cannot drive.
var ErrDeviceUnavailable = errors.New("model: device unavailable")

// Device names where tensors live. Only the host CPU is backed here.
type Device string

// CPU is the host device.
const CPU Device = "cpu"

// ParseDevice maps a config device string onto a Device.
func ParseDevice(s string) (Device, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch {
	case name == "", name == "cpu", name == "auto":
		return CPU, nil
	case name == "cuda", strings.HasPrefix(name, "cuda:"), name == "mps":
		return "", fmt.Errorf("%w: %s", ErrDeviceUnavailable, s)
	default:
		return "", fmt.Errorf("model: unknown device %q", s)
	}
}

func (d Device) check() error {
	if d != CPU {
		return fmt.Errorf("%w: %s", ErrDeviceUnavailable, d)
	}
	return nil
}

package model

import (
	"fmt"
	"os"
	"sort"

	"warpdrive-eval/internal/config"
)

// Builder constructs an architecture from its config section.
type Builder func(cfg config.ModelConfig, seed int64) (Model, error)

var builders = map[string]Builder{
	"simplecnn": buildSimpleCNN,
}

// Architectures lists the registered model names.
func Architectures() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build constructs the model named by cfg.Name and loads its weights.
func Build(cfg config.ModelConfig, seed int64) (Model, error) {
	build, ok := builders[cfg.Name]
	if !ok {
		return nil, fmt.Errorf("model: unknown architecture %q (have %v)", cfg.Name, Architectures())
	}
	return build(cfg, seed)
}

func buildSimpleCNN(cfg config.ModelConfig, seed int64) (Model, error) {
	if cfg.NumClasses <= 0 || cfg.InputSize <= 0 {
		return nil, fmt.Errorf("simplecnn: num_classes and input_size must be > 0 (got %d, %d)", cfg.NumClasses, cfg.InputSize)
	}
	m := NewSimpleCNN(cfg.NumClasses, cfg.InputSize, cfg.Dropout, seed)
	if cfg.Weights == "" {
		return m, nil
	}
	f, err := os.Open(cfg.Weights)
	if err != nil {
		return nil, fmt.Errorf("open weights: %w", err)
	}
	defer f.Close()
	if err := m.LoadWeights(f); err != nil {
		return nil, fmt.Errorf("load %s: %w", cfg.Weights, err)
	}
	return m, nil
}

package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment variables that override config keys.
// FORGE_TRAINING__DEVICE=cpu sets training.device.
const EnvPrefix = "FORGE_"

// Config captures the runtime knobs for an evaluation run.
type Config struct {
	Training TrainingConfig `koanf:"training"`
	Model    ModelConfig    `koanf:"model"`
	Data     DataConfig     `koanf:"data"`
}

// TrainingConfig holds the run-level settings shared with training jobs.
type TrainingConfig struct {
	Device      string `koanf:"device"`
	SaveDir     string `koanf:"save_dir"`
	SaveContext string `koanf:"save_context"`
	LogEvery    int    `koanf:"log_every"`
	Seed        int64  `koanf:"seed"`
}

// ModelConfig describes which model to build and where its weights live.
type ModelConfig struct {
	Name       string  `koanf:"name"`
	NumClasses int     `koanf:"num_classes"`
	InputSize  int     `koanf:"input_size"`
	Weights    string  `koanf:"weights"`
	Dropout    float64 `koanf:"dropout"`
}

// DataConfig describes the dataset layout and loader settings.
type DataConfig struct {
	Root        string   `koanf:"root"`
	Splits      []string `koanf:"splits"`
	Classes     []string `koanf:"classes"`
	BatchSize   int      `koanf:"batch_size"`
	NumWorkers  int      `koanf:"num_workers"`
	PendingCap  int      `koanf:"pending_cap"`
	FeatureGrid int      `koanf:"feature_grid"`
}

// Default returns the baseline config that file and env values are layered on.
func Default() Config {
	return Config{
		Training: TrainingConfig{
			Device:   "cpu",
			LogEvery: 50,
			Seed:     42,
		},
		Model: ModelConfig{
			Name: "simplecnn",
		},
		Data: DataConfig{
			Splits:      []string{"train", "val", "test"},
			BatchSize:   64,
			NumWorkers:  2,
			PendingCap:  1024,
			FeatureGrid: 16,
		},
	}
}

// Load reads and validates a Config from the YAML file at path.
func Load(path string) (*Config, error) {
	cfg, err := LoadProvider(file.Provider(path))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return cfg, nil
}

// LoadProvider layers defaults, the YAML document from p and the environment,
// then validates the result.
func LoadProvider(p koanf.Provider) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if err := k.Load(p, yaml.Parser()); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Training.Device == "" {
		return errors.New("training.device must be set")
	}
	if c.Training.SaveDir == "" {
		return errors.New("training.save_dir must be set")
	}
	if c.Training.SaveContext == "" {
		return errors.New("training.save_context must be set")
	}
	if strings.ContainsAny(c.Training.SaveContext, `/\`) {
		return fmt.Errorf("training.save_context must be a plain name (got %q)", c.Training.SaveContext)
	}
	if c.Data.Root == "" {
		return errors.New("data.root must be set")
	}
	if c.Data.BatchSize <= 0 {
		return fmt.Errorf("data.batch_size must be > 0 (got %d)", c.Data.BatchSize)
	}
	if c.Data.NumWorkers <= 0 {
		return fmt.Errorf("data.num_workers must be > 0 (got %d)", c.Data.NumWorkers)
	}
	if c.Data.FeatureGrid <= 0 {
		return fmt.Errorf("data.feature_grid must be > 0 (got %d)", c.Data.FeatureGrid)
	}
	// num_classes may stay unset here and come from the data root's class
	// list later; see ResolveClasses.
	if c.Model.NumClasses < 0 {
		return fmt.Errorf("model.num_classes must not be negative (got %d)", c.Model.NumClasses)
	}
	if len(c.Data.Classes) > 0 {
		if err := c.ResolveClasses(c.Data.Classes); err != nil {
			return err
		}
	}
	features := c.Data.FeatureGrid * c.Data.FeatureGrid
	if c.Model.InputSize <= 0 {
		c.Model.InputSize = features
	}
	if c.Model.InputSize != features {
		return fmt.Errorf("model.input_size %d does not match data.feature_grid %d (want %d)", c.Model.InputSize, c.Data.FeatureGrid, features)
	}
	if c.Model.Dropout < 0 || c.Model.Dropout >= 1 {
		return fmt.Errorf("model.dropout must be in [0, 1) (got %g)", c.Model.Dropout)
	}
	if c.Training.LogEvery <= 0 {
		c.Training.LogEvery = 50
	}
	return nil
}

// ResolveClasses reconciles model.num_classes with the resolved class-name
// list: an unset count takes the list length, a set count must match it.
// With no names the count must already be set.
func (c *Config) ResolveClasses(classes []string) error {
	if len(classes) == 0 {
		if c.Model.NumClasses <= 0 {
			return fmt.Errorf("model.num_classes must be > 0 when no class names are available (got %d)", c.Model.NumClasses)
		}
		return nil
	}
	if c.Model.NumClasses <= 0 {
		c.Model.NumClasses = len(classes)
	}
	if len(classes) != c.Model.NumClasses {
		return fmt.Errorf("class list has %d names but model.num_classes is %d", len(classes), c.Model.NumClasses)
	}
	return nil
}

// OutputDir is <save_dir>/<save_context>.
func (c *Config) OutputDir() string {
	return filepath.Join(c.Training.SaveDir, c.Training.SaveContext)
}

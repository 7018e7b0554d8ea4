package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/exp/slog"

	"warpdrive-eval/internal/config"
)

// ClassesFile is read from the data root when the config lists no classes.
const ClassesFile = "classes.txt"

// LoadersFromConfig builds one Loader per configured split that has shards,
// and resolves the ordered class-name list. A nil class list means the data
// root carries no names.
func LoadersFromConfig(cfg *config.Config) (map[string]*Loader, []string, error) {
	shardsBySplit, err := DiscoverSplits(cfg.Data.Root, cfg.Data.Splits)
	if err != nil {
		return nil, nil, err
	}

	loaders := make(map[string]*Loader, len(shardsBySplit))
	for _, split := range cfg.Data.Splits {
		shards := shardsBySplit[split]
		if len(shards) == 0 {
			slog.Warn("no shards for split", "split", split, "root", cfg.Data.Root)
			continue
		}
		loader, err := NewLoader(LoaderOptions{
			Shards:      shards,
			BatchSize:   cfg.Data.BatchSize,
			NumWorkers:  cfg.Data.NumWorkers,
			PendingCap:  cfg.Data.PendingCap,
			FeatureGrid: cfg.Data.FeatureGrid,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("split %s: %w", split, err)
		}
		loaders[split] = loader
		slog.Info("discovered split", "split", split, "shards", len(shards))
	}

	classes := cfg.Data.Classes
	if len(classes) == 0 {
		classes, err = ReadClasses(filepath.Join(cfg.Data.Root, ClassesFile))
		if err != nil {
			return nil, nil, err
		}
	}
	return loaders, classes, nil
}

// ReadClasses reads one class name per line, skipping blank lines. A missing
// file yields a nil list.
func ReadClasses(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open classes: %w", err)
	}
	defer f.Close()

	var classes []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			continue
		}
		classes = append(classes, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read classes: %w", err)
	}
	return classes, nil
}

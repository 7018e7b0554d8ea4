package dataset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

var shardRegexp = regexp.MustCompile(`^shard-[0-9]{6,}\.tar$`)

// DiscoverShards returns paths to shard TAR files beneath root in sorted order.
func DiscoverShards(root string) ([]string, error) {
	entries := make([]string, 0)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if shardRegexp.MatchString(d.Name()) {
			entries = append(entries, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover shards: %w", err)
	}
	sort.Strings(entries)
	return entries, nil
}

// DiscoverSplits scans <root>/<split> for each split. Splits whose directory
// does not exist map to an empty list.
func DiscoverSplits(root string, splits []string) (map[string][]string, error) {
	result := make(map[string][]string, len(splits))
	for _, split := range splits {
		dir := filepath.Join(root, split)
		if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
			result[split] = nil
			continue
		}
		shards, err := DiscoverShards(dir)
		if err != nil {
			return nil, fmt.Errorf("split %s: %w", split, err)
		}
		result[split] = shards
	}
	return result, nil
}

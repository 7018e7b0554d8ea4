package dataset

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiscoverShardsBasic(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "shard-000000.tar"))
	mustWrite(t, filepath.Join(dir, "nested", "shard-000001.tar"))
	mustWrite(t, filepath.Join(dir, "ignore.txt"))

	shards, err := DiscoverShards(dir)
	if err != nil {
		t.Fatalf("DiscoverShards error: %v", err)
	}
	want := []string{
		filepath.Join(dir, "nested", "shard-000001.tar"),
		filepath.Join(dir, "shard-000000.tar"),
	}
	if len(shards) != len(want) {
		t.Fatalf("expected %d shards, got %d", len(want), len(shards))
	}
	for i, shard := range want {
		if shards[i] != shard {
			t.Fatalf("shard[%d]=%s want %s", i, shards[i], shard)
		}
	}
}

func TestDiscoverSplits(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "train", "shard-000000.tar"))
	mustWrite(t, filepath.Join(dir, "test", "shard-000000.tar"))
	mustWrite(t, filepath.Join(dir, "test", "shard-000001.tar"))

	splits, err := DiscoverSplits(dir, []string{"train", "val", "test"})
	if err != nil {
		t.Fatalf("DiscoverSplits error: %v", err)
	}
	if got := len(splits["train"]); got != 1 {
		t.Fatalf("train: expected 1 shard, got %d", got)
	}
	if got := len(splits["val"]); got != 0 {
		t.Fatalf("val: expected no shards, got %d", got)
	}
	if got := len(splits["test"]); got != 2 {
		t.Fatalf("test: expected 2 shards, got %d", got)
	}
}

func mustWrite(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

package metrics

import (
	"math"
	"testing"
	"time"
)

func TestWindowSnapshot(t *testing.T) {
	var w Window
	w.Record(64, 32, 20*time.Millisecond, 10*time.Millisecond)
	w.Record(64, 48, 10*time.Millisecond, 20*time.Millisecond)
	snap := w.Snapshot()
	if math.Abs(snap.ImagesPerSec-2133.3333) > 1 {
		t.Fatalf("unexpected throughput %.2f", snap.ImagesPerSec)
	}
	if math.Abs(snap.AvgDataMS-15) > 1e-9 || math.Abs(snap.AvgComputeMS-15) > 1e-9 {
		t.Fatalf("unexpected per-batch times data=%.2f compute=%.2f", snap.AvgDataMS, snap.AvgComputeMS)
	}
	if w.samples != 0 || w.steps != 0 || w.correct != 0 {
		t.Fatalf("window was not reset")
	}
	if snap.Accuracy != 0.625 {
		t.Fatalf("expected accuracy 0.625, got %.3f", snap.Accuracy)
	}
	if snap.Batches != 2 || snap.Samples != 128 {
		t.Fatalf("unexpected counts batches=%d samples=%d", snap.Batches, snap.Samples)
	}
}

func TestWindowSnapshotEmpty(t *testing.T) {
	var w Window
	snap := w.Snapshot()
	if snap != (Snapshot{}) {
		t.Fatalf("expected zero snapshot, got %+v", snap)
	}
}

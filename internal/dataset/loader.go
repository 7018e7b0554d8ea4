package dataset

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"warpdrive-eval/internal/model"
)

// LoaderOptions configures a split loader.
type LoaderOptions struct {
	Shards      []string
	BatchSize   int
	NumWorkers  int
	PendingCap  int
	FeatureGrid int
}

// Loader is a finite, restartable batch source over a fixed list of shards.
// Shards are read up to NumWorkers at a time, but samples are always emitted
// in shard order, and in file order within a shard.
type Loader struct {
	opts LoaderOptions
}

// NewLoader validates opts and returns a Loader.
func NewLoader(opts LoaderOptions) (*Loader, error) {
	if len(opts.Shards) == 0 {
		return nil, errors.New("loader: no shards provided")
	}
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("loader: batch size must be > 0 (got %d)", opts.BatchSize)
	}
	if opts.FeatureGrid <= 0 {
		return nil, fmt.Errorf("loader: feature grid must be > 0 (got %d)", opts.FeatureGrid)
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 1
	}
	if opts.PendingCap <= 0 {
		opts.PendingCap = defaultPendingCap
	}
	opts.Shards = append([]string(nil), opts.Shards...)
	return &Loader{opts: opts}, nil
}

// Shards returns the shard paths in read order.
func (l *Loader) Shards() []string {
	return append([]string(nil), l.opts.Shards...)
}

// BatchSize returns the configured batch size.
func (l *Loader) BatchSize() int {
	return l.opts.BatchSize
}

// Iterate decodes every sample into features and calls fn once per batch, in
// order. The last batch may be short. The first error from fn or from the
// shards stops the pass and is returned.
func (l *Loader) Iterate(ctx context.Context, fn func(model.Batch) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	samples, errs := l.Stream(ctx)
	batch := model.Batch{
		Inputs: make([][]float64, 0, l.opts.BatchSize),
		Labels: make([]int, 0, l.opts.BatchSize),
	}
	for sample := range samples {
		features, err := ExtractFeatures(sample.Image, l.opts.FeatureGrid)
		if err != nil {
			return fmt.Errorf("sample %s in %s: %w", sample.Key, sample.Shard, err)
		}
		batch.Inputs = append(batch.Inputs, features)
		batch.Labels = append(batch.Labels, sample.Label)
		if batch.Len() < l.opts.BatchSize {
			continue
		}
		if err := fn(batch); err != nil {
			return err
		}
		batch = model.Batch{
			Inputs: make([][]float64, 0, l.opts.BatchSize),
			Labels: make([]int, 0, l.opts.BatchSize),
		}
	}
	if err := <-errs; err != nil {
		return err
	}
	if batch.Len() > 0 {
		return fn(batch)
	}
	return nil
}

// Stream launches the ordered shard pipeline. The sample channel closes when
// every shard has been read or the pipeline fails; the error channel then
// yields at most one error and closes.
func (l *Loader) Stream(parent context.Context) (<-chan Sample, <-chan error) {
	ctx, cancel := context.WithCancel(parent)

	workers := l.opts.NumWorkers
	jobs := make(chan shardJob, workers)
	cursors := make(chan shardCursor, workers)
	out := make(chan Sample, workers*2)
	errCh := make(chan error, 1)

	go produceJobs(ctx, jobs, l.opts.Shards)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(ctx, jobs, cursors, l.opts.PendingCap)
		}()
	}

	go func() {
		wg.Wait()
		close(cursors)
	}()

	go func() {
		defer cancel()
		defer close(errCh)
		defer close(out)
		if err := runAggregator(ctx, cursors, out); err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

type shardJob struct {
	id   int
	path string
}

type shardCursor struct {
	id      int
	samples <-chan Sample
	errCh   <-chan error
}

func produceJobs(ctx context.Context, jobs chan<- shardJob, shards []string) {
	defer close(jobs)
	for id, path := range shards {
		select {
		case <-ctx.Done():
			return
		case jobs <- shardJob{id: id, path: path}:
		}
	}
}

func worker(ctx context.Context, jobs <-chan shardJob, cursors chan<- shardCursor, pendingCap int) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			samples, errCh := StreamShard(ctx, job.path, pendingCap)
			select {
			case <-ctx.Done():
				return
			case cursors <- shardCursor{id: job.id, samples: samples, errCh: errCh}:
			}
		}
	}
}

// runAggregator forwards shard streams to out in job id order.
func runAggregator(ctx context.Context, cursors <-chan shardCursor, out chan<- Sample) error {
	pending := make(map[int]shardCursor)
	next := 0
	for {
		cursor, ok := pending[next]
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case c, open := <-cursors:
				if !open {
					return ctx.Err()
				}
				pending[c.id] = c
			}
			continue
		}

		for sample := range cursor.samples {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- sample:
			}
		}
		if err := <-cursor.errCh; err != nil {
			return err
		}
		delete(pending, next)
		next++
	}
}

// Package batch classifies many photos concurrently and summarises the results.
package batch

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/MeKo-Tech/foodlens/internal/classifier"
	"github.com/MeKo-Tech/foodlens/internal/preprocess"
)

// ClassifyFunc classifies one resource.
type ClassifyFunc func(ctx context.Context, res preprocess.Resource) (classifier.Result, error)

// Config controls a batch run.
type Config struct {
	// Workers is the number of concurrent classifications; 0 means NumCPU.
	Workers  int
	Progress ProgressCallback
}

// Item is the outcome for one file.
type Item struct {
	File   string
	Result classifier.Result
	Err    error
}

// Result holds the items of a run in input order.
type Result struct {
	Items    []Item
	Workers  int
	Duration time.Duration
}

// Failed returns the number of items that carry an error.
func (r *Result) Failed() int {
	n := 0
	for _, it := range r.Items {
		if it.Err != nil {
			n++
		}
	}
	return n
}

type job struct {
	index int
	file  string
}

// Run classifies files with a worker pool. Per-file errors are recorded on
// the item; only cancellation of ctx aborts the run.
func Run(ctx context.Context, files []string, classify ClassifyFunc, cfg Config) (*Result, error) {
	if len(files) == 0 {
		return nil, errors.New("no image files found")
	}
	if classify == nil {
		return nil, errors.New("no classifier")
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, len(files))

	progress := cfg.Progress
	if progress == nil {
		progress = NoOpProgress{}
	}
	progress.OnStart(len(files))
	defer progress.OnComplete()

	start := time.Now()
	jobs := make(chan job)
	done := make(chan Item, len(files))
	items := make([]Item, len(files))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				r, err := classify(ctx, preprocess.FileResource(j.file))
				items[j.index] = Item{File: j.file, Result: r, Err: err}
				done <- items[j.index]
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, f := range files {
			select {
			case jobs <- job{index: i, file: f}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(done)
	}()

	processed := 0
	for range done {
		processed++
		progress.OnProgress(processed, len(files))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Result{Items: items, Workers: workers, Duration: time.Since(start)}, nil
}

package index

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// IndexFiles indexes paths in batches of opts.BatchSize, running up to
// opts.Concurrency provider calls concurrently within each batch, using
// an errgroup plus a buffered channel acting as a counting semaphore to
// cap fan-out.
func (idx *Index) IndexFiles(ctx context.Context, paths []string, opts Options) (*BatchResult, error) {
	if opts.Concurrency < 1 {
		return nil, fmt.Errorf("index: concurrency must be >= 1, got %d", opts.Concurrency)
	}
	if opts.BatchSize < 1 {
		return nil, fmt.Errorf("index: batch size must be >= 1, got %d", opts.BatchSize)
	}

	start := time.Now()
	idx.deps.Events.PublishIndexingStarted(len(paths))

	result := &BatchResult{}
	processed := 0

	for batchStart := 0; batchStart < len(paths); batchStart += opts.BatchSize {
		select {
		case <-ctx.Done():
			idx.deps.Events.PublishIndexingCompleted(time.Since(start).Milliseconds())
			return result, nil
		default:
		}

		batchEnd := batchStart + opts.BatchSize
		if batchEnd > len(paths) {
			batchEnd = len(paths)
		}
		batch := paths[batchStart:batchEnd]

		if err := idx.indexBatch(ctx, batch, opts, result); err != nil {
			idx.deps.Events.PublishIndexingCompleted(time.Since(start).Milliseconds())
			return result, err
		}

		processed += len(batch)
		idx.deps.Events.PublishProgress(processed, len(paths))
		if opts.OnProgress != nil {
			opts.OnProgress(processed, len(paths))
		}
	}

	elapsed := time.Since(start)
	idx.mu.Lock()
	idx.stats.CumulativeTime += elapsed
	idx.mu.Unlock()

	if hash, err := idx.deps.VCS.HeadCommit(ctx); err == nil {
		idx.mu.Lock()
		idx.stats.LastCommitHash = hash
		idx.mu.Unlock()
	}

	idx.deps.Events.PublishIndexingCompleted(elapsed.Milliseconds())
	return result, nil
}

// indexBatch runs one batch of files through IndexFile with bounded
// concurrency, appending to result under mu. When opts.SkipFailures is
// false, the first per-file error cancels the group and is returned;
// when true, every failure is captured into result.Errors and the
// batch continues.
func (idx *Index) indexBatch(ctx context.Context, batch []string, opts Options, result *BatchResult) error {
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, opts.Concurrency)
	var mu sync.Mutex

	for _, path := range batch {
		path := path
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				return gctx.Err()
			}

			uri := idx.uriForPath(path)
			err := idx.IndexFile(gctx, path)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, FileError{URI: uri, Error: err})
				if !opts.SkipFailures {
					return err
				}
				return nil
			}
			result.Indexed = append(result.Indexed, uri)
			return nil
		})
	}

	return g.Wait()
}

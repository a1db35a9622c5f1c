package index

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	amerrors "github.com/lsmcp/lsmcp/internal/errors"
)

// UpdateIncremental is the core incremental-refresh protocol: probe the
// current commit hash, diff against the previously stored baseline,
// union modified and recognized untracked files into a candidate set,
// and process each candidate (reindex if still present on disk, remove
// otherwise). On success the new commit hash becomes the baseline for
// the next call.
func (idx *Index) UpdateIncremental(ctx context.Context, opts IncrementalOptions) (*IncrementalResult, error) {
	if opts.BatchSize < 1 {
		opts.BatchSize = 50
	}

	if !idx.deps.VCS.IsRepository(ctx) {
		return &IncrementalResult{Errors: []string{"Not a git repository"}}, nil
	}

	currentHash, err := idx.deps.VCS.HeadCommit(ctx)
	if err != nil {
		return &IncrementalResult{Errors: []string{"Not a git repository"}}, nil
	}

	idx.mu.RLock()
	lastHash := idx.stats.LastCommitHash
	idx.mu.RUnlock()
	if lastHash == "" {
		return &IncrementalResult{Errors: []string{"No previous git hash found"}}, nil
	}

	changed, err := idx.deps.VCS.ChangedFiles(ctx, lastHash)
	if err != nil {
		if amerrors.GetKind(err) == amerrors.KindInvalidHash {
			return &IncrementalResult{Errors: []string{fmt.Sprintf("invalid baseline commit hash: %v", err)}}, nil
		}
		return nil, err
	}

	untracked, err := idx.deps.VCS.UntrackedFiles(ctx)
	if err != nil {
		return nil, err
	}
	untracked = idx.filterRecognized(untracked)

	candidates := unionPaths(changed, untracked)

	result := &IncrementalResult{}
	for batchStart := 0; batchStart < len(candidates); batchStart += opts.BatchSize {
		select {
		case <-ctx.Done():
			return result, nil
		default:
		}

		batchEnd := batchStart + opts.BatchSize
		if batchEnd > len(candidates) {
			batchEnd = len(candidates)
		}
		batch := candidates[batchStart:batchEnd]

		for _, path := range batch {
			if !idx.deps.FS.Exists(path) {
				idx.RemoveFile(path)
				result.Removed = append(result.Removed, path)
				continue
			}
			if err := idx.IndexFile(ctx, path); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", path, err))
				continue
			}
			result.Updated = append(result.Updated, path)
		}

		if opts.OnProgress != nil {
			opts.OnProgress(batchEnd, len(candidates))
		}
		idx.deps.Events.PublishProgress(batchEnd, len(candidates))
	}

	idx.mu.Lock()
	idx.stats.LastCommitHash = currentHash
	idx.stats.LastUpdate = time.Now()
	idx.mu.Unlock()

	return result, nil
}

// filterRecognized keeps only paths whose extension the current
// language preset recognizes.
func (idx *Index) filterRecognized(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		ext := strings.ToLower(filepath.Ext(p))
		if _, ok := idx.recognizedExts[ext]; ok {
			out = append(out, p)
		}
	}
	return out
}

// unionPaths deduplicates modified and untracked into a single
// candidate list, preserving first-seen order.
func unionPaths(modified, untracked []string) []string {
	seen := make(map[string]struct{}, len(modified)+len(untracked))
	out := make([]string, 0, len(modified)+len(untracked))
	for _, p := range modified {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	for _, p := range untracked {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

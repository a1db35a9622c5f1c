package index

import (
	"time"

	"github.com/lsmcp/lsmcp/internal/symbol"
)

// Stats summarizes the index's current in-memory state, kept
// consistent with the derived name/kind/container maps at every
// observation point.
type Stats struct {
	TotalFiles      int
	TotalSymbols    int
	CumulativeTime  time.Duration
	LastUpdate      time.Time
	LastCommitHash  string
}

// Query is the predicate set accepted by QuerySymbols. Every field is
// optional; an empty Query matches every symbol.
type Query struct {
	// Name, when non-empty, must appear as a case-sensitive substring of
	// a symbol's name.
	Name string

	// Kind, when non-empty, restricts results to symbols whose kind is a
	// member of the set.
	Kind []symbol.Kind

	// File, when non-empty, restricts results to the single file at this
	// repository-relative path.
	File string

	// ContainerName, when non-empty, must equal a symbol's container
	// name exactly.
	ContainerName string

	// IncludeChildren controls whether a matched node's children are
	// also visited during traversal (they are always visited when a
	// node does NOT match, to find matches deeper in the tree).
	// Defaults to true; set ExplicitIncludeChildren to override with
	// IncludeChildren=false.
	IncludeChildren          bool
	ExplicitIncludeChildren  bool
}

// includeChildren resolves the query's include_children predicate,
// defaulting to true.
func (q Query) includeChildren() bool {
	if !q.ExplicitIncludeChildren {
		return true
	}
	return q.IncludeChildren
}

// Options configures IndexFiles. Concurrency and BatchSize must be ≥1;
// SkipFailures has no implicit default and must be set explicitly by
// the caller — indexing behavior on a single bad file is never
// assumed.
type Options struct {
	Concurrency  int
	BatchSize    int
	SkipFailures bool
	OnProgress   func(current, total int)
}

// FileError pairs a failed file's URI with the error encountered.
type FileError struct {
	URI   string
	Error error
}

// BatchResult is the outcome of IndexFiles: every URI successfully
// indexed and every URI that failed.
type BatchResult struct {
	Indexed []string
	Errors  []FileError
}

// IncrementalOptions configures UpdateIncremental.
type IncrementalOptions struct {
	BatchSize  int
	OnProgress func(current, total int)
}

// IncrementalResult is the outcome of UpdateIncremental: repository-
// relative paths updated, repository-relative paths removed, and a
// list of human-readable error messages for files that individually
// failed (the batch itself never aborts on a per-file error).
type IncrementalResult struct {
	Updated []string
	Removed []string
	Errors  []string
}

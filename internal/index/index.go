// Package index implements the persistent, multi-dimensional workspace
// symbol index: the in-memory file/name/kind/container maps, the
// content-addressed cache lookup chain, the bounded-concurrency batch
// indexer, and the VCS-diff-driven incremental refresh. This is the
// component the rest of the repository exists to feed and query.
//
// Dependencies are injected as a struct of interfaces, and batch
// operations return a Result struct pairing successes with per-item
// errors rather than aborting on the first failure.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	amerrors "github.com/lsmcp/lsmcp/internal/errors"
	"github.com/lsmcp/lsmcp/internal/symbol"
)

// Provider is the inbound symbol-provider contract the index consumes.
// Satisfied by *provider.Provider; declared here as a narrow interface
// so this package stays testable with a fake.
type Provider interface {
	GetDocumentSymbols(ctx context.Context, uri string) ([]symbol.Symbol, error)
}

// FileSystem is the inbound file-system contract used for existence
// and modification-time checks (needs_reindex, update_incremental).
type FileSystem interface {
	Exists(path string) bool
	ModTime(path string) (time.Time, error)
}

// Cache is the persistent content-addressed symbol store contract.
// Satisfied by *cache.Cache.
type Cache interface {
	Get(filePath, blobHash string) ([]symbol.Symbol, bool, error)
	Set(filePath, blobHash string, symbols []symbol.Symbol, lastModified int64) error
	Remove(filePath string) error
	Clear() error
}

// VCSProbe is the outbound VCS contract used for incremental refresh
// and per-file blob-hash lookups. Satisfied by *vcs.Probe.
type VCSProbe interface {
	IsRepository(ctx context.Context) bool
	HeadCommit(ctx context.Context) (string, error)
	ChangedFiles(ctx context.Context, hash string) ([]string, error)
	UntrackedFiles(ctx context.Context) ([]string, error)
	BlobHash(ctx context.Context, path string) (string, error)
}

// EventPublisher is the outbound event-bus contract. Satisfied by
// *events.Bus.
type EventPublisher interface {
	PublishFileIndexed(uri string, count int, fromCache bool)
	PublishFileRemoved(uri string)
	PublishIndexError(uri string, err error)
	PublishIndexingStarted(fileCount int)
	PublishIndexingCompleted(durationMs int64)
	PublishProgress(current, total int)
	PublishCleared()
}

// defaultRecognizedExtensions is the file-extension allowlist used to
// filter untracked files during update_incremental when no explicit
// list is supplied via WithRecognizedExtensions.
var defaultRecognizedExtensions = map[string]struct{}{
	".go": {}, ".ts": {}, ".tsx": {}, ".js": {}, ".jsx": {},
	".py": {}, ".rs": {}, ".java": {}, ".cs": {}, ".rb": {},
	".c": {}, ".h": {}, ".cpp": {}, ".hpp": {},
}

// Dependencies are the collaborators the index mutates or queries.
// Every field except Log is required; New returns an error for a nil
// collaborator, and a nil Log falls back to slog.Default().
type Dependencies struct {
	Provider Provider
	FS       FileSystem
	Cache    Cache
	VCS      VCSProbe
	Events   EventPublisher
	Log      *slog.Logger
}

// Index is the symbol-index owner: a single logical writer serializing
// all mutations under mu, with read access to the derived maps also
// passing through mu (RLock) so queries observe a consistent snapshot.
type Index struct {
	deps Dependencies
	root string
	log  *slog.Logger

	recognizedExts map[string]struct{}

	mu             sync.RWMutex
	fileIndex      map[string]*symbol.FileSymbols
	nameIndex      map[string]map[string]struct{}
	kindIndex      map[symbol.Kind]map[string]struct{}
	containerIndex map[string]map[string]struct{}
	stats          Stats
}

// Option configures an Index at construction.
type Option func(*Index)

// WithRecognizedExtensions overrides the file extensions considered
// "recognized by the current language preset" when filtering untracked
// files during update_incremental.
func WithRecognizedExtensions(exts []string) Option {
	return func(idx *Index) {
		set := make(map[string]struct{}, len(exts))
		for _, e := range exts {
			set[strings.ToLower(e)] = struct{}{}
		}
		idx.recognizedExts = set
	}
}

// New builds an Index rooted at root (an absolute workspace path),
// backed by deps.
func New(root string, deps Dependencies, opts ...Option) (*Index, error) {
	if deps.Provider == nil || deps.FS == nil || deps.Cache == nil || deps.VCS == nil || deps.Events == nil {
		return nil, fmt.Errorf("index: all dependencies are required")
	}
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}

	idx := &Index{
		deps:           deps,
		root:           root,
		log:            log,
		recognizedExts: defaultRecognizedExtensions,
		fileIndex:      make(map[string]*symbol.FileSymbols),
		nameIndex:      make(map[string]map[string]struct{}),
		kindIndex:      make(map[symbol.Kind]map[string]struct{}),
		containerIndex: make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx, nil
}

// Stats returns a snapshot of the index's current counters.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.stats
}

// Files returns every indexed file URI in a stable sorted order.
func (idx *Index) Files() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return allURIsStable(idx.fileIndex)
}

func (idx *Index) uriForPath(path string) string {
	if filepath.IsAbs(path) {
		return "file://" + path
	}
	return "file://" + filepath.Join(idx.root, path)
}

func (idx *Index) pathForURI(uri string) string {
	abs := strings.TrimPrefix(uri, "file://")
	if rel, err := filepath.Rel(idx.root, abs); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return abs
}

// IndexFile resolves path to a URI, consults the cache, and on a miss
// asks the provider, normalizing and installing the result. Exactly
// one of {cache hit, provider success, provider failure} occurs.
func (idx *Index) IndexFile(ctx context.Context, path string) error {
	uri := idx.uriForPath(path)

	blobHash, _ := idx.deps.VCS.BlobHash(ctx, path)

	if cached, ok, err := idx.deps.Cache.Get(path, blobHash); err == nil && ok {
		idx.install(uri, &symbol.FileSymbols{
			URI:         uri,
			LastIndexed: time.Now().UnixMilli(),
			BlobHash:    blobHash,
			Symbols:     cached,
		})
		idx.deps.Events.PublishFileIndexed(uri, symbol.CountAll(cached), true)
		return nil
	}

	symbols, err := idx.deps.Provider.GetDocumentSymbols(ctx, uri)
	if err != nil {
		wrapped := amerrors.ProviderFailure(uri, err)
		idx.deps.Events.PublishIndexError(uri, wrapped)
		return wrapped
	}

	mtime, err := idx.deps.FS.ModTime(path)
	lastModified := time.Now().UnixMilli()
	if err == nil {
		lastModified = mtime.UnixMilli()
	}

	if err := idx.deps.Cache.Set(path, blobHash, symbols, lastModified); err != nil {
		idx.log.Warn("index_cache_write_failed", slog.String("path", path), slog.String("error", err.Error()))
	}

	idx.install(uri, &symbol.FileSymbols{
		URI:         uri,
		LastIndexed: time.Now().UnixMilli(),
		BlobHash:    blobHash,
		Symbols:     symbols,
	})
	idx.deps.Events.PublishFileIndexed(uri, symbol.CountAll(symbols), false)
	return nil
}

// install replaces whatever file-symbols record exists for uri
// wholesale: the old record (if any) is removed from every derived set
// before the new one is installed, giving exactly-once update
// semantics for a re-index.
func (idx *Index) install(uri string, fs *symbol.FileSymbols) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if old, ok := idx.fileIndex[uri]; ok {
		idx.stats.TotalSymbols -= symbol.CountAll(old.Symbols)
		idx.removeFromDerivedLocked(uri, old.Symbols)
	} else {
		idx.stats.TotalFiles++
	}

	idx.fileIndex[uri] = fs
	idx.addToDerivedLocked(uri, fs.Symbols)
	idx.stats.TotalSymbols += symbol.CountAll(fs.Symbols)
	idx.stats.LastUpdate = time.Now()
}

func (idx *Index) addToDerivedLocked(uri string, symbols []symbol.Symbol) {
	symbol.Walk(symbols, func(s symbol.Symbol, _ int) {
		addToSet(idx.nameIndex, s.Name, uri)
		addToSet(idx.kindIndex, s.Kind, uri)
		if s.ContainerName != "" {
			addToSet(idx.containerIndex, s.ContainerName, uri)
		}
	})
}

func (idx *Index) removeFromDerivedLocked(uri string, symbols []symbol.Symbol) {
	symbol.Walk(symbols, func(s symbol.Symbol, _ int) {
		removeFromSet(idx.nameIndex, s.Name, uri)
		removeFromSet(idx.kindIndex, s.Kind, uri)
		if s.ContainerName != "" {
			removeFromSet(idx.containerIndex, s.ContainerName, uri)
		}
	})
}

func addToSet[K comparable](index map[K]map[string]struct{}, key K, uri string) {
	set, ok := index[key]
	if !ok {
		set = make(map[string]struct{})
		index[key] = set
	}
	set[uri] = struct{}{}
}

func removeFromSet[K comparable](index map[K]map[string]struct{}, key K, uri string) {
	set, ok := index[key]
	if !ok {
		return
	}
	delete(set, uri)
	if len(set) == 0 {
		delete(index, key)
	}
}

// RemoveFile removes path's file-symbols record and prunes it from
// every derived set.
func (idx *Index) RemoveFile(path string) {
	uri := idx.uriForPath(path)

	idx.mu.Lock()
	old, ok := idx.fileIndex[uri]
	if ok {
		idx.stats.TotalSymbols -= symbol.CountAll(old.Symbols)
		idx.stats.TotalFiles--
		idx.removeFromDerivedLocked(uri, old.Symbols)
		delete(idx.fileIndex, uri)
		idx.stats.LastUpdate = time.Now()
	}
	idx.mu.Unlock()

	if err := idx.deps.Cache.Remove(path); err != nil {
		idx.log.Warn("index_cache_remove_failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	idx.deps.Events.PublishFileRemoved(uri)
}

// Clear resets all in-memory state and stats, leaving the persistent
// cache untouched.
func (idx *Index) Clear() {
	idx.mu.Lock()
	idx.fileIndex = make(map[string]*symbol.FileSymbols)
	idx.nameIndex = make(map[string]map[string]struct{})
	idx.kindIndex = make(map[symbol.Kind]map[string]struct{})
	idx.containerIndex = make(map[string]map[string]struct{})
	idx.stats = Stats{}
	idx.mu.Unlock()

	idx.deps.Events.PublishCleared()
}

// ForceClear clears in-memory state and empties the persistent cache.
func (idx *Index) ForceClear() error {
	if err := idx.deps.Cache.Clear(); err != nil {
		return err
	}
	idx.Clear()
	return nil
}

// NeedsReindex reports whether path should be re-indexed: absent from
// the index, on-disk modification time newer than last_indexed, or a
// VCS blob-hash mismatch. Falls back to modification time alone when
// the blob hash is unavailable. Any I/O error is conservative: true.
func (idx *Index) NeedsReindex(ctx context.Context, path string) bool {
	uri := idx.uriForPath(path)

	idx.mu.RLock()
	record, ok := idx.fileIndex[uri]
	idx.mu.RUnlock()
	if !ok {
		return true
	}

	mtime, err := idx.deps.FS.ModTime(path)
	if err != nil {
		return true
	}
	lastIndexed := time.UnixMilli(record.LastIndexed)
	if mtime.After(lastIndexed) {
		return true
	}

	blobHash, err := idx.deps.VCS.BlobHash(ctx, path)
	if err != nil || blobHash == "" {
		return false
	}
	return blobHash != record.BlobHash
}

// Package session manages named bindings between a project root and its
// on-disk symbol-index cache directory, letting the daemon hold more
// than one project's index without discarding the others. Opening a
// session with the same name twice against the same project reattaches
// to its existing cache; switching to a different session swaps which
// cache directory the daemon's *index.Index and persistent cache point
// at, without re-running the LSP handshake for projects already warm.
package session

import (
	"time"

	"github.com/lsmcp/lsmcp/pkg/version"
)

// Session represents a named binding between a project root and the
// on-disk directory holding its cache database and last-known stats.
type Session struct {
	// Name is the user-provided session identifier.
	Name string `json:"name"`

	// ProjectPath is the absolute path to the project root.
	ProjectPath string `json:"project_path"`

	// CreatedAt is when the session was first created.
	CreatedAt time.Time `json:"created_at"`

	// LastUsed is when the session was last accessed.
	LastUsed time.Time `json:"last_used"`

	// Version is the lsmcp version that created this session.
	Version string `json:"version"`

	// IndexStats contains statistics about the indexed content.
	IndexStats IndexStats `json:"index_stats"`

	// SessionDir is the directory where session data is stored.
	// This is computed, not persisted.
	SessionDir string `json:"-"`
}

// IndexStats mirrors the subset of index.Stats worth persisting
// alongside a session so `lsmcp status` can report it without
// reopening the cache database.
type IndexStats struct {
	// FileCount is the number of files indexed.
	FileCount int `json:"file_count"`

	// SymbolCount is the number of symbols indexed, counting descendants.
	SymbolCount int `json:"symbol_count"`

	// LastIndexed is when the index was last updated.
	LastIndexed time.Time `json:"last_indexed"`
}

// SessionInfo provides summary information about a session for listing.
type SessionInfo struct {
	// Name is the session identifier.
	Name string

	// ProjectPath is the absolute path to the project root.
	ProjectPath string

	// LastUsed is when the session was last accessed.
	LastUsed time.Time

	// Size is the total storage size in bytes.
	Size int64

	// Valid indicates if the project path still exists.
	Valid bool

	// FileCount is the number of files recorded in IndexStats as of the
	// last `session open`/`session save`. Zero means the session was
	// created but never bound to a completed index_files run.
	FileCount int

	// SymbolCount is the number of symbols recorded in IndexStats.
	SymbolCount int

	// LastIndexed is when IndexStats was last updated, the zero time if
	// the session has never recorded a successful index.
	LastIndexed time.Time
}

// NewSession creates a new session with the given name and project path.
func NewSession(name, projectPath, sessionDir string) *Session {
	now := time.Now()
	return &Session{
		Name:        name,
		ProjectPath: projectPath,
		CreatedAt:   now,
		LastUsed:    now,
		Version:     version.Version,
		IndexStats:  IndexStats{},
		SessionDir:  sessionDir,
	}
}

// UpdateLastUsed updates the LastUsed timestamp to now.
func (s *Session) UpdateLastUsed() {
	s.LastUsed = time.Now()
}

// UpdateIndexStats updates the index statistics.
func (s *Session) UpdateIndexStats(fileCount, symbolCount int) {
	s.IndexStats.FileCount = fileCount
	s.IndexStats.SymbolCount = symbolCount
	s.IndexStats.LastIndexed = time.Now()
}

// IsStale returns true if the session hasn't been used within the given duration.
func (s *Session) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUsed) > maxAge
}

// ToInfo converts a Session to SessionInfo for listing.
func (s *Session) ToInfo(size int64, valid bool) *SessionInfo {
	return &SessionInfo{
		Name:        s.Name,
		ProjectPath: s.ProjectPath,
		LastUsed:    s.LastUsed,
		Size:        size,
		Valid:       valid,
		FileCount:   s.IndexStats.FileCount,
		SymbolCount: s.IndexStats.SymbolCount,
		LastIndexed: s.IndexStats.LastIndexed,
	}
}

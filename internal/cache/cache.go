// Package cache implements the persistent, content-addressed store that
// backs the workspace symbol index: a SQLite database keyed by
// (project_root, file_path, blob_hash), with the symbol tree for each
// file flattened into one `symbols` row per node (see flatten.go),
// gated by a schema_version row.
package cache

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	_ "github.com/mattn/go-sqlite3" // CGO sqlite3 driver

	amerrors "github.com/lsmcp/lsmcp/internal/errors"
	"github.com/lsmcp/lsmcp/internal/symbol"
)

// CurrentSchemaVersion is the compiled-in schema version. Bumping it
// forces a wipe-and-reindex of every existing cache on next open.
const CurrentSchemaVersion = 1

// Cache is a single-writer, content-addressed symbol store. A Cache is
// bound to one project root and lives for the lifetime of the owning
// daemon process.
type Cache struct {
	mu                 sync.RWMutex
	db                 *sql.DB
	path               string
	projectRoot        string
	lock               *flock.Flock
	closed             bool
	requiresReindexing bool
	log                *slog.Logger
}

// Open opens (creating if necessary) the cache database at
// <dir>/symbols.db for the given project root. dir is
// typically CacheConfig.Dir; projectRoot scopes lookups so that two
// workspaces never collide inside a shared cache directory.
func Open(dir, projectRoot string, log *slog.Logger) (*Cache, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, amerrors.CacheIOErr("open", fmt.Errorf("failed to create cache directory %s: %w", dir, err))
	}

	lockPath := filepath.Join(dir, ".cache.lock")
	fl := flock.New(lockPath)
	if err := fl.Lock(); err != nil {
		return nil, amerrors.CacheIOErr("open", fmt.Errorf("failed to acquire cache lock: %w", err))
	}

	dbPath := filepath.Join(dir, "symbols.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		_ = fl.Unlock()
		return nil, amerrors.CacheIOErr("open", fmt.Errorf("failed to open cache database: %w", err))
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	c := &Cache{
		db:          db,
		path:        dbPath,
		projectRoot: projectRoot,
		lock:        fl,
		log:         log,
	}

	if err := c.initSchema(); err != nil {
		_ = db.Close()
		_ = fl.Unlock()
		return nil, amerrors.CacheIOErr("open", fmt.Errorf("failed to initialize schema: %w", err))
	}

	if err := c.checkSchemaVersion(); err != nil {
		_ = db.Close()
		_ = fl.Unlock()
		return nil, amerrors.CacheIOErr("open", err)
	}

	return c, nil
}

func (c *Cache) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS symbols (
		project_root   TEXT NOT NULL,
		file_path      TEXT NOT NULL,
		name_path      TEXT NOT NULL,
		parent_path    TEXT NOT NULL,
		seq            INTEGER NOT NULL,
		name           TEXT NOT NULL,
		kind           INTEGER NOT NULL,
		container_name TEXT,
		detail         TEXT,
		deprecated     INTEGER NOT NULL DEFAULT 0,
		start_line     INTEGER NOT NULL,
		start_char     INTEGER NOT NULL,
		end_line       INTEGER NOT NULL,
		end_char       INTEGER NOT NULL,
		sel_start_line INTEGER NOT NULL,
		sel_start_char INTEGER NOT NULL,
		sel_end_line   INTEGER NOT NULL,
		sel_end_char   INTEGER NOT NULL,
		uri            TEXT NOT NULL,
		blob_hash      TEXT,
		last_modified  INTEGER NOT NULL,
		PRIMARY KEY (project_root, file_path, name_path, start_line, start_char)
	);

	CREATE INDEX IF NOT EXISTS symbols_by_file
		ON symbols (project_root, file_path, seq);
	`
	_, err := c.db.Exec(schema)
	return err
}

// checkSchemaVersion compares the stored schema_version to
// CurrentSchemaVersion. A lower stored version (or an absent row)
// triggers a wipe of all symbol rows and records requires_reindexing.
func (c *Cache) checkSchemaVersion() error {
	var stored int
	err := c.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&stored)
	if err == sql.ErrNoRows {
		stored = 0
	} else if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if stored < CurrentSchemaVersion {
		c.log.Warn("cache_schema_outdated",
			slog.Int("stored_version", stored),
			slog.Int("current_version", CurrentSchemaVersion))

		tx, err := c.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin schema migration: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.Exec(`DELETE FROM symbols`); err != nil {
			return fmt.Errorf("failed to wipe symbols table: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM schema_version`); err != nil {
			return fmt.Errorf("failed to clear schema_version: %w", err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, CurrentSchemaVersion); err != nil {
			return fmt.Errorf("failed to write schema_version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit schema migration: %w", err)
		}

		c.mu.Lock()
		c.requiresReindexing = true
		c.mu.Unlock()
	}

	return nil
}

// RequiresReindexing reports whether the cache was wiped by a schema
// version bump since it was opened, and a full reindex is therefore
// necessary. The flag is cleared only by MarkReindexComplete.
func (c *Cache) RequiresReindexing() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.requiresReindexing
}

// MarkReindexComplete clears the requires-reindexing flag once the
// caller has finished a full reindex following a schema bump.
func (c *Cache) MarkReindexComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requiresReindexing = false
}

// Get looks up the symbols cached for filePath at blobHash, rebuilding
// the symbol tree from its flattened `symbols` rows (see flatten.go).
// Returns (nil, false, nil) on a miss, including when the stored blob
// hash does not match. Read failures are logged and reported as a
// miss rather than propagated, so a corrupt cache degrades to a full
// re-index instead of failing the caller.
func (c *Cache) Get(filePath, blobHash string) ([]symbol.Symbol, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, false, amerrors.CacheIOErr("get", fmt.Errorf("cache is closed"))
	}

	rows, err := c.db.Query(
		`SELECT name_path, parent_path, seq, name, kind, container_name, detail,
		        deprecated, start_line, start_char, end_line, end_char,
		        sel_start_line, sel_start_char, sel_end_line, sel_end_char, uri, blob_hash
		 FROM symbols
		 WHERE project_root = ? AND file_path = ?
		 ORDER BY seq ASC`,
		c.projectRoot, filePath)
	if err != nil {
		c.log.Warn("cache_read_failed", slog.String("file_path", filePath), slog.String("error", err.Error()))
		return nil, false, nil
	}
	defer rows.Close()

	var records []symbolRow
	var storedHash string
	for rows.Next() {
		var r symbolRow
		var containerName, detail sql.NullString
		if err := rows.Scan(&r.NamePath, &r.ParentPath, &r.Seq, &r.Name, &r.Kind, &containerName, &detail,
			&r.Deprecated, &r.StartLine, &r.StartChar, &r.EndLine, &r.EndChar,
			&r.SelStartLine, &r.SelStartChar, &r.SelEndLine, &r.SelEndChar, &r.URI, &storedHash); err != nil {
			c.log.Warn("cache_decode_failed", slog.String("file_path", filePath), slog.String("error", err.Error()))
			return nil, false, nil
		}
		r.ContainerName = containerName.String
		r.Detail = detail.String
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		c.log.Warn("cache_read_failed", slog.String("file_path", filePath), slog.String("error", err.Error()))
		return nil, false, nil
	}

	if len(records) == 0 {
		return nil, false, nil
	}
	if storedHash != blobHash {
		return nil, false, nil
	}

	return reconstructSymbols(records), true, nil
}

// Set persists symbols for filePath at blobHash, replacing any prior
// entry wholesale: the tree is flattened into one `symbols` row per
// node (see flatten.go) inside a transaction so a concurrent reader
// never observes a partial tree. Write failures propagate so the
// caller may retry.
func (c *Cache) Set(filePath, blobHash string, symbols []symbol.Symbol, lastModified int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return amerrors.CacheIOErr("set", fmt.Errorf("cache is closed"))
	}

	rows := flattenSymbols(symbols)

	tx, err := c.db.Begin()
	if err != nil {
		return amerrors.CacheIOErr("set", fmt.Errorf("failed to begin transaction for %s: %w", filePath, err))
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM symbols WHERE project_root = ? AND file_path = ?`, c.projectRoot, filePath); err != nil {
		return amerrors.CacheIOErr("set", fmt.Errorf("failed to clear prior rows for %s: %w", filePath, err))
	}

	stmt, err := tx.Prepare(`
		INSERT INTO symbols (
			project_root, file_path, name_path, parent_path, seq, name, kind,
			container_name, detail, deprecated, start_line, start_char, end_line, end_char,
			sel_start_line, sel_start_char, sel_end_line, sel_end_char, uri, blob_hash, last_modified
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return amerrors.CacheIOErr("set", fmt.Errorf("failed to prepare insert for %s: %w", filePath, err))
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.Exec(
			c.projectRoot, filePath, r.NamePath, r.ParentPath, r.Seq, r.Name, r.Kind,
			r.ContainerName, r.Detail, r.Deprecated, r.StartLine, r.StartChar, r.EndLine, r.EndChar,
			r.SelStartLine, r.SelStartChar, r.SelEndLine, r.SelEndChar, r.URI, blobHash, lastModified,
		); err != nil {
			return amerrors.CacheIOErr("set", fmt.Errorf("failed to write symbol row for %s: %w", filePath, err))
		}
	}

	if len(rows) == 0 {
		// An empty symbol list is still a cache hit — "not indexed" and
		// "indexed, found nothing" must stay distinguishable — so record
		// a sentinel row carrying only the blob hash.
		if _, err := tx.Exec(
			`INSERT INTO symbols (project_root, file_path, name_path, parent_path, seq, name, kind,
			  container_name, detail, deprecated, start_line, start_char, end_line, end_char,
			  sel_start_line, sel_start_char, sel_end_line, sel_end_char, uri, blob_hash, last_modified)
			 VALUES (?, ?, '', '', 0, '', 0, NULL, NULL, 0, 0, 0, 0, 0, 0, 0, 0, 0, '', ?, ?)`,
			c.projectRoot, filePath, blobHash, lastModified); err != nil {
			return amerrors.CacheIOErr("set", fmt.Errorf("failed to write empty marker for %s: %w", filePath, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return amerrors.CacheIOErr("set", fmt.Errorf("failed to commit symbols for %s: %w", filePath, err))
	}
	return nil
}

// Remove deletes any cached entry for filePath.
func (c *Cache) Remove(filePath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return amerrors.CacheIOErr("remove", fmt.Errorf("cache is closed"))
	}

	_, err := c.db.Exec(
		`DELETE FROM symbols WHERE project_root = ? AND file_path = ?`,
		c.projectRoot, filePath)
	if err != nil {
		return amerrors.CacheIOErr("remove", fmt.Errorf("failed to remove %s: %w", filePath, err))
	}
	return nil
}

// Clear empties every cached entry for this project root, leaving the
// schema_version row untouched.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return amerrors.CacheIOErr("clear", fmt.Errorf("cache is closed"))
	}

	if _, err := c.db.Exec(`DELETE FROM symbols WHERE project_root = ?`, c.projectRoot); err != nil {
		return amerrors.CacheIOErr("clear", fmt.Errorf("failed to clear cache: %w", err))
	}
	return nil
}

// Close releases the database handle and the advisory directory lock.
// Idempotent.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var firstErr error
	if c.db != nil {
		if _, err := c.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			firstErr = err
		}
		if err := c.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.lock != nil {
		if err := c.lock.Unlock(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Path returns the path to the underlying database file.
func (c *Cache) Path() string {
	return c.path
}

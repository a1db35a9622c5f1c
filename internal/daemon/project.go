package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lsmcp/lsmcp/internal/cache"
	"github.com/lsmcp/lsmcp/internal/config"
	"github.com/lsmcp/lsmcp/internal/events"
	"github.com/lsmcp/lsmcp/internal/index"
	"github.com/lsmcp/lsmcp/internal/lsp"
	"github.com/lsmcp/lsmcp/internal/mcp"
	"github.com/lsmcp/lsmcp/internal/provider"
	"github.com/lsmcp/lsmcp/internal/vcs"
	"github.com/lsmcp/lsmcp/internal/watcher"
)

// osFS is the concrete, process-wide file system the daemon wires into
// every project's provider and index: plain os package calls, no
// virtualization. Tests exercise the index and provider packages
// directly against fakes instead.
type osFS struct{}

func (osFS) ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (osFS) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (osFS) ModTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// projectState bundles the resources the daemon keeps alive for one
// project root: the LSP client child process, the symbol index built
// on top of it, and the MCP tool dispatcher wrapping both.
type projectState struct {
	rootPath  string
	lspClient *lsp.Client
	cache     *cache.Cache
	idx       *index.Index
	server    *mcp.Server
	watcher   *watcher.HybridWatcher

	loadedAt time.Time
	lastUsed time.Time
}

// CallTool satisfies ProjectHandler by delegating to the wrapped MCP
// server, the same dispatch path a stdio MCP client exercises.
func (p *projectState) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	return p.server.CallTool(ctx, name, args)
}

// Close shuts down the project's LSP client and releases its cache
// handle. Safe to call on a partially constructed state.
func (p *projectState) Close() error {
	var firstErr error
	if p.watcher != nil {
		if err := p.watcher.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if p.lspClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.lspClient.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if p.cache != nil {
		if err := p.cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Daemon holds one projectState per indexed project root, evicting the
// least-recently-used project once Config.MaxProjects is exceeded. It
// implements RequestHandler, so a *Server can dispatch JSON-RPC calls
// straight through it.
type Daemon struct {
	cfg    Config
	log    *slog.Logger
	pidf   *PIDFile
	server *Server

	mu       sync.Mutex
	projects map[string]*projectState
	started  time.Time
}

// Opt configures a Daemon.
type Opt func(*Daemon)

// WithLogger overrides the daemon's logger.
func WithLogger(log *slog.Logger) Opt {
	return func(d *Daemon) { d.log = log }
}

// NewDaemon validates cfg and constructs a Daemon ready to Start.
func NewDaemon(cfg Config, opts ...Opt) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	d := &Daemon{
		cfg:      cfg,
		log:      slog.Default(),
		pidf:     NewPIDFile(cfg.PIDPath),
		projects: make(map[string]*projectState),
	}
	for _, opt := range opts {
		opt(d)
	}

	srv, err := NewServer(cfg.SocketPath)
	if err != nil {
		return nil, err
	}
	srv.SetHandler(d)
	d.server = srv

	return d, nil
}

// Start runs the daemon until ctx is cancelled, writing the PID file
// and removing any stale socket left behind by a prior unclean exit.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.cfg.EnsureDir(); err != nil {
		return err
	}
	if err := d.pidf.Write(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	d.started = time.Now()

	defer d.cleanup()

	return d.server.ListenAndServe(ctx)
}

// cleanup closes every loaded project and removes the PID file.
func (d *Daemon) cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for root, p := range d.projects {
		if err := p.Close(); err != nil {
			d.log.Warn("error closing project", slog.String("root", root), slog.String("error", err.Error()))
		}
	}
	d.projects = make(map[string]*projectState)

	if err := d.pidf.Remove(); err != nil {
		d.log.Warn("error removing PID file", slog.String("error", err.Error()))
	}
}

// Handler returns the ProjectHandler bound to rootPath, opening the
// project on first request and refreshing its LRU timestamp on reuse.
func (d *Daemon) Handler(ctx context.Context, rootPath string) (ProjectHandler, error) {
	root, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("invalid root path %q: %w", rootPath, err)
	}

	d.mu.Lock()
	if p, ok := d.projects[root]; ok {
		p.lastUsed = time.Now()
		d.mu.Unlock()
		return p, nil
	}
	d.mu.Unlock()

	p, err := d.openProject(ctx, root)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.projects[root] = p
	d.evictLRU()
	return p, nil
}

// LoadedProjects returns the root paths currently held open.
func (d *Daemon) LoadedProjects() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	roots := make([]string, 0, len(d.projects))
	for root := range d.projects {
		roots = append(roots, root)
	}
	return roots
}

// GetStatus reports the daemon's own uptime and loaded-project count,
// independent of the JSON-RPC server (used by tests).
func (d *Daemon) GetStatus() StatusResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	return StatusResult{
		Running:        true,
		PID:            os.Getpid(),
		Uptime:         time.Since(d.started).Round(time.Second).String(),
		ProjectsLoaded: len(d.projects),
	}
}

// evictLRU drops the least-recently-used project once the configured
// ceiling is exceeded. Caller must hold d.mu.
func (d *Daemon) evictLRU() {
	for len(d.projects) > d.cfg.MaxProjects {
		var oldestRoot string
		var oldestTime time.Time
		first := true
		for root, p := range d.projects {
			if first || p.lastUsed.Before(oldestTime) {
				oldestRoot = root
				oldestTime = p.lastUsed
				first = false
			}
		}
		if oldestRoot == "" {
			return
		}
		if err := d.projects[oldestRoot].Close(); err != nil {
			d.log.Warn("error closing evicted project", slog.String("root", oldestRoot), slog.String("error", err.Error()))
		}
		delete(d.projects, oldestRoot)
	}
}

// openProject loads the project's configuration, starts its language
// server, opens its symbol cache, and wires an MCP server around the
// resulting index, mirroring the single-project composition root that
// cmd/lsmcp's stdio entry point builds directly.
func (d *Daemon) openProject(ctx context.Context, root string) (*projectState, error) {
	return OpenProject(ctx, root, d.log)
}

// OpenProject is the composition root shared by the daemon's
// per-request project loader and cmd/lsmcp's single-project stdio
// entry point: it loads project config, starts the language server,
// opens the symbol cache, and wires an MCP server around the index.
func OpenProject(ctx context.Context, root string, log *slog.Logger) (*projectState, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("load config for %s: %w", root, err)
	}

	command := cfg.LSP.Command
	if len(command) == 0 {
		command = config.DefaultLSPCommand(config.DetectProjectType(root))
	}
	if len(command) == 0 {
		return nil, fmt.Errorf("no language server command configured or detected for %s", root)
	}

	reqTimeout, err := time.ParseDuration(cfg.LSP.RequestTimeout)
	if err != nil {
		reqTimeout = 5 * time.Second
	}

	lspClient, err := lsp.NewClient(command[0], command[1:],
		lsp.WithRequestTimeout(reqTimeout),
		lsp.WithLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("start language server for %s: %w", root, err)
	}

	if _, err := lspClient.Start(ctx, root); err != nil {
		_ = lspClient.Close(ctx)
		return nil, fmt.Errorf("initialize language server for %s: %w", root, err)
	}

	cacheDir := cfg.Cache.Dir
	if cacheDir == "" {
		cacheDir = filepath.Join(root, ".lsmcp", "cache")
	}
	symCache, err := cache.Open(cacheDir, root, log)
	if err != nil {
		_ = lspClient.Close(ctx)
		return nil, fmt.Errorf("open cache for %s: %w", root, err)
	}

	prov, err := provider.New(lspClient, osFS{}, log)
	if err != nil {
		_ = symCache.Close()
		_ = lspClient.Close(ctx)
		return nil, fmt.Errorf("build provider for %s: %w", root, err)
	}

	bus := events.New(log)

	vcsTimeout, err := time.ParseDuration(cfg.VCS.CommandTimeout)
	if err != nil {
		vcsTimeout = 5 * time.Second
	}
	vcsProbe := vcs.New(root, vcs.WithTimeout(vcsTimeout))

	idx, err := index.New(root, index.Dependencies{
		Provider: prov,
		FS:       osFS{},
		Cache:    symCache,
		VCS:      vcsProbe,
		Events:   bus,
		Log:      log,
	})
	if err != nil {
		_ = symCache.Close()
		_ = lspClient.Close(ctx)
		return nil, fmt.Errorf("build index for %s: %w", root, err)
	}

	srv, err := mcp.NewServer(idx, lspClient, cfg, root)
	if err != nil {
		_ = symCache.Close()
		_ = lspClient.Close(ctx)
		return nil, fmt.Errorf("build MCP server for %s: %w", root, err)
	}

	watch, err := startWatcher(root, cfg, idx, log)
	if err != nil {
		log.Warn("failed to start file watcher, falling back to manual update_incremental", slog.String("root", root), slog.String("error", err.Error()))
	}

	now := time.Now()
	return &projectState{
		rootPath:  root,
		lspClient: lspClient,
		cache:     symCache,
		idx:       idx,
		server:    srv,
		watcher:   watch,
		loadedAt:  now,
		lastUsed:  now,
	}, nil
}

// startWatcher starts a debounced filesystem watcher over root and
// runs a background loop that triggers the index's incremental
// refresh whenever a batch of changes settles, keeping a long-lived
// project's index current between explicit index_files/
// update_incremental calls. A watcher start failure is non-fatal: the
// project still serves queries against whatever was indexed, just
// without automatic refresh.
func startWatcher(root string, cfg *config.Config, idx *index.Index, log *slog.Logger) (*watcher.HybridWatcher, error) {
	debounce, err := time.ParseDuration(cfg.Index.WatchDebounce)
	if err != nil {
		debounce = 500 * time.Millisecond
	}

	w, err := watcher.NewHybridWatcher(watcher.Options{
		DebounceWindow: debounce,
		IgnorePatterns: cfg.Paths.Exclude,
	})
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	if err := w.Start(context.Background(), root); err != nil {
		return nil, fmt.Errorf("start watcher for %s: %w", root, err)
	}

	go runWatchLoop(w, cfg, idx, log)
	return w, nil
}

// runWatchLoop applies each debounced batch of filesystem events as a
// single incremental refresh, the same operation `lsmcp index --incremental`
// triggers manually. It exits once the watcher's event channel closes
// on Stop.
func runWatchLoop(w *watcher.HybridWatcher, cfg *config.Config, idx *index.Index, log *slog.Logger) {
	for range w.Events() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		result, err := idx.UpdateIncremental(ctx, index.IncrementalOptions{BatchSize: cfg.Index.BatchSize})
		cancel()
		if err != nil {
			log.Warn("watcher-triggered incremental update failed", slog.String("error", err.Error()))
			continue
		}
		if len(result.Errors) > 0 {
			log.Warn("watcher-triggered incremental update had file errors", slog.Int("error_count", len(result.Errors)))
		}
	}
}

// MCPServer returns the underlying *mcp.Server for a project, for
// callers (cmd/lsmcp's stdio mode) that need to drive its Serve loop
// directly rather than going through the JSON-RPC ProjectHandler path.
func (p *projectState) MCPServer() *mcp.Server {
	return p.server
}

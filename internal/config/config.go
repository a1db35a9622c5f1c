package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProjectType represents the type of project detected at the workspace
// root, used to select a default language server command.
type ProjectType string

const (
	ProjectTypeGo      ProjectType = "go"
	ProjectTypeNode    ProjectType = "node"
	ProjectTypePython  ProjectType = "python"
	ProjectTypeUnknown ProjectType = "unknown"
)

// Config is the complete lsmcp configuration, covering the language
// server command, the persistent cache, indexing behavior, VCS
// integration, and the MCP server transport.
type Config struct {
	Version int            `yaml:"version" json:"version"`
	Paths   PathsConfig    `yaml:"paths" json:"paths"`
	LSP     LSPConfig      `yaml:"lsp" json:"lsp"`
	Cache   CacheConfig    `yaml:"cache" json:"cache"`
	Index   IndexingConfig `yaml:"index" json:"index"`
	VCS     VCSConfig      `yaml:"vcs" json:"vcs"`
	Server  ServerConfig   `yaml:"server" json:"server"`
}

// PathsConfig configures which paths participate in indexing.
type PathsConfig struct {
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// LSPConfig names the language server command to launch and the
// timeouts governing its lifecycle. Command selection mirrors the
// teacher's embedding-provider selection: an explicit command wins,
// otherwise it is derived from the detected project type.
type LSPConfig struct {
	// Command is the language server executable and arguments, e.g.
	// ["gopls"] or ["typescript-language-server", "--stdio"]. Empty
	// triggers auto-detection via DetectProjectType.
	Command []string `yaml:"command" json:"command"`

	// InitTimeout bounds the initialize/initialized handshake.
	InitTimeout string `yaml:"init_timeout" json:"init_timeout"`

	// RequestTimeout bounds an individual request (documentSymbol,
	// workspace/symbol, rename, etc).
	RequestTimeout string `yaml:"request_timeout" json:"request_timeout"`

	// ShutdownGrace bounds the wait after the exit notification before
	// the client kills the server process.
	ShutdownGrace string `yaml:"shutdown_grace" json:"shutdown_grace"`
}

// CacheConfig configures the persistent content-addressed symbol cache.
type CacheConfig struct {
	// Dir is the directory holding the SQLite cache database. Load
	// defaults it to <workspace>/.lsmcp/cache; NewConfig alone, with no
	// workspace, uses ~/.lsmcp/cache.
	Dir string `yaml:"dir" json:"dir"`

	// MaxSizeMB is an advisory SQLite page-cache size, analogous to the
	// teacher's SQLiteCacheMB tuning knob.
	MaxSizeMB int `yaml:"max_size_mb" json:"max_size_mb"`
}

// IndexingConfig configures the in-memory index build and refresh.
type IndexingConfig struct {
	// Concurrency is the number of in-flight provider calls allowed
	// during index_files/update_incremental.
	Concurrency int `yaml:"concurrency" json:"concurrency"`

	// BatchSize is the number of files grouped per progress event.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// SkipFailures, when true, lets index_files/update_incremental
	// continue past a single file's provider failure instead of
	// aborting the whole operation. There is no implicit default: every
	// caller must decide explicitly.
	SkipFailures bool `yaml:"skip_failures" json:"skip_failures"`

	// MaxFiles caps the number of files a single full index will
	// process, guarding against runaway workspaces.
	MaxFiles int `yaml:"max_files" json:"max_files"`

	// WatchDebounce is the debounce window the file watcher applies
	// before triggering update_incremental.
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
}

// VCSConfig configures the VCS probe used for incremental refresh.
type VCSConfig struct {
	// Enabled records whether commit-hash diffing is wanted for
	// update_incremental. update_incremental does not read it: it always
	// diffs against the recorded commit hash, and there is no full-rescan
	// mode when it is false.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// CommandTimeout bounds each git child-process invocation.
	CommandTimeout string `yaml:"command_timeout" json:"command_timeout"`
}

// ServerConfig configures the MCP server transport.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	Port      int    `yaml:"port" json:"port"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// defaultExcludePatterns are always excluded from indexing.
var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
}

// NewConfig creates a Config populated with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Include: []string{},
			Exclude: defaultExcludePatterns,
		},
		LSP: LSPConfig{
			Command:        nil, // empty triggers auto-detection from project type
			InitTimeout:    "10s",
			RequestTimeout: "5s",
			ShutdownGrace:  "2s",
		},
		Cache: CacheConfig{
			Dir:       defaultCacheDir(),
			MaxSizeMB: 64,
		},
		Index: IndexingConfig{
			Concurrency:   runtimeDefaultConcurrency(),
			BatchSize:     50,
			SkipFailures:  false,
			MaxFiles:      100000,
			WatchDebounce: "500ms",
		},
		VCS: VCSConfig{
			Enabled:        true,
			CommandTimeout: "5s",
		},
		Server: ServerConfig{
			Transport: "stdio",
			Port:      8765,
			LogLevel:  "info",
		},
	}
}

// defaultCacheDir returns the default cache directory, falling back to
// a temp directory if the home directory is unavailable.
func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".lsmcp", "cache")
	}
	return filepath.Join(home, ".lsmcp", "cache")
}

// GetUserConfigPath returns the path to the user/global configuration
// file, following the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/lsmcp/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/lsmcp/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "lsmcp", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "lsmcp", "config.yaml")
	}
	return filepath.Join(home, ".config", "lsmcp", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user
// configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if present.
// Returns a nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return cfg, nil
}

// Load loads configuration for the workspace at dir, applying
// precedence in order:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/lsmcp/config.yaml)
//  3. Project config (.lsmcp.yaml in the workspace root)
//  4. Environment variables (LSMCP_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if cfg.Cache.Dir == defaultCacheDir() {
		cfg.Cache.Dir = filepath.Join(dir, ".lsmcp", "cache")
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .lsmcp.yaml or
// .lsmcp.yml in dir.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".lsmcp.yaml")
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".lsmcp.yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}

	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	// VCS.Enabled has no "unset" zero value; seed it with the current
	// value so a file that omits the key leaves it unchanged.
	parsed.VCS.Enabled = c.VCS.Enabled
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if len(other.Paths.Include) > 0 {
		c.Paths.Include = other.Paths.Include
	}
	if len(other.Paths.Exclude) > 0 {
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}

	if len(other.LSP.Command) > 0 {
		c.LSP.Command = other.LSP.Command
	}
	if other.LSP.InitTimeout != "" {
		c.LSP.InitTimeout = other.LSP.InitTimeout
	}
	if other.LSP.RequestTimeout != "" {
		c.LSP.RequestTimeout = other.LSP.RequestTimeout
	}
	if other.LSP.ShutdownGrace != "" {
		c.LSP.ShutdownGrace = other.LSP.ShutdownGrace
	}

	if other.Cache.Dir != "" {
		c.Cache.Dir = other.Cache.Dir
	}
	if other.Cache.MaxSizeMB != 0 {
		c.Cache.MaxSizeMB = other.Cache.MaxSizeMB
	}

	if other.Index.Concurrency != 0 {
		c.Index.Concurrency = other.Index.Concurrency
	}
	if other.Index.BatchSize != 0 {
		c.Index.BatchSize = other.Index.BatchSize
	}
	// SkipFailures has no sentinel "unset" value; only the project/user
	// config layer (not the zero-value defaults struct) should ever
	// flip it, so we always take the override's value here.
	c.Index.SkipFailures = other.Index.SkipFailures
	if other.Index.MaxFiles != 0 {
		c.Index.MaxFiles = other.Index.MaxFiles
	}
	if other.Index.WatchDebounce != "" {
		c.Index.WatchDebounce = other.Index.WatchDebounce
	}

	if other.VCS.CommandTimeout != "" {
		c.VCS.CommandTimeout = other.VCS.CommandTimeout
	}
	c.VCS.Enabled = other.VCS.Enabled

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies LSMCP_* environment variable overrides,
// the highest-precedence configuration layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("LSMCP_LSP_COMMAND"); v != "" {
		c.LSP.Command = strings.Fields(v)
	}
	if v := os.Getenv("LSMCP_CACHE_DIR"); v != "" {
		c.Cache.Dir = v
	}
	if v := os.Getenv("LSMCP_INDEX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Index.Concurrency = n
		}
	}
	if v := os.Getenv("LSMCP_SKIP_FAILURES"); v != "" {
		c.Index.SkipFailures = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("LSMCP_VCS_ENABLED"); v != "" {
		c.VCS.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("LSMCP_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("LSMCP_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
}

// DetectProjectType detects the project type based on marker files,
// used to pick a default language server command when LSP.Command is
// unset. Priority: go.mod > package.json > pyproject.toml/requirements.txt.
func DetectProjectType(dir string) ProjectType {
	if fileExists(filepath.Join(dir, "go.mod")) {
		return ProjectTypeGo
	}
	if fileExists(filepath.Join(dir, "package.json")) {
		return ProjectTypeNode
	}
	if fileExists(filepath.Join(dir, "pyproject.toml")) ||
		fileExists(filepath.Join(dir, "requirements.txt")) {
		return ProjectTypePython
	}
	return ProjectTypeUnknown
}

// DefaultLSPCommand returns the default language server command for a
// detected project type. Returns nil for an unknown type, in which case
// the caller must supply an explicit LSPConfig.Command.
func DefaultLSPCommand(t ProjectType) []string {
	switch t {
	case ProjectTypeGo:
		return []string{"gopls"}
	case ProjectTypeNode:
		return []string{"typescript-language-server", "--stdio"}
	case ProjectTypePython:
		return []string{"pylsp"}
	default:
		return nil
	}
}

// FindProjectRoot finds the workspace root by walking up from startDir
// looking for a .git directory or a .lsmcp.yaml/.yml file.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}
		if fileExists(filepath.Join(currentDir, ".lsmcp.yaml")) ||
			fileExists(filepath.Join(currentDir, ".lsmcp.yml")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// fileExists reports whether path exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists reports whether path exists and is a directory.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// String returns the string form of the project type.
func (p ProjectType) String() string {
	return string(p)
}

// IsKnown reports whether the project type was successfully detected.
func (p ProjectType) IsKnown() bool {
	return p != ProjectTypeUnknown
}

// Validate checks the configuration's invariants, returning an error
// naming the first violation found.
func (c *Config) Validate() error {
	if c.Index.Concurrency <= 0 {
		return fmt.Errorf("index.concurrency must be positive, got %d", c.Index.Concurrency)
	}
	if c.Index.MaxFiles < 0 {
		return fmt.Errorf("index.max_files must be non-negative, got %d", c.Index.MaxFiles)
	}
	if c.Index.BatchSize <= 0 {
		return fmt.Errorf("index.batch_size must be positive, got %d", c.Index.BatchSize)
	}

	validTransports := map[string]bool{"stdio": true, "sse": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio' or 'sse', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadUserConfig loads the user configuration file, returning a nil
// config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

// runtimeDefaultConcurrency returns the default indexing concurrency:
// 5 in-flight provider calls, independent of the host's CPU count.
func runtimeDefaultConcurrency() int {
	return 5
}

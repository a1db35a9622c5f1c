package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lsmcp/lsmcp/internal/config"
	"github.com/lsmcp/lsmcp/internal/index"
	"github.com/lsmcp/lsmcp/internal/lsp"
	"github.com/lsmcp/lsmcp/internal/provider"
	"github.com/lsmcp/lsmcp/internal/symbol"
	"github.com/lsmcp/lsmcp/pkg/version"
)

// Server is the MCP server for lsmcp. It bridges AI clients (Claude
// Code, Cursor) with the persistent workspace symbol index and the LSP
// client that feeds it.
type Server struct {
	mcp       *mcp.Server
	idx       *index.Index
	lspClient *lsp.Client
	config    *config.Config
	logger    *slog.Logger

	rootPath string

	mu sync.RWMutex
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// ResourceInfo contains information about a resource.
type ResourceInfo struct {
	URI      string
	Name     string
	MIMEType string
}

// ResourceContent contains the content of a resource.
type ResourceContent struct {
	URI      string
	Content  string
	MIMEType string
}

// NewServer creates a new MCP server fronting idx and lspClient.
// rootPath is used for project detection (go.mod, package.json, etc.)
// and for resolving relative paths received from tool calls.
func NewServer(idx *index.Index, lspClient *lsp.Client, cfg *config.Config, rootPath string) (*Server, error) {
	if idx == nil {
		return nil, fmt.Errorf("mcp: symbol index is required")
	}
	if lspClient == nil {
		return nil, fmt.Errorf("mcp: LSP client is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		idx:       idx,
		lspClient: lspClient,
		config:    cfg,
		rootPath:  rootPath,
		logger:    slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "lsmcp",
			Version: version.Version,
		},
		nil, // ServerOptions - capabilities are inferred from registered tools/resources
	)

	s.registerTools()

	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return "lsmcp", version.Version
}

// Capabilities returns whether tools and resources are enabled.
func (s *Server) Capabilities() (hasTools, hasResources bool) {
	return true, true
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{Name: "query_symbols", Description: "Query the workspace symbol index by name substring, kind, container, or file. Returns matching symbols with their locations."},
		{Name: "index_file", Description: "Index a single file, populating the symbol index from its language server's document symbols."},
		{Name: "index_files", Description: "Index many files with bounded concurrency, reporting per-file failures without aborting the whole batch."},
		{Name: "update_incremental", Description: "Refresh the index to match the current VCS working tree: diff against the last indexed commit, reindex changed files, and drop deleted ones."},
		{Name: "remove_file", Description: "Remove a single file's symbols from the index."},
		{Name: "needs_reindex", Description: "Check whether a file is stale relative to the index (changed on disk or in the VCS blob hash since last indexed)."},
		{Name: "index_status", Description: "Report index statistics: file and symbol counts, last update time, and last indexed commit."},
		{Name: "hover", Description: "Request hover information (type, documentation) at a position from the language server."},
		{Name: "references", Description: "Find every reference to the symbol at a position."},
		{Name: "rename", Description: "Compute the workspace edit that renames the symbol at a position."},
	}
}

// CallTool invokes a tool by name with the given arguments, used by the
// daemon's JSON-RPC dispatch.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "query_symbols":
		return s.doQuerySymbols(parseQuerySymbolsInput(args))
	case "index_file":
		path, _ := args["path"].(string)
		return s.doIndexFile(ctx, IndexFileInput{Path: path})
	case "index_files":
		return s.doIndexFiles(ctx, parseIndexFilesInput(args))
	case "update_incremental":
		batchSize, _ := args["batch_size"].(float64)
		return s.doUpdateIncremental(ctx, UpdateIncrementalInput{BatchSize: int(batchSize)})
	case "remove_file":
		path, _ := args["path"].(string)
		return s.doRemoveFile(RemoveFileInput{Path: path})
	case "needs_reindex":
		path, _ := args["path"].(string)
		return s.doNeedsReindex(ctx, NeedsReindexInput{Path: path})
	case "index_status":
		return s.doIndexStatus(), nil
	case "hover":
		return s.doHover(ctx, parsePositionArgs(args))
	case "references":
		input := parsePositionArgs(args)
		includeDecl, _ := args["include_declaration"].(bool)
		return s.doReferences(ctx, ReferencesInput{File: input.File, Line: input.Line, Character: input.Character, IncludeDeclaration: includeDecl})
	case "rename":
		input := parsePositionArgs(args)
		newName, _ := args["new_name"].(string)
		return s.doRename(ctx, RenameInput{File: input.File, Line: input.Line, Character: input.Character, NewName: newName})
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func parsePositionArgs(args map[string]any) HoverInput {
	file, _ := args["file"].(string)
	line, _ := args["line"].(float64)
	character, _ := args["character"].(float64)
	return HoverInput{File: file, Line: int(line), Character: int(character)}
}

func parseQuerySymbolsInput(args map[string]any) QuerySymbolsInput {
	var input QuerySymbolsInput
	input.Name, _ = args["name"].(string)
	input.File, _ = args["file"].(string)
	input.ContainerName, _ = args["container_name"].(string)
	if raw, ok := args["kind"]; ok {
		switch v := raw.(type) {
		case string:
			input.Kind = []string{v}
		case []string:
			input.Kind = v
		case []any:
			for _, item := range v {
				if str, ok := item.(string); ok {
					input.Kind = append(input.Kind, str)
				}
			}
		}
	}
	if v, ok := args["include_children"].(bool); ok {
		input.IncludeChildren = &v
	}
	return input
}

func parseIndexFilesInput(args map[string]any) IndexFilesInput {
	var input IndexFilesInput
	if raw, ok := args["paths"].([]any); ok {
		for _, item := range raw {
			if str, ok := item.(string); ok {
				input.Paths = append(input.Paths, str)
			}
		}
	}
	if v, ok := args["concurrency"].(float64); ok {
		input.Concurrency = int(v)
	}
	if v, ok := args["batch_size"].(float64); ok {
		input.BatchSize = int(v)
	}
	if v, ok := args["skip_failures"].(bool); ok {
		input.SkipFailures = v
	}
	return input
}

// uriForPath resolves a workspace-relative (or absolute) path to the
// file:// URI used as the index's and LSP client's key.
func (s *Server) uriForPath(path string) string {
	if filepath.IsAbs(path) {
		return "file://" + path
	}
	return "file://" + filepath.Join(s.rootPath, path)
}

func (s *Server) absPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.rootPath, path)
}

// doQuerySymbols implements the query_symbols tool.
func (s *Server) doQuerySymbols(input QuerySymbolsInput) (*QuerySymbolsOutput, error) {
	kinds, err := symbol.ParseKinds(stringsToAny(input.Kind))
	if err != nil {
		return nil, NewInvalidParamsError(err.Error())
	}

	q := index.Query{
		Name:          input.Name,
		Kind:          kinds,
		File:          input.File,
		ContainerName: input.ContainerName,
	}
	if input.IncludeChildren != nil {
		q.ExplicitIncludeChildren = true
		q.IncludeChildren = *input.IncludeChildren
	}

	matches := s.idx.QuerySymbols(q)
	out := &QuerySymbolsOutput{Symbols: make([]SymbolOutput, len(matches)), Count: len(matches)}
	for i, m := range matches {
		out.Symbols[i] = ToSymbolOutput(m)
	}
	return out, nil
}

func stringsToAny(ss []string) []any {
	if ss == nil {
		return nil
	}
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// doIndexFile implements the index_file tool.
func (s *Server) doIndexFile(ctx context.Context, input IndexFileInput) (*IndexFileOutput, error) {
	if input.Path == "" {
		return nil, NewInvalidParamsError("path is required")
	}
	if err := s.idx.IndexFile(ctx, input.Path); err != nil {
		return nil, MapError(err)
	}
	q := index.Query{File: input.Path, ExplicitIncludeChildren: true, IncludeChildren: true}
	symbols := s.idx.QuerySymbols(q)
	return &IndexFileOutput{Path: input.Path, SymbolCount: len(symbols)}, nil
}

// doIndexFiles implements the index_files tool.
func (s *Server) doIndexFiles(ctx context.Context, input IndexFilesInput) (*IndexFilesOutput, error) {
	if len(input.Paths) == 0 {
		return nil, NewInvalidParamsError("paths must be non-empty")
	}
	opts := index.Options{
		Concurrency:  input.Concurrency,
		BatchSize:    input.BatchSize,
		SkipFailures: input.SkipFailures,
	}
	if opts.Concurrency == 0 {
		opts.Concurrency = s.config.Index.Concurrency
	}
	if opts.Concurrency == 0 {
		opts.Concurrency = 4
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = s.config.Index.BatchSize
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = 50
	}

	result, err := s.idx.IndexFiles(ctx, input.Paths, opts)
	if result == nil {
		return nil, MapError(err)
	}

	out := &IndexFilesOutput{Indexed: result.Indexed, Errors: make([]FileErrorOutput, len(result.Errors))}
	for i, fe := range result.Errors {
		out.Errors[i] = FileErrorOutput{URI: fe.URI, Error: fe.Error.Error()}
	}
	if err != nil {
		out.Errors = append(out.Errors, FileErrorOutput{Error: err.Error()})
	}
	return out, nil
}

// doUpdateIncremental implements the update_incremental tool.
func (s *Server) doUpdateIncremental(ctx context.Context, input UpdateIncrementalInput) (*UpdateIncrementalOutput, error) {
	opts := index.IncrementalOptions{BatchSize: input.BatchSize}
	result, err := s.idx.UpdateIncremental(ctx, opts)
	if err != nil {
		return nil, MapError(err)
	}
	return &UpdateIncrementalOutput{Updated: result.Updated, Removed: result.Removed, Errors: result.Errors}, nil
}

// doRemoveFile implements the remove_file tool.
func (s *Server) doRemoveFile(input RemoveFileInput) (*RemoveFileOutput, error) {
	if input.Path == "" {
		return nil, NewInvalidParamsError("path is required")
	}
	s.idx.RemoveFile(input.Path)
	return &RemoveFileOutput{Removed: true}, nil
}

// doNeedsReindex implements the needs_reindex tool.
func (s *Server) doNeedsReindex(ctx context.Context, input NeedsReindexInput) (*NeedsReindexOutput, error) {
	if input.Path == "" {
		return nil, NewInvalidParamsError("path is required")
	}
	return &NeedsReindexOutput{NeedsReindex: s.idx.NeedsReindex(ctx, input.Path)}, nil
}

// doIndexStatus implements the index_status tool.
func (s *Server) doIndexStatus() *IndexStatusOutput {
	stats := s.idx.Stats()

	detector := NewProjectDetector(s.rootPath, s.logger)
	projectInfo := detector.Detect()

	out := &IndexStatusOutput{
		Project: *projectInfo,
		Stats: IndexStats{
			TotalFiles:     stats.TotalFiles,
			TotalSymbols:   stats.TotalSymbols,
			CumulativeMs:   stats.CumulativeTime.Milliseconds(),
			LastCommitHash: stats.LastCommitHash,
		},
	}
	if !stats.LastUpdate.IsZero() {
		out.Stats.LastUpdate = stats.LastUpdate.Format(time.RFC3339)
	}
	return out
}

// ensureOpen reads path from disk and opens it in the LSP client if not
// already open, mirroring internal/provider's open-before-request flow.
func (s *Server) ensureOpen(ctx context.Context, path string) (string, error) {
	uri := s.uriForPath(path)
	if s.lspClient.IsOpen(uri) {
		return uri, nil
	}
	text, err := os.ReadFile(s.absPath(path))
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	langID := provider.DetectLanguageID(path)
	if err := s.lspClient.Open(ctx, uri, string(text), langID); err != nil {
		return "", err
	}
	return uri, nil
}

// doHover implements the hover tool.
func (s *Server) doHover(ctx context.Context, input HoverInput) (*HoverOutput, error) {
	if input.File == "" {
		return nil, NewInvalidParamsError("file is required")
	}
	uri, err := s.ensureOpen(ctx, input.File)
	if err != nil {
		return nil, MapError(err)
	}
	raw, err := s.lspClient.Hover(ctx, uri, symbol.Position{Line: input.Line, Character: input.Character})
	if err != nil {
		return nil, MapError(err)
	}
	contents, err := FormatHoverContents(raw)
	if err != nil {
		return nil, MapError(err)
	}
	return &HoverOutput{Contents: contents}, nil
}

// doReferences implements the references tool.
func (s *Server) doReferences(ctx context.Context, input ReferencesInput) (*ReferencesOutput, error) {
	if input.File == "" {
		return nil, NewInvalidParamsError("file is required")
	}
	uri, err := s.ensureOpen(ctx, input.File)
	if err != nil {
		return nil, MapError(err)
	}
	locs, err := s.lspClient.References(ctx, uri, symbol.Position{Line: input.Line, Character: input.Character}, input.IncludeDeclaration)
	if err != nil {
		return nil, MapError(err)
	}
	out := &ReferencesOutput{Locations: make([]LocationOutput, len(locs))}
	for i, l := range locs {
		out.Locations[i] = ToLocationOutput(l)
	}
	return out, nil
}

// doRename implements the rename tool.
func (s *Server) doRename(ctx context.Context, input RenameInput) (*RenameOutput, error) {
	if input.File == "" {
		return nil, NewInvalidParamsError("file is required")
	}
	if input.NewName == "" {
		return nil, NewInvalidParamsError("new_name is required")
	}
	uri, err := s.ensureOpen(ctx, input.File)
	if err != nil {
		return nil, MapError(err)
	}
	raw, err := s.lspClient.Rename(ctx, uri, symbol.Position{Line: input.Line, Character: input.Character}, input.NewName)
	if err != nil {
		return nil, MapError(err)
	}
	return &RenameOutput{Edit: string(raw)}, nil
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	s.logger.Debug("registering MCP tools")

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "query_symbols",
		Description: "Query the workspace symbol index by name substring, kind, container, or file.",
	}, s.mcpQuerySymbolsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_file",
		Description: "Index a single file into the workspace symbol index.",
	}, s.mcpIndexFileHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_files",
		Description: "Index many files with bounded concurrency.",
	}, s.mcpIndexFilesHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "update_incremental",
		Description: "Refresh the index from the current VCS working tree.",
	}, s.mcpUpdateIncrementalHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "remove_file",
		Description: "Remove a file's symbols from the index.",
	}, s.mcpRemoveFileHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "needs_reindex",
		Description: "Check whether a file is stale relative to the index.",
	}, s.mcpNeedsReindexHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status",
		Description: "Report index statistics.",
	}, s.mcpIndexStatusHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "hover",
		Description: "Request hover information at a position.",
	}, s.mcpHoverHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "references",
		Description: "Find every reference to the symbol at a position.",
	}, s.mcpReferencesHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "rename",
		Description: "Compute the workspace edit that renames the symbol at a position.",
	}, s.mcpRenameHandler)

	s.logger.Info("MCP tools registered", slog.Int("count", 10))
}

func (s *Server) mcpQuerySymbolsHandler(ctx context.Context, _ *mcp.CallToolRequest, input QuerySymbolsInput) (*mcp.CallToolResult, QuerySymbolsOutput, error) {
	out, err := s.doQuerySymbols(input)
	if err != nil {
		return nil, QuerySymbolsOutput{}, MapError(err)
	}
	return nil, *out, nil
}

func (s *Server) mcpIndexFileHandler(ctx context.Context, _ *mcp.CallToolRequest, input IndexFileInput) (*mcp.CallToolResult, IndexFileOutput, error) {
	out, err := s.doIndexFile(ctx, input)
	if err != nil {
		return nil, IndexFileOutput{}, MapError(err)
	}
	return nil, *out, nil
}

func (s *Server) mcpIndexFilesHandler(ctx context.Context, _ *mcp.CallToolRequest, input IndexFilesInput) (*mcp.CallToolResult, IndexFilesOutput, error) {
	out, err := s.doIndexFiles(ctx, input)
	if err != nil {
		return nil, IndexFilesOutput{}, MapError(err)
	}
	return nil, *out, nil
}

func (s *Server) mcpUpdateIncrementalHandler(ctx context.Context, _ *mcp.CallToolRequest, input UpdateIncrementalInput) (*mcp.CallToolResult, UpdateIncrementalOutput, error) {
	out, err := s.doUpdateIncremental(ctx, input)
	if err != nil {
		return nil, UpdateIncrementalOutput{}, MapError(err)
	}
	return nil, *out, nil
}

func (s *Server) mcpRemoveFileHandler(ctx context.Context, _ *mcp.CallToolRequest, input RemoveFileInput) (*mcp.CallToolResult, RemoveFileOutput, error) {
	out, err := s.doRemoveFile(input)
	if err != nil {
		return nil, RemoveFileOutput{}, MapError(err)
	}
	return nil, *out, nil
}

func (s *Server) mcpNeedsReindexHandler(ctx context.Context, _ *mcp.CallToolRequest, input NeedsReindexInput) (*mcp.CallToolResult, NeedsReindexOutput, error) {
	out, err := s.doNeedsReindex(ctx, input)
	if err != nil {
		return nil, NeedsReindexOutput{}, MapError(err)
	}
	return nil, *out, nil
}

func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (*mcp.CallToolResult, IndexStatusOutput, error) {
	return nil, *s.doIndexStatus(), nil
}

func (s *Server) mcpHoverHandler(ctx context.Context, _ *mcp.CallToolRequest, input HoverInput) (*mcp.CallToolResult, HoverOutput, error) {
	out, err := s.doHover(ctx, input)
	if err != nil {
		return nil, HoverOutput{}, MapError(err)
	}
	return nil, *out, nil
}

func (s *Server) mcpReferencesHandler(ctx context.Context, _ *mcp.CallToolRequest, input ReferencesInput) (*mcp.CallToolResult, ReferencesOutput, error) {
	out, err := s.doReferences(ctx, input)
	if err != nil {
		return nil, ReferencesOutput{}, MapError(err)
	}
	return nil, *out, nil
}

func (s *Server) mcpRenameHandler(ctx context.Context, _ *mcp.CallToolRequest, input RenameInput) (*mcp.CallToolResult, RenameOutput, error) {
	out, err := s.doRename(ctx, input)
	if err != nil {
		return nil, RenameOutput{}, MapError(err)
	}
	return nil, *out, nil
}

// ListResources returns all available resources (one per indexed file).
func (s *Server) ListResources(ctx context.Context, cursor string) ([]ResourceInfo, string, error) {
	uris := s.idx.Files()
	resources := make([]ResourceInfo, 0, len(uris))
	for _, uri := range uris {
		relPath := s.pathForURI(uri)
		resources = append(resources, ResourceInfo{
			URI:      uri,
			Name:     relPath,
			MIMEType: MimeTypeForPath(relPath),
		})
	}
	return resources, "", nil
}

// ReadResource reads a resource by its file:// URI.
func (s *Server) ReadResource(ctx context.Context, uri string) (*ResourceContent, error) {
	if !strings.HasPrefix(uri, "file://") {
		return nil, NewResourceNotFoundError(uri)
	}
	result, err := s.handleReadResource(s.pathForURI(uri))
	if err != nil {
		return nil, err
	}
	if len(result.Contents) == 0 {
		return nil, NewResourceNotFoundError(uri)
	}
	return &ResourceContent{
		URI:      result.Contents[0].URI,
		Content:  result.Contents[0].Text,
		MIMEType: result.Contents[0].MIMEType,
	}, nil
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport, addr string) error {
	s.logger.Info("starting MCP server",
		slog.String("transport", transport),
		slog.String("addr", addr))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && err != context.Canceled {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	case "sse":
		return fmt.Errorf("SSE transport not yet implemented")
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// Close releases server resources.
func (s *Server) Close() error {
	return nil
}

package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MaxResourceSize is the maximum file size for resources (1MB).
const MaxResourceSize = 1024 * 1024

// RegisterResources exposes every currently indexed file as an MCP
// resource, readable by its file:// URI. Call after the index has been
// populated and before serving.
func (s *Server) RegisterResources(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	uris := s.idx.Files()
	for _, uri := range uris {
		s.registerFileResource(uri)
	}

	s.logger.Info("registered resources", "count", len(uris))
	return nil
}

func (s *Server) registerFileResource(uri string) {
	relPath := s.pathForURI(uri)
	description := relPath
	if info, err := os.Stat(filepath.Join(s.rootPath, relPath)); err == nil {
		description = fmt.Sprintf("%s (%s)", relPath, humanSize(info.Size()))
	}
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        filepath.Base(relPath),
			URI:         uri,
			Description: description,
			MIMEType:    MimeTypeForPath(relPath),
		},
		s.makeFileHandler(relPath),
	)
}

func (s *Server) pathForURI(uri string) string {
	abs := strings.TrimPrefix(uri, "file://")
	if rel, err := filepath.Rel(s.rootPath, abs); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return abs
}

// makeFileHandler creates a read handler for a specific file path.
func (s *Server) makeFileHandler(path string) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return s.handleReadResource(path)
	}
}

// handleReadResource reads file content with path-traversal validation.
func (s *Server) handleReadResource(relativePath string) (*mcp.ReadResourceResult, error) {
	if !isValidPath(relativePath) {
		return nil, NewInvalidParamsError(fmt.Sprintf("invalid path: %s", relativePath))
	}

	fullPath := filepath.Join(s.rootPath, relativePath)

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &MCPError{Code: ErrCodeFileNotFound, Message: fmt.Sprintf("file not found: %s", relativePath)}
		}
		return nil, MapError(err)
	}
	if info.Size() > MaxResourceSize {
		return nil, &MCPError{Code: ErrCodeFileTooLarge, Message: fmt.Sprintf("file too large: %d bytes (max %d)", info.Size(), MaxResourceSize)}
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, MapError(err)
	}

	uri := fmt.Sprintf("file://%s", filepath.Join(s.rootPath, relativePath))
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: MimeTypeForPath(relativePath),
				Text:     string(content),
			},
		},
	}, nil
}

// isValidPath validates that a path is safe to access: relative, and
// free of ".." traversal components.
func isValidPath(path string) bool {
	if path == "" {
		return false
	}
	if filepath.IsAbs(path) {
		return false
	}
	if len(path) >= 2 && path[1] == ':' {
		return false
	}

	cleaned := filepath.Clean(path)
	if strings.HasPrefix(cleaned, "..") {
		return false
	}
	for _, part := range strings.Split(cleaned, string(filepath.Separator)) {
		if part == ".." {
			return false
		}
	}
	return true
}

package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sort"
	"sync"
	"time"
)

// ProjectHandler dispatches a single MCP tool call against one project's
// index+LSP-client pair. Satisfied by *mcp.Server.CallTool.
type ProjectHandler interface {
	CallTool(ctx context.Context, name string, args map[string]any) (any, error)
}

// RequestHandler resolves a project root to its handler, creating and
// caching index+LSP-client state on first use.
type RequestHandler interface {
	// Handler returns the ProjectHandler bound to rootPath, opening the
	// project (LSP client start, cache open) on first request.
	Handler(ctx context.Context, rootPath string) (ProjectHandler, error)

	// LoadedProjects returns the root paths currently held open.
	LoadedProjects() []string
}

// Server listens on a Unix socket and dispatches JSON-RPC requests to a
// per-project symbol index, one connection at a time per request.
type Server struct {
	socketPath string
	listener   net.Listener
	handler    RequestHandler
	started    time.Time

	mu       sync.Mutex
	shutdown bool
	wg       sync.WaitGroup
}

// NewServer creates a new server that listens on the given socket path.
func NewServer(socketPath string) (*Server, error) {
	return &Server{
		socketPath: socketPath,
	}, nil
}

// SetHandler sets the request handler for tool-call dispatch.
func (s *Server) SetHandler(h RequestHandler) {
	s.handler = h
}

// ListenAndServe starts the server and blocks until context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.socketPath, err)
	}
	s.listener = listener
	s.started = time.Now()

	defer func() {
		_ = listener.Close()
		_ = os.Remove(s.socketPath)
	}()

	slog.Info("daemon listening", slog.String("socket", s.socketPath))

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			shutdown := s.shutdown
			s.mu.Unlock()
			if shutdown {
				break
			}
			slog.Error("accept error", slog.String("error", err.Error()))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.wg.Wait()
	return ctx.Err()
}

// handleConnection processes a single client connection: one request,
// one response, matching the CLI's one-shot dial-call-close pattern.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		slog.Warn("failed to set connection deadline", slog.String("error", err.Error()))
	}

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var req Request
	if err := decoder.Decode(&req); err != nil {
		resp := NewErrorResponse("", ErrCodeParseError, "failed to parse request")
		_ = encoder.Encode(resp)
		return
	}

	resp := s.handleRequest(ctx, req)
	_ = encoder.Encode(resp)
}

// handleRequest dispatches a request to the appropriate handler.
func (s *Server) handleRequest(ctx context.Context, req Request) Response {
	switch req.Method {
	case MethodPing:
		return NewSuccessResponse(req.ID, PingResult{Pong: true})
	case MethodStatus:
		return NewSuccessResponse(req.ID, s.getStatus())
	case MethodQuerySymbols, MethodIndexFile, MethodIndexFiles,
		MethodUpdateIncremental, MethodRemoveFile, MethodNeedsReindex:
		return s.handleToolCall(ctx, req)
	default:
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

// handleToolCall decodes a CallParams envelope, resolves the target
// project's handler, and dispatches req.Method as a tool name.
func (s *Server) handleToolCall(ctx context.Context, req Request) Response {
	if s.handler == nil {
		return NewErrorResponse(req.ID, ErrCodeInternalError, "no project handler configured")
	}

	paramsData, err := json.Marshal(req.Params)
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "failed to encode params")
	}

	var params CallParams
	if err := json.Unmarshal(paramsData, &params); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "failed to decode params")
	}
	if err := params.Validate(); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
	}

	project, err := s.handler.Handler(ctx, params.RootPath)
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeNotIndexed, err.Error())
	}

	result, err := project.CallTool(ctx, req.Method, params.Args)
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeCallFailed, err.Error())
	}
	return NewSuccessResponse(req.ID, result)
}

// getStatus returns the current server status.
func (s *Server) getStatus() StatusResult {
	status := StatusResult{
		Running: true,
		PID:     os.Getpid(),
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	}
	if s.handler != nil {
		projects := s.handler.LoadedProjects()
		sort.Strings(projects)
		status.Projects = projects
		status.ProjectsLoaded = len(projects)
	}
	return status
}

// Close stops the server.
func (s *Server) Close() error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	amerrors "github.com/lsmcp/lsmcp/internal/errors"
)

// DefaultRequestTimeout bounds a single LSP request/response round trip.
const DefaultRequestTimeout = 30 * time.Second

// shutdownGracePeriod is how long Close waits for the child process to
// exit on its own after sending shutdown+exit before it is killed.
const shutdownGracePeriod = 2 * time.Second

// pendingRequest is the correlation record for one in-flight request.
type pendingRequest struct {
	resultCh chan *Message
}

// Client owns one long-lived language-server child process (or, in
// tests, a pair of in-memory pipes standing in for one) and mediates
// all access to it: requests, notifications, document lifecycle, and
// diagnostics. No other package may write to the child's stdin
// directly — every access goes through Client's methods.
type Client struct {
	command []string

	proc   *exec.Cmd
	stdin  io.WriteCloser
	writer *frameWriter
	reader *frameReader

	state atomic.Int32

	nextID  atomic.Int64
	pending   map[int64]*pendingRequest
	pendingMu sync.Mutex

	openFiles   map[string]*openFile
	openFilesMu sync.RWMutex

	diagnostics *diagnosticsStore

	serverRequestHandlers map[string]ServerRequestHandler
	handlersMu            sync.RWMutex

	capabilities json.RawMessage

	requestTimeout time.Duration

	traceID string
	log     *slog.Logger

	readLoopDone chan struct{}
	closeOnce    sync.Once
}

// ServerRequestHandler answers a request the server sends to the
// client (e.g. workspace/configuration). Returning an error yields a
// JSON-RPC InternalError response.
type ServerRequestHandler func(params json.RawMessage) (any, error)

// openFile tracks a document the client has told the server is open.
type openFile struct {
	uri     string
	version int32
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithRequestTimeout overrides DefaultRequestTimeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.requestTimeout = d }
}

// WithLogger injects a structured logger; nil falls back to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient spawns `command args...` as a child process and wires its
// stdio to a framed JSON-RPC transport. The client is Unstarted until
// Start is called.
func NewClient(command string, args []string, opts ...Option) (*Client, error) {
	cmd := exec.Command(command, args...)
	cmd.Env = os.Environ()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("lsp: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("lsp: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("lsp: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("lsp: start %s: %w", command, err)
	}

	c := newClientFromPipes(stdin, stdout, opts...)
	c.proc = cmd
	c.command = append([]string{command}, args...)

	go drainStderr(stderr, c.log, c.command)

	return c, nil
}

// newClientFromPipes builds a Client directly from a stdin writer and
// stdout reader, bypassing process spawning. Used by NewClient and by
// tests that stand in a fake server with io.Pipe.
func newClientFromPipes(stdin io.WriteCloser, stdout io.Reader, opts ...Option) *Client {
	c := &Client{
		stdin:                 stdin,
		writer:                newFrameWriter(stdin),
		reader:                newFrameReader(stdout),
		pending:               make(map[int64]*pendingRequest),
		openFiles:             make(map[string]*openFile),
		diagnostics:           newDiagnosticsStore(),
		serverRequestHandlers: make(map[string]ServerRequestHandler),
		requestTimeout:        DefaultRequestTimeout,
		traceID:               uuid.NewString(),
		readLoopDone:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	c.log = c.log.With(slog.String("lsp_trace_id", c.traceID))

	c.registerDefaultHandlers()
	go c.readLoop()
	return c
}

func drainStderr(r io.Reader, log *slog.Logger, command []string) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 && os.Getenv("LSMCP_LSP_DEBUG") != "" {
			log.Debug("lsp_stderr", slog.String("command", fmt.Sprint(command)), slog.String("data", string(buf[:n])))
		}
		if err != nil {
			return
		}
	}
}

// State reports the client's current lifecycle stage.
func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

// readLoop consumes frames from the child forever, dispatching
// responses to their correlation records and requests/notifications to
// their registered handlers. It exits when the stream errors (child
// closed stdout, or was killed).
func (c *Client) readLoop() {
	defer close(c.readLoopDone)
	for {
		msg, err := c.reader.ReadMessage()
		if err != nil {
			c.failAllPending(fmt.Errorf("lsp: transport closed: %w", err))
			return
		}

		switch {
		case msg.IsResponse():
			c.dispatchResponse(msg)
		case msg.IsRequest():
			go c.handleServerRequest(msg)
		case msg.IsNotification():
			c.handleNotification(msg)
		}
	}
}

func (c *Client) dispatchResponse(msg *Message) {
	id := msg.ID.Number
	c.pendingMu.Lock()
	pr, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	if !ok {
		return // late/duplicate response, nothing waiting
	}
	pr.resultCh <- msg
}

func (c *Client) failAllPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, pr := range c.pending {
		pr.resultCh <- &Message{Error: &ResponseError{Code: -32099, Message: err.Error()}}
		delete(c.pending, id)
	}
}

// Call issues a request and blocks until a response arrives, the
// per-request timeout elapses, or ctx is cancelled. result, if non-nil,
// receives the decoded Result payload.
func (c *Client) Call(ctx context.Context, method string, params any, result any) error {
	if !c.methodAllowed(method) {
		return amerrors.NotReady(method)
	}

	id := c.nextID.Add(1)
	req, err := newRequest(id, method, params)
	if err != nil {
		return fmt.Errorf("lsp: encode params for %s: %w", method, err)
	}

	pr := &pendingRequest{resultCh: make(chan *Message, 1)}
	c.pendingMu.Lock()
	c.pending[id] = pr
	c.pendingMu.Unlock()

	cancelPending := func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}

	if err := c.writer.WriteMessage(req); err != nil {
		cancelPending()
		return fmt.Errorf("lsp: send %s: %w", method, err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	select {
	case resp := <-pr.resultCh:
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("lsp: decode result for %s: %w", method, err)
			}
		}
		return nil
	case <-timeoutCtx.Done():
		cancelPending()
		if timeoutCtx.Err() == context.DeadlineExceeded {
			return amerrors.TimeoutErr(method, c.requestTimeout.String())
		}
		return timeoutCtx.Err()
	}
}

// methodAllowed gates which JSON-RPC methods may be sent in the
// client's current lifecycle state: the handshake methods during
// Starting, the teardown methods during Stopping, and anything once
// Ready. Everything else requires Ready and fails NotReady otherwise.
func (c *Client) methodAllowed(method string) bool {
	switch c.State() {
	case StateReady:
		return true
	case StateStarting:
		return method == "initialize" || method == "initialized"
	case StateStopping:
		return method == "shutdown" || method == "exit"
	default:
		return false
	}
}

// Notify sends a notification (no response expected).
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	if !c.methodAllowed(method) {
		return amerrors.NotReady(method)
	}
	msg, err := newNotification(method, params)
	if err != nil {
		return fmt.Errorf("lsp: encode params for %s: %w", method, err)
	}
	return c.writer.WriteMessage(msg)
}

// RegisterServerRequestHandler installs the handler invoked when the
// server issues method as a request.
func (c *Client) RegisterServerRequestHandler(method string, handler ServerRequestHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.serverRequestHandlers[method] = handler
}

func (c *Client) handleServerRequest(msg *Message) {
	c.handlersMu.RLock()
	handler, ok := c.serverRequestHandlers[msg.Method]
	c.handlersMu.RUnlock()

	if !ok {
		resp := newResponseError(msg.ID, -32601, fmt.Sprintf("method not found: %s", msg.Method))
		_ = c.writer.WriteMessage(resp)
		return
	}

	result, err := handler(msg.Params)
	if err != nil {
		resp := newResponseError(msg.ID, -32603, err.Error())
		_ = c.writer.WriteMessage(resp)
		return
	}
	resp, err := newResponseResult(msg.ID, result)
	if err != nil {
		resp = newResponseError(msg.ID, -32603, err.Error())
	}
	_ = c.writer.WriteMessage(resp)
}

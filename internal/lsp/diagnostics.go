package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amerrors "github.com/lsmcp/lsmcp/internal/errors"
	"github.com/lsmcp/lsmcp/internal/symbol"
)

// Diagnostic is a single server-reported diagnostic for a document.
type Diagnostic struct {
	Range    symbol.Range `json:"range"`
	Severity int          `json:"severity,omitempty"`
	Code     any          `json:"code,omitempty"`
	Source   string       `json:"source,omitempty"`
	Message  string       `json:"message"`
}

type publishDiagnosticsParams struct {
	URI         string       `json:"uri"`
	Version     *int32       `json:"version,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// diagnosticsStore holds the latest pushed diagnostic set per URI and
// wakes any goroutine blocked in WaitForDiagnostics when a fresh set
// for its URI arrives.
type diagnosticsStore struct {
	mu      sync.Mutex
	latest  map[string][]Diagnostic
	waiters map[string][]chan []Diagnostic
}

func newDiagnosticsStore() *diagnosticsStore {
	return &diagnosticsStore{
		latest:  make(map[string][]Diagnostic),
		waiters: make(map[string][]chan []Diagnostic),
	}
}

func (d *diagnosticsStore) publish(uri string, diags []Diagnostic) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.latest[uri] = diags
	for _, ch := range d.waiters[uri] {
		select {
		case ch <- diags:
		default:
		}
	}
	delete(d.waiters, uri)
}

func (d *diagnosticsStore) get(uri string) []Diagnostic {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.latest[uri]
}

func (d *diagnosticsStore) purge(uri string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.latest, uri)
	delete(d.waiters, uri)
}

func (d *diagnosticsStore) wait(uri string) <-chan []Diagnostic {
	ch := make(chan []Diagnostic, 1)
	d.mu.Lock()
	d.waiters[uri] = append(d.waiters[uri], ch)
	d.mu.Unlock()
	return ch
}

// GetDiagnostics returns the most recently published diagnostics for
// uri, or nil if none have been published (or they were purged by a
// close).
func (c *Client) GetDiagnostics(uri string) []Diagnostic {
	return c.diagnostics.get(uri)
}

// WaitForDiagnostics blocks until the next publishDiagnostics
// notification for uri arrives, or timeout elapses.
func (c *Client) WaitForDiagnostics(ctx context.Context, uri string, timeout time.Duration) ([]Diagnostic, error) {
	ch := c.diagnostics.wait(uri)

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case diags := <-ch:
		return diags, nil
	case <-timeoutCtx.Done():
		return nil, amerrors.TimeoutErr(fmt.Sprintf("wait_for_diagnostics(%s)", uri), timeout.String())
	}
}

// diagnosticReport's Kind discriminates the two pull-diagnostics report
// shapes: "full" carries a fresh Items list, "unchanged" means the
// previous result (by ResultID) still applies.
type diagnosticReport struct {
	Kind     string       `json:"kind"`
	ResultID string       `json:"resultId,omitempty"`
	Items    []Diagnostic `json:"items,omitempty"`
}

// PullDiagnostics issues textDocument/diagnostic and normalizes the
// "full" vs "unchanged" report kinds. On "unchanged", the previously
// cached diagnostics for uri are returned unmodified.
func (c *Client) PullDiagnostics(ctx context.Context, uri string) ([]Diagnostic, error) {
	params := map[string]any{"textDocument": map[string]string{"uri": uri}}

	var report diagnosticReport
	if err := c.Call(ctx, "textDocument/diagnostic", params, &report); err != nil {
		return nil, err
	}

	switch report.Kind {
	case "unchanged":
		return c.diagnostics.get(uri), nil
	default: // "full" or absent (some servers omit kind on a plain array)
		c.diagnostics.publish(uri, report.Items)
		return report.Items, nil
	}
}

func (c *Client) handleNotification(msg *Message) {
	switch msg.Method {
	case "textDocument/publishDiagnostics":
		var params publishDiagnosticsParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return
		}
		c.diagnostics.publish(params.URI, params.Diagnostics)
	}
}

package lsp

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lsmcp/lsmcp/internal/symbol"
)

// handshakeMaxElapsed bounds how long Start retries the initial
// "initialize" call. Some language servers (notably ones that lazily
// load a large workspace index before answering) are briefly
// unresponsive right after the child process starts; retrying with
// exponential backoff rides out that window instead of failing the
// whole index build on first contact.
const handshakeMaxElapsed = 10 * time.Second

// allSymbolKinds lists every value of the 26-entry LSP SymbolKind
// enumeration, advertised in ClientCapabilities so a server knows the
// client can render (and the index can store) any of them.
var allSymbolKinds = func() []int {
	kinds := make([]int, 0, 26)
	for k := symbol.KindFile; k <= symbol.KindTypeParameter; k++ {
		kinds = append(kinds, int(k))
	}
	return kinds
}()

// initializeParams mirrors the subset of LSP InitializeParams this
// client needs to advertise: hierarchical document symbols, workspace
// folders, and configuration support, so the server returns nested
// symbol trees instead of the flat legacy shape.
type initializeParams struct {
	ProcessID             int                    `json:"processId"`
	RootURI               string                 `json:"rootUri"`
	ClientInfo            clientInfo             `json:"clientInfo"`
	Capabilities          clientCapabilities     `json:"capabilities"`
	WorkspaceFolders      []workspaceFolder      `json:"workspaceFolders"`
	InitializationOptions map[string]any         `json:"initializationOptions,omitempty"`
}

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type workspaceFolder struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

type clientCapabilities struct {
	Workspace    workspaceClientCapabilities    `json:"workspace"`
	TextDocument textDocumentClientCapabilities `json:"textDocument"`
}

type workspaceClientCapabilities struct {
	Configuration        bool                         `json:"configuration"`
	WorkspaceFolders      bool                         `json:"workspaceFolders"`
	Symbol                *workspaceSymbolCapabilities `json:"symbol,omitempty"`
}

type workspaceSymbolCapabilities struct {
	SymbolKind symbolKindCapability `json:"symbolKind"`
}

type textDocumentClientCapabilities struct {
	DocumentSymbol documentSymbolCapabilities `json:"documentSymbol"`
	PublishDiagnostics publishDiagnosticsCapabilities `json:"publishDiagnostics"`
}

type documentSymbolCapabilities struct {
	HierarchicalDocumentSymbolSupport bool                 `json:"hierarchicalDocumentSymbolSupport"`
	SymbolKind                        symbolKindCapability `json:"symbolKind"`
}

type publishDiagnosticsCapabilities struct {
	RelatedInformation bool `json:"relatedInformation"`
}

type symbolKindCapability struct {
	ValueSet []int `json:"valueSet"`
}

// InitializeResult carries the subset of the server's response this
// client cares about: its advertised capabilities, cached for the
// lifetime of the session (e.g. to decide whether to pull or wait for
// pushed diagnostics).
type InitializeResult struct {
	Capabilities map[string]any `json:"capabilities"`
}

// Start runs the initialize/initialized handshake. The client is only
// Ready once this returns successfully; requests issued before that
// fail with NotReady.
func (c *Client) Start(ctx context.Context, rootPath string) (*InitializeResult, error) {
	c.setState(StateStarting)

	params := initializeParams{
		ProcessID: os.Getpid(),
		RootURI:   "file://" + rootPath,
		ClientInfo: clientInfo{
			Name:    "lsmcp",
			Version: "1",
		},
		WorkspaceFolders: []workspaceFolder{{URI: "file://" + rootPath, Name: rootPath}},
		Capabilities: clientCapabilities{
			Workspace: workspaceClientCapabilities{
				Configuration:    true,
				WorkspaceFolders: true,
				Symbol:           &workspaceSymbolCapabilities{SymbolKind: symbolKindCapability{ValueSet: allSymbolKinds}},
			},
			TextDocument: textDocumentClientCapabilities{
				DocumentSymbol: documentSymbolCapabilities{
					HierarchicalDocumentSymbolSupport: true,
					SymbolKind:                        symbolKindCapability{ValueSet: allSymbolKinds},
				},
				PublishDiagnostics: publishDiagnosticsCapabilities{RelatedInformation: true},
			},
		},
	}

	var result InitializeResult
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 100 * time.Millisecond
	eb.MaxElapsedTime = handshakeMaxElapsed
	bo := backoff.WithContext(backoff.WithMaxRetries(eb, 5), ctx)

	attempt := func() error { return c.Call(ctx, "initialize", params, &result) }
	if err := backoff.Retry(attempt, bo); err != nil {
		c.setState(StateUnstarted)
		return nil, fmt.Errorf("lsp: initialize: %w", err)
	}

	if err := c.Notify(ctx, "initialized", struct{}{}); err != nil {
		c.setState(StateUnstarted)
		return nil, fmt.Errorf("lsp: initialized notification: %w", err)
	}

	c.setState(StateReady)
	c.capabilities, _ = marshalParams(result.Capabilities)
	return &result, nil
}

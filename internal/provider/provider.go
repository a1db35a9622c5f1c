// Package provider implements the symbol-provider contract consumed by
// the index: GetDocumentSymbols(uri) returns the hierarchical symbol
// tree for a document, ensuring the document is open in the LSP client
// and normalizing whichever of the two historical response shapes
// (hierarchical DocumentSymbol, flat SymbolInformation) the server
// returned.
//
// Grounded on t3ta-mcp-language-server's RequestDocumentSymbols (tries
// the hierarchical shape first, falls back to the flat one) and the
// teacher's internal/scanner bounded-LRU-cache-by-path pattern, reused
// here for the per-file language-ID cache.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	amerrors "github.com/lsmcp/lsmcp/internal/errors"
	"github.com/lsmcp/lsmcp/internal/symbol"
)

// circuitMaxFailures/circuitResetTimeout bound how many consecutive
// DocumentSymbols failures against the language server are tolerated
// before the provider fails fast instead of blocking every subsequent
// index_file call on a wedged child process.
const (
	circuitMaxFailures  = 5
	circuitResetTimeout = 30 * time.Second
)

// languageCacheSize bounds the per-file language-ID cache.
// Unbounded growth in a long-running daemon process is the failure
// mode being guarded against, not raw lookup speed.
const languageCacheSize = 2000

// FileSystem is the inbound file-system contract: read a file's text
// and check existence. The concrete
// implementation is supplied by the composition root; this package
// only consumes it.
type FileSystem interface {
	ReadFile(path string) (string, error)
	Exists(path string) bool
}

// LSPClient is the subset of *lsp.Client the provider depends on. An
// interface (rather than importing internal/lsp's concrete type)
// keeps this package testable with an in-memory fake and keeps the
// provider agnostic to how a future non-LSP provider might be wired.
type LSPClient interface {
	Open(ctx context.Context, uri, text, languageID string) error
	DocumentSymbols(ctx context.Context, uri string) (json.RawMessage, error)
}

// Provider is the LSP-backed implementation of the symbol-provider
// contract, driving a language server child process through the
// shared LSP client.
type Provider struct {
	client LSPClient
	fs     FileSystem
	log    *slog.Logger

	cache *lru.Cache[string, string] // path -> detected language id

	breaker *amerrors.CircuitBreaker // trips when the language server stops responding
}

// New builds a Provider driving client, reading file contents through
// fs.
func New(client LSPClient, fs FileSystem, log *slog.Logger) (*Provider, error) {
	if log == nil {
		log = slog.Default()
	}
	cache, err := lru.New[string, string](languageCacheSize)
	if err != nil {
		return nil, fmt.Errorf("provider: create language cache: %w", err)
	}
	breaker := amerrors.NewCircuitBreaker(
		"lsp-document-symbols",
		amerrors.WithMaxFailures(circuitMaxFailures),
		amerrors.WithResetTimeout(circuitResetTimeout),
	)
	return &Provider{client: client, fs: fs, log: log, cache: cache, breaker: breaker}, nil
}

// GetDocumentSymbols ensures uri is open in the LSP client and returns
// its hierarchical symbol tree, normalized to the tree shape and with
// language-specific doc-comment position correction applied.
func (p *Provider) GetDocumentSymbols(ctx context.Context, uri string) ([]symbol.Symbol, error) {
	path := uriToPath(uri)

	text, err := p.fs.ReadFile(path)
	if err != nil {
		return nil, amerrors.ProviderFailure(uri, fmt.Errorf("read file: %w", err))
	}

	langID := p.languageID(path)
	if err := p.client.Open(ctx, uri, text, langID); err != nil {
		return nil, amerrors.ProviderFailure(uri, fmt.Errorf("open document: %w", err))
	}

	raw, err := amerrors.CircuitExecuteWithResult(p.breaker,
		func() (json.RawMessage, error) { return p.client.DocumentSymbols(ctx, uri) },
		func() (json.RawMessage, error) { return nil, amerrors.ErrCircuitOpen },
	)
	if err != nil {
		if err == amerrors.ErrCircuitOpen {
			p.log.Warn("lsp_circuit_open", slog.String("uri", uri))
		}
		return nil, amerrors.ProviderFailure(uri, err)
	}

	symbols, err := normalize(raw, uri)
	if err != nil {
		return nil, amerrors.ProviderFailure(uri, fmt.Errorf("normalize symbols: %w", err))
	}

	if prefixes, ok := commentPrefixesForLanguage(langID); ok {
		lines := strings.Split(text, "\n")
		for i := range symbols {
			adjustForComments(&symbols[i], lines, prefixes)
		}
	}

	return symbols, nil
}

func uriToPath(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}

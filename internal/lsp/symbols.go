package lsp

import (
	"context"
	"encoding/json"

	"github.com/lsmcp/lsmcp/internal/symbol"
)

type documentSymbolParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
}

// DocumentSymbols issues textDocument/documentSymbol for uri and
// returns the raw, unnormalized JSON result. The caller (internal/
// provider) is responsible for telling the tree shape (DocumentSymbol,
// with selectionRange/children) apart from the flat shape
// (SymbolInformation, with location/containerName) — this client makes
// no assumption about which one a given server returns.
func (c *Client) DocumentSymbols(ctx context.Context, uri string) (json.RawMessage, error) {
	params := documentSymbolParams{TextDocument: textDocumentIdentifier{URI: uri}}
	var raw json.RawMessage
	if err := c.Call(ctx, "textDocument/documentSymbol", params, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

type positionParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
	Position     symbol.Position        `json:"position"`
}

// Hover issues textDocument/hover at pos in uri, returning the raw
// Hover result (contents vary by server: markup string or marked
// strings array), left for the caller to render.
func (c *Client) Hover(ctx context.Context, uri string, pos symbol.Position) (json.RawMessage, error) {
	params := positionParams{TextDocument: textDocumentIdentifier{URI: uri}, Position: pos}
	var raw json.RawMessage
	if err := c.Call(ctx, "textDocument/hover", params, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

type referenceContext struct {
	IncludeDeclaration bool `json:"includeDeclaration"`
}

type referenceParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
	Position     symbol.Position        `json:"position"`
	Context      referenceContext       `json:"context"`
}

// References issues textDocument/references at pos in uri.
func (c *Client) References(ctx context.Context, uri string, pos symbol.Position, includeDeclaration bool) ([]symbol.Location, error) {
	params := referenceParams{
		TextDocument: textDocumentIdentifier{URI: uri},
		Position:     pos,
		Context:      referenceContext{IncludeDeclaration: includeDeclaration},
	}
	var locs []symbol.Location
	if err := c.Call(ctx, "textDocument/references", params, &locs); err != nil {
		return nil, err
	}
	return locs, nil
}

// PrepareRename issues textDocument/prepareRename at pos in uri,
// returning the raw result (a server may respond with a Range, a
// {range, placeholder} object, or null if renaming isn't valid there).
func (c *Client) PrepareRename(ctx context.Context, uri string, pos symbol.Position) (json.RawMessage, error) {
	params := positionParams{TextDocument: textDocumentIdentifier{URI: uri}, Position: pos}
	var raw json.RawMessage
	if err := c.Call(ctx, "textDocument/prepareRename", params, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

type renameParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
	Position     symbol.Position        `json:"position"`
	NewName      string                 `json:"newName"`
}

// Rename issues textDocument/rename at pos in uri, returning the raw
// WorkspaceEdit result for the caller to apply.
func (c *Client) Rename(ctx context.Context, uri string, pos symbol.Position, newName string) (json.RawMessage, error) {
	params := renameParams{TextDocument: textDocumentIdentifier{URI: uri}, Position: pos, NewName: newName}
	var raw json.RawMessage
	if err := c.Call(ctx, "textDocument/rename", params, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

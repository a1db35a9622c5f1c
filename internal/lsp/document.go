package lsp

import "context"

type textDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int32  `json:"version"`
	Text       string `json:"text"`
}

type didOpenParams struct {
	TextDocument textDocumentItem `json:"textDocument"`
}

type versionedTextDocumentIdentifier struct {
	URI     string `json:"uri"`
	Version int32  `json:"version"`
}

type textDocumentContentChangeEvent struct {
	Text string `json:"text"`
}

type didChangeParams struct {
	TextDocument   versionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges []textDocumentContentChangeEvent `json:"contentChanges"`
}

type textDocumentIdentifier struct {
	URI string `json:"uri"`
}

type didCloseParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
}

// IsOpen reports whether uri is currently tracked as open.
func (c *Client) IsOpen(uri string) bool {
	c.openFilesMu.RLock()
	defer c.openFilesMu.RUnlock()
	_, ok := c.openFiles[uri]
	return ok
}

// Open sends textDocument/didOpen for uri. Re-opening an already-open
// URI is a no-op rather than a refresh; this avoids bumping the
// version counter out from under a server that is mid-processing the
// prior didOpen.
func (c *Client) Open(ctx context.Context, uri, text, languageID string) error {
	c.openFilesMu.Lock()
	if _, exists := c.openFiles[uri]; exists {
		c.openFilesMu.Unlock()
		return nil
	}
	c.openFiles[uri] = &openFile{uri: uri, version: 1}
	c.openFilesMu.Unlock()

	params := didOpenParams{TextDocument: textDocumentItem{
		URI: uri, LanguageID: languageID, Version: 1, Text: text,
	}}
	if err := c.Notify(ctx, "textDocument/didOpen", params); err != nil {
		c.openFilesMu.Lock()
		delete(c.openFiles, uri)
		c.openFilesMu.Unlock()
		return err
	}
	return nil
}

// Update sends a full-text didChange for an already-open uri, opening
// it first if it was not already tracked.
func (c *Client) Update(ctx context.Context, uri, text, languageID string) error {
	c.openFilesMu.Lock()
	of, open := c.openFiles[uri]
	if !open {
		c.openFilesMu.Unlock()
		return c.Open(ctx, uri, text, languageID)
	}
	of.version++
	version := of.version
	c.openFilesMu.Unlock()

	params := didChangeParams{
		TextDocument:   versionedTextDocumentIdentifier{URI: uri, Version: version},
		ContentChanges: []textDocumentContentChangeEvent{{Text: text}},
	}
	return c.Notify(ctx, "textDocument/didChange", params)
}

// CloseDocument sends textDocument/didClose for uri, purges any
// diagnostics cached for it, and stops tracking it as open. A no-op if
// uri was not open.
func (c *Client) CloseDocument(ctx context.Context, uri string) error {
	c.openFilesMu.Lock()
	if _, open := c.openFiles[uri]; !open {
		c.openFilesMu.Unlock()
		return nil
	}
	delete(c.openFiles, uri)
	c.openFilesMu.Unlock()

	c.diagnostics.purge(uri)

	params := didCloseParams{TextDocument: textDocumentIdentifier{URI: uri}}
	return c.Notify(ctx, "textDocument/didClose", params)
}

// CloseAllDocuments closes every currently open document, best-effort,
// used during graceful shutdown.
func (c *Client) CloseAllDocuments(ctx context.Context) {
	c.openFilesMu.RLock()
	uris := make([]string, 0, len(c.openFiles))
	for uri := range c.openFiles {
		uris = append(uris, uri)
	}
	c.openFilesMu.RUnlock()

	for _, uri := range uris {
		_ = c.CloseDocument(ctx, uri)
	}
}

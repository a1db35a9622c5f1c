package provider

import (
	"path/filepath"
	"strings"
)

// extensionLanguageID maps a file extension to the LSP languageId sent
// with textDocument/didOpen.
var extensionLanguageID = map[string]string{
	".go":   "go",
	".ts":   "typescript",
	".tsx":  "typescriptreact",
	".js":   "javascript",
	".jsx":  "javascriptreact",
	".py":   "python",
	".rs":   "rust",
	".java": "java",
	".cs":   "csharp",
	".rb":   "ruby",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".hpp":  "cpp",
}

// languageID detects and caches the LSP languageId for path by
// extension, bounded by the provider's LRU cache.
func (p *Provider) languageID(path string) string {
	if cached, ok := p.cache.Get(path); ok {
		return cached
	}
	id := detectLanguageID(path)
	p.cache.Add(path, id)
	return id
}

func detectLanguageID(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if id, ok := extensionLanguageID[ext]; ok {
		return id
	}
	return "plaintext"
}

// DetectLanguageID is the uncached extension-based languageId lookup,
// exported for callers outside the provider that open a document
// without routing through GetDocumentSymbols (the MCP hover/references/
// rename pass-through tools).
func DetectLanguageID(path string) string {
	return detectLanguageID(path)
}

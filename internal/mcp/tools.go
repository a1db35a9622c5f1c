package mcp

import (
	"github.com/lsmcp/lsmcp/internal/symbol"
)

// QuerySymbolsInput defines the input schema for the query_symbols tool.
// An empty input matches every indexed symbol.
type QuerySymbolsInput struct {
	Name          string   `json:"name,omitempty" jsonschema:"substring to match against symbol names"`
	Kind          []string `json:"kind,omitempty" jsonschema:"filter by one or more symbol kinds, e.g. function, class, interface"`
	File          string   `json:"file,omitempty" jsonschema:"restrict the query to a single file, relative to the workspace root"`
	ContainerName string   `json:"container_name,omitempty" jsonschema:"filter by exact enclosing container name, e.g. a class or module"`

	// IncludeChildren defaults to true when omitted. Set to false to stop
	// descending into a matched symbol's children.
	IncludeChildren *bool `json:"include_children,omitempty" jsonschema:"whether to also return children of a matched symbol, default true"`
}

// QuerySymbolsOutput defines the output schema for the query_symbols tool.
type QuerySymbolsOutput struct {
	Symbols []SymbolOutput `json:"symbols"`
	Count   int            `json:"count"`
}

// SymbolOutput is the wire representation of a symbol.Symbol: the kind
// is rendered as its LSP name rather than its numeric value so clients
// don't need the enumeration memorized.
type SymbolOutput struct {
	Name          string         `json:"name"`
	Kind          string         `json:"kind"`
	File          string         `json:"file"`
	Range         RangeOutput    `json:"range"`
	ContainerName string         `json:"container_name,omitempty"`
	Detail        string         `json:"detail,omitempty"`
	Deprecated    bool           `json:"deprecated,omitempty"`
	Children      []SymbolOutput `json:"children,omitempty"`
}

// RangeOutput is the wire representation of a symbol.Range.
type RangeOutput struct {
	StartLine int `json:"start_line"`
	StartChar int `json:"start_char"`
	EndLine   int `json:"end_line"`
	EndChar   int `json:"end_char"`
}

// ToSymbolOutput converts a symbol.Symbol (and its children, recursively)
// into its wire representation.
func ToSymbolOutput(s symbol.Symbol) SymbolOutput {
	out := SymbolOutput{
		Name:          s.Name,
		Kind:          s.Kind.String(),
		File:          s.Location.URI,
		ContainerName: s.ContainerName,
		Detail:        s.Detail,
		Deprecated:    s.Deprecated,
		Range: RangeOutput{
			StartLine: s.Location.Range.Start.Line,
			StartChar: s.Location.Range.Start.Character,
			EndLine:   s.Location.Range.End.Line,
			EndChar:   s.Location.Range.End.Character,
		},
	}
	if len(s.Children) > 0 {
		out.Children = make([]SymbolOutput, len(s.Children))
		for i, c := range s.Children {
			out.Children[i] = ToSymbolOutput(c)
		}
	}
	return out
}

// IndexFileInput defines the input schema for the index_file tool.
type IndexFileInput struct {
	Path string `json:"path" jsonschema:"file path to index, relative to the workspace root"`
}

// IndexFileOutput defines the output schema for the index_file tool.
type IndexFileOutput struct {
	Path        string `json:"path"`
	SymbolCount int    `json:"symbol_count"`
}

// IndexFilesInput defines the input schema for the index_files tool.
type IndexFilesInput struct {
	Paths        []string `json:"paths" jsonschema:"file paths to index, relative to the workspace root"`
	Concurrency  int      `json:"concurrency,omitempty" jsonschema:"maximum concurrent provider calls, default from the index concurrency setting (5)"`
	BatchSize    int      `json:"batch_size,omitempty" jsonschema:"files grouped per progress event, default 50"`
	SkipFailures bool     `json:"skip_failures,omitempty" jsonschema:"continue past a single file's failure instead of aborting the batch"`
}

// IndexFilesOutput defines the output schema for the index_files tool.
type IndexFilesOutput struct {
	Indexed []string          `json:"indexed"`
	Errors  []FileErrorOutput `json:"errors"`
}

// FileErrorOutput is the wire representation of a per-file indexing
// failure.
type FileErrorOutput struct {
	URI   string `json:"uri"`
	Error string `json:"error"`
}

// UpdateIncrementalInput defines the input schema for the
// update_incremental tool (no required parameters).
type UpdateIncrementalInput struct {
	BatchSize int `json:"batch_size,omitempty" jsonschema:"files grouped per progress event, default 50"`
}

// UpdateIncrementalOutput defines the output schema for the
// update_incremental tool.
type UpdateIncrementalOutput struct {
	Updated []string `json:"updated"`
	Removed []string `json:"removed"`
	Errors  []string `json:"errors"`
}

// RemoveFileInput defines the input schema for the remove_file tool.
type RemoveFileInput struct {
	Path string `json:"path" jsonschema:"file path to remove from the index, relative to the workspace root"`
}

// RemoveFileOutput defines the output schema for the remove_file tool.
type RemoveFileOutput struct {
	Removed bool `json:"removed"`
}

// NeedsReindexInput defines the input schema for the needs_reindex tool.
type NeedsReindexInput struct {
	Path string `json:"path" jsonschema:"file path to check, relative to the workspace root"`
}

// NeedsReindexOutput defines the output schema for the needs_reindex tool.
type NeedsReindexOutput struct {
	NeedsReindex bool `json:"needs_reindex"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Project ProjectInfo `json:"project"`
	Stats   IndexStats  `json:"stats"`
}

// ProjectInfo contains information about the indexed project.
type ProjectInfo struct {
	Name     string `json:"name"`
	RootPath string `json:"root_path"`
	Type     string `json:"type"`
}

// IndexStats mirrors index.Stats in wire form.
type IndexStats struct {
	TotalFiles     int    `json:"total_files"`
	TotalSymbols   int    `json:"total_symbols"`
	CumulativeMs   int64  `json:"cumulative_ms"`
	LastUpdate     string `json:"last_update,omitempty"`
	LastCommitHash string `json:"last_commit_hash,omitempty"`
}

// HoverInput defines the input schema for the hover tool.
type HoverInput struct {
	File      string `json:"file" jsonschema:"file path, relative to the workspace root"`
	Line      int    `json:"line" jsonschema:"zero-based line number"`
	Character int    `json:"character" jsonschema:"zero-based character offset"`
}

// HoverOutput defines the output schema for the hover tool.
type HoverOutput struct {
	Contents string `json:"contents"`
}

// ReferencesInput defines the input schema for the references tool.
type ReferencesInput struct {
	File               string `json:"file" jsonschema:"file path, relative to the workspace root"`
	Line               int    `json:"line" jsonschema:"zero-based line number"`
	Character          int    `json:"character" jsonschema:"zero-based character offset"`
	IncludeDeclaration bool   `json:"include_declaration,omitempty" jsonschema:"include the declaration site in the results"`
}

// ReferencesOutput defines the output schema for the references tool.
type ReferencesOutput struct {
	Locations []LocationOutput `json:"locations"`
}

// LocationOutput is the wire representation of a symbol.Location.
type LocationOutput struct {
	File  string      `json:"file"`
	Range RangeOutput `json:"range"`
}

// ToLocationOutput converts a symbol.Location into its wire representation.
func ToLocationOutput(l symbol.Location) LocationOutput {
	return LocationOutput{
		File: l.URI,
		Range: RangeOutput{
			StartLine: l.Range.Start.Line,
			StartChar: l.Range.Start.Character,
			EndLine:   l.Range.End.Line,
			EndChar:   l.Range.End.Character,
		},
	}
}

// RenameInput defines the input schema for the rename tool.
type RenameInput struct {
	File      string `json:"file" jsonschema:"file path, relative to the workspace root"`
	Line      int    `json:"line" jsonschema:"zero-based line number"`
	Character int    `json:"character" jsonschema:"zero-based character offset"`
	NewName   string `json:"new_name" jsonschema:"the new name to apply at this position"`
}

// RenameOutput defines the output schema for the rename tool. Edit
// carries the language server's raw WorkspaceEdit, left unparsed since
// its shape (changes vs documentChanges) is server-dependent.
type RenameOutput struct {
	Edit string `json:"edit"`
}

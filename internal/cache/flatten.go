package cache

import (
	"fmt"

	"github.com/lsmcp/lsmcp/internal/symbol"
)

// symbolRow is one row of the `symbols` table: a single node of a
// file's symbol tree, addressed by name_path (its slash-joined chain
// of ancestor names, with a "~N" suffix disambiguating same-named
// siblings) and linked to its parent by parent_path so Get can rebuild
// the tree without a self-referential foreign key.
type symbolRow struct {
	NamePath      string
	ParentPath    string
	Seq           int
	Name          string
	Kind          int
	ContainerName string
	Detail        string
	Deprecated    bool
	StartLine     int
	StartChar     int
	EndLine       int
	EndChar       int
	SelStartLine  int
	SelStartChar  int
	SelEndLine    int
	SelEndChar    int
	URI           string
}

// flattenSymbols walks a symbol tree depth-first and emits one row per
// node, in document order (seq), so the symbols table (keyed by
// project root, file path, name path, and start position) can store
// and later reconstruct an arbitrarily deep tree without a separate
// payload blob.
func flattenSymbols(symbols []symbol.Symbol) []symbolRow {
	var rows []symbolRow
	seq := 0
	var walk func(nodes []symbol.Symbol, parentPath string)
	walk = func(nodes []symbol.Symbol, parentPath string) {
		siblingSeen := make(map[string]int, len(nodes))
		for _, s := range nodes {
			siblingSeen[s.Name]++
			segment := s.Name
			if n := siblingSeen[s.Name]; n > 1 {
				segment = fmt.Sprintf("%s~%d", s.Name, n)
			}
			namePath := segment
			if parentPath != "" {
				namePath = parentPath + "/" + segment
			}
			seq++
			rows = append(rows, symbolRow{
				NamePath:      namePath,
				ParentPath:    parentPath,
				Seq:           seq,
				Name:          s.Name,
				Kind:          int(s.Kind),
				ContainerName: s.ContainerName,
				Detail:        s.Detail,
				Deprecated:    s.Deprecated,
				StartLine:     s.Location.Range.Start.Line,
				StartChar:     s.Location.Range.Start.Character,
				EndLine:       s.Location.Range.End.Line,
				EndChar:       s.Location.Range.End.Character,
				SelStartLine:  s.SelectionRange.Start.Line,
				SelStartChar:  s.SelectionRange.Start.Character,
				SelEndLine:    s.SelectionRange.End.Line,
				SelEndChar:    s.SelectionRange.End.Character,
				URI:           s.Location.URI,
			})
			walk(s.Children, namePath)
		}
	}
	walk(symbols, "")
	return rows
}

// reconstructSymbols rebuilds a symbol forest from rows previously
// produced by flattenSymbols, preserving child order via seq. Rows
// must already be sorted by seq ascending. The empty-tree sentinel row
// (NamePath == "") written by Set for a file with no symbols is
// skipped, not treated as a real node.
func reconstructSymbols(rows []symbolRow) []symbol.Symbol {
	childrenOf := make(map[string][]symbolRow)
	for _, r := range rows {
		if r.NamePath == "" {
			continue
		}
		childrenOf[r.ParentPath] = append(childrenOf[r.ParentPath], r)
	}

	var build func(parentPath string) []symbol.Symbol
	build = func(parentPath string) []symbol.Symbol {
		kids := childrenOf[parentPath]
		if len(kids) == 0 {
			return nil
		}
		out := make([]symbol.Symbol, 0, len(kids))
		for _, r := range kids {
			out = append(out, symbol.Symbol{
				Name:          r.Name,
				Kind:          symbol.Kind(r.Kind),
				ContainerName: r.ContainerName,
				Detail:        r.Detail,
				Deprecated:    r.Deprecated,
				Location: symbol.Location{
					URI: r.URI,
					Range: symbol.Range{
						Start: symbol.Position{Line: r.StartLine, Character: r.StartChar},
						End:   symbol.Position{Line: r.EndLine, Character: r.EndChar},
					},
				},
				SelectionRange: symbol.Range{
					Start: symbol.Position{Line: r.SelStartLine, Character: r.SelStartChar},
					End:   symbol.Position{Line: r.SelEndLine, Character: r.SelEndChar},
				},
				Children: build(r.NamePath),
			})
		}
		return out
	}

	return build("")
}

package provider

import (
	"encoding/json"
	"fmt"

	"github.com/lsmcp/lsmcp/internal/symbol"
)

// rawTreeSymbol mirrors LSP's hierarchical DocumentSymbol shape.
type rawTreeSymbol struct {
	Name           string          `json:"name"`
	Detail         string          `json:"detail,omitempty"`
	Kind           int             `json:"kind"`
	Deprecated     bool            `json:"deprecated,omitempty"`
	Range          symbol.Range    `json:"range"`
	SelectionRange symbol.Range    `json:"selectionRange"`
	Children       []rawTreeSymbol `json:"children,omitempty"`
}

// rawFlatSymbol mirrors LSP's historical flat SymbolInformation shape.
type rawFlatSymbol struct {
	Name          string          `json:"name"`
	Kind          int             `json:"kind"`
	Deprecated    bool            `json:"deprecated,omitempty"`
	Location      symbol.Location `json:"location"`
	ContainerName string          `json:"containerName,omitempty"`
}

// shapeProbe is decoded first to tell the two shapes apart by presence
// of selectionRange (tree) vs location (flat) on the first element,
// since every LSP server returns one consistent shape per response.
type shapeProbe struct {
	SelectionRange *symbol.Range    `json:"selectionRange"`
	Location       *symbol.Location `json:"location"`
}

// normalize decodes a textDocument/documentSymbol raw result into the
// tree shape this repository stores, regardless of which historical
// shape the server returned. uri is stamped onto every symbol's
// Location since neither raw shape repeats the document's own URI.
func normalize(raw json.RawMessage, uri string) ([]symbol.Symbol, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var probes []shapeProbe
	if err := json.Unmarshal(raw, &probes); err != nil {
		return nil, fmt.Errorf("decode document symbol response: %w", err)
	}
	if len(probes) == 0 {
		return nil, nil
	}

	if probes[0].SelectionRange != nil {
		var tree []rawTreeSymbol
		if err := json.Unmarshal(raw, &tree); err != nil {
			return nil, fmt.Errorf("decode hierarchical document symbols: %w", err)
		}
		return normalizeTree(tree, "", uri)
	}

	var flat []rawFlatSymbol
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("decode flat document symbols: %w", err)
	}
	return normalizeFlat(flat, uri), nil
}

func normalizeTree(raw []rawTreeSymbol, containerName, uri string) ([]symbol.Symbol, error) {
	out := make([]symbol.Symbol, 0, len(raw))
	for _, r := range raw {
		kind := symbol.Kind(r.Kind)
		if !kind.Valid() {
			return nil, fmt.Errorf("symbol %q: invalid kind %d", r.Name, r.Kind)
		}
		children, err := normalizeTree(r.Children, r.Name, uri)
		if err != nil {
			return nil, err
		}
		out = append(out, symbol.Symbol{
			Name:           r.Name,
			Kind:           kind,
			Detail:         r.Detail,
			Deprecated:     r.Deprecated,
			ContainerName:  containerName,
			Location:       symbol.Location{URI: uri, Range: r.Range},
			SelectionRange: r.SelectionRange,
			Children:       children,
		})
	}
	return out, nil
}

// normalizeFlat converts flat SymbolInformation entries into top-level
// tree-shape symbols. The flat shape carries no parent/child
// relationship beyond the free-form ContainerName string, so every
// entry becomes a root with no children; the provider normalizes
// every flat result into the same tree shape the caller sees for
// hierarchical servers.
func normalizeFlat(raw []rawFlatSymbol, uri string) []symbol.Symbol {
	out := make([]symbol.Symbol, 0, len(raw))
	for _, r := range raw {
		kind := symbol.Kind(r.Kind)
		if !kind.Valid() {
			continue
		}
		loc := r.Location
		if loc.URI == "" {
			loc.URI = uri
		}
		out = append(out, symbol.Symbol{
			Name:           r.Name,
			Kind:           kind,
			Deprecated:     r.Deprecated,
			ContainerName:  r.ContainerName,
			Location:       loc,
			SelectionRange: loc.Range,
		})
	}
	return out
}

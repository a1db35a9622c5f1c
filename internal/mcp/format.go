package mcp

import (
	"encoding/json"
	"fmt"
	"strings"
)

// markupContent mirrors the LSP MarkupContent shape: {kind, value}.
type markupContent struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// markedString mirrors the legacy LSP MarkedString shape: either a bare
// string or {language, value}.
type markedString struct {
	Language string `json:"language"`
	Value    string `json:"value"`
}

// hoverResult mirrors the LSP Hover response: contents varies by shape,
// so it is decoded separately by formatHoverValue.
type hoverResult struct {
	Contents json.RawMessage `json:"contents"`
}

// FormatHoverContents renders a raw textDocument/hover result as plain
// text. A server may respond with a bare MarkupContent, a single
// MarkedString, an array of MarkedStrings, a bare string, or null (no
// hover information at this position).
func FormatHoverContents(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}

	var result hoverResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("mcp: decode hover result: %w", err)
	}
	if len(result.Contents) == 0 || string(result.Contents) == "null" {
		return "", nil
	}
	return formatHoverValue(result.Contents)
}

func formatHoverValue(raw json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(raw))

	// Bare string.
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("mcp: decode hover string: %w", err)
		}
		return s, nil
	}

	// Array of MarkedString.
	if strings.HasPrefix(trimmed, "[") {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return "", fmt.Errorf("mcp: decode hover array: %w", err)
		}
		parts := make([]string, 0, len(items))
		for _, item := range items {
			part, err := formatHoverValue(item)
			if err != nil {
				return "", err
			}
			parts = append(parts, part)
		}
		return strings.Join(parts, "\n\n---\n\n"), nil
	}

	// Object: either MarkupContent ({kind, value}) or MarkedString
	// ({language, value}).
	var mc markupContent
	if err := json.Unmarshal(raw, &mc); err == nil && mc.Value != "" {
		return mc.Value, nil
	}
	var ms markedString
	if err := json.Unmarshal(raw, &ms); err == nil {
		if ms.Language != "" {
			return fmt.Sprintf("```%s\n%s\n```", ms.Language, ms.Value), nil
		}
		return ms.Value, nil
	}

	return "", fmt.Errorf("mcp: unrecognized hover content shape: %s", trimmed)
}

// humanSize formats bytes as a human-readable string.
func humanSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

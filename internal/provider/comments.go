package provider

import (
	"strings"

	"github.com/lsmcp/lsmcp/internal/symbol"
)

// commentPrefixesByLanguage lists, per LSP languageId, the line-comment
// prefixes that server implementations are known to fold into a
// preceding symbol's range (e.g. OmniSharp reports a declaration's
// range starting at its doc comment block). Languages
// absent from this map get no correction.
var commentPrefixesByLanguage = map[string][]string{
	"csharp": {"///"},
	"java":   {"/**", "*", "*/"},
}

func commentPrefixesForLanguage(languageID string) ([]string, bool) {
	prefixes, ok := commentPrefixesByLanguage[languageID]
	return prefixes, ok
}

// adjustForComments advances sym's Location.Range.Start (and, if it
// coincides with the original start, SelectionRange.Start) past any
// contiguous run of comment lines at the start of its reported range,
// so that the position addresses executable code rather than the doc
// block above it. Applies recursively to children, since a nested
// symbol's own doc comment is folded the same way.
func adjustForComments(sym *symbol.Symbol, lines []string, prefixes []string) {
	original := sym.Location.Range.Start
	adjusted := advancePastComments(lines, original, prefixes)
	if adjusted != original {
		if sym.SelectionRange.Start == original {
			sym.SelectionRange.Start = adjusted
		}
		sym.Location.Range.Start = adjusted
	}
	for i := range sym.Children {
		adjustForComments(&sym.Children[i], lines, prefixes)
	}
}

// advancePastComments walks forward from start.Line, skipping blank
// lines and lines whose trimmed content begins with one of prefixes,
// and returns the position of the first line that is neither — i.e.
// the first line of actual code.
func advancePastComments(lines []string, start symbol.Position, prefixes []string) symbol.Position {
	line := start.Line
	for line < len(lines) {
		trimmed := strings.TrimSpace(lines[line])
		if trimmed == "" {
			line++
			continue
		}
		if !hasAnyPrefix(trimmed, prefixes) {
			break
		}
		line++
	}
	if line == start.Line {
		return start
	}
	if line >= len(lines) {
		return start
	}
	return symbol.Position{Line: line, Character: 0}
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

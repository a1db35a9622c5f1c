package index

import (
	"strings"

	"github.com/lsmcp/lsmcp/internal/symbol"
)

// QuerySymbols computes the candidate URI set as the intersection of
// per-predicate URI sets from the derived indices, then walks each
// candidate's symbol tree depth-first, appending matches in discovery
// order. An empty Query returns every symbol (every top-level symbol
// when IncludeChildren is false).
func (idx *Index) QuerySymbols(q Query) []symbol.Symbol {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	candidates := idx.candidateURIsLocked(q)
	includeChildren := q.includeChildren()

	var out []symbol.Symbol
	for _, uri := range candidates {
		record, ok := idx.fileIndex[uri]
		if !ok {
			continue
		}
		out = append(out, collectMatches(record.Symbols, q, includeChildren)...)
	}
	return out
}

// candidateURIsLocked intersects the per-predicate URI sets. A query
// naming no predicates returns every indexed URI in a stable order; a
// file predicate naming an un-indexed file yields an empty set.
func (idx *Index) candidateURIsLocked(q Query) []string {
	if q.File != "" {
		uri := idx.uriForPath(q.File)
		if _, ok := idx.fileIndex[uri]; !ok {
			return nil
		}
		return []string{uri}
	}

	var sets []map[string]struct{}

	if q.Name != "" {
		sets = append(sets, unionMatchingNameSubstrings(idx.nameIndex, q.Name))
	}
	if len(q.Kind) > 0 {
		sets = append(sets, unionKindSets(idx.kindIndex, q.Kind))
	}
	if q.ContainerName != "" {
		if set, ok := idx.containerIndex[q.ContainerName]; ok {
			sets = append(sets, set)
		} else {
			return nil
		}
	}

	if len(sets) == 0 {
		return allURIsStable(idx.fileIndex)
	}

	result := sets[0]
	for _, s := range sets[1:] {
		result = intersect(result, s)
	}
	return sortedKeys(result)
}

// unionMatchingNameSubstrings returns the union of URI sets for every
// indexed name containing needle as a case-sensitive substring. The
// name_index is keyed by exact symbol name, so a substring predicate
// must scan the index rather than do a direct lookup.
func unionMatchingNameSubstrings(nameIndex map[string]map[string]struct{}, needle string) map[string]struct{} {
	out := make(map[string]struct{})
	for name, uris := range nameIndex {
		if strings.Contains(name, needle) {
			for uri := range uris {
				out[uri] = struct{}{}
			}
		}
	}
	return out
}

func unionKindSets(kindIndex map[symbol.Kind]map[string]struct{}, kinds []symbol.Kind) map[string]struct{} {
	out := make(map[string]struct{})
	for _, k := range kinds {
		for uri := range kindIndex[k] {
			out[uri] = struct{}{}
		}
	}
	return out
}

func intersect(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	for k := range small {
		if _, ok := large[k]; ok {
			out[k] = struct{}{}
		}
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sortStrings(out)
	return out
}

func allURIsStable(fileIndex map[string]*symbol.FileSymbols) []string {
	out := make([]string, 0, len(fileIndex))
	for uri := range fileIndex {
		out = append(out, uri)
	}
	sortStrings(out)
	return out
}

// sortStrings sorts s in place with a simple insertion sort, kept local
// so the package needs no sort import; named separately to keep the
// call sites above self-documenting.
func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// collectMatches walks symbols depth-first, appending every node that
// matches every predicate in q. When includeChildren is true, children
// are visited regardless of whether their parent matched; when false,
// a matched node's children are skipped (but an unmatched node's
// children are still visited, since a match may be nested deeper).
func collectMatches(symbols []symbol.Symbol, q Query, includeChildren bool) []symbol.Symbol {
	var out []symbol.Symbol
	for i := range symbols {
		s := &symbols[i]
		matched := matches(s, q)
		if matched {
			out = append(out, *s)
		}
		if matched && !includeChildren {
			continue
		}
		out = append(out, collectMatches(s.Children, q, includeChildren)...)
	}
	return out
}

func matches(s *symbol.Symbol, q Query) bool {
	if q.Name != "" && !strings.Contains(s.Name, q.Name) {
		return false
	}
	if len(q.Kind) > 0 && !kindInSet(s.Kind, q.Kind) {
		return false
	}
	if q.ContainerName != "" && s.ContainerName != q.ContainerName {
		return false
	}
	return true
}

func kindInSet(k symbol.Kind, set []symbol.Kind) bool {
	for _, candidate := range set {
		if candidate == k {
			return true
		}
	}
	return false
}

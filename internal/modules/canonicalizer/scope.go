// Package canonicalizer merges multi-source positions into a single
// canonical portfolio view per spec.md §4.4: native-over-aggregator
// authority, notional derivation for futures, weight normalization, and
// cross_source_leakage recording. Rows whose source lists several
// providers are not narrowed here; providers.NarrowMergedSource does that
// and is not called on this path.
// Grounded on the teacher's symbol-keyed aggregation pattern
// (internal/modules/allocation/service.go's concentration-by-symbol
// grouping, internal/modules/portfolio/position_repository.go's
// symbol-indexed position maps) generalized to the spec's native/
// aggregator precedence rule, which the teacher has no analogue for.
package canonicalizer

import "strings"

// ScopeKind is the requested canonicalization view.
type ScopeKind string

const (
	ScopeAll         ScopeKind = "all"
	ScopeSource      ScopeKind = "source"
	ScopeInstitution ScopeKind = "institution"
	ScopeAccount     ScopeKind = "account"
)

// Scope selects which slice of the merged universe a caller wants back.
type Scope struct {
	Kind  ScopeKind
	Value string // source short name ("schwab"), institution name, or account id
}

// sourceFamily maps a ProviderSource to the short name used in
// ScopeSource values ("native_schwab" -> "schwab").
func sourceFamily(source string) string {
	s := strings.TrimPrefix(source, "native_")
	s = strings.TrimPrefix(s, "aggregator_")
	return s
}

// String renders the scope the way spec.md §4.4's examples write it
// ("source=schwab", "all").
func (s Scope) String() string {
	if s.Kind == ScopeAll {
		return "all"
	}
	return string(s.Kind) + "=" + s.Value
}

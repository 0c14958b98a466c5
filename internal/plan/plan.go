// Package plan holds the typed execution plans produced by the command
// grammar parsers and consumed by shard evaluators and the cross-shard
// merger.
package plan

import (
	"github.com/kailas-cloud/shardsearch/internal/aggregate"
	"github.com/kailas-cloud/shardsearch/internal/doc"
	"github.com/kailas-cloud/shardsearch/internal/query"
)

// FieldReference is a (physical identifier, optional display alias) pair.
type FieldReference struct {
	Name  string
	Alias string
}

// OutputName returns the name the field is emitted under.
func (f FieldReference) OutputName() string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

// SortOption is a post-result ordering directive.
type SortOption struct {
	Field FieldReference
	Order doc.SortOrder
}

// IsSame reports whether the sort targets the KNN score alias, in which case
// the KNN ordering already satisfies it.
func (s SortOption) IsSame(knn query.KnnScoreSortOption) bool {
	return s.Field.OutputName() == knn.ScoreFieldAlias
}

// Search parameter defaults, by convention of the external API.
const (
	DefaultLimitOffset = 0
	DefaultLimitTotal  = 10
)

// SearchParams is the plan of a SEARCH invocation. LoadFields and
// ReturnFields are mutually exclusive; a non-nil empty ReturnFields encodes
// NOCONTENT.
type SearchParams struct {
	LimitOffset  int
	LimitTotal   int
	LoadFields   []FieldReference
	ReturnFields []FieldReference
	HasLoad      bool
	HasReturn    bool
	QueryParams  query.Params
	SortOption   *SortOption
}

// NewSearchParams returns a plan with default limits.
func NewSearchParams() SearchParams {
	return SearchParams{LimitOffset: DefaultLimitOffset, LimitTotal: DefaultLimitTotal}
}

// IdsOnly reports whether the reply should contain keys without value maps.
func (p *SearchParams) IdsOnly() bool { return p.HasReturn && len(p.ReturnFields) == 0 }

// ShouldReturnField reports whether an alias belongs to the requested
// return set. With no RETURN clause every field is returned.
func (p *SearchParams) ShouldReturnField(alias string) bool {
	if !p.HasReturn {
		return true
	}
	for _, f := range p.ReturnFields {
		if f.OutputName() == alias {
			return true
		}
	}
	return false
}

// AggregateParams is the plan of an AGGREGATE invocation. LoadFields
// accumulates repeated LOAD clauses; Steps run in declared order.
type AggregateParams struct {
	Index       string
	Query       string
	LoadFields  []FieldReference
	HasLoad     bool
	Steps       []aggregate.Step
	QueryParams query.Params
}

// LoadNames returns the output names of the accumulated LOAD clauses.
func (p *AggregateParams) LoadNames() []string {
	names := make([]string, len(p.LoadFields))
	for i, f := range p.LoadFields {
		names[i] = f.OutputName()
	}
	return names
}

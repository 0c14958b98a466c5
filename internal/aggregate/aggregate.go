// Package aggregate implements the streaming aggregation pipeline applied to
// rows merged from all shards: group+reduce, sort and limit steps composed in
// declared order, followed by a projection of the fields to print.
package aggregate

import (
	"sort"
	"strconv"
	"strings"

	"github.com/kailas-cloud/shardsearch/internal/doc"
)

// DocValues is a single row: field name to sortable value. Rows own their
// keys (Go strings are immutable and maps copy keys on insert), so no extra
// arena is needed to keep them alive across pipeline stages.
type DocValues map[string]doc.Value

// ReducerFunc identifies an aggregation function applied per group.
type ReducerFunc uint8

// Reducer functions.
const (
	Count ReducerFunc = iota
	CountDistinct
	Sum
	Avg
	Max
	Min
)

// SourceArgs returns how many source arguments the function takes.
func (f ReducerFunc) SourceArgs() int {
	if f == Count {
		return 0
	}
	return 1
}

// Reducer applies Func over a group's values of SourceField and stores the
// result under ResultField. SourceField is empty iff Func takes no source.
type Reducer struct {
	SourceField string
	ResultField string
	Func        ReducerFunc
}

func (r Reducer) apply(rows []DocValues) doc.Value {
	switch r.Func {
	case Count:
		return float64(len(rows))
	case CountDistinct:
		seen := make(map[string]struct{})
		for _, row := range rows {
			if v, ok := row[r.SourceField]; ok && v != nil {
				seen[distinctKey(v)] = struct{}{}
			}
		}
		return float64(len(seen))
	case Sum, Avg:
		var sum float64
		for _, row := range rows {
			sum += coerceNumber(row[r.SourceField])
		}
		if r.Func == Avg {
			return sum / float64(len(rows))
		}
		return sum
	case Max, Min:
		var best doc.Value
		for _, row := range rows {
			v, ok := row[r.SourceField]
			if !ok || v == nil {
				continue
			}
			if best == nil ||
				(r.Func == Max && doc.Compare(v, best) > 0) ||
				(r.Func == Min && doc.Compare(v, best) < 0) {
				best = v
			}
		}
		return best
	}
	return nil
}

func distinctKey(v doc.Value) string {
	switch tv := v.(type) {
	case float64:
		return "n:" + strconv.FormatFloat(tv, 'g', -1, 64)
	case string:
		return "s:" + tv
	}
	return ""
}

func coerceNumber(v doc.Value) float64 {
	if f, ok := v.(float64); ok {
		return f
	}
	if s, ok := v.(string); ok {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return 0
}

// SortField is one (field, direction) pair of a sort step.
type SortField struct {
	Name  string
	Order doc.SortOrder
}

// SortParams hold the fields of a SORTBY step and its optional MAX cap
// (0 means uncapped).
type SortParams struct {
	Fields []SortField
	Max    int
}

// Step is one pipeline stage. It transforms the row set and may replace the
// current projection.
type Step interface {
	apply(rows []DocValues, fields []string) ([]DocValues, []string)
}

type groupStep struct {
	fields   []string
	reducers []Reducer
}

type sortStep struct{ params SortParams }

type limitStep struct{ offset, num int }

// MakeGroupStep builds a GROUPBY step with its reducers.
func MakeGroupStep(fields []string, reducers []Reducer) Step {
	return groupStep{fields: fields, reducers: reducers}
}

// MakeSortStep builds a SORTBY step.
func MakeSortStep(params SortParams) Step { return sortStep{params: params} }

// MakeLimitStep builds a LIMIT step.
func MakeLimitStep(offset, num int) Step { return limitStep{offset: offset, num: num} }

func (s groupStep) apply(rows []DocValues, _ []string) ([]DocValues, []string) {
	var order []string
	groups := make(map[string][]DocValues)
	for _, row := range rows {
		key := groupKey(row, s.fields)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], row)
	}

	out := make([]DocValues, 0, len(order))
	for _, key := range order {
		members := groups[key]
		row := make(DocValues, len(s.fields)+len(s.reducers))
		for _, f := range s.fields {
			row[f] = members[0][f]
		}
		for _, red := range s.reducers {
			row[red.ResultField] = red.apply(members)
		}
		out = append(out, row)
	}

	fields := make([]string, 0, len(s.fields)+len(s.reducers))
	fields = append(fields, s.fields...)
	for _, red := range s.reducers {
		fields = append(fields, red.ResultField)
	}
	return out, fields
}

func groupKey(row DocValues, fields []string) string {
	var b strings.Builder
	for _, f := range fields {
		b.WriteString(distinctKey(row[f]))
		b.WriteByte(0)
	}
	return b.String()
}

func (s sortStep) apply(rows []DocValues, fields []string) ([]DocValues, []string) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, sf := range s.params.Fields {
			c := doc.Compare(rows[i][sf.Name], rows[j][sf.Name])
			if c == 0 {
				continue
			}
			if sf.Order == doc.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	if s.params.Max > 0 && len(rows) > s.params.Max {
		rows = rows[:s.params.Max]
	}
	return rows, fields
}

func (s limitStep) apply(rows []DocValues, fields []string) ([]DocValues, []string) {
	offset := s.offset
	if offset > len(rows) {
		offset = len(rows)
	}
	end := offset + s.num
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end], fields
}

// Result is the pipeline output: the final rows and the projection to print.
type Result struct {
	Values        []DocValues
	FieldsToPrint []string
}

// Process runs the steps in order over the flattened shard rows. The initial
// projection is the deduplicated load-field set; a GROUP step replaces it
// with the group fields plus reducer outputs.
func Process(values []DocValues, loadFields []string, steps []Step) Result {
	fields := dedupe(loadFields)
	for _, step := range steps {
		values, fields = step.apply(values, fields)
	}
	return Result{Values: values, FieldsToPrint: fields}
}

func dedupe(fields []string) []string {
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

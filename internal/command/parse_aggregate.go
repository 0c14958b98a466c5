package command

import (
	"fmt"

	"github.com/kailas-cloud/shardsearch/internal/aggregate"
	"github.com/kailas-cloud/shardsearch/internal/args"
	"github.com/kailas-cloud/shardsearch/internal/doc"
	"github.com/kailas-cloud/shardsearch/internal/plan"
	"github.com/kailas-cloud/shardsearch/internal/reply"
)

// parseAggregatorSortParams consumes `<n> (<field> [ASC|DESC])... [MAX <m>]`.
// SORTBY consumes exactly n strings; a miscounted n is a syntax error.
func parseAggregatorSortParams(p *args.Parser, rejectLegacy bool) (aggregate.SortParams, *reply.Error) {
	stringsNum := p.NextInt()

	var sortParams aggregate.SortParams
	sortParams.Fields = make([]aggregate.SortField, 0, stringsNum/2)

	for p.HasNext() && stringsNum > 0 {
		potentialField := p.Peek()
		field, ok := parseFieldWithAtSign(p, rejectLegacy)
		if !ok {
			return aggregate.SortParams{}, syntaxError(fmt.Sprintf(
				"SORTBY field name '%s' must start with '@'", potentialField))
		}
		stringsNum--

		order := doc.Asc
		if stringsNum > 0 {
			if parsed, ok := args.TryMapNext(p,
				args.P("ASC", doc.Asc), args.P("DESC", doc.Desc)); ok {
				order = parsed
				stringsNum--
			}
		}

		sortParams.Fields = append(sortParams.Fields, aggregate.SortField{Name: field, Order: order})
	}

	if stringsNum > 0 {
		return aggregate.SortParams{}, syntaxError(
			"bad arguments for SORTBY: specified invalid number of strings")
	}

	if p.Check("MAX") {
		sortParams.Max = p.NextInt()
	}

	return sortParams, nil
}

// parseAggregatorParams consumes `<index> <query>` and the pipeline clauses.
// LOAD clauses may only appear before any step and accumulate; unknown
// clauses are hard errors.
func parseAggregatorParams(p *args.Parser, rejectLegacy bool) (*plan.AggregateParams, *reply.Error) {
	params := &plan.AggregateParams{}
	params.Index, params.Query = p.NextPair()

	// LOAD options sit at the beginning of the clause list.
	for p.HasNext() && p.Check("LOAD") {
		fields := parseLoadOrReturnFields(p, true)
		params.LoadFields = append(params.LoadFields, fields...)
		params.HasLoad = true
	}

	for p.HasNext() {
		// GROUPBY nargs property [property ...]
		if p.Check("GROUPBY") {
			numFields := p.NextInt()

			fields := make([]string, 0, numFields)
			for p.HasNext() && numFields > 0 {
				field, ok := parseFieldWithAtSign(p, rejectLegacy)
				if !ok {
					return nil, syntaxError("bad arguments: Field name should start with '@'")
				}
				fields = append(fields, field)
				numFields--
			}

			var reducers []aggregate.Reducer
			for p.Check("REDUCE") {
				funcName, ok := args.TryMapNext(p,
					args.P("COUNT", aggregate.Count),
					args.P("COUNT_DISTINCT", aggregate.CountDistinct),
					args.P("SUM", aggregate.Sum),
					args.P("AVG", aggregate.Avg),
					args.P("MAX", aggregate.Max),
					args.P("MIN", aggregate.Min),
				)
				if !ok {
					return nil, syntaxError(fmt.Sprintf("reducer function %s not found", p.Next()))
				}

				nargs := p.NextInt()
				var sourceField string
				if nargs > 0 {
					sourceField = parseField(p)
				}

				p.ExpectTag("AS")
				resultField := p.Next()

				reducers = append(reducers, aggregate.Reducer{
					SourceField: sourceField,
					ResultField: resultField,
					Func:        funcName,
				})
			}

			params.Steps = append(params.Steps, aggregate.MakeGroupStep(fields, reducers))
			continue
		}

		// SORTBY nargs
		if p.Check("SORTBY") {
			sortParams, perr := parseAggregatorSortParams(p, rejectLegacy)
			if perr != nil {
				return nil, perr
			}
			params.Steps = append(params.Steps, aggregate.MakeSortStep(sortParams))
			continue
		}

		// LIMIT offset num
		if p.Check("LIMIT") {
			offset, num := p.NextInt(), p.NextInt()
			params.Steps = append(params.Steps, aggregate.MakeLimitStep(offset, num))
			continue
		}

		// PARAMS
		if p.Check("PARAMS") {
			params.QueryParams = parseQueryParams(p)
			continue
		}

		if p.Check("LOAD") {
			return nil, syntaxError("LOAD cannot be applied after projectors or reducers")
		}

		return nil, syntaxError("Unknown clause: " + p.Peek())
	}

	return params, nil
}

package command

import (
	"strings"

	"github.com/kailas-cloud/shardsearch/internal/args"
	"github.com/kailas-cloud/shardsearch/internal/doc"
	"github.com/kailas-cloud/shardsearch/internal/plan"
	"github.com/kailas-cloud/shardsearch/internal/query"
	"github.com/kailas-cloud/shardsearch/internal/reply"
)

// parseField consumes a field name, stripping a leading @ if present.
func parseField(p *args.Parser) string {
	return strings.TrimPrefix(p.Next(), "@")
}

// parseFieldWithAtSign consumes a field name that must carry the @ prefix
// unless legacy names are allowed.
func parseFieldWithAtSign(p *args.Parser, rejectLegacy bool) (string, bool) {
	field := p.Next()
	if strings.HasPrefix(field, "@") {
		return field[1:], true
	}
	if rejectLegacy {
		return "", false
	}
	return field, true
}

// parseLoadOrReturnFields consumes `<n> (<field> [AS <alias>])×n`. A count
// exceeding the remaining arguments is tolerated; fields parse up to
// availability.
func parseLoadOrReturnFields(p *args.Parser, isLoad bool) []plan.FieldReference {
	fields := []plan.FieldReference{}
	numFields := p.NextInt()

	for p.HasNext() && numFields > 0 {
		numFields--
		var field string
		if isLoad {
			field = parseField(p)
		} else {
			field = p.Next()
		}
		var alias string
		p.CheckWith("AS", &alias)
		fields = append(fields, plan.FieldReference{Name: field, Alias: alias})
	}
	return fields
}

// parseQueryParams consumes `<n> (<key> <value>)×(n/2)`.
func parseQueryParams(p *args.Parser) query.Params {
	params := query.Params{}
	numArgs := p.NextInt()
	for p.HasNext() && params.Size()*2 < numArgs {
		k, v := p.NextPair()
		params[k] = v
	}
	return params
}

// parseSearchParams consumes the SEARCH clauses after the query string.
// Unknown tokens are silently skipped by one.
func parseSearchParams(p *args.Parser) (*plan.SearchParams, *reply.Error) {
	params := plan.NewSearchParams()

	for p.HasNext() {
		switch {
		case p.Check("LIMIT"):
			params.LimitOffset = p.NextInt()
			params.LimitTotal = p.NextInt()
		case p.Check("LOAD"):
			if params.HasReturn {
				return nil, syntaxError("LOAD cannot be applied after RETURN")
			}
			params.LoadFields = parseLoadOrReturnFields(p, true)
			params.HasLoad = true
		case p.Check("RETURN"):
			if params.HasLoad {
				return nil, syntaxError("RETURN cannot be applied after LOAD")
			}
			if !params.HasReturn { // after NOCONTENT it's silently ignored
				params.ReturnFields = parseLoadOrReturnFields(p, false)
				params.HasReturn = true
			}
		case p.Check("NOCONTENT"):
			params.ReturnFields = []plan.FieldReference{}
			params.HasReturn = true
		case p.Check("PARAMS"):
			params.QueryParams = parseQueryParams(p)
		case p.Check("SORTBY"):
			field := plan.FieldReference{Name: parseField(p)}
			order := doc.Asc
			if p.Check("DESC") {
				order = doc.Desc
			}
			params.SortOption = &plan.SortOption{Field: field, Order: order}
		default:
			p.Skip(1)
		}
	}

	return &params, nil
}

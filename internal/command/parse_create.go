package command

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/shardsearch/internal/args"
	"github.com/kailas-cloud/shardsearch/internal/indexdef"
	"github.com/kailas-cloud/shardsearch/internal/reply"
)

func syntaxError(msg string) *reply.Error {
	return &reply.Error{Message: msg, Kind: reply.KindSyntax}
}

// takeError surfaces a parse failure: a grammar error takes priority over a
// tokenizer-level error recorded in the parser.
func takeError(perr *reply.Error, p *args.Parser) (reply.Value, bool) {
	if perr != nil {
		return *perr, true
	}
	if e := p.Error(); e != nil {
		return reply.Error{Message: e.Message, Kind: reply.KindSyntax}, true
	}
	return nil, false
}

// parseVectorParams consumes `{HNSW|FLAT} <nargs>` and nargs/2 key-value
// pairs. Unknown keys skip two tokens.
func parseVectorParams(p *args.Parser, logger *zap.Logger) indexdef.VectorParams {
	params := indexdef.NewVectorParams()

	params.Algorithm = args.MapNext(p,
		args.P("HNSW", indexdef.HNSW), args.P("FLAT", indexdef.Flat))
	numArgs := p.NextInt()

	for i := 0; i*2 < numArgs; i++ {
		switch {
		case p.CheckWithInt("DIM", &params.Dim):
		case p.Check("DISTANCE_METRIC"):
			params.Sim = args.MapNext(p,
				args.P("L2", indexdef.L2), args.P("IP", indexdef.IP),
				args.P("COSINE", indexdef.Cosine))
		case p.CheckWithInt("INITIAL_CAP", &params.Capacity):
		case p.CheckWithInt("M", &params.HnswM):
		case p.CheckWithInt("EF_CONSTRUCTION", &params.HnswEfConstruction):
		case p.Check("EF_RUNTIME"):
			p.NextInt()
			logger.Warn("EF_RUNTIME not supported")
		case p.Check("EPSILON"):
			p.NextFloat()
			logger.Warn("EPSILON not supported")
		default:
			p.Skip(2)
		}
	}

	return params
}

func parseVector(p *args.Parser, logger *zap.Logger) (indexdef.FieldType, indexdef.Params, *reply.Error) {
	params := parseVectorParams(p, logger)
	if p.HasError() {
		return "", nil, syntaxError("Parse error of vector parameters")
	}
	if params.Dim == 0 {
		return "", nil, syntaxError("Knn vector dimension cannot be zero")
	}
	return indexdef.Vector, params, nil
}

func parseTag(p *args.Parser) (indexdef.FieldType, indexdef.Params, *reply.Error) {
	params := indexdef.NewTagParams()
	for p.HasNext() {
		if p.Check("SEPARATOR") {
			separator := p.Next()
			if len(separator) != 1 {
				return "", nil, syntaxError(fmt.Sprintf(
					"Tag separator must be a single character. Got `%s`", separator))
			}
			params.Separator = separator[0]
			continue
		}
		if p.Check("CASESENSITIVE") {
			params.CaseSensitive = true
			continue
		}
		if p.Check("WITHSUFFIXTRIE") {
			params.WithSuffixTrie = true
			continue
		}
		break
	}
	return indexdef.Tag, params, nil
}

func parseText(p *args.Parser) (indexdef.FieldType, indexdef.Params, *reply.Error) {
	return indexdef.Text, indexdef.TextParams{WithSuffixTrie: p.Check("WITHSUFFIXTRIE")}, nil
}

func parseNumeric(p *args.Parser) (indexdef.FieldType, indexdef.Params, *reply.Error) {
	params := indexdef.NewNumericParams()
	p.CheckWithInt("BLOCKSIZE", &params.BlockSize)
	return indexdef.Numeric, params, nil
}

var ignoredFieldOptions = []string{"UNF", "NOSTEM", "INDEXMISSING", "INDEXEMPTY"}
var ignoredFieldOptionsWithArg = []string{"WEIGHT", "PHONETIC"}

// parseSchema consumes `<field> [AS <alias>] <type> <params> <flags>*`
// repeatedly until the arguments end. SCHEMA is terminal in CREATE.
func parseSchema(p *args.Parser, index *indexdef.DocIndex, logger *zap.Logger) *reply.Error {
	if !p.HasNext() {
		return syntaxError("Fields arguments are missing")
	}

	for p.HasNext() {
		field := p.Next()
		fieldAlias := field

		if index.Type == indexdef.JSON && !indexdef.IsValidJSONPath(field) {
			return syntaxError("Bad json path: " + field)
		}

		p.CheckWith("AS", &fieldAlias)

		if index.Schema.HasAlias(fieldAlias) {
			return syntaxError("Duplicate field in schema - " + fieldAlias)
		}

		type paramsParser func(*args.Parser) (indexdef.FieldType, indexdef.Params, *reply.Error)
		parser, ok := args.TryMapNext(p,
			args.P("TAG", paramsParser(parseTag)),
			args.P("TEXT", paramsParser(parseText)),
			args.P("NUMERIC", paramsParser(parseNumeric)),
			args.P("VECTOR", paramsParser(func(p *args.Parser) (indexdef.FieldType, indexdef.Params, *reply.Error) {
				return parseVector(p, logger)
			})),
		)
		if !ok {
			return syntaxError(fmt.Sprintf("Field type %s is not supported", p.Next()))
		}

		fieldType, params, perr := parser(p)
		if perr != nil {
			return perr
		}

		var flags indexdef.Flag
		for p.HasNext() {
			flag, ok := args.TryMapNext(p,
				args.P("NOINDEX", indexdef.NoIndex), args.P("SORTABLE", indexdef.Sortable))
			if !ok {
				option := p.Peek()
				if containsFold(ignoredFieldOptions, option) {
					if !strings.EqualFold(option, "INDEXMISSING") && !strings.EqualFold(option, "INDEXEMPTY") {
						logger.Warn("Ignoring unsupported field option in CREATE",
							zap.String("option", option))
					}
					p.Skip(1)
					continue
				}
				if containsFold(ignoredFieldOptionsWithArg, option) {
					logger.Warn("Ignoring unsupported field option in CREATE",
						zap.String("option", option))
					p.Skip(2)
					continue
				}
				break
			}
			flags |= flag
		}

		index.Schema.Add(field, indexdef.SchemaField{
			Type:   fieldType,
			Flags:  flags,
			Alias:  fieldAlias,
			Params: params,
		})
	}

	return nil
}

// parseCreateParams consumes the CREATE clauses after the index name.
// Unknown top-level options are silently skipped by one token.
func parseCreateParams(p *args.Parser, logger *zap.Logger) (*indexdef.DocIndex, *reply.Error) {
	index := indexdef.New()

	for p.HasNext() {
		switch {
		case p.Check("ON"):
			index.Type = args.MapNext(p,
				args.P("HASH", indexdef.Hash), args.P("JSON", indexdef.JSON))
		case p.Check("PREFIX"):
			if !p.Check("1") {
				return nil, syntaxError("Multiple prefixes are not supported")
			}
			index.Prefix = p.Next()
		case p.Check("STOPWORDS"):
			index.Options.Stopwords = make(map[string]struct{})
			for num := p.NextInt(); num > 0; num-- {
				index.Options.Stopwords[p.Next()] = struct{}{}
			}
		case p.Check("SCHEMA"):
			if perr := parseSchema(p, index, logger); perr != nil {
				return nil, perr
			}
			return index, nil
		default:
			p.Skip(1)
		}
	}

	return index, nil
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}

// Package command implements the search command family: argument grammar
// parsing, shard fanout and cross-shard result assembly.
package command

import (
	"sort"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/kailas-cloud/shardsearch/internal/aggregate"
	"github.com/kailas-cloud/shardsearch/internal/args"
	"github.com/kailas-cloud/shardsearch/internal/doc"
	"github.com/kailas-cloud/shardsearch/internal/docindex"
	"github.com/kailas-cloud/shardsearch/internal/indexdef"
	"github.com/kailas-cloud/shardsearch/internal/query"
	"github.com/kailas-cloud/shardsearch/internal/reply"
	"github.com/kailas-cloud/shardsearch/internal/shard"
)

// Context carries per-invocation connection state.
type Context struct {
	DB int
}

// Family executes the search command family over a shard set.
type Family struct {
	shards            *shard.Set
	logger            *zap.Logger
	rejectLegacyField bool
}

// Config holds family switches.
type Config struct {
	// RejectLegacyField makes AGGREGATE reject field names without the @
	// prefix (compatibility switch, on by default).
	RejectLegacyField bool
}

// NewFamily creates the command family.
func NewFamily(shards *shard.Set, cfg Config, logger *zap.Logger) *Family {
	return &Family{
		shards:            shards,
		logger:            logger,
		rejectLegacyField: cfg.RejectLegacyField,
	}
}

// checkShardCount verifies the all-or-nothing invariant of per-shard state:
// a count of shards reporting a condition must be zero or the shard count.
func (f *Family) checkShardCount(op string, count int) {
	if count != 0 && count != f.shards.Size() {
		f.logger.Error("shard state diverged",
			zap.String("op", op), zap.Int("count", count), zap.Int("shards", f.shards.Size()))
	}
}

// Create handles CREATE: parse the definition, verify the name is free on
// every shard, then publish and install the definition atomically.
func (f *Family) Create(ctx *Context, cmdArgs []string) reply.Value {
	query.Warmup()

	if ctx.DB != 0 {
		return reply.Err("Cannot create index on db != 0")
	}

	p := args.New(cmdArgs)
	idxName := p.Next()

	parsed, perr := parseCreateParams(p, f.logger)
	if errReply, failed := takeError(perr, p); failed {
		return errReply
	}

	var existsCnt atomic.Int32
	tx := f.shards.NewTransaction()
	tx.Execute(func(_ *shard.Transaction, sh *shard.Shard) {
		if sh.Indices.GetIndex(idxName) != nil {
			existsCnt.Add(1)
		}
	}, false)

	f.checkShardCount("CREATE", int(existsCnt.Load()))

	if existsCnt.Load() > 0 {
		tx.Conclude()
		return reply.Err("Index already exists")
	}

	// The definition is shared by all shards; immutable after publish.
	tx.Execute(func(_ *shard.Transaction, sh *shard.Shard) {
		sh.Indices.InitIndex(idxName, parsed)
	}, true)

	return reply.OK()
}

// Alter handles ALTER SCHEMA ADD: additive merge into a cloned definition,
// then full rebuild by replacing the published definition wholesale.
func (f *Family) Alter(_ *Context, cmdArgs []string) reply.Value {
	p := args.New(cmdArgs)
	idxName := p.Next()
	p.ExpectTag("SCHEMA")
	p.ExpectTag("ADD")
	if errReply, failed := takeError(nil, p); failed {
		return errReply
	}

	// Extract the existing definition; all shards hold the same one, so
	// fetch from the first.
	var existing *indexdef.DocIndex
	tx := f.shards.NewTransaction()
	tx.Execute(func(_ *shard.Transaction, sh *shard.Shard) {
		if sh.ID() > 0 {
			return
		}
		if idx := sh.Indices.GetIndex(idxName); idx != nil {
			existing = idx.GetInfo().BaseIndex.Clone()
		}
	}, false)

	if existing == nil {
		tx.Conclude()
		return reply.Err("Index not found")
	}

	newIndex := indexdef.New()
	newIndex.Type = existing.Type
	perr := parseSchema(p, newIndex, f.logger)
	if errReply, failed := takeError(perr, p); failed {
		tx.Conclude()
		return errReply
	}

	f.logger.Info("altering index",
		zap.String("index", idxName), zap.Int("added_fields", len(newIndex.Schema.Idents())))

	existing.Schema.Merge(newIndex.Schema)

	tx.Execute(func(_ *shard.Transaction, sh *shard.Shard) {
		sh.Indices.DropIndex(idxName)
		sh.Indices.InitIndex(idxName, existing)
	}, true)

	return reply.OK()
}

// DropIndex handles DROPINDEX. The DD flag is accepted but not implemented.
func (f *Family) DropIndex(_ *Context, cmdArgs []string) reply.Value {
	idxName := cmdArgs[0]

	var numDeleted atomic.Int32
	tx := f.shards.NewTransaction()
	tx.ScheduleSingleHop(func(_ *shard.Transaction, sh *shard.Shard) {
		if sh.Indices.DropIndex(idxName) {
			numDeleted.Add(1)
		}
	})

	f.checkShardCount("DROPINDEX", int(numDeleted.Load()))
	if numDeleted.Load() == 0 {
		return reply.Err("-Unknown Index name")
	}
	return reply.OK()
}

// Info handles INFO: definition from the first shard, document count summed
// over all shards.
func (f *Family) Info(_ *Context, cmdArgs []string) reply.Value {
	idxName := cmdArgs[0]

	var numNotFound atomic.Int32
	infos := make([]docindex.Info, f.shards.Size())

	tx := f.shards.NewTransaction()
	tx.ScheduleSingleHop(func(_ *shard.Transaction, sh *shard.Shard) {
		if idx := sh.Indices.GetIndex(idxName); idx != nil {
			infos[sh.ID()] = idx.GetInfo()
		} else {
			numNotFound.Add(1)
		}
	})

	f.checkShardCount("INFO", int(numNotFound.Load()))
	if int(numNotFound.Load()) == f.shards.Size() {
		return reply.Err("Unknown Index name")
	}

	totalNumDocs := 0
	var base *indexdef.DocIndex
	for _, info := range infos {
		totalNumDocs += info.NumDocs
		if base == nil && info.BaseIndex != nil {
			base = info.BaseIndex
		}
	}

	attributes := make(reply.Array, 0, len(base.Schema.Idents()))
	for _, ident := range base.Schema.Idents() {
		field := base.Schema.Fields[ident]
		attr := reply.Array{
			reply.SimpleString("identifier"), reply.SimpleString(ident),
			reply.SimpleString("attribute"), reply.SimpleString(field.Alias),
			reply.SimpleString("type"), reply.SimpleString(field.Type),
		}
		if field.Flags&indexdef.NoIndex != 0 {
			attr = append(attr, reply.SimpleString("NOINDEX"))
		}
		if field.Flags&indexdef.Sortable != 0 {
			attr = append(attr, reply.SimpleString("SORTABLE"))
		}
		if field.Type == indexdef.Numeric {
			np := field.Params.(indexdef.NumericParams)
			attr = append(attr,
				reply.SimpleString("blocksize"), reply.Long(np.BlockSize))
		}
		attributes = append(attributes, attr)
	}

	return reply.Map{
		{Key: reply.SimpleString("index_name"), Val: reply.SimpleString(idxName)},
		{Key: reply.SimpleString("index_definition"), Val: reply.Map{
			{Key: reply.SimpleString("key_type"), Val: reply.SimpleString(base.Type)},
			{Key: reply.SimpleString("prefix"), Val: reply.SimpleString(base.Prefix)},
		}},
		{Key: reply.SimpleString("attributes"), Val: attributes},
		{Key: reply.SimpleString("num_docs"), Val: reply.Long(totalNumDocs)},
	}
}

// List handles _LIST. All shards hold the same names; a first-writer-wins
// atomic lets a single shard populate the output.
func (f *Family) List(_ *Context, _ []string) reply.Value {
	var first atomic.Int32
	var names []string

	tx := f.shards.NewTransaction()
	tx.ScheduleSingleHop(func(_ *shard.Transaction, sh *shard.Shard) {
		if first.Add(1) == 1 {
			names = sh.Indices.GetIndexNames()
		}
	})

	out := make(reply.Array, 0, len(names))
	for _, name := range names {
		out = append(out, reply.BulkString(name))
	}
	return out
}

// Search handles SEARCH: parse, fan out, merge.
func (f *Family) Search(_ *Context, cmdArgs []string) reply.Value {
	p := args.New(cmdArgs)
	indexName := p.Next()
	queryStr := p.Next()

	params, perr := parseSearchParams(p)
	if errReply, failed := takeError(perr, p); failed {
		return errReply
	}

	var algo query.SearchAlgorithm
	if !algo.Init(queryStr, params.QueryParams) {
		return reply.Err("Query syntax error")
	}

	// The coordinator context owns no shard, so index existence is checked
	// during the hop itself.
	var numNotFound atomic.Int32
	results := make([]doc.SearchResult, f.shards.Size())

	tx := f.shards.NewTransaction()
	tx.ScheduleSingleHop(func(_ *shard.Transaction, sh *shard.Shard) {
		if idx := sh.Indices.GetIndex(indexName); idx != nil {
			results[sh.ID()] = idx.Search(params, &algo)
		} else {
			numNotFound.Add(1)
		}
	})

	f.checkShardCount("SEARCH", int(numNotFound.Load()))
	if int(numNotFound.Load()) == f.shards.Size() {
		return reply.Err(indexName + ": no such index")
	}

	for i := range results {
		if results[i].Error != "" {
			return reply.Err(results[i].Error)
		}
	}

	return searchReply(params, algo.KnnScoreSortOption(), results)
}

// Aggregate handles AGGREGATE: fan out row collection, then run the pipeline
// over the flattened rows.
func (f *Family) Aggregate(_ *Context, cmdArgs []string) reply.Value {
	p := args.New(cmdArgs)
	params, perr := parseAggregatorParams(p, f.rejectLegacyField)
	if errReply, failed := takeError(perr, p); failed {
		return errReply
	}

	var algo query.SearchAlgorithm
	if !algo.Init(params.Query, params.QueryParams) {
		return reply.Err("Query syntax error")
	}

	shardRows := make([][]map[string]doc.Value, f.shards.Size())
	shardErrs := make([]error, f.shards.Size())

	tx := f.shards.NewTransaction()
	tx.ScheduleSingleHop(func(_ *shard.Transaction, sh *shard.Shard) {
		if idx := sh.Indices.GetIndex(params.Index); idx != nil {
			shardRows[sh.ID()], shardErrs[sh.ID()] = idx.SearchForAggregator(params, &algo)
		}
	})

	for _, err := range shardErrs {
		if err != nil {
			return reply.Err(err.Error())
		}
	}

	values := make([]aggregate.DocValues, 0)
	for _, rows := range shardRows {
		for _, row := range rows {
			values = append(values, aggregate.DocValues(row))
		}
	}

	aggResults := aggregate.Process(values, params.LoadNames(), params.Steps)

	out := make(reply.Array, 0, len(aggResults.Values)+1)
	out = append(out, reply.Long(len(aggResults.Values)))
	for _, value := range aggResults.Values {
		row := reply.Array{}
		for _, field := range aggResults.FieldsToPrint {
			if v, ok := value[field]; ok {
				row = append(row, reply.BulkString(field), reply.Sortable(v))
			}
		}
		out = append(out, row)
	}
	return out
}

// TagVals handles TAGVALS: union of per-shard distinct values.
func (f *Family) TagVals(_ *Context, cmdArgs []string) reply.Value {
	indexName, fieldName := cmdArgs[0], cmdArgs[1]
	f.logger.Debug("TAGVALS", zap.String("index", indexName), zap.String("field", fieldName))

	type shardTagVals struct {
		vals []string
		err  string
	}
	shardResults := make([]shardTagVals, f.shards.Size())

	tx := f.shards.NewTransaction()
	tx.ScheduleSingleHop(func(_ *shard.Transaction, sh *shard.Shard) {
		if idx := sh.Indices.GetIndex(indexName); idx != nil {
			vals, err := idx.GetTagVals(fieldName)
			if err != nil {
				shardResults[sh.ID()] = shardTagVals{err: err.Error()}
			} else {
				shardResults[sh.ID()] = shardTagVals{vals: vals}
			}
		} else {
			shardResults[sh.ID()] = shardTagVals{err: "-Unknown Index name"}
		}
	})

	set := make(map[string]struct{})
	for _, res := range shardResults {
		if res.err != "" {
			return reply.SearchErr(res.err)
		}
		for _, v := range res.vals {
			set[v] = struct{}{}
		}
	}

	vals := make([]string, 0, len(set))
	for v := range set {
		vals = append(vals, v)
	}
	sort.Strings(vals)

	out := make(reply.Set, 0, len(vals))
	for _, v := range vals {
		out = append(out, reply.BulkString(v))
	}
	return out
}

// SynDump handles SYNDUMP: invert each shard's group table to term → groups
// and set-union across shards.
func (f *Family) SynDump(_ *Context, cmdArgs []string) reply.Value {
	indexName := cmdArgs[0]

	var found atomic.Bool
	shardTermGroups := make([]map[string]map[string]struct{}, f.shards.Size())

	tx := f.shards.NewTransaction()
	tx.Execute(func(_ *shard.Transaction, sh *shard.Shard) {
		idx := sh.Indices.GetIndex(indexName)
		if idx == nil {
			return
		}
		found.Store(true)

		termGroups := make(map[string]map[string]struct{})
		for groupID, group := range idx.GetSynonyms().GetGroups() {
			for term := range group {
				if termGroups[term] == nil {
					termGroups[term] = make(map[string]struct{})
				}
				termGroups[term][groupID] = struct{}{}
			}
		}
		shardTermGroups[sh.ID()] = termGroups
	}, true)

	if !found.Load() {
		return reply.Err("Unknown index name")
	}

	merged := make(map[string]map[string]struct{})
	for _, termGroups := range shardTermGroups {
		for term, groupIDs := range termGroups {
			if merged[term] == nil {
				merged[term] = make(map[string]struct{})
			}
			for id := range groupIDs {
				merged[term][id] = struct{}{}
			}
		}
	}

	terms := make([]string, 0, len(merged))
	for term := range merged {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	out := make(reply.Array, 0, len(terms)*2)
	for _, term := range terms {
		ids := make([]string, 0, len(merged[term]))
		for id := range merged[term] {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		idArr := make(reply.Array, 0, len(ids))
		for _, id := range ids {
			idArr = append(idArr, reply.BulkString(id))
		}
		out = append(out, reply.BulkString(term), idArr)
	}
	return out
}

// SynUpdate handles SYNUPDATE: broadcast the group replacement; each shard
// rebuilds entries only for documents containing an affected term.
func (f *Family) SynUpdate(_ *Context, cmdArgs []string) reply.Value {
	p := args.New(cmdArgs)
	indexName, groupID := p.NextPair()

	// Accepted for compatibility; the reference server ignores it too.
	p.Check("SKIPINITIALSCAN")

	var terms []string
	for p.HasNext() {
		terms = append(terms, p.Next())
	}

	if len(terms) == 0 {
		return reply.Err("No terms specified")
	}

	if !p.Finalize() {
		errReply, _ := takeError(nil, p)
		return errReply
	}

	var found atomic.Bool
	tx := f.shards.NewTransaction()
	tx.Execute(func(_ *shard.Transaction, sh *shard.Shard) {
		idx := sh.Indices.GetIndex(indexName)
		if idx == nil {
			return
		}
		found.Store(true)
		idx.RebuildForGroup(groupID, terms)
	}, true)

	if !found.Load() {
		return reply.Err(indexName + ": no such index")
	}
	return reply.OK()
}

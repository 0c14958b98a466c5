package command

import (
	"sync/atomic"
	"time"

	"github.com/kailas-cloud/shardsearch/internal/args"
	"github.com/kailas-cloud/shardsearch/internal/doc"
	"github.com/kailas-cloud/shardsearch/internal/query"
	"github.com/kailas-cloud/shardsearch/internal/reply"
	"github.com/kailas-cloud/shardsearch/internal/shard"
)

// Profile handles PROFILE: run the wrapped query with per-shard timing and
// reconstruct each shard's event tree. The AGGREGATE subcommand is accepted
// but executes the SEARCH path.
func (f *Family) Profile(_ *Context, cmdArgs []string) reply.Value {
	p := args.New(cmdArgs)
	indexName := p.Next()

	if !p.Check("SEARCH") && !p.Check("AGGREGATE") {
		return reply.Err("no `SEARCH` or `AGGREGATE` provided")
	}

	p.Check("LIMITED") // accepted, profiling is never limited

	p.ExpectTag("QUERY")
	queryStr := p.Next()

	params, perr := parseSearchParams(p)
	if errReply, failed := takeError(perr, p); failed {
		return errReply
	}

	var algo query.SearchAlgorithm
	if !algo.Init(queryStr, params.QueryParams) {
		return reply.Err("query syntax error")
	}
	algo.EnableProfiling()

	start := time.Now()
	shardsCount := f.shards.Size()

	var numNotFound atomic.Int32
	searchResults := make([]doc.SearchResult, shardsCount)
	profileTimes := make([]time.Duration, shardsCount)

	tx := f.shards.NewTransaction()
	tx.ScheduleSingleHop(func(_ *shard.Transaction, sh *shard.Shard) {
		idx := sh.Indices.GetIndex(indexName)
		if idx == nil {
			numNotFound.Add(1)
			return
		}
		shardStart := time.Now()
		searchResults[sh.ID()] = idx.Search(params, &algo)
		profileTimes[sh.ID()] = time.Since(shardStart)
	})

	f.checkShardCount("PROFILE", int(numNotFound.Load()))
	if int(numNotFound.Load()) == shardsCount {
		return reply.Err(indexName + ": no such index")
	}

	took := time.Since(start)

	resultIsEmpty := false
	totalDocs, totalSerialized := 0, 0
	for i := range searchResults {
		if searchResults[i].Error == "" {
			totalDocs += searchResults[i].TotalHits
			totalSerialized += len(searchResults[i].Docs)
		} else {
			resultIsEmpty = true
		}
	}

	var searchSection reply.Value
	if !resultIsEmpty {
		searchSection = searchReply(params, algo.KnnScoreSortOption(), searchResults)
	} else {
		searchSection = reply.Array{reply.Long(0)}
	}

	profileSection := make(reply.Array, 0, shardsCount+1)
	profileSection = append(profileSection, reply.Map{
		{Key: reply.BulkString("took"), Val: reply.Long(took.Microseconds())},
		{Key: reply.BulkString("hits"), Val: reply.Long(totalDocs)},
		{Key: reply.BulkString("serialized"), Val: reply.Long(totalSerialized)},
	})

	for shardID := 0; shardID < shardsCount; shardID++ {
		res := &searchResults[shardID]
		var tree reply.Value = reply.Array{}
		if res.Error == "" && res.Profile != nil && len(res.Profile.Events) > 0 {
			tree = buildProfileTree(res.Profile.Events, 0)
		}
		profileSection = append(profileSection, reply.Map{
			{Key: reply.BulkString("took"), Val: reply.Long(profileTimes[shardID].Microseconds())},
			{Key: reply.BulkString("tree"), Val: tree},
		})
	}

	return reply.Array{searchSection, profileSection}
}

// buildProfileTree reconstructs the event tree starting at events[root]:
// children are contiguous after their parent with depth exactly one greater,
// and the subtree ends at the next sibling of the same depth.
func buildProfileTree(events []doc.ProfileEvent, root int) reply.Value {
	event := events[root]

	var children reply.Array
	var childMicros int64
	for i := root + 1; i < len(events); i++ {
		if events[i].Depth <= event.Depth {
			break
		}
		if events[i].Depth == event.Depth+1 {
			children = append(children, buildProfileTree(events, i))
			childMicros += events[i].Micros
		}
	}

	node := reply.Map{
		{Key: reply.SimpleString("total_time"), Val: reply.Long(event.Micros)},
		{Key: reply.SimpleString("operation"), Val: reply.SimpleString(event.Descr)},
		{Key: reply.SimpleString("self_time"), Val: reply.Long(event.Micros - childMicros)},
		{Key: reply.SimpleString("processed"), Val: reply.Long(event.NumProcessed)},
	}
	if len(children) > 0 {
		node = append(node, reply.KV{Key: reply.SimpleString("children"), Val: children})
	}
	return node
}

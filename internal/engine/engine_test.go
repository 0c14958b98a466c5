package engine

import (
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/shardsearch/internal/reply"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(Config{Shards: 3, RejectLegacyField: true}, zap.NewNop())
	t.Cleanup(e.Close)
	return e
}

func execOK(t *testing.T, e *Engine, argv ...string) {
	t.Helper()
	if got := e.Execute(0, argv...); got != reply.OK() {
		t.Fatalf("%v: reply = %v, want +OK", argv, got)
	}
}

func TestEndToEndCreateListInfo(t *testing.T) {
	e := newTestEngine(t)

	execOK(t, e, "FT.CREATE", "idx", "ON", "JSON", "PREFIX", "1", "doc:",
		"SCHEMA", "$.a", "AS", "a", "TEXT")

	list := e.Execute(0, "FT._LIST").(reply.Array)
	if len(list) != 1 || list[0] != reply.BulkString("idx") {
		t.Fatalf("_LIST = %v, want [idx]", list)
	}

	info := e.Execute(0, "FT.INFO", "idx").(reply.Map)
	fields := map[string]reply.Value{}
	for _, kv := range info {
		fields[string(kv.Key.(reply.SimpleString))] = kv.Val
	}
	def := fields["index_definition"].(reply.Map)
	if def[0].Val != reply.SimpleString("JSON") || def[1].Val != reply.SimpleString("doc:") {
		t.Fatalf("index_definition = %v", def)
	}
}

func TestEndToEndDuplicateCreate(t *testing.T) {
	e := newTestEngine(t)
	execOK(t, e, "FT.CREATE", "idx", "ON", "HASH",
		"SCHEMA", "v", "VECTOR", "HNSW", "6", "DIM", "4", "DISTANCE_METRIC", "COSINE", "M", "16")

	got := e.Execute(0, "FT.CREATE", "idx", "ON", "HASH",
		"SCHEMA", "v", "VECTOR", "HNSW", "6", "DIM", "4", "DISTANCE_METRIC", "COSINE", "M", "16")
	if errVal, ok := got.(reply.Error); !ok || errVal.Message != "Index already exists" {
		t.Fatalf("reply = %v", got)
	}
}

func TestEndToEndSearchEmpty(t *testing.T) {
	e := newTestEngine(t)
	execOK(t, e, "FT.CREATE", "idx", "SCHEMA", "t", "TEXT")

	got := e.Execute(0, "FT.SEARCH", "idx", "*", "LIMIT", "0", "10", "NOCONTENT").(reply.Array)
	if len(got) != 1 || got[0] != reply.Long(0) {
		t.Fatalf("reply = %v, want [0]", got)
	}
}

func TestEndToEndAggregate(t *testing.T) {
	e := newTestEngine(t)
	e.SetDocument("doc:1", map[string]string{"city": "A"})
	e.SetDocument("doc:2", map[string]string{"city": "A"})
	e.SetDocument("doc:3", map[string]string{"city": "B"})

	execOK(t, e, "FT.CREATE", "idx", "PREFIX", "1", "doc:", "SCHEMA", "city", "TAG")

	got := e.Execute(0, "FT.AGGREGATE", "idx", "*",
		"GROUPBY", "1", "@city", "REDUCE", "COUNT", "0", "AS", "n",
		"SORTBY", "2", "@n", "DESC", "LIMIT", "0", "5").(reply.Array)
	if got[0] != reply.Long(2) {
		t.Fatalf("count = %v, want 2", got[0])
	}
}

func TestEndToEndSynonyms(t *testing.T) {
	e := newTestEngine(t)
	execOK(t, e, "FT.CREATE", "idx", "SCHEMA", "t", "TEXT")
	execOK(t, e, "FT.SYNUPDATE", "idx", "g1", "hello", "hi")

	dump := e.Execute(0, "FT.SYNDUMP", "idx").(reply.Array)
	if len(dump) != 4 || dump[0] != reply.BulkString("hello") || dump[2] != reply.BulkString("hi") {
		t.Fatalf("dump = %v", dump)
	}
}

func TestExecuteUnknownCommand(t *testing.T) {
	e := newTestEngine(t)
	if got := e.Execute(0, "FT.EXPLAIN", "idx"); !reply.IsError(got) {
		t.Fatalf("reply = %v, want error", got)
	}
}

func TestExecuteArity(t *testing.T) {
	e := newTestEngine(t)

	got := e.Execute(0, "FT.INFO")
	errVal, ok := got.(reply.Error)
	if !ok || errVal.Message != "wrong number of arguments for 'ft.info' command" {
		t.Fatalf("reply = %v", got)
	}

	if got := e.Execute(0, "FT.SEARCH", "idx"); !reply.IsError(got) {
		t.Fatalf("reply = %v, want arity error", got)
	}
}

func TestExecuteDBRestriction(t *testing.T) {
	e := newTestEngine(t)
	got := e.Execute(1, "FT.CREATE", "idx", "SCHEMA", "t", "TEXT")
	if errVal, ok := got.(reply.Error); !ok || errVal.Message != "Cannot create index on db != 0" {
		t.Fatalf("reply = %v", got)
	}
}

func TestSetDocumentVisibleToSearch(t *testing.T) {
	e := newTestEngine(t)
	execOK(t, e, "FT.CREATE", "idx", "PREFIX", "1", "doc:", "SCHEMA", "body", "TEXT")

	e.SetDocument("doc:1", map[string]string{"body": "quick brown fox"})

	got := e.Execute(0, "FT.SEARCH", "idx", "fox", "NOCONTENT").(reply.Array)
	if got[0] != reply.Long(1) || got[1] != reply.BulkString("doc:1") {
		t.Fatalf("reply = %v", got)
	}
}

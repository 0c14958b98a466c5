package command

import (
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/shardsearch/internal/reply"
	"github.com/kailas-cloud/shardsearch/internal/shard"
)

func newTestFamily(t *testing.T, shards int) (*Family, *shard.Set) {
	t.Helper()
	set := shard.NewSet(shards, zap.NewNop())
	t.Cleanup(set.Close)
	return NewFamily(set, Config{RejectLegacyField: true}, zap.NewNop()), set
}

func seedDoc(set *shard.Set, key string, fields map[string]string) {
	owner := set.ShardForKey(key)
	tx := set.NewTransaction()
	tx.ScheduleSingleHop(func(_ *shard.Transaction, sh *shard.Shard) {
		if sh.ID() == owner.ID() {
			sh.Indices.SetDocument(key, fields)
		}
	})
}

func mustOK(t *testing.T, v reply.Value) {
	t.Helper()
	if v != reply.OK() {
		t.Fatalf("reply = %v, want +OK", v)
	}
}

func errMessage(t *testing.T, v reply.Value) string {
	t.Helper()
	errVal, ok := v.(reply.Error)
	if !ok {
		t.Fatalf("reply = %v, want error", v)
	}
	return errVal.Message
}

func ctx() *Context { return &Context{} }

func TestCreateInfoRoundTrip(t *testing.T) {
	f, _ := newTestFamily(t, 3)

	mustOK(t, f.Create(ctx(), []string{
		"idx", "ON", "JSON", "PREFIX", "1", "doc:", "SCHEMA", "$.a", "AS", "a", "TEXT"}))

	info := f.Info(ctx(), []string{"idx"}).(reply.Map)

	want := map[string]reply.Value{}
	for _, kv := range info {
		want[string(kv.Key.(reply.SimpleString))] = kv.Val
	}
	if want["index_name"] != reply.SimpleString("idx") {
		t.Fatalf("index_name = %v", want["index_name"])
	}
	def := want["index_definition"].(reply.Map)
	if def[0].Val != reply.SimpleString("JSON") || def[1].Val != reply.SimpleString("doc:") {
		t.Fatalf("index_definition = %v", def)
	}
	attrs := want["attributes"].(reply.Array)
	if len(attrs) != 1 {
		t.Fatalf("attributes = %v", attrs)
	}
	attr := attrs[0].(reply.Array)
	if attr[1] != reply.SimpleString("$.a") || attr[3] != reply.SimpleString("a") ||
		attr[5] != reply.SimpleString("TEXT") {
		t.Fatalf("attribute = %v", attr)
	}
	if want["num_docs"] != reply.Long(0) {
		t.Fatalf("num_docs = %v, want 0", want["num_docs"])
	}
}

func TestCreateDuplicate(t *testing.T) {
	f, _ := newTestFamily(t, 2)
	mustOK(t, f.Create(ctx(), []string{"idx", "ON", "HASH", "SCHEMA", "t", "TEXT"}))
	if got := errMessage(t, f.Create(ctx(), []string{"idx", "ON", "HASH", "SCHEMA", "t", "TEXT"})); got != "Index already exists" {
		t.Fatalf("error = %q", got)
	}
}

func TestCreateOnNonZeroDB(t *testing.T) {
	f, _ := newTestFamily(t, 1)
	got := errMessage(t, f.Create(&Context{DB: 1}, []string{"idx", "SCHEMA", "t", "TEXT"}))
	if got != "Cannot create index on db != 0" {
		t.Fatalf("error = %q", got)
	}
}

func TestDropIndexIdempotence(t *testing.T) {
	f, _ := newTestFamily(t, 3)
	mustOK(t, f.Create(ctx(), []string{"idx", "SCHEMA", "t", "TEXT"}))
	mustOK(t, f.DropIndex(ctx(), []string{"idx"}))
	if got := errMessage(t, f.DropIndex(ctx(), []string{"idx"})); got != "-Unknown Index name" {
		t.Fatalf("error = %q", got)
	}
}

func TestList(t *testing.T) {
	f, _ := newTestFamily(t, 2)
	if got := f.List(ctx(), nil).(reply.Array); len(got) != 0 {
		t.Fatalf("list = %v, want empty", got)
	}
	mustOK(t, f.Create(ctx(), []string{"idx", "SCHEMA", "t", "TEXT"}))
	got := f.List(ctx(), nil).(reply.Array)
	if len(got) != 1 || got[0] != reply.BulkString("idx") {
		t.Fatalf("list = %v, want [idx]", got)
	}
}

func TestSearchEmptyIndexNoContent(t *testing.T) {
	f, _ := newTestFamily(t, 2)
	mustOK(t, f.Create(ctx(), []string{"idx", "SCHEMA", "t", "TEXT"}))

	got := f.Search(ctx(), []string{"idx", "*", "LIMIT", "0", "10", "NOCONTENT"}).(reply.Array)
	if len(got) != 1 || got[0] != reply.Long(0) {
		t.Fatalf("reply = %v, want [0]", got)
	}
}

func TestSearchNoSuchIndex(t *testing.T) {
	f, _ := newTestFamily(t, 2)
	if got := errMessage(t, f.Search(ctx(), []string{"nope", "*"})); got != "nope: no such index" {
		t.Fatalf("error = %q", got)
	}
}

func TestSearchQuerySyntaxError(t *testing.T) {
	f, _ := newTestFamily(t, 1)
	mustOK(t, f.Create(ctx(), []string{"idx", "SCHEMA", "t", "TEXT"}))
	if got := errMessage(t, f.Search(ctx(), []string{"idx", "@broken:"})); got != "Query syntax error" {
		t.Fatalf("error = %q", got)
	}
}

func TestSearchAcrossShards(t *testing.T) {
	f, set := newTestFamily(t, 3)

	for _, kv := range []struct{ key, city string }{
		{"doc:1", "A"}, {"doc:2", "B"}, {"doc:3", "A"}, {"doc:4", "C"},
	} {
		seedDoc(set, kv.key, map[string]string{"city": kv.city, "body": "hello there"})
	}

	mustOK(t, f.Create(ctx(), []string{
		"idx", "ON", "HASH", "PREFIX", "1", "doc:", "SCHEMA",
		"body", "TEXT", "city", "TAG"}))

	got := f.Search(ctx(), []string{"idx", "@city:{A}", "NOCONTENT"}).(reply.Array)
	if got[0] != reply.Long(2) {
		t.Fatalf("total = %v, want 2", got[0])
	}
	keys := map[reply.Value]bool{got[1]: true, got[2]: true}
	if !keys[reply.BulkString("doc:1")] || !keys[reply.BulkString("doc:3")] {
		t.Fatalf("keys = %v", got)
	}
}

func TestAlterAddsFieldAndRebuilds(t *testing.T) {
	f, set := newTestFamily(t, 2)
	seedDoc(set, "doc:1", map[string]string{"t": "x", "city": "A"})

	mustOK(t, f.Create(ctx(), []string{"idx", "PREFIX", "1", "doc:", "SCHEMA", "t", "TEXT"}))
	mustOK(t, f.Alter(ctx(), []string{"idx", "SCHEMA", "ADD", "city", "TAG"}))

	got := f.Search(ctx(), []string{"idx", "@city:{A}", "NOCONTENT"}).(reply.Array)
	if got[0] != reply.Long(1) {
		t.Fatalf("total = %v, want 1 after ALTER", got[0])
	}
}

func TestAlterMissingIndex(t *testing.T) {
	f, _ := newTestFamily(t, 2)
	if got := errMessage(t, f.Alter(ctx(), []string{"idx", "SCHEMA", "ADD", "t", "TEXT"})); got != "Index not found" {
		t.Fatalf("error = %q", got)
	}
}

func TestAggregateGroupSortLimit(t *testing.T) {
	f, set := newTestFamily(t, 3)
	seedDoc(set, "doc:1", map[string]string{"city": "A"})
	seedDoc(set, "doc:2", map[string]string{"city": "A"})
	seedDoc(set, "doc:3", map[string]string{"city": "B"})

	mustOK(t, f.Create(ctx(), []string{
		"idx", "PREFIX", "1", "doc:", "SCHEMA", "city", "TAG"}))

	got := f.Aggregate(ctx(), []string{
		"idx", "*",
		"GROUPBY", "1", "@city", "REDUCE", "COUNT", "0", "AS", "n",
		"SORTBY", "2", "@n", "DESC",
		"LIMIT", "0", "5"}).(reply.Array)

	if got[0] != reply.Long(2) {
		t.Fatalf("count = %v, want 2", got[0])
	}
	first := got[1].(reply.Array)
	if first[1] != reply.BulkString("A") || first[3] != reply.Double(2) {
		t.Fatalf("first row = %v", first)
	}
	second := got[2].(reply.Array)
	if second[1] != reply.BulkString("B") || second[3] != reply.Double(1) {
		t.Fatalf("second row = %v", second)
	}
}

func TestTagVals(t *testing.T) {
	f, set := newTestFamily(t, 2)
	seedDoc(set, "doc:1", map[string]string{"city": "b,a"})
	seedDoc(set, "doc:2", map[string]string{"city": "a, c"})

	mustOK(t, f.Create(ctx(), []string{"idx", "PREFIX", "1", "doc:", "SCHEMA", "city", "TAG"}))

	got := f.TagVals(ctx(), []string{"idx", "city"}).(reply.Set)
	if len(got) != 3 || got[0] != reply.BulkString("a") ||
		got[1] != reply.BulkString("b") || got[2] != reply.BulkString("c") {
		t.Fatalf("tag vals = %v", got)
	}

	if got := errMessage(t, f.TagVals(ctx(), []string{"nope", "city"})); got != "-Unknown Index name" {
		t.Fatalf("error = %q", got)
	}
}

func TestSynUpdateSynDumpRoundTrip(t *testing.T) {
	f, _ := newTestFamily(t, 3)
	mustOK(t, f.Create(ctx(), []string{"idx", "SCHEMA", "t", "TEXT"}))

	mustOK(t, f.SynUpdate(ctx(), []string{"idx", "g1", "hello", "hi"}))

	got := f.SynDump(ctx(), []string{"idx"}).(reply.Array)
	if len(got) != 4 {
		t.Fatalf("dump = %v, want 2 term entries", got)
	}
	// terms sorted: hello, hi
	if got[0] != reply.BulkString("hello") || got[2] != reply.BulkString("hi") {
		t.Fatalf("terms = %v %v", got[0], got[2])
	}
	for _, i := range []int{1, 3} {
		ids := got[i].(reply.Array)
		if len(ids) != 1 || ids[0] != reply.BulkString("g1") {
			t.Fatalf("group ids = %v", ids)
		}
	}
}

func TestSynUpdateNoTerms(t *testing.T) {
	f, _ := newTestFamily(t, 1)
	mustOK(t, f.Create(ctx(), []string{"idx", "SCHEMA", "t", "TEXT"}))
	if got := errMessage(t, f.SynUpdate(ctx(), []string{"idx", "g1"})); got != "No terms specified" {
		t.Fatalf("error = %q", got)
	}
}

func TestSynUpdateSkipInitialScanAccepted(t *testing.T) {
	f, _ := newTestFamily(t, 1)
	mustOK(t, f.Create(ctx(), []string{"idx", "SCHEMA", "t", "TEXT"}))
	mustOK(t, f.SynUpdate(ctx(), []string{"idx", "g1", "SKIPINITIALSCAN", "hello"}))
}

func TestProfileSearchShape(t *testing.T) {
	f, set := newTestFamily(t, 2)
	seedDoc(set, "doc:1", map[string]string{"t": "hello"})
	mustOK(t, f.Create(ctx(), []string{"idx", "PREFIX", "1", "doc:", "SCHEMA", "t", "TEXT"}))

	got := f.Profile(ctx(), []string{"idx", "SEARCH", "QUERY", "*", "NOCONTENT"}).(reply.Array)
	if len(got) != 2 {
		t.Fatalf("profile reply = %v", got)
	}

	search := got[0].(reply.Array)
	if search[0] != reply.Long(1) {
		t.Fatalf("wrapped search total = %v", search[0])
	}

	profile := got[1].(reply.Array)
	if len(profile) != 3 { // summary + one per shard
		t.Fatalf("profile section = %v", profile)
	}
	summary := profile[0].(reply.Map)
	if summary[1].Key != reply.BulkString("hits") || summary[1].Val != reply.Long(1) {
		t.Fatalf("summary = %v", summary)
	}

	sawTree := false
	for _, shardEntry := range profile[1:] {
		m := shardEntry.(reply.Map)
		if m[1].Key != reply.BulkString("tree") {
			t.Fatalf("shard entry = %v", m)
		}
		if tree, ok := m[1].Val.(reply.Map); ok {
			sawTree = true
			if tree[1].Val != reply.SimpleString("Search") {
				t.Fatalf("tree root = %v", tree)
			}
		}
	}
	if !sawTree {
		t.Fatal("no shard produced a profile tree")
	}
}

func TestProfileRequiresSubcommand(t *testing.T) {
	f, _ := newTestFamily(t, 1)
	if got := errMessage(t, f.Profile(ctx(), []string{"idx", "QUERY", "*"})); got != "no `SEARCH` or `AGGREGATE` provided" {
		t.Fatalf("error = %q", got)
	}
}

package query

import (
	"encoding/binary"
	"math"
	"testing"
)

func encodeVector(vals ...float32) string {
	buf := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return string(buf)
}

func TestInitStar(t *testing.T) {
	var a SearchAlgorithm
	if !a.Init("*", nil) {
		t.Fatal("Init(*) failed")
	}
	if _, ok := a.Root().(Star); !ok {
		t.Fatalf("root = %T, want Star", a.Root())
	}
	if a.KnnScoreSortOption() != nil {
		t.Fatal("unexpected knn option")
	}
}

func TestInitTermAndFilters(t *testing.T) {
	var a SearchAlgorithm
	if !a.Init("hello @city:{Berlin} @price:[10 20]", nil) {
		t.Fatal("Init failed")
	}
	and, ok := a.Root().(And)
	if !ok || len(and.Nodes) != 3 {
		t.Fatalf("root = %#v, want And of 3", a.Root())
	}
	if term := and.Nodes[0].(Term); term.Word != "hello" {
		t.Fatalf("term = %q", term.Word)
	}
	if tag := and.Nodes[1].(TagMatch); tag.Field != "city" || tag.Value != "Berlin" {
		t.Fatalf("tag = %#v", tag)
	}
	rng := and.Nodes[2].(NumRange)
	if rng.Field != "price" || rng.Min != 10 || rng.Max != 20 {
		t.Fatalf("range = %#v", rng)
	}
}

func TestInitRangeInfinity(t *testing.T) {
	var a SearchAlgorithm
	if !a.Init("@price:[-inf +inf]", nil) {
		t.Fatal("Init failed")
	}
	rng := a.Root().(NumRange)
	if !math.IsInf(rng.Min, -1) || !math.IsInf(rng.Max, 1) {
		t.Fatalf("range = %#v", rng)
	}
}

func TestInitParamSubstitution(t *testing.T) {
	var a SearchAlgorithm
	if !a.Init("@city:{$c}", Params{"c": "Paris"}) {
		t.Fatal("Init failed")
	}
	if tag := a.Root().(TagMatch); tag.Value != "Paris" {
		t.Fatalf("substituted value = %q, want Paris", tag.Value)
	}
}

func TestInitKnn(t *testing.T) {
	params := Params{"vec": encodeVector(1, 0)}

	var a SearchAlgorithm
	if !a.Init("* =>[KNN 3 @v $vec]", params) {
		t.Fatal("Init failed")
	}
	knn, ok := a.Root().(Knn)
	if !ok {
		t.Fatalf("root = %T, want Knn", a.Root())
	}
	if knn.Limit != 3 || knn.Field != "v" || len(knn.Vector) != 2 {
		t.Fatalf("knn = %#v", knn)
	}
	if _, ok := knn.Base.(Star); !ok {
		t.Fatalf("knn base = %T, want Star", knn.Base)
	}

	opt := a.KnnScoreSortOption()
	if opt == nil || opt.Limit != 3 || opt.ScoreFieldAlias != "__v_score" {
		t.Fatalf("knn option = %#v", opt)
	}
}

func TestInitKnnAlias(t *testing.T) {
	params := Params{"vec": encodeVector(1)}
	var a SearchAlgorithm
	if !a.Init("* =>[KNN 2 @v $vec AS dist]", params) {
		t.Fatal("Init failed")
	}
	if opt := a.KnnScoreSortOption(); opt.ScoreFieldAlias != "dist" {
		t.Fatalf("alias = %q, want dist", opt.ScoreFieldAlias)
	}
}

func TestInitRejectsMalformed(t *testing.T) {
	bad := []struct {
		query  string
		params Params
	}{
		{"", nil},
		{"@f:", nil},
		{"@f:{open", nil},
		{"@f:[1]", nil},
		{"@f:[a b]", nil},
		{"* =>[KNN 0 @v $vec]", Params{"vec": encodeVector(1)}},
		{"* =>[KNN 2 @v $missing]", nil},
		{"* =>[KNN x @v $vec]", Params{"vec": encodeVector(1)}},
	}
	for _, tc := range bad {
		var a SearchAlgorithm
		if a.Init(tc.query, tc.params) {
			t.Errorf("Init(%q) accepted a malformed query", tc.query)
		}
	}
}

func TestProfilingFlag(t *testing.T) {
	var a SearchAlgorithm
	a.Init("*", nil)
	if a.ProfilingEnabled() {
		t.Fatal("profiling on by default")
	}
	a.EnableProfiling()
	if !a.ProfilingEnabled() {
		t.Fatal("EnableProfiling had no effect")
	}
}

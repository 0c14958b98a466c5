package docindex

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/shardsearch/internal/doc"
	"github.com/kailas-cloud/shardsearch/internal/indexdef"
	"github.com/kailas-cloud/shardsearch/internal/plan"
	"github.com/kailas-cloud/shardsearch/internal/query"
)

// Info is the per-shard index summary returned by GetInfo.
type Info struct {
	BaseIndex *indexdef.DocIndex
	NumDocs   int
}

// ShardDocIndex is one shard's view of an index: the published definition
// plus the set of indexed keys. Owned by the shard executor.
type ShardDocIndex struct {
	name  string
	def   *indexdef.DocIndex
	store *Store
	keys  map[string]struct{}
	syn   *Synonyms
}

func newShardDocIndex(name string, def *indexdef.DocIndex, store *Store) *ShardDocIndex {
	return &ShardDocIndex{
		name:  name,
		def:   def,
		store: store,
		keys:  make(map[string]struct{}),
		syn:   NewSynonyms(),
	}
}

// GetInfo returns the definition and document count.
func (i *ShardDocIndex) GetInfo() Info {
	return Info{BaseIndex: i.def, NumDocs: len(i.keys)}
}

// NumDocs returns the number of indexed documents.
func (i *ShardDocIndex) NumDocs() int { return len(i.keys) }

// GetSynonyms returns the shard-local synonym table.
func (i *ShardDocIndex) GetSynonyms() *Synonyms { return i.syn }

// Rebuild re-scans the whole store.
func (i *ShardDocIndex) Rebuild() {
	i.keys = make(map[string]struct{})
	i.store.ForEach(func(key string, _ map[string]string) {
		if i.def.Matches(key) {
			i.keys[key] = struct{}{}
		}
	})
}

// RebuildForGroup installs a synonym group and re-indexes only documents
// containing any affected term.
func (i *ShardDocIndex) RebuildForGroup(groupID string, terms []string) {
	affected := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		for _, exp := range i.syn.Expand(stem(t)) {
			affected[exp] = struct{}{}
		}
		affected[stem(t)] = struct{}{}
	}

	i.syn.UpdateGroup(groupID, terms)

	for key := range i.keys {
		fields, ok := i.store.Get(key)
		if !ok {
			continue
		}
		if i.containsAnyTerm(fields, affected) {
			i.onDocument(key)
		}
	}
}

func (i *ShardDocIndex) containsAnyTerm(fields map[string]string, terms map[string]struct{}) bool {
	for _, ident := range i.def.Schema.Idents() {
		f := i.def.Schema.Fields[ident]
		if f.Type != indexdef.Text {
			continue
		}
		raw, ok := fields[ident]
		if !ok {
			continue
		}
		for _, tok := range tokenize(raw, i.def.Options.Stopwords) {
			if _, hit := terms[tok]; hit {
				return true
			}
		}
	}
	return false
}

func (i *ShardDocIndex) onDocument(key string) {
	if i.def.Matches(key) {
		i.keys[key] = struct{}{}
	} else {
		delete(i.keys, key)
	}
}

func (i *ShardDocIndex) onRemove(key string) {
	delete(i.keys, key)
}

// GetTagVals collects the distinct values of a tag field across the shard's
// documents.
func (i *ShardDocIndex) GetTagVals(fieldName string) ([]string, error) {
	ident, f, ok := i.def.Schema.Lookup(fieldName)
	if !ok {
		return nil, fmt.Errorf("No such field `%s`", fieldName)
	}
	if f.Type != indexdef.Tag {
		return nil, fmt.Errorf("Field `%s` is not a tag field", fieldName)
	}
	params := f.Params.(indexdef.TagParams)

	set := make(map[string]struct{})
	for key := range i.keys {
		fields, ok := i.store.Get(key)
		if !ok {
			continue
		}
		raw, ok := fields[ident]
		if !ok {
			continue
		}
		for _, v := range splitTags(raw, params.Separator, params.CaseSensitive) {
			set[v] = struct{}{}
		}
	}

	vals := make([]string, 0, len(set))
	for v := range set {
		vals = append(vals, v)
	}
	sort.Strings(vals)
	return vals, nil
}

// Search evaluates the query over the shard's documents and serializes
// matches per the search plan.
func (i *ShardDocIndex) Search(params *plan.SearchParams, algo *query.SearchAlgorithm) doc.SearchResult {
	start := time.Now()

	matched, knnNode, err := i.evalAll(algo.Root())
	if err != nil {
		return doc.SearchResult{Error: err.Error()}
	}

	res := doc.SearchResult{TotalHits: len(matched)}
	res.Docs = make([]doc.SerializedSearchDoc, 0, len(matched))
	for _, m := range matched {
		res.Docs = append(res.Docs, i.serialize(m, params, knnNode))
	}

	if algo.ProfilingEnabled() {
		res.Profile = i.buildProfile(algo.Root(), len(i.keys), len(matched), time.Since(start))
	}
	return res
}

// SearchForAggregator evaluates the query and returns one row per match
// holding the document's schema fields, coerced by field type and keyed by
// alias, plus any LOAD fields; other document fields are not included.
func (i *ShardDocIndex) SearchForAggregator(
	params *plan.AggregateParams, algo *query.SearchAlgorithm,
) ([]map[string]doc.Value, error) {
	matched, _, err := i.evalAll(algo.Root())
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]doc.Value, 0, len(matched))
	for _, m := range matched {
		row := make(map[string]doc.Value)
		for _, ident := range i.def.Schema.Idents() {
			f := i.def.Schema.Fields[ident]
			if raw, ok := m.fields[ident]; ok {
				row[f.Alias] = coerceValue(raw, f.Type)
			}
		}
		// Loaded fields may reference unindexed document fields.
		for _, ref := range params.LoadFields {
			if _, ok := row[ref.OutputName()]; ok {
				continue
			}
			if raw, ok := m.fields[ref.Name]; ok {
				row[ref.OutputName()] = raw
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

type match struct {
	key      string
	fields   map[string]string
	knnScore float64
}

// evalAll collects all matching documents. For KNN queries it also computes
// the per-document vector score.
func (i *ShardDocIndex) evalAll(root query.Node) ([]match, *query.Knn, error) {
	base := root
	var knn *query.Knn
	if k, ok := root.(query.Knn); ok {
		knn = &k
		base = k.Base
	}

	var out []match
	for key := range i.keys {
		fields, ok := i.store.Get(key)
		if !ok {
			continue
		}
		if !i.matches(fields, base) {
			continue
		}
		m := match{key: key, fields: fields}
		if knn != nil {
			vec := decodeDocVector(fields[i.resolveIdent(knn.Field)])
			if vec == nil {
				continue
			}
			score, err := i.knnScore(knn, vec)
			if err != nil {
				return nil, nil, err
			}
			m.knnScore = score
		}
		out = append(out, m)
	}

	// Shard-local output order is deterministic by key; cross-shard order is
	// up to the merger.
	sort.Slice(out, func(a, b int) bool { return out[a].key < out[b].key })
	return out, knn, nil
}

func (i *ShardDocIndex) resolveIdent(name string) string {
	if ident, _, ok := i.def.Schema.Lookup(name); ok {
		return ident
	}
	return name
}

func (i *ShardDocIndex) knnScore(knn *query.Knn, vec []float32) (float64, error) {
	_, f, ok := i.def.Schema.Lookup(knn.Field)
	if !ok || f.Type != indexdef.Vector {
		return 0, fmt.Errorf("Unknown vector field `%s`", knn.Field)
	}
	vp := f.Params.(indexdef.VectorParams)
	if len(vec) != vp.Dim || len(knn.Vector) != vp.Dim {
		return 0, fmt.Errorf("Vector dimension mismatch for field `%s`", knn.Field)
	}
	return distance(knn.Vector, vec, vp.Sim), nil
}

// distance returns a score where smaller means more similar, so the merger's
// ascending KNN order ranks best matches first.
func distance(a, b []float32, sim indexdef.Similarity) float64 {
	var dot, na, nb, l2 float64
	for j := range a {
		av, bv := float64(a[j]), float64(b[j])
		dot += av * bv
		na += av * av
		nb += bv * bv
		l2 += (av - bv) * (av - bv)
	}
	switch sim {
	case indexdef.IP:
		return -dot
	case indexdef.Cosine:
		if na == 0 || nb == 0 {
			return 1
		}
		return 1 - dot/math.Sqrt(na*nb)
	default:
		return math.Sqrt(l2)
	}
}

func (i *ShardDocIndex) matches(fields map[string]string, node query.Node) bool {
	switch n := node.(type) {
	case nil:
		return false
	case query.Star:
		return true
	case query.And:
		for _, c := range n.Nodes {
			if !i.matches(fields, c) {
				return false
			}
		}
		return true
	case query.Term:
		return i.matchTerm(fields, n.Word)
	case query.TagMatch:
		return i.matchTag(fields, n)
	case query.NumRange:
		return i.matchRange(fields, n)
	case query.Knn:
		return i.matches(fields, n.Base)
	}
	return false
}

func (i *ShardDocIndex) matchTerm(fields map[string]string, word string) bool {
	wanted := make(map[string]struct{})
	for _, t := range i.syn.Expand(word) {
		wanted[stem(t)] = struct{}{}
	}

	for _, ident := range i.def.Schema.Idents() {
		f := i.def.Schema.Fields[ident]
		if f.Type != indexdef.Text || f.Flags&indexdef.NoIndex != 0 {
			continue
		}
		raw, ok := fields[ident]
		if !ok {
			continue
		}
		for _, tok := range tokenize(raw, i.def.Options.Stopwords) {
			if _, hit := wanted[tok]; hit {
				return true
			}
		}
	}
	return false
}

func (i *ShardDocIndex) matchTag(fields map[string]string, n query.TagMatch) bool {
	ident, f, ok := i.def.Schema.Lookup(n.Field)
	if !ok || f.Type != indexdef.Tag || f.Flags&indexdef.NoIndex != 0 {
		return false
	}
	params := f.Params.(indexdef.TagParams)
	raw, ok := fields[ident]
	if !ok {
		return false
	}
	want := n.Value
	if !params.CaseSensitive {
		want = strings.ToLower(want)
	}
	for _, v := range splitTags(raw, params.Separator, params.CaseSensitive) {
		if v == want {
			return true
		}
	}
	return false
}

func (i *ShardDocIndex) matchRange(fields map[string]string, n query.NumRange) bool {
	ident, f, ok := i.def.Schema.Lookup(n.Field)
	if !ok || f.Type != indexdef.Numeric || f.Flags&indexdef.NoIndex != 0 {
		return false
	}
	raw, ok := fields[ident]
	if !ok {
		return false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return false
	}
	return v >= n.Min && v <= n.Max
}

func (i *ShardDocIndex) serialize(m match, params *plan.SearchParams, knn *query.Knn) doc.SerializedSearchDoc {
	out := doc.SerializedSearchDoc{Key: m.key, KnnScore: m.knnScore}

	switch {
	case params.IdsOnly():
		// keys only
	case params.HasReturn:
		for _, ref := range params.ReturnFields {
			out.Values = append(out.Values,
				doc.FieldValue{Field: ref.OutputName(), Value: i.fieldValue(m.fields, ref.Name)})
		}
	case params.HasLoad:
		for _, ref := range params.LoadFields {
			out.Values = append(out.Values,
				doc.FieldValue{Field: ref.OutputName(), Value: i.fieldValue(m.fields, ref.Name)})
		}
	default:
		names := make([]string, 0, len(m.fields))
		for name := range m.fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			var v doc.Value = m.fields[name]
			if _, f, ok := i.def.Schema.Lookup(name); ok {
				v = coerceValue(m.fields[name], f.Type)
			}
			out.Values = append(out.Values, doc.FieldValue{Field: name, Value: v})
		}
	}

	if params.SortOption != nil {
		out.SortScore = i.fieldValue(m.fields, params.SortOption.Field.Name)
	}
	return out
}

// fieldValue resolves a user-facing field name against the schema and coerces
// the stored string accordingly; unindexed fields pass through as strings.
func (i *ShardDocIndex) fieldValue(fields map[string]string, name string) doc.Value {
	ident, f, ok := i.def.Schema.Lookup(name)
	if !ok {
		if raw, present := fields[name]; present {
			return raw
		}
		return nil
	}
	raw, present := fields[ident]
	if !present {
		return nil
	}
	return coerceValue(raw, f.Type)
}

func coerceValue(raw string, t indexdef.FieldType) doc.Value {
	if t == indexdef.Numeric {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v
		}
		return nil
	}
	return raw
}

// decodeDocVector accepts the binary little-endian float32 encoding used on
// the wire.
func decodeDocVector(raw string) []float32 {
	if raw == "" || len(raw)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(raw)/4)
	for j := range vec {
		bits := uint32(raw[j*4]) | uint32(raw[j*4+1])<<8 |
			uint32(raw[j*4+2])<<16 | uint32(raw[j*4+3])<<24
		vec[j] = math.Float32frombits(bits)
	}
	return vec
}

func (i *ShardDocIndex) buildProfile(root query.Node, scanned, matched int, took time.Duration) *doc.Profile {
	events := []doc.ProfileEvent{{
		Descr:        "Search",
		Depth:        0,
		Micros:       took.Microseconds(),
		NumProcessed: scanned,
	}}
	events = append(events, nodeEvents(root, 1, matched)...)
	return &doc.Profile{Events: events}
}

func nodeEvents(node query.Node, depth, processed int) []doc.ProfileEvent {
	var descr string
	var children []query.Node
	switch n := node.(type) {
	case query.Star:
		descr = "Star"
	case query.Term:
		descr = "Term{" + n.Word + "}"
	case query.TagMatch:
		descr = "Tag{" + n.Field + "}"
	case query.NumRange:
		descr = "Numeric{" + n.Field + "}"
	case query.And:
		descr = "And"
		children = n.Nodes
	case query.Knn:
		descr = "Knn{" + n.Field + "}"
		children = []query.Node{n.Base}
	default:
		return nil
	}

	events := []doc.ProfileEvent{{Descr: descr, Depth: depth, NumProcessed: processed}}
	for _, c := range children {
		events = append(events, nodeEvents(c, depth+1, processed)...)
	}
	return events
}

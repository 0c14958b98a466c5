// Package indexdef holds the normalized definition of a secondary index:
// document kind, key prefix, schema and options. Definitions are constructed
// by the coordinator and published to every shard; once published they are
// treated as immutable. ALTER builds a new definition and replaces the old
// one wholesale.
package indexdef

import (
	"strings"
)

// KeyType is the document format an index covers.
type KeyType string

// Document kinds.
const (
	Hash KeyType = "HASH"
	JSON KeyType = "JSON"
)

// FieldType is the indexing type of a schema field.
type FieldType string

// Field types.
const (
	Tag     FieldType = "TAG"
	Text    FieldType = "TEXT"
	Numeric FieldType = "NUMERIC"
	Vector  FieldType = "VECTOR"
)

// Flag is a bit set of field behavior switches.
type Flag uint8

// Field flags.
const (
	Sortable Flag = 1 << iota
	NoIndex
)

// VectorAlgorithm selects the vector index structure.
type VectorAlgorithm uint8

// Vector algorithms.
const (
	HNSW VectorAlgorithm = iota
	Flat
)

// Similarity is the vector distance metric.
type Similarity uint8

// Similarity metrics.
const (
	L2 Similarity = iota
	IP
	Cosine
)

// String returns the wire name of the metric.
func (s Similarity) String() string {
	switch s {
	case IP:
		return "IP"
	case Cosine:
		return "COSINE"
	default:
		return "L2"
	}
}

// Defaults for type-specific parameters.
const (
	DefaultSeparator      = ','
	DefaultBlockSize      = 1024
	DefaultVectorCapacity = 1000
	DefaultHnswM          = 16
	DefaultHnswEfCon      = 200
)

// Params is the type-specific parameter variant of a schema field. The
// dynamic type must match the field's FieldType discriminant by construction.
type Params interface{ isParams() }

// TagParams are parameters of TAG fields.
type TagParams struct {
	Separator      byte
	CaseSensitive  bool
	WithSuffixTrie bool
}

// TextParams are parameters of TEXT fields.
type TextParams struct {
	WithSuffixTrie bool
}

// NumericParams are parameters of NUMERIC fields.
type NumericParams struct {
	BlockSize int
}

// VectorParams are parameters of VECTOR fields.
type VectorParams struct {
	Algorithm          VectorAlgorithm
	Dim                int
	Sim                Similarity
	Capacity           int
	HnswM              int
	HnswEfConstruction int
}

func (TagParams) isParams()     {}
func (TextParams) isParams()    {}
func (NumericParams) isParams() {}
func (VectorParams) isParams()  {}

// NewTagParams returns TagParams with defaults applied.
func NewTagParams() TagParams { return TagParams{Separator: DefaultSeparator} }

// NewNumericParams returns NumericParams with defaults applied.
func NewNumericParams() NumericParams { return NumericParams{BlockSize: DefaultBlockSize} }

// NewVectorParams returns VectorParams with defaults applied.
func NewVectorParams() VectorParams {
	return VectorParams{
		Algorithm:          HNSW,
		Sim:                L2,
		Capacity:           DefaultVectorCapacity,
		HnswM:              DefaultHnswM,
		HnswEfConstruction: DefaultHnswEfCon,
	}
}

// SchemaField describes one indexed field.
type SchemaField struct {
	Type   FieldType
	Flags  Flag
	Alias  string // user-facing name; equals the identifier when no AS clause was given
	Params Params
}

// Schema is an ordered mapping of field identifiers to descriptors plus an
// alias lookup table. The identifier is used for physical lookup, the alias
// for user-facing naming.
type Schema struct {
	idents     []string
	Fields     map[string]SchemaField
	FieldNames map[string]string // alias -> identifier
}

// NewSchema creates an empty schema.
func NewSchema() Schema {
	return Schema{
		Fields:     make(map[string]SchemaField),
		FieldNames: make(map[string]string),
	}
}

// HasAlias reports whether an alias is already taken.
func (s *Schema) HasAlias(alias string) bool {
	_, ok := s.FieldNames[alias]
	return ok
}

// Add registers a field under its identifier and alias.
func (s *Schema) Add(ident string, f SchemaField) {
	if _, ok := s.Fields[ident]; !ok {
		s.idents = append(s.idents, ident)
	}
	s.Fields[ident] = f
	s.FieldNames[f.Alias] = ident
}

// Idents returns the field identifiers in insertion order.
func (s *Schema) Idents() []string { return s.idents }

// Lookup resolves a user-facing name (alias or identifier) to the field
// identifier and descriptor.
func (s *Schema) Lookup(name string) (string, SchemaField, bool) {
	if ident, ok := s.FieldNames[name]; ok {
		return ident, s.Fields[ident], true
	}
	if f, ok := s.Fields[name]; ok {
		return name, f, true
	}
	return "", SchemaField{}, false
}

// Merge inserts the other schema's entries that are not present yet.
// Existing identifiers and aliases keep their current definitions.
func (s *Schema) Merge(other Schema) {
	for _, ident := range other.idents {
		if _, ok := s.Fields[ident]; ok {
			continue
		}
		s.Add(ident, other.Fields[ident])
	}
	for alias, ident := range other.FieldNames {
		if _, ok := s.FieldNames[alias]; !ok {
			s.FieldNames[alias] = ident
		}
	}
}

// Options holds index-level options.
type Options struct {
	Stopwords map[string]struct{}
}

// DocIndex is the full index definition.
type DocIndex struct {
	Type    KeyType
	Prefix  string
	Schema  Schema
	Options Options
}

// New returns an empty definition with defaults (HASH, empty prefix).
func New() *DocIndex {
	return &DocIndex{Type: Hash, Schema: NewSchema()}
}

// Clone returns a deep copy of the definition. Used by ALTER to build a
// replacement without mutating the published one.
func (d *DocIndex) Clone() *DocIndex {
	c := &DocIndex{Type: d.Type, Prefix: d.Prefix, Schema: NewSchema()}
	for _, ident := range d.Schema.idents {
		c.Schema.Add(ident, d.Schema.Fields[ident])
	}
	for alias, ident := range d.Schema.FieldNames {
		c.Schema.FieldNames[alias] = ident
	}
	if d.Options.Stopwords != nil {
		c.Options.Stopwords = make(map[string]struct{}, len(d.Options.Stopwords))
		for w := range d.Options.Stopwords {
			c.Options.Stopwords[w] = struct{}{}
		}
	}
	return c
}

// Matches reports whether a key falls under the index prefix.
func (d *DocIndex) Matches(key string) bool {
	return strings.HasPrefix(key, d.Prefix)
}

// IsValidJSONPath performs a syntactic check of a JSON document path:
// `$` followed by `.name`, `[<num>]` or `["name"]` segments.
func IsValidJSONPath(path string) bool {
	if len(path) == 0 || path[0] != '$' {
		return false
	}
	rest := path[1:]
	for len(rest) > 0 {
		switch rest[0] {
		case '.':
			rest = rest[1:]
			if len(rest) == 0 || !isIdentChar(rest[0]) {
				return false
			}
			for len(rest) > 0 && isIdentChar(rest[0]) {
				rest = rest[1:]
			}
		case '[':
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return false
			}
			inner := rest[1:end]
			if !isIndexSelector(inner) {
				return false
			}
			rest = rest[end+1:]
		default:
			return false
		}
	}
	return true
}

func isIdentChar(c byte) bool {
	return c == '_' || c == '*' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isIndexSelector(s string) bool {
	if len(s) == 0 {
		return false
	}
	if s == "*" {
		return true
	}
	if s[0] == '"' || s[0] == '\'' {
		return len(s) >= 2 && s[len(s)-1] == s[0]
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

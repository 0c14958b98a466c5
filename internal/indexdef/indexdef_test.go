package indexdef

import "testing"

func TestIsValidJSONPath(t *testing.T) {
	valid := []string{"$", "$.a", "$.a.b", "$.a_b1", "$[0]", `$["x"]`, "$.items[2].name", "$.*"}
	for _, p := range valid {
		if !IsValidJSONPath(p) {
			t.Errorf("IsValidJSONPath(%q) = false, want true", p)
		}
	}

	invalid := []string{"", "a", "$.", "$[", "$[]", "$[x]", "$.a..b", "$a"}
	for _, p := range invalid {
		if IsValidJSONPath(p) {
			t.Errorf("IsValidJSONPath(%q) = true, want false", p)
		}
	}
}

func TestSchemaAddAndLookup(t *testing.T) {
	s := NewSchema()
	s.Add("$.a", SchemaField{Type: Text, Alias: "a", Params: TextParams{}})
	s.Add("price", SchemaField{Type: Numeric, Alias: "price", Params: NewNumericParams()})

	if got := s.Idents(); len(got) != 2 || got[0] != "$.a" || got[1] != "price" {
		t.Fatalf("Idents = %v, want [$.a price]", got)
	}

	ident, f, ok := s.Lookup("a")
	if !ok || ident != "$.a" || f.Type != Text {
		t.Fatalf("Lookup by alias failed: %q %v %v", ident, f, ok)
	}
	ident, _, ok = s.Lookup("price")
	if !ok || ident != "price" {
		t.Fatalf("Lookup by identifier failed: %q %v", ident, ok)
	}
	if _, _, ok := s.Lookup("missing"); ok {
		t.Fatal("Lookup of unknown name succeeded")
	}
}

func TestSchemaMergeKeepsExisting(t *testing.T) {
	s := NewSchema()
	s.Add("name", SchemaField{Type: Text, Alias: "name", Params: TextParams{}})

	other := NewSchema()
	other.Add("name", SchemaField{Type: Tag, Alias: "name", Params: NewTagParams()})
	other.Add("age", SchemaField{Type: Numeric, Alias: "age", Params: NewNumericParams()})

	s.Merge(other)

	if s.Fields["name"].Type != Text {
		t.Fatal("Merge must not overwrite an existing field")
	}
	if s.Fields["age"].Type != Numeric {
		t.Fatal("Merge must insert new fields")
	}
	if got := len(s.Idents()); got != 2 {
		t.Fatalf("Idents count = %d, want 2", got)
	}
}

func TestDocIndexClone(t *testing.T) {
	d := New()
	d.Type = JSON
	d.Prefix = "doc:"
	d.Schema.Add("$.a", SchemaField{Type: Text, Alias: "a", Params: TextParams{}})
	d.Options.Stopwords = map[string]struct{}{"the": {}}

	c := d.Clone()
	c.Schema.Add("$.b", SchemaField{Type: Tag, Alias: "b", Params: NewTagParams()})
	c.Options.Stopwords["and"] = struct{}{}

	if len(d.Schema.Idents()) != 1 {
		t.Fatal("mutating the clone leaked into the original schema")
	}
	if _, ok := d.Options.Stopwords["and"]; ok {
		t.Fatal("mutating the clone leaked into the original stopwords")
	}
	if c.Type != JSON || c.Prefix != "doc:" {
		t.Fatalf("clone lost scalar fields: %v %v", c.Type, c.Prefix)
	}
}

func TestDocIndexMatches(t *testing.T) {
	d := New()
	d.Prefix = "doc:"
	if !d.Matches("doc:1") || d.Matches("user:1") {
		t.Fatal("prefix gating broken")
	}
}

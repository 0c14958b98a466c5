package docindex

import (
	"strings"

	"github.com/kljensen/snowball"
)

// stem normalizes a single word. Falls back to the lowercased word when the
// stemmer rejects it (non-english input, digits).
func stem(word string) string {
	s, err := snowball.Stem(word, "english", false)
	if err != nil || s == "" {
		return strings.ToLower(word)
	}
	return s
}

// tokenize splits text into lowercase stemmed terms, dropping stopwords.
func tokenize(text string, stopwords map[string]struct{}) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !(r == '_' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
	})

	out := make([]string, 0, len(fields))
	for _, w := range fields {
		lw := strings.ToLower(w)
		if _, ok := stopwords[lw]; ok {
			continue
		}
		out = append(out, stem(lw))
	}
	return out
}

// splitTags splits a tag field value on the separator, trimming surrounding
// space. Values are lowercased unless the field is case sensitive.
func splitTags(value string, sep byte, caseSensitive bool) []string {
	parts := strings.Split(value, string(sep))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !caseSensitive {
			p = strings.ToLower(p)
		}
		out = append(out, p)
	}
	return out
}

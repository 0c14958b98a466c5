package docindex

// Synonyms is the shard-local synonym table: group id to its term set.
type Synonyms struct {
	groups map[string]map[string]struct{}
}

// NewSynonyms creates an empty synonym table.
func NewSynonyms() *Synonyms {
	return &Synonyms{groups: make(map[string]map[string]struct{})}
}

// GetGroups returns the group id to term set mapping.
func (s *Synonyms) GetGroups() map[string]map[string]struct{} {
	return s.groups
}

// UpdateGroup replaces (or creates) a group with the given terms.
func (s *Synonyms) UpdateGroup(groupID string, terms []string) {
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		set[t] = struct{}{}
	}
	s.groups[groupID] = set
}

// Expand returns the term together with every term sharing a group with it.
func (s *Synonyms) Expand(term string) []string {
	out := []string{term}
	seen := map[string]struct{}{term: {}}
	for _, group := range s.groups {
		if _, ok := group[term]; !ok {
			continue
		}
		for t := range group {
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

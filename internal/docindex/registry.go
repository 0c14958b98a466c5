package docindex

import (
	"sort"

	"go.uber.org/zap"

	"github.com/kailas-cloud/shardsearch/internal/indexdef"
)

// Registry is the per-shard index registry. It is mutated only by the owning
// shard's executor.
type Registry struct {
	store   *Store
	indices map[string]*ShardDocIndex
	logger  *zap.Logger
}

// NewRegistry creates a registry over the shard's document store.
func NewRegistry(store *Store, logger *zap.Logger) *Registry {
	return &Registry{
		store:   store,
		indices: make(map[string]*ShardDocIndex),
		logger:  logger,
	}
}

// GetIndex returns the index with the given name, or nil.
func (r *Registry) GetIndex(name string) *ShardDocIndex {
	return r.indices[name]
}

// InitIndex installs a published definition under name and builds the index
// over the existing documents.
func (r *Registry) InitIndex(name string, def *indexdef.DocIndex) {
	idx := newShardDocIndex(name, def, r.store)
	idx.Rebuild()
	r.indices[name] = idx
	r.logger.Debug("index initialized",
		zap.String("index", name), zap.Int("docs", idx.NumDocs()))
}

// DropIndex removes the index. Reports whether it existed.
func (r *Registry) DropIndex(name string) bool {
	if _, ok := r.indices[name]; !ok {
		return false
	}
	delete(r.indices, name)
	return true
}

// GetIndexNames returns the registered index names, sorted.
func (r *Registry) GetIndexNames() []string {
	names := make([]string, 0, len(r.indices))
	for name := range r.indices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetDocument stores a document and updates index memberships.
func (r *Registry) SetDocument(key string, fields map[string]string) {
	r.store.Set(key, fields)
	for _, idx := range r.indices {
		idx.onDocument(key)
	}
}

// DeleteDocument removes a document and its index memberships.
func (r *Registry) DeleteDocument(key string) {
	r.store.Delete(key)
	for _, idx := range r.indices {
		idx.onRemove(key)
	}
}

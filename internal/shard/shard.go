// Package shard implements the shard set and the transaction runtime the
// coordinator dispatches closures through. Each shard runs a dedicated
// single-threaded executor that owns the shard's store and index registry;
// cross-shard work happens only via transactions.
package shard

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/shardsearch/internal/docindex"
)

// Shard is one partition of the key space with its own executor.
type Shard struct {
	id      int
	tasks   chan func()
	done    sync.WaitGroup
	Indices *docindex.Registry
}

// ID returns the shard's index in the set.
func (s *Shard) ID() int { return s.id }

func (s *Shard) run() {
	defer s.done.Done()
	for task := range s.tasks {
		task()
	}
}

// submit runs fn on the shard executor and waits for it to finish.
func (s *Shard) submit(fn func()) {
	var wg sync.WaitGroup
	wg.Add(1)
	s.tasks <- func() {
		defer wg.Done()
		fn()
	}
	wg.Wait()
}

// Set is the process-local shard set.
type Set struct {
	shards []*Shard
	txMu   sync.Mutex
	logger *zap.Logger
}

// NewSet starts n shard executors.
func NewSet(n int, logger *zap.Logger) *Set {
	if n < 1 {
		n = 1
	}
	set := &Set{logger: logger}
	for id := 0; id < n; id++ {
		store := docindex.NewStore()
		sh := &Shard{
			id:      id,
			tasks:   make(chan func(), 1),
			Indices: docindex.NewRegistry(store, logger.With(zap.Int("shard", id))),
		}
		sh.done.Add(1)
		go sh.run()
		set.shards = append(set.shards, sh)
	}
	return set
}

// Size returns the number of shards.
func (s *Set) Size() int { return len(s.shards) }

// Shard returns the shard with the given id.
func (s *Set) Shard(id int) *Shard { return s.shards[id] }

// ShardForKey routes a key to its owning shard.
func (s *Set) ShardForKey(key string) *Shard {
	var h uint32 = 2166136261
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= 16777619
	}
	return s.shards[int(h)%len(s.shards)]
}

// Close stops all executors and waits for them to drain.
func (s *Set) Close() {
	for _, sh := range s.shards {
		close(sh.tasks)
	}
	for _, sh := range s.shards {
		sh.done.Wait()
	}
}

// Callback is a closure dispatched to every shard of a hop. It runs on the
// shard's executor and must only perform bounded synchronous work on
// shard-local state.
type Callback func(tx *Transaction, sh *Shard)

// Transaction is a logical multi-hop transaction over the whole shard set.
// The first hop acquires the set-wide transaction slot; no other writer to
// the same logical keys may interleave between hops until the transaction is
// concluded.
type Transaction struct {
	set       *Set
	id        uuid.UUID
	started   bool
	concluded bool
}

// NewTransaction opens a transaction on the set.
func (s *Set) NewTransaction() *Transaction {
	return &Transaction{set: s, id: uuid.New()}
}

// ID returns the transaction id (tracing only).
func (t *Transaction) ID() uuid.UUID { return t.id }

// Execute runs cb once per shard and blocks until every shard completed the
// hop. With final set, the transaction is concluded afterwards; otherwise it
// may be extended with further hops.
func (t *Transaction) Execute(cb Callback, final bool) {
	if t.concluded {
		return
	}
	if !t.started {
		t.set.txMu.Lock()
		t.started = true
		t.set.logger.Debug("transaction started", zap.String("tx", t.id.String()))
	}

	var wg sync.WaitGroup
	wg.Add(len(t.set.shards))
	for _, sh := range t.set.shards {
		sh := sh
		sh.tasks <- func() {
			defer wg.Done()
			cb(t, sh)
		}
	}
	wg.Wait()

	if final {
		t.Conclude()
	}
}

// ScheduleSingleHop runs cb once per shard and concludes atomically.
func (t *Transaction) ScheduleSingleHop(cb Callback) {
	t.Execute(cb, true)
}

// Conclude releases the transaction slot without further work.
func (t *Transaction) Conclude() {
	if t.concluded {
		return
	}
	t.concluded = true
	if t.started {
		t.set.txMu.Unlock()
		t.set.logger.Debug("transaction concluded", zap.String("tx", t.id.String()))
	}
}

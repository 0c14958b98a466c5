// Package engine is the composition root of the search subsystem: it owns
// the shard set and the command registry, and dispatches argument vectors to
// the command family.
package engine

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/shardsearch/internal/command"
	"github.com/kailas-cloud/shardsearch/internal/metrics"
	"github.com/kailas-cloud/shardsearch/internal/reply"
	"github.com/kailas-cloud/shardsearch/internal/shard"
)

// Config holds engine settings.
type Config struct {
	Shards            int
	RejectLegacyField bool
}

type handler func(ctx *command.Context, args []string) reply.Value

type commandDesc struct {
	handler handler
	// arity counts the verb itself, Redis style. Negative means at-least.
	arity int
}

// Engine executes search commands over a local shard set.
type Engine struct {
	shards   *shard.Set
	family   *command.Family
	registry map[string]commandDesc
	logger   *zap.Logger
}

// New starts an engine with the configured number of shards.
func New(cfg Config, logger *zap.Logger) *Engine {
	shards := shard.NewSet(cfg.Shards, logger)
	family := command.NewFamily(shards, command.Config{
		RejectLegacyField: cfg.RejectLegacyField,
	}, logger)

	e := &Engine{
		shards: shards,
		family: family,
		logger: logger,
	}
	e.registry = map[string]commandDesc{
		"FT.CREATE":    {family.Create, -2},
		"FT.ALTER":     {family.Alter, -3},
		"FT.DROPINDEX": {family.DropIndex, -2},
		"FT.INFO":      {family.Info, 2},
		// Underscore kept for compatibility with the established command family.
		"FT._LIST":     {family.List, 1},
		"FT.SEARCH":    {family.Search, -3},
		"FT.AGGREGATE": {family.Aggregate, -3},
		"FT.PROFILE":   {family.Profile, -4},
		"FT.TAGVALS":   {family.TagVals, 3},
		"FT.SYNDUMP":   {family.SynDump, 2},
		"FT.SYNUPDATE": {family.SynUpdate, -4},
	}
	return e
}

// Shards exposes the shard set (document seeding, tests).
func (e *Engine) Shards() *shard.Set { return e.shards }

// Close stops the shard executors.
func (e *Engine) Close() { e.shards.Close() }

// SetDocument stores a document on its owning shard and updates index
// memberships there.
func (e *Engine) SetDocument(key string, fields map[string]string) {
	sh := e.shards.ShardForKey(key)
	tx := e.shards.NewTransaction()
	tx.ScheduleSingleHop(func(_ *shard.Transaction, s *shard.Shard) {
		if s.ID() == sh.ID() {
			s.Indices.SetDocument(key, fields)
		}
	})
}

// Execute dispatches one command invocation: `args[0]` is the verb.
func (e *Engine) Execute(db int, cmdArgs ...string) reply.Value {
	if len(cmdArgs) == 0 {
		return reply.Err("empty command")
	}

	verb := strings.ToUpper(cmdArgs[0])
	desc, ok := e.registry[verb]
	if !ok {
		return reply.Err(fmt.Sprintf("unknown command '%s'", cmdArgs[0]))
	}

	if !arityOK(desc.arity, len(cmdArgs)) {
		return reply.Err(fmt.Sprintf(
			"wrong number of arguments for '%s' command", strings.ToLower(cmdArgs[0])))
	}

	start := time.Now()
	res := desc.handler(&command.Context{DB: db}, cmdArgs[1:])
	status := "ok"
	if reply.IsError(res) {
		status = "error"
	}
	metrics.ObserveCommand(verb, status, time.Since(start))

	e.logger.Debug("command executed",
		zap.String("verb", verb), zap.String("status", status))
	return res
}

func arityOK(arity, got int) bool {
	if arity < 0 {
		return got >= -arity
	}
	return got == arity
}

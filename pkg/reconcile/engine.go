// Package reconcile implements the reconciliation engine: the write path that
// turns conversation turns into durable memories. Each batch extracts facts,
// retrieves the closest existing memories per fact, asks the classifier for a
// decision, enforces policy over that decision, and applies it through a
// fixed commit protocol against the store and the ledger.
package reconcile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/classify"
	"github.com/papercomputeco/engram/pkg/embeddings"
	"github.com/papercomputeco/engram/pkg/eventstream"
	"github.com/papercomputeco/engram/pkg/eventstream/nop"
	"github.com/papercomputeco/engram/pkg/extract"
	"github.com/papercomputeco/engram/pkg/ledger"
	"github.com/papercomputeco/engram/pkg/memory"
	"github.com/papercomputeco/engram/pkg/store"
)

const (
	// DefaultCandidateLimit is how many nearest memories are retrieved as
	// classification candidates per fact.
	DefaultCandidateLimit = 10

	// DefaultMaxAttempts bounds classify, store-mutate, and ledger-append
	// calls. Attempts beyond the first back off exponentially with jitter.
	DefaultMaxAttempts = 3

	// DefaultRetryBase is the first backoff interval.
	DefaultRetryBase = 100 * time.Millisecond
)

// recordNamespace seeds deterministic record ids so a retried ADD within the
// same batch converges on the same id instead of duplicating the memory.
var recordNamespace = uuid.MustParse("a7c8b2e4-6f1d-4e3a-9b5c-2d8e7f0a1b3c")

// Config holds the engine's collaborators and tuning knobs.
type Config struct {
	Store      store.Driver
	Ledger     ledger.Driver
	Embedder   embeddings.Embedder
	Extractor  extract.Extractor
	Classifier classify.Classifier

	// Publisher receives change events after each applied operation. Optional;
	// defaults to a no-op publisher. Publish failures are logged, never fatal.
	Publisher eventstream.Publisher

	// CandidateLimit is the max candidates retrieved per fact.
	CandidateLimit int

	// MaxAttempts bounds retryable calls; RetryBase is the initial backoff.
	MaxAttempts int
	RetryBase   time.Duration
}

// Batch is one reconciliation request: the conversation turns to reconcile
// into a scope's memories, plus optional metadata merged into every record
// the batch creates or updates.
type Batch struct {
	Scope    memory.Scope
	Messages []extract.Message
	Metadata map[string]string
}

// Engine coordinates the full reconciliation flow. Safe for concurrent use;
// batches for distinct scopes proceed in parallel, batches for the same
// scope queue FIFO.
type Engine struct {
	config Config

	gate    *scopeGate
	journal *journal

	logger *zap.Logger
}

// NewEngine validates the config, fills defaults, and returns an engine.
func NewEngine(config Config, logger *zap.Logger) (*Engine, error) {
	if config.Store == nil {
		return nil, errors.New("reconcile: store driver is required")
	}
	if config.Ledger == nil {
		return nil, errors.New("reconcile: ledger driver is required")
	}
	if config.Embedder == nil {
		return nil, errors.New("reconcile: embedder is required")
	}
	if config.Extractor == nil {
		return nil, errors.New("reconcile: extractor is required")
	}
	if config.Classifier == nil {
		return nil, errors.New("reconcile: classifier is required")
	}

	if config.Publisher == nil {
		config.Publisher = nop.NewPublisher()
	}
	if config.CandidateLimit <= 0 {
		config.CandidateLimit = DefaultCandidateLimit
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if config.RetryBase <= 0 {
		config.RetryBase = DefaultRetryBase
	}

	return &Engine{
		config:  config,
		gate:    newScopeGate(),
		journal: newJournal(),
		logger:  logger,
	}, nil
}

// Reconcile runs one batch: flush any deferred ledger appends for the scope,
// extract facts from the messages, then classify and apply each fact in
// order. Facts are isolated; one fact failing never aborts the rest. Facts
// not yet attempted when the context expires are reported as skipped.
func (e *Engine) Reconcile(ctx context.Context, batch Batch) (*BatchResult, error) {
	if batch.Scope.IsZero() {
		return nil, memory.ErrEmptyScope
	}

	key := batch.Scope.Key()

	if err := e.gate.Acquire(ctx, key); err != nil {
		return nil, err
	}
	defer e.gate.Release(key)

	if err := e.flushJournal(ctx, key); err != nil {
		return nil, err
	}

	facts, err := e.config.Extractor.Extract(ctx, batch.Messages, batch.Scope)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{BatchID: uuid.NewString()}

	e.logger.Info("reconciling batch",
		zap.String("scope", key),
		zap.String("batch_id", result.BatchID),
		zap.Int("facts", len(facts)))

	for i, fact := range facts {
		if ctx.Err() != nil {
			result.Skipped = append(result.Skipped, facts[i:]...)
			break
		}
		e.reconcileFact(ctx, batch, fact, result)
	}

	e.logger.Info("batch reconciled",
		zap.String("scope", key),
		zap.String("batch_id", result.BatchID),
		zap.Int("committed", len(result.Committed)),
		zap.Int("failed", len(result.Failed)),
		zap.Int("skipped", len(result.Skipped)))

	return result, nil
}

// reconcileFact takes one fact through embed, retrieve, classify, and apply.
// Failures are recorded on the result, never propagated.
func (e *Engine) reconcileFact(ctx context.Context, batch Batch, fact string, result *BatchResult) {
	embedding, err := e.config.Embedder.Embed(ctx, fact)
	if err != nil {
		e.failFact(result, fact, err)
		return
	}

	matches, err := e.config.Store.Search(ctx, batch.Scope, embedding, e.config.CandidateLimit)
	if err != nil {
		e.failFact(result, fact, err)
		return
	}

	candidates := make([]classify.Candidate, 0, len(matches))
	for _, m := range matches {
		candidates = append(candidates, classify.Candidate{
			ID:      m.Record.ID,
			Content: m.Record.Content,
		})
	}

	var decision *classify.Decision
	err = e.withRetry(ctx, func(ctx context.Context) error {
		var cerr error
		decision, cerr = e.config.Classifier.Classify(ctx, fact, embedding, candidates)
		return cerr
	})
	if err != nil {
		e.failFact(result, fact, err)
		return
	}

	// The classifier is not trusted to be well-formed; the LLM adapter
	// validates its own output, but any Classifier can be plugged in here.
	if err := decision.Validate(); err != nil {
		e.failFact(result, fact, err)
		return
	}

	switch decision.Operation {
	case classify.OpNone:
		e.logger.Debug("fact already represented",
			zap.String("batch_id", result.BatchID),
			zap.String("fact", fact))

	case classify.OpAdd:
		e.applyAdd(ctx, batch, fact, embedding, decision, result)

	case classify.OpUpdate:
		e.applyUpdate(ctx, batch, fact, embedding, decision, matches, result)

	case classify.OpDelete:
		e.applyDelete(ctx, batch, fact, decision, matches, result)

	default:
		e.failFact(result, fact, fmt.Errorf("%w: unknown operation %q",
			classify.ErrInvalidDecision, decision.Operation))
	}
}

// applyAdd creates a new record from the decision's resolved content. The
// record id is derived from the scope, the content, and the batch, so a
// retried ADD is idempotent within its batch.
func (e *Engine) applyAdd(ctx context.Context, batch Batch, fact string, embedding []float32, decision *classify.Decision, result *BatchResult) {
	content := decision.Content

	if content != fact {
		var err error
		embedding, err = e.config.Embedder.Embed(ctx, content)
		if err != nil {
			e.failFact(result, fact, err)
			return
		}
	}

	now := time.Now().UTC()
	rec := &memory.Record{
		ID:        recordID(batch.Scope, content, result.BatchID),
		Scope:     batch.Scope,
		Content:   content,
		Embedding: embedding,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	rec.MergeMetadata(batch.Metadata)

	err := e.withRetry(ctx, func(ctx context.Context) error {
		return e.config.Store.Upsert(ctx, rec)
	})
	if err != nil {
		e.failFact(result, fact, err)
		return
	}

	e.commit(ctx, batch.Scope, result, rec, &ledger.Event{
		ID:         uuid.NewString(),
		MemoryID:   rec.ID,
		Type:       ledger.EventAdd,
		NewContent: content,
		Actor:      result.BatchID,
		Scope:      batch.Scope,
		CreatedAt:  now,
	})
}

// applyUpdate rewrites an existing candidate's content in place. An UPDATE
// naming a memory outside the candidate set is a policy violation and fails
// the fact; an UPDATE whose resolved content matches the target exactly is a
// no-op.
func (e *Engine) applyUpdate(ctx context.Context, batch Batch, fact string, embedding []float32, decision *classify.Decision, matches []store.SearchResult, result *BatchResult) {
	target := findMatch(matches, decision.TargetID)
	if target == nil {
		e.failFact(result, fact, fmt.Errorf("%w: update targets unknown memory %q",
			classify.ErrInvalidDecision, decision.TargetID))
		return
	}

	content := decision.Content
	if content == target.Content {
		e.logger.Debug("update resolved to identical content, skipping",
			zap.String("batch_id", result.BatchID),
			zap.String("memory_id", target.ID))
		return
	}

	if content != fact {
		var err error
		embedding, err = e.config.Embedder.Embed(ctx, content)
		if err != nil {
			e.failFact(result, fact, err)
			return
		}
	}

	previous := target.Content
	now := time.Now().UTC()

	rec := target.Clone()
	rec.Content = content
	rec.Embedding = embedding
	rec.Version++
	rec.UpdatedAt = now
	rec.MergeMetadata(batch.Metadata)

	err := e.withRetry(ctx, func(ctx context.Context) error {
		return e.config.Store.Upsert(ctx, rec)
	})
	if err != nil {
		e.failFact(result, fact, err)
		return
	}

	e.commit(ctx, batch.Scope, result, rec, &ledger.Event{
		ID:              uuid.NewString(),
		MemoryID:        rec.ID,
		Type:            ledger.EventUpdate,
		PreviousContent: previous,
		NewContent:      content,
		Actor:           result.BatchID,
		Scope:           batch.Scope,
		CreatedAt:       now,
	})
}

// applyDelete tombstones an existing candidate. A DELETE naming a memory
// outside the candidate set degrades to a no-op: the intended target may
// already be gone, and deleting nothing is always safe.
func (e *Engine) applyDelete(ctx context.Context, batch Batch, fact string, decision *classify.Decision, matches []store.SearchResult, result *BatchResult) {
	target := findMatch(matches, decision.TargetID)
	if target == nil {
		e.logger.Debug("delete targets unknown memory, skipping",
			zap.String("batch_id", result.BatchID),
			zap.String("memory_id", decision.TargetID))
		return
	}

	now := time.Now().UTC()

	err := e.withRetry(ctx, func(ctx context.Context) error {
		err := e.config.Store.Tombstone(ctx, target.ID)
		if errors.Is(err, store.ErrNotFound) {
			// Already gone; a repeated tombstone is a success.
			return nil
		}
		return err
	})
	if err != nil {
		e.failFact(result, fact, err)
		return
	}

	rec := target.Clone()
	rec.Tombstoned = true
	rec.UpdatedAt = now

	e.commit(ctx, batch.Scope, result, rec, &ledger.Event{
		ID:              uuid.NewString(),
		MemoryID:        rec.ID,
		Type:            ledger.EventDelete,
		PreviousContent: target.Content,
		Actor:           result.BatchID,
		Scope:           batch.Scope,
		CreatedAt:       now,
	})
}

// commit finishes an applied operation: append the ledger event, record the
// record as committed, and publish the change. The store mutation already
// succeeded, so a ledger append that exhausts retries is deferred to the
// scope's journal rather than failing the fact.
func (e *Engine) commit(ctx context.Context, scope memory.Scope, result *BatchResult, rec *memory.Record, event *ledger.Event) {
	err := e.withRetry(ctx, func(ctx context.Context) error {
		return e.config.Ledger.Append(ctx, event)
	})
	switch {
	case errors.Is(err, ledger.ErrConflict):
		// Already recorded by an earlier attempt.
	case err != nil:
		e.logger.Warn("ledger append failed, deferring to next reconciliation",
			zap.String("scope", scope.Key()),
			zap.String("memory_id", event.MemoryID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
		e.journal.stash(scope.Key(), event)
	}

	result.Committed = append(result.Committed, rec)

	change := &eventstream.MemoryChangedEvent{
		SchemaVersion:   eventstream.SchemaVersionV1,
		EventType:       eventstream.EventTypeMemoryChanged,
		EventID:         event.ID,
		EmittedAt:       time.Now().UTC(),
		Scope:           scope,
		MemoryID:        event.MemoryID,
		Operation:       string(event.Type),
		PreviousContent: event.PreviousContent,
		NewContent:      event.NewContent,
		Version:         rec.Version,
		Actor:           event.Actor,
	}
	if err := e.config.Publisher.PublishChange(ctx, change); err != nil {
		e.logger.Warn("change event publish failed",
			zap.String("memory_id", event.MemoryID),
			zap.Error(err))
	}
}

// flushJournal replays ledger appends deferred by earlier batches for this
// scope. The store already reflects those operations; the batch must not
// proceed while the ledger cannot be brought back in sync.
func (e *Engine) flushJournal(ctx context.Context, key string) error {
	events := e.journal.take(key)
	if len(events) == 0 {
		return nil
	}

	e.logger.Info("replaying deferred ledger appends",
		zap.String("scope", key),
		zap.Int("events", len(events)))

	for i, event := range events {
		err := e.withRetry(ctx, func(ctx context.Context) error {
			return e.config.Ledger.Append(ctx, event)
		})
		if errors.Is(err, ledger.ErrConflict) {
			continue
		}
		if err != nil {
			e.journal.restore(key, events[i:])
			return fmt.Errorf("replaying deferred ledger appends: %w", err)
		}
	}

	return nil
}

// PendingAppends reports how many ledger events are deferred for a scope.
func (e *Engine) PendingAppends(scope memory.Scope) int {
	return e.journal.size(scope.Key())
}

// Close releases the engine's collaborators.
func (e *Engine) Close() error {
	var errs []error

	for _, c := range []interface{ Close() error }{
		e.config.Extractor,
		e.config.Classifier,
		e.config.Embedder,
		e.config.Publisher,
		e.config.Ledger,
		e.config.Store,
	} {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (e *Engine) failFact(result *BatchResult, fact string, err error) {
	e.logger.Warn("fact reconciliation failed",
		zap.String("batch_id", result.BatchID),
		zap.String("fact", fact),
		zap.Error(err))

	result.Failed = append(result.Failed, FailedFact{
		Fact:   fact,
		Reason: err.Error(),
	})
}

// withRetry runs op with bounded exponential backoff. Validation outcomes
// are never retried; the classifier returning a malformed decision twice
// will not make it well-formed.
func (e *Engine) withRetry(ctx context.Context, op func(context.Context) error) error {
	b := retry.NewExponential(e.config.RetryBase)
	b = retry.WithJitter(e.config.RetryBase/2, b)
	b = retry.WithMaxRetries(uint64(e.config.MaxAttempts-1), b)

	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := op(ctx)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, classify.ErrInvalidDecision),
			errors.Is(err, ledger.ErrConflict),
			errors.Is(err, store.ErrNotFound):
			return err
		default:
			return retry.RetryableError(err)
		}
	})
}

func findMatch(matches []store.SearchResult, id string) *memory.Record {
	if id == "" {
		return nil
	}
	for _, m := range matches {
		if m.Record.ID == id {
			return m.Record
		}
	}
	return nil
}

// recordID derives a deterministic id from the scope, the stored content,
// and the batch, so repeating an ADD after a partial failure lands on the
// same record instead of a duplicate.
func recordID(scope memory.Scope, content, batchID string) string {
	sum := sha256.Sum256([]byte(content))
	token := scope.Key() + "\x00" + hex.EncodeToString(sum[:]) + "\x00" + batchID
	return uuid.NewSHA1(recordNamespace, []byte(token)).String()
}

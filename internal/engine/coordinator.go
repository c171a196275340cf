package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/custody/internal/ledger"
)

// DefaultMaxAttempts bounds compare-and-append retries per request.
const DefaultMaxAttempts = 5

// ErrStopped is returned for requests submitted to, or still queued in, a
// coordinator whose Run loop has ended.
var ErrStopped = errors.New("append coordinator stopped")

// Metrics receives append outcomes. Implemented by metrics.Registry.
type Metrics interface {
	// ObserveAppend records one finished request. code is "" on success.
	ObserveAppend(code ledger.Code, attempts int, elapsed time.Duration)
	// ObserveConflict records one lost compare-and-append race.
	ObserveConflict()
	// SetQueueDepth reports the number of requests waiting for the writer.
	SetQueueDepth(n int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveAppend(ledger.Code, int, time.Duration) {}
func (noopMetrics) ObserveConflict()                               {}
func (noopMetrics) SetQueueDepth(int)                              {}

// Coordinator is the single-writer append path.
//
// Thread-safety model:
//   - Append(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - Stop(): safe from any goroutine, idempotent
type Coordinator struct {
	store       ledger.ChainStore
	clock       ledger.Clock
	queue       *requestQueue
	maxAttempts int
	catalog     PayloadValidator
	metrics     Metrics
}

// Option allows configuration of coordinator parameters.
type Option func(*Coordinator)

// WithMaxAttempts sets the compare-and-append attempt budget.
//
// Default: 5 (DefaultMaxAttempts). Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(c *Coordinator) {
		if n >= 1 {
			c.maxAttempts = n
		}
	}
}

// WithClock sets the timestamp source. Tests use testutil.DeterministicClock.
func WithClock(clock ledger.Clock) Option {
	return func(c *Coordinator) {
		c.clock = clock
	}
}

// WithCatalog enables payload schema checks.
func WithCatalog(v PayloadValidator) Option {
	return func(c *Coordinator) {
		c.catalog = v
	}
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// New creates a Coordinator writing to s.
func New(s ledger.ChainStore, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:       s,
		clock:       ledger.SystemClock{},
		queue:       newRequestQueue(),
		maxAttempts: DefaultMaxAttempts,
		metrics:     noopMetrics{},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Append validates req and waits for the Run loop to persist it.
//
// Returns the new entry's index and hash, or a *ledger.Error:
//   - ValidationError / SerializationError: bad input, nothing was read or written
//   - AppendContention: the index stayed contended for MaxAttempts attempts
//   - StorageUnavailable: the store failed, or the coordinator is stopped
//
// If ctx ends first, Append returns ctx.Err(). An attempt that had already
// started still completes; its entry is then visible to readers.
func (c *Coordinator) Append(ctx context.Context, req ledger.AppendRequest) (ledger.AppendResult, error) {
	start := time.Now()

	req, err := ValidateRequest(req, c.catalog)
	if err != nil {
		c.metrics.ObserveAppend(ledger.CodeOf(err), 0, time.Since(start))
		return ledger.AppendResult{}, err
	}

	r := &appendRequest{
		ctx:   ctx,
		req:   req,
		reply: make(chan appendReply, 1),
	}
	if !c.queue.Enqueue(r) {
		return ledger.AppendResult{}, ledger.NewStorageError("append", ErrStopped)
	}
	c.metrics.SetQueueDepth(c.queue.Len())

	select {
	case <-ctx.Done():
		return ledger.AppendResult{}, ctx.Err()
	case rep := <-r.reply:
		return rep.result, rep.err
	}
}

// Run starts the single-writer loop.
// Blocks until ctx is cancelled or Stop() is called.
//
// CRITICAL: Must be called from exactly ONE goroutine per store handle.
//
// Requests still queued when Run returns are answered with ErrStopped.
func (c *Coordinator) Run(ctx context.Context) error {
	slog.Info("append coordinator starting", "max_attempts", c.maxAttempts)

	for {
		r, ok := c.queue.TryDequeue()
		if ok {
			c.metrics.SetQueueDepth(c.queue.Len())
			c.process(r)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("append coordinator stopping: context cancelled")
			c.queue.Close()
			c.drain()
			return ctx.Err()

		case <-c.queue.Wait():
			// The signal channel closes when the queue is closed, so this
			// fires immediately once Stop has been called.
			if c.queue.Len() == 0 && c.closed() {
				slog.Info("append coordinator stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop gracefully shuts down the coordinator.
// Requests already queued are still processed before Run returns.
func (c *Coordinator) Stop() {
	c.queue.Close()
}

func (c *Coordinator) closed() bool {
	c.queue.mu.Lock()
	defer c.queue.mu.Unlock()
	return c.queue.closed
}

// drain answers every queued request with ErrStopped.
func (c *Coordinator) drain() {
	for {
		r, ok := c.queue.TryDequeue()
		if !ok {
			c.metrics.SetQueueDepth(0)
			return
		}
		r.reply <- appendReply{err: ledger.NewStorageError("append", ErrStopped)}
	}
}

// process runs one request to completion.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (c *Coordinator) process(r *appendRequest) {
	if err := r.ctx.Err(); err != nil {
		slog.Debug("dropping cancelled append",
			"event_type", r.req.EventType,
			"tenant_id", r.req.TenantID,
		)
		r.reply <- appendReply{err: err}
		return
	}

	start := time.Now()
	// Detach from cancellation: a started attempt finishes or fails as a unit.
	ctx := context.WithoutCancel(r.ctx)

	result, attempts, err := c.appendWithRetry(ctx, r.req)
	c.metrics.ObserveAppend(ledger.CodeOf(err), attempts, time.Since(start))

	if err != nil {
		slog.Error("append failed",
			"event_type", r.req.EventType,
			"tenant_id", r.req.TenantID,
			"attempts", attempts,
			"error", err,
		)
	} else {
		slog.Info("entry appended",
			"index", result.Index,
			"hash", result.Hash,
			"event_type", r.req.EventType,
			"tenant_id", r.req.TenantID,
		)
	}

	r.reply <- appendReply{result: result, err: err}
}

// appendWithRetry runs compare-and-append attempts until one wins or the
// budget is spent.
func (c *Coordinator) appendWithRetry(ctx context.Context, req ledger.AppendRequest) (ledger.AppendResult, int, error) {
	var lastConflict error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		result, err := c.appendOnce(ctx, req)
		if err == nil {
			return result, attempt, nil
		}
		if !errors.Is(err, ledger.ErrConflict) {
			return ledger.AppendResult{}, attempt, err
		}

		lastConflict = err
		c.metrics.ObserveConflict()
		slog.Warn("append lost index race, retrying",
			"attempt", attempt,
			"max_attempts", c.maxAttempts,
			"error", err,
		)
	}
	return ledger.AppendResult{}, c.maxAttempts, ledger.NewContentionError(c.maxAttempts, lastConflict)
}

// appendOnce reads the tip, builds the next entry and inserts it.
// Returns an error wrapping ledger.ErrConflict when the tip moved.
func (c *Coordinator) appendOnce(ctx context.Context, req ledger.AppendRequest) (ledger.AppendResult, error) {
	tip, ok, err := c.store.Last(ctx)
	if err != nil {
		return ledger.AppendResult{}, ledger.NewStorageError("read tip", err)
	}

	entry := ledger.Entry{
		Index:     0,
		Timestamp: ledger.NormalizeTimestamp(c.clock.Now()),
		EventType: req.EventType,
		Actor:     req.Actor,
		TenantID:  req.TenantID,
		Payload:   req.Payload,
		PrevHash:  ledger.GenesisHash,
	}
	if ok {
		entry.Index = tip.Index + 1
		entry.PrevHash = tip.Hash
	}

	entry.Hash, err = ledger.HashEntry(entry)
	if err != nil {
		return ledger.AppendResult{}, err
	}

	if err := c.store.Insert(ctx, entry); err != nil {
		if errors.Is(err, ledger.ErrConflict) {
			return ledger.AppendResult{}, err
		}
		return ledger.AppendResult{}, ledger.NewStorageError(fmt.Sprintf("insert entry %d", entry.Index), err)
	}

	return ledger.AppendResult{Index: entry.Index, Hash: entry.Hash}, nil
}

package reputation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zfogg/sidechain/feedengine/internal/logger"
	"github.com/zfogg/sidechain/feedengine/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	DefaultMaxBatch     = 10
	DefaultDebounce     = 100 * time.Millisecond
	DefaultCacheTTL     = 5 * time.Minute
	DefaultBatchTimeout = 5 * time.Second
	DefaultNegativeTTL  = 30 * time.Second
)

var (
	// ErrCounterUnavailable means a batch counter call failed. Its ids are
	// retried one by one, so callers only see it in logs.
	ErrCounterUnavailable = errors.New("counter source unavailable")
	// ErrScoreUnavailable is returned to the callers of one user id when
	// its single-user fallback also failed.
	ErrScoreUnavailable = errors.New("score unavailable")
	ErrCoalescerClosed  = errors.New("reputation coalescer closed")
	// ErrUnknownUser is wrapped by CounterSource.Single for ids that have
	// no account. Such lookups are cached for the negative TTL.
	ErrUnknownUser = errors.New("unknown user")
)

var tracer = otel.Tracer("feedengine/reputation")

// CounterSource supplies raw counters. Batch must read every id from one
// consistent snapshot.
type CounterSource interface {
	Batch(ctx context.Context, userIDs []string) (map[string]Input, error)
	Single(ctx context.Context, userID string) (Input, error)
}

// PersistAdvisor receives fire-and-forget "persist if drifted" advice.
type PersistAdvisor interface {
	Advise(userID string, result Result) bool
}

// waiter is shared by every caller asking for one id until its batch
// resolves. done is closed exactly once, after result and err are set.
type waiter struct {
	done   chan struct{}
	result Result
	err    error
}

// cacheEntry holds a computed score, or the unknown-user error of a
// negative entry. A zero expiry never expires.
type cacheEntry struct {
	result  Result
	err     error
	expires time.Time
}

// Coalescer groups concurrent score lookups into bounded counter batches
// and caches the results in process.
type Coalescer struct {
	source       CounterSource
	advisor      PersistAdvisor
	maxBatch     int
	debounce     time.Duration
	cacheTTL     time.Duration
	batchTimeout time.Duration
	negativeTTL  time.Duration

	mu       sync.Mutex
	cache    map[string]cacheEntry
	waiters  map[string]*waiter
	queue    []string
	timer    *time.Timer
	inFlight bool
	closed   bool

	stop chan struct{}
	wg   sync.WaitGroup
}

// Option configures a Coalescer.
type Option func(*Coalescer)

func WithMaxBatch(n int) Option {
	return func(c *Coalescer) {
		if n > 0 {
			c.maxBatch = n
		}
	}
}

func WithDebounce(d time.Duration) Option {
	return func(c *Coalescer) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// WithCacheTTL sets how long results stay cached. Zero keeps them until
// invalidated.
func WithCacheTTL(d time.Duration) Option {
	return func(c *Coalescer) {
		if d >= 0 {
			c.cacheTTL = d
		}
	}
}

func WithBatchTimeout(d time.Duration) Option {
	return func(c *Coalescer) {
		if d > 0 {
			c.batchTimeout = d
		}
	}
}

// WithNegativeTTL sets how long unknown-user lookups are remembered. Zero
// disables negative caching.
func WithNegativeTTL(d time.Duration) Option {
	return func(c *Coalescer) {
		if d >= 0 {
			c.negativeTTL = d
		}
	}
}

func WithAdvisor(a PersistAdvisor) Option {
	return func(c *Coalescer) {
		c.advisor = a
	}
}

// NewCoalescer creates a coalescer reading from source.
func NewCoalescer(source CounterSource, opts ...Option) *Coalescer {
	c := &Coalescer{
		source:       source,
		maxBatch:     DefaultMaxBatch,
		debounce:     DefaultDebounce,
		cacheTTL:     DefaultCacheTTL,
		batchTimeout: DefaultBatchTimeout,
		negativeTTL:  DefaultNegativeTTL,
		cache:        make(map[string]cacheEntry),
		waiters:      make(map[string]*waiter),
		stop:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if interval := c.janitorInterval(); interval > 0 {
		c.wg.Add(1)
		go c.janitor(interval)
	}
	return c
}

// GetScore returns the score for userID from cache, or joins the batch that
// will fetch it. Canceling ctx abandons only this caller's wait.
func (c *Coalescer) GetScore(ctx context.Context, userID string) (Result, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Result{}, ErrCoalescerClosed
	}
	if entry, ok := c.cache[userID]; ok && c.fresh(entry) {
		c.mu.Unlock()
		metrics.Get().ScoreCacheHits.Inc()
		return entry.result, entry.err
	}

	metrics.Get().ScoreCacheMisses.Inc()
	w, ok := c.waiters[userID]
	if !ok {
		w = &waiter{done: make(chan struct{})}
		c.waiters[userID] = w
		c.queue = append(c.queue, userID)
		c.scheduleLocked()
	}
	c.mu.Unlock()

	select {
	case <-w.done:
		return w.result, w.err
	case <-ctx.Done():
		metrics.Get().ScoreWaitersCanceled.Inc()
		return Result{}, ctx.Err()
	}
}

// Invalidate drops the cached score for userID so the next lookup refetches.
func (c *Coalescer) Invalidate(userID string) {
	c.mu.Lock()
	delete(c.cache, userID)
	c.mu.Unlock()
}

// Stats is a point-in-time view of the coalescer state.
type Stats struct {
	Cached   int  `json:"cached"`
	Pending  int  `json:"pending"`
	Waiting  int  `json:"waiting"`
	InFlight bool `json:"in_flight"`
}

func (c *Coalescer) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Cached:   len(c.cache),
		Pending:  len(c.queue),
		Waiting:  len(c.waiters),
		InFlight: c.inFlight,
	}
}

// Close fails queued lookups with ErrCoalescerClosed and waits for the
// in-flight batch to finish.
func (c *Coalescer) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	pending := c.queue
	c.queue = nil
	c.mu.Unlock()

	close(c.stop)
	for _, id := range pending {
		c.resolve(id, Result{}, ErrCoalescerClosed)
	}
	c.wg.Wait()
}

func (c *Coalescer) fresh(entry cacheEntry) bool {
	return entry.expires.IsZero() || time.Now().Before(entry.expires)
}

// janitorInterval is the shorter of the two TTLs that expire entries.
func (c *Coalescer) janitorInterval() time.Duration {
	interval := c.cacheTTL
	if c.negativeTTL > 0 && (interval <= 0 || c.negativeTTL < interval) {
		interval = c.negativeTTL
	}
	return interval
}

// scheduleLocked starts a batch when the queue is full, or arms the
// debounce timer. While a batch is in flight the queue waits for it.
func (c *Coalescer) scheduleLocked() {
	if c.inFlight {
		return
	}
	if len(c.queue) >= c.maxBatch {
		if c.timer != nil {
			c.timer.Stop()
			c.timer = nil
		}
		c.startBatchLocked()
		return
	}
	if c.timer == nil {
		c.timer = time.AfterFunc(c.debounce, c.onDebounce)
	}
}

func (c *Coalescer) onDebounce() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timer = nil
	if c.inFlight || c.closed || len(c.queue) == 0 {
		return
	}
	c.startBatchLocked()
}

func (c *Coalescer) startBatchLocked() {
	n := len(c.queue)
	if n > c.maxBatch {
		n = c.maxBatch
	}
	ids := make([]string, n)
	copy(ids, c.queue[:n])
	c.queue = c.queue[n:]
	c.inFlight = true

	c.wg.Add(1)
	go c.runBatch(ids)
}

func (c *Coalescer) runBatch(ids []string) {
	defer c.wg.Done()

	ctx, span := tracer.Start(context.Background(), "reputation.batch")
	span.SetAttributes(attribute.Int("reputation.batch_size", len(ids)))
	defer span.End()

	metrics.Get().ScoreBatchSize.Observe(float64(len(ids)))

	batchCtx, cancel := context.WithTimeout(ctx, c.batchTimeout)
	inputs, err := c.source.Batch(batchCtx, ids)
	cancel()

	missing := ids
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrCounterUnavailable, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.Get().ScoreBatchesTotal.WithLabelValues("failed").Inc()
		logger.Log.Warn("Reputation batch failed, falling back to single fetches",
			logger.WithBatchSize(len(ids)),
			zap.Error(err),
		)
	} else {
		metrics.Get().ScoreBatchesTotal.WithLabelValues("ok").Inc()
		missing = nil
		for _, id := range ids {
			in, ok := inputs[id]
			if !ok {
				missing = append(missing, id)
				continue
			}
			c.resolve(id, Compute(in), nil)
		}
	}

	if len(missing) > 0 {
		c.fallback(ctx, missing)
	}

	c.mu.Lock()
	c.inFlight = false
	if !c.closed && len(c.queue) > 0 {
		c.startBatchLocked()
	}
	c.mu.Unlock()
}

// fallback fetches each id on its own. A failure reaches only that id's
// callers.
func (c *Coalescer) fallback(ctx context.Context, ids []string) {
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			singleCtx, cancel := context.WithTimeout(ctx, c.batchTimeout)
			defer cancel()

			in, err := c.source.Single(singleCtx, id)
			if errors.Is(err, ErrUnknownUser) {
				metrics.Get().ScoreFallbacksTotal.WithLabelValues("unknown").Inc()
				c.resolve(id, Result{}, fmt.Errorf("%w: %w", ErrScoreUnavailable, err))
				return
			}
			if err != nil {
				metrics.Get().ScoreFallbacksTotal.WithLabelValues("failed").Inc()
				logger.Log.Warn("Reputation single fetch failed",
					logger.WithUserID(id),
					zap.Error(err),
				)
				c.resolve(id, Result{}, fmt.Errorf("%w: %w", ErrScoreUnavailable, err))
				return
			}
			metrics.Get().ScoreFallbacksTotal.WithLabelValues("ok").Inc()
			c.resolve(id, Compute(in), nil)
		}(id)
	}
	wg.Wait()
}

func (c *Coalescer) resolve(id string, result Result, err error) {
	c.mu.Lock()
	w := c.waiters[id]
	delete(c.waiters, id)
	switch {
	case err == nil:
		entry := cacheEntry{result: result}
		if c.cacheTTL > 0 {
			entry.expires = time.Now().Add(c.cacheTTL)
		}
		c.cache[id] = entry
	case errors.Is(err, ErrUnknownUser) && c.negativeTTL > 0 && !c.closed:
		c.cache[id] = cacheEntry{err: err, expires: time.Now().Add(c.negativeTTL)}
	}
	c.mu.Unlock()

	if w == nil {
		return
	}
	w.result, w.err = result, err
	close(w.done)

	if err == nil && c.advisor != nil {
		c.advisor.Advise(id, result)
	}
}

func (c *Coalescer) janitor(interval time.Duration) {
	defer c.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for id, entry := range c.cache {
				if !entry.expires.IsZero() && !now.Before(entry.expires) {
					delete(c.cache, id)
				}
			}
			c.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}

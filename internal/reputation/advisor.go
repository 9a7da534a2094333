package reputation

import (
	"context"
	"sync"
	"time"

	"github.com/zfogg/sidechain/feedengine/internal/logger"
	"github.com/zfogg/sidechain/feedengine/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultDriftThreshold is the score difference that justifies a write.
const DefaultDriftThreshold = 50

// ScoreStore is the durable home of persisted scores.
type ScoreStore interface {
	LastScore(ctx context.Context, userID string) (score int, found bool, err error)
	SaveScore(ctx context.Context, userID string, result Result) error
}

// AdvisorOptions configures an Advisor. Zero values take defaults.
type AdvisorOptions struct {
	Threshold       int
	QueueSize       int
	Workers         int
	WritesPerSecond float64
	Burst           int
	Timeout         time.Duration
}

type advice struct {
	userID string
	result Result
}

// Advisor persists computed scores in the background, but only when they
// drifted past the threshold from the stored value. Concurrent advisors in
// other processes may race; the last write wins.
type Advisor struct {
	store     ScoreStore
	threshold int
	timeout   time.Duration
	workers   int
	limiter   *rate.Limiter
	jobs      chan advice

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAdvisor creates an advisor writing to store. Call Start to run it.
func NewAdvisor(store ScoreStore, opts AdvisorOptions) *Advisor {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultDriftThreshold
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.WritesPerSecond <= 0 {
		opts.WritesPerSecond = 50
	}
	if opts.Burst <= 0 {
		opts.Burst = 10
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Advisor{
		store:     store,
		threshold: opts.Threshold,
		timeout:   opts.Timeout,
		workers:   opts.Workers,
		limiter:   rate.NewLimiter(rate.Limit(opts.WritesPerSecond), opts.Burst),
		jobs:      make(chan advice, opts.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (a *Advisor) Start() {
	logger.Log.Info("Starting reputation advisor",
		zap.Int("workers", a.workers),
		zap.Int("threshold", a.threshold),
	)
	for i := 0; i < a.workers; i++ {
		a.wg.Add(1)
		go a.worker(i)
	}
}

// Stop abandons queued advice and waits for the workers to exit.
func (a *Advisor) Stop() {
	a.cancel()
	a.wg.Wait()
}

// Advise queues result for userID without blocking. It reports false when
// the queue is full or the advisor is stopped.
func (a *Advisor) Advise(userID string, result Result) bool {
	if a.ctx.Err() != nil {
		return false
	}
	select {
	case a.jobs <- advice{userID: userID, result: result}:
		return true
	default:
		metrics.Get().ScoreAdvisoryDropped.Inc()
		return false
	}
}

func (a *Advisor) worker(id int) {
	defer a.wg.Done()
	for {
		select {
		case <-a.ctx.Done():
			return
		case adv := <-a.jobs:
			a.process(adv)
		}
	}
}

func (a *Advisor) process(adv advice) {
	if err := a.limiter.Wait(a.ctx); err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(a.ctx, a.timeout)
	defer cancel()

	previous, found, err := a.store.LastScore(ctx, adv.userID)
	if err != nil {
		metrics.Get().ScorePersistTotal.WithLabelValues("failed").Inc()
		logger.Log.Warn("Failed to read stored reputation",
			logger.WithUserID(adv.userID),
			zap.Error(err),
		)
		return
	}
	if found && !ShouldPersist(previous, adv.result.Score, a.threshold) {
		metrics.Get().ScorePersistTotal.WithLabelValues("skipped").Inc()
		return
	}

	if err := a.store.SaveScore(ctx, adv.userID, adv.result); err != nil {
		metrics.Get().ScorePersistTotal.WithLabelValues("failed").Inc()
		logger.Log.Warn("Failed to persist reputation",
			logger.WithUserID(adv.userID),
			zap.Error(err),
		)
		return
	}
	metrics.Get().ScorePersistTotal.WithLabelValues("saved").Inc()
	logger.Log.Debug("Persisted reputation",
		logger.WithUserID(adv.userID),
		zap.Int("previous", previous),
		zap.Int("score", adv.result.Score),
	)
}

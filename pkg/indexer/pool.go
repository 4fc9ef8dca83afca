package indexer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/meepleai/meepleai/pkg/embeddings"
)

// ErrQueueFull is returned by Enqueue when the job buffer is saturated.
var ErrQueueFull = errors.New("indexing queue is full")

// Retry policy for transient provider failures during background runs.
// Synchronous (API-triggered) indexing never retries; only the worker
// does, with bounded exponential backoff.
const (
	maxAttempts      = 3
	defaultBaseDelay = time.Second
)

// PoolHealth is a point-in-time snapshot of the worker pool.
type PoolHealth struct {
	Workers      int   `json:"workers"`
	QueueDepth   int   `json:"queueDepth"`
	Active       int   `json:"active"`
	Processed    int64 `json:"processed"`
	Failed       int64 `json:"failed"`
	LastActivity int64 `json:"lastActivityUnix"`
}

// WorkerPool runs background indexing jobs with bounded concurrency.
// Distinct documents index in parallel; the Indexer itself serializes
// runs for the same document.
type WorkerPool struct {
	indexer        *Indexer
	workerCount    int
	jobs           chan string
	retryBaseDelay time.Duration
	stopCh         chan struct{}
	stopOnce       sync.Once
	wg             sync.WaitGroup

	mu           sync.Mutex
	started      bool
	active       int
	processed    int64
	failed       int64
	lastActivity time.Time
}

// NewWorkerPool creates a pool with the given worker count and queue
// size.
func NewWorkerPool(ix *Indexer, workerCount, queueSize int) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	if queueSize < 1 {
		queueSize = 64
	}
	return &WorkerPool{
		indexer:        ix,
		workerCount:    workerCount,
		jobs:           make(chan string, queueSize),
		retryBaseDelay: defaultBaseDelay,
		stopCh:         make(chan struct{}),
	}
}

// Start spawns the worker goroutines. Safe to call multiple times;
// subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		slog.Warn("Indexer pool already started, ignoring duplicate Start call")
		return
	}
	p.started = true
	p.mu.Unlock()

	slog.Info("Starting indexer pool", "worker_count", p.workerCount)
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

// Stop signals workers to stop and waits for in-flight jobs to finish.
func (p *WorkerPool) Stop() {
	slog.Info("Stopping indexer pool gracefully")
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
	slog.Info("Indexer pool stopped")
}

// Enqueue schedules a document for background indexing. It never blocks;
// a saturated queue returns ErrQueueFull.
func (p *WorkerPool) Enqueue(documentID string) error {
	select {
	case p.jobs <- documentID:
		return nil
	default:
		return ErrQueueFull
	}
}

// Health returns a snapshot of the pool state.
func (p *WorkerPool) Health() PoolHealth {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolHealth{
		Workers:      p.workerCount,
		QueueDepth:   len(p.jobs),
		Active:       p.active,
		Processed:    p.processed,
		Failed:       p.failed,
		LastActivity: p.lastActivity.Unix(),
	}
}

func (p *WorkerPool) run(ctx context.Context, workerID int) {
	defer p.wg.Done()
	log := slog.With("worker_id", workerID)
	log.Info("Indexer worker started")

	for {
		select {
		case <-p.stopCh:
			log.Info("Indexer worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, indexer worker shutting down")
			return
		case documentID := <-p.jobs:
			p.setActive(1)
			err := p.processWithRetry(ctx, documentID, log)
			p.setActive(-1)

			p.mu.Lock()
			p.processed++
			if err != nil {
				p.failed++
			}
			p.lastActivity = time.Now()
			p.mu.Unlock()

			if err != nil {
				log.Error("Background indexing failed", "document_id", documentID, "error", err)
			}
		}
	}
}

// processWithRetry runs one indexing job, retrying transient embedding
// failures with exponential backoff up to maxAttempts total attempts.
func (p *WorkerPool) processWithRetry(ctx context.Context, documentID string, log *slog.Logger) error {
	delay := p.retryBaseDelay
	for attempt := 1; ; attempt++ {
		_, err := p.indexer.IndexDocument(ctx, documentID)
		if err == nil || attempt >= maxAttempts || !embeddings.IsTransient(err) {
			return err
		}

		log.Warn("Transient indexing failure, backing off",
			"document_id", documentID, "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-p.stopCh:
			return err
		case <-ctx.Done():
			return err
		}
		delay *= 2
	}
}

func (p *WorkerPool) setActive(delta int) {
	p.mu.Lock()
	p.active += delta
	p.mu.Unlock()
}

package utils

import (
	"sync"
	"time"
)

// WorkerPool distributes pipeline invocations across a fixed set of
// goroutines so one slow external call never stalls the serving loop.
type WorkerPool struct {
	workers   int
	workQueue chan func()
	stopCh    chan struct{}
	wg        sync.WaitGroup
	running   bool
	mu        sync.RWMutex
}

// NewWorkerPool creates a pool with the given worker count and queue size.
func NewWorkerPool(workers, queueSize int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < workers {
		queueSize = workers * 2
	}
	return &WorkerPool{
		workers:   workers,
		workQueue: make(chan func(), queueSize),
		stopCh:    make(chan struct{}),
	}
}

// Start begins processing work items. Idempotent.
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.running {
		return
	}
	wp.running = true

	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}
}

// Stop stops the pool and waits for workers to drain.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if !wp.running {
		return
	}
	wp.running = false
	close(wp.stopCh)
	wp.wg.Wait()
}

// Submit queues a work item. Returns false when the queue is full or the
// pool is stopped; never blocks.
func (wp *WorkerPool) Submit(work func()) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if !wp.running {
		return false
	}

	select {
	case wp.workQueue <- work:
		return true
	default:
		return false
	}
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()

	for {
		select {
		case work := <-wp.workQueue:
			if work != nil {
				work()
			}
		case <-wp.stopCh:
			return
		}
	}
}

// RateLimiter paces outbound provider calls with a token bucket.
type RateLimiter struct {
	rate     int
	interval time.Duration
	tokens   chan struct{}
	stopCh   chan struct{}
	running  bool
	mu       sync.RWMutex
}

// NewRateLimiter allows rate operations per interval.
func NewRateLimiter(rate int, interval time.Duration) *RateLimiter {
	rl := &RateLimiter{
		rate:     rate,
		interval: interval,
		tokens:   make(chan struct{}, rate),
		stopCh:   make(chan struct{}),
	}
	for i := 0; i < rate; i++ {
		rl.tokens <- struct{}{}
	}
	return rl
}

// Start begins token replenishment.
func (rl *RateLimiter) Start() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.running {
		return
	}
	rl.running = true
	go rl.refill()
}

// Stop halts token replenishment.
func (rl *RateLimiter) Stop() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if !rl.running {
		return
	}
	rl.running = false
	close(rl.stopCh)
}

// Wait blocks until a token is available.
func (rl *RateLimiter) Wait() {
	<-rl.tokens
}

// TryWait consumes a token without blocking.
func (rl *RateLimiter) TryWait() bool {
	select {
	case <-rl.tokens:
		return true
	default:
		return false
	}
}

func (rl *RateLimiter) refill() {
	ticker := time.NewTicker(rl.interval / time.Duration(rl.rate))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			select {
			case rl.tokens <- struct{}{}:
			default:
			}
		case <-rl.stopCh:
			return
		}
	}
}

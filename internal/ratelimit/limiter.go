// Package ratelimit provides per-provider admission control: a periodically
// refilled request reservoir, a concurrency cap, a minimum spacing between
// admissions, and a bounded priority-ordered wait queue.
package ratelimit

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/davidbz/hearth/internal/domain"
)

// Config holds the reservoir settings for one provider.
type Config struct {
	Capacity       int           // requests admitted per refill interval
	RefillInterval time.Duration // hard reservoir reset period
	MinGap         time.Duration // minimum spacing between admissions
	MaxConcurrent  int           // in-flight cap, independent of the reservoir
	QueueDepth     int           // queued waiters beyond this are rejected
}

// DefaultConfig returns conservative per-provider limits.
func DefaultConfig() Config {
	return Config{
		Capacity:       60,
		RefillInterval: time.Minute,
		MinGap:         0,
		MaxConcurrent:  8,
		QueueDepth:     100,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Capacity <= 0 {
		c.Capacity = d.Capacity
	}
	if c.RefillInterval <= 0 {
		c.RefillInterval = d.RefillInterval
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = d.MaxConcurrent
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = d.QueueDepth
	}
	return c
}

// Stats is a point-in-time snapshot of one limiter.
type Stats struct {
	Running   int `json:"running"`
	Queued    int `json:"queued"`
	Remaining int `json:"remaining"`
	Capacity  int `json:"capacity"`
}

// waiter is one queued admission request. Lower priority values are served
// first; equal priorities are FIFO by sequence number.
type waiter struct {
	priority int
	seq      uint64
	ready    chan struct{}
	err      error
	index    int
}

type waitQueue []*waiter

func (q waitQueue) Len() int { return len(q) }

func (q waitQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority < q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q waitQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *waitQueue) Push(x any) {
	w := x.(*waiter)
	w.index = len(*q)
	*q = append(*q, w)
}

func (q *waitQueue) Pop() any {
	old := *q
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	*q = old[:n-1]
	return w
}

// Limiter enforces admission control for a single provider identity.
// All state transitions happen under one mutex; admission order is priority
// first, then arrival order.
type Limiter struct {
	mu        sync.Mutex
	cfg       Config
	provider  string
	remaining int
	running   int
	lastAdmit time.Time
	queue     waitQueue
	seq       uint64
	ticker    *time.Ticker
	gapTimer  *time.Timer
	closed    bool
	done      chan struct{}
}

// NewLimiter creates a limiter and starts its refill loop.
func NewLimiter(provider string, cfg Config) *Limiter {
	cfg = cfg.withDefaults()
	l := &Limiter{
		cfg:       cfg,
		provider:  provider,
		remaining: cfg.Capacity,
		done:      make(chan struct{}),
	}
	l.ticker = time.NewTicker(cfg.RefillInterval)
	go l.refillLoop()
	return l
}

// refillLoop resets the reservoir to full capacity each interval. This is a
// hard periodic reset, not a smooth leak.
func (l *Limiter) refillLoop() {
	for {
		select {
		case <-l.ticker.C:
			l.mu.Lock()
			l.remaining = l.cfg.Capacity
			l.dispatchLocked()
			l.mu.Unlock()
		case <-l.done:
			return
		}
	}
}

// Acquire blocks until the caller is admitted, the queue overflows, or ctx
// ends. A depleted reservoir queues the caller rather than erroring; only
// queue overflow fails fast.
func (l *Limiter) Acquire(ctx context.Context, priority int) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return domain.NewError(domain.ErrorCodeUnknown, "rate limiter is closed").WithProvider(l.provider)
	}

	if len(l.queue) == 0 && l.admissibleLocked() {
		l.admitLocked()
		l.mu.Unlock()
		return nil
	}

	if len(l.queue) >= l.cfg.QueueDepth {
		l.mu.Unlock()
		err := domain.NewError(domain.ErrorCodeRateLimitExceeded, "rate limit queue is full")
		err.Retryable = true
		return err.WithProvider(l.provider)
	}

	w := &waiter{
		priority: priority,
		seq:      l.seq,
		ready:    make(chan struct{}),
	}
	l.seq++
	heap.Push(&l.queue, w)
	l.dispatchLocked() // the gap timer may be the only blocker
	l.mu.Unlock()

	select {
	case <-w.ready:
		return w.err
	case <-ctx.Done():
		l.mu.Lock()
		select {
		case <-w.ready:
			// Admitted concurrently with cancellation; give the slot back.
			if w.err == nil {
				l.releaseLocked()
			}
		default:
			heap.Remove(&l.queue, w.index)
		}
		l.mu.Unlock()
		return domain.Classify(l.provider, ctx.Err())
	}
}

// Release returns an admission slot and wakes the next queued waiter.
func (l *Limiter) Release() {
	l.mu.Lock()
	l.releaseLocked()
	l.mu.Unlock()
}

func (l *Limiter) releaseLocked() {
	if l.running > 0 {
		l.running--
	}
	l.dispatchLocked()
}

func (l *Limiter) admissibleLocked() bool {
	if l.running >= l.cfg.MaxConcurrent || l.remaining <= 0 {
		return false
	}
	return l.gapElapsedLocked()
}

func (l *Limiter) gapElapsedLocked() bool {
	if l.cfg.MinGap <= 0 || l.lastAdmit.IsZero() {
		return true
	}
	return time.Since(l.lastAdmit) >= l.cfg.MinGap
}

func (l *Limiter) admitLocked() {
	l.remaining--
	l.running++
	l.lastAdmit = time.Now()
}

// dispatchLocked admits queued waiters while capacity allows. When only the
// minimum gap blocks admission it arms a timer to resume dispatch.
func (l *Limiter) dispatchLocked() {
	for l.queue.Len() > 0 {
		if l.running >= l.cfg.MaxConcurrent || l.remaining <= 0 {
			return
		}
		if !l.gapElapsedLocked() {
			l.armGapTimerLocked()
			return
		}
		w := heap.Pop(&l.queue).(*waiter)
		l.admitLocked()
		close(w.ready)
	}
}

func (l *Limiter) armGapTimerLocked() {
	if l.gapTimer != nil {
		return
	}
	wait := l.cfg.MinGap - time.Since(l.lastAdmit)
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	l.gapTimer = time.AfterFunc(wait, func() {
		l.mu.Lock()
		l.gapTimer = nil
		if !l.closed {
			l.dispatchLocked()
		}
		l.mu.Unlock()
	})
}

// Configure applies new settings to a live limiter. The reservoir is capped
// to the new capacity immediately; the refill period changes on next tick.
func (l *Limiter) Configure(cfg Config) {
	cfg = cfg.withDefaults()
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cfg = cfg
	if l.remaining > cfg.Capacity {
		l.remaining = cfg.Capacity
	}
	l.ticker.Reset(cfg.RefillInterval)
	l.dispatchLocked()
}

// Stats returns a snapshot of the limiter state.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		Running:   l.running,
		Queued:    l.queue.Len(),
		Remaining: l.remaining,
		Capacity:  l.cfg.Capacity,
	}
}

// Close stops the refill loop and fails all queued waiters.
func (l *Limiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.closed = true
	l.ticker.Stop()
	if l.gapTimer != nil {
		l.gapTimer.Stop()
		l.gapTimer = nil
	}
	close(l.done)

	for l.queue.Len() > 0 {
		w := heap.Pop(&l.queue).(*waiter)
		w.err = domain.NewError(domain.ErrorCodeUnknown, "rate limiter closed while queued").WithProvider(l.provider)
		close(w.ready)
	}
}

// Package qos implements at-least-once delivery for outbound DATA frames:
// per-session monotonic msgIds, pending entries retransmitted on a linear
// backoff until acked or exhausted.
package qos

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type Options struct {
	BaseRetry   time.Duration
	MaxBackoff  time.Duration
	MaxAttempts int
}

func DefaultOptions() Options {
	return Options{
		BaseRetry:   100 * time.Millisecond,
		MaxBackoff:  2 * time.Second,
		MaxAttempts: 5,
	}
}

// backoff(n) = min(base * (n+1), max)
func (o Options) backoff(attempts int) time.Duration {
	d := o.BaseRetry * time.Duration(attempts+1)
	if d > o.MaxBackoff {
		return o.MaxBackoff
	}
	return d
}

// Engine owns every session's outbound queue and the retry timer driving the
// retransmissions.
type Engine struct {
	opts Options

	mu     sync.Mutex
	queues map[string]*Queue

	deliveryFailed atomic.Uint64

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewEngine(opts Options) *Engine {
	e := &Engine{
		opts:   opts,
		queues: make(map[string]*Queue),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go e.retryLoop()
	return e
}

// Queue returns the session's outbound queue, creating it on first use.
func (e *Engine) Queue(sessionID string) *Queue {
	e.mu.Lock()
	defer e.mu.Unlock()
	q, ok := e.queues[sessionID]
	if !ok {
		q = newQueue(sessionID, e.opts)
		e.queues[sessionID] = q
	}
	return q
}

// Drop discards the session's queue and all pending state. Called on session
// expiry; a plain disconnect keeps the queue for resume.
func (e *Engine) Drop(sessionID string) {
	e.mu.Lock()
	q, ok := e.queues[sessionID]
	if ok {
		delete(e.queues, sessionID)
	}
	e.mu.Unlock()
	if ok {
		q.close()
	}
}

// DeliveryFailed counts pending entries dropped after attempts exhaustion.
func (e *Engine) DeliveryFailed() uint64 {
	return e.deliveryFailed.Load()
}

func (e *Engine) retryLoop() {
	defer close(e.done)
	// Half the base retry keeps timer skew well under one backoff step.
	period := e.opts.BaseRetry / 2
	if period <= 0 {
		period = 50 * time.Millisecond
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case now := <-ticker.C:
			e.mu.Lock()
			queues := make([]*Queue, 0, len(e.queues))
			for _, q := range e.queues {
				queues = append(queues, q)
			}
			e.mu.Unlock()

			for _, q := range queues {
				if failed := q.retryPass(now); failed > 0 {
					e.deliveryFailed.Add(uint64(failed))
				}
			}
		}
	}
}

// Invoke stops the retry loop; registered with the shutdown cleaner.
func (e *Engine) Invoke(ctx context.Context) error {
	e.stopOnce.Do(func() { close(e.stop) })
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

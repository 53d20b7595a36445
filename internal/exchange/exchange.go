// Package exchange implements the single-slot, overwrite-on-publish handoff
// used between pipeline stages.
//
// A publisher never blocks: a new value replaces whatever is stored. A
// consumer blocks until a value newer than the one it last saw is stored.
// Identity is the publish sequence number, so publishing a structurally equal
// value still counts as new and a nil value is a valid publication.
package exchange

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Consume after Close.
var ErrClosed = errors.New("exchange closed")

// Exchange is a latest-value slot for values of type T.
//
// Thread-safety: Publish may be called from any goroutine. Consume is meant
// for a single consumer goroutine; a value handed out by Consume belongs to
// that consumer.
type Exchange[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	value  T
	seq    uint64 // 0 = nothing published yet
	taken  bool   // value at seq was handed to the consumer
	closed bool

	onDrop func(T) // releases values that were overwritten before being consumed

	published atomic.Uint64
	dropped   atomic.Uint64
}

// Option configures an Exchange.
type Option[T any] func(*Exchange[T])

// WithDrop registers a function called with every value that is overwritten
// or discarded without ever being consumed. It runs outside the lock.
func WithDrop[T any](fn func(T)) Option[T] {
	return func(e *Exchange[T]) {
		e.onDrop = fn
	}
}

// New creates an empty exchange.
func New[T any](opts ...Option[T]) *Exchange[T] {
	e := &Exchange[T]{}
	e.cond = sync.NewCond(&e.mu)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Publish stores v, overwriting any unconsumed value, and wakes the consumer.
// It returns the sequence number assigned to v. The caller must not use v
// after publishing it.
func (e *Exchange[T]) Publish(v T) uint64 {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.drop(v)
		return 0
	}

	old, hadOld := e.value, e.seq > 0 && !e.taken

	e.value = v
	e.seq++
	e.taken = false
	seq := e.seq
	e.cond.Signal()
	e.mu.Unlock()

	e.published.Add(1)
	if hadOld {
		e.drop(old)
	}
	return seq
}

// Consume blocks until a value with a sequence number other than lastSeq is
// stored, then returns it with its sequence number. Pass 0 on the first call.
//
// Consume returns ctx.Err() when ctx is cancelled and ErrClosed after Close.
// In both cases no value is handed out.
func (e *Exchange[T]) Consume(ctx context.Context, lastSeq uint64) (T, uint64, error) {
	var zero T

	stop := context.AfterFunc(ctx, func() {
		e.mu.Lock()
		e.cond.Broadcast()
		e.mu.Unlock()
	})
	defer stop()

	e.mu.Lock()
	defer e.mu.Unlock()

	for e.seq == 0 || e.seq == lastSeq {
		if e.closed {
			return zero, lastSeq, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return zero, lastSeq, err
		}
		e.cond.Wait()
	}

	if e.closed {
		return zero, lastSeq, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return zero, lastSeq, err
	}

	e.taken = true
	return e.value, e.seq, nil
}

// Close wakes any blocked consumer and releases a pending unconsumed value.
// Publish after Close releases its value immediately. Close is idempotent.
func (e *Exchange[T]) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	pending, hasPending := e.value, e.seq > 0 && !e.taken

	var zero T
	e.value = zero
	e.taken = true
	e.cond.Broadcast()
	e.mu.Unlock()

	if hasPending {
		e.drop(pending)
	}
}

func (e *Exchange[T]) drop(v T) {
	e.dropped.Add(1)
	if e.onDrop != nil {
		e.onDrop(v)
	}
}

// Stats is a snapshot of exchange counters.
type Stats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
}

// Stats returns how many values were published and how many were dropped
// without being consumed.
func (e *Exchange[T]) Stats() Stats {
	return Stats{
		Published: e.published.Load(),
		Dropped:   e.dropped.Load(),
	}
}

// Package fetch guards a sequence of overlapping fetches so that only the
// most recent one may publish its result.
package fetch

import (
	"context"
	"sync"
)

// Ticket identifies one fetch started with Begin.
type Ticket struct {
	gen uint64
}

// Latest holds the value committed by the newest fetch. Starting a new fetch
// cancels the context of the previous one, and a late Commit from a
// superseded fetch is dropped.
type Latest[T any] struct {
	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	value  T
	ok     bool
}

// Begin starts a fetch derived from parent.
func (l *Latest[T]) Begin(parent context.Context) (context.Context, Ticket) {
	ctx, cancel := context.WithCancel(parent)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
	}
	l.gen++
	l.cancel = cancel
	return ctx, Ticket{gen: l.gen}
}

// Commit stores v if t is still the newest fetch and reports whether it did.
func (l *Latest[T]) Commit(t Ticket, v T) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t.gen != l.gen {
		return false
	}
	l.value = v
	l.ok = true
	l.release()
	return true
}

// Abandon releases t's context without storing anything.
func (l *Latest[T]) Abandon(t Ticket) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t.gen == l.gen {
		l.release()
	}
}

// Value returns the last committed value.
func (l *Latest[T]) Value() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value, l.ok
}

// Stop cancels the in-flight fetch, if any, and rejects its commit.
func (l *Latest[T]) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.release()
	l.gen++
}

func (l *Latest[T]) release() {
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}

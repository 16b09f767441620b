// Package broadcast fans a single evolving value out to any number of
// watchers without ever blocking the writer.
package broadcast

import (
	"context"
	"sync"
)

// Latest holds the most recent value of T. Each watcher receives values on a
// channel with room for exactly one element: a publish replaces any value the
// watcher has not consumed yet. Watchers therefore always observe values in
// publish order, may skip intermediate values, and never see an older value
// after a newer one.
type Latest[T any] struct {
	mu       sync.Mutex
	value    T
	watchers map[uint64]*watcher[T]
	nextID   uint64
	closed   bool
}

type watcher[T any] struct {
	ch   chan T
	stop func() bool
}

func NewLatest[T any](initial T) *Latest[T] {
	return &Latest[T]{
		value:    initial,
		watchers: make(map[uint64]*watcher[T]),
	}
}

// Current returns the most recently published value.
func (l *Latest[T]) Current() T {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value
}

// Publish stores v and offers it to every watcher. It returns false once the
// broadcaster has been closed, in which case v is discarded.
func (l *Latest[T]) Publish(v T) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return false
	}
	l.value = v
	for _, w := range l.watchers {
		offer(w.ch, v)
	}
	return true
}

// Watch returns a channel that first yields the current value and then every
// subsequent value (coalesced). The channel is closed when ctx is done or the
// broadcaster is closed.
func (l *Latest[T]) Watch(ctx context.Context) <-chan T {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch := make(chan T, 1)
	ch <- l.value
	if l.closed {
		close(ch)
		return ch
	}

	id := l.nextID
	l.nextID++
	w := &watcher[T]{ch: ch}
	w.stop = context.AfterFunc(ctx, func() { l.remove(id) })
	l.watchers[id] = w
	return ch
}

// Close closes every watcher channel. Later publishes are dropped.
func (l *Latest[T]) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.closed = true
	for id, w := range l.watchers {
		w.stop()
		close(w.ch)
		delete(l.watchers, id)
	}
}

func (l *Latest[T]) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if w, ok := l.watchers[id]; ok {
		close(w.ch)
		delete(l.watchers, id)
	}
}

// offer replaces any unread value in ch with v. Callers hold the broadcaster
// lock, so nothing else can fill the slot between the drain and the send.
func offer[T any](ch chan T, v T) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}

// Await reads from ch until pred reports true, returning the matching value.
// It fails with ctx.Err() if ctx ends first and with ErrClosed if ch closes.
func Await[T any](ctx context.Context, ch <-chan T, pred func(T) bool) (T, error) {
	var zero T
	for {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case v, ok := <-ch:
			if !ok {
				return zero, ErrClosed
			}
			if pred(v) {
				return v, nil
			}
		}
	}
}

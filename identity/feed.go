package identity

import (
	"sync"
	"sync/atomic"
)

// Feed is the push side of a Provider. Notifications are queued without
// blocking the publisher and delivered one at a time, in publish order, on a
// single dispatcher goroutine, so listeners never run concurrently with each
// other.
type Feed struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []feedEvent
	subs     map[uint64]*feedSubscriber
	nextID   uint64
	current  *Identity
	resolved bool
	closed   bool
	done     chan struct{}
}

type feedSubscriber struct {
	onChange func(*Identity)
	onError  func(error)
	active   atomic.Bool
}

type feedEvent struct {
	targets  []*feedSubscriber
	identity *Identity
	err      error
}

// NewFeed starts the dispatcher. Call Close to stop it.
func NewFeed() *Feed {
	f := &Feed{
		subs: make(map[uint64]*feedSubscriber),
		done: make(chan struct{}),
	}
	f.cond = sync.NewCond(&f.mu)
	go f.dispatch()
	return f
}

// Subscribe implements the Provider subscription contract.
func (f *Feed) Subscribe(onChange func(*Identity), onError func(error)) func() {
	sub := &feedSubscriber{onChange: onChange, onError: onError}
	sub.active.Store(true)

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = sub
	if f.resolved {
		f.enqueue(feedEvent{targets: []*feedSubscriber{sub}, identity: f.current.Clone()})
	}
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.active.Store(false)
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}

// Publish records id as the current identity and notifies every subscriber.
// The first call resolves the feed.
func (f *Feed) Publish(id *Identity) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.current = id.Clone()
	f.resolved = true
	f.enqueue(feedEvent{targets: f.targetsLocked(), identity: id.Clone()})
}

// Fail reports a feed failure to every subscriber. The current identity is
// left untouched.
func (f *Feed) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.enqueue(feedEvent{targets: f.targetsLocked(), err: FeedError(err)})
}

// Current returns the last published identity and whether the feed has
// resolved its initial state.
func (f *Feed) Current() (*Identity, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current.Clone(), f.resolved
}

// Close drops undelivered notifications and waits for the dispatcher to exit.
// It must not be called from inside a listener.
func (f *Feed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		<-f.done
		return
	}
	f.closed = true
	f.queue = nil
	f.cond.Broadcast()
	f.mu.Unlock()
	<-f.done
}

func (f *Feed) enqueue(ev feedEvent) {
	if f.closed || len(ev.targets) == 0 {
		return
	}
	f.queue = append(f.queue, ev)
	f.cond.Signal()
}

func (f *Feed) targetsLocked() []*feedSubscriber {
	targets := make([]*feedSubscriber, 0, len(f.subs))
	for _, s := range f.subs {
		targets = append(targets, s)
	}
	return targets
}

func (f *Feed) dispatch() {
	defer close(f.done)
	for {
		f.mu.Lock()
		for len(f.queue) == 0 && !f.closed {
			f.cond.Wait()
		}
		if f.closed {
			f.mu.Unlock()
			return
		}
		ev := f.queue[0]
		f.queue[0] = feedEvent{}
		f.queue = f.queue[1:]
		f.mu.Unlock()

		for _, sub := range ev.targets {
			if !sub.active.Load() {
				continue
			}
			if ev.err != nil {
				if sub.onError != nil {
					sub.onError(ev.err)
				}
				continue
			}
			if sub.onChange != nil {
				sub.onChange(ev.identity.Clone())
			}
		}
	}
}

// Package session owns the process-wide session state derived from the
// identity provider's change feed.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jrsteele09/qsmate/identity"
	"github.com/jrsteele09/qsmate/internal/broadcast"
	qserrors "github.com/jrsteele09/qsmate/internal/errors"
	"github.com/rs/zerolog/log"
)

// Store is the single writer of the session State. It is mutated only by the
// provider's change notifications and by SignOut, and it publishes every
// write, in order, to its watchers.
type Store struct {
	provider identity.Provider

	mu          sync.Mutex
	state       State
	states      *broadcast.Latest[State]
	unsubscribe func()
	closed      bool

	// notified counts identity notifications. Feed errors do not count.
	notified uint64
}

// Initialize creates the Store and subscribes it to the provider's change
// feed. It must be called once per process; the returned Store starts in the
// loading phase and becomes ready on the first notification.
func Initialize(provider identity.Provider) (*Store, error) {
	if provider == nil {
		return nil, identity.ConfigurationError(errors.New("[session Initialize] identity provider is required"))
	}

	initial := State{Phase: PhaseLoading}
	s := &Store{
		provider: provider,
		state:    initial,
		states:   broadcast.NewLatest(initial),
	}

	unsubscribe := provider.Subscribe(s.onIdentityChanged, s.onFeedError)

	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	log.Debug().Str("phase", string(PhaseLoading)).Msg("Session store initialised")
	return s, nil
}

// State returns the current snapshot.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Watch yields the current snapshot followed by every later one, coalescing
// snapshots the caller has not consumed yet. The channel closes when ctx ends
// or the Store is closed.
func (s *Store) Watch(ctx context.Context) <-chan State {
	return s.states.Watch(ctx)
}

// Await blocks until a snapshot satisfies pred.
func (s *Store) Await(ctx context.Context, pred func(State) bool) (State, error) {
	return broadcast.Await(ctx, s.Watch(ctx), pred)
}

// SignOut signs the current identity out at the provider. Signing out with no
// identity is a no-op. On failure the state is left unchanged and the error,
// which wraps identity.ErrSignOut, is returned to the caller.
func (s *Store) SignOut(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("[Store SignOut] %w", qserrors.ErrClosed)
	}
	current := s.state.identity
	notified := s.notified
	s.mu.Unlock()

	if current == nil {
		return nil
	}

	if err := s.provider.SignOut(ctx); err != nil {
		log.Err(err).Str("user_id", current.ID).Msg("Sign out failed")
		return fmt.Errorf("%w: %w", identity.ErrSignOut, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.state.identity == nil {
		return nil
	}
	// Any identity notification while the provider call was in flight is
	// newer than this sign-out, even one that re-signs the same user in.
	if s.notified != notified {
		log.Info().Str("user_id", s.state.identity.ID).Msg("Sign out superseded by a newer notification")
		return nil
	}

	next := s.state
	next.identity = nil
	s.writeLocked(next)
	log.Info().Str("user_id", current.ID).Msg("Signed out")
	return nil
}

// Close releases the provider subscription. No write happens after Close
// returns, and every watch channel is closed. Close is safe to call twice.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsubscribe := s.unsubscribe
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	s.states.Close()
	log.Debug().Msg("Session store closed")
}

func (s *Store) onIdentityChanged(id *identity.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.notified++
	s.writeLocked(State{identity: id.Clone(), Phase: PhaseReady})

	event := log.Info().Str("phase", string(PhaseReady))
	if id != nil {
		event = event.Str("user_id", id.ID).Str("email", id.Email)
	}
	event.Msg("Identity changed")
}

func (s *Store) onFeedError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	next := s.state
	next.FeedErr = err
	s.writeLocked(next)
	log.Warn().Err(err).Str("phase", string(next.Phase)).Msg("Identity feed error")
}

func (s *Store) writeLocked(next State) {
	next.Version = s.state.Version + 1
	s.state = next
	s.states.Publish(next)
}

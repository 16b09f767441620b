package guard

import (
	"context"

	"github.com/jrsteele09/qsmate/internal/broadcast"
	"github.com/jrsteele09/qsmate/session"
	"github.com/rs/zerolog/log"
)

// StateWatcher is the read side of the session store the guard consumes.
type StateWatcher interface {
	Watch(ctx context.Context) <-chan session.State
}

// MountHook observes mount changes. Hooks run on the guard's goroutine in
// registration order.
type MountHook func(prev, next Mount)

// Guard re-evaluates the mount on every session snapshot and is the only
// component that changes it.
type Guard struct {
	classifier *Classifier
	mounts     *broadcast.Latest[Mount]
	hooks      []MountHook
}

type Option func(*Guard)

// WithMountHook registers a hook called after each mount change.
func WithMountHook(hook MountHook) Option {
	return func(g *Guard) {
		g.hooks = append(g.hooks, hook)
	}
}

// New returns a guard whose mount is pending until Run sees the first
// snapshot.
func New(classifier *Classifier, options ...Option) *Guard {
	g := &Guard{
		classifier: classifier,
		mounts:     broadcast.NewLatest(Mount{Decision: DecisionPending}),
	}
	for _, opt := range options {
		opt(g)
	}
	return g
}

// Run consumes snapshots until ctx ends or the store closes its watch, then
// closes the guard's own watchers.
func (g *Guard) Run(ctx context.Context, states StateWatcher) error {
	defer g.mounts.Close()

	for state := range states.Watch(ctx) {
		g.apply(Evaluate(state, g.classifier), state)
	}
	log.Debug().Msg("Route guard stopped")
	return nil
}

// Current returns the mount the router must show now.
func (g *Guard) Current() Mount {
	return g.mounts.Current()
}

// Watch yields mount changes, coalesced for slow readers.
func (g *Guard) Watch(ctx context.Context) <-chan Mount {
	return g.mounts.Watch(ctx)
}

// Await blocks until the mount satisfies pred.
func (g *Guard) Await(ctx context.Context, pred func(Mount) bool) (Mount, error) {
	return broadcast.Await(ctx, g.Watch(ctx), pred)
}

// Classifier exposes the role lookup used by the guard.
func (g *Guard) Classifier() *Classifier {
	return g.classifier
}

func (g *Guard) apply(next Mount, state session.State) {
	prev := g.mounts.Current()
	if prev == next {
		return
	}
	if !g.mounts.Publish(next) {
		return
	}

	log.Info().
		Str("decision", string(next.Decision)).
		Str("group", string(next.Group)).
		Str("user_id", state.UserID()).
		Uint64("version", state.Version).
		Msg("Route guard mount changed")

	for _, hook := range g.hooks {
		hook(prev, next)
	}
}

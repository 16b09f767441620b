package guard_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/qsmate/guard"
	"github.com/jrsteele09/qsmate/identity"
	"github.com/jrsteele09/qsmate/identity/fakeidp"
	"github.com/jrsteele09/qsmate/session"
	"github.com/stretchr/testify/require"
)

type guardFixture struct {
	provider *fakeidp.FakeProvider
	store    *session.Store
	guard    *guard.Guard
	done     chan error
	hooks    *hookRecorder
}

type hookRecorder struct {
	mu      sync.Mutex
	changes []guard.Mount
}

func (h *hookRecorder) record(_, next guard.Mount) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.changes = append(h.changes, next)
}

func (h *hookRecorder) snapshot() []guard.Mount {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]guard.Mount(nil), h.changes...)
}

func setupGuardFixture(t *testing.T) *guardFixture {
	t.Helper()

	provider := fakeidp.NewFakeProvider()
	store, err := session.Initialize(provider)
	require.NoError(t, err)

	classifier, err := guard.NewClassifier(map[string]string{"admin@x.com": "admin"}, "user")
	require.NoError(t, err)

	hooks := &hookRecorder{}
	g := guard.New(classifier, guard.WithMountHook(hooks.record))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx, store) }()

	t.Cleanup(func() {
		cancel()
		<-done
		store.Close()
		provider.Stop()
	})

	return &guardFixture{provider: provider, store: store, guard: g, done: done, hooks: hooks}
}

func (f *guardFixture) awaitMount(t *testing.T, pred func(guard.Mount) bool) guard.Mount {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m, err := f.guard.Await(ctx, pred)
	require.NoError(t, err)
	return m
}

func TestGuard_PendingUntilFirstNotification(t *testing.T) {
	f := setupGuardFixture(t)

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, guard.DecisionPending, f.guard.Current().Decision)
	require.Empty(t, f.hooks.snapshot())

	f.provider.Publish(nil)
	m := f.awaitMount(t, func(m guard.Mount) bool { return m.Decision != guard.DecisionPending })
	require.Equal(t, guard.DecisionDeny, m.Decision)
}

func TestGuard_AllowSelectsRoleGroup(t *testing.T) {
	f := setupGuardFixture(t)

	f.provider.Publish(&identity.Identity{ID: "a", Email: "ADMIN@x.com"})
	m := f.awaitMount(t, func(m guard.Mount) bool { return m.Decision == guard.DecisionAllow })
	require.Equal(t, guard.GroupAdmin, m.Group)

	f.provider.Publish(&identity.Identity{ID: "b", Email: "client@x.com"})
	m = f.awaitMount(t, func(m guard.Mount) bool { return m.Group == guard.GroupUsers })
	require.Equal(t, guard.RoleUser, m.Role)
}

func TestGuard_SignOutUnmountsProtectedGroup(t *testing.T) {
	f := setupGuardFixture(t)
	f.provider.AddAccount("admin@x.com", "Password123")
	_, err := f.provider.SignIn(context.Background(), identity.Credential{Email: "admin@x.com", Password: "Password123"})
	require.NoError(t, err)
	f.awaitMount(t, func(m guard.Mount) bool { return m.Mounts(guard.GroupAdmin) })

	require.NoError(t, f.store.SignOut(context.Background()))

	m := f.awaitMount(t, func(m guard.Mount) bool { return m.Decision == guard.DecisionDeny })
	require.Equal(t, guard.PublicEntry, m.Entry())
}

func TestGuard_RapidNotificationsSettleOnFinalDecision(t *testing.T) {
	f := setupGuardFixture(t)

	f.provider.Publish(&identity.Identity{ID: "a", Email: "a@x.com"})
	f.provider.Publish(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := f.store.Await(ctx, func(s session.State) bool { return s.Version == 2 })
	require.NoError(t, err)

	m := f.awaitMount(t, func(m guard.Mount) bool { return m.Decision == guard.DecisionDeny })
	require.Equal(t, guard.DecisionDeny, m.Decision)

	// Nothing may follow the settled deny.
	time.Sleep(20 * time.Millisecond)
	changes := f.hooks.snapshot()
	require.NotEmpty(t, changes)
	require.Equal(t, guard.DecisionDeny, changes[len(changes)-1].Decision)
	require.Equal(t, guard.DecisionDeny, f.guard.Current().Decision)
}

func TestGuard_FeedErrorKeepsMount(t *testing.T) {
	f := setupGuardFixture(t)
	f.provider.Publish(&identity.Identity{ID: "a", Email: "a@x.com"})
	f.awaitMount(t, func(m guard.Mount) bool { return m.Decision == guard.DecisionAllow })
	before := len(f.hooks.snapshot())

	f.provider.Fail(context.DeadlineExceeded)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := f.store.Await(ctx, func(s session.State) bool { return s.FeedErr != nil })
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, guard.DecisionAllow, f.guard.Current().Decision)
	require.Len(t, f.hooks.snapshot(), before)
}

func TestGuard_OnlyPublishesChanges(t *testing.T) {
	f := setupGuardFixture(t)

	f.provider.Publish(nil)
	f.provider.Publish(nil)
	f.provider.Publish(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := f.store.Await(ctx, func(s session.State) bool { return s.Version == 3 })
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	require.Equal(t, []guard.Mount{{Decision: guard.DecisionDeny}}, f.hooks.snapshot())
}

func TestGuard_RunStopsWhenStoreCloses(t *testing.T) {
	provider := fakeidp.NewFakeProvider()
	defer provider.Stop()
	store, err := session.Initialize(provider)
	require.NoError(t, err)

	classifier, err := guard.NewClassifier(nil, "user")
	require.NoError(t, err)
	g := guard.New(classifier)

	done := make(chan error, 1)
	go func() { done <- g.Run(context.Background(), store) }()

	store.Close()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("guard did not stop after store close")
	}
}

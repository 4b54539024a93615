package rbac

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/helmsman-hq/helmsman/internal/shared"
)

type stubSource struct {
	mu    sync.Mutex
	sets  map[uuid.UUID][]string
	err   error
	calls atomic.Int64

	// release, when set, blocks resolution until closed so tests can pile up
	// concurrent misses.
	release chan struct{}
}

func (s *stubSource) ResolveActionKeys(_ context.Context, roleID uuid.UUID) ([]string, error) {
	s.calls.Add(1)
	if s.release != nil {
		<-s.release
	}
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets[roleID], nil
}

func newTestDecider(source *stubSource) (*Decider, *PermissionCache) {
	cache := NewPermissionCache(NewMemoryStore(16, nil), slog.Default(), nil)
	return NewDecider(cache, source, slog.Default()), cache
}

func principalWithRole(role string, roleID uuid.UUID) *shared.Principal {
	return &shared.Principal{ID: uuid.New(), Email: "ops@example.com", Role: role, RoleID: &roleID}
}

func TestDecideAnyOfPermissionMatch(t *testing.T) {
	roleID := uuid.New()
	source := &stubSource{sets: map[uuid.UUID][]string{roleID: {"admin-view"}}}
	decider, _ := newTestDecider(source)
	p := principalWithRole("admin", roleID)

	err := decider.Decide(context.Background(), p, Gate{Permissions: []string{"admin-view", "admin-update"}})
	require.NoError(t, err)

	err = decider.Decide(context.Background(), p, Gate{Permissions: []string{"admin-update"}})
	var deny *DenyError
	require.ErrorAs(t, err, &deny)
	require.Equal(t, DenyMissingPermission, deny.Reason)
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestDecideDenyLadder(t *testing.T) {
	roleID := uuid.New()
	emptyRoleID := uuid.New()
	source := &stubSource{sets: map[uuid.UUID][]string{roleID: {"admin-view"}}}
	decider, _ := newTestDecider(source)

	cases := []struct {
		name      string
		principal *shared.Principal
		want      DenyReason
	}{
		{"no role assigned", &shared.Principal{ID: uuid.New(), Email: "x@example.com"}, DenyNoRole},
		{"role with empty set", principalWithRole("admin", emptyRoleID), DenyNoPermissionsAssigned},
		{"role missing the key", principalWithRole("admin", roleID), DenyMissingPermission},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := decider.Decide(context.Background(), tc.principal, Gate{Permissions: []string{"admin-create"}})
			var deny *DenyError
			require.ErrorAs(t, err, &deny)
			require.Equal(t, tc.want, deny.Reason)
		})
	}
}

func TestDecideNilPrincipal(t *testing.T) {
	decider, _ := newTestDecider(&stubSource{})
	err := decider.Decide(context.Background(), nil, Gate{Permissions: []string{"admin-view"}})
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestDecideEmptyGateAllows(t *testing.T) {
	decider, _ := newTestDecider(&stubSource{})
	require.NoError(t, decider.Decide(context.Background(), nil, Gate{}))
}

func TestDecideRoleGate(t *testing.T) {
	roleID := uuid.New()
	decider, _ := newTestDecider(&stubSource{})

	err := decider.Decide(context.Background(), principalWithRole("admin", roleID), Gate{Roles: []string{"superadmin"}})
	var deny *DenyError
	require.ErrorAs(t, err, &deny)
	require.Equal(t, DenyRoleNotAllowed, deny.Reason)

	require.NoError(t, decider.Decide(context.Background(), principalWithRole("Superadmin", roleID), Gate{Roles: []string{"superadmin"}}))
}

func TestDecideGatesCombineWithAnd(t *testing.T) {
	roleID := uuid.New()
	source := &stubSource{sets: map[uuid.UUID][]string{roleID: {"admin-view"}}}
	decider, _ := newTestDecider(source)
	gate := Gate{Roles: []string{"admin"}, Permissions: []string{"admin-view"}}

	require.NoError(t, decider.Decide(context.Background(), principalWithRole("admin", roleID), gate))

	err := decider.Decide(context.Background(), principalWithRole("auditor", roleID), gate)
	var deny *DenyError
	require.ErrorAs(t, err, &deny)
	require.Equal(t, DenyRoleNotAllowed, deny.Reason)
}

func TestDecideCachesResolvedSet(t *testing.T) {
	roleID := uuid.New()
	source := &stubSource{sets: map[uuid.UUID][]string{roleID: {"admin-view"}}}
	decider, cache := newTestDecider(source)
	p := principalWithRole("admin", roleID)
	gate := Gate{Permissions: []string{"admin-view"}}

	for i := 0; i < 3; i++ {
		require.NoError(t, decider.Decide(context.Background(), p, gate))
	}
	require.Equal(t, int64(1), source.calls.Load())

	keys, ok := cache.Get(context.Background(), roleID)
	require.True(t, ok)
	require.Equal(t, []string{"admin-view"}, keys)
}

func TestDecideCollapsesConcurrentMisses(t *testing.T) {
	roleID := uuid.New()
	source := &stubSource{
		sets:    map[uuid.UUID][]string{roleID: {"admin-view"}},
		release: make(chan struct{}),
	}
	decider, _ := newTestDecider(source)
	p := principalWithRole("admin", roleID)
	gate := Gate{Permissions: []string{"admin-view"}}

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = decider.Decide(context.Background(), p, gate)
		}()
	}
	for source.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	close(source.release)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int64(1), source.calls.Load())
}

func TestDecideSourceErrorPropagates(t *testing.T) {
	roleID := uuid.New()
	boom := errors.New("db down")
	decider, cache := newTestDecider(&stubSource{err: boom})

	err := decider.Decide(context.Background(), principalWithRole("admin", roleID), Gate{Permissions: []string{"admin-view"}})
	require.ErrorIs(t, err, boom)

	_, ok := cache.Get(context.Background(), roleID)
	require.False(t, ok, "failed loads must not populate the cache")
}

func TestDecideNormalizesGateValues(t *testing.T) {
	roleID := uuid.New()
	source := &stubSource{sets: map[uuid.UUID][]string{roleID: {"admin-view"}}}
	decider, _ := newTestDecider(source)

	err := decider.Decide(context.Background(), principalWithRole("admin", roleID), Gate{
		Permissions: []string{"  Admin-View  ", "", "admin-view"},
	})
	require.NoError(t, err)
}

package roles

import (
	"context"
	"testing"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/helmsman-hq/helmsman/internal/permissions"
	"github.com/helmsman-hq/helmsman/internal/rbac"
	"github.com/helmsman-hq/helmsman/internal/shared"
)

type stubRepo struct {
	roles       map[uuid.UUID]*Role
	assignments map[uuid.UUID][]uuid.UUID
	adminCounts map[uuid.UUID]int
	perms       map[uuid.UUID]permissions.Permission

	replaceCalls int
	createCalls  int

	// onReplace runs inside ReplaceAssignments before it returns, letting
	// tests observe cache state at commit time.
	onReplace func()
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		roles:       make(map[uuid.UUID]*Role),
		assignments: make(map[uuid.UUID][]uuid.UUID),
		adminCounts: make(map[uuid.UUID]int),
		perms:       make(map[uuid.UUID]permissions.Permission),
	}
}

func (s *stubRepo) addRole(value string, permIDs ...uuid.UUID) uuid.UUID {
	id := uuid.New()
	s.roles[id] = &Role{ID: id, Name: value, Value: value}
	s.assignments[id] = permIDs
	return id
}

func (s *stubRepo) addPermission(actionKey string) uuid.UUID {
	id := uuid.New()
	s.perms[id] = permissions.Permission{ID: id, Name: actionKey, ActionKey: actionKey}
	return id
}

func (s *stubRepo) Create(_ context.Context, role Role, permissionIDs []uuid.UUID) (uuid.UUID, error) {
	s.createCalls++
	id := uuid.New()
	role.ID = id
	s.roles[id] = &role
	s.assignments[id] = permissionIDs
	return id, nil
}

func (s *stubRepo) FindWithAssignments(_ context.Context, id uuid.UUID, includeDeleted bool) (*Role, error) {
	role, ok := s.roles[id]
	if !ok || (!includeDeleted && role.DeletedAt != nil) {
		return nil, shared.ErrNotFound
	}
	out := *role
	out.Permissions = nil
	for _, pid := range s.assignments[id] {
		if p, ok := s.perms[pid]; ok && p.DeletedAt == nil {
			out.Permissions = append(out.Permissions, p)
		}
	}
	return &out, nil
}

func (s *stubRepo) FindWithAdmins(_ context.Context, id uuid.UUID, includeDeleted bool) (*Role, error) {
	role, ok := s.roles[id]
	if !ok || (!includeDeleted && role.DeletedAt != nil) {
		return nil, shared.ErrNotFound
	}
	out := *role
	return &out, nil
}

func (s *stubRepo) FindByValue(_ context.Context, value string) (*Role, error) {
	for _, role := range s.roles {
		if role.Value == value && role.DeletedAt == nil {
			out := *role
			return &out, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubRepo) List(_ context.Context, includeDeleted bool) ([]Role, error) {
	var out []Role
	for _, role := range s.roles {
		if !includeDeleted && role.DeletedAt != nil {
			continue
		}
		out = append(out, *role)
	}
	return out, nil
}

func (s *stubRepo) ReplaceAssignments(_ context.Context, role Role, permissionIDs []uuid.UUID) error {
	s.replaceCalls++
	current, ok := s.roles[role.ID]
	if !ok || current.DeletedAt != nil {
		return shared.ErrNotFound
	}
	current.Name = role.Name
	current.Value = role.Value
	current.Description = role.Description
	s.assignments[role.ID] = permissionIDs
	if s.onReplace != nil {
		s.onReplace()
	}
	return nil
}

func (s *stubRepo) CountAdmins(_ context.Context, id uuid.UUID) (int, error) {
	return s.adminCounts[id], nil
}

func (s *stubRepo) SoftDelete(_ context.Context, id uuid.UUID) error {
	role, ok := s.roles[id]
	if !ok || role.DeletedAt != nil {
		return shared.ErrNotFound
	}
	now := nowRef()
	role.DeletedAt = &now
	return nil
}

func (s *stubRepo) Restore(_ context.Context, id uuid.UUID) error {
	role, ok := s.roles[id]
	if !ok || role.DeletedAt == nil {
		return shared.ErrNotFound
	}
	role.DeletedAt = nil
	return nil
}

func (s *stubRepo) HardDelete(_ context.Context, id uuid.UUID) error {
	if _, ok := s.roles[id]; !ok {
		return shared.ErrNotFound
	}
	delete(s.roles, id)
	delete(s.assignments, id)
	return nil
}

func (s *stubRepo) ResolveActionKeys(_ context.Context, roleID uuid.UUID) ([]string, error) {
	role, ok := s.roles[roleID]
	if !ok || role.DeletedAt != nil {
		return nil, nil
	}
	var keys []string
	for _, pid := range s.assignments[roleID] {
		if p, ok := s.perms[pid]; ok && p.DeletedAt == nil {
			keys = append(keys, p.ActionKey)
		}
	}
	return keys, nil
}

func (s *stubRepo) FindByIDs(_ context.Context, ids []uuid.UUID, excludeDeleted bool) ([]permissions.Permission, error) {
	var out []permissions.Permission
	for _, id := range ids {
		p, ok := s.perms[id]
		if !ok {
			continue
		}
		if excludeDeleted && p.DeletedAt != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

var _ Repository = (*stubRepo)(nil)
var _ PermissionFinder = (*stubRepo)(nil)

func nowRef() time.Time { return time.Now() }

func newTestService(repo *stubRepo) (*Service, *rbac.MemoryStore, *rbac.PermissionCache) {
	store := rbac.NewMemoryStore(16, nil)
	cache := rbac.NewPermissionCache(store, slog.Default(), nil)
	svc := NewService(repo, repo, cache, nil, slog.Default())
	return svc, store, cache
}

func TestCreateRejectsDuplicateValue(t *testing.T) {
	repo := newStubRepo()
	repo.addRole("editor")
	svc, _, _ := newTestService(repo)

	_, err := svc.Create(context.Background(), nil, Input{Name: "Editor", Value: "Editor"})
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Zero(t, repo.createCalls)
}

func TestCreateDropsUnknownAndDeletedPermissionIDs(t *testing.T) {
	repo := newStubRepo()
	live := repo.addPermission("admin-view")
	deleted := repo.addPermission("admin-update")
	p := repo.perms[deleted]
	now := nowRef()
	p.DeletedAt = &now
	repo.perms[deleted] = p
	svc, _, _ := newTestService(repo)

	role, err := svc.Create(context.Background(), nil, Input{
		Name:          "Viewer",
		Value:         "viewer",
		PermissionIDs: []uuid.UUID{live, deleted, uuid.New(), live},
	})
	require.NoError(t, err)
	require.Len(t, role.Permissions, 1)
	require.Equal(t, live, role.Permissions[0].ID)
}

func TestUpdateInvalidatesCacheAfterCommit(t *testing.T) {
	repo := newStubRepo()
	view := repo.addPermission("admin-view")
	update := repo.addPermission("admin-update")
	roleID := repo.addRole("editor", view)
	svc, store, cache := newTestService(repo)

	ctx := context.Background()
	cache.Put(ctx, roleID, []string{"admin-view"})

	var cachedAtCommit bool
	repo.onReplace = func() {
		_, cachedAtCommit = cache.Get(ctx, roleID)
	}

	role, err := svc.Update(ctx, nil, roleID, Input{PermissionIDs: []uuid.UUID{update}})
	require.NoError(t, err)
	require.True(t, cachedAtCommit, "entry must survive until the transaction commits")

	_, ok := cache.Get(ctx, roleID)
	require.False(t, ok, "entry must be gone after the update returns")
	require.Equal(t, []string{"admin-update"}, role.ActionKeys())
	require.Equal(t, 0, store.Len())
}

func TestUpdateValueConflictWritesNothing(t *testing.T) {
	repo := newStubRepo()
	roleID := repo.addRole("editor")
	repo.addRole("viewer")
	svc, _, cache := newTestService(repo)

	ctx := context.Background()
	cache.Put(ctx, roleID, []string{"admin-view"})

	_, err := svc.Update(ctx, nil, roleID, Input{Value: "viewer"})
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Zero(t, repo.replaceCalls)

	keys, ok := cache.Get(ctx, roleID)
	require.True(t, ok)
	require.Equal(t, []string{"admin-view"}, keys)
}

func TestUpdateIsIdempotent(t *testing.T) {
	repo := newStubRepo()
	view := repo.addPermission("admin-view")
	roleID := repo.addRole("editor", view)
	svc, _, _ := newTestService(repo)

	ctx := context.Background()
	in := Input{Name: "Editor", Value: "editor", PermissionIDs: []uuid.UUID{view}}
	first, err := svc.Update(ctx, nil, roleID, in)
	require.NoError(t, err)
	second, err := svc.Update(ctx, nil, roleID, in)
	require.NoError(t, err)
	require.Equal(t, first.ActionKeys(), second.ActionKeys())
	require.Equal(t, first.Value, second.Value)
}

func TestUpdateMissingRole(t *testing.T) {
	repo := newStubRepo()
	svc, _, _ := newTestService(repo)

	_, err := svc.Update(context.Background(), nil, uuid.New(), Input{Value: "ghost"})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRemoveBlockedWhileAdminsHoldRole(t *testing.T) {
	repo := newStubRepo()
	view := repo.addPermission("admin-view")
	roleID := repo.addRole("editor", view)
	repo.adminCounts[roleID] = 2
	svc, _, cache := newTestService(repo)

	ctx := context.Background()
	cache.Put(ctx, roleID, []string{"admin-view"})

	err := svc.Remove(ctx, nil, roleID)
	require.ErrorIs(t, err, shared.ErrRoleInUse)
	require.Contains(t, err.Error(), "2 admin")

	_, stillThere := repo.roles[roleID]
	require.True(t, stillThere)
	require.Equal(t, []uuid.UUID{view}, repo.assignments[roleID])
	_, cached := cache.Get(ctx, roleID)
	require.True(t, cached)
}

func TestRemoveUnreferencedRole(t *testing.T) {
	repo := newStubRepo()
	roleID := repo.addRole("editor")
	svc, _, cache := newTestService(repo)

	ctx := context.Background()
	cache.Put(ctx, roleID, []string{"admin-view"})

	require.NoError(t, svc.Remove(ctx, nil, roleID))
	_, gone := repo.roles[roleID]
	require.False(t, gone)
	_, cached := cache.Get(ctx, roleID)
	require.False(t, cached)
}

func TestSoftRemoveAndRestoreRoundTrip(t *testing.T) {
	repo := newStubRepo()
	view := repo.addPermission("admin-view")
	roleID := repo.addRole("editor", view)
	svc, _, cache := newTestService(repo)

	ctx := context.Background()
	cache.Put(ctx, roleID, []string{"admin-view"})

	require.NoError(t, svc.SoftRemove(ctx, nil, roleID))
	_, cached := cache.Get(ctx, roleID)
	require.False(t, cached)
	_, err := svc.Get(ctx, roleID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	restored, err := svc.Restore(ctx, nil, roleID)
	require.NoError(t, err)
	require.Equal(t, StatusActive, restored.Status())
	require.Equal(t, []string{"admin-view"}, restored.ActionKeys())
}

func TestEmptyPermissionSetClearsAssignments(t *testing.T) {
	repo := newStubRepo()
	view := repo.addPermission("admin-view")
	roleID := repo.addRole("editor", view)
	svc, _, _ := newTestService(repo)

	role, err := svc.Update(context.Background(), nil, roleID, Input{PermissionIDs: nil})
	require.NoError(t, err)
	require.Empty(t, role.Permissions)
	require.Empty(t, repo.assignments[roleID])
}

package admins

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/helmsman-hq/helmsman/internal/roles"
	"github.com/helmsman-hq/helmsman/internal/shared"
)

type stubRepo struct {
	admins map[uuid.UUID]*Admin
}

func newStubRepo() *stubRepo {
	return &stubRepo{admins: make(map[uuid.UUID]*Admin)}
}

func (s *stubRepo) Create(_ context.Context, admin Admin) (*Admin, error) {
	for _, existing := range s.admins {
		if existing.DeletedAt == nil && (existing.Email == admin.Email || existing.IC == admin.IC) {
			return nil, shared.ErrConflict
		}
	}
	admin.ID = uuid.New()
	s.admins[admin.ID] = &admin
	out := admin
	return &out, nil
}

func (s *stubRepo) Find(_ context.Context, id uuid.UUID, includeDeleted bool) (*Admin, error) {
	admin, ok := s.admins[id]
	if !ok || (!includeDeleted && admin.DeletedAt != nil) {
		return nil, shared.ErrNotFound
	}
	out := *admin
	return &out, nil
}

func (s *stubRepo) FindByEmail(_ context.Context, email string) (*Admin, error) {
	for _, admin := range s.admins {
		if admin.Email == email && admin.DeletedAt == nil {
			out := *admin
			return &out, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubRepo) List(_ context.Context, includeDeleted bool, limit, offset int) ([]Admin, error) {
	var all []Admin
	for _, admin := range s.admins {
		if !includeDeleted && admin.DeletedAt != nil {
			continue
		}
		all = append(all, *admin)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UserName < all[j].UserName })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *stubRepo) Count(_ context.Context, includeDeleted bool) (int, error) {
	total := 0
	for _, admin := range s.admins {
		if !includeDeleted && admin.DeletedAt != nil {
			continue
		}
		total++
	}
	return total, nil
}

func (s *stubRepo) Update(_ context.Context, admin Admin) (*Admin, error) {
	current, ok := s.admins[admin.ID]
	if !ok || current.DeletedAt != nil {
		return nil, shared.ErrNotFound
	}
	admin.CreatedAt = current.CreatedAt
	s.admins[admin.ID] = &admin
	out := admin
	return &out, nil
}

func (s *stubRepo) SoftDelete(_ context.Context, id uuid.UUID) error {
	admin, ok := s.admins[id]
	if !ok || admin.DeletedAt != nil {
		return shared.ErrNotFound
	}
	now := time.Now()
	admin.DeletedAt = &now
	return nil
}

func (s *stubRepo) Restore(_ context.Context, id uuid.UUID) error {
	admin, ok := s.admins[id]
	if !ok || admin.DeletedAt == nil {
		return shared.ErrNotFound
	}
	admin.DeletedAt = nil
	return nil
}

func (s *stubRepo) HardDelete(_ context.Context, id uuid.UUID) error {
	if _, ok := s.admins[id]; !ok {
		return shared.ErrNotFound
	}
	delete(s.admins, id)
	return nil
}

var _ Repository = (*stubRepo)(nil)

type stubRoles struct {
	known map[uuid.UUID]bool
}

func (s *stubRoles) FindWithAssignments(_ context.Context, id uuid.UUID, _ bool) (*roles.Role, error) {
	if !s.known[id] {
		return nil, shared.ErrNotFound
	}
	return &roles.Role{ID: id}, nil
}

func newTestService(repo *stubRepo, dir *stubRoles) *Service {
	return NewService(repo, dir, nil, slog.Default())
}

func validCreate() CreateInput {
	return CreateInput{
		IC:        "900101-14-5678",
		UserName:  "jtan",
		FirstName: "Jia",
		LastName:  "Tan",
		Email:     "  Jia.Tan@Example.COM ",
		Password:  "correct horse",
	}
}

func TestCreateHashesPassword(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo, &stubRoles{})

	created, err := svc.Create(context.Background(), nil, validCreate())
	require.NoError(t, err)
	require.NotEqual(t, "correct horse", created.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("correct horse")))
	require.Equal(t, "jia.tan@example.com", created.Email)
}

func TestCreateRejectsShortPassword(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo, &stubRoles{})

	in := validCreate()
	in.Password = "short"
	_, err := svc.Create(context.Background(), nil, in)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, repo.admins)
}

func TestCreateRejectsUnknownRole(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo, &stubRoles{known: map[uuid.UUID]bool{}})

	in := validCreate()
	ghost := uuid.New()
	in.RoleID = &ghost
	_, err := svc.Create(context.Background(), nil, in)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateWithKnownRole(t *testing.T) {
	roleID := uuid.New()
	repo := newStubRepo()
	svc := newTestService(repo, &stubRoles{known: map[uuid.UUID]bool{roleID: true}})

	in := validCreate()
	in.RoleID = &roleID
	created, err := svc.Create(context.Background(), nil, in)
	require.NoError(t, err)
	require.Equal(t, roleID, *created.RoleID)
}

func TestUpdateClearsRoleWithNilUUID(t *testing.T) {
	roleID := uuid.New()
	repo := newStubRepo()
	svc := newTestService(repo, &stubRoles{known: map[uuid.UUID]bool{roleID: true}})

	in := validCreate()
	in.RoleID = &roleID
	created, err := svc.Create(context.Background(), nil, in)
	require.NoError(t, err)

	clear := uuid.Nil
	updated, err := svc.Update(context.Background(), nil, created.ID, UpdateInput{RoleID: &clear})
	require.NoError(t, err)
	require.Nil(t, updated.RoleID)
}

func TestUpdateRehashesPassword(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo, &stubRoles{})

	created, err := svc.Create(context.Background(), nil, validCreate())
	require.NoError(t, err)

	next := "battery staple"
	updated, err := svc.Update(context.Background(), nil, created.ID, UpdateInput{Password: &next})
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(updated.PasswordHash), []byte(next)))
	require.Error(t, bcrypt.CompareHashAndPassword([]byte(updated.PasswordHash), []byte("correct horse")))
}

func TestProfileUpdateIgnoresPrivilegedFields(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo, &stubRoles{})

	created, err := svc.Create(context.Background(), nil, validCreate())
	require.NoError(t, err)

	name := "jia.t"
	principal := &shared.Principal{ID: created.ID, Email: created.Email}
	updated, err := svc.UpdateProfile(context.Background(), principal, ProfileInput{UserName: &name})
	require.NoError(t, err)
	require.Equal(t, "jia.t", updated.UserName)
	require.Equal(t, created.IC, updated.IC)
	require.Equal(t, created.Email, updated.Email)
}

func TestProfileRequiresPrincipal(t *testing.T) {
	svc := newTestService(newStubRepo(), &stubRoles{})
	_, err := svc.Profile(context.Background(), nil)
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestListPaginates(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo, &stubRoles{})

	for i := 0; i < 5; i++ {
		in := validCreate()
		in.IC = fmt.Sprintf("900101-14-%04d", i)
		in.UserName = fmt.Sprintf("user%d", i)
		in.Email = fmt.Sprintf("user%d@example.com", i)
		_, err := svc.Create(context.Background(), nil, in)
		require.NoError(t, err)
	}

	out, meta, err := svc.List(context.Background(), 2, 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, 2, meta.Page)
	require.Equal(t, 5, meta.Total)
	require.Equal(t, 3, meta.TotalPages)
	require.Equal(t, "user2", out[0].UserName)

	out, meta, err = svc.List(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Len(t, out, 5)
	require.Equal(t, 1, meta.Page)
	require.Equal(t, 20, meta.PerPage)
}

func TestSoftRemoveRestoreRoundTrip(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo, &stubRoles{})

	created, err := svc.Create(context.Background(), nil, validCreate())
	require.NoError(t, err)

	require.NoError(t, svc.SoftRemove(context.Background(), nil, created.ID))
	_, err = svc.Get(context.Background(), created.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	ghost, err := svc.GetSoftRemoved(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSoftDeleted, ghost.Status())

	restored, err := svc.Restore(context.Background(), nil, created.ID)
	require.NoError(t, err)
	require.Equal(t, StatusActive, restored.Status())
}

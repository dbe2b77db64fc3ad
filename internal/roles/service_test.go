package roles

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	roles []Role
	calls int
}

func (m *memoryRepo) ListRoles(ctx context.Context) ([]Role, error) {
	m.calls++
	return m.roles, nil
}

func (m *memoryRepo) GetByShort(ctx context.Context, short string) (Role, error) {
	return Role{}, ErrRoleNotFound
}

func (m *memoryRepo) GetByID(ctx context.Context, id int64) (Role, error) {
	return Role{}, ErrRoleNotFound
}

type memberDirectory map[int64][]Member

func (d memberDirectory) MembersByRole(ctx context.Context) (map[int64][]Member, error) {
	return d, nil
}

func seededRepo() *memoryRepo {
	return &memoryRepo{roles: []Role{
		{ID: 1, Short: ShortSuperAdmin, Title: "Super Admins", Level: 0},
		{ID: 2, Short: ShortAdmin, Title: "Admins", Level: 1},
		{ID: 3, Short: ShortStaff, Title: "Staff", Level: 2},
	}}
}

func TestServiceCachesRoleList(t *testing.T) {
	repo := seededRepo()
	svc := NewService(repo)

	_, err := svc.ListRoles(context.Background())
	require.NoError(t, err)
	role, err := svc.Get(context.Background(), ShortAdmin)
	require.NoError(t, err)
	require.Equal(t, int64(2), role.ID)
	require.Equal(t, 1, repo.calls)

	_, err = svc.Get(context.Background(), "owner")
	require.ErrorIs(t, err, ErrRoleNotFound)
}

func TestLowestAndGrantable(t *testing.T) {
	svc := NewService(seededRepo())

	lowest, err := svc.Lowest(context.Background())
	require.NoError(t, err)
	require.Equal(t, ShortStaff, lowest.Short)

	admin, err := svc.Get(context.Background(), ShortAdmin)
	require.NoError(t, err)
	grantable, err := svc.Grantable(context.Background(), admin)
	require.NoError(t, err)
	require.Len(t, grantable, 1)
	require.Equal(t, ShortStaff, grantable[0].Short)

	super, err := svc.Get(context.Background(), ShortSuperAdmin)
	require.NoError(t, err)
	grantable, err = svc.Grantable(context.Background(), super)
	require.NoError(t, err)
	require.Len(t, grantable, 2)
}

func TestRoleRanking(t *testing.T) {
	svc := NewService(seededRepo())
	super, _ := svc.Get(context.Background(), ShortSuperAdmin)
	staff, _ := svc.Get(context.Background(), ShortStaff)

	require.True(t, super.HasAdmin())
	require.True(t, super.Outranks(staff))
	require.False(t, staff.Outranks(super))
	require.False(t, staff.HasAdmin())
}

func TestListWithMembers(t *testing.T) {
	svc := NewService(seededRepo())
	grouped, err := svc.ListWithMembers(context.Background(), memberDirectory{
		3: {{ID: 7, Name: "Grace", Email: "grace@example.com"}},
	})
	require.NoError(t, err)
	require.Len(t, grouped, 3)
	require.Empty(t, grouped[0].Members)
	require.Equal(t, "Grace", grouped[2].Members[0].Name)
}

package auth

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inventory-manager/inventory-manager/internal/roles"
	"github.com/inventory-manager/inventory-manager/internal/shared"
	"github.com/inventory-manager/inventory-manager/internal/users"
)

type memoryRepo struct {
	mu     sync.Mutex
	users  []users.NewUser
	audits []shared.AuditLog
}

func (m *memoryRepo) FindByEmail(ctx context.Context, email string) (users.User, error) {
	return users.User{}, users.ErrUserNotFound
}

func (m *memoryRepo) CreateSession(ctx context.Context, session LoginSession) error { return nil }

func (m *memoryRepo) DeleteSession(ctx context.Context, id string) error { return nil }

func (m *memoryRepo) CountUsers(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.users)), nil
}

// WithTx holds the mutex for the whole callback, standing in for the
// advisory lock.
func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memoryTx{users: append([]users.NewUser(nil), m.users...)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.users = tx.users
	m.audits = append(m.audits, tx.audits...)
	return nil
}

type memoryTx struct {
	users  []users.NewUser
	audits []shared.AuditLog
}

func (t *memoryTx) LockSetup(ctx context.Context) error { return nil }

func (t *memoryTx) CountUsers(ctx context.Context) (int64, error) { return int64(len(t.users)), nil }

func (t *memoryTx) InsertUser(ctx context.Context, in users.NewUser) (int64, error) {
	t.users = append(t.users, in)
	return int64(len(t.users)), nil
}

func (t *memoryTx) WriteAudit(ctx context.Context, log shared.AuditLog) error {
	t.audits = append(t.audits, log)
	return nil
}

type roleSource struct{}

func (roleSource) Get(ctx context.Context, short string) (roles.Role, error) {
	return roles.Role{ID: 1, Short: short, Level: 0}, nil
}

func validSetup() SetupInput {
	return SetupInput{Name: "Root", Email: "root@example.com", Password: "s3cret-pass", PasswordConfirm: "s3cret-pass"}
}

func TestSetupCreatesFirstSuperAdminOnce(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo, roleSource{}, nil)

	id, err := svc.Setup(context.Background(), validSetup())
	require.NoError(t, err)
	require.Equal(t, int64(1), id)
	require.Len(t, repo.users, 1)
	require.Equal(t, int64(1), repo.users[0].RoleID)
	require.NotEqual(t, "s3cret-pass", repo.users[0].PasswordHash)
	require.Len(t, repo.audits, 1)
	require.Equal(t, shared.AuditUserSetup, repo.audits[0].Action)

	_, err = svc.Setup(context.Background(), validSetup())
	require.ErrorIs(t, err, ErrAlreadySetup)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Len(t, repo.users, 1)
}

func TestSetupConcurrentAttemptsCreateOneUser(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo, roleSource{}, nil)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Setup(context.Background(), validSetup())
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, ErrAlreadySetup)
	}
	require.Equal(t, 1, succeeded)
	require.Len(t, repo.users, 1)
}

func TestSetupValidatesForm(t *testing.T) {
	svc := NewService(&memoryRepo{}, roleSource{}, nil)
	in := validSetup()
	in.PasswordConfirm = "different"
	in.Email = "nope"

	_, err := svc.Setup(context.Background(), in)
	var verrs shared.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Contains(t, verrs, "email")
	require.Contains(t, verrs, "password_confirm")
}

func TestSafeNext(t *testing.T) {
	cases := map[string]string{
		"":                     "",
		"/assets/":             "/assets/",
		"/assets/?filter=lost": "/assets/?filter=lost",
		"//evil.example.com":   "",
		"/\\evil.example.com":  "",
		"https://evil.example": "",
		"javascript:alert(1)":  "",
		"assets":               "",
	}
	for in, want := range cases {
		require.Equal(t, want, safeNext(in), in)
	}
}

func TestClientSummary(t *testing.T) {
	ua := "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	summary := ClientSummary(ua)
	require.Contains(t, summary, "Chrome")
	require.Contains(t, summary, "Linux")
	require.Empty(t, ClientSummary(""))
}

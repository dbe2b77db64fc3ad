package passwordreset

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inventory-manager/inventory-manager/internal/platform/mail"
	"github.com/inventory-manager/inventory-manager/internal/shared"
	"github.com/inventory-manager/inventory-manager/internal/users"
)

type memoryRepo struct {
	mu       sync.Mutex
	users    map[int64]users.User
	requests []Request
	audits   []shared.AuditLog
}

func newMemoryRepo() *memoryRepo {
	old := "old-hash"
	return &memoryRepo{users: map[int64]users.User{
		1: {ID: 1, Email: "ada@example.com", Name: "Ada", PasswordHash: &old},
	}}
}

func (m *memoryRepo) FindUserByEmail(ctx context.Context, email string) (users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return users.User{}, users.ErrUserNotFound
}

func (m *memoryRepo) FindByTokenHash(ctx context.Context, tokenHash string) (Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.TokenHash == tokenHash {
			return r, nil
		}
	}
	return Request{}, ErrInvalidToken
}

// WithTx serialises callers, which is what the row lock gives in postgres.
func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memoryTx{users: map[int64]users.User{}, requests: append([]Request(nil), m.requests...)}
	for id, u := range m.users {
		tx.users[id] = u
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.users, m.requests = tx.users, tx.requests
	m.audits = append(m.audits, tx.audits...)
	return nil
}

type memoryTx struct {
	users    map[int64]users.User
	requests []Request
	audits   []shared.AuditLog
}

func (t *memoryTx) InsertRequest(ctx context.Context, req *Request) error {
	req.ID = int64(len(t.requests) + 1)
	t.requests = append(t.requests, *req)
	return nil
}

func (t *memoryTx) LockByTokenHash(ctx context.Context, tokenHash string) (Request, error) {
	for _, r := range t.requests {
		if r.TokenHash == tokenHash {
			return r, nil
		}
	}
	return Request{}, ErrInvalidToken
}

func (t *memoryTx) GetUser(ctx context.Context, id int64) (users.User, error) {
	u, ok := t.users[id]
	if !ok {
		return users.User{}, users.ErrUserNotFound
	}
	return u, nil
}

func (t *memoryTx) UpdatePasswordHash(ctx context.Context, userID int64, hash string) error {
	u := t.users[userID]
	u.PasswordHash = &hash
	t.users[userID] = u
	return nil
}

func (t *memoryTx) MarkUsed(ctx context.Context, id int64, at time.Time) error {
	for i := range t.requests {
		if t.requests[i].ID == id && !t.requests[i].Used {
			t.requests[i].Used = true
			t.requests[i].UsedAt = &at
			return nil
		}
	}
	return ErrInvalidToken
}

func (t *memoryTx) WriteAudit(ctx context.Context, log shared.AuditLog) error {
	t.audits = append(t.audits, log)
	return nil
}

type fakeMailer struct {
	sent []mail.Message
	err  error
}

func (f *fakeMailer) Send(ctx context.Context, msg mail.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestService(repo *memoryRepo, mailer *fakeMailer) (*Service, *clock) {
	c := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc := NewService(repo, mailer, Config{BaseURL: "https://inventory.example"}, nil)
	svc.now = c.now
	svc.token = func() (string, error) { return "fixed-token-value", nil }
	return svc, c
}

func newPassword(email string) PerformInput {
	return PerformInput{Email: email, Password: "brand-new-pass", PasswordConfirm: "brand-new-pass"}
}

func TestRequestResetMailsLink(t *testing.T) {
	repo := newMemoryRepo()
	mailer := &fakeMailer{}
	svc, _ := newTestService(repo, mailer)

	require.NoError(t, svc.RequestReset(context.Background(), RequestInput{Email: "ADA@example.com"}))
	require.Len(t, mailer.sent, 1)
	require.Equal(t, "ada@example.com", mailer.sent[0].To)
	require.Contains(t, mailer.sent[0].Text, "https://inventory.example/password_reset/fixed-token-value")
	require.Contains(t, mailer.sent[0].Text, "24 hours")
	require.Len(t, repo.requests, 1)
	require.Equal(t, shared.FingerprintToken("fixed-token-value"), repo.requests[0].TokenHash)
}

func TestRequestResetUnknownEmailIsSilent(t *testing.T) {
	repo := newMemoryRepo()
	mailer := &fakeMailer{}
	svc, _ := newTestService(repo, mailer)

	require.NoError(t, svc.RequestReset(context.Background(), RequestInput{Email: "nobody@example.com"}))
	require.Empty(t, mailer.sent)
	require.Empty(t, repo.requests)
}

func TestRequestResetMailFailureRollsBack(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo, &fakeMailer{err: shared.NewError(shared.ErrTransport, "smtp down")})

	err := svc.RequestReset(context.Background(), RequestInput{Email: "ada@example.com"})
	require.ErrorIs(t, err, shared.ErrTransport)
	require.Empty(t, repo.requests)
}

func TestPerformResetIsSingleUse(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo, &fakeMailer{})
	require.NoError(t, svc.RequestReset(context.Background(), RequestInput{Email: "ada@example.com"}))
	require.NoError(t, svc.Inspect(context.Background(), "fixed-token-value"))

	require.NoError(t, svc.PerformReset(context.Background(), "fixed-token-value", newPassword("ada@example.com")))
	require.True(t, shared.CheckPassword(repo.users[1].PasswordHash, "brand-new-pass"))
	require.True(t, repo.requests[0].Used)
	require.Equal(t, shared.AuditPasswordReset, repo.audits[0].Action)

	err := svc.PerformReset(context.Background(), "fixed-token-value", newPassword("ada@example.com"))
	require.ErrorIs(t, err, ErrInvalidToken)
	require.ErrorIs(t, svc.Inspect(context.Background(), "fixed-token-value"), ErrInvalidToken)
}

func TestPerformResetErrors(t *testing.T) {
	repo := newMemoryRepo()
	svc, c := newTestService(repo, &fakeMailer{})
	require.NoError(t, svc.RequestReset(context.Background(), RequestInput{Email: "ada@example.com"}))

	err := svc.PerformReset(context.Background(), "unknown", newPassword("ada@example.com"))
	require.ErrorIs(t, err, ErrInvalidToken)

	err = svc.PerformReset(context.Background(), "fixed-token-value", newPassword("eve@example.com"))
	require.ErrorIs(t, err, shared.ErrEmailMismatch)
	require.False(t, repo.requests[0].Used)
	require.Equal(t, "old-hash", *repo.users[1].PasswordHash)

	c.t = c.t.Add(DefaultTTL + time.Second)
	err = svc.PerformReset(context.Background(), "fixed-token-value", newPassword("ada@example.com"))
	require.ErrorIs(t, err, ErrExpiredToken)
	require.ErrorIs(t, err, shared.ErrExpired)
	require.Equal(t, "old-hash", *repo.users[1].PasswordHash)
}

func TestPerformResetConcurrentUse(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo, &fakeMailer{})
	require.NoError(t, svc.RequestReset(context.Background(), RequestInput{Email: "ada@example.com"}))

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.PerformReset(context.Background(), "fixed-token-value", newPassword("ada@example.com"))
		}(i)
	}
	wg.Wait()
	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		require.ErrorIs(t, err, ErrInvalidToken)
	}
	require.Equal(t, 1, ok)
	require.Len(t, repo.audits, 1)
}

func TestHumanTTL(t *testing.T) {
	require.Equal(t, "24 hours", HumanTTL(24*time.Hour))
	require.Equal(t, "1 hour", HumanTTL(time.Hour))
	require.Equal(t, "30 minutes", HumanTTL(30*time.Minute))
}

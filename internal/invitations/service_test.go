package invitations

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inventory-manager/inventory-manager/internal/platform/mail"
	"github.com/inventory-manager/inventory-manager/internal/rbac"
	"github.com/inventory-manager/inventory-manager/internal/roles"
	"github.com/inventory-manager/inventory-manager/internal/shared"
	"github.com/inventory-manager/inventory-manager/internal/users"
)

var (
	superRole = roles.Role{ID: 1, Short: roles.ShortSuperAdmin, Title: "Super Admins", Level: 0}
	adminRole = roles.Role{ID: 2, Short: roles.ShortAdmin, Title: "Admins", Level: 1}
	staffRole = roles.Role{ID: 3, Short: roles.ShortStaff, Title: "Staff", Level: 2}
)

type roleDirectory struct{}

func (roleDirectory) all() []roles.Role { return []roles.Role{superRole, adminRole, staffRole} }

func (d roleDirectory) Get(ctx context.Context, short string) (roles.Role, error) {
	for _, r := range d.all() {
		if r.Short == short {
			return r, nil
		}
	}
	return roles.Role{}, roles.ErrRoleNotFound
}

func (roleDirectory) Lowest(ctx context.Context) (roles.Role, error) { return staffRole, nil }

func (d roleDirectory) Grantable(ctx context.Context, sender roles.Role) ([]roles.Role, error) {
	var out []roles.Role
	for _, r := range d.all() {
		if r.Level > sender.Level {
			out = append(out, r)
		}
	}
	return out, nil
}

type memoryRepo struct {
	mu          sync.Mutex
	invitations []Invitation
	users       []users.NewUser
	audits      []shared.AuditLog
}

func (m *memoryRepo) FindPending(ctx context.Context, tokenHash string) (Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invitations {
		if inv.TokenHash == tokenHash && !inv.Accepted {
			return inv, nil
		}
	}
	return Invitation{}, ErrInvalidInvite
}

func (m *memoryRepo) ListBySender(ctx context.Context, senderID int64) ([]Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Invitation
	for _, inv := range m.invitations {
		if inv.SenderID == senderID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memoryTx{
		invitations: append([]Invitation(nil), m.invitations...),
		users:       append([]users.NewUser(nil), m.users...),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.invitations, m.users = tx.invitations, tx.users
	m.audits = append(m.audits, tx.audits...)
	return nil
}

type memoryTx struct {
	invitations []Invitation
	users       []users.NewUser
	audits      []shared.AuditLog
}

func (t *memoryTx) EmailExists(ctx context.Context, email string) (bool, error) {
	for _, u := range t.users {
		if strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) InsertInvitation(ctx context.Context, inv *Invitation) error {
	inv.ID = int64(len(t.invitations) + 1)
	t.invitations = append(t.invitations, *inv)
	return nil
}

func (t *memoryTx) InsertUser(ctx context.Context, in users.NewUser) (int64, error) {
	t.users = append(t.users, in)
	return int64(len(t.users)), nil
}

func (t *memoryTx) Consume(ctx context.Context, tokenHash string, userID int64, at time.Time) (bool, error) {
	for i := range t.invitations {
		if t.invitations[i].TokenHash == tokenHash && !t.invitations[i].Accepted {
			t.invitations[i].Accepted = true
			t.invitations[i].AcceptedBy = &userID
			t.invitations[i].AcceptedAt = &at
			return true, nil
		}
	}
	return false, nil
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

func newService(repo *memoryRepo, mailer *fakeMailer, open bool) *Service {
	return NewService(repo, roleDirectory{}, mailer, Config{BaseURL: "https://inventory.example/", AllowOpenSignup: open}, nil)
}

// tokenFromMail pulls the raw invite token out of the mailed link.
func tokenFromMail(t *testing.T, msg mail.Message) string {
	t.Helper()
	idx := strings.Index(msg.Text, "https://inventory.example/signup?invite=")
	require.GreaterOrEqual(t, idx, 0, msg.Text)
	link := strings.Fields(msg.Text[idx:])[0]
	u, err := url.Parse(link)
	require.NoError(t, err)
	return u.Query().Get("invite")
}

func TestInviteRoleLevelRule(t *testing.T) {
	tests := []struct {
		name   string
		sender roles.Role
		target string
		want   error
	}{
		{"super invites staff", superRole, roles.ShortStaff, nil},
		{"super invites admin", superRole, roles.ShortAdmin, nil},
		{"admin invites staff", adminRole, roles.ShortStaff, nil},
		{"admin invites admin", adminRole, roles.ShortAdmin, ErrRoleNotGrantable},
		{"admin invites super", adminRole, roles.ShortSuperAdmin, ErrRoleNotGrantable},
		{"staff invites admin", staffRole, roles.ShortAdmin, shared.ErrPermission},
		{"staff invites staff", staffRole, roles.ShortStaff, shared.ErrPermission},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := &memoryRepo{}
			mailer := &fakeMailer{}
			svc := newService(repo, mailer, false)
			sender := &rbac.Principal{ID: 9, Name: "Sender", Role: tc.sender}

			_, err := svc.Invite(context.Background(), sender, InviteInput{Email: "new@example.com", Role: tc.target})
			if tc.want == nil {
				require.NoError(t, err)
				require.Len(t, repo.invitations, 1)
				require.Len(t, mailer.sent, 1)
				return
			}
			require.ErrorIs(t, err, tc.want)
			require.ErrorIs(t, err, shared.ErrPermission)
			require.Empty(t, repo.invitations)
			require.Empty(t, mailer.sent)
		})
	}
}

func TestInviteStoresFingerprintOnly(t *testing.T) {
	repo := &memoryRepo{}
	mailer := &fakeMailer{}
	svc := newService(repo, mailer, false)

	inv, err := svc.Invite(context.Background(), &rbac.Principal{ID: 1, Name: "Root", Role: superRole}, InviteInput{Email: "grace@example.com", Role: roles.ShortStaff})
	require.NoError(t, err)
	token := tokenFromMail(t, mailer.sent[0])
	require.NotEmpty(t, token)
	require.NotEqual(t, token, inv.TokenHash)
	require.Equal(t, shared.FingerprintToken(token), inv.TokenHash)
	require.Len(t, inv.PublicID, 26)
	require.Contains(t, mailer.sent[0].Text, "Root invited you")
	require.Equal(t, shared.AuditInvitationIssued, repo.audits[0].Action)
}

func TestInviteMailFailureLeavesNoInvitation(t *testing.T) {
	repo := &memoryRepo{}
	mailer := &fakeMailer{err: shared.NewError(shared.ErrTransport, "smtp down")}
	svc := newService(repo, mailer, false)

	_, err := svc.Invite(context.Background(), &rbac.Principal{ID: 1, Role: superRole}, InviteInput{Email: "grace@example.com", Role: roles.ShortStaff})
	require.ErrorIs(t, err, shared.ErrTransport)
	require.Empty(t, repo.invitations)
	require.Empty(t, repo.audits)
}

func TestInviteRejectsExistingAccount(t *testing.T) {
	repo := &memoryRepo{users: []users.NewUser{{Email: "Grace@example.com"}}}
	mailer := &fakeMailer{}
	svc := newService(repo, mailer, false)

	_, err := svc.Invite(context.Background(), &rbac.Principal{ID: 1, Role: superRole}, InviteInput{Email: "grace@example.com", Role: roles.ShortStaff})
	require.ErrorIs(t, err, shared.ErrEmailTaken)
	require.Empty(t, mailer.sent)
}

func TestInviteUnknownRole(t *testing.T) {
	svc := newService(&memoryRepo{}, &fakeMailer{}, false)

	_, err := svc.Invite(context.Background(), &rbac.Principal{ID: 1, Role: superRole}, InviteInput{Email: "grace@example.com", Role: "owner"})
	var verrs shared.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	require.Contains(t, verrs, "role")
}

func issue(t *testing.T, svc *Service, mailer *fakeMailer, email, role string) string {
	t.Helper()
	_, err := svc.Invite(context.Background(), &rbac.Principal{ID: 1, Role: superRole}, InviteInput{Email: email, Role: role})
	require.NoError(t, err)
	return tokenFromMail(t, mailer.sent[len(mailer.sent)-1])
}

func signup(token, email string) SignupInput {
	return SignupInput{Invite: token, Name: "Grace", Email: email, Password: "hopper-123", PasswordConfirm: "hopper-123"}
}

func TestCompleteSignupUsesInvitationOnce(t *testing.T) {
	repo := &memoryRepo{}
	mailer := &fakeMailer{}
	svc := newService(repo, mailer, false)
	token := issue(t, svc, mailer, "grace@example.com", roles.ShortAdmin)

	inv, err := svc.Resolve(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, adminRole.Title, inv.Role.Title)

	id, err := svc.CompleteSignup(context.Background(), signup(token, "GRACE@example.com"))
	require.NoError(t, err)
	require.Equal(t, int64(1), id)
	require.Equal(t, adminRole.ID, repo.users[0].RoleID)
	require.True(t, repo.invitations[0].Accepted)
	require.Equal(t, id, *repo.invitations[0].AcceptedBy)

	_, err = svc.CompleteSignup(context.Background(), signup(token, "grace@example.com"))
	require.ErrorIs(t, err, ErrInvalidInvite)
	require.Len(t, repo.users, 1)
}

func TestCompleteSignupErrors(t *testing.T) {
	repo := &memoryRepo{}
	mailer := &fakeMailer{}
	svc := newService(repo, mailer, false)
	token := issue(t, svc, mailer, "grace@example.com", roles.ShortStaff)

	_, err := svc.CompleteSignup(context.Background(), signup("not-a-token", "grace@example.com"))
	require.ErrorIs(t, err, ErrInvalidInvite)

	_, err = svc.CompleteSignup(context.Background(), signup(token, "someone-else@example.com"))
	require.ErrorIs(t, err, shared.ErrEmailMismatch)

	repo.users = append(repo.users, users.NewUser{Email: "grace@example.com"})
	_, err = svc.CompleteSignup(context.Background(), signup(token, "grace@example.com"))
	require.ErrorIs(t, err, shared.ErrEmailTaken)
	require.False(t, repo.invitations[0].Accepted)

	_, err = svc.CompleteSignup(context.Background(), signup("", "walk-in@example.com"))
	require.ErrorIs(t, err, ErrSignupClosed)
}

func TestOpenSignupGetsLowestRole(t *testing.T) {
	repo := &memoryRepo{}
	svc := newService(repo, &fakeMailer{}, true)

	_, err := svc.CompleteSignup(context.Background(), signup("", "walk-in@example.com"))
	require.NoError(t, err)
	require.Equal(t, staffRole.ID, repo.users[0].RoleID)
	require.Empty(t, repo.audits)
}

func TestConcurrentSignupsWithSameInvite(t *testing.T) {
	repo := &memoryRepo{}
	mailer := &fakeMailer{}
	svc := newService(repo, mailer, false)
	token := issue(t, svc, mailer, "grace@example.com", roles.ShortStaff)

	var wg sync.WaitGroup
	errs := make([]error, 6)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CompleteSignup(context.Background(), signup(token, "grace@example.com"))
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		}
	}
	require.Equal(t, 1, ok)
	require.Len(t, repo.users, 1)
}

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/inventory-manager/inventory-manager/internal/roles"
	"github.com/inventory-manager/inventory-manager/internal/shared"
	"github.com/inventory-manager/inventory-manager/internal/users"
)

// RoleSource resolves roles by short name.
type RoleSource interface {
	Get(ctx context.Context, short string) (roles.Role, error)
}

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	roles    RoleSource
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository, roles RoleSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, roles: roles, logger: logger, validate: shared.NewValidator(), now: time.Now}
}

// Authenticate validates email/password credentials. Accounts without a
// password hash cannot log in with a password.
func (s *Service) Authenticate(ctx context.Context, email, password string) (users.User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return users.User{}, shared.ErrInvalidCredentials
		}
		return users.User{}, err
	}
	if !shared.CheckPassword(user.PasswordHash, password) {
		return users.User{}, shared.ErrInvalidCredentials
	}
	return user, nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, session LoginSession) error {
	if session.Client == "" {
		session.Client = ClientSummary(session.UserAgent)
	}
	return s.repo.CreateSession(ctx, session)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// NeedsSetup reports whether no account exists yet.
func (s *Service) NeedsSetup(ctx context.Context) (bool, error) {
	n, err := s.repo.CountUsers(ctx)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// Setup creates the first super admin. Concurrent attempts are serialised by
// an advisory lock so only one of them can observe an empty users table.
func (s *Service) Setup(ctx context.Context, in SetupInput) (int64, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if verrs := shared.FormErrors(s.validate.Struct(in)); verrs != nil {
		return 0, verrs
	}
	super, err := s.roles.Get(ctx, roles.ShortSuperAdmin)
	if err != nil {
		return 0, err
	}
	hash, err := shared.HashPassword(in.Password)
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockSetup(ctx); err != nil {
			return err
		}
		n, err := tx.CountUsers(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrAlreadySetup
		}
		id, err = tx.InsertUser(ctx, users.NewUser{Email: in.Email, PasswordHash: hash, Name: in.Name, RoleID: super.ID})
		if err != nil {
			return err
		}
		return tx.WriteAudit(ctx, shared.AuditLog{
			ActorID:  id,
			Action:   shared.AuditUserSetup,
			Entity:   "user",
			EntityID: formatID(id),
			Meta:     map[string]any{"role": super.Short},
			At:       s.now(),
		})
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("first super admin created", slog.Int64("user_id", id))
	return id, nil
}

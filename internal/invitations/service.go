package invitations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/inventory-manager/inventory-manager/internal/platform/mail"
	"github.com/inventory-manager/inventory-manager/internal/rbac"
	"github.com/inventory-manager/inventory-manager/internal/roles"
	"github.com/inventory-manager/inventory-manager/internal/shared"
	"github.com/inventory-manager/inventory-manager/internal/users"
)

// RoleDirectory is the part of the role registry used by invitations.
type RoleDirectory interface {
	Get(ctx context.Context, short string) (roles.Role, error)
	Lowest(ctx context.Context) (roles.Role, error)
	Grantable(ctx context.Context, sender roles.Role) ([]roles.Role, error)
}

// Config tunes the invitation flow.
type Config struct {
	// BaseURL prefixes the sign-up link mailed to invitees.
	BaseURL         string
	AllowOpenSignup bool
}

// Service issues and redeems invitations.
type Service struct {
	repo     RepositoryPort
	roles    RoleDirectory
	mailer   mail.Sender
	cfg      Config
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
	token    func() (string, error)
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, roles RoleDirectory, mailer mail.Sender, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Service{
		repo:     repo,
		roles:    roles,
		mailer:   mailer,
		cfg:      cfg,
		logger:   logger,
		validate: shared.NewValidator(),
		now:      time.Now,
		token:    shared.GenerateToken,
	}
}

// AllowOpenSignup reports whether sign-up without an invitation is allowed.
func (s *Service) AllowOpenSignup() bool { return s.cfg.AllowOpenSignup }

// GrantableRoles lists the roles sender may offer.
func (s *Service) GrantableRoles(ctx context.Context, sender *rbac.Principal) ([]roles.Role, error) {
	if sender == nil {
		return nil, nil
	}
	return s.roles.Grantable(ctx, sender.Role)
}

// ListSent returns the invitations sender issued, newest first.
func (s *Service) ListSent(ctx context.Context, sender *rbac.Principal) ([]Invitation, error) {
	if sender == nil {
		return nil, nil
	}
	return s.repo.ListBySender(ctx, sender.ID)
}

// Invite records an invitation and mails the sign-up link. The sender must be
// an admin and the target role's level must be strictly greater than the
// sender's. The row is only committed once the mail has been handed to the
// relay; a failed send leaves no invitation behind.
func (s *Service) Invite(ctx context.Context, sender *rbac.Principal, in InviteInput) (Invitation, error) {
	if sender == nil {
		return Invitation{}, shared.NewError(shared.ErrUnauthenticated, "Please log in to access this page")
	}
	in.Email = strings.TrimSpace(in.Email)
	in.Role = strings.TrimSpace(in.Role)
	if verrs := shared.FormErrors(s.validate.Struct(in)); verrs != nil {
		return Invitation{}, verrs
	}
	if !sender.HasAdmin() {
		return Invitation{}, shared.ErrPermissionDenied
	}
	target, err := s.roles.Get(ctx, in.Role)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Invitation{}, ErrUnknownRole
		}
		return Invitation{}, err
	}
	if !(target.Level > sender.Role.Level) {
		return Invitation{}, ErrRoleNotGrantable
	}

	token, err := s.token()
	if err != nil {
		return Invitation{}, err
	}
	now := s.now()
	inv := Invitation{
		PublicID:     shared.NewPublicID(now),
		TokenHash:    shared.FingerprintToken(token),
		InviteeEmail: in.Email,
		Role:         target,
		SenderID:     sender.ID,
		CreatedAt:    now,
	}
	body, err := mail.Render("invitation.txt", mail.InvitationData{
		SenderName: sender.DisplayName(),
		RoleTitle:  target.Title,
		Link:       s.SignupLink(token),
	})
	if err != nil {
		return Invitation{}, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		taken, err := tx.EmailExists(ctx, inv.InviteeEmail)
		if err != nil {
			return err
		}
		if taken {
			return shared.ErrEmailTaken
		}
		if err := tx.InsertInvitation(ctx, &inv); err != nil {
			return err
		}
		if err := tx.WriteAudit(ctx, shared.AuditLog{
			ActorID:  sender.ID,
			Action:   shared.AuditInvitationIssued,
			Entity:   "invitation",
			EntityID: inv.PublicID,
			Meta:     map[string]any{"role": target.Short},
			At:       now,
		}); err != nil {
			return err
		}
		return s.mailer.Send(ctx, mail.Message{
			Kind:    mail.KindInvitation,
			To:      inv.InviteeEmail,
			Subject: "You have been invited to Inventory Manager",
			Text:    body,
		})
	})
	if err != nil {
		return Invitation{}, err
	}
	s.logger.Info("invitation issued",
		slog.String("invitation", inv.PublicID),
		slog.Int64("sender_id", sender.ID),
		slog.String("role", target.Short),
	)
	return inv, nil
}

// SignupLink is the URL mailed to an invitee.
func (s *Service) SignupLink(token string) string {
	return s.cfg.BaseURL + "/signup?invite=" + url.QueryEscape(token)
}

// Resolve returns the pending invitation for a raw token.
func (s *Service) Resolve(ctx context.Context, token string) (Invitation, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Invitation{}, ErrInvalidInvite
	}
	inv, err := s.repo.FindPending(ctx, shared.FingerprintToken(token))
	if err != nil {
		if errors.Is(err, ErrInvalidInvite) || errors.Is(err, shared.ErrNotFound) {
			return Invitation{}, ErrInvalidInvite
		}
		return Invitation{}, err
	}
	return inv, nil
}

// CompleteSignup creates an account, either from an invitation or, when open
// sign-up is enabled, with the lowest role. The invitation is consumed in the
// same transaction as the user insert so a token can only be redeemed once.
func (s *Service) CompleteSignup(ctx context.Context, in SignupInput) (int64, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if verrs := shared.FormErrors(s.validate.Struct(in)); verrs != nil {
		return 0, verrs
	}

	var (
		role      roles.Role
		tokenHash string
		inv       Invitation
	)
	if strings.TrimSpace(in.Invite) != "" {
		var err error
		inv, err = s.Resolve(ctx, in.Invite)
		if err != nil {
			return 0, err
		}
		if !strings.EqualFold(inv.InviteeEmail, in.Email) {
			return 0, shared.ErrEmailMismatch
		}
		role, tokenHash = inv.Role, inv.TokenHash
	} else {
		if !s.cfg.AllowOpenSignup {
			return 0, ErrSignupClosed
		}
		var err error
		role, err = s.roles.Lowest(ctx)
		if err != nil {
			return 0, err
		}
	}

	hash, err := shared.HashPassword(in.Password)
	if err != nil {
		return 0, err
	}

	var userID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		taken, err := tx.EmailExists(ctx, in.Email)
		if err != nil {
			return err
		}
		if taken {
			return shared.ErrEmailTaken
		}
		userID, err = tx.InsertUser(ctx, users.NewUser{Email: in.Email, PasswordHash: hash, Name: in.Name, RoleID: role.ID})
		if err != nil {
			return err
		}
		if tokenHash == "" {
			return nil
		}
		ok, err := tx.Consume(ctx, tokenHash, userID, s.now())
		if err != nil {
			return fmt.Errorf("invitations: consume: %w", err)
		}
		if !ok {
			return ErrInvalidInvite
		}
		return tx.WriteAudit(ctx, shared.AuditLog{
			ActorID:  userID,
			Action:   shared.AuditInvitationAccepted,
			Entity:   "invitation",
			EntityID: inv.PublicID,
			Meta:     map[string]any{"role": role.Short, "sender_id": strconv.FormatInt(inv.SenderID, 10)},
			At:       s.now(),
		})
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("account created", slog.Int64("user_id", userID), slog.String("role", role.Short), slog.Bool("invited", tokenHash != ""))
	return userID, nil
}

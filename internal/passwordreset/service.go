package passwordreset

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/inventory-manager/inventory-manager/internal/platform/mail"
	"github.com/inventory-manager/inventory-manager/internal/shared"
	"github.com/inventory-manager/inventory-manager/internal/users"
)

// Config tunes the reset flow.
type Config struct {
	// BaseURL prefixes the link mailed to users.
	BaseURL string
	TTL     time.Duration
}

// Service issues and redeems password reset links.
type Service struct {
	repo     RepositoryPort
	mailer   mail.Sender
	cfg      Config
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
	token    func() (string, error)
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, mailer mail.Sender, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Service{
		repo:     repo,
		mailer:   mailer,
		cfg:      cfg,
		logger:   logger,
		validate: shared.NewValidator(),
		now:      time.Now,
		token:    shared.GenerateToken,
	}
}

// TTL is the validity window of reset links.
func (s *Service) TTL() time.Duration { return s.cfg.TTL }

// RequestReset mails a reset link when email belongs to an account. Unknown
// addresses succeed silently so the form cannot be used to discover accounts.
// The request row is committed only after the mail was handed over.
func (s *Service) RequestReset(ctx context.Context, in RequestInput) error {
	in.Email = strings.TrimSpace(in.Email)
	if verrs := shared.FormErrors(s.validate.Struct(in)); verrs != nil {
		return verrs
	}
	user, err := s.repo.FindUserByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.logger.Info("password reset for unknown email")
			return nil
		}
		return err
	}

	token, err := s.token()
	if err != nil {
		return err
	}
	now := s.now()
	req := Request{
		PublicID:  shared.NewPublicID(now),
		TokenHash: shared.FingerprintToken(token),
		UserID:    user.ID,
		CreatedAt: now,
	}
	body, err := mail.Render("password_reset.txt", mail.PasswordResetData{
		Name:  user.DisplayName(),
		Link:  s.ResetLink(token),
		Valid: HumanTTL(s.cfg.TTL),
	})
	if err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertRequest(ctx, &req); err != nil {
			return err
		}
		return s.mailer.Send(ctx, mail.Message{
			Kind:    mail.KindPasswordReset,
			To:      user.Email,
			Subject: "Reset your Inventory Manager password",
			Text:    body,
		})
	})
	if err != nil {
		return err
	}
	s.logger.Info("password reset requested", slog.String("request", req.PublicID), slog.Int64("user_id", user.ID))
	return nil
}

// ResetLink is the URL mailed to the user.
func (s *Service) ResetLink(token string) string {
	return s.cfg.BaseURL + "/password_reset/" + url.PathEscape(token)
}

// Inspect checks a token without consuming it, used to decide whether to show
// the new password form.
func (s *Service) Inspect(ctx context.Context, token string) error {
	req, err := s.lookup(ctx, token)
	if err != nil {
		return err
	}
	return s.usable(req)
}

// PerformReset sets a new password. Loading the request FOR UPDATE, writing
// the hash and marking the request used happen in one transaction, so a token
// works exactly once.
func (s *Service) PerformReset(ctx context.Context, token string, in PerformInput) error {
	in.Email = strings.TrimSpace(in.Email)
	if verrs := shared.FormErrors(s.validate.Struct(in)); verrs != nil {
		return verrs
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidToken
	}
	hash, err := shared.HashPassword(in.Password)
	if err != nil {
		return err
	}

	var req Request
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		req, err = tx.LockByTokenHash(ctx, shared.FingerprintToken(token))
		if err != nil {
			return err
		}
		if err := s.usable(req); err != nil {
			return err
		}
		user, err := tx.GetUser(ctx, req.UserID)
		if err != nil {
			if errors.Is(err, users.ErrUserNotFound) {
				return ErrInvalidToken
			}
			return err
		}
		if !strings.EqualFold(user.Email, in.Email) {
			return shared.ErrEmailMismatch
		}
		if err := tx.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
			return err
		}
		now := s.now()
		if err := tx.MarkUsed(ctx, req.ID, now); err != nil {
			return err
		}
		return tx.WriteAudit(ctx, shared.AuditLog{
			ActorID:  user.ID,
			Action:   shared.AuditPasswordReset,
			Entity:   "user",
			EntityID: strconv.FormatInt(user.ID, 10),
			Meta:     map[string]any{"request": req.PublicID},
			At:       now,
		})
	})
	if err != nil {
		return err
	}
	s.logger.Info("password reset", slog.String("request", req.PublicID), slog.Int64("user_id", req.UserID))
	return nil
}

func (s *Service) lookup(ctx context.Context, token string) (Request, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Request{}, ErrInvalidToken
	}
	return s.repo.FindByTokenHash(ctx, shared.FingerprintToken(token))
}

// usable applies the single-use and expiry rules, in that order.
func (s *Service) usable(req Request) error {
	if req.Used {
		return ErrInvalidToken
	}
	if req.Expired(s.now(), s.cfg.TTL) {
		return ErrExpiredToken
	}
	return nil
}

package users

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/inventory-manager/inventory-manager/internal/platform/storage"
	"github.com/inventory-manager/inventory-manager/internal/rbac"
	"github.com/inventory-manager/inventory-manager/internal/roles"
	"github.com/inventory-manager/inventory-manager/internal/shared"
)

// MaxAvatarBytes bounds profile picture uploads.
const MaxAvatarBytes = 2 << 20

var avatarExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	MembersByRole(ctx context.Context) (map[int64][]roles.Member, error)
	UpdateProfile(ctx context.Context, id int64, name, email, avatarKey string) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles user business logic.
type Service struct {
	repo     RepositoryPort
	store    storage.Store
	audit    AuditPort
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewService builds Service instance. store may be nil when uploads are disabled.
func NewService(repo RepositoryPort, store storage.Store, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, store: store, audit: audit, logger: logger, validate: shared.NewValidator(), now: time.Now}
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.Get(ctx, id)
}

// FindByEmail returns a user by email.
func (s *Service) FindByEmail(ctx context.Context, email string) (User, error) {
	return s.repo.FindByEmail(ctx, email)
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// MembersByRole groups users by role id for the roles page.
func (s *Service) MembersByRole(ctx context.Context) (map[int64][]roles.Member, error) {
	return s.repo.MembersByRole(ctx)
}

// LoadPrincipal turns a session user id into an rbac.Principal.
func (s *Service) LoadPrincipal(ctx context.Context, userID int64) (*rbac.Principal, error) {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &rbac.Principal{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role, AvatarKey: u.AvatarKey}, nil
}

// UpdateProfile changes the actor's own name, email and optionally picture.
// Email uniqueness is enforced by the users_email_key index.
func (s *Service) UpdateProfile(ctx context.Context, actor *rbac.Principal, in ProfileInput) (User, error) {
	if actor == nil {
		return User{}, shared.NewError(shared.ErrUnauthenticated, "Please log in to access this page")
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if verrs := shared.FormErrors(s.validate.Struct(in)); verrs != nil {
		return User{}, verrs
	}
	current, err := s.repo.Get(ctx, actor.ID)
	if err != nil {
		return User{}, err
	}
	if !strings.EqualFold(current.Email, in.Email) {
		if other, err := s.repo.FindByEmail(ctx, in.Email); err == nil && other.ID != current.ID {
			return User{}, shared.ErrEmailTaken
		} else if err != nil && !errors.Is(err, ErrUserNotFound) {
			return User{}, err
		}
	}

	avatarKey := current.AvatarKey
	var uploaded string
	if in.Avatar != nil && in.Avatar.Size > 0 {
		key, err := s.storeAvatar(ctx, current.ID, in.Avatar)
		if err != nil {
			return User{}, err
		}
		avatarKey, uploaded = key, key
	}

	if err := s.repo.UpdateProfile(ctx, current.ID, in.Name, in.Email, avatarKey); err != nil {
		if uploaded != "" {
			s.deleteAvatar(ctx, uploaded)
		}
		return User{}, err
	}
	if uploaded != "" && current.AvatarKey != "" {
		s.deleteAvatar(ctx, current.AvatarKey)
	}
	if s.audit != nil {
		meta := map[string]any{"email_changed": !strings.EqualFold(current.Email, in.Email), "avatar_changed": uploaded != ""}
		if err := s.audit.Record(ctx, shared.AuditLog{ActorID: actor.ID, Action: shared.AuditProfileUpdated, Entity: "user", EntityID: strconv.FormatInt(current.ID, 10), Meta: meta}); err != nil {
			s.logger.Warn("audit profile update", slog.Any("error", err))
		}
	}
	return s.repo.Get(ctx, current.ID)
}

// Avatar opens the stored profile picture of a user.
func (s *Service) Avatar(ctx context.Context, userID int64) (io.ReadCloser, string, error) {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	if u.AvatarKey == "" || s.store == nil {
		return nil, "", storage.ErrObjectNotFound
	}
	return s.store.Get(ctx, u.AvatarKey)
}

func (s *Service) storeAvatar(ctx context.Context, userID int64, up *Upload) (string, error) {
	if s.store == nil {
		return "", shared.NewError(shared.ErrValidation, "Profile pictures are not enabled")
	}
	if up.Size > MaxAvatarBytes {
		return "", shared.NewError(shared.ErrValidation, "Profile picture must be 2 MB or smaller")
	}
	ext, ok := avatarExtensions[up.ContentType]
	if !ok {
		return "", ErrUnsupportedImage
	}
	body, err := io.ReadAll(io.LimitReader(up.Body, MaxAvatarBytes+1))
	if err != nil {
		return "", err
	}
	if len(body) > MaxAvatarBytes {
		return "", shared.NewError(shared.ErrValidation, "Profile picture must be 2 MB or smaller")
	}
	key := fmt.Sprintf("avatars/%d/%s%s", userID, shared.NewPublicID(s.now()), ext)
	if err := s.store.Put(ctx, key, bytes.NewReader(body), up.ContentType); err != nil {
		return "", fmt.Errorf("users: store avatar: %w", err)
	}
	return key, nil
}

func (s *Service) deleteAvatar(ctx context.Context, key string) {
	if err := s.store.Delete(ctx, key); err != nil {
		s.logger.Warn("delete avatar", slog.String("key", key), slog.Any("error", err))
	}
}

var (
	_ rbac.PrincipalLoader  = (*Service)(nil)
	_ roles.MemberDirectory = (*Service)(nil)
)

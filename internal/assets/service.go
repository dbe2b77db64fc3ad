package assets

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/inventory-manager/inventory-manager/internal/platform/cache"
	"github.com/inventory-manager/inventory-manager/internal/rbac"
	"github.com/inventory-manager/inventory-manager/internal/roles"
	"github.com/inventory-manager/inventory-manager/internal/shared"
	"github.com/inventory-manager/inventory-manager/internal/users"
)

// DefaultReturnNearDays is the look-ahead window used when none is configured.
const DefaultReturnNearDays = 2

// Authorizer is the gate the service consults, implemented by rbac.Gate.
type Authorizer interface {
	Authorize(ctx context.Context, actor *rbac.Principal, requiredShort string) error
	AuthorizeOwnerOrAdmin(actor *rbac.Principal, record rbac.Ownable) error
}

// Observer receives one call per committed asset mutation.
type Observer interface {
	AssetEvent(action string)
}

// Config tunes the registry.
type Config struct {
	// ReturnNearDays is how many days ahead a return date counts as near.
	ReturnNearDays int
	Observer       Observer
}

// Service implements the asset registry.
type Service struct {
	repo     RepositoryPort
	gate     Authorizer
	summary  *summaryCache
	observer Observer
	nearDays int
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewService builds Service instance. summary may be nil to disable caching.
func NewService(repo RepositoryPort, gate Authorizer, summary *cache.Versioned, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReturnNearDays <= 0 {
		cfg.ReturnNearDays = DefaultReturnNearDays
	}
	return &Service{
		repo:     repo,
		gate:     gate,
		summary:  &summaryCache{cache: summary, logger: logger},
		observer: cfg.Observer,
		nearDays: cfg.ReturnNearDays,
		logger:   logger,
		validate: shared.NewValidator(),
		now:      time.Now,
	}
}

// ReturnNearDays returns the configured look-ahead window.
func (s *Service) ReturnNearDays() int { return s.nearDays }

// Now returns the service clock.
func (s *Service) Now() time.Time { return s.now() }

// Add registers a new asset owned by actor.
func (s *Service) Add(ctx context.Context, actor *rbac.Principal, in AddInput) (Asset, error) {
	if err := s.gate.Authorize(ctx, actor, roles.ShortAdmin); err != nil {
		return Asset{}, err
	}
	in = trimAddInput(in)
	if verrs := shared.FormErrors(s.validate.Struct(in)); verrs != nil {
		return Asset{}, verrs
	}
	asset := Asset{
		Name:        in.Name,
		Type:        in.Type,
		Description: in.Description,
		SerialNo:    in.SerialNo,
		Code:        in.Code,
		AddedBy:     UserRef{ID: actor.ID, Name: actor.DisplayName(), Email: actor.Email},
		CreatedAt:   s.now().UTC(),
	}
	if in.PurchasedDate != "" {
		d, err := time.Parse(DateLayout, in.PurchasedDate)
		if err != nil {
			return Asset{}, shared.ValidationErrors{"purchased_date": "Enter a valid date"}
		}
		asset.PurchasedAt = &d
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.Insert(ctx, &asset); err != nil {
			return err
		}
		return tx.WriteAudit(ctx, s.audit(actor, shared.AuditAssetCreated, asset.ID, map[string]any{"code": asset.Code}))
	})
	if err != nil {
		return Asset{}, err
	}
	s.committed(ctx, "ADD")
	return asset, nil
}

// Assign hands an available asset to a user until the optional return date.
func (s *Service) Assign(ctx context.Context, actor *rbac.Principal, id int64, in AssignInput) (Asset, error) {
	if err := s.gate.Authorize(ctx, actor, roles.ShortAdmin); err != nil {
		return Asset{}, err
	}
	now := s.now()
	if in.UserID <= 0 {
		return Asset{}, ErrUnknownAssignee
	}
	if in.ReturnDate != nil && in.ReturnDate.Before(now) {
		return Asset{}, ErrReturnDateInPast
	}
	var asset Asset
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if asset, err = tx.Lock(ctx, id); err != nil {
			return err
		}
		if asset.IsAssigned() {
			return ErrAlreadyAssigned
		}
		user, err := tx.UserRef(ctx, in.UserID)
		if err != nil {
			return err
		}
		if err := tx.SetAssignment(ctx, id, &user.ID, in.ReturnDate); err != nil {
			return err
		}
		asset.Assignee, asset.ReturnDate = &user, in.ReturnDate
		if err := tx.AppendHistory(ctx, s.history(actor, asset.ID, ActionAssign, &user.ID, in.ReturnDate, now)); err != nil {
			return err
		}
		meta := map[string]any{"user_id": user.ID}
		if in.ReturnDate != nil {
			meta["return_date"] = in.ReturnDate.UTC().Format(time.RFC3339)
		}
		return tx.WriteAudit(ctx, s.audit(actor, shared.AuditAssetAssigned, asset.ID, meta))
	})
	if err != nil {
		return Asset{}, err
	}
	s.committed(ctx, ActionAssign)
	return asset, nil
}

// Reclaim ends the current assignment.
func (s *Service) Reclaim(ctx context.Context, actor *rbac.Principal, id int64) (Asset, error) {
	if err := s.gate.Authorize(ctx, actor, roles.ShortAdmin); err != nil {
		return Asset{}, err
	}
	var asset Asset
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if asset, err = tx.Lock(ctx, id); err != nil {
			return err
		}
		if !asset.IsAssigned() {
			return ErrNotAssigned
		}
		holder := asset.Assignee.ID
		if err := tx.SetAssignment(ctx, id, nil, nil); err != nil {
			return err
		}
		asset.Assignee, asset.ReturnDate = nil, nil
		if err := tx.AppendHistory(ctx, s.history(actor, asset.ID, ActionReclaim, &holder, nil, s.now())); err != nil {
			return err
		}
		return tx.WriteAudit(ctx, s.audit(actor, shared.AuditAssetReclaimed, asset.ID, map[string]any{"user_id": holder}))
	})
	if err != nil {
		return Asset{}, err
	}
	s.committed(ctx, ActionReclaim)
	return asset, nil
}

// ReportLost marks the asset lost. Admins and the current holder may report.
// Reporting an asset that is already lost changes nothing.
func (s *Service) ReportLost(ctx context.Context, actor *rbac.Principal, id int64) (Asset, error) {
	return s.setLost(ctx, actor, id, true)
}

// ReportFound clears the lost flag.
func (s *Service) ReportFound(ctx context.Context, actor *rbac.Principal, id int64) (Asset, error) {
	return s.setLost(ctx, actor, id, false)
}

func (s *Service) setLost(ctx context.Context, actor *rbac.Principal, id int64, lost bool) (Asset, error) {
	if actor == nil {
		return Asset{}, s.gate.AuthorizeOwnerOrAdmin(nil, nil)
	}
	action, auditAction := ActionLost, shared.AuditAssetLost
	if !lost {
		action, auditAction = ActionFound, shared.AuditAssetFound
	}
	var (
		asset   Asset
		changed bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if asset, err = tx.Lock(ctx, id); err != nil {
			return err
		}
		if err := s.gate.AuthorizeOwnerOrAdmin(actor, asset); err != nil {
			return err
		}
		if asset.Lost == lost {
			if !lost {
				return ErrNotLost
			}
			return nil
		}
		if err := tx.SetLost(ctx, id, lost); err != nil {
			return err
		}
		asset.Lost, changed = lost, true
		var holder *int64
		if asset.Assignee != nil {
			holder = &asset.Assignee.ID
		}
		if err := tx.AppendHistory(ctx, s.history(actor, asset.ID, action, holder, asset.ReturnDate, s.now())); err != nil {
			return err
		}
		return tx.WriteAudit(ctx, s.audit(actor, auditAction, asset.ID, nil))
	})
	if err != nil {
		return Asset{}, err
	}
	if changed {
		s.committed(ctx, action)
	}
	return asset, nil
}

// Get returns an asset with its history. Only admins and the holder may look.
func (s *Service) Get(ctx context.Context, actor *rbac.Principal, id int64) (Asset, []HistoryEntry, error) {
	if actor == nil {
		return Asset{}, nil, s.gate.AuthorizeOwnerOrAdmin(nil, nil)
	}
	asset, err := s.repo.Get(ctx, id)
	if err != nil {
		return Asset{}, nil, err
	}
	if err := s.gate.AuthorizeOwnerOrAdmin(actor, asset); err != nil {
		return Asset{}, nil, err
	}
	history, err := s.repo.History(ctx, id)
	if err != nil {
		return Asset{}, nil, err
	}
	return asset, history, nil
}

// List returns the assets visible to actor. Admins see every asset, everybody
// else only the assets assigned to them.
func (s *Service) List(ctx context.Context, actor *rbac.Principal, filter Filter) ([]Asset, error) {
	if actor == nil {
		return nil, s.gate.AuthorizeOwnerOrAdmin(nil, nil)
	}
	q := ListQuery{Filter: filter}
	if !actor.HasAdmin() {
		q.AssigneeID = &actor.ID
	}
	return s.repo.List(ctx, q, s.now())
}

// HeldAssets lists the assets assigned to actor.
func (s *Service) HeldAssets(ctx context.Context, actor *rbac.Principal) ([]Asset, error) {
	if actor == nil {
		return nil, s.gate.AuthorizeOwnerOrAdmin(nil, nil)
	}
	return s.repo.List(ctx, ListQuery{Filter: FilterAll, AssigneeID: &actor.ID}, s.now())
}

// HeldBy lists the assets a user currently holds, for profile pages.
func (s *Service) HeldBy(ctx context.Context, userID int64) ([]users.HeldAsset, error) {
	list, err := s.repo.List(ctx, ListQuery{Filter: FilterAll, AssigneeID: &userID}, s.now())
	if err != nil {
		return nil, err
	}
	out := make([]users.HeldAsset, 0, len(list))
	for _, a := range list {
		out = append(out, users.HeldAsset{ID: a.ID, Code: a.Code, Name: a.Name, ReturnDate: a.ReturnDate, Lost: a.Lost})
	}
	return out, nil
}

// Summary returns dashboard counts for admins.
func (s *Service) Summary(ctx context.Context, actor *rbac.Principal) (Summary, error) {
	if err := s.gate.Authorize(ctx, actor, roles.ShortAdmin); err != nil {
		return Summary{}, err
	}
	return s.summary.fetch(ctx, s.now(), s.repo.Summary)
}

// DueForReminder lists assigned assets whose return date is past or within
// the look-ahead window.
func (s *Service) DueForReminder(ctx context.Context) ([]Asset, error) {
	before := s.now().Add(time.Duration(s.nearDays) * 24 * time.Hour)
	return s.repo.DueBy(ctx, before)
}

func (s *Service) committed(ctx context.Context, action string) {
	s.summary.invalidate(ctx)
	if s.observer != nil {
		s.observer.AssetEvent(action)
	}
}

func (s *Service) history(actor *rbac.Principal, assetID int64, action string, userID *int64, returnDate *time.Time, at time.Time) HistoryEntry {
	actorID := actor.ID
	return HistoryEntry{AssetID: assetID, Action: action, UserID: userID, ActorID: &actorID, ReturnDate: returnDate, At: at.UTC()}
}

func (s *Service) audit(actor *rbac.Principal, action string, assetID int64, meta map[string]any) shared.AuditLog {
	return shared.AuditLog{ActorID: actor.ID, Action: action, Entity: "asset", EntityID: strconv.FormatInt(assetID, 10), Meta: meta, At: s.now().UTC()}
}

func trimAddInput(in AddInput) AddInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Type = strings.TrimSpace(in.Type)
	in.Code = strings.TrimSpace(in.Code)
	in.SerialNo = strings.TrimSpace(in.SerialNo)
	in.PurchasedDate = strings.TrimSpace(in.PurchasedDate)
	in.Description = strings.TrimSpace(in.Description)
	return in
}

var (
	_ Authorizer            = (*rbac.Gate)(nil)
	_ users.HeldAssetLister = (*Service)(nil)
)

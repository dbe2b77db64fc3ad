package assets

import (
	"time"

	"github.com/inventory-manager/inventory-manager/internal/rbac"
	"github.com/inventory-manager/inventory-manager/internal/shared"
)

var (
	// ErrAssetNotFound is returned when an asset id does not resolve.
	ErrAssetNotFound = shared.NewError(shared.ErrNotFound, "Asset not found")
	// ErrDuplicateCode is returned when another asset already uses the code.
	ErrDuplicateCode = shared.NewError(shared.ErrConflict, "An asset with this code already exists")
	// ErrAlreadyAssigned is returned when assigning an asset that has an assignee.
	ErrAlreadyAssigned = shared.NewError(shared.ErrConflict, "This asset is already assigned")
	// ErrNotAssigned is returned when reclaiming an asset nobody holds.
	ErrNotAssigned = shared.NewError(shared.ErrConflict, "This asset is not assigned to anyone")
	// ErrNotLost is returned when reporting found an asset that is not lost.
	ErrNotLost = shared.NewError(shared.ErrConflict, "This asset is not marked as lost")
	// ErrUnknownAssignee is returned when the chosen user does not exist.
	ErrUnknownAssignee = shared.ValidationErrors{"user_id": "Choose a valid user"}
	// ErrReturnDateInPast rejects assignments that would start overdue.
	ErrReturnDateInPast = shared.ValidationErrors{"return_date": "Return date cannot be in the past"}
)

// History actions.
const (
	ActionAssign  = "ASSIGN"
	ActionReclaim = "RECLAIM"
	ActionLost    = "LOST"
	ActionFound   = "FOUND"
)

// DateLayout is the HTML date input format.
const DateLayout = "2006-01-02"

// UserRef is the compact user shown next to an asset.
type UserRef struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Asset is a tracked item. An asset has at most one assignee, modelled as a
// nullable reference.
type Asset struct {
	ID          int64
	Name        string
	Type        string
	Description string
	SerialNo    string
	Code        string
	PurchasedAt *time.Time
	AddedBy     UserRef
	Assignee    *UserRef
	ReturnDate  *time.Time
	Lost        bool
	CreatedAt   time.Time
}

// IsAssigned is true iff the asset has an assignee.
func (a Asset) IsAssigned() bool { return a.Assignee != nil }

// AssigneeID implements rbac.Ownable.
func (a Asset) AssigneeID() (int64, bool) {
	if a.Assignee == nil {
		return 0, false
	}
	return a.Assignee.ID, true
}

// ReturnDatePast reports whether now is after the return date.
func (a Asset) ReturnDatePast(now time.Time) bool {
	return a.ReturnDate != nil && now.After(*a.ReturnDate)
}

// ReturnDateNear reports whether the return date is not past and falls within
// days of now.
func (a Asset) ReturnDateNear(now time.Time, days int) bool {
	if a.ReturnDate == nil || a.ReturnDatePast(now) {
		return false
	}
	return a.ReturnDate.Sub(now) <= time.Duration(days)*24*time.Hour
}

var _ rbac.Ownable = Asset{}

// HistoryEntry is one row of the append-only assignment log.
type HistoryEntry struct {
	ID         int64
	AssetID    int64
	Action     string
	UserID     *int64
	UserName   string
	ActorID    *int64
	ActorName  string
	ReturnDate *time.Time
	At         time.Time
}

// AddInput is the add asset form.
type AddInput struct {
	Name          string `validate:"required,max=200" form:"name"`
	Type          string `validate:"max=100" form:"type"`
	Code          string `validate:"required,max=64" form:"code"`
	SerialNo      string `validate:"max=120" form:"serial_no"`
	PurchasedDate string `validate:"omitempty,datetime=2006-01-02" form:"purchased_date"`
	Description   string `validate:"max=2000" form:"description"`
}

// AssignInput names the new assignee and optional return date.
type AssignInput struct {
	UserID     int64
	ReturnDate *time.Time
}

// Summary counts assets by state for the dashboard.
type Summary struct {
	Total     int64 `json:"total"`
	Assigned  int64 `json:"assigned"`
	Available int64 `json:"available"`
	Overdue   int64 `json:"overdue"`
	Lost      int64 `json:"lost"`
}

// ParseReturnDate reads a date input. The asset is due at the end of that day
// in loc. An empty value means no return date.
func ParseReturnDate(raw string, loc *time.Location) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if loc == nil {
		loc = time.Local
	}
	day, err := time.ParseInLocation(DateLayout, raw, loc)
	if err != nil {
		return nil, shared.ValidationErrors{"return_date": "Enter a valid date"}
	}
	due := day.AddDate(0, 0, 1).Add(-time.Second)
	return &due, nil
}

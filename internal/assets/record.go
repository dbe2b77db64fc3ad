package assets

import (
	"time"

	"github.com/inventory-manager/inventory-manager/internal/view"
)

// Record is the presentation form of an asset, used by templates and by the
// JSON listing.
type Record struct {
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	Description    string   `json:"description"`
	SerialNo       string   `json:"serial_no"`
	Code           string   `json:"code"`
	PurchasedDate  string   `json:"purchased_date"`
	ReturnDate     string   `json:"return_date_"`
	Lost           bool     `json:"lost"`
	IsAssigned     bool     `json:"is_assigned"`
	Assignee       *UserRef `json:"assignee"`
	ReturnDatePast bool     `json:"return_date_past"`
	ReturnDateNear bool     `json:"return_date_near"`
	IsMine         bool     `json:"is_mine"`
	AddedBy        UserRef  `json:"added_by"`
}

// NewRecord derives the display fields of a for viewerID at now.
func NewRecord(a Asset, viewerID int64, now time.Time, nearDays int) Record {
	rec := Record{
		ID:             a.ID,
		Name:           a.Name,
		Type:           a.Type,
		Description:    a.Description,
		SerialNo:       a.SerialNo,
		Code:           a.Code,
		PurchasedDate:  displayDate(a.PurchasedAt),
		ReturnDate:     displayDate(a.ReturnDate),
		Lost:           a.Lost,
		IsAssigned:     a.IsAssigned(),
		ReturnDatePast: a.ReturnDatePast(now),
		ReturnDateNear: a.ReturnDateNear(now, nearDays),
		AddedBy:        a.AddedBy,
	}
	if a.Assignee != nil {
		ref := *a.Assignee
		if ref.Name == "" {
			ref.Name = ref.Email
		}
		rec.Assignee = &ref
		rec.IsMine = ref.ID == viewerID
	}
	if rec.AddedBy.Name == "" {
		rec.AddedBy.Name = rec.AddedBy.Email
	}
	return rec
}

// NewRecords maps a listing.
func NewRecords(list []Asset, viewerID int64, now time.Time, nearDays int) []Record {
	out := make([]Record, 0, len(list))
	for _, a := range list {
		out = append(out, NewRecord(a, viewerID, now, nearDays))
	}
	return out
}

func displayDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(view.DisplayDateLayout)
}

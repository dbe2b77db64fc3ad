package assets

import (
	"strings"

	"github.com/inventory-manager/inventory-manager/internal/shared"
)

// Filter selects a subset of assets in listings.
type Filter string

// Listing filters. "unassigned" is accepted as an alias of available.
const (
	FilterAll       Filter = "all"
	FilterAssigned  Filter = "assigned"
	FilterAvailable Filter = "available"
	FilterLost      Filter = "lost"
	FilterOverdue   Filter = "overdue"
)

// Filters lists the filters offered as tabs, in display order.
var Filters = []Filter{FilterAll, FilterAssigned, FilterAvailable, FilterOverdue, FilterLost}

// ErrUnknownFilter is returned for filters outside Filters.
var ErrUnknownFilter = shared.NewError(shared.ErrValidation, "Unknown asset filter")

// ParseFilter normalises a query parameter. The empty string means all.
func ParseFilter(raw string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(raw))); f {
	case "", FilterAll:
		return FilterAll, nil
	case "unassigned":
		return FilterAvailable, nil
	case FilterAssigned, FilterAvailable, FilterLost, FilterOverdue:
		return f, nil
	}
	return "", ErrUnknownFilter
}

// ListQuery is passed to the repository.
type ListQuery struct {
	Filter Filter
	// AssigneeID restricts the listing to one holder when non-nil.
	AssigneeID *int64
}

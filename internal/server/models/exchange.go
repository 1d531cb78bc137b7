// Package models holds the server-side persistence types.
package models

import "time"

// Exchange is one user message and the generated reply. Everything except
// Deleted is immutable after creation.
type Exchange struct {
	ID        string    `db:"id"`
	OwnerID   string    `db:"owner_id"`
	Message   string    `db:"message"`
	Response  string    `db:"response"`
	Deleted   bool      `db:"deleted"`
	CreatedAt time.Time `db:"created_at"`
}

// Visibility selects exchanges by their deleted flag in admin queries.
type Visibility string

const (
	VisibilityAll     Visibility = "all"
	VisibilityActive  Visibility = "active"
	VisibilityDeleted Visibility = "deleted"
)

// ParseVisibility maps a filter name to a Visibility; anything unknown is "all".
func ParseVisibility(s string) Visibility {
	switch Visibility(s) {
	case VisibilityActive, VisibilityDeleted:
		return Visibility(s)
	default:
		return VisibilityAll
	}
}

// VisibilityCounts splits an owner's exchanges by deleted flag.
type VisibilityCounts struct {
	Active  int64
	Deleted int64
}

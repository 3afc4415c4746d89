package domain

import (
	"encoding/json"
	"time"
)

// BaseModel is the common base struct for all domain models.
// It replaces gorm.Model to avoid the implicit soft delete behavior of DeletedAt;
// soft deletion is expressed through the lifecycle column instead.
//
// ID is the storage surrogate key and is never serialised. External callers
// address rows by GlobalID.
type BaseModel struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	GlobalID  string    `gorm:"size:64;uniqueIndex;not null" json:"global_id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Lifecycle is the tri-state visibility column stored as a small integer.
type Lifecycle int8

const (
	LifecycleInactive Lifecycle = 0
	LifecycleActive   Lifecycle = 1
	LifecycleDeleted  Lifecycle = 2
)

// Valid reports whether l is one of the three known states.
func (l Lifecycle) Valid() bool {
	return l >= LifecycleInactive && l <= LifecycleDeleted
}

func (l Lifecycle) String() string {
	switch l {
	case LifecycleInactive:
		return "inactive"
	case LifecycleActive:
		return "active"
	case LifecycleDeleted:
		return "deleted"
	}
	return "unknown"
}

// LifecycleModel is BaseModel plus the "active" lifecycle column.
type LifecycleModel struct {
	BaseModel
	Active Lifecycle `gorm:"type:smallint;not null;default:1;index" json:"active"`
}

// Caller carries the privilege of the requesting principal. It is computed
// once per request and passed explicitly to every read path.
type Caller struct {
	Privileged bool
}

// Payload is an untyped create or update body keyed by column name.
type Payload map[string]any

// ListQuery holds the filter, search, date-range, sort, and pagination
// parameters of a list or count call.
//
// Page is 1-indexed; zero means no envelope is requested and Skip/Limit
// apply instead.
type ListQuery struct {
	Page          int
	Limit         int
	Skip          int
	Search        string
	SearchColumns []string
	Filters       map[string]any
	SortBy        string
	SortDir       string
	DateFromMS    *int64
	DateToMS      *int64
	DateColumn    string
}

// Pagination describes one page of a filtered result set.
type Pagination struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	TotalPages int   `json:"total_pages"`
	NextPage   *int  `json:"next_page"`
	PrevPage   *int  `json:"prev_page"`
}

// ListResult is the output of a list call. Pagination is nil when no page
// was requested, in which case the result marshals as a bare JSON array.
type ListResult[T any] struct {
	Items      []T
	Pagination *Pagination
}

// MarshalJSON renders either the plain item array or the pagination envelope.
func (r ListResult[T]) MarshalJSON() ([]byte, error) {
	items := r.Items
	if items == nil {
		items = []T{}
	}
	if r.Pagination == nil {
		return json.Marshal(items)
	}
	return json.Marshal(struct {
		Items []T `json:"items"`
		*Pagination
	}{Items: items, Pagination: r.Pagination})
}

// NewPagination computes the envelope fields for page of size perPage over
// total rows. next_page and prev_page are nil at the boundaries.
func NewPagination(total int64, page, perPage int) *Pagination {
	p := &Pagination{Total: total, Page: page, PerPage: perPage}
	if perPage > 0 {
		p.TotalPages = int((total + int64(perPage) - 1) / int64(perPage))
	}
	if page < p.TotalPages {
		next := page + 1
		p.NextPage = &next
	}
	if page > 1 && p.TotalPages > 0 {
		prev := min(page-1, p.TotalPages)
		p.PrevPage = &prev
	}
	return p
}

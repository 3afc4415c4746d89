// Package repository implements generic entity persistence with lifecycle
// visibility, dynamic filtering, and pagination on top of GORM.
package repository

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/simp-lee/attendance/internal/domain"
	"github.com/simp-lee/attendance/internal/pkg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Page size limits for list calls.
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// immutableColumns are never written by an update payload.
var immutableColumns = []string{ColumnID, ColumnGlobalID, ColumnCreatedAt}

// Repository provides CRUD, list, count, and lifecycle transitions for
// entity type T. Read paths take the caller explicitly; visibility is decided
// here and nowhere else.
type Repository[T any] struct {
	db   *gorm.DB
	desc *Descriptor
	qb   queryBuilder
}

// New describes T and returns a repository for it.
func New[T any](db *gorm.DB, opts ...Option) (*Repository[T], error) {
	desc, err := Describe(new(T), opts...)
	if err != nil {
		return nil, err
	}
	return &Repository[T]{db: db, desc: desc, qb: queryBuilder{desc: desc}}, nil
}

// Descriptor returns the entity's static column description.
func (r *Repository[T]) Descriptor() *Descriptor {
	return r.desc
}

func (r *Repository[T]) eq(column string, value any) clause.Expression {
	return clause.Eq{Column: r.qb.column(column), Value: value}
}

// take loads one row matching cond. A nil caller skips visibility checks.
func (r *Repository[T]) take(ctx context.Context, db *gorm.DB, caller *domain.Caller, cond clause.Expression) (*T, error) {
	exprs := []clause.Expression{cond}
	if caller != nil {
		exprs = append(exprs, r.qb.visibility(*caller)...)
	}
	var row T
	if err := db.WithContext(ctx).Model(new(T)).Scopes(r.qb.scope(exprs)).Take(&row).Error; err != nil {
		return nil, mapError(r.desc.Table, err)
	}
	return &row, nil
}

// Get fetches by surrogate key. Deleted rows are never returned; inactive rows
// only to privileged callers.
func (r *Repository[T]) Get(ctx context.Context, caller domain.Caller, id uint) (*T, error) {
	return r.take(ctx, r.db, &caller, r.eq(r.desc.PrimaryKey, id))
}

// GetByGlobalID is Get keyed by public identifier.
func (r *Repository[T]) GetByGlobalID(ctx context.Context, caller domain.Caller, globalID string) (*T, error) {
	return r.take(ctx, r.db, &caller, r.eq(ColumnGlobalID, globalID))
}

// FindBy loads the first non-deleted row whose column equals value, without
// caller visibility. Services use it for lookups such as login by email.
func (r *Repository[T]) FindBy(ctx context.Context, column string, value any) (*T, error) {
	if !r.desc.Has(column) {
		return nil, domain.NewAppError(domain.CodeValidation, fmt.Sprintf("unknown column %q", column), nil)
	}
	cond := r.eq(column, value)
	if lc := r.desc.LifecycleColumn; lc != "" {
		cond = clause.And(cond, notDeleted(r.qb.column(lc)))
	}
	return r.take(ctx, r.db, nil, cond)
}

// IDByGlobalID returns the surrogate key of the non-deleted row with globalID.
func (r *Repository[T]) IDByGlobalID(ctx context.Context, globalID string) (uint, error) {
	exprs := []clause.Expression{r.eq(ColumnGlobalID, globalID)}
	if lc := r.desc.LifecycleColumn; lc != "" {
		exprs = append(exprs, notDeleted(r.qb.column(lc)))
	}
	var ids []uint
	err := r.db.WithContext(ctx).Model(new(T)).
		Scopes(r.qb.scope(exprs)).
		Limit(1).
		Pluck(r.desc.PrimaryKey, &ids).Error
	if err != nil {
		return 0, mapError(r.desc.Table, err)
	}
	if len(ids) == 0 {
		return 0, domain.NewAppError(domain.CodeNotFound, r.desc.Table+" not found", nil)
	}
	return ids[0], nil
}

// Create inserts payload and returns the stored row. Unknown keys and nil
// values are dropped so column defaults apply; a global_id is generated when
// none is supplied.
func (r *Repository[T]) Create(ctx context.Context, payload domain.Payload) (*T, error) {
	values, err := r.values(payload)
	if err != nil {
		return nil, err
	}
	for col, v := range values {
		if v == nil {
			delete(values, col)
		}
	}
	delete(values, r.desc.PrimaryKey)

	globalID, _ := values[ColumnGlobalID].(string)
	if globalID == "" {
		globalID = uuid.NewString()
		values[ColumnGlobalID] = globalID
	}
	now := time.Now().UTC()
	for _, col := range []string{ColumnCreatedAt, ColumnUpdatedAt} {
		if _, set := values[col]; !set && r.desc.Has(col) {
			values[col] = now
		}
	}

	if err := r.db.WithContext(ctx).Model(new(T)).Create(values).Error; err != nil {
		return nil, mapError(r.desc.Table, err)
	}
	return r.take(ctx, r.db, nil, r.eq(ColumnGlobalID, globalID))
}

// UpdateByGlobalID applies the columns present in payload to the row, which
// must be visible to caller. Absent columns are left untouched; explicit nil
// values clear the column.
func (r *Repository[T]) UpdateByGlobalID(ctx context.Context, caller domain.Caller, globalID string, payload domain.Payload) (*T, error) {
	values, err := r.values(payload)
	if err != nil {
		return nil, err
	}
	for _, col := range immutableColumns {
		delete(values, col)
	}
	delete(values, r.desc.PrimaryKey)

	var updated *T
	err = pkg.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		row, err := r.take(ctx, tx, &caller, r.eq(ColumnGlobalID, globalID))
		if err != nil {
			return err
		}
		if len(values) == 0 {
			updated = row
			return nil
		}
		if r.desc.Has(ColumnUpdatedAt) {
			values[ColumnUpdatedAt] = time.Now().UTC()
		}
		if err := tx.Model(new(T)).Where(r.eq(ColumnGlobalID, globalID)).Updates(values).Error; err != nil {
			return mapError(r.desc.Table, err)
		}
		updated, err = r.take(ctx, tx, nil, r.eq(ColumnGlobalID, globalID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SetLifecycle moves the row to state regardless of its current state. The
// surrounding operation is responsible for authorising the caller.
func (r *Repository[T]) SetLifecycle(ctx context.Context, globalID string, state domain.Lifecycle) (*T, error) {
	return r.setLifecycle(ctx, globalID, state, nil)
}

// Transition is SetLifecycle for request paths, where DELETED is terminal.
// Leaving DELETED is NotFound for an unprivileged caller and a validation
// error for a privileged one.
func (r *Repository[T]) Transition(ctx context.Context, caller domain.Caller, globalID string, state domain.Lifecycle) (*T, error) {
	return r.setLifecycle(ctx, globalID, state, func(current domain.Lifecycle) error {
		if current != domain.LifecycleDeleted {
			return nil
		}
		if !caller.Privileged {
			return domain.NewAppError(domain.CodeNotFound, r.desc.Table+" not found", nil)
		}
		return domain.NewAppError(domain.CodeValidation,
			fmt.Sprintf("%s %s is deleted and cannot change state", r.desc.Table, globalID), nil)
	})
}

func (r *Repository[T]) setLifecycle(ctx context.Context, globalID string, state domain.Lifecycle, guard func(domain.Lifecycle) error) (*T, error) {
	lc := r.desc.LifecycleColumn
	if lc == "" {
		return nil, domain.NewAppError(domain.CodeValidation, r.desc.Table+" has no lifecycle state", nil)
	}
	if !state.Valid() {
		return nil, domain.NewAppError(domain.CodeValidation, fmt.Sprintf("invalid lifecycle value %d", state), nil)
	}

	var updated *T
	err := pkg.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		var current []int64
		if err := tx.Model(new(T)).Where(r.eq(ColumnGlobalID, globalID)).Limit(1).Pluck(lc, &current).Error; err != nil {
			return mapError(r.desc.Table, err)
		}
		if len(current) == 0 {
			return domain.NewAppError(domain.CodeNotFound, r.desc.Table+" not found", nil)
		}
		if guard != nil {
			if err := guard(domain.Lifecycle(current[0])); err != nil {
				return err
			}
		}

		values := map[string]any{lc: int64(state)}
		if r.desc.Has(ColumnUpdatedAt) {
			values[ColumnUpdatedAt] = time.Now().UTC()
		}
		if err := tx.Model(new(T)).Where(r.eq(ColumnGlobalID, globalID)).Updates(values).Error; err != nil {
			return mapError(r.desc.Table, err)
		}
		var err error
		updated, err = r.take(ctx, tx, nil, r.eq(ColumnGlobalID, globalID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete soft-deletes the row. Entities without a lifecycle column are
// removed from storage instead.
func (r *Repository[T]) Delete(ctx context.Context, globalID string) (*T, error) {
	if r.desc.HasLifecycle() {
		return r.SetLifecycle(ctx, globalID, domain.LifecycleDeleted)
	}

	var deleted *T
	err := pkg.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		row, err := r.take(ctx, tx, nil, r.eq(ColumnGlobalID, globalID))
		if err != nil {
			return err
		}
		result := tx.Where(r.eq(ColumnGlobalID, globalID)).Delete(new(T))
		if result.Error != nil {
			return mapError(r.desc.Table, result.Error)
		}
		if result.RowsAffected == 0 {
			return domain.NewAppError(domain.CodeNotFound, r.desc.Table+" not found", nil)
		}
		deleted = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// Count returns the number of rows matching q as seen by caller.
func (r *Repository[T]) Count(ctx context.Context, caller domain.Caller, q domain.ListQuery) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(new(T)).
		Scopes(r.qb.scope(r.qb.predicates(caller, q))).
		Count(&total).Error
	if err != nil {
		return 0, mapError(r.desc.Table, err)
	}
	return total, nil
}

// List returns the rows matching q as seen by caller. When q.Page is set the
// result carries a pagination envelope computed with the same predicates;
// otherwise Skip and Limit apply and no envelope is returned.
func (r *Repository[T]) List(ctx context.Context, caller domain.Caller, q domain.ListQuery) (domain.ListResult[T], error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	exprs := r.qb.predicates(caller, q)
	offset := max(q.Skip, 0)
	rows := []T{}
	// A page whose offset does not fit in an int lies past every table.
	pastEnd := q.Page > 0 && q.Page-1 > math.MaxInt/limit
	if q.Page > 0 && !pastEnd {
		offset = (q.Page - 1) * limit
	}

	if !pastEnd {
		err := r.db.WithContext(ctx).Model(new(T)).
			Scopes(r.qb.scope(exprs), r.qb.order(q)).
			Offset(offset).
			Limit(limit).
			Find(&rows).Error
		if err != nil {
			return domain.ListResult[T]{}, mapError(r.desc.Table, err)
		}
	}

	result := domain.ListResult[T]{Items: rows}
	if q.Page > 0 {
		total, err := r.Count(ctx, caller, q)
		if err != nil {
			return domain.ListResult[T]{}, err
		}
		result.Pagination = domain.NewPagination(total, q.Page, limit)
	}
	return result, nil
}

// values keeps the payload entries naming known columns, coerced to the
// column type. Lifecycle values are limited to active and inactive.
func (r *Repository[T]) values(payload domain.Payload) (map[string]any, error) {
	out := make(map[string]any, len(payload))
	for key, raw := range payload {
		t, ok := r.desc.Columns[key]
		if !ok {
			continue
		}
		if raw == nil {
			out[key] = nil
			continue
		}
		v, err := coerce(t, raw)
		if err != nil {
			return nil, domain.NewAppError(domain.CodeValidation, fmt.Sprintf("invalid value for %s", key), err)
		}
		out[key] = v
	}

	if lc := r.desc.LifecycleColumn; lc != "" {
		if v, ok := out[lc]; ok && v != nil {
			state, _ := v.(int64)
			if state != int64(domain.LifecycleActive) && state != int64(domain.LifecycleInactive) {
				return nil, domain.NewAppError(domain.CodeValidation, lc+" must be 0 or 1", nil)
			}
		}
	}
	return out, nil
}

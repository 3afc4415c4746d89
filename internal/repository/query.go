package repository

import (
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/simp-lee/attendance/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// Sort directions accepted in ListQuery.SortDir.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// queryBuilder turns a ListQuery into predicates for one entity type.
// Identifiers only reach SQL through clause.Column and clause.Table after a
// descriptor lookup; values are always bound.
type queryBuilder struct {
	desc *Descriptor
}

func (b queryBuilder) column(name string) clause.Column {
	return clause.Column{Table: b.desc.Table, Name: name}
}

// visibility restricts reads to rows the caller may observe: never deleted,
// and active only for unprivileged callers.
func (b queryBuilder) visibility(caller domain.Caller) []clause.Expression {
	lc := b.desc.LifecycleColumn
	if lc == "" {
		return nil
	}
	exprs := []clause.Expression{notDeleted(b.column(lc))}
	if !caller.Privileged {
		exprs = append(exprs, clause.Eq{Column: b.column(lc), Value: int64(domain.LifecycleActive)})
	}
	return exprs
}

func notDeleted(col clause.Column) clause.Expression {
	return clause.Neq{Column: col, Value: int64(domain.LifecycleDeleted)}
}

// effectiveFilters applies the visibility default to the caller's filters.
// An unprivileged caller always gets lifecycle = active, whatever they asked
// for; a privileged caller's explicit value is kept.
func (b queryBuilder) effectiveFilters(caller domain.Caller, filters map[string]any) map[string]any {
	out := make(map[string]any, len(filters)+1)
	maps.Copy(out, filters)
	if lc := b.desc.LifecycleColumn; lc != "" && !caller.Privileged {
		out[lc] = int64(domain.LifecycleActive)
	}
	return out
}

// predicates returns every WHERE expression for q, in a deterministic order.
func (b queryBuilder) predicates(caller domain.Caller, q domain.ListQuery) []clause.Expression {
	filters := b.effectiveFilters(caller, q.Filters)
	var exprs []clause.Expression

	for _, key := range slices.Sorted(maps.Keys(filters)) {
		if expr, ok := b.filter(key, filters[key]); ok {
			exprs = append(exprs, expr)
		}
	}
	if expr, ok := b.search(q.Search, q.SearchColumns); ok {
		exprs = append(exprs, expr)
	}
	exprs = append(exprs, b.dateRange(q)...)

	if lc := b.desc.LifecycleColumn; lc != "" {
		exprs = append(exprs, notDeleted(b.column(lc)))
	}
	return exprs
}

func (b queryBuilder) filter(key string, value any) (clause.Expression, bool) {
	if rel, col, dotted := strings.Cut(key, "."); dotted {
		return b.relationFilter(rel, col, value)
	}
	if !b.desc.Filterable(key) {
		return nil, false
	}
	return columnPredicate(b.column(key), b.desc.Columns[key], value)
}

// columnPredicate translates one filter value against col of type t.
//
//   - digit strings, optionally comma separated: equality or IN
//   - other strings: case-insensitive substring match
//   - slices: IN
//   - other scalars: equality
//
// Values that cannot be coerced to the column type produce no predicate.
func columnPredicate(col clause.Column, t schema.DataType, value any) (clause.Expression, bool) {
	if s, ok := value.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, false
		}
		if numericListPattern.MatchString(s) {
			return membership(col, t, toAnySlice(strings.Split(s, ",")))
		}
		switch t {
		case schema.String, schema.Time:
			return likeExpr(col, t, s), true
		}
		v, ok := filterScalar(t, s)
		if !ok {
			return nil, false
		}
		return clause.Eq{Column: col, Value: v}, true
	}

	if list, ok := filterList(value); ok {
		return membership(col, t, list)
	}

	v, ok := filterScalar(t, value)
	if !ok {
		return nil, false
	}
	return clause.Eq{Column: col, Value: v}, true
}

// membership builds equality for one value or IN for several, skipping
// elements that cannot be coerced.
func membership(col clause.Column, t schema.DataType, values []any) (clause.Expression, bool) {
	coerced := make([]any, 0, len(values))
	for _, raw := range values {
		if v, ok := filterScalar(t, raw); ok {
			coerced = append(coerced, v)
		}
	}
	switch len(coerced) {
	case 0:
		return nil, false
	case 1:
		return clause.Eq{Column: col, Value: coerced[0]}, true
	}
	return clause.IN{Column: col, Values: coerced}, true
}

func likeExpr(col clause.Column, t schema.DataType, term string) clause.Expression {
	pattern := "%" + strings.ToLower(term) + "%"
	if t == schema.String {
		return clause.Expr{SQL: "LOWER(?) LIKE ?", Vars: []any{col, pattern}}
	}
	return clause.Expr{SQL: "LOWER(CAST(? AS TEXT)) LIKE ?", Vars: []any{col, pattern}}
}

// relationFilter matches rows whose related row, joined through the
// relation's foreign key, has column equal to value.
func (b queryBuilder) relationFilter(name, column string, value any) (clause.Expression, bool) {
	rel, ok := b.desc.Relations[name]
	if !ok || !rel.Target.Filterable(column) {
		return nil, false
	}
	target := clause.Column{Table: rel.Target.Table, Name: column}
	t := rel.Target.Columns[column]

	var match clause.Expression
	if s, isString := value.(string); isString && numericListPattern.MatchString(strings.TrimSpace(s)) {
		match, ok = membership(target, t, toAnySlice(strings.Split(strings.TrimSpace(s), ",")))
	} else if list, isList := filterList(value); isList {
		match, ok = membership(target, t, list)
	} else {
		var v any
		v, ok = filterScalar(t, value)
		match = clause.Eq{Column: target, Value: v}
	}
	if !ok {
		return nil, false
	}

	return clause.Expr{
		SQL: "EXISTS (SELECT 1 FROM ? WHERE ? = ? AND ?)",
		Vars: []any{
			clause.Table{Name: rel.Target.Table},
			clause.Column{Table: rel.Target.Table, Name: rel.Target.PrimaryKey},
			b.column(rel.ForeignKey),
			match,
		},
	}, true
}

// search ORs a case-insensitive substring match across columns. Dotted and
// non-filterable names are skipped; nil columns fall back to the descriptor's.
func (b queryBuilder) search(term string, columns []string) (clause.Expression, bool) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, false
	}
	if columns == nil {
		columns = b.desc.SearchColumns
	}

	var (
		parts []string
		vars  []any
	)
	pattern := "%" + strings.ToLower(term) + "%"
	for _, name := range columns {
		if strings.Contains(name, ".") || !b.desc.Filterable(name) {
			continue
		}
		switch b.desc.Columns[name] {
		case schema.Bytes:
			continue
		case schema.String:
			parts = append(parts, "LOWER(?) LIKE ?")
		default:
			parts = append(parts, "LOWER(CAST(? AS TEXT)) LIKE ?")
		}
		vars = append(vars, b.column(name), pattern)
	}
	if len(parts) == 0 {
		return nil, false
	}
	return clause.Expr{SQL: "(" + strings.Join(parts, " OR ") + ")", Vars: vars}, true
}

// dateRange bounds the date column inclusively by epoch-millisecond limits.
func (b queryBuilder) dateRange(q domain.ListQuery) []clause.Expression {
	if q.DateFromMS == nil && q.DateToMS == nil {
		return nil
	}
	name := q.DateColumn
	if name == "" {
		name = b.desc.DateColumn
	}
	if !b.desc.Filterable(name) || b.desc.Columns[name] != schema.Time {
		return nil
	}

	var exprs []clause.Expression
	col := b.column(name)
	if q.DateFromMS != nil {
		exprs = append(exprs, clause.Gte{Column: col, Value: time.UnixMilli(*q.DateFromMS).UTC()})
	}
	if q.DateToMS != nil {
		exprs = append(exprs, clause.Lte{Column: col, Value: time.UnixMilli(*q.DateToMS).UTC()})
	}
	return exprs
}

// order sorts by the requested column when it is sortable, falling back to
// ascending primary key. The primary key always breaks ties so pages are stable.
func (b queryBuilder) order(q domain.ListQuery) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		pk := b.desc.PrimaryKey
		if q.SortBy != "" && q.SortBy != pk && b.desc.Filterable(q.SortBy) {
			desc := strings.EqualFold(q.SortDir, SortDesc)
			db = db.Order(clause.OrderByColumn{Column: b.column(q.SortBy), Desc: desc})
		}
		return db.Order(clause.OrderByColumn{Column: b.column(pk)})
	}
}

// scope applies predicates to a query.
func (b queryBuilder) scope(exprs []clause.Expression) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		for _, expr := range exprs {
			db = db.Where(expr)
		}
		return db
	}
}

package repository

import (
	"fmt"
	"regexp"
	"sync"

	"gorm.io/gorm/schema"
)

// Conventional column names shared by every entity.
const (
	ColumnID        = "id"
	ColumnGlobalID  = "global_id"
	ColumnActive    = "active"
	ColumnCreatedAt = "created_at"
	ColumnUpdatedAt = "updated_at"
)

var (
	identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	schemaCache       = &sync.Map{}
)

// Relation is a single-level join target for dotted filters: rows match when
// the related row referenced by ForeignKey has the filtered column value.
type Relation struct {
	Target     *Descriptor
	ForeignKey string
}

// Descriptor is the static column description of one entity type, built once
// at startup and consulted by every query the repository builds.
type Descriptor struct {
	Table           string
	PrimaryKey      string
	Columns         map[string]schema.DataType
	LifecycleColumn string
	DateColumn      string
	SearchColumns   []string
	Relations       map[string]Relation

	hidden map[string]bool
}

// Option customises a Descriptor.
type Option func(*Descriptor) error

// WithSearch sets the default free-text search columns.
func WithSearch(columns ...string) Option {
	return func(d *Descriptor) error {
		for _, c := range columns {
			if !d.Filterable(c) {
				return fmt.Errorf("%s: unknown search column %q", d.Table, c)
			}
		}
		d.SearchColumns = columns
		return nil
	}
}

// WithDateColumn overrides the default date-range column.
func WithDateColumn(column string) Option {
	return func(d *Descriptor) error {
		if d.Columns[column] != schema.Time {
			return fmt.Errorf("%s: date column %q is not a timestamp", d.Table, column)
		}
		d.DateColumn = column
		return nil
	}
}

// WithHidden excludes columns from filtering, sorting, and search.
func WithHidden(columns ...string) Option {
	return func(d *Descriptor) error {
		for _, c := range columns {
			d.hidden[c] = true
		}
		return nil
	}
}

// WithRelation registers name as a dotted-filter relation to target through
// foreignKey on this entity.
func WithRelation(name string, target *Descriptor, foreignKey string) Option {
	return func(d *Descriptor) error {
		if !identifierPattern.MatchString(name) {
			return fmt.Errorf("%s: invalid relation name %q", d.Table, name)
		}
		if target == nil {
			return fmt.Errorf("%s: relation %q has no target", d.Table, name)
		}
		if _, ok := d.Columns[foreignKey]; !ok {
			return fmt.Errorf("%s: relation %q uses unknown column %q", d.Table, name, foreignKey)
		}
		d.Relations[name] = Relation{Target: target, ForeignKey: foreignKey}
		return nil
	}
}

// Describe parses model with the GORM naming strategy and builds its
// descriptor. Columns serialised as json:"-" are hidden; a numeric "active"
// column becomes the lifecycle column.
func Describe(model any, opts ...Option) (*Descriptor, error) {
	s, err := schema.Parse(model, schemaCache, schema.NamingStrategy{})
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}

	d := &Descriptor{
		Table:     s.Table,
		Columns:   make(map[string]schema.DataType, len(s.DBNames)),
		Relations: make(map[string]Relation),
		hidden:    make(map[string]bool),
	}
	if s.PrioritizedPrimaryField != nil {
		d.PrimaryKey = s.PrioritizedPrimaryField.DBName
	}
	if d.PrimaryKey == "" {
		return nil, fmt.Errorf("%s: no primary key", s.Table)
	}

	for _, name := range s.DBNames {
		if !identifierPattern.MatchString(name) {
			return nil, fmt.Errorf("%s: unsupported column name %q", s.Table, name)
		}
		field := s.FieldsByDBName[name]
		d.Columns[name] = field.GORMDataType
		if field.StructField.Tag.Get("json") == "-" {
			d.hidden[name] = true
		}
	}
	if _, ok := d.Columns[ColumnGlobalID]; !ok {
		return nil, fmt.Errorf("%s: missing %s column", s.Table, ColumnGlobalID)
	}
	if t := d.Columns[ColumnActive]; t == schema.Int || t == schema.Uint {
		d.LifecycleColumn = ColumnActive
	}
	if d.Columns[ColumnCreatedAt] == schema.Time {
		d.DateColumn = ColumnCreatedAt
	}

	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Has reports whether column exists on the entity.
func (d *Descriptor) Has(column string) bool {
	_, ok := d.Columns[column]
	return ok
}

// Filterable reports whether column may be used in filters, sorting, or search.
func (d *Descriptor) Filterable(column string) bool {
	return d.Has(column) && !d.hidden[column]
}

// HasLifecycle reports whether the entity carries a lifecycle column.
func (d *Descriptor) HasLifecycle() bool {
	return d.LifecycleColumn != ""
}

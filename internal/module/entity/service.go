package entity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/simp-lee/attendance/internal/domain"
	"github.com/simp-lee/attendance/internal/repository"
)

// Op identifies the write a payload is being prepared for.
type Op int

const (
	OpCreate Op = iota
	OpUpdate
)

func (op Op) String() string {
	if op == OpCreate {
		return "create"
	}
	return "update"
}

// PrepareFunc rewrites a validated, resolved payload before it is stored.
type PrepareFunc func(ctx context.Context, op Op, payload domain.Payload) error

// ChangeFunc observes a row after a successful write.
type ChangeFunc[T any] func(ctx context.Context, row *T)

// Rules are the payload constraints of one entity. Fields maps payload keys
// to validator tags and is checked for every key present in a payload;
// Required keys must be present and non-empty on create.
type Rules struct {
	Fields   map[string]string
	Required []string
}

// ValidationError carries the per-field result of validator.ValidateMap.
type ValidationError struct {
	Fields map[string]any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %d field(s)", len(e.Fields))
}

// Service is the write and read path of one entity type. Every operation is
// funnelled through the entity's repository.
type Service[T any] struct {
	repo     *repository.Repository[T]
	resolver *repository.Resolver
	rules    Rules
	prepare  []PrepareFunc
	onChange []ChangeFunc[T]
	validate *validator.Validate
}

// Option configures a Service.
type Option[T any] func(*Service[T])

// WithResolver rewrites foreign keys given as global identifiers.
func WithResolver[T any](r *repository.Resolver) Option[T] {
	return func(s *Service[T]) { s.resolver = r }
}

// WithRules sets the payload constraints.
func WithRules[T any](rules Rules) Option[T] {
	return func(s *Service[T]) { s.rules = rules }
}

// WithPrepare appends payload hooks run in order before every write.
func WithPrepare[T any](fns ...PrepareFunc) Option[T] {
	return func(s *Service[T]) { s.prepare = append(s.prepare, fns...) }
}

// WithOnChange appends observers run after every successful write.
func WithOnChange[T any](fns ...ChangeFunc[T]) Option[T] {
	return func(s *Service[T]) { s.onChange = append(s.onChange, fns...) }
}

// NewService creates a Service over repo.
func NewService[T any](repo *repository.Repository[T], opts ...Option[T]) *Service[T] {
	s := &Service[T]{repo: repo, validate: validator.New()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the table the service writes to.
func (s *Service[T]) Name() string {
	return s.repo.Descriptor().Table
}

// HasLifecycle reports whether rows can be activated, deactivated, and soft-deleted.
func (s *Service[T]) HasLifecycle() bool {
	return s.repo.Descriptor().HasLifecycle()
}

// List returns the rows matching q as seen by caller.
func (s *Service[T]) List(ctx context.Context, caller domain.Caller, q domain.ListQuery) (domain.ListResult[T], error) {
	return s.repo.List(ctx, caller, q)
}

// Get returns the row with globalID if it is visible to caller.
func (s *Service[T]) Get(ctx context.Context, caller domain.Caller, globalID string) (*T, error) {
	return s.repo.GetByGlobalID(ctx, caller, globalID)
}

// Create validates payload, resolves its foreign keys, and stores a new row.
func (s *Service[T]) Create(ctx context.Context, payload domain.Payload) (*T, error) {
	values, err := s.preparePayload(ctx, OpCreate, payload)
	if err != nil {
		return nil, err
	}
	row, err := s.repo.Create(ctx, values)
	if err != nil {
		return nil, err
	}
	s.changed(ctx, row)
	return row, nil
}

// Update applies payload to the row with globalID, which must be visible to caller.
func (s *Service[T]) Update(ctx context.Context, caller domain.Caller, globalID string, payload domain.Payload) (*T, error) {
	if len(payload) == 0 {
		return nil, domain.NewAppError(domain.CodeValidation, "no fields to update", nil)
	}
	values, err := s.preparePayload(ctx, OpUpdate, payload)
	if err != nil {
		return nil, err
	}
	row, err := s.repo.UpdateByGlobalID(ctx, caller, globalID, values)
	if err != nil {
		return nil, err
	}
	s.changed(ctx, row)
	return row, nil
}

// SetStatus activates (1) or deactivates (0) the row with globalID. A deleted
// row stays deleted.
func (s *Service[T]) SetStatus(ctx context.Context, caller domain.Caller, globalID string, active int) (*T, error) {
	if active != int(domain.LifecycleActive) && active != int(domain.LifecycleInactive) {
		return nil, domain.NewAppError(domain.CodeValidation, "active must be 0 or 1", nil)
	}
	row, err := s.repo.Transition(ctx, caller, globalID, domain.Lifecycle(active))
	if err != nil {
		return nil, err
	}
	s.changed(ctx, row)
	return row, nil
}

// Delete soft-deletes the row with globalID; entities without a lifecycle
// column are removed. Deleting twice fails like any other transition out of
// DELETED.
func (s *Service[T]) Delete(ctx context.Context, caller domain.Caller, globalID string) (*T, error) {
	var (
		row *T
		err error
	)
	if s.HasLifecycle() {
		row, err = s.repo.Transition(ctx, caller, globalID, domain.LifecycleDeleted)
	} else {
		row, err = s.repo.Delete(ctx, globalID)
	}
	if err != nil {
		return nil, err
	}
	s.changed(ctx, row)
	return row, nil
}

// preparePayload returns a copy of payload that passed validation, foreign-key
// resolution, and the prepare hooks. The caller's map is never modified.
func (s *Service[T]) preparePayload(ctx context.Context, op Op, payload domain.Payload) (domain.Payload, error) {
	if err := s.check(op, payload); err != nil {
		return nil, err
	}
	values, err := s.resolver.Resolve(ctx, payload)
	if err != nil {
		return nil, err
	}
	for _, fn := range s.prepare {
		if err := fn(ctx, op, values); err != nil {
			return nil, err
		}
	}
	return values, nil
}

func (s *Service[T]) check(op Op, payload domain.Payload) error {
	data := make(map[string]any)
	rules := make(map[string]any)
	errs := make(map[string]any)

	for field, rule := range s.rules.Fields {
		v, ok := payload[field]
		if !ok || v == nil || rule == "" {
			continue
		}
		if !validatable(v) {
			errs[field] = fmt.Errorf("unsupported value type %T", v)
			continue
		}
		data[field] = v
		rules[field] = rule
	}
	if op == OpCreate {
		for _, field := range s.rules.Required {
			if _, failed := errs[field]; failed {
				continue
			}
			v := payload[field]
			data[field] = v
			rule := "required"
			if extra := s.rules.Fields[field]; extra != "" && v != nil {
				rule += "," + extra
			}
			rules[field] = rule
		}
	}

	for field, err := range s.validate.ValidateMap(data, rules) {
		errs[field] = err
	}
	if len(errs) == 0 {
		return nil
	}
	return domain.NewAppError(domain.CodeValidation, "validation error", &ValidationError{Fields: errs})
}

// validatable reports whether v is a scalar the length and range tags accept.
func validatable(v any) bool {
	switch v.(type) {
	case string, float64, float32, int, int64, int32, uint, uint64, uint32, json.Number:
		return true
	}
	return false
}

func (s *Service[T]) changed(ctx context.Context, row *T) {
	for _, fn := range s.onChange {
		fn(ctx, row)
	}
}

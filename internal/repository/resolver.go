package repository

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/simp-lee/attendance/internal/domain"
)

// IDLookup resolves a public identifier to a surrogate key.
// *Repository[T] implements it.
type IDLookup interface {
	IDByGlobalID(ctx context.Context, globalID string) (uint, error)
}

// Resolver rewrites foreign-key payload fields given as global identifiers
// into surrogate keys.
type Resolver struct {
	refs map[string]IDLookup
}

// NewResolver maps payload fields to the entity type they reference.
func NewResolver(refs map[string]IDLookup) *Resolver {
	return &Resolver{refs: refs}
}

// Fields returns the foreign-key fields handled by the resolver.
func (r *Resolver) Fields() []string {
	if r == nil {
		return nil
	}
	return sortedKeys(r.refs)
}

// Resolve returns a copy of payload in which every mapped, non-nil field
// holds a surrogate key. Numeric values and digit strings are kept as
// integers; other strings are looked up as global identifiers.
func (r *Resolver) Resolve(ctx context.Context, payload domain.Payload) (domain.Payload, error) {
	out := make(domain.Payload, len(payload))
	maps.Copy(out, payload)
	if r == nil {
		return out, nil
	}

	for _, field := range sortedKeys(r.refs) {
		raw, ok := out[field]
		if !ok || raw == nil {
			continue
		}

		if s, isString := raw.(string); isString {
			s = strings.TrimSpace(s)
			if s == "" {
				return nil, domain.NewAppError(domain.CodeValidation, field+" must not be empty", nil)
			}
			if id, numeric := toInt64(s); numeric && id >= 0 {
				out[field] = uint(id)
				continue
			}
			id, err := r.refs[field].IDByGlobalID(ctx, s)
			if err != nil {
				if domain.IsNotFound(err) {
					return nil, domain.ReferenceNotFound(field, s, err)
				}
				return nil, err
			}
			out[field] = id
			continue
		}

		id, numeric := toInt64(raw)
		if !numeric || id < 0 {
			return nil, domain.NewAppError(domain.CodeValidation,
				fmt.Sprintf("%s must be an id or global_id", field), nil)
		}
		out[field] = uint(id)
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

package setting

import (
	"context"

	"github.com/simp-lee/attendance/internal/domain"
	"github.com/simp-lee/attendance/internal/module/entity"
)

// Invalidator drops a cached setting. *settings.Cache implements it.
type Invalidator interface {
	Invalidate(key string)
}

// InvalidateOnChange returns a write observer that evicts the written key.
func InvalidateOnChange(cache Invalidator) entity.ChangeFunc[domain.Setting] {
	return func(_ context.Context, row *domain.Setting) {
		if row != nil {
			cache.Invalidate(row.Key)
		}
	}
}

// ImmutableKey rejects updates that rename a setting, so a cached value can
// always be evicted by the key of the written row.
func ImmutableKey(_ context.Context, op entity.Op, payload domain.Payload) error {
	if op != entity.OpUpdate {
		return nil
	}
	if _, ok := payload["key"]; ok {
		return domain.NewAppError(domain.CodeValidation, "key cannot be changed", nil)
	}
	return nil
}

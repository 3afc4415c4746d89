package setting

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/attendance/internal/domain"
	"github.com/simp-lee/attendance/internal/pkg"
)

// Reloader re-reads every setting from storage. *settings.Cache implements it.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Handler serves settings maintenance endpoints.
type Handler struct {
	cache  Reloader
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(cache Reloader, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{cache: cache, logger: logger}
}

// Refresh handles POST /settings/refresh.
func (h *Handler) Refresh(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.cache.Reload(ctx); err != nil {
		h.logger.ErrorContext(ctx, "settings reload failed", slog.Any("error", err))
		pkg.Error(c, domain.NewAppError(domain.CodeInternal, "failed to reload settings", err))
		return
	}

	pkg.Success(c, gin.H{"reloaded": true})
}

package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/attendance/internal/pkg"
)

// Recovery turns a handler panic into a logged 500. When the handler had not
// written anything yet the caller receives the usual envelope with
// message "internal server error"; otherwise the partial response stands.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}

	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			attrs := []slog.Attr{
				slog.Any("panic", rec),
				slog.String("method", c.Request.Method),
				slog.String("path", c.Request.URL.Path),
			}
			if route := c.FullPath(); route != "" {
				attrs = append(attrs, slog.String("route", route))
			}
			attrs = append(attrs, slog.String("stack", string(debug.Stack())))
			logger.LogAttrs(c.Request.Context(), slog.LevelError, "panic recovered", attrs...)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, pkg.Response{
				Code:    http.StatusInternalServerError,
				Message: "internal server error",
			})
		}()
		c.Next()
	}
}

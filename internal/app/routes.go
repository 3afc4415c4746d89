package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/attendance/internal/module/entity"
	"github.com/simp-lee/attendance/internal/pkg"
	"gorm.io/gorm"
)

const (
	apiPrefix          = "/api/v1"
	adminAreaPrefix    = "/admin/auth"
	lecturerAreaPrefix = "/lecturer/auth"
	userAreaPrefix     = "/user"
	defaultMetricsPath = "/metrics"
)

// RouteDeps holds all dependencies needed to register routes.
type RouteDeps struct {
	Modules []Module
	DB      *gorm.DB
	// Metrics serves the Prometheus registry; nil disables the endpoint.
	Metrics     gin.HandlerFunc
	MetricsPath string
}

// RegisterRoutes mounts the health check, the optional metrics endpoint and
// every module under /api/v1. Nothing is registered when deps are invalid.
func RegisterRoutes(r *gin.Engine, deps *RouteDeps) error {
	if r == nil {
		return errors.New("router is nil")
	}
	if deps == nil {
		return errors.New("route dependencies are nil")
	}
	if len(deps.Modules) == 0 {
		return errors.New("at least one module is required")
	}
	for i, m := range deps.Modules {
		if m == nil {
			return fmt.Errorf("module at index %d is nil", i)
		}
	}

	r.GET("/health", healthHandler(deps.DB))

	if deps.Metrics != nil {
		path := strings.TrimSpace(deps.MetricsPath)
		if path == "" {
			path = defaultMetricsPath
		}
		r.GET(path, deps.Metrics)
	}

	api := r.Group(apiPrefix)
	for _, m := range deps.Modules {
		m.RegisterRoutes(api)
	}
	r.NoRoute(noRouteHandler())
	return nil
}

// areaSpecs lists the resources of each entity area. The admin area manages
// every entity; lecturers record attendance and browse the academic
// structure; the user area is public and read-only.
func areaSpecs(c *entity.Catalog, adminGate, lecturerGate gin.HandlerFunc) []entity.AreaSpec {
	return []entity.AreaSpec{
		{
			Prefix: adminAreaPrefix,
			Gate:   adminGate,
			Full:   c.Names(),
		},
		{
			Prefix: lecturerAreaPrefix,
			Gate:   lecturerGate,
			Full:   []string{"attendance", "sessions", "verifications"},
			ReadOnly: []string{
				"course_offerings", "departments", "generations", "groups", "rooms",
				"specializations", "students", "subjects", "terms",
			},
		},
		{
			Prefix: userAreaPrefix,
			ReadOnly: []string{
				"attendance", "course_offerings", "groups", "rooms", "sessions",
				"students", "subjects",
			},
		},
	}
}

const healthPingTimeout = time.Second

// healthHandler reports whether the database answers a ping within a second
// of the request's own deadline. Any failure degrades the response to 503.
func healthHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
		defer cancel()

		if err := pingDatabase(ctx, db); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":     "degraded",
				"components": gin.H{"database": "error"},
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"components": gin.H{"database": "ok"},
		})
	}
}

func pingDatabase(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("database is not configured")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// noRouteHandler answers unknown paths with the JSON envelope.
func noRouteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusNotFound, pkg.Response{Code: http.StatusNotFound, Message: "not found"})
	}
}

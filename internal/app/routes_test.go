package app

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/simp-lee/attendance/internal/module/entity"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func healthResponse(t *testing.T, db *gorm.DB, ctx context.Context) (int, map[string]any) {
	t.Helper()
	r := gin.New()
	r.GET("/health", healthHandler(db))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil).WithContext(ctx))

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health body %q: %v", w.Body.String(), err)
	}
	return w.Code, body
}

func TestHealthHandler(t *testing.T) {
	closed := openTestSQLiteDB(t)
	if sqlDB, err := closed.DB(); err == nil {
		sqlDB.Close()
	}

	tests := []struct {
		name     string
		db       *gorm.DB
		code     int
		status   string
		database string
	}{
		{"reachable", openTestSQLiteDB(t), http.StatusOK, "ok", "ok"},
		{"closed pool", closed, http.StatusServiceUnavailable, "degraded", "error"},
		{"no database", nil, http.StatusServiceUnavailable, "degraded", "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := healthResponse(t, tt.db, context.Background())
			if code != tt.code {
				t.Fatalf("status code = %d, want %d", code, tt.code)
			}
			comps, _ := body["components"].(map[string]any)
			if body["status"] != tt.status || comps["database"] != tt.database {
				t.Errorf("body = %v, want status %q database %q", body, tt.status, tt.database)
			}
		})
	}
}

func TestHealthHandler_HonoursRequestDeadline(t *testing.T) {
	registerBlockingPingDriver()

	sqlDB, err := sql.Open(blockingPingDriverName, "")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{DisableAutomaticPing: true})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	t.Cleanup(cancel)

	start := time.Now()
	code, _ := healthResponse(t, db, ctx)
	if code != http.StatusServiceUnavailable {
		t.Fatalf("status code = %d, want 503", code)
	}
	if elapsed := time.Since(start); elapsed >= healthPingTimeout {
		t.Fatalf("health check waited %v, past the request deadline", elapsed)
	}
}

func TestNoRouteHandler_JSON(t *testing.T) {
	for _, path := range []string{"/nonexistent", "/api/v1/nonexistent", "/api/"} {
		r := gin.New()
		r.NoRoute(noRouteHandler())

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Accept", "text/html")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, w.Code)
		}
		if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
			t.Errorf("%s: Content-Type = %q, want application/json", path, ct)
		}

		var body map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if body["message"] != "not found" {
			t.Errorf("expected message 'not found', got %v", body["message"])
		}
		if body["data"] != nil {
			t.Errorf("expected data nil, got %v", body["data"])
		}
	}
}

type mockModule struct {
	called bool
	prefix string
}

func (m *mockModule) RegisterRoutes(api *gin.RouterGroup) {
	m.called = true
	m.prefix = api.BasePath()
	api.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
}

func TestRegisterRoutes_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		router *gin.Engine
		deps   *RouteDeps
		want   string
	}{
		{"nil router", nil, &RouteDeps{}, "router is nil"},
		{"nil deps", gin.New(), nil, "route dependencies are nil"},
		{"no modules", gin.New(), &RouteDeps{}, "at least one module is required"},
		{"nil module", gin.New(), &RouteDeps{Modules: []Module{&mockModule{}, nil}}, "module at index 1 is nil"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RegisterRoutes(tt.router, tt.deps)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("RegisterRoutes error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestRegisterRoutes_ModulesAreMountedUnderAPI(t *testing.T) {
	m := &mockModule{}
	r := gin.New()
	err := RegisterRoutes(r, &RouteDeps{
		Modules: []Module{m},
		DB:      openTestSQLiteDB(t),
	})
	if err != nil {
		t.Fatalf("RegisterRoutes: %v", err)
	}
	if !m.called || m.prefix != apiPrefix {
		t.Fatalf("module mounted = %v under %q, want %q", m.called, m.prefix, apiPrefix)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
	if w.Code != http.StatusOK {
		t.Errorf("GET /api/v1/ping = %d, want 200", w.Code)
	}
}

func TestRegisterRoutes_MetricsDefaultPath(t *testing.T) {
	r := gin.New()
	err := RegisterRoutes(r, &RouteDeps{
		Modules: []Module{&mockModule{}},
		Metrics: func(c *gin.Context) { c.String(http.StatusOK, "metrics") },
	})
	if err != nil {
		t.Fatalf("RegisterRoutes: %v", err)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || w.Body.String() != "metrics" {
		t.Errorf("GET /metrics = %d %q, want 200 %q", w.Code, w.Body.String(), "metrics")
	}
}

func TestAreaSpecs_ResolveAgainstCatalog(t *testing.T) {
	db := openTestSQLiteDB(t)
	catalog, err := entity.NewCatalog(db, entity.CatalogOptions{})
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}

	gate := func(c *gin.Context) { c.Next() }
	specs := areaSpecs(catalog, gate, gate)
	if len(specs) != 3 {
		t.Fatalf("areaSpecs returned %d areas, want 3", len(specs))
	}
	for _, spec := range specs {
		if _, err := entity.NewArea(catalog, spec); err != nil {
			t.Errorf("NewArea(%s): %v", spec.Prefix, err)
		}
	}
	if got := len(specs[0].Full); got != len(catalog.Names()) {
		t.Errorf("admin area manages %d resources, want %d", got, len(catalog.Names()))
	}
	if specs[2].Gate != nil || len(specs[2].Full) != 0 {
		t.Error("user area must be ungated and read-only")
	}
}

func openTestSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}
	return db
}

const blockingPingDriverName = "blocking_ping"

var registerBlockingPingDriverOnce sync.Once

func registerBlockingPingDriver() {
	registerBlockingPingDriverOnce.Do(func() {
		sql.Register(blockingPingDriverName, blockingPingDriver{})
	})
}

type blockingPingDriver struct{}

func (blockingPingDriver) Open(string) (driver.Conn, error) {
	return blockingPingConn{}, nil
}

type blockingPingConn struct{}

func (blockingPingConn) Prepare(string) (driver.Stmt, error) { return nil, driver.ErrSkip }
func (blockingPingConn) Close() error                        { return nil }
func (blockingPingConn) Begin() (driver.Tx, error)           { return blockingPingTx{}, nil }

func (blockingPingConn) Ping(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

type blockingPingTx struct{}

func (blockingPingTx) Commit() error   { return nil }
func (blockingPingTx) Rollback() error { return nil }

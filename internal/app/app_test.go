package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/simp-lee/attendance/internal/config"
	"github.com/simp-lee/attendance/internal/domain"
	"github.com/simp-lee/attendance/internal/pkg"
	"github.com/simp-lee/attendance/internal/security"
	"github.com/simp-lee/logger"
	"gorm.io/gorm"
)

const testSecret = "Test-Secret-Key-1234567890-abcdef!"

type fakeHTTPServer struct {
	listenErr      error
	listenStarted  chan struct{}
	shutdownCalled bool
	stopCh         chan struct{}
	mu             sync.Mutex
}

func (f *fakeHTTPServer) ListenAndServe() error {
	if f.listenStarted != nil {
		close(f.listenStarted)
	}
	if f.listenErr != nil {
		return f.listenErr
	}
	if f.stopCh != nil {
		<-f.stopCh
	}
	return http.ErrServerClosed
}

func (f *fakeHTTPServer) Shutdown(context.Context) error {
	f.mu.Lock()
	f.shutdownCalled = true
	f.mu.Unlock()
	if f.stopCh != nil {
		close(f.stopCh)
	}
	return nil
}

func (f *fakeHTTPServer) wasShutdownCalled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shutdownCalled
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
			Mode: gin.TestMode,
		},
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "app.db")},
		},
		Log: config.LogConfig{
			Level:  "error",
			Format: "text",
		},
		Auth: config.AuthConfig{
			JWTSecret: testSecret,
		},
	}
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v, want nil", err)
	}
	t.Cleanup(func() { cleanupTestApp(t, a) })
	return a
}

func cleanupTestApp(t *testing.T, a *App) {
	t.Helper()
	if a == nil {
		return
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if a.logger != nil {
		_ = a.logger.Close()
	}
}

func tokenHeader(t *testing.T, role string) string {
	t.Helper()
	tok, _, err := security.Issue(map[string]any{"role": role}, testSecret, time.Hour, security.AccessToken)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	return "Bearer " + tok
}

func serve(a *App, method, path, body, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func TestResolveCORSConfig(t *testing.T) {
	def := []string{"GET", "POST", "PATCH", "OPTIONS"}

	tests := []struct {
		name            string
		mode            string
		cfg             config.CORSConfig
		wantOrigins     []string
		wantMethods     []string
		wantCredentials bool
		wantMaxAge      string
	}{
		{
			name:        "debug mode uses permissive default when not configured",
			mode:        gin.DebugMode,
			wantOrigins: []string{"*"},
			wantMethods: def,
			wantMaxAge:  "86400",
		},
		{
			name:        "release mode denies cross-origin when not configured",
			mode:        gin.ReleaseMode,
			wantOrigins: []string{},
			wantMethods: def,
			wantMaxAge:  "86400",
		},
		{
			name: "configured values override defaults",
			mode: gin.ReleaseMode,
			cfg: config.CORSConfig{
				AllowOrigins:     []string{"https://example.com"},
				AllowMethods:     []string{"GET"},
				AllowCredentials: true,
				MaxAge:           "1h",
			},
			wantOrigins:     []string{"https://example.com"},
			wantMethods:     []string{"GET"},
			wantCredentials: true,
			wantMaxAge:      "3600",
		},
		{
			name:        "invalid max age keeps default",
			mode:        gin.DebugMode,
			cfg:         config.CORSConfig{MaxAge: "soon"},
			wantOrigins: []string{"*"},
			wantMethods: def,
			wantMaxAge:  "86400",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveCORSConfig(tt.mode, tt.cfg)
			if !reflect.DeepEqual(got.AllowOrigins, tt.wantOrigins) {
				t.Errorf("AllowOrigins = %#v, want %#v", got.AllowOrigins, tt.wantOrigins)
			}
			if !reflect.DeepEqual(got.AllowMethods, tt.wantMethods) {
				t.Errorf("AllowMethods = %#v, want %#v", got.AllowMethods, tt.wantMethods)
			}
			if got.AllowCredentials != tt.wantCredentials {
				t.Errorf("AllowCredentials = %v, want %v", got.AllowCredentials, tt.wantCredentials)
			}
			if got.MaxAge != tt.wantMaxAge {
				t.Errorf("MaxAge = %q, want %q", got.MaxAge, tt.wantMaxAge)
			}
		})
	}
}

func TestValidateGinMode(t *testing.T) {
	for _, mode := range []string{gin.DebugMode, gin.ReleaseMode, gin.TestMode} {
		if err := validateGinMode(mode); err != nil {
			t.Errorf("validateGinMode(%q) error = %v, want nil", mode, err)
		}
	}
	if err := validateGinMode("production"); err == nil {
		t.Error("validateGinMode(\"production\") error = nil, want error")
	}
}

func TestNew_NilConfig(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("New(nil) error = nil, want error")
	}
}

func TestNew_ReturnsError_WhenDatabaseSetupFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "unsupported"

	app, err := New(cfg)
	if err == nil {
		t.Fatalf("New() error = nil, want error")
	}
	if app != nil {
		t.Fatalf("New() app = %#v, want nil", app)
	}
	if !strings.Contains(err.Error(), "setup database") {
		t.Fatalf("New() error = %q, want contains %q", err.Error(), "setup database")
	}
}

func TestNew_MigratesSchemaOutsideRelease(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	for _, m := range domain.Models() {
		if !a.db.Migrator().HasTable(m) {
			t.Errorf("table for %T was not migrated", m)
		}
	}
}

func TestNew_AreasAreGated(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	tests := []struct {
		name   string
		method string
		path   string
		auth   string
		want   int
	}{
		{"admin area without token", http.MethodGet, "/api/v1/admin/auth/rooms", "", http.StatusUnauthorized},
		{"admin area as student", http.MethodGet, "/api/v1/admin/auth/rooms", tokenHeader(t, domain.RoleStudent), http.StatusForbidden},
		{"admin area as admin", http.MethodGet, "/api/v1/admin/auth/rooms", tokenHeader(t, domain.RoleAdmin), http.StatusOK},
		{"lecturer area as lecturer", http.MethodGet, "/api/v1/lecturer/auth/sessions", tokenHeader(t, domain.RoleLecturer), http.StatusOK},
		{"lecturer area as admin", http.MethodGet, "/api/v1/lecturer/auth/sessions", tokenHeader(t, domain.RoleAdmin), http.StatusForbidden},
		{"lecturer cannot manage admins", http.MethodGet, "/api/v1/lecturer/auth/admins", tokenHeader(t, domain.RoleLecturer), http.StatusNotFound},
		{"lecturer rooms are read-only", http.MethodPost, "/api/v1/lecturer/auth/rooms", tokenHeader(t, domain.RoleLecturer), http.StatusNotFound},
		{"user area is public", http.MethodGet, "/api/v1/user/rooms", "", http.StatusOK},
		{"user area is read-only", http.MethodPost, "/api/v1/user/rooms", "", http.StatusNotFound},
		{"user area hides settings", http.MethodGet, "/api/v1/user/settings", "", http.StatusNotFound},
		{"settings refresh requires admin", http.MethodPost, "/api/v1/admin/auth/settings/refresh", "", http.StatusUnauthorized},
		{"settings refresh as admin", http.MethodPost, "/api/v1/admin/auth/settings/refresh", tokenHeader(t, domain.RoleAdmin), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(a, tt.method, tt.path, `{"room":"A1"}`, tt.auth)
			if w.Code != tt.want {
				t.Errorf("%s %s status = %d, want %d; body=%s", tt.method, tt.path, w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestNew_AdminLoginFlow(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	w := serve(a, http.MethodPost, "/api/v1/admin/auth/admins",
		`{"email":"root@example.com","password":"s3cret-pass","role":"superadmin"}`,
		tokenHeader(t, domain.RoleSuperAdmin))
	if w.Code != http.StatusCreated {
		t.Fatalf("create admin status = %d, want %d; body=%s", w.Code, http.StatusCreated, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "password") {
		t.Fatalf("create admin response leaks password: %s", w.Body.String())
	}

	w = serve(a, http.MethodPost, "/api/v1/admin/login", `{"email":"root@example.com","password":"wrong-pass"}`, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	w = serve(a, http.MethodPost, "/api/v1/admin/login", `{"email":"root@example.com","password":"s3cret-pass"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, want %d; body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	var resp struct {
		Data struct {
			Token        string `json:"token"`
			Role         string `json:"role"`
			RefreshToken string `json:"refresh_token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if resp.Data.Token == "" || resp.Data.RefreshToken == "" {
		t.Fatalf("login tokens missing: %s", w.Body.String())
	}
	if resp.Data.Role != domain.RoleSuperAdmin {
		t.Errorf("role = %q, want %q", resp.Data.Role, domain.RoleSuperAdmin)
	}

	w = serve(a, http.MethodGet, "/api/v1/admin/auth/admins", "", "Bearer "+resp.Data.Token)
	if w.Code != http.StatusOK {
		t.Errorf("list admins with issued token status = %d, want %d", w.Code, http.StatusOK)
	}

	w = serve(a, http.MethodPost, "/api/v1/admin/auth/refresh", "", "Bearer "+resp.Data.RefreshToken)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("admin refresh with refresh token status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	w = serve(a, http.MethodPost, "/api/v1/admin/auth/refresh", "", "Bearer "+resp.Data.Token)
	if w.Code != http.StatusOK {
		t.Errorf("admin refresh status = %d, want %d; body=%s", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestNew_SettingsOverrideTokenTTL(t *testing.T) {
	a := newTestApp(t, testConfig(t))
	admin := tokenHeader(t, domain.RoleAdmin)

	if w := serve(a, http.MethodPost, "/api/v1/admin/auth/admins",
		`{"email":"ops@example.com","password":"s3cret-pass","role":"admin"}`, admin); w.Code != http.StatusCreated {
		t.Fatalf("create admin status = %d; body=%s", w.Code, w.Body.String())
	}
	if w := serve(a, http.MethodPost, "/api/v1/admin/auth/settings",
		`{"key":"jwt_ttl","value":"120"}`, admin); w.Code != http.StatusCreated {
		t.Fatalf("create setting status = %d; body=%s", w.Code, w.Body.String())
	}

	before := time.Now().Unix()
	w := serve(a, http.MethodPost, "/api/v1/admin/login", `{"email":"ops@example.com","password":"s3cret-pass"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d; body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Data struct {
			Expires int64 `json:"expires"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if ttl := resp.Data.Expires - before; ttl < 110 || ttl > 130 {
		t.Errorf("access token ttl = %ds, want about 120s", ttl)
	}
}

func TestNew_RateLimit_ReturnsPkgResponse(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.RateLimit = config.RateLimitConfig{Enabled: true, RPS: 1, Burst: 1}
	a := newTestApp(t, cfg)

	if w := serve(a, http.MethodGet, "/health", "", ""); w.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want %d", w.Code, http.StatusOK)
	}

	w := serve(a, http.MethodGet, "/health", "", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	var resp pkg.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json decode error: %v", err)
	}
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("resp.Code = %d, want %d", resp.Code, http.StatusTooManyRequests)
	}
	if resp.Message != "too many requests" {
		t.Fatalf("resp.Message = %q, want %q", resp.Message, "too many requests")
	}
}

func TestNew_Metrics(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Metrics = config.MetricsConfig{Enabled: true, Path: "/internal/metrics"}
	a := newTestApp(t, cfg)

	serve(a, http.MethodGet, "/health", "", "")

	w := serve(a, http.MethodGet, "/internal/metrics", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "attendance_http_requests_total") {
		t.Error("metrics output missing attendance_http_requests_total")
	}

	off := newTestApp(t, testConfig(t))
	if w := serve(off, http.MethodGet, "/metrics", "", ""); w.Code != http.StatusNotFound {
		t.Errorf("metrics disabled status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestNew_MissingSecret_TokenEndpointsFail(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.JWTSecret = ""
	a := newTestApp(t, cfg)

	w := serve(a, http.MethodPost, "/api/v1/admin/login", `{"email":"root@example.com","password":"s3cret-pass"}`, "")
	if w.Code == http.StatusOK {
		t.Fatalf("login without secret status = %d, want failure", w.Code)
	}
	if w := serve(a, http.MethodGet, "/api/v1/user/rooms", "", ""); w.Code != http.StatusOK {
		t.Errorf("public area status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRun_ReturnsError_WhenListenFails(t *testing.T) {
	originalNewHTTPServer := newHTTPServer
	originalNotifyContext := notifyContext
	defer func() {
		newHTTPServer = originalNewHTTPServer
		notifyContext = originalNotifyContext
	}()

	listenErr := errors.New("listen failed")
	server := &fakeHTTPServer{listenErr: listenErr}
	newHTTPServer = func(string, http.Handler, time.Duration) httpServer {
		return server
	}
	notifyContext = func(context.Context, ...os.Signal) (context.Context, context.CancelFunc) {
		return context.WithCancel(context.Background())
	}

	a := &App{
		engine: gin.New(),
		logger: logger.Default(),
		cfg:    &config.Config{Server: config.ServerConfig{Host: "127.0.0.1", Port: 8080}},
	}

	err := a.Run()
	if err == nil {
		t.Fatalf("Run() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "server error") {
		t.Fatalf("Run() error = %q, want contains %q", err.Error(), "server error")
	}
	if !errors.Is(err, listenErr) {
		t.Fatalf("Run() error = %v, want wraps %v", err, listenErr)
	}
}

func TestRun_PassesConfiguredTimeout(t *testing.T) {
	originalNewHTTPServer := newHTTPServer
	originalNotifyContext := notifyContext
	defer func() {
		newHTTPServer = originalNewHTTPServer
		notifyContext = originalNotifyContext
	}()

	var gotAddr string
	var gotTimeout time.Duration
	newHTTPServer = func(addr string, _ http.Handler, timeout time.Duration) httpServer {
		gotAddr, gotTimeout = addr, timeout
		return &fakeHTTPServer{listenErr: errors.New("stop")}
	}
	notifyContext = func(context.Context, ...os.Signal) (context.Context, context.CancelFunc) {
		return context.WithCancel(context.Background())
	}

	a := &App{
		engine: gin.New(),
		logger: logger.Default(),
		cfg: &config.Config{Server: config.ServerConfig{
			Host:    "127.0.0.1",
			Port:    9090,
			Timeout: "15s",
		}},
	}
	_ = a.Run()

	if gotAddr != "127.0.0.1:9090" {
		t.Errorf("addr = %q, want %q", gotAddr, "127.0.0.1:9090")
	}
	if gotTimeout != 15*time.Second {
		t.Errorf("timeout = %v, want 15s", gotTimeout)
	}
}

func TestRun_ShutdownSignal_ClosesDatabase(t *testing.T) {
	originalNewHTTPServer := newHTTPServer
	originalNotifyContext := notifyContext
	defer func() {
		newHTTPServer = originalNewHTTPServer
		notifyContext = originalNotifyContext
	}()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("gorm.Open() error = %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB() error = %v", err)
	}

	server := &fakeHTTPServer{listenStarted: make(chan struct{}), stopCh: make(chan struct{})}
	newHTTPServer = func(string, http.Handler, time.Duration) httpServer {
		return server
	}

	ctx, cancel := context.WithCancel(context.Background())
	notifyContext = func(context.Context, ...os.Signal) (context.Context, context.CancelFunc) {
		return ctx, cancel
	}

	a := &App{
		engine: gin.New(),
		db:     db,
		logger: logger.Default(),
		cfg:    &config.Config{Server: config.ServerConfig{Host: "127.0.0.1", Port: 8080}},
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run()
	}()

	select {
	case <-server.listenStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not start listening in time")
	}

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return in time after shutdown signal")
	}

	if !server.wasShutdownCalled() {
		t.Fatal("expected server Shutdown() to be called")
	}
	if pingErr := sqlDB.Ping(); pingErr == nil {
		t.Fatal("expected database connection to be closed, but Ping() succeeded")
	}
}

func TestRun_NilApp(t *testing.T) {
	var a *App
	if err := a.Run(); err == nil {
		t.Fatal("Run() on nil app error = nil, want error")
	}
	if err := (&App{}).Run(); err == nil {
		t.Fatal("Run() without config error = nil, want error")
	}
}

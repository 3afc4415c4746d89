package setting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/simp-lee/attendance/internal/domain"
	"github.com/simp-lee/attendance/internal/module/entity"
	"github.com/simp-lee/attendance/internal/pkg"
	"github.com/simp-lee/attendance/internal/settings"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(domain.Models()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// newWiredCatalog wires the settings service to a cache the way the
// application does.
func newWiredCatalog(t *testing.T) (*gorm.DB, *entity.Catalog, *settings.Cache) {
	t.Helper()
	db := setupTestDB(t)

	cache := settings.New(NewStore(db), nil)
	c, err := entity.NewCatalog(db, entity.CatalogOptions{
		SettingHooks:   []entity.ChangeFunc[domain.Setting]{InvalidateOnChange(cache)},
		SettingPrepare: []entity.PrepareFunc{ImmutableKey},
	})
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	return db, c, cache
}

func TestStore_LookupAndAll(t *testing.T) {
	db, c, _ := newWiredCatalog(t)
	ctx := context.Background()
	store := NewStore(db)

	for _, p := range []domain.Payload{
		{"key": "jwt_ttl", "value": "60"},
		{"key": "empty"},
	} {
		if _, err := c.Settings.Create(ctx, p); err != nil {
			t.Fatalf("Create(%v): %v", p, err)
		}
	}

	tests := []struct {
		key   string
		value string
		found bool
	}{
		{"jwt_ttl", "60", true},
		{"empty", "", false},
		{"missing", "", false},
	}
	for _, tt := range tests {
		v, ok, err := store.Lookup(ctx, tt.key)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", tt.key, err)
		}
		if v != tt.value || ok != tt.found {
			t.Errorf("Lookup(%q) = %q, %v; want %q, %v", tt.key, v, ok, tt.value, tt.found)
		}
	}

	all, err := store.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 1 || all["jwt_ttl"] != "60" {
		t.Errorf("All() = %v, want only jwt_ttl", all)
	}
}

func TestSettingWrites_InvalidateCache(t *testing.T) {
	_, c, cache := newWiredCatalog(t)
	ctx := context.Background()

	s, err := c.Settings.Create(ctx, domain.Payload{"key": settings.KeyAccessTTL, "value": "60"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := cache.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cache.Int(ctx, settings.KeyAccessTTL, 0); got != 60 {
		t.Fatalf("cached value = %d, want 60", got)
	}

	if _, err := c.Settings.Update(ctx, domain.Caller{Privileged: true}, s.GlobalID, domain.Payload{"value": "90"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := cache.Int(ctx, settings.KeyAccessTTL, 0); got != 90 {
		t.Errorf("value after update = %d, want 90", got)
	}

	if _, err := c.Settings.Update(ctx, domain.Caller{Privileged: true}, s.GlobalID, domain.Payload{"key": "renamed"}); !domain.IsValidation(err) {
		t.Errorf("rename error = %v, want validation", err)
	}

	if _, err := c.Settings.Delete(ctx, domain.Caller{Privileged: true}, s.GlobalID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := cache.Get(ctx, settings.KeyAccessTTL); ok {
		t.Error("deleted setting still cached")
	}
}

type fakeReloader struct {
	calls int
	err   error
}

func (f *fakeReloader) Reload(context.Context) error {
	f.calls++
	return f.err
}

func TestHandler_Refresh(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"reloaded", nil, http.StatusOK},
		{"store failure", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reloader := &fakeReloader{err: tt.err}
			gated := false
			gate := func(c *gin.Context) { gated = true; c.Next() }

			r := gin.New()
			NewModule(NewHandler(reloader, nil), "/admin/auth", gate).RegisterRoutes(r.Group("/api/v1"))

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/admin/auth/settings/refresh", nil))
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			if reloader.calls != 1 || !gated {
				t.Errorf("calls = %d gated = %v", reloader.calls, gated)
			}
			var resp pkg.Response
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if resp.Code != tt.want {
				t.Errorf("envelope code = %d", resp.Code)
			}
		})
	}
}

func TestNewModule_PanicsOnNilHandler(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	NewModule(nil, "/admin/auth", nil)
}

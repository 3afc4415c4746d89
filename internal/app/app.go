package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/attendance/internal/config"
	"github.com/simp-lee/attendance/internal/domain"
	"github.com/simp-lee/attendance/internal/middleware"
	"github.com/simp-lee/attendance/internal/module/auth"
	"github.com/simp-lee/attendance/internal/module/entity"
	"github.com/simp-lee/attendance/internal/module/setting"
	"github.com/simp-lee/attendance/internal/security"
	"github.com/simp-lee/attendance/internal/settings"
	"github.com/simp-lee/logger"
	"gorm.io/gorm"
)

// App holds the core application dependencies and the HTTP server.
type App struct {
	engine   *gin.Engine
	db       *gorm.DB
	logger   *logger.Logger
	cfg      *config.Config
	settings *settings.Cache
}

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

var newHTTPServer = func(addr string, handler http.Handler, timeout time.Duration) httpServer {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       timeout,
		WriteTimeout:      2 * timeout,
		IdleTimeout:       120 * time.Second,
	}
}

var notifyContext = func(parent context.Context, signals ...os.Signal) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, signals...)
}

// New creates and wires a fully configured App from the given Config.
//
// It sets up logging, the database, the settings cache, token signing,
// the entity catalog and its areas, middleware, and routes.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if err := validateGinMode(cfg.Server.Mode); err != nil {
		return nil, err
	}

	success := false

	// 1. Setup logger.
	log, err := config.SetupLogger(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}

	if cfg.Server.Mode == gin.DebugMode && cfg.Server.Host == "0.0.0.0" {
		log.Warn("insecure server config: debug mode on 0.0.0.0 may expose debug behavior and permissive CORS")
	}
	defer func() {
		if success {
			return
		}
		if err := log.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
	}()

	// 2. Setup database.
	db, err := config.SetupDatabase(&cfg.Database, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("setup database: %w", err)
	}
	defer func() {
		if success {
			return
		}
		sqlDB, err := db.DB()
		if err != nil {
			return
		}
		if err := sqlDB.Close(); err != nil {
			slog.Error("database close error", slog.Any("error", err))
		}
	}()

	// 3. AutoMigrate outside release mode. Release schemas are managed externally.
	if cfg.Server.Mode != gin.ReleaseMode {
		if err := db.AutoMigrate(domain.Models()...); err != nil {
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
		log.Info("auto migration completed")
	}

	// 4. Settings cache and the entity catalog that invalidates it.
	cache := settings.New(setting.NewStore(db), log.Logger)
	catalog, err := entity.NewCatalog(db, entity.CatalogOptions{
		SettingHooks:   []entity.ChangeFunc[domain.Setting]{setting.InvalidateOnChange(cache)},
		SettingPrepare: []entity.PrepareFunc{setting.ImmutableKey},
	})
	if err != nil {
		return nil, fmt.Errorf("build catalog: %w", err)
	}
	if err := cache.Load(context.Background()); err != nil {
		log.Warn("settings not preloaded, values load on first use", slog.Any("error", err))
	}

	// 5. Token signing and verification.
	codec := security.NewCodec(cfg.Auth.JWTSecret)
	if !codec.Configured() {
		log.Warn("auth.jwt_secret is empty, token endpoints will fail until it is set")
	}
	privileged := cfg.Auth.PrivilegedRoles
	if len(privileged) == 0 {
		privileged = domain.PrivilegedRoles
	}
	insp := security.NewInspector(codec, privileged...)

	// 6. Modules.
	modules, err := buildModules(catalog, cache, codec, insp, privileged, cfg.Auth, log.Logger)
	if err != nil {
		return nil, err
	}

	// 7. Create Gin engine with custom middleware (not gin.Default()).
	gin.SetMode(cfg.Server.Mode)
	engine := gin.New()

	handlers := []gin.HandlerFunc{
		middleware.Recovery(log.Logger),
		middleware.RequestIDWithConfig(middleware.RequestIDConfig{
			TrustUpstream: false,
		}),
		middleware.Logger(log.Logger),
		middleware.CORSWithConfig(resolveCORSConfig(cfg.Server.Mode, cfg.Server.CORS)),
	}
	if rl := cfg.Server.RateLimit; rl.Enabled {
		handlers = append(handlers, middleware.RateLimit(middleware.RateLimitConfig{
			RPS:     rl.RPS,
			Burst:   rl.Burst,
			IdleTTL: rl.IdleTTLDuration(),
		}))
	}
	var metrics *middleware.Metrics
	if cfg.Server.Metrics.Enabled {
		metrics = middleware.NewMetrics()
		handlers = append(handlers, metrics.Middleware())
	}
	handlers = append(handlers, middleware.Caller(insp))
	engine.Use(handlers...)

	// 8. Register all routes.
	deps := &RouteDeps{
		Modules: modules,
		DB:      db,
	}
	if metrics != nil {
		deps.Metrics = metrics.Handler()
		deps.MetricsPath = cfg.Server.Metrics.Path
	}
	if err := RegisterRoutes(engine, deps); err != nil {
		return nil, fmt.Errorf("register routes: %w", err)
	}

	success = true
	return &App{
		engine:   engine,
		db:       db,
		logger:   log,
		cfg:      cfg,
		settings: cache,
	}, nil
}

// buildModules assembles the auth and settings endpoints and the three
// entity areas.
func buildModules(
	catalog *entity.Catalog,
	cache *settings.Cache,
	codec *security.Codec,
	insp *security.Inspector,
	privileged []string,
	authCfg config.AuthConfig,
	log *slog.Logger,
) ([]Module, error) {
	adminGate := middleware.RequireRole(insp, privileged...)
	lecturerGate := middleware.RequireRole(insp, domain.LecturerRoles...)

	authSvc := auth.NewService(codec, auth.Accounts{
		Admins:      catalog.AdminRepo,
		Instructors: catalog.InstructorRepo,
		Students:    catalog.StudentRepo,
	}, cache, auth.TTL{
		Access:  authCfg.AccessTTLDuration(),
		Refresh: authCfg.RefreshTTLDuration(),
	})

	modules := []Module{
		auth.NewModule(auth.NewHandler(authSvc), adminGate),
		setting.NewModule(setting.NewHandler(cache, log), adminAreaPrefix, adminGate),
	}
	for _, spec := range areaSpecs(catalog, adminGate, lecturerGate) {
		area, err := entity.NewArea(catalog, spec)
		if err != nil {
			return nil, fmt.Errorf("build area: %w", err)
		}
		modules = append(modules, area)
	}
	return modules, nil
}

func resolveCORSConfig(mode string, cfg config.CORSConfig) middleware.CORSConfig {
	corsConfig := middleware.DefaultCORSConfig()

	if len(cfg.AllowMethods) > 0 {
		corsConfig.AllowMethods = cfg.AllowMethods
	}
	if len(cfg.AllowHeaders) > 0 {
		corsConfig.AllowHeaders = cfg.AllowHeaders
	}
	if maxAge := middleware.MaxAgeSeconds(cfg.MaxAge); maxAge != "" {
		corsConfig.MaxAge = maxAge
	}
	corsConfig.AllowCredentials = cfg.AllowCredentials

	if len(cfg.AllowOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowOrigins
		return corsConfig
	}

	// In release mode, an empty allowlist denies cross-origin requests.
	if mode == gin.ReleaseMode {
		corsConfig.AllowOrigins = []string{}
	}

	return corsConfig
}

func validateGinMode(mode string) error {
	switch mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		return nil
	default:
		return fmt.Errorf("invalid server.mode %q: must be one of %q, %q, %q", mode, gin.DebugMode, gin.ReleaseMode, gin.TestMode)
	}
}

// Run starts the HTTP server and blocks until a shutdown signal is received.
// It performs graceful shutdown with a 5-second timeout and closes the
// database connection.
func (a *App) Run() error {
	if a == nil {
		return errors.New("app is nil")
	}
	if a.cfg == nil {
		return errors.New("app config is nil")
	}
	if a.engine == nil {
		return errors.New("app engine is nil")
	}

	addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
	srv := newHTTPServer(addr, a.engine, a.cfg.Server.TimeoutDuration())

	// Listen for SIGINT / SIGTERM.
	ctx, stop := notifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		a.log().Info("server started", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error

	select {
	case <-ctx.Done():
		a.log().Info("shutdown signal received")
	case err := <-errCh:
		runErr = fmt.Errorf("server error: %w", err)
	}

	if runErr == nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log().Error("server shutdown error", slog.Any("error", err))
		}
	}

	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.log().Error("database close error", slog.Any("error", err))
			} else {
				a.log().Info("database connection closed")
			}
		}
	}

	a.log().Info("server stopped")
	if a.logger != nil {
		if err := a.logger.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
	}

	return runErr
}

// Engine returns the configured gin engine, mainly for tests.
func (a *App) Engine() *gin.Engine {
	return a.engine
}

func (a *App) log() *slog.Logger {
	if a.logger != nil && a.logger.Logger != nil {
		return a.logger.Logger
	}
	return slog.Default()
}

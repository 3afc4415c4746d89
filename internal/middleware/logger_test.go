package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/attendance/internal/security"
	"github.com/simp-lee/logger"
)

func accessLogRouter(log *slog.Logger, requestID gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(requestID, Logger(log))
	r.GET("/status/:code", func(c *gin.Context) {
		switch c.Param("code") {
		case "404":
			c.String(http.StatusNotFound, "not found")
		case "422":
			_ = c.Error(http.ErrNotSupported)
			c.String(http.StatusUnprocessableEntity, "invalid")
		case "500":
			c.String(http.StatusInternalServerError, "error")
		default:
			c.String(http.StatusOK, "ok")
		}
	})
	r.POST("/attendance", func(c *gin.Context) {
		c.String(http.StatusCreated, "created")
	})
	return r
}

func TestLogger_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		path  string
		level string
	}{
		{"/status/200", "level=INFO"},
		{"/status/404", "level=WARN"},
		{"/status/422", "level=WARN"},
		{"/status/500", "level=ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			var logBuf bytes.Buffer
			r := accessLogRouter(newTestLogger(&logBuf), RequestID())

			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			out := logBuf.String()
			if !strings.Contains(out, tt.level) || !strings.Contains(out, "msg=request") {
				t.Errorf("want %s request line, got:\n%s", tt.level, out)
			}
		})
	}
}

func TestLogger_Fields(t *testing.T) {
	var logBuf bytes.Buffer
	r := accessLogRouter(newTestLogger(&logBuf), RequestID())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/attendance", nil))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}

	out := logBuf.String()
	for _, field := range []string{"method=POST", "path=/attendance", "status=201", "latency=", "client_ip=", "route=/attendance"} {
		if !strings.Contains(out, field) {
			t.Errorf("log missing %q:\n%s", field, out)
		}
	}
	if strings.Contains(out, "role=") || strings.Contains(out, "errors=") {
		t.Errorf("anonymous clean request logged role or errors:\n%s", out)
	}
}

func TestLogger_RecordsHandlerErrors(t *testing.T) {
	var logBuf bytes.Buffer
	r := accessLogRouter(newTestLogger(&logBuf), RequestID())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/status/422", nil))

	if !strings.Contains(logBuf.String(), "errors=") {
		t.Errorf("handler error not logged:\n%s", logBuf.String())
	}
}

func TestLogger_CarriesRequestID(t *testing.T) {
	const upstream = "6f1c2a9e-7b3d-4c55-9a1e-0d2b3c4d5e6f"

	var logBuf bytes.Buffer
	log, err := logger.New(
		logger.WithConsoleWriter(&logBuf),
		logger.WithConsoleFormat(logger.FormatText),
		logger.WithConsoleColor(false),
		logger.WithLevel(slog.LevelDebug),
		logger.WithMiddleware(logger.ContextMiddleware()),
	)
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	defer log.Close()

	r := accessLogRouter(log.Logger, RequestIDWithConfig(RequestIDConfig{TrustUpstream: true}))
	req := httptest.NewRequest(http.MethodGet, "/status/200", nil)
	req.Header.Set(requestIDHeader, upstream)
	r.ServeHTTP(httptest.NewRecorder(), req)

	if !strings.Contains(logBuf.String(), upstream) {
		t.Errorf("log missing request_id %s:\n%s", upstream, logBuf.String())
	}
}

func TestLogger_IncludesRouteAndRole(t *testing.T) {
	var logBuf bytes.Buffer
	insp := security.NewInspector(security.NewCodec(testSecret))

	r := gin.New()
	r.Use(RequestID(), Logger(newTestLogger(&logBuf)))
	r.GET("/rooms/:global_id", RequireRole(insp), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/rooms/r-1", nil)
	req.Header.Set("Authorization", testBearer(t, "lecturer", security.AccessToken))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	for _, field := range []string{"route=/rooms/:global_id", "role=lecturer"} {
		if !strings.Contains(logBuf.String(), field) {
			t.Errorf("log missing %q:\n%s", field, logBuf.String())
		}
	}
}

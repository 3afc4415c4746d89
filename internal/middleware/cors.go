package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// CORSConfig holds the configuration for the CORS middleware.
type CORSConfig struct {
	// AllowOrigins lists origins allowed to make cross-origin requests.
	// ["*"] allows any origin; an empty list allows none.
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	// MaxAge is the preflight cache lifetime in seconds, as sent on the wire.
	MaxAge string
}

// MaxAgeSeconds converts a Go duration such as "12h" into the seconds string
// used by the Access-Control-Max-Age header. Empty or invalid input yields "".
func MaxAgeSeconds(d string) string {
	dur, err := time.ParseDuration(strings.TrimSpace(d))
	if err != nil || dur <= 0 {
		return ""
	}
	return strconv.FormatInt(int64(dur/time.Second), 10)
}

// DefaultCORSConfig allows any origin with the methods the API serves.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", requestIDHeader},
		ExposeHeaders: []string{requestIDHeader, "Retry-After"},
		MaxAge:        "86400",
	}
}

// CORSWithConfig returns a gin middleware that handles Cross-Origin Resource
// Sharing. Requests from origins outside the allow list get no CORS headers.
// Preflight requests from allowed origins are answered with 204.
func CORSWithConfig(cfg CORSConfig) gin.HandlerFunc {
	anyOrigin := false
	origins := make(map[string]struct{}, len(cfg.AllowOrigins))
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			anyOrigin = true
		}
		origins[o] = struct{}{}
	}

	static := map[string]string{
		"Access-Control-Allow-Methods":  strings.Join(cfg.AllowMethods, ", "),
		"Access-Control-Allow-Headers":  strings.Join(cfg.AllowHeaders, ", "),
		"Access-Control-Expose-Headers": strings.Join(cfg.ExposeHeaders, ", "),
		"Access-Control-Max-Age":        cfg.MaxAge,
	}
	if cfg.AllowCredentials {
		static["Access-Control-Allow-Credentials"] = "true"
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}
		c.Writer.Header().Add("Vary", "Origin")

		_, listed := origins[origin]
		switch {
		case anyOrigin && !cfg.AllowCredentials:
			c.Header("Access-Control-Allow-Origin", "*")
		case anyOrigin || listed:
			// Credentialed responses must name the origin.
			c.Header("Access-Control-Allow-Origin", origin)
		default:
			c.Next()
			return
		}

		for k, v := range static {
			if v != "" {
				c.Header(k, v)
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

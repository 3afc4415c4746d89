package auth

import "github.com/gin-gonic/gin"

// AuthModule implements the app.Module interface for the auth domain.
type AuthModule struct {
	handler   *AuthHandler
	adminGate gin.HandlerFunc
}

// NewModule creates a new AuthModule. adminGate guards the admin refresh
// endpoint and is normally middleware.RequireRole for the privileged roles.
// Panics if h or adminGate is nil.
func NewModule(h *AuthHandler, adminGate gin.HandlerFunc) *AuthModule {
	if h == nil {
		panic("auth.NewModule: handler must not be nil")
	}
	if adminGate == nil {
		panic("auth.NewModule: admin gate must not be nil")
	}
	return &AuthModule{handler: h, adminGate: adminGate}
}

// RegisterRoutes registers auth API routes.
func (m *AuthModule) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/admin/login", m.handler.AdminLogin)
	api.POST("/admin/auth/refresh", m.adminGate, m.handler.AdminRefresh)

	api.POST("/user/login", m.handler.UserLogin)
	api.POST("/user/refresh", m.handler.UserRefresh)
}

package auth

import (
	"github.com/gin-gonic/gin"
	"github.com/simp-lee/attendance/internal/domain"
	"github.com/simp-lee/attendance/internal/middleware"
	"github.com/simp-lee/attendance/internal/pkg"
)

// AuthHandler handles REST API requests for authentication.
type AuthHandler struct {
	svc Service
}

// NewHandler creates a new AuthHandler with the given service.
func NewHandler(svc Service) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// AdminLogin handles POST /api/v1/admin/login.
func (h *AuthHandler) AdminLogin(c *gin.Context) {
	var req LoginRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}

	resp, err := h.svc.AdminLogin(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.Success(c, resp)
}

// AdminRefresh handles POST /api/v1/admin/auth/refresh. It must run behind
// middleware.RequireRole so that verified claims are available.
func (h *AuthHandler) AdminRefresh(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		pkg.Error(c, domain.NewAppError(domain.CodeUnauthorized, "authentication required", nil))
		return
	}

	resp, err := h.svc.AdminRefresh(c.Request.Context(), claims)
	if err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.Success(c, resp)
}

// UserLogin handles POST /api/v1/user/login.
func (h *AuthHandler) UserLogin(c *gin.Context) {
	var req LoginRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}

	resp, err := h.svc.UserLogin(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.Success(c, resp)
}

// UserRefresh handles POST /api/v1/user/refresh.
func (h *AuthHandler) UserRefresh(c *gin.Context) {
	var req RefreshRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}

	resp, err := h.svc.UserRefresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.Success(c, resp)
}

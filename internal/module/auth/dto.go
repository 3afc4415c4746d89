package auth

// LoginRequest is the body of the admin and user login endpoints.
type LoginRequest struct {
	Email    string `json:"email" form:"email" binding:"required,email"`
	Password string `json:"password" form:"password" binding:"required,min=8,max=32"`
}

// RefreshRequest carries a refresh token to exchange for a new token pair.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" form:"refresh_token" binding:"required"`
}

// TokenResponse is returned by login and refresh. Expiry times are unix seconds.
type TokenResponse struct {
	Token          string `json:"token"`
	Expires        int64  `json:"expires"`
	Role           string `json:"role,omitempty"`
	RefreshToken   string `json:"refresh_token"`
	RefreshExpires int64  `json:"refresh_expires"`
}

package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SignInRequest holds credentials for authenticating a user.
type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SignUpRequest registers a new account.
type SignUpRequest struct {
	Email    string   `json:"email" validate:"required,email"`
	Password string   `json:"password" validate:"required,min=6"`
	FullName string   `json:"full_name" validate:"required"`
	Role     UserRole `json:"role" validate:"required,oneof=SUPERADMIN ADMIN TEACHER STUDENT"`
}

// SignInResponse returns the issued access token and viewer identity.
type SignInResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	IssuedAt    time.Time `json:"issued_at"`
	Viewer      Viewer    `json:"viewer"`
}

// PasswordResetRequest initiates the reset flow.
type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ConfirmPasswordResetRequest completes the reset flow.
type ConfirmPasswordResetRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

// Token purposes carried in JWT claims.
const (
	TokenPurposeAccess = "access"
	TokenPurposeReset  = "password_reset"
)

// JWTClaims represents the JWT payload for access and reset tokens.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	Purpose  string   `json:"purpose"`
	jwt.RegisteredClaims
}

// Viewer projects the claims into a viewer identity.
func (c *JWTClaims) Viewer() *Viewer {
	if c == nil {
		return nil
	}
	return &Viewer{ID: c.UserID, Email: c.Email, FullName: c.FullName, Role: c.Role}
}

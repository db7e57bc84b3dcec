package model

import (
	"time"
)

// InternalPrincipal is the principal assigned to callers authenticated by
// cluster token review. No user may register under this name.
const InternalPrincipal = "internal"

// User represents a registered API user
type User struct {
	ID           int64     `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// RegisterRequest is the registration payload; username defaults to email
type RegisterRequest struct {
	Username string `json:"username" form:"username"`
	Email    string `json:"email" form:"email" binding:"required,email"`
	Password string `json:"password" form:"password" binding:"required"`
}

// LoginRequest is the OAuth2 password form
type LoginRequest struct {
	Username string `form:"username" binding:"required"`
	Password string `form:"password" binding:"required"`
}

// Token is the bearer token response
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// StatusResponse is the generic success body
type StatusResponse struct {
	Status string `json:"status"`
}

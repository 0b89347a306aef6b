package dto

import "time"

// LoginRequest is the login request payload.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterRequest is the registration request payload.
type RegisterRequest struct {
	Username    string `json:"username" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	FullName    string `json:"full_name"`
	Address     string `json:"address"`
	PhoneNumber string `json:"phone_number"`
}

// ChangePasswordRequest changes the password of an authenticated user.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8"`
}

// ForgetPasswordRequest asks for a password reset token by email.
type ForgetPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ResetPasswordRequest redeems a previously issued reset token.
type ResetPasswordRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

// AddRoleRequest assigns a role to an account identified by email.
type AddRoleRequest struct {
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role" binding:"required"`
}

// AuthenticationResult is the transient outcome of an authentication flow.
// It is constructed fresh per call and never persisted.
type AuthenticationResult struct {
	IsAuthenticated    bool       `json:"is_authenticated"`
	Message            string     `json:"message"`
	Token              string     `json:"token,omitempty"`
	Username           string     `json:"username,omitempty"`
	Email              string     `json:"email,omitempty"`
	Roles              []string   `json:"roles,omitempty"`
	RefreshToken       string     `json:"refresh_token,omitempty"`
	RefreshTokenExpiry *time.Time `json:"refresh_token_expiry,omitempty"`
}

package handler

import (
	"time"

	"github.com/projectcamp/auth-service/internal/core/domain"
)

// errorResponse is the standard error envelope returned on all 4xx/5xx responses.
type errorResponse struct {
	Error string `json:"error"`
}

// --- Request / Response types ---

type registerRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Username string `json:"username" validate:"required,min=3,max=30,username"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	FullName string `json:"fullName" validate:"omitempty,max=100"`
}

type loginRequest struct {
	Email    string `json:"email"    validate:"required_without=Username,omitempty,email"`
	Username string `json:"username" validate:"required_without=Email,omitempty,min=3,username"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	NewPassword string `json:"newPassword" validate:"required,min=8,max=72"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8,max=72"`
}

type userResponse struct {
	User    *domain.Principal `json:"user"`
	Message string            `json:"message,omitempty"`
}

type loginResponse struct {
	User             *domain.Principal `json:"user"`
	AccessToken      string            `json:"accessToken,omitempty"`
	RefreshToken     string            `json:"refreshToken,omitempty"`
	AccessExpiresAt  *time.Time        `json:"accessTokenExpiresAt,omitempty"`
	RefreshExpiresAt *time.Time        `json:"refreshTokenExpiresAt,omitempty"`
	SessionID        string            `json:"sessionId,omitempty"`
}

type tokenResponse struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessTokenExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshTokenExpiresAt"`
}

type verifyEmailResponse struct {
	IsEmailVerified bool `json:"isEmailVerified"`
}

type messageResponse struct {
	Message string `json:"message"`
}

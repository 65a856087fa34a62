package ports

import (
	"context"
	"time"

	"github.com/projectcamp/auth-service/internal/core/domain"
)

// SignupInput is the DTO passed from the transport layer to AuthService.Signup.
type SignupInput struct {
	Email    string
	Username string
	Password string
	FullName string
}

// SignupResult carries the created principal and the unhashed verification
// token that was mailed to it.
type SignupResult struct {
	Principal         *domain.Principal
	VerificationToken string
}

// LoginInput identifies the principal by email or username (at least one).
type LoginInput struct {
	Email     string
	Username  string
	Password  string
	UserAgent string
	IPAddress string
}

// LoginResult holds either a token pair or a session identifier, depending
// on the service's AuthMode.
type LoginResult struct {
	Principal *domain.Principal
	TokenPair
	SessionID string
}

// TokenPair is a freshly issued access/refresh pair.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// LogoutInput names what to log out: the principal's refresh record in
// token mode, the session in session mode.
type LogoutInput struct {
	PrincipalID string
	SessionID   string
}

// AuthService is the credential and token lifecycle manager.
type AuthService interface {
	Mode() domain.AuthMode
	Signup(ctx context.Context, in SignupInput) (*SignupResult, error)
	Login(ctx context.Context, in LoginInput) (*LoginResult, error)
	Authenticate(ctx context.Context, credential string) (*domain.Principal, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, in LogoutInput) error
	CurrentPrincipal(ctx context.Context, principalID string) (*domain.Principal, error)
	RequestEmailVerification(ctx context.Context, principalID string) (string, error)
	VerifyEmail(ctx context.Context, token string) error
	RequestPasswordReset(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, token, newPassword string) error
	ChangePassword(ctx context.Context, principalID, oldPassword, newPassword string) error
}

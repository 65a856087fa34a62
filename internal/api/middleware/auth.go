package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/projectcamp/auth-service/internal/core/domain"
)

// Credential transport names shared with the handlers that set them.
const (
	CookieAccessToken  = "accessToken"
	CookieRefreshToken = "refreshToken"
	CookieSessionID    = "sessionId"
	HeaderSessionID    = "X-Session-ID"
)

const (
	ctxKeyPrincipal = "principal"
	ctxKeySessionID = "session_id"
)

// Authenticator resolves a request credential to a principal.
type Authenticator interface {
	Mode() domain.AuthMode
	Authenticate(ctx context.Context, credential string) (*domain.Principal, error)
}

// Authenticate resolves the request's credential and stores the principal in
// the echo context. Requests without a usable credential continue
// anonymously; only store failures abort the request.
func Authenticate(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			credential := extractCredential(c, auth.Mode())
			if credential == "" {
				return next(c)
			}

			p, err := auth.Authenticate(c.Request().Context(), credential)
			switch {
			case err == nil:
				c.Set(ctxKeyPrincipal, p)
				if auth.Mode() == domain.ModeSession {
					c.Set(ctxKeySessionID, credential)
				}
			case errors.Is(err, domain.ErrUnauthorized):
				// anonymous
			default:
				return err
			}
			return next(c)
		}
	}
}

// extractCredential reads the bearer token or access cookie in token mode,
// the session header or cookie in session mode.
func extractCredential(c echo.Context, mode domain.AuthMode) string {
	req := c.Request()
	if mode == domain.ModeSession {
		if id := strings.TrimSpace(req.Header.Get(HeaderSessionID)); id != "" {
			return id
		}
		return cookieValue(c, CookieSessionID)
	}

	if h := req.Header.Get(echo.HeaderAuthorization); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return cookieValue(c, CookieAccessToken)
}

func cookieValue(c echo.Context, name string) string {
	ck, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}

// PrincipalFrom returns the principal stored by Authenticate.
func PrincipalFrom(c echo.Context) (*domain.Principal, bool) {
	p, ok := c.Get(ctxKeyPrincipal).(*domain.Principal)
	return p, ok && p != nil
}

// SessionIDFrom returns the raw session identifier the request authenticated
// with, in session mode.
func SessionIDFrom(c echo.Context) string {
	id, _ := c.Get(ctxKeySessionID).(string)
	return id
}

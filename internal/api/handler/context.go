package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/projectcamp/auth-service/internal/api/middleware"
	"github.com/projectcamp/auth-service/internal/core/domain"
)

// ctxPrincipal returns the principal resolved by the Authenticate
// middleware, or a 401 when the request is anonymous.
func ctxPrincipal(c echo.Context) (*domain.Principal, error) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return p, nil
}

package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/projectcamp/auth-service/internal/api/metrics"
	"github.com/projectcamp/auth-service/internal/api/middleware"
	"github.com/projectcamp/auth-service/internal/core/domain"
	"github.com/projectcamp/auth-service/internal/core/ports"
)

// CookieOptions controls the credential cookies set on login and refresh.
type CookieOptions struct {
	Secure     bool
	SessionTTL time.Duration
}

// AuthHandler exposes ports.AuthService over HTTP.
type AuthHandler struct {
	authService ports.AuthService
	cookies     CookieOptions
}

func NewAuthHandler(authService ports.AuthService, cookies CookieOptions) *AuthHandler {
	return &AuthHandler{authService: authService, cookies: cookies}
}

// Register creates a new principal and mails it a verification link.
//
// @Summary      Register a new user
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        body  body      registerRequest  true  "Registration details"
// @Success      201   {object}  userResponse
// @Failure      400   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Failure      500   {object}  errorResponse
// @Router       /api/v1/users/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.authService.Signup(c.Request().Context(), toSignupInput(req))
	observe("signup", err)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, userResponse{
		User:    res.Principal,
		Message: "user registered; a verification email has been sent",
	})
}

// Login authenticates by email or username and opens a token pair or a
// session, depending on the service mode.
//
// @Summary      Login
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  loginResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Router       /api/v1/users/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := h.authService.Login(c.Request().Context(), toLoginInput(req, c.Request().UserAgent(), c.RealIP()))
	observe("login", err)
	if err != nil {
		return err
	}

	if res.SessionID != "" {
		h.setCookie(c, middleware.CookieSessionID, res.SessionID, time.Now().Add(h.cookies.SessionTTL))
	} else {
		h.setTokenCookies(c, &res.TokenPair)
	}
	return c.JSON(http.StatusOK, toLoginResponse(res))
}

// Logout drops the caller's refresh record or session and clears cookies.
//
// @Summary      Logout
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  messageResponse
// @Failure      401  {object}  errorResponse
// @Router       /api/v1/users/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	p, err := ctxPrincipal(c)
	if err != nil {
		return err
	}

	err = h.authService.Logout(c.Request().Context(), ports.LogoutInput{
		PrincipalID: p.ID,
		SessionID:   middleware.SessionIDFrom(c),
	})
	observe("logout", err)
	if err != nil {
		return err
	}

	for _, name := range []string{middleware.CookieAccessToken, middleware.CookieRefreshToken, middleware.CookieSessionID} {
		h.clearCookie(c, name)
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "logged out"})
}

// Me returns the authenticated principal.
//
// @Summary      Current user
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  userResponse
// @Failure      401  {object}  errorResponse
// @Router       /api/v1/users/me [get]
func (h *AuthHandler) Me(c echo.Context) error {
	p, err := ctxPrincipal(c)
	if err != nil {
		return err
	}

	current, err := h.authService.CurrentPrincipal(c.Request().Context(), p.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, userResponse{User: current})
}

// VerifyEmail consumes the verification token from the mailed link.
//
// @Summary      Verify email
// @Tags         users
// @Produce      json
// @Param        verificationToken  path      string  true  "Token from the verification mail"
// @Success      200                {object}  verifyEmailResponse
// @Failure      400                {object}  errorResponse
// @Router       /api/v1/users/verify-email/{verificationToken} [get]
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	err := h.authService.VerifyEmail(c.Request().Context(), c.Param("verificationToken"))
	observe("verify_email", err)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, verifyEmailResponse{IsEmailVerified: true})
}

// ResendVerification mails a fresh verification link to the caller.
//
// @Summary      Resend verification email
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  messageResponse
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Router       /api/v1/users/resend-verification [post]
func (h *AuthHandler) ResendVerification(c echo.Context) error {
	p, err := ctxPrincipal(c)
	if err != nil {
		return err
	}

	_, err = h.authService.RequestEmailVerification(c.Request().Context(), p.ID)
	observe("resend_verification", err)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "verification email sent"})
}

// RefreshToken rotates the refresh token from the cookie or request body.
//
// @Summary      Refresh access token
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        body  body      refreshRequest  false  "Refresh token, when not sent as a cookie"
// @Success      200   {object}  tokenResponse
// @Failure      401   {object}  errorResponse
// @Router       /api/v1/users/refresh-token [post]
func (h *AuthHandler) RefreshToken(c echo.Context) error {
	token := ""
	if ck, err := c.Cookie(middleware.CookieRefreshToken); err == nil {
		token = ck.Value
	}
	if token == "" {
		var req refreshRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
		}
		token = req.RefreshToken
	}

	pair, err := h.authService.Refresh(c.Request().Context(), token)
	observe("refresh", err)
	if err != nil {
		return err
	}

	h.setTokenCookies(c, pair)
	return c.JSON(http.StatusOK, toTokenResponse(pair))
}

// ForgotPassword mails a password reset link.
//
// @Summary      Request password reset
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        body  body      forgotPasswordRequest  true  "Account email"
// @Success      200   {object}  messageResponse
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /api/v1/users/forgot-password [post]
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotPasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	_, err := h.authService.RequestPasswordReset(c.Request().Context(), req.Email)
	observe("forgot_password", err)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "password reset email sent"})
}

// ResetPassword sets a new password using the mailed reset token.
//
// @Summary      Reset password
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        resetToken  path      string                true  "Token from the reset mail"
// @Param        body        body      resetPasswordRequest  true  "New password"
// @Success      200         {object}  messageResponse
// @Failure      400         {object}  errorResponse
// @Router       /api/v1/users/reset-password/{resetToken} [post]
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	err := h.authService.ResetPassword(c.Request().Context(), c.Param("resetToken"), req.NewPassword)
	observe("reset_password", err)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "password reset"})
}

// ChangePassword replaces the caller's password.
//
// @Summary      Change password
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      changePasswordRequest  true  "Current and new password"
// @Success      200   {object}  messageResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Router       /api/v1/users/change-password [post]
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	p, err := ctxPrincipal(c)
	if err != nil {
		return err
	}
	var req changePasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	err = h.authService.ChangePassword(c.Request().Context(), p.ID, req.OldPassword, req.NewPassword)
	observe("change_password", err)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: "password changed"})
}

func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	return c.Validate(req)
}

func (h *AuthHandler) setTokenCookies(c echo.Context, pair *ports.TokenPair) {
	h.setCookie(c, middleware.CookieAccessToken, pair.AccessToken, pair.AccessExpiresAt)
	h.setCookie(c, middleware.CookieRefreshToken, pair.RefreshToken, pair.RefreshExpiresAt)
}

func (h *AuthHandler) setCookie(c echo.Context, name, value string, expires time.Time) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearCookie(c echo.Context, name string) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// observe records the outcome of one auth operation.
func observe(operation string, err error) {
	metrics.AuthOperationsTotal.WithLabelValues(operation, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrInvalidOrExpired):
		return "invalid_or_expired"
	case errors.Is(err, domain.ErrAlreadyVerified):
		return "already_verified"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

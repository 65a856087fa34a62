package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/projectcamp/auth-service/internal/api/middleware"
	"github.com/projectcamp/auth-service/internal/core/domain"
	"github.com/projectcamp/auth-service/internal/core/ports"
)

type stubAuthService struct {
	mode             domain.AuthMode
	signupFn         func(ctx context.Context, in ports.SignupInput) (*ports.SignupResult, error)
	loginFn          func(ctx context.Context, in ports.LoginInput) (*ports.LoginResult, error)
	refreshFn        func(ctx context.Context, token string) (*ports.TokenPair, error)
	logoutFn         func(ctx context.Context, in ports.LogoutInput) error
	verifyEmailFn    func(ctx context.Context, token string) error
	resetPasswordFn  func(ctx context.Context, token, pw string) error
	changePasswordFn func(ctx context.Context, id, old, pw string) error
	forgotFn         func(ctx context.Context, email string) (string, error)
}

func (s *stubAuthService) Mode() domain.AuthMode { return s.mode }

func (s *stubAuthService) Signup(ctx context.Context, in ports.SignupInput) (*ports.SignupResult, error) {
	return s.signupFn(ctx, in)
}

func (s *stubAuthService) Login(ctx context.Context, in ports.LoginInput) (*ports.LoginResult, error) {
	return s.loginFn(ctx, in)
}

func (s *stubAuthService) Authenticate(context.Context, string) (*domain.Principal, error) {
	return nil, domain.ErrUnauthorized
}

func (s *stubAuthService) Refresh(ctx context.Context, token string) (*ports.TokenPair, error) {
	return s.refreshFn(ctx, token)
}

func (s *stubAuthService) Logout(ctx context.Context, in ports.LogoutInput) error {
	return s.logoutFn(ctx, in)
}

func (s *stubAuthService) CurrentPrincipal(_ context.Context, id string) (*domain.Principal, error) {
	return &domain.Principal{ID: id, Email: "a@x.com"}, nil
}

func (s *stubAuthService) RequestEmailVerification(context.Context, string) (string, error) {
	return "token", nil
}

func (s *stubAuthService) VerifyEmail(ctx context.Context, token string) error {
	return s.verifyEmailFn(ctx, token)
}

func (s *stubAuthService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	return s.forgotFn(ctx, email)
}

func (s *stubAuthService) ResetPassword(ctx context.Context, token, pw string) error {
	return s.resetPasswordFn(ctx, token, pw)
}

func (s *stubAuthService) ChangePassword(ctx context.Context, id, old, pw string) error {
	return s.changePasswordFn(ctx, id, old, pw)
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	return e
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestAuthHandler_Register_Success(t *testing.T) {
	e := newEcho()
	stub := &stubAuthService{
		signupFn: func(_ context.Context, in ports.SignupInput) (*ports.SignupResult, error) {
			if in.Email != "a@x.com" || in.Username != "alice" || in.FullName != "Alice Doe" {
				t.Fatalf("unexpected input: %+v", in)
			}
			return &ports.SignupResult{
				Principal:         &domain.Principal{ID: "p-1", Email: in.Email, Username: in.Username, PasswordHash: "secret-hash"},
				VerificationToken: "unhashed-token",
			}, nil
		},
	}
	h := NewAuthHandler(stub, CookieOptions{})

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/", `{"email":"a@x.com","username":"alice","password":"pw123456","fullName":"Alice Doe"}`), rec)
	if err := h.Register(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	body := rec.Body.String()
	if strings.Contains(body, "secret-hash") || strings.Contains(body, "unhashed-token") {
		t.Fatalf("response leaks secrets: %s", body)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	user, ok := resp["user"].(map[string]any)
	if !ok || user["id"] != "p-1" || user["isEmailVerified"] != false {
		t.Fatalf("unexpected user payload: %+v", resp)
	}
}

func TestAuthHandler_Register_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing email", body: `{"username":"alice","password":"pw123456"}`},
		{name: "bad email", body: `{"email":"nope","username":"alice","password":"pw123456"}`},
		{name: "short password", body: `{"email":"a@x.com","username":"alice","password":"short"}`},
		{name: "short username", body: `{"email":"a@x.com","username":"al","password":"pw123456"}`},
		{name: "bad username characters", body: `{"email":"a@x.com","username":"al ice!","password":"pw123456"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEcho()
			stub := &stubAuthService{
				signupFn: func(context.Context, ports.SignupInput) (*ports.SignupResult, error) {
					t.Fatalf("service must not be called")
					return nil, nil
				},
			}
			h := NewAuthHandler(stub, CookieOptions{})
			c := e.NewContext(jsonRequest(http.MethodPost, "/", tt.body), httptest.NewRecorder())

			err := h.Register(c)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestAuthHandler_Register_Conflict(t *testing.T) {
	e := newEcho()
	stub := &stubAuthService{
		signupFn: func(context.Context, ports.SignupInput) (*ports.SignupResult, error) {
			return nil, domain.ErrConflict
		},
	}
	h := NewAuthHandler(stub, CookieOptions{})
	c := e.NewContext(jsonRequest(http.MethodPost, "/", `{"email":"a@x.com","username":"alice","password":"pw123456"}`), httptest.NewRecorder())

	if err := h.Register(c); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestAuthHandler_Login_TokenMode(t *testing.T) {
	e := newEcho()
	exp := time.Date(2026, 3, 1, 12, 15, 0, 0, time.UTC)
	stub := &stubAuthService{
		mode: domain.ModeToken,
		loginFn: func(_ context.Context, in ports.LoginInput) (*ports.LoginResult, error) {
			if in.Username != "alice" || in.Password != "pw123456" {
				t.Fatalf("unexpected input: %+v", in)
			}
			return &ports.LoginResult{
				Principal: &domain.Principal{ID: "p-1"},
				TokenPair: ports.TokenPair{
					AccessToken:      "acc",
					RefreshToken:     "ref",
					AccessExpiresAt:  exp,
					RefreshExpiresAt: exp.Add(time.Hour),
				},
			}, nil
		},
	}
	h := NewAuthHandler(stub, CookieOptions{Secure: true})

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/", `{"username":"alice","password":"pw123456"}`), rec)
	if err := h.Login(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	access := cookieByName(rec, middleware.CookieAccessToken)
	if access == nil || access.Value != "acc" || !access.HttpOnly || !access.Secure {
		t.Fatalf("unexpected access cookie: %+v", access)
	}
	if ref := cookieByName(rec, middleware.CookieRefreshToken); ref == nil || ref.Value != "ref" {
		t.Fatalf("unexpected refresh cookie: %+v", ref)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp["accessToken"] != "acc" || resp["refreshToken"] != "ref" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
	if _, ok := resp["sessionId"]; ok {
		t.Fatalf("token mode must not return a session id")
	}
}

func TestAuthHandler_Login_SessionMode(t *testing.T) {
	e := newEcho()
	stub := &stubAuthService{
		mode: domain.ModeSession,
		loginFn: func(_ context.Context, in ports.LoginInput) (*ports.LoginResult, error) {
			if in.UserAgent != "curl/8.0" {
				t.Fatalf("user agent not forwarded: %+v", in)
			}
			return &ports.LoginResult{Principal: &domain.Principal{ID: "p-1"}, SessionID: "sid"}, nil
		},
	}
	h := NewAuthHandler(stub, CookieOptions{SessionTTL: time.Hour})

	req := jsonRequest(http.MethodPost, "/", `{"email":"a@x.com","password":"pw123456"}`)
	req.Header.Set("User-Agent", "curl/8.0")
	rec := httptest.NewRecorder()
	if err := h.Login(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	if ck := cookieByName(rec, middleware.CookieSessionID); ck == nil || ck.Value != "sid" {
		t.Fatalf("unexpected session cookie: %+v", ck)
	}
	if cookieByName(rec, middleware.CookieAccessToken) != nil {
		t.Fatalf("session mode must not set token cookies")
	}
	if strings.Contains(rec.Body.String(), "accessToken") {
		t.Fatalf("session mode must not return tokens: %s", rec.Body.String())
	}
}

func TestAuthHandler_Login_NeedsIdentifier(t *testing.T) {
	e := newEcho()
	h := NewAuthHandler(&stubAuthService{}, CookieOptions{})
	c := e.NewContext(jsonRequest(http.MethodPost, "/", `{"password":"pw123456"}`), httptest.NewRecorder())

	if err := h.Login(c); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAuthHandler_RefreshToken(t *testing.T) {
	pair := &ports.TokenPair{AccessToken: "acc2", RefreshToken: "ref2"}

	t.Run("from cookie", func(t *testing.T) {
		e := newEcho()
		stub := &stubAuthService{refreshFn: func(_ context.Context, token string) (*ports.TokenPair, error) {
			if token != "ref1" {
				t.Fatalf("expected cookie token, got %q", token)
			}
			return pair, nil
		}}
		req := jsonRequest(http.MethodPost, "/", `{"refreshToken":"ignored"}`)
		req.AddCookie(&http.Cookie{Name: middleware.CookieRefreshToken, Value: "ref1"})
		rec := httptest.NewRecorder()

		if err := NewAuthHandler(stub, CookieOptions{}).RefreshToken(e.NewContext(req, rec)); err != nil {
			t.Fatalf("handler error: %v", err)
		}
		if ck := cookieByName(rec, middleware.CookieRefreshToken); ck == nil || ck.Value != "ref2" {
			t.Fatalf("refresh cookie not rotated: %+v", ck)
		}
	})

	t.Run("from body", func(t *testing.T) {
		e := newEcho()
		stub := &stubAuthService{refreshFn: func(_ context.Context, token string) (*ports.TokenPair, error) {
			if token != "ref1" {
				t.Fatalf("expected body token, got %q", token)
			}
			return pair, nil
		}}
		rec := httptest.NewRecorder()
		c := e.NewContext(jsonRequest(http.MethodPost, "/", `{"refreshToken":"ref1"}`), rec)
		if err := NewAuthHandler(stub, CookieOptions{}).RefreshToken(c); err != nil {
			t.Fatalf("handler error: %v", err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("rejected", func(t *testing.T) {
		e := newEcho()
		stub := &stubAuthService{refreshFn: func(context.Context, string) (*ports.TokenPair, error) {
			return nil, domain.ErrUnauthorized
		}}
		c := e.NewContext(jsonRequest(http.MethodPost, "/", `{}`), httptest.NewRecorder())
		if err := NewAuthHandler(stub, CookieOptions{}).RefreshToken(c); !errors.Is(err, domain.ErrUnauthorized) {
			t.Fatalf("expected unauthorized, got %v", err)
		}
	})
}

func TestAuthHandler_Logout(t *testing.T) {
	e := newEcho()
	var got ports.LogoutInput
	stub := &stubAuthService{logoutFn: func(_ context.Context, in ports.LogoutInput) error {
		got = in
		return nil
	}}
	h := NewAuthHandler(stub, CookieOptions{})

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
	c.Set("principal", &domain.Principal{ID: "p-1"})

	if err := h.Logout(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if got.PrincipalID != "p-1" {
		t.Fatalf("unexpected logout input: %+v", got)
	}
	if ck := cookieByName(rec, middleware.CookieAccessToken); ck == nil || ck.MaxAge >= 0 {
		t.Fatalf("access cookie not cleared: %+v", ck)
	}
}

func TestAuthHandler_ProtectedRoutesNeedPrincipal(t *testing.T) {
	e := newEcho()
	h := NewAuthHandler(&stubAuthService{}, CookieOptions{})

	for name, fn := range map[string]echo.HandlerFunc{
		"logout":          h.Logout,
		"me":              h.Me,
		"resend":          h.ResendVerification,
		"change-password": h.ChangePassword,
	} {
		c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
		err := fn(c)
		var he *echo.HTTPError
		if !errors.As(err, &he) || he.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %v", name, err)
		}
	}
}

func TestAuthHandler_VerifyEmail(t *testing.T) {
	e := newEcho()
	stub := &stubAuthService{verifyEmailFn: func(_ context.Context, token string) error {
		if token != "abc" {
			return domain.ErrInvalidOrExpired
		}
		return nil
	}}
	h := NewAuthHandler(stub, CookieOptions{})

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("verificationToken")
	c.SetParamValues("abc")
	if err := h.VerifyEmail(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"isEmailVerified":true}` {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("verificationToken")
	c.SetParamValues("stale")
	if err := h.VerifyEmail(c); !errors.Is(err, domain.ErrInvalidOrExpired) {
		t.Fatalf("expected invalid or expired, got %v", err)
	}
}

func TestAuthHandler_ResetPassword(t *testing.T) {
	e := newEcho()
	stub := &stubAuthService{resetPasswordFn: func(_ context.Context, token, pw string) error {
		if token != "rt" || pw != "newpw12345" {
			t.Fatalf("unexpected args %q %q", token, pw)
		}
		return nil
	}}
	h := NewAuthHandler(stub, CookieOptions{})

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/", `{"newPassword":"newpw12345"}`), rec)
	c.SetParamNames("resetToken")
	c.SetParamValues("rt")
	if err := h.ResetPassword(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthHandler_ForgotPassword_DoesNotEchoToken(t *testing.T) {
	e := newEcho()
	stub := &stubAuthService{forgotFn: func(context.Context, string) (string, error) {
		return "unhashed-reset-token", nil
	}}
	h := NewAuthHandler(stub, CookieOptions{})

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/", `{"email":"a@x.com"}`), rec)
	if err := h.ForgotPassword(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if strings.Contains(rec.Body.String(), "unhashed-reset-token") {
		t.Fatalf("reset token leaked: %s", rec.Body.String())
	}
}

func TestAuthHandler_ChangePassword(t *testing.T) {
	e := newEcho()
	stub := &stubAuthService{changePasswordFn: func(_ context.Context, id, old, pw string) error {
		if id != "p-1" || old != "pw123456" || pw != "newpw12345" {
			t.Fatalf("unexpected args %q %q %q", id, old, pw)
		}
		return nil
	}}
	h := NewAuthHandler(stub, CookieOptions{})

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/", `{"oldPassword":"pw123456","newPassword":"newpw12345"}`), rec)
	c.Set("principal", &domain.Principal{ID: "p-1"})
	if err := h.ChangePassword(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

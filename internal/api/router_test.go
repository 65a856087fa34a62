package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/projectcamp/auth-service/internal/api/handler"
	"github.com/projectcamp/auth-service/internal/api/middleware"
	"github.com/projectcamp/auth-service/internal/core/domain"
	"github.com/projectcamp/auth-service/internal/core/ports"
	"github.com/projectcamp/auth-service/internal/core/service"
	"github.com/projectcamp/auth-service/internal/infrastructure/db/memory"
	"github.com/projectcamp/auth-service/internal/infrastructure/mail"
	"github.com/projectcamp/auth-service/internal/security"
)

type inbox struct {
	mu   sync.Mutex
	sent []ports.Notification
}

func (i *inbox) Notify(_ context.Context, n ports.Notification) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.sent = append(i.sent, n)
}

var verifyLink = regexp.MustCompile(`verify-email/([0-9a-f]+)`)

func (i *inbox) lastVerificationToken(t *testing.T) string {
	t.Helper()
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.sent) == 0 {
		t.Fatalf("no mail sent")
	}
	m := verifyLink.FindStringSubmatch(i.sent[len(i.sent)-1].HTML)
	if m == nil {
		t.Fatalf("no verification link in mail")
	}
	return m[1]
}

func newTestRouter(t *testing.T, mode domain.AuthMode) (*echo.Echo, *inbox) {
	t.Helper()
	var codec service.TokenCodec
	if mode == domain.ModeToken {
		c, err := security.NewTokenCodec(security.CodecConfig{
			AccessSecret:  "access-secret-0123456789abcdef0123456789",
			RefreshSecret: "refresh-secret-0123456789abcdef012345678",
			Issuer:        "test",
		})
		if err != nil {
			t.Fatalf("codec: %v", err)
		}
		codec = c
	}

	box := &inbox{}
	svc, err := service.NewAuthService(
		memory.NewStore(),
		box,
		mail.NewRenderer("Project Camp", "https://app.example.com"),
		security.NewBcryptHasher(bcrypt.MinCost),
		codec,
		service.Options{Mode: mode, AppBaseURL: "https://app.example.com", ResetRedirectURL: "https://app.example.com/reset"},
		zerolog.Nop(),
	)
	if err != nil {
		t.Fatalf("service: %v", err)
	}

	reg := prometheus.NewRegistry()
	e := NewRouter(Deps{
		AuthService: svc,
		Cookies:     handler.CookieOptions{},
		Registerer:  reg,
		Gatherer:    reg,
		Log:         zerolog.Nop(),
	})
	return e, box
}

type call struct {
	method  string
	path    string
	body    string
	headers map[string]string
}

func do(e *echo.Echo, c call) *httptest.ResponseRecorder {
	var req *http.Request
	if c.body != "" {
		req = httptest.NewRequest(c.method, c.path, strings.NewReader(c.body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(c.method, c.path, nil)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid json %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

const registerBody = `{"email":"Alice@Example.com","username":"alice","password":"pw123456"}`

func TestRouter_TokenModeLifecycle(t *testing.T) {
	e, box := newTestRouter(t, domain.ModeToken)

	expectStatus(t, do(e, call{method: http.MethodPost, path: "/api/v1/users/register", body: registerBody}), http.StatusCreated)

	rec := do(e, call{method: http.MethodPost, path: "/api/v1/users/register", body: registerBody})
	expectStatus(t, rec, http.StatusConflict)
	if decode(t, rec)["error"] == "" {
		t.Fatalf("expected error envelope")
	}

	expectStatus(t, do(e, call{method: http.MethodGet, path: "/api/v1/users/me"}), http.StatusUnauthorized)
	expectStatus(t, do(e, call{method: http.MethodPost, path: "/api/v1/users/login", body: `{"email":"alice@example.com","password":"wrong-pass"}`}), http.StatusUnauthorized)

	rec = do(e, call{method: http.MethodPost, path: "/api/v1/users/login", body: `{"username":"alice","password":"pw123456"}`})
	expectStatus(t, rec, http.StatusOK)
	login := decode(t, rec)
	access, _ := login["accessToken"].(string)
	refresh, _ := login["refreshToken"].(string)
	if access == "" || refresh == "" {
		t.Fatalf("missing tokens: %+v", login)
	}
	bearer := map[string]string{echo.HeaderAuthorization: "Bearer " + access}

	rec = do(e, call{method: http.MethodGet, path: "/api/v1/users/me", headers: bearer})
	expectStatus(t, rec, http.StatusOK)
	user, _ := decode(t, rec)["user"].(map[string]any)
	if user["email"] != "alice@example.com" || user["isEmailVerified"] != false {
		t.Fatalf("unexpected user: %+v", user)
	}

	token := box.lastVerificationToken(t)
	expectStatus(t, do(e, call{method: http.MethodGet, path: "/api/v1/users/verify-email/" + token}), http.StatusOK)
	expectStatus(t, do(e, call{method: http.MethodGet, path: "/api/v1/users/verify-email/" + token}), http.StatusBadRequest)
	expectStatus(t, do(e, call{method: http.MethodPost, path: "/api/v1/users/resend-verification", headers: bearer}), http.StatusBadRequest)

	rec = do(e, call{method: http.MethodPost, path: "/api/v1/users/refresh-token", body: `{"refreshToken":"` + refresh + `"}`})
	expectStatus(t, rec, http.StatusOK)
	rotated, _ := decode(t, rec)["refreshToken"].(string)
	if rotated == "" || rotated == refresh {
		t.Fatalf("refresh token not rotated")
	}
	expectStatus(t, do(e, call{method: http.MethodPost, path: "/api/v1/users/refresh-token", body: `{"refreshToken":"` + refresh + `"}`}), http.StatusUnauthorized)

	expectStatus(t, do(e, call{method: http.MethodPost, path: "/api/v1/users/logout", headers: bearer}), http.StatusOK)
	expectStatus(t, do(e, call{method: http.MethodPost, path: "/api/v1/users/refresh-token", body: `{"refreshToken":"` + rotated + `"}`}), http.StatusUnauthorized)
}

func TestRouter_SessionModeLifecycle(t *testing.T) {
	e, _ := newTestRouter(t, domain.ModeSession)

	expectStatus(t, do(e, call{method: http.MethodPost, path: "/api/v1/users/register", body: registerBody}), http.StatusCreated)

	rec := do(e, call{method: http.MethodPost, path: "/api/v1/users/login", body: `{"email":"alice@example.com","password":"pw123456"}`})
	expectStatus(t, rec, http.StatusOK)
	sid, _ := decode(t, rec)["sessionId"].(string)
	if sid == "" {
		t.Fatalf("missing session id: %s", rec.Body.String())
	}
	session := map[string]string{middleware.HeaderSessionID: sid}

	expectStatus(t, do(e, call{method: http.MethodGet, path: "/api/v1/users/me", headers: session}), http.StatusOK)
	expectStatus(t, do(e, call{method: http.MethodPost, path: "/api/v1/users/refresh-token", body: `{"refreshToken":"x"}`}), http.StatusUnauthorized)
	expectStatus(t, do(e, call{method: http.MethodPost, path: "/api/v1/users/logout", headers: session}), http.StatusOK)
	expectStatus(t, do(e, call{method: http.MethodGet, path: "/api/v1/users/me", headers: session}), http.StatusUnauthorized)
}

func TestRouter_ValidationErrors(t *testing.T) {
	e, _ := newTestRouter(t, domain.ModeToken)

	rec := do(e, call{method: http.MethodPost, path: "/api/v1/users/register", body: `{"email":"not-an-email","username":"alice","password":"pw123456"}`})
	expectStatus(t, rec, http.StatusBadRequest)
	if msg, _ := decode(t, rec)["error"].(string); !strings.Contains(msg, "email") {
		t.Fatalf("expected message naming the field, got %q", msg)
	}

	expectStatus(t, do(e, call{method: http.MethodPost, path: "/api/v1/users/register", body: `{not json`}), http.StatusBadRequest)
	expectStatus(t, do(e, call{method: http.MethodPost, path: "/api/v1/users/forgot-password", body: `{"email":"nobody@example.com"}`}), http.StatusNotFound)
}

func TestRouter_OperationalEndpoints(t *testing.T) {
	e, _ := newTestRouter(t, domain.ModeToken)

	expectStatus(t, do(e, call{method: http.MethodGet, path: "/health"}), http.StatusOK)
	expectStatus(t, do(e, call{method: http.MethodGet, path: "/health/ready"}), http.StatusOK)
	expectStatus(t, do(e, call{method: http.MethodGet, path: "/metrics"}), http.StatusOK)
}

func TestRouter_ReadinessReportsFailedDependency(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := NewRouter(Deps{
		AuthService: nil,
		Readiness: map[string]handler.DependencyCheck{
			"mongodb": func(context.Context) error { return errors.New("no reachable servers") },
		},
		Registerer: reg,
		Gatherer:   reg,
		Log:        zerolog.Nop(),
	})

	rec := do(e, call{method: http.MethodGet, path: "/health/ready"})
	expectStatus(t, rec, http.StatusServiceUnavailable)
	deps, _ := decode(t, rec)["dependencies"].(map[string]any)
	if mongo, _ := deps["mongodb"].(map[string]any); mongo["status"] != "unhealthy" {
		t.Fatalf("unexpected readiness payload: %s", rec.Body.String())
	}
}

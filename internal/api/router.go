package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/projectcamp/auth-service/internal/api/docs"
	"github.com/projectcamp/auth-service/internal/api/handler"
	"github.com/projectcamp/auth-service/internal/api/middleware"
	"github.com/projectcamp/auth-service/internal/core/ports"
)

// Deps carries everything the router needs to build its handlers.
type Deps struct {
	AuthService ports.AuthService
	Cookies     handler.CookieOptions
	// Readiness checks keyed by dependency name; nil means always ready.
	Readiness map[string]handler.DependencyCheck
	// Registerer and Gatherer back the HTTP metrics and /metrics.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	Log        zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	if d.Registerer == nil {
		d.Registerer = prometheus.DefaultRegisterer
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(d.Log))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "http",
		Registerer: d.Registerer,
	}))

	// --- Operational endpoints ---
	healthHandler := handler.NewHealthHandler()
	readinessHandler := handler.NewReadinessHandler(d.Readiness)

	e.GET("/health", healthHandler.Liveness)          // liveness  – is the process alive?
	e.GET("/health/ready", readinessHandler.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: d.Gatherer}))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// --- User routes ---
	authHandler := handler.NewAuthHandler(d.AuthService, d.Cookies)
	requireAuth := middleware.RequireAuth()

	users := e.Group("/api/v1/users", middleware.Authenticate(d.AuthService))
	users.POST("/register", authHandler.Register)
	users.POST("/login", authHandler.Login)
	users.POST("/logout", authHandler.Logout, requireAuth)
	users.GET("/me", authHandler.Me, requireAuth)
	users.GET("/verify-email/:verificationToken", authHandler.VerifyEmail)
	users.POST("/resend-verification", authHandler.ResendVerification, requireAuth)
	users.POST("/refresh-token", authHandler.RefreshToken)
	users.POST("/forgot-password", authHandler.ForgotPassword)
	users.POST("/reset-password/:resetToken", authHandler.ResetPassword)
	users.POST("/change-password", authHandler.ChangePassword, requireAuth)

	return e
}

// requestLogger logs one line per request through zerolog.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("path", v.URIPath).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}

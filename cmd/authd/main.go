// Command authd serves the credential and token lifecycle API.
//
//	@title						Auth Service API
//	@version					1.0
//	@description				Registration, login, token refresh, email verification and password reset.
//	@BasePath					/
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/projectcamp/auth-service/internal/api"
	"github.com/projectcamp/auth-service/internal/api/handler"
	"github.com/projectcamp/auth-service/internal/core/domain"
	"github.com/projectcamp/auth-service/internal/core/ports"
	"github.com/projectcamp/auth-service/internal/core/service"
	"github.com/projectcamp/auth-service/internal/infrastructure/db"
	"github.com/projectcamp/auth-service/internal/infrastructure/db/memory"
	mongodb "github.com/projectcamp/auth-service/internal/infrastructure/db/mongo"
	redisdb "github.com/projectcamp/auth-service/internal/infrastructure/db/redis"
	"github.com/projectcamp/auth-service/internal/infrastructure/mail"
	"github.com/projectcamp/auth-service/internal/infrastructure/queue"
	"github.com/projectcamp/auth-service/internal/pkg/config"
	"github.com/projectcamp/auth-service/internal/security"
	"github.com/projectcamp/auth-service/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.Load()
	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Service: "authd",
	})

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("authd stopped")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, readiness, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	mailer, err := newMailer(cfg, log)
	if err != nil {
		return err
	}
	dispatcher := queue.NewDispatcher(cfg.Mail.Workers, mailer, queue.NewMetrics(prometheus.DefaultRegisterer), log)
	dispatcher.Start(ctx)

	mode := domain.AuthMode(cfg.Auth.Mode)
	var codec service.TokenCodec
	if mode == domain.ModeToken {
		c, err := security.NewTokenCodec(security.CodecConfig{
			AccessSecret:  cfg.Auth.AccessTokenSecret,
			RefreshSecret: cfg.Auth.RefreshTokenSecret,
			Issuer:        cfg.Auth.Issuer,
		})
		if err != nil {
			return fmt.Errorf("token codec: %w", err)
		}
		codec = c
	}

	authService, err := service.NewAuthService(
		store,
		dispatcher,
		mail.NewRenderer(cfg.Mail.ProductName, cfg.Auth.AppBaseURL),
		security.NewBcryptHasher(cfg.Auth.BcryptCost),
		codec,
		service.Options{
			Mode:               mode,
			AccessTokenTTL:     cfg.Auth.AccessTokenTTL,
			RefreshTokenTTL:    cfg.Auth.RefreshTokenTTL,
			VerificationWindow: cfg.Auth.VerificationTokenTTL,
			ResetWindow:        cfg.Auth.ResetTokenTTL,
			AppBaseURL:         cfg.Auth.AppBaseURL,
			ResetRedirectURL:   cfg.Auth.ForgotPasswordRedirectURL,
		},
		log,
	)
	if err != nil {
		return fmt.Errorf("auth service: %w", err)
	}

	e := api.NewRouter(api.Deps{
		AuthService: authService,
		Cookies: handler.CookieOptions{
			Secure:     cfg.IsProduction(),
			SessionTTL: cfg.Auth.SessionTTL,
		},
		Readiness:  readiness,
		Registerer: prometheus.DefaultRegisterer,
		Gatherer:   prometheus.DefaultGatherer,
		Log:        logger.Component("http"),
	})

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("mode", cfg.Auth.Mode).Str("store", cfg.StoreDriver).Msg("listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("notification drain")
	}
	log.Info().Msg("stopped")
	return nil
}

// openStore builds the SessionStore selected by cfg together with the
// readiness checks of its backends and a cleanup func.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (ports.SessionStore, map[string]handler.DependencyCheck, func(), error) {
	checks := map[string]handler.DependencyCheck{}
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	mem := memory.NewStore()
	var principals ports.PrincipalRepository = mem
	var sessions ports.SessionRepository = mem

	if cfg.StoreDriver == "mongo" {
		client, database, err := mongodb.Connect(ctx, mongodb.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database, AppName: "authd"})
		if err != nil {
			return nil, nil, nil, err
		}
		closers = append(closers, func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Disconnect(dctx); err != nil {
				log.Error().Err(err).Msg("mongo disconnect")
			}
		})

		repo := mongodb.NewPrincipalRepository(database)
		if err := repo.EnsureIndexes(ctx); err != nil {
			closeAll()
			return nil, nil, nil, fmt.Errorf("mongo indexes: %w", err)
		}
		principals = repo
		checks["mongodb"] = func(ctx context.Context) error { return mongodb.Ping(ctx, client) }
		log.Info().Str("database", cfg.Mongo.Database).Msg("mongodb connected")
	}

	if cfg.Redis.Addr != "" {
		client, err := redisdb.Connect(ctx, redisdb.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			closeAll()
			return nil, nil, nil, err
		}
		closers = append(closers, func() {
			if err := client.Close(); err != nil {
				log.Error().Err(err).Msg("redis close")
			}
		})

		sessions = redisdb.NewSessionRepository(client, cfg.Auth.SessionTTL)
		checks["redis"] = func(ctx context.Context) error { return redisdb.Ping(ctx, client) }
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis connected")
	}

	return db.NewStore(principals, sessions), checks, closeAll, nil
}

func newMailer(cfg *config.Config, log zerolog.Logger) (ports.Mailer, error) {
	if cfg.Mail.SMTPHost == "" {
		log.Warn().Msg("SMTP_HOST not set; mails are logged instead of sent")
		return mail.NewLogMailer(log), nil
	}
	m, err := mail.NewSMTPMailer(mail.SMTPConfig{
		Host:     cfg.Mail.SMTPHost,
		Port:     cfg.Mail.SMTPPort,
		Username: cfg.Mail.SMTPUser,
		Password: cfg.Mail.SMTPPassword,
		From:     cfg.Mail.From,
	})
	if err != nil {
		return nil, fmt.Errorf("smtp mailer: %w", err)
	}
	return m, nil
}

package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// minSecretLength is the shortest accepted token signing secret.
const minSecretLength = 32

type Config struct {
	Port      string `env:"PORT,       default=8080"`
	Env       string `env:"ENV,        default=development"`
	LogLevel  string `env:"LOG_LEVEL,  default=info"`
	LogPretty bool   `env:"LOG_PRETTY, default=false"`

	// StoreDriver selects where principals live: "mongo" or "memory".
	StoreDriver string `env:"STORE_DRIVER, default=mongo"`

	Auth  AuthConfig
	Mongo MongoConfig
	Redis RedisConfig
	Mail  MailConfig
}

type AuthConfig struct {
	// Mode is "token" (JWT access/refresh pair) or "session" (server-side session).
	Mode                 string        `env:"AUTH_MODE,              default=token"`
	AccessTokenSecret    string        `env:"ACCESS_TOKEN_SECRET"`
	RefreshTokenSecret   string        `env:"REFRESH_TOKEN_SECRET"`
	Issuer               string        `env:"TOKEN_ISSUER,           default=auth-service"`
	AccessTokenTTL       time.Duration `env:"ACCESS_TOKEN_TTL,       default=15m"`
	RefreshTokenTTL      time.Duration `env:"REFRESH_TOKEN_TTL,      default=168h"`
	VerificationTokenTTL time.Duration `env:"VERIFICATION_TOKEN_TTL, default=20m"`
	ResetTokenTTL        time.Duration `env:"RESET_TOKEN_TTL,        default=20m"`
	SessionTTL           time.Duration `env:"SESSION_TTL,            default=24h"`
	BcryptCost           int           `env:"BCRYPT_COST,            default=10"`

	AppBaseURL                string `env:"APP_BASE_URL,                 default=http://localhost:8080"`
	ForgotPasswordRedirectURL string `env:"FORGOT_PASSWORD_REDIRECT_URL, default=http://localhost:3000/reset-password"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=auth_service"`
}

type RedisConfig struct {
	// Addr empty keeps sessions in process memory.
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB, default=0"`
}

type MailConfig struct {
	// SMTPHost empty logs mails instead of sending them.
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT,      default=587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	From         string `env:"MAIL_FROM,      default=Project Camp <no-reply@projectcamp.local>"`
	ProductName  string `env:"MAIL_PRODUCT,   default=Project Camp"`
	Workers      int    `env:"NOTIFY_WORKERS, default=4"`
}

// IsProduction reports whether ENV names a production deployment.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads configuration from environment variables using go-envconfig.
// It panics on malformed or invalid configuration.
func Load() *Config {
	cfg, err := LoadWith(envconfig.OsLookuper())
	if err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return cfg
}

// LoadWith reads configuration from l and validates it.
func LoadWith(l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   &cfg,
		Lookuper: l,
	}); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	var errs []error

	switch c.Auth.Mode {
	case "token", "session":
	default:
		errs = append(errs, fmt.Errorf("AUTH_MODE must be token or session, got %q", c.Auth.Mode))
	}

	if c.Auth.Mode == "token" {
		if len(c.Auth.AccessTokenSecret) < minSecretLength {
			errs = append(errs, fmt.Errorf("ACCESS_TOKEN_SECRET must be at least %d characters", minSecretLength))
		}
		if len(c.Auth.RefreshTokenSecret) < minSecretLength {
			errs = append(errs, fmt.Errorf("REFRESH_TOKEN_SECRET must be at least %d characters", minSecretLength))
		}
		if c.Auth.AccessTokenSecret != "" && c.Auth.AccessTokenSecret == c.Auth.RefreshTokenSecret {
			errs = append(errs, errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ"))
		}
	}

	for name, d := range map[string]time.Duration{
		"ACCESS_TOKEN_TTL":       c.Auth.AccessTokenTTL,
		"REFRESH_TOKEN_TTL":      c.Auth.RefreshTokenTTL,
		"VERIFICATION_TOKEN_TTL": c.Auth.VerificationTokenTTL,
		"RESET_TOKEN_TTL":        c.Auth.ResetTokenTTL,
		"SESSION_TTL":            c.Auth.SessionTTL,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.Auth.BcryptCost))
	}

	switch c.StoreDriver {
	case "mongo", "memory":
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be mongo or memory, got %q", c.StoreDriver))
	}

	return errors.Join(errs...)
}

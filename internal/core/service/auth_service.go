package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/projectcamp/auth-service/internal/core/domain"
	"github.com/projectcamp/auth-service/internal/core/ports"
	"github.com/projectcamp/auth-service/internal/security"
)

// PasswordHasher abstracts the one-way password digest.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// TokenCodec abstracts signed access/refresh token handling.
type TokenCodec interface {
	Issue(principalID string, kind domain.TokenKind, claims map[string]string, ttl time.Duration) (string, time.Time, error)
	Verify(token string, expected domain.TokenKind) (*security.VerifiedToken, error)
}

// Options tunes an AuthService. Zero values fall back to the defaults below.
type Options struct {
	Mode            domain.AuthMode
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	// VerificationWindow and ResetWindow bound the life of opaque grants.
	VerificationWindow time.Duration
	ResetWindow        time.Duration
	// AppBaseURL prefixes email verification links.
	AppBaseURL string
	// ResetRedirectURL prefixes password reset links.
	ResetRedirectURL string
	Now              func() time.Time
}

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
	verifyEmailPath        = "/api/v1/users/verify-email"
)

// dummyPassword is hashed once at construction; logins for unknown
// identifiers verify against it so they cost the same as a wrong password.
const dummyPassword = "timing-equaliser-not-a-credential"

// AuthService implements ports.AuthService on top of a SessionStore.
type AuthService struct {
	store    ports.SessionStore
	notifier ports.Notifier
	renderer ports.MessageRenderer
	hasher   PasswordHasher
	codec    TokenCodec
	opts     Options

	verificationTokens *security.OpaqueTokenFactory
	resetTokens        *security.OpaqueTokenFactory
	sessionIDs         *security.OpaqueTokenFactory
	dummyHash          string

	log zerolog.Logger
}

var _ ports.AuthService = (*AuthService)(nil)

// NewAuthService wires an AuthService. All collaborators are required; the
// codec may be nil only in session mode.
func NewAuthService(
	store ports.SessionStore,
	notifier ports.Notifier,
	renderer ports.MessageRenderer,
	hasher PasswordHasher,
	codec TokenCodec,
	opts Options,
	log zerolog.Logger,
) (*AuthService, error) {
	switch {
	case store == nil:
		return nil, errors.New("auth service: session store is required")
	case notifier == nil:
		return nil, errors.New("auth service: notifier is required")
	case renderer == nil:
		return nil, errors.New("auth service: message renderer is required")
	case hasher == nil:
		return nil, errors.New("auth service: password hasher is required")
	}

	if opts.Mode == "" {
		opts.Mode = domain.ModeToken
	}
	if !opts.Mode.Valid() {
		return nil, fmt.Errorf("auth service: unknown mode %q", opts.Mode)
	}
	if opts.Mode == domain.ModeToken && codec == nil {
		return nil, errors.New("auth service: token codec is required in token mode")
	}
	if opts.AccessTokenTTL <= 0 {
		opts.AccessTokenTTL = defaultAccessTokenTTL
	}
	if opts.RefreshTokenTTL <= 0 {
		opts.RefreshTokenTTL = defaultRefreshTokenTTL
	}
	if opts.VerificationWindow <= 0 {
		opts.VerificationWindow = security.DefaultGrantWindow
	}
	if opts.ResetWindow <= 0 {
		opts.ResetWindow = opts.VerificationWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	dummyHash, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("auth service: prepare dummy hash: %w", err)
	}

	return &AuthService{
		store:              store,
		notifier:           notifier,
		renderer:           renderer,
		hasher:             hasher,
		codec:              codec,
		opts:               opts,
		verificationTokens: security.NewOpaqueTokenFactory(opts.VerificationWindow, opts.Now),
		resetTokens:        security.NewOpaqueTokenFactory(opts.ResetWindow, opts.Now),
		sessionIDs:         security.NewOpaqueTokenFactory(0, opts.Now),
		dummyHash:          dummyHash,
		log:                log.With().Str("component", "auth").Logger(),
	}, nil
}

// Mode reports whether logins issue token pairs or sessions.
func (s *AuthService) Mode() domain.AuthMode {
	return s.opts.Mode
}

// Signup registers a principal and mails it an email verification token.
func (s *AuthService) Signup(ctx context.Context, in ports.SignupInput) (*ports.SignupResult, error) {
	email := domain.NormalizeIdentifier(in.Email)
	username := domain.NormalizeIdentifier(in.Username)
	if email == "" || in.Password == "" {
		return nil, fmt.Errorf("signup: %w: email and password are required", domain.ErrValidation)
	}

	if _, err := s.store.FindPrincipalByEmailOrUsername(ctx, email, username); err == nil {
		return nil, fmt.Errorf("signup: %w", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, storeErr("signup: lookup", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}

	tok, err := s.verificationTokens.Generate()
	if err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}

	created, err := s.store.CreatePrincipal(ctx, &domain.Principal{
		Email:        email,
		Username:     username,
		FullName:     in.FullName,
		PasswordHash: hash,
		Verification: tok.Grant(),
	})
	if err != nil {
		return nil, storeErr("signup: create", err)
	}

	s.sendVerification(ctx, created, tok.Unhashed)

	s.log.Info().Str("principal_id", created.ID).Msg("principal registered")
	return &ports.SignupResult{Principal: created, VerificationToken: tok.Unhashed}, nil
}

// Login checks credentials and opens a token pair or a session.
func (s *AuthService) Login(ctx context.Context, in ports.LoginInput) (*ports.LoginResult, error) {
	email := domain.NormalizeIdentifier(in.Email)
	username := domain.NormalizeIdentifier(in.Username)
	if (email == "" && username == "") || in.Password == "" {
		return nil, fmt.Errorf("login: %w: email or username, and password, are required", domain.ErrValidation)
	}

	principal, err := s.store.FindPrincipalByEmailOrUsername(ctx, email, username)
	target := s.dummyHash
	switch {
	case err == nil:
		target = principal.PasswordHash
	case errors.Is(err, domain.ErrNotFound):
		principal = nil
	default:
		return nil, storeErr("login: lookup", err)
	}

	// Always verify, so unknown identifiers and wrong passwords look alike.
	match := s.hasher.Verify(in.Password, target)
	if principal == nil || !match {
		s.log.Debug().Bool("known", principal != nil).Msg("login rejected")
		return nil, fmt.Errorf("login: %w", domain.ErrInvalidCredentials)
	}

	result := &ports.LoginResult{Principal: principal}
	if s.opts.Mode == domain.ModeSession {
		id, err := s.openSession(ctx, principal, in.UserAgent, in.IPAddress)
		if err != nil {
			return nil, err
		}
		result.SessionID = id
	} else {
		pair, err := s.issuePair(ctx, principal, nil)
		if err != nil {
			return nil, fmt.Errorf("login: %w", err)
		}
		result.TokenPair = *pair
	}

	s.log.Info().Str("principal_id", principal.ID).Str("mode", string(s.opts.Mode)).Msg("login succeeded")
	return result, nil
}

// Authenticate resolves an access token or session identifier to its
// principal. domain.ErrUnauthorized means the caller is anonymous.
func (s *AuthService) Authenticate(ctx context.Context, credential string) (*domain.Principal, error) {
	if credential == "" {
		return nil, fmt.Errorf("authenticate: %w: no credential", domain.ErrUnauthorized)
	}

	var principalID string
	if s.opts.Mode == domain.ModeSession {
		sess, err := s.store.FindSession(ctx, security.HashToken(credential))
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("authenticate: %w: unknown session", domain.ErrUnauthorized)
		}
		if err != nil {
			return nil, storeErr("authenticate: session", err)
		}
		principalID = sess.PrincipalID
	} else {
		vt, err := s.codec.Verify(credential, domain.TokenKindAccess)
		if err != nil {
			return nil, fmt.Errorf("authenticate: %w: %w", domain.ErrUnauthorized, err)
		}
		principalID = vt.PrincipalID
	}

	principal, err := s.store.FindPrincipalByID(ctx, principalID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("authenticate: %w: principal gone", domain.ErrUnauthorized)
	}
	if err != nil {
		return nil, storeErr("authenticate: principal", err)
	}
	return principal, nil
}

// Refresh rotates a refresh token: the presented token must be the
// principal's current one, and is superseded by the new pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*ports.TokenPair, error) {
	if s.opts.Mode != domain.ModeToken {
		return nil, fmt.Errorf("refresh: %w: sessions do not use refresh tokens", domain.ErrUnauthorized)
	}
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh: %w: no token", domain.ErrUnauthorized)
	}

	vt, err := s.codec.Verify(refreshToken, domain.TokenKindRefresh)
	if err != nil {
		return nil, fmt.Errorf("refresh: %w: %w", domain.ErrUnauthorized, err)
	}

	principal, err := s.store.FindPrincipalByID(ctx, vt.PrincipalID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("refresh: %w: principal gone", domain.ErrUnauthorized)
	}
	if err != nil {
		return nil, storeErr("refresh: principal", err)
	}

	if !security.Matches(refreshToken, principal.RefreshTokenHash) {
		s.log.Warn().Str("principal_id", principal.ID).Msg("superseded or revoked refresh token presented")
		return nil, fmt.Errorf("refresh: %w: token is not current", domain.ErrUnauthorized)
	}

	current := principal.RefreshTokenHash
	pair, err := s.issuePair(ctx, principal, &current)
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	return pair, nil
}

// Logout drops the refresh record (token mode) or the session (session
// mode). Access tokens already issued stay valid until they expire.
func (s *AuthService) Logout(ctx context.Context, in ports.LogoutInput) error {
	if s.opts.Mode == domain.ModeSession {
		if in.SessionID == "" {
			return fmt.Errorf("logout: %w: session id is required", domain.ErrValidation)
		}
		if err := s.store.DeleteSession(ctx, security.HashToken(in.SessionID)); err != nil {
			return storeErr("logout: delete session", err)
		}
		return nil
	}

	if in.PrincipalID == "" {
		return fmt.Errorf("logout: %w: principal id is required", domain.ErrValidation)
	}
	cleared := ""
	_, err := s.store.UpdatePrincipal(ctx, in.PrincipalID, ports.PrincipalUpdate{RefreshTokenHash: &cleared})
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return storeErr("logout: clear refresh record", err)
	}
	return nil
}

// CurrentPrincipal loads a principal by id.
func (s *AuthService) CurrentPrincipal(ctx context.Context, principalID string) (*domain.Principal, error) {
	p, err := s.store.FindPrincipalByID(ctx, principalID)
	if err != nil {
		return nil, storeErr("current principal", err)
	}
	return p, nil
}

// RequestEmailVerification replaces the pending verification grant and
// mails the new token. The previous token stops working.
func (s *AuthService) RequestEmailVerification(ctx context.Context, principalID string) (string, error) {
	p, err := s.store.FindPrincipalByID(ctx, principalID)
	if err != nil {
		return "", storeErr("request verification", err)
	}
	if p.EmailVerified {
		return "", fmt.Errorf("request verification: %w", domain.ErrAlreadyVerified)
	}

	tok, err := s.verificationTokens.Generate()
	if err != nil {
		return "", fmt.Errorf("request verification: %w", err)
	}
	if _, err := s.store.UpdatePrincipal(ctx, p.ID, ports.PrincipalUpdate{SetVerification: tok.Grant()}); err != nil {
		return "", storeErr("request verification: store grant", err)
	}

	s.sendVerification(ctx, p, tok.Unhashed)
	return tok.Unhashed, nil
}

// VerifyEmail consumes a verification token and marks the email verified.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	p, err := s.consumeGrant(ctx, domain.TokenFieldEmailVerification, token, ports.PrincipalUpdate{
		MarkEmailVerified: true,
		ClearVerification: true,
	})
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	s.log.Info().Str("principal_id", p.ID).Msg("email verified")
	return nil
}

// RequestPasswordReset stores a reset grant for the principal registered
// under email and mails the token.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	email = domain.NormalizeIdentifier(email)
	if email == "" {
		return "", fmt.Errorf("request password reset: %w: email is required", domain.ErrValidation)
	}

	p, err := s.store.FindPrincipalByEmailOrUsername(ctx, email, "")
	if err != nil {
		return "", storeErr("request password reset", err)
	}

	tok, err := s.resetTokens.Generate()
	if err != nil {
		return "", fmt.Errorf("request password reset: %w", err)
	}
	if _, err := s.store.UpdatePrincipal(ctx, p.ID, ports.PrincipalUpdate{SetPasswordReset: tok.Grant()}); err != nil {
		return "", storeErr("request password reset: store grant", err)
	}

	link, err := url.JoinPath(s.opts.ResetRedirectURL, tok.Unhashed)
	if err != nil {
		s.log.Error().Err(err).Msg("build reset link")
		link = s.opts.ResetRedirectURL + "/" + tok.Unhashed
	}
	s.send(ctx, p, link, s.renderer.PasswordReset)

	return tok.Unhashed, nil
}

// ResetPassword consumes a reset token and sets a new password. Sessions,
// the refresh record and email verification are left as they are.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("reset password: %w", err)
	}

	p, err := s.consumeGrant(ctx, domain.TokenFieldPasswordReset, token, ports.PrincipalUpdate{
		PasswordHash:       &hash,
		ClearPasswordReset: true,
	})
	if err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	s.log.Info().Str("principal_id", p.ID).Msg("password reset")
	return nil
}

// ChangePassword replaces the password of an authenticated principal after
// checking the current one.
func (s *AuthService) ChangePassword(ctx context.Context, principalID, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return fmt.Errorf("change password: %w: old and new password are required", domain.ErrValidation)
	}

	p, err := s.store.FindPrincipalByID(ctx, principalID)
	if err != nil {
		return storeErr("change password", err)
	}
	if !s.hasher.Verify(oldPassword, p.PasswordHash) {
		return fmt.Errorf("change password: %w", domain.ErrInvalidCredentials)
	}
	if oldPassword == newPassword {
		return fmt.Errorf("change password: %w", domain.ErrSamePassword)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	if _, err := s.store.UpdatePrincipal(ctx, p.ID, ports.PrincipalUpdate{PasswordHash: &hash}); err != nil {
		return storeErr("change password: store hash", err)
	}

	s.log.Info().Str("principal_id", p.ID).Msg("password changed")
	return nil
}

// issuePair signs a new access/refresh pair and overwrites the refresh
// record. With expect set, the overwrite only happens if the record still
// holds that value.
func (s *AuthService) issuePair(ctx context.Context, p *domain.Principal, expect *string) (*ports.TokenPair, error) {
	claims := map[string]string{"email": p.Email}
	if p.Username != "" {
		claims["username"] = p.Username
	}

	access, accessExp, err := s.codec.Issue(p.ID, domain.TokenKindAccess, claims, s.opts.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, refreshExp, err := s.codec.Issue(p.ID, domain.TokenKindRefresh, nil, s.opts.RefreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	hash := security.HashToken(refresh)
	_, err = s.store.UpdatePrincipal(ctx, p.ID, ports.PrincipalUpdate{
		RefreshTokenHash:       &hash,
		ExpectRefreshTokenHash: expect,
	})
	switch {
	case err == nil:
	case errors.Is(err, ports.ErrPreconditionFailed), errors.Is(err, domain.ErrNotFound):
		return nil, fmt.Errorf("%w: refresh record changed concurrently", domain.ErrUnauthorized)
	default:
		return nil, storeErr("store refresh record", err)
	}

	return &ports.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *AuthService) openSession(ctx context.Context, p *domain.Principal, userAgent, ip string) (string, error) {
	id, err := s.sessionIDs.Generate()
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	err = s.store.CreateSession(ctx, &domain.Session{
		ID:          id.Hashed,
		PrincipalID: p.ID,
		UserAgent:   userAgent,
		IPAddress:   ip,
		CreatedAt:   s.opts.Now().UTC(),
	})
	if err != nil {
		return "", storeErr("login: create session", err)
	}
	return id.Unhashed, nil
}

// consumeGrant finds the principal holding token under field and applies
// update, conditional on the grant being unchanged; update must clear it.
func (s *AuthService) consumeGrant(ctx context.Context, field domain.TokenField, token string, update ports.PrincipalUpdate) (*domain.Principal, error) {
	if token == "" {
		return nil, domain.ErrInvalidOrExpired
	}

	now := s.opts.Now()
	hashed := security.HashToken(token)
	p, err := s.store.FindPrincipalByToken(ctx, field, hashed, now)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidOrExpired
	}
	if err != nil {
		return nil, storeErr("find grant", err)
	}
	if !p.Grant(field).ActiveAt(now) {
		return nil, domain.ErrInvalidOrExpired
	}

	update.ExpectGrant = &ports.GrantMatch{Field: field, Hash: hashed}
	updated, err := s.store.UpdatePrincipal(ctx, p.ID, update)
	switch {
	case err == nil:
		return updated, nil
	case errors.Is(err, ports.ErrPreconditionFailed), errors.Is(err, domain.ErrNotFound):
		return nil, domain.ErrInvalidOrExpired
	default:
		return nil, storeErr("consume grant", err)
	}
}

func (s *AuthService) sendVerification(ctx context.Context, p *domain.Principal, token string) {
	link, err := url.JoinPath(s.opts.AppBaseURL, verifyEmailPath, token)
	if err != nil {
		s.log.Error().Err(err).Msg("build verification link")
		link = s.opts.AppBaseURL + verifyEmailPath + "/" + token
	}
	s.send(ctx, p, link, s.renderer.EmailVerification)
}

// send renders and hands off a mail. Failures are logged, never returned.
func (s *AuthService) send(ctx context.Context, p *domain.Principal, link string, render func(name, link string) (ports.Notification, error)) {
	name := p.FullName
	if name == "" {
		name = p.Username
	}
	n, err := render(name, link)
	if err != nil {
		s.log.Error().Err(err).Str("principal_id", p.ID).Msg("render notification")
		return
	}
	n.Recipient = p.Email
	s.notifier.Notify(ctx, n)
}

// storeErr passes taxonomy errors through and hides everything else behind
// domain.ErrUnavailable.
func storeErr(op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrValidation):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, domain.ErrUnavailable, err)
	}
}

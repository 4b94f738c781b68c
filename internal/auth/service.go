package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/odyssey-erp/odyssey-auth/internal/password"
	"github.com/odyssey-erp/odyssey-auth/internal/ratelimit"
	"github.com/odyssey-erp/odyssey-auth/internal/shared"
	"github.com/odyssey-erp/odyssey-auth/internal/token"
	"github.com/odyssey-erp/odyssey-auth/internal/view"
)

// Caller-facing messages. Login failures share one text so the response never
// tells which of email or password was wrong.
const (
	msgInvalidCredentials = "invalid email or password"
	msgVerifyFirst        = "verify your email first"
	msgEmailTaken         = "user with this email already exists"
	msgTokenRequired      = "token is required"
	msgTokenInvalid       = "token invalid"
	msgUserNotFound       = "user not found"
	msgInvalidSession     = "invalid session"
	msgTooManyAttempts    = "too many failed attempts, try again later"
	msgInternal           = "internal server error"
)

const verifyEmailSubject = "Verify your email address"

// Mailer hands a rendered message to the delivery channel. It must return
// quickly; delivery itself is best-effort.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// PasswordHasher hashes and checks plaintext passwords.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) (bool, error)
}

// LoginLimiter throttles repeated login failures per normalized email.
type LoginLimiter interface {
	Check(ctx context.Context, identifier string) error
	Fail(ctx context.Context, identifier string) (int, error)
	Reset(ctx context.Context, identifier string) error
}

// EmailRenderer renders the HTML body of transactional emails.
type EmailRenderer interface {
	RenderVerifyEmail(data view.VerifyEmailData) (string, error)
}

// EventRecorder counts workflow outcomes.
type EventRecorder interface {
	RecordAuthEvent(event, outcome string)
}

// AuditRecorder persists security-relevant account events.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceDeps groups the collaborators of Service. Limiter, Events and Audit
// are optional.
type ServiceDeps struct {
	Repo      Repository
	Hasher    PasswordHasher
	Signer    *token.Signer
	Mailer    Mailer
	Templates EmailRenderer
	Limiter   LoginLimiter
	Events    EventRecorder
	Audit     AuditRecorder
	Logger    *slog.Logger
	// AppURL is the externally visible base URL used in verification links.
	AppURL string
}

// Service wraps the credential lifecycle: registration, email verification,
// login, refresh and revocation.
type Service struct {
	repo      Repository
	hasher    PasswordHasher
	signer    *token.Signer
	mailer    Mailer
	templates EmailRenderer
	limiter   LoginLimiter
	events    EventRecorder
	audit     AuditRecorder
	logger    *slog.Logger
	appURL    string

	dummyOnce sync.Once
	dummyHash string
}

// NewService constructs a new Service.
func NewService(deps ServiceDeps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      deps.Repo,
		hasher:    deps.Hasher,
		signer:    deps.Signer,
		mailer:    deps.Mailer,
		templates: deps.Templates,
		limiter:   deps.Limiter,
		events:    deps.Events,
		audit:     deps.Audit,
		logger:    logger,
		appURL:    strings.TrimRight(deps.AppURL, "/"),
	}
}

// Register creates an unverified account and sends the verification link.
// A delivery failure is logged and does not undo the account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (PublicUser, error) {
	email := NormalizeEmail(in.Email)
	name := normalizeName(in.Name)
	if email == "" || in.Password == "" {
		s.record("register", "invalid")
		return PublicUser{}, shared.NewError(shared.ErrInvalidInput, "email and password are required", nil)
	}

	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		s.record("register", "conflict")
		return PublicUser{}, shared.NewError(shared.ErrConflict, msgEmailTaken, nil)
	} else if !errors.Is(err, shared.ErrNotFound) {
		return PublicUser{}, s.internal("register: lookup email", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooLong) {
			s.record("register", "invalid")
			return PublicUser{}, shared.NewError(shared.ErrInvalidInput, "password is too long", err)
		}
		return PublicUser{}, s.internal("register: hash password", err)
	}

	created, err := s.repo.Insert(ctx, &User{
		Email:            email,
		PasswordHash:     hash,
		Name:             name,
		Role:             RoleUser,
		IsEmailVerified:  false,
		TwoFactorEnabled: false,
		TokenVersion:     InitialTokenVersion,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			s.record("register", "conflict")
			return PublicUser{}, shared.NewError(shared.ErrConflict, msgEmailTaken, nil)
		}
		return PublicUser{}, s.internal("register: insert user", err)
	}

	message, err := s.verificationMessage(created)
	if err != nil {
		return PublicUser{}, s.internal("register: build verification email", err)
	}
	s.deliver(ctx, created, message)

	s.record("register", "success")
	s.auditEvent(ctx, created.ID, "user.registered", nil)
	s.logger.Info("user registered", slog.String("user_id", created.ID))
	return created.Public(), nil
}

// VerifyEmail redeems a verification token. Redeeming a token for an already
// verified account succeeds without writing.
func (s *Service) VerifyEmail(ctx context.Context, raw string) (VerifyResult, error) {
	if strings.TrimSpace(raw) == "" {
		s.record("verify_email", "invalid")
		return VerifyResult{}, shared.NewError(shared.ErrInvalidInput, msgTokenRequired, nil)
	}
	claims, err := s.signer.Verify(token.KindVerifyEmail, raw)
	if err != nil {
		s.record("verify_email", "invalid")
		if errors.Is(err, token.ErrExpired) {
			return VerifyResult{}, shared.NewError(shared.ErrUnauthorized, msgTokenInvalid, err)
		}
		return VerifyResult{}, shared.NewError(shared.ErrInvalidInput, msgTokenInvalid, err)
	}

	user, err := s.repo.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.record("verify_email", "not_found")
			return VerifyResult{}, shared.NewError(shared.ErrNotFound, msgUserNotFound, nil)
		}
		return VerifyResult{}, s.internal("verify email: lookup user", err)
	}
	if user.IsEmailVerified {
		s.record("verify_email", "already_verified")
		return VerifyResult{User: user.Public(), AlreadyVerified: true}, nil
	}

	changed, err := s.repo.MarkEmailVerified(ctx, user.ID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.record("verify_email", "not_found")
			return VerifyResult{}, shared.NewError(shared.ErrNotFound, msgUserNotFound, nil)
		}
		return VerifyResult{}, s.internal("verify email: mark verified", err)
	}
	user.IsEmailVerified = true
	if !changed {
		// A concurrent redemption won the race; the outcome is the same.
		s.record("verify_email", "already_verified")
		return VerifyResult{User: user.Public(), AlreadyVerified: true}, nil
	}
	s.record("verify_email", "success")
	s.auditEvent(ctx, user.ID, "user.email_verified", nil)
	s.logger.Info("email verified", slog.String("user_id", user.ID))
	return VerifyResult{User: user.Public()}, nil
}

// Login authenticates email and password and issues an access/refresh pair.
// The unverified check runs only after the password matched.
func (s *Service) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	email := NormalizeEmail(in.Email)
	if s.limiter != nil && email != "" {
		if err := s.limiter.Check(ctx, email); err != nil {
			if errors.Is(err, ratelimit.ErrRateLimited) {
				s.record("login", "rate_limited")
				return LoginResult{}, shared.NewError(shared.ErrRateLimited, msgTooManyAttempts, nil)
			}
			s.logger.Warn("login limiter check", slog.Any("error", err))
		}
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			return LoginResult{}, s.internal("login: lookup email", err)
		}
		// Burn a comparable amount of time so response latency does not
		// reveal whether the address is registered.
		_, _ = s.hasher.Verify(in.Password, s.timingHash())
		s.failLogin(ctx, email)
		return LoginResult{}, shared.NewError(shared.ErrUnauthorized, msgInvalidCredentials, nil)
	}

	ok, err := s.hasher.Verify(in.Password, user.PasswordHash)
	if err != nil {
		return LoginResult{}, s.internal("login: verify password", err)
	}
	if !ok {
		s.failLogin(ctx, email)
		s.auditEvent(ctx, user.ID, "user.login_failed", map[string]any{"reason": "invalid_password"})
		return LoginResult{}, shared.NewError(shared.ErrUnauthorized, msgInvalidCredentials, nil)
	}

	if !user.IsEmailVerified {
		s.record("login", "unverified")
		s.auditEvent(ctx, user.ID, "user.login_failed", map[string]any{"reason": "unverified"})
		return LoginResult{}, shared.NewError(shared.ErrForbidden, msgVerifyFirst, nil)
	}

	result, err := s.issuePair(user)
	if err != nil {
		return LoginResult{}, s.internal("login: issue tokens", err)
	}
	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, email); err != nil {
			s.logger.Warn("login limiter reset", slog.Any("error", err))
		}
	}
	s.record("login", "success")
	s.auditEvent(ctx, user.ID, "user.login", nil)
	return result, nil
}

// Refresh redeems a refresh token for a new access token and a rotated
// refresh token. Tokens minted before the last revocation are rejected.
func (s *Service) Refresh(ctx context.Context, raw string) (LoginResult, error) {
	claims, err := s.signer.Verify(token.KindRefresh, raw)
	if err != nil {
		s.record("refresh", "invalid")
		return LoginResult{}, shared.NewError(shared.ErrUnauthorized, msgInvalidSession, err)
	}
	user, err := s.currentUser(ctx, claims)
	if err != nil {
		s.record("refresh", "invalid")
		return LoginResult{}, err
	}
	if !user.IsEmailVerified {
		s.record("refresh", "unverified")
		return LoginResult{}, shared.NewError(shared.ErrForbidden, msgVerifyFirst, nil)
	}
	result, err := s.issuePair(user)
	if err != nil {
		return LoginResult{}, s.internal("refresh: issue tokens", err)
	}
	s.record("refresh", "success")
	return result, nil
}

// Authenticate validates an access token against the user's current token
// version and returns the caller identity.
func (s *Service) Authenticate(ctx context.Context, raw string) (shared.Principal, error) {
	claims, err := s.signer.Verify(token.KindAccess, raw)
	if err != nil {
		return shared.Principal{}, shared.NewError(shared.ErrUnauthorized, msgInvalidSession, err)
	}
	user, err := s.currentUser(ctx, claims)
	if err != nil {
		return shared.Principal{}, err
	}
	return shared.Principal{UserID: user.ID, Role: claims.Role, TokenVersion: claims.Version}, nil
}

// RevokeSessions increments the user's token version, invalidating every
// access and refresh token issued before. It returns the new version.
func (s *Service) RevokeSessions(ctx context.Context, userID string) (int, error) {
	version, err := s.repo.IncrementTokenVersion(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return 0, shared.NewError(shared.ErrNotFound, msgUserNotFound, nil)
		}
		return 0, s.internal("revoke sessions", err)
	}
	s.record("revoke_sessions", "success")
	s.auditEvent(ctx, userID, "user.sessions_revoked", map[string]any{"token_version": version})
	s.logger.Info("sessions revoked", slog.String("user_id", userID), slog.Int("token_version", version))
	return version, nil
}

// SetRole changes the user's role and revokes existing sessions so the new
// role only appears in freshly issued access tokens.
func (s *Service) SetRole(ctx context.Context, userID string, role Role) (PublicUser, error) {
	if !role.Valid() {
		return PublicUser{}, shared.NewError(shared.ErrInvalidInput, "unknown role", nil)
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return PublicUser{}, shared.NewError(shared.ErrNotFound, msgUserNotFound, nil)
		}
		return PublicUser{}, s.internal("set role: lookup user", err)
	}
	if user.Role == role {
		return user.Public(), nil
	}
	user.Role = role
	if err := s.repo.Update(ctx, user); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return PublicUser{}, shared.NewError(shared.ErrNotFound, msgUserNotFound, nil)
		}
		return PublicUser{}, s.internal("set role: update user", err)
	}
	if _, err := s.RevokeSessions(ctx, user.ID); err != nil {
		return PublicUser{}, err
	}
	s.auditEvent(ctx, user.ID, "user.role_changed", map[string]any{"role": string(role)})
	s.logger.Info("role changed", slog.String("user_id", user.ID), slog.String("role", string(role)))
	return user.Public(), nil
}

// ResendVerification mints a fresh verification token for userID and hands it
// to the mailer. Verified accounts are a no-op.
func (s *Service) ResendVerification(ctx context.Context, userID string) error {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NewError(shared.ErrNotFound, msgUserNotFound, nil)
		}
		return s.internal("resend verification: lookup user", err)
	}
	return s.resend(ctx, user)
}

// ResendVerificationByEmail is the public entry point for resending. Unknown
// addresses succeed silently so the endpoint cannot be used for enumeration.
func (s *Service) ResendVerificationByEmail(ctx context.Context, email string) error {
	user, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return s.internal("resend verification: lookup email", err)
	}
	return s.resend(ctx, user)
}

// Profile returns the public projection for userID.
func (s *Service) Profile(ctx context.Context, userID string) (PublicUser, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return PublicUser{}, shared.NewError(shared.ErrNotFound, msgUserNotFound, nil)
		}
		return PublicUser{}, s.internal("profile: lookup user", err)
	}
	return user.Public(), nil
}

func (s *Service) resend(ctx context.Context, user *User) error {
	if user.IsEmailVerified {
		s.record("resend_verification", "already_verified")
		return nil
	}
	message, err := s.verificationMessage(user)
	if err != nil {
		return s.internal("resend verification: build email", err)
	}
	s.deliver(ctx, user, message)
	s.record("resend_verification", "success")
	s.auditEvent(ctx, user.ID, "user.verification_resent", nil)
	return nil
}

func (s *Service) currentUser(ctx context.Context, claims *token.Claims) (*User, error) {
	user, err := s.repo.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewError(shared.ErrUnauthorized, msgInvalidSession, nil)
		}
		return nil, s.internal("lookup token subject", err)
	}
	if claims.Version != user.TokenVersion {
		return nil, shared.NewError(shared.ErrUnauthorized, msgInvalidSession, nil)
	}
	return user, nil
}

func (s *Service) issuePair(user *User) (LoginResult, error) {
	access, err := s.signer.IssueAccess(user.ID, string(user.Role), user.TokenVersion)
	if err != nil {
		return LoginResult{}, err
	}
	refresh, err := s.signer.IssueRefresh(user.ID, user.TokenVersion)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{
		AccessToken:      access.Value,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     refresh.Value,
		RefreshExpiresAt: refresh.ExpiresAt,
		User:             user.Public(),
	}, nil
}

type outgoingEmail struct {
	subject string
	body    string
}

func (s *Service) verificationMessage(user *User) (outgoingEmail, error) {
	issued, err := s.signer.IssueVerifyEmail(user.ID)
	if err != nil {
		return outgoingEmail{}, err
	}
	link, err := s.verificationLink(issued.Value)
	if err != nil {
		return outgoingEmail{}, err
	}
	body, err := s.templates.RenderVerifyEmail(view.VerifyEmailData{
		Name:      user.Name,
		Link:      link,
		ExpiresAt: issued.ExpiresAt,
	})
	if err != nil {
		return outgoingEmail{}, err
	}
	return outgoingEmail{subject: verifyEmailSubject, body: body}, nil
}

func (s *Service) verificationLink(rawToken string) (string, error) {
	base, err := url.Parse(s.appURL)
	if err != nil {
		return "", fmt.Errorf("auth: parse app url: %w", err)
	}
	base.Path = path.Join("/", base.Path, "auth", "verify-email")
	query := url.Values{}
	query.Set("token", rawToken)
	base.RawQuery = query.Encode()
	return base.String(), nil
}

func (s *Service) deliver(ctx context.Context, user *User, message outgoingEmail) {
	if s.mailer == nil {
		s.logger.Warn("mailer not configured, verification email dropped", slog.String("user_id", user.ID))
		return
	}
	if err := s.mailer.Send(ctx, user.Email, message.subject, message.body); err != nil {
		s.record("verification_email", "failed")
		s.logger.Warn("send verification email", slog.String("user_id", user.ID), slog.Any("error", err))
		return
	}
	s.record("verification_email", "queued")
}

func (s *Service) failLogin(ctx context.Context, email string) {
	s.record("login", "invalid_credentials")
	if s.limiter == nil || email == "" {
		return
	}
	if _, err := s.limiter.Fail(ctx, email); err != nil {
		s.logger.Warn("login limiter fail", slog.Any("error", err))
	}
}

func (s *Service) timingHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("odyssey-auth-timing-placeholder")
		if err != nil {
			s.logger.Warn("timing hash", slog.Any("error", err))
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func (s *Service) internal(op string, err error) error {
	s.logger.Error(op, slog.Any("error", err))
	return shared.NewError(shared.ErrInternal, msgInternal, err)
}

func (s *Service) auditEvent(ctx context.Context, subjectID, action string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entry := shared.AuditLog{Action: action, SubjectID: subjectID, Meta: meta}
	if principal, ok := shared.PrincipalFromContext(ctx); ok {
		entry.ActorID = principal.UserID
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) record(event, outcome string) {
	if s.events != nil {
		s.events.RecordAuthEvent(event, outcome)
	}
}

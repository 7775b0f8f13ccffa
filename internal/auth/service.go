package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/gatewise/gatewise/internal/authz"
)

// Login failure modes surfaced to the handler.
var (
	// ErrInvalidCredentials covers unknown accounts, wrong passwords and
	// deactivated accounts uniformly, so a caller cannot probe which it was.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrLockedOut indicates too many recent failures for this email/ip.
	ErrLockedOut = errors.New("auth: too many failed attempts")
	// ErrUnconfirmed indicates a correct password on an unconfirmed account.
	ErrUnconfirmed = errors.New("auth: account not confirmed")
	// ErrApplicationPending indicates the signup application awaits review.
	ErrApplicationPending = errors.New("auth: application pending")
	// ErrApplicationRejected indicates the signup application was declined.
	ErrApplicationRejected = errors.New("auth: application rejected")
)

// SessionIssuer is the session store surface the login flow needs.
type SessionIssuer interface {
	Issue(p authz.Principal) string
	Invalidate(token string)
	TTL() time.Duration
}

// MailEnqueuer queues transactional email delivery.
type MailEnqueuer interface {
	EnqueueEmail(ctx context.Context, to, subject, body string) error
}

// Service wraps authentication business rules. Credential verification
// happens here, strictly before a session is ever issued.
type Service struct {
	repo     Repository
	sessions SessionIssuer
	resolver *authz.Resolver
	throttle *Throttle
	mail     MailEnqueuer
	logger   *slog.Logger
}

// NewService constructs a Service. throttle and mail may be nil; the
// corresponding steps are skipped.
func NewService(repo Repository, sessions SessionIssuer, resolver *authz.Resolver, throttle *Throttle, mail MailEnqueuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, sessions: sessions, resolver: resolver, throttle: throttle, mail: mail, logger: logger}
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	Token     string
	ExpiresIn time.Duration
	Principal authz.Principal
}

// ResolveAccount classifies an email identifier into exactly one account
// status variant.
func (s *Service) ResolveAccount(ctx context.Context, email string) (AccountLookup, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err == nil {
		status := StatusRegistered
		if !user.Confirmed {
			status = StatusUnconfirmed
		}
		return AccountLookup{Status: status, User: *user}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return AccountLookup{}, err
	}

	app, err := s.repo.FindApplicationByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return AccountLookup{Status: StatusNotFound}, nil
		}
		return AccountLookup{}, err
	}
	status := StatusApplicationPending
	if app.Rejected {
		status = StatusApplicationRejected
	}
	return AccountLookup{Status: status, Application: *app}, nil
}

// Authenticate validates credentials and, on success, resolves the effective
// permission set and issues a session. The principal snapshot is immutable
// for the session's lifetime; later role or override edits apply at the
// next login.
func (s *Service) Authenticate(ctx context.Context, email, password, ip, ua string) (LoginResult, error) {
	if s.throttle != nil {
		allowed, err := s.throttle.Allow(ctx, email, ip)
		if err != nil {
			// Fail open: the throttle protects against brute force, it must
			// not turn a redis outage into a login outage.
			s.logger.Warn("login throttle check", slog.Any("error", err))
		} else if !allowed {
			return LoginResult{}, ErrLockedOut
		}
	}

	lookup, err := s.ResolveAccount(ctx, email)
	if err != nil {
		return LoginResult{}, err
	}

	switch lookup.Status {
	case StatusNotFound:
		return LoginResult{}, s.fail(ctx, email, ip, ErrInvalidCredentials)
	case StatusApplicationPending, StatusApplicationRejected:
		// Reveal the application state only to someone holding the password
		// it was registered with.
		if bcrypt.CompareHashAndPassword([]byte(lookup.Application.PasswordHash), []byte(password)) != nil {
			return LoginResult{}, s.fail(ctx, email, ip, ErrInvalidCredentials)
		}
		if lookup.Status == StatusApplicationRejected {
			return LoginResult{}, ErrApplicationRejected
		}
		return LoginResult{}, ErrApplicationPending
	}

	user := lookup.User
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return LoginResult{}, s.fail(ctx, email, ip, ErrInvalidCredentials)
	}
	if lookup.Status == StatusUnconfirmed {
		return LoginResult{}, ErrUnconfirmed
	}
	if !user.IsActive {
		return LoginResult{}, s.fail(ctx, email, ip, ErrInvalidCredentials)
	}

	permissions, err := s.resolver.Resolve(user.Role, user.Overrides)
	if err != nil {
		// An unknown role or stale override code at this point is broken
		// configuration, not a client mistake.
		return LoginResult{}, err
	}

	if s.throttle != nil {
		if err := s.throttle.Reset(ctx, email, ip); err != nil {
			s.logger.Warn("login throttle reset", slog.Any("error", err))
		}
	}

	principal := authz.Principal{
		UserID:      user.ID,
		Email:       user.Email,
		Role:        user.Role,
		Permissions: permissions,
	}
	token := s.sessions.Issue(principal)
	expiresAt := time.Now().Add(s.sessions.TTL())
	if err := s.repo.CreateSessionAudit(ctx, TokenHash(token), user.ID, expiresAt, ip, ua); err != nil {
		s.logger.Warn("record session audit", slog.Any("error", err))
	}

	return LoginResult{Token: token, ExpiresIn: s.sessions.TTL(), Principal: principal}, nil
}

// fail records a failed attempt against the throttle and passes cause
// through.
func (s *Service) fail(ctx context.Context, email, ip string, cause error) error {
	if s.throttle != nil {
		if err := s.throttle.RecordFailure(ctx, email, ip); err != nil {
			s.logger.Warn("record login failure", slog.Any("error", err))
		}
	}
	return cause
}

// Logout invalidates the presented token. Idempotent: invalidating an
// absent or expired token succeeds silently.
func (s *Service) Logout(ctx context.Context, token string) {
	s.sessions.Invalidate(token)
	if err := s.repo.DeleteSessionAudit(ctx, TokenHash(token)); err != nil {
		s.logger.Warn("delete session audit", slog.Any("error", err))
	}
}

// Apply files a signup application and queues a confirmation email.
func (s *Service) Apply(ctx context.Context, email, name, password string) (int64, error) {
	lookup, err := s.ResolveAccount(ctx, email)
	if err != nil {
		return 0, err
	}
	switch lookup.Status {
	case StatusRegistered, StatusUnconfirmed:
		return 0, ErrDuplicate
	case StatusApplicationPending:
		return 0, ErrApplicationPending
	case StatusApplicationRejected:
		return 0, ErrApplicationRejected
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, err
	}
	id, err := s.repo.CreateApplication(ctx, email, name, string(hash))
	if err != nil {
		return 0, err
	}
	if s.mail != nil {
		body := "Your Gatewise access application was received and is awaiting review."
		if err := s.mail.EnqueueEmail(ctx, email, "Application received", body); err != nil {
			s.logger.Warn("enqueue application email", slog.Any("error", err))
		}
	}
	return id, nil
}

// TokenHash derives the storage key for a session's audit row. Raw tokens
// are never persisted.
func TokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gatewise/gatewise/internal/authz"
)

// SessionRevoker removes live sessions for a user. Satisfied by the session
// store.
type SessionRevoker interface {
	InvalidateUser(userID int64) int
}

// MailEnqueuer queues transactional email delivery.
type MailEnqueuer interface {
	EnqueueEmail(ctx context.Context, to, subject, body string) error
}

// Service orchestrates user administration.
type Service struct {
	repo     Repository
	catalog  *authz.Catalog
	roles    *authz.RoleCatalog
	sessions SessionRevoker
	mail     MailEnqueuer
	logger   *slog.Logger
}

// NewService constructs a Service. sessions and mail may be nil.
func NewService(repo Repository, catalog *authz.Catalog, roles *authz.RoleCatalog, sessions SessionRevoker, mail MailEnqueuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, catalog: catalog, roles: roles, sessions: sessions, mail: mail, logger: logger}
}

// List returns users matching the filters. The permission filter applies
// the same positive-then-subtract-shield algebra the grant resolver uses,
// as a set query: users whose role grants the code by default, plus users
// with an explicit grant whose expansion covers it, minus users holding a
// shield whose expansion covers it. An explicit role filter intersects.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]User, error) {
	if filters.Permission != "" && !s.catalog.Contains(filters.Permission) {
		return nil, fmt.Errorf("%w: %q", authz.ErrUnknownPermission, filters.Permission)
	}
	if filters.Role != "" && !s.roles.Contains(filters.Role) {
		return nil, fmt.Errorf("%w: %q", authz.ErrUnknownRole, filters.Role)
	}

	all, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	var impliedRoles map[authz.Role]struct{}
	if filters.Permission != "" {
		granting := s.roles.RolesGranting(filters.Permission)
		impliedRoles = make(map[authz.Role]struct{}, len(granting))
		for _, role := range granting {
			impliedRoles[role] = struct{}{}
		}
	}

	out := make([]User, 0, len(all))
	for _, u := range all {
		if filters.Role != "" && u.Role != filters.Role {
			continue
		}
		if filters.Permission != "" {
			holds, err := s.holdsPermission(u, filters.Permission, impliedRoles)
			if err != nil {
				return nil, err
			}
			if !holds {
				continue
			}
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *Service) holdsPermission(u User, code string, impliedRoles map[authz.Role]struct{}) (bool, error) {
	_, positive := impliedRoles[u.Role]
	shielded := false
	for _, ov := range u.Overrides {
		expansion, err := s.catalog.Expand(ov.Code)
		if err != nil {
			// A stored override referencing a code no longer in the catalog
			// is a configuration defect. The grant resolver refuses such
			// overrides at login; fail here too instead of returning a
			// filter result computed from a broken reference.
			return false, fmt.Errorf("user %d: %w", u.ID, err)
		}
		if !expansion.Has(code) {
			continue
		}
		if ov.Shield {
			shielded = true
		} else {
			positive = true
		}
	}
	return positive && !shielded, nil
}

// Get fetches one user.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	return s.repo.GetUser(ctx, id)
}

// EffectivePermissions resolves a user's current effective set from the
// stored snapshot. Administrative view only; live sessions keep the set
// they were issued with.
func (s *Service) EffectivePermissions(ctx context.Context, id int64, resolver *authz.Resolver) ([]string, error) {
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	set, err := resolver.Resolve(u.Role, u.Overrides)
	if err != nil {
		return nil, err
	}
	return set.Codes(), nil
}

// ChangeRole assigns a new role. Takes effect at the user's next login.
func (s *Service) ChangeRole(ctx context.Context, id int64, role authz.Role) error {
	if !s.roles.Contains(role) {
		return fmt.Errorf("%w: %q", authz.ErrUnknownRole, role)
	}
	return s.repo.SetRole(ctx, id, role)
}

// Deactivate disables the account and revokes its live sessions.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		return err
	}
	if s.sessions != nil {
		revoked := s.sessions.InvalidateUser(id)
		s.logger.Info("deactivated user", slog.Int64("user_id", id), slog.Int("sessions_revoked", revoked))
	}
	return nil
}

// PutOverride creates or replaces a permission override. The code is
// validated against the catalog here, at the write boundary, so the grant
// resolver can assume stored input is sound. Re-submitting an identical
// override is a conflict.
func (s *Service) PutOverride(ctx context.Context, userID int64, code string, shield bool) error {
	if !s.catalog.Contains(code) {
		return fmt.Errorf("%w: %q", authz.ErrUnknownPermission, code)
	}
	existingShield, found, err := s.repo.GetOverride(ctx, userID, code)
	if err != nil {
		return err
	}
	if found && existingShield == shield {
		return ErrDuplicate
	}
	return s.repo.UpsertOverride(ctx, userID, code, shield)
}

// RemoveOverride deletes an override. Idempotent.
func (s *Service) RemoveOverride(ctx context.Context, userID int64, code string) error {
	if !s.catalog.Contains(code) {
		return fmt.Errorf("%w: %q", authz.ErrUnknownPermission, code)
	}
	return s.repo.DeleteOverride(ctx, userID, code)
}

// ListApplications returns all signup applications.
func (s *Service) ListApplications(ctx context.Context) ([]Application, error) {
	return s.repo.ListApplications(ctx)
}

// ApproveApplication promotes an application to an account with the given
// role and notifies the applicant.
func (s *Service) ApproveApplication(ctx context.Context, id int64, role authz.Role) error {
	if !s.roles.Contains(role) {
		return fmt.Errorf("%w: %q", authz.ErrUnknownRole, role)
	}
	email, err := s.repo.ApproveApplication(ctx, id, role)
	if err != nil {
		return err
	}
	s.notify(ctx, email, "Application approved", "Your Gatewise access application was approved. You can now log in.")
	return nil
}

// RejectApplication declines an application and notifies the applicant.
func (s *Service) RejectApplication(ctx context.Context, id int64) error {
	email, err := s.repo.RejectApplication(ctx, id)
	if err != nil {
		return err
	}
	s.notify(ctx, email, "Application declined", "Your Gatewise access application was declined.")
	return nil
}

func (s *Service) notify(ctx context.Context, to, subject, body string) {
	if s.mail == nil {
		return
	}
	if err := s.mail.EnqueueEmail(ctx, to, subject, body); err != nil {
		s.logger.Warn("enqueue notification", slog.String("to", to), slog.Any("error", err))
	}
}

// IsNotFound reports whether err is the repository not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

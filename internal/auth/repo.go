package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatewise/gatewise/internal/authz"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("auth: not found")

// ErrDuplicate indicates a unique constraint violation.
var ErrDuplicate = errors.New("auth: duplicate")

// Repository defines persistence operations for the auth module. The login
// flow reads a snapshot of (user, role, overrides) and resolves permissions
// from that snapshot only; it never re-queries mid-session.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindApplicationByEmail(ctx context.Context, email string) (*Application, error)
	CreateApplication(ctx context.Context, email, name, passwordHash string) (int64, error)
	CreateSessionAudit(ctx context.Context, tokenHash string, userID int64, expiresAt time.Time, ip, ua string) error
	DeleteSessionAudit(ctx context.Context, tokenHash string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByEmail fetches a user with its permission overrides.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	const query = `
		SELECT id, email, password_hash, role, is_active, confirmed, created_at, updated_at
		FROM users WHERE lower(email) = lower($1)`
	var user User
	var createdAt, updatedAt pgtype.Timestamptz
	err := r.pool.QueryRow(ctx, query, email).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Role,
		&user.IsActive, &user.Confirmed, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	user.CreatedAt = createdAt.Time
	user.UpdatedAt = updatedAt.Time

	overrides, err := r.loadOverrides(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.Overrides = overrides
	return &user, nil
}

func (r *PGRepository) loadOverrides(ctx context.Context, userID int64) ([]authz.Override, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT permission_code, shield FROM permission_overrides WHERE user_id = $1 ORDER BY permission_code`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var overrides []authz.Override
	for rows.Next() {
		var ov authz.Override
		if err := rows.Scan(&ov.Code, &ov.Shield); err != nil {
			return nil, err
		}
		overrides = append(overrides, ov)
	}
	return overrides, rows.Err()
}

// FindApplicationByEmail fetches a signup application.
func (r *PGRepository) FindApplicationByEmail(ctx context.Context, email string) (*Application, error) {
	const query = `
		SELECT id, email, name, password_hash, rejected, created_at, decided_at
		FROM signup_applications WHERE lower(email) = lower($1)`
	var app Application
	var createdAt pgtype.Timestamptz
	var decidedAt pgtype.Timestamptz
	err := r.pool.QueryRow(ctx, query, email).Scan(
		&app.ID, &app.Email, &app.Name, &app.PasswordHash,
		&app.Rejected, &createdAt, &decidedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	app.CreatedAt = createdAt.Time
	if decidedAt.Valid {
		t := decidedAt.Time
		app.DecidedAt = &t
	}
	return &app, nil
}

// CreateApplication stores a new signup application.
func (r *PGRepository) CreateApplication(ctx context.Context, email, name, passwordHash string) (int64, error) {
	const query = `
		INSERT INTO signup_applications (email, name, password_hash, created_at)
		VALUES ($1, $2, $3, now()) RETURNING id`
	var id int64
	if err := r.pool.QueryRow(ctx, query, email, name, passwordHash).Scan(&id); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicate
		}
		return 0, err
	}
	return id, nil
}

// CreateSessionAudit records an issued session for the audit trail. The
// in-memory store stays authoritative for liveness; this row only supports
// operational review and scheduled cleanup.
func (r *PGRepository) CreateSessionAudit(ctx context.Context, tokenHash string, userID int64, expiresAt time.Time, ip, ua string) error {
	const query = `
		INSERT INTO session_audit (token_hash, user_id, created_at, expires_at, ip, ua)
		VALUES ($1, $2, now(), $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, tokenHash, userID,
		pgtype.Timestamptz{Time: expiresAt.UTC(), Valid: true},
		pgtype.Text{String: ip, Valid: ip != ""},
		pgtype.Text{String: ua, Valid: ua != ""},
	)
	return err
}

// DeleteSessionAudit removes the audit row on logout.
func (r *PGRepository) DeleteSessionAudit(ctx context.Context, tokenHash string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM session_audit WHERE token_hash = $1`, tokenHash)
	return err
}

var _ Repository = (*PGRepository)(nil)

package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatewise/gatewise/internal/authz"
	"github.com/gatewise/gatewise/internal/platform/db"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("users: not found")

// ErrDuplicate indicates a unique constraint violation.
var ErrDuplicate = errors.New("users: duplicate")

// Repository defines persistence operations for user administration.
type Repository interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (*User, error)
	SetRole(ctx context.Context, id int64, role authz.Role) error
	SetActive(ctx context.Context, id int64, active bool) error
	GetOverride(ctx context.Context, userID int64, code string) (shield, found bool, err error)
	UpsertOverride(ctx context.Context, userID int64, code string, shield bool) error
	DeleteOverride(ctx context.Context, userID int64, code string) error
	ListApplications(ctx context.Context) ([]Application, error)
	ApproveApplication(ctx context.Context, id int64, role authz.Role) (email string, err error)
	RejectApplication(ctx context.Context, id int64) (email string, err error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// ListUsers returns all users with their overrides attached.
func (r *PGRepository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, email, name, role, is_active, created_at, updated_at FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	index := make(map[int64]int)
	for rows.Next() {
		var u User
		var createdAt, updatedAt pgtype.Timestamptz
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.IsActive, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		u.CreatedAt = createdAt.Time
		u.UpdatedAt = updatedAt.Time
		index[u.ID] = len(users)
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ovRows, err := r.pool.Query(ctx,
		`SELECT user_id, permission_code, shield FROM permission_overrides ORDER BY user_id, permission_code`)
	if err != nil {
		return nil, err
	}
	defer ovRows.Close()
	for ovRows.Next() {
		var userID int64
		var ov authz.Override
		if err := ovRows.Scan(&userID, &ov.Code, &ov.Shield); err != nil {
			return nil, err
		}
		if i, ok := index[userID]; ok {
			users[i].Overrides = append(users[i].Overrides, ov)
		}
	}
	return users, ovRows.Err()
}

// GetUser fetches one user with overrides.
func (r *PGRepository) GetUser(ctx context.Context, id int64) (*User, error) {
	var u User
	var createdAt, updatedAt pgtype.Timestamptz
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, name, role, is_active, created_at, updated_at FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.IsActive, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.CreatedAt = createdAt.Time
	u.UpdatedAt = updatedAt.Time

	rows, err := r.pool.Query(ctx,
		`SELECT permission_code, shield FROM permission_overrides WHERE user_id = $1 ORDER BY permission_code`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var ov authz.Override
		if err := rows.Scan(&ov.Code, &ov.Shield); err != nil {
			return nil, err
		}
		u.Overrides = append(u.Overrides, ov)
	}
	return &u, rows.Err()
}

// SetRole updates the user's role.
func (r *PGRepository) SetRole(ctx context.Context, id int64, role authz.Role) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET role = $2, updated_at = now() WHERE id = $1`, id, role)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetActive flips the user's active flag.
func (r *PGRepository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET is_active = $2, updated_at = now() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetOverride fetches one override row.
func (r *PGRepository) GetOverride(ctx context.Context, userID int64, code string) (bool, bool, error) {
	var shield bool
	err := r.pool.QueryRow(ctx,
		`SELECT shield FROM permission_overrides WHERE user_id = $1 AND permission_code = $2`,
		userID, code).Scan(&shield)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, false, nil
		}
		return false, false, err
	}
	return shield, true, nil
}

// UpsertOverride creates or replaces an override.
func (r *PGRepository) UpsertOverride(ctx context.Context, userID int64, code string, shield bool) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO permission_overrides (user_id, permission_code, shield, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, permission_code) DO UPDATE SET shield = EXCLUDED.shield`,
		userID, code, shield)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// DeleteOverride removes an override. Removing an absent override is not an
// error.
func (r *PGRepository) DeleteOverride(ctx context.Context, userID int64, code string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM permission_overrides WHERE user_id = $1 AND permission_code = $2`,
		userID, code)
	return err
}

// ListApplications returns all signup applications, pending first.
func (r *PGRepository) ListApplications(ctx context.Context) ([]Application, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, email, name, rejected, created_at, decided_at
		FROM signup_applications ORDER BY rejected, created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var apps []Application
	for rows.Next() {
		var app Application
		var createdAt, decidedAt pgtype.Timestamptz
		if err := rows.Scan(&app.ID, &app.Email, &app.Name, &app.Rejected, &createdAt, &decidedAt); err != nil {
			return nil, err
		}
		app.CreatedAt = createdAt.Time
		if decidedAt.Valid {
			t := decidedAt.Time
			app.DecidedAt = &t
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

// ApproveApplication promotes a pending application to an active, confirmed
// user with the assigned role. The promotion and the application removal
// happen in one transaction.
func (r *PGRepository) ApproveApplication(ctx context.Context, id int64, role authz.Role) (string, error) {
	var email string
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var name, passwordHash string
		var rejected bool
		err := tx.QueryRow(ctx,
			`SELECT email, name, password_hash, rejected FROM signup_applications WHERE id = $1 FOR UPDATE`, id).
			Scan(&email, &name, &passwordHash, &rejected)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if rejected {
			return ErrNotFound
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO users (email, name, password_hash, role, is_active, confirmed, created_at, updated_at)
			VALUES ($1, $2, $3, $4, true, true, now(), now())`,
			email, name, passwordHash, role)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrDuplicate
			}
			return err
		}
		_, err = tx.Exec(ctx, `DELETE FROM signup_applications WHERE id = $1`, id)
		return err
	})
	if err != nil {
		return "", err
	}
	return email, nil
}

// RejectApplication marks a pending application as declined.
func (r *PGRepository) RejectApplication(ctx context.Context, id int64) (string, error) {
	var email string
	err := r.pool.QueryRow(ctx, `
		UPDATE signup_applications SET rejected = true, decided_at = now()
		WHERE id = $1 AND NOT rejected RETURNING email`, id).Scan(&email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return email, nil
}

var _ Repository = (*PGRepository)(nil)

package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionAuditPurgeJob removes audit rows for sessions that can no longer be
// live. The in-memory store evicts its own entries; this keeps the postgres
// trail from growing without bound.
type SessionAuditPurgeJob struct {
	Pool   *pgxpool.Pool
	Logger *slog.Logger
	// Retention keeps expired rows around for review before deletion.
	Retention time.Duration
	clock     func() time.Time
}

// NewSessionAuditPurgeJob initialises the purge handler.
func NewSessionAuditPurgeJob(pool *pgxpool.Pool, logger *slog.Logger, retention time.Duration) *SessionAuditPurgeJob {
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &SessionAuditPurgeJob{
		Pool:      pool,
		Logger:    logger,
		Retention: retention,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the purge.
func (j *SessionAuditPurgeJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("session audit purge: handler not configured")
	}
	cutoff := j.clock().Add(-j.Retention)
	tag, err := j.Pool.Exec(ctx,
		`DELETE FROM session_audit WHERE expires_at < $1`, cutoff)
	if err != nil {
		return err
	}
	if j.Logger != nil && tag.RowsAffected() > 0 {
		j.Logger.Info("purged session audit rows", slog.Int64("rows", tag.RowsAffected()))
	}
	return nil
}

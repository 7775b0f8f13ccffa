package registry

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("registry: not found")

// Repository provides PostgreSQL backed persistence for the registries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListProviders returns all providers ordered by name.
func (r *Repository) ListProviders(ctx context.Context) ([]Provider, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, kind, base_url, enabled, updated_at FROM providers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var providers []Provider
	for rows.Next() {
		var p Provider
		var updatedAt pgtype.Timestamptz
		if err := rows.Scan(&p.ID, &p.Name, &p.Kind, &p.BaseURL, &p.Enabled, &updatedAt); err != nil {
			return nil, err
		}
		p.UpdatedAt = updatedAt.Time
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

// UpsertProvider creates or updates a provider by name.
func (r *Repository) UpsertProvider(ctx context.Context, name, kind, baseURL string, enabled bool) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO providers (name, kind, base_url, enabled, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (name) DO UPDATE
		SET kind = EXCLUDED.kind, base_url = EXCLUDED.base_url,
		    enabled = EXCLUDED.enabled, updated_at = now()`,
		name, kind, baseURL, enabled)
	return err
}

// ListModels returns all models with their provider name.
func (r *Repository) ListModels(ctx context.Context) ([]Model, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT m.id, p.name, m.name, m.enabled, m.updated_at
		FROM models m JOIN providers p ON p.id = m.provider_id
		ORDER BY p.name, m.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var models []Model
	for rows.Next() {
		var m Model
		var updatedAt pgtype.Timestamptz
		if err := rows.Scan(&m.ID, &m.Provider, &m.Name, &m.Enabled, &updatedAt); err != nil {
			return nil, err
		}
		m.UpdatedAt = updatedAt.Time
		models = append(models, m)
	}
	return models, rows.Err()
}

// UpsertModel creates or updates a model under the named provider.
func (r *Repository) UpsertModel(ctx context.Context, provider, name string, enabled bool) error {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO models (provider_id, name, enabled, updated_at)
		SELECT p.id, $2, $3, now() FROM providers p WHERE p.name = $1
		ON CONFLICT (provider_id, name) DO UPDATE
		SET enabled = EXCLUDED.enabled, updated_at = now()`,
		provider, name, enabled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LatestGraph returns the newest graph version.
func (r *Repository) LatestGraph(ctx context.Context) (Graph, error) {
	var g Graph
	var updatedAt pgtype.Timestamptz
	err := r.pool.QueryRow(ctx, `
		SELECT version, definition, published, updated_at
		FROM routing_graphs ORDER BY version DESC LIMIT 1`).
		Scan(&g.Version, &g.Definition, &g.Published, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Graph{}, ErrNotFound
		}
		return Graph{}, err
	}
	g.UpdatedAt = updatedAt.Time
	return g, nil
}

// SaveGraph stores a new unpublished graph version and returns it.
func (r *Repository) SaveGraph(ctx context.Context, definition json.RawMessage) (int64, error) {
	var version int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO routing_graphs (version, definition, published, updated_at)
		VALUES (COALESCE((SELECT MAX(version) FROM routing_graphs), 0) + 1, $1, false, now())
		RETURNING version`, definition).Scan(&version)
	return version, err
}

// PublishGraph marks a version as published and unpublishes the rest.
func (r *Repository) PublishGraph(ctx context.Context, version int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE routing_graphs SET published = (version = $1), updated_at = now()
		WHERE published OR version = $1`, version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

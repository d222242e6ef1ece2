package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/greenfelt/casino/internal/domain"
	"github.com/jackc/pgx/v5"
)

type catalogRepo struct{}

// NewCatalogRepository returns a pgx-backed CatalogRepository.
func NewCatalogRepository() CatalogRepository {
	return &catalogRepo{}
}

func (r *catalogRepo) FindUser(ctx context.Context, db DBTX, id uuid.UUID) (*domain.User, error) {
	row := db.QueryRow(ctx, `
		SELECT id, username, email, created_at
		FROM casino_users WHERE id = $1`, id)

	var u domain.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

func (r *catalogRepo) FindGame(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Game, error) {
	row := db.QueryRow(ctx, `
		SELECT id, provider_id, external_game_id, name, enabled
		FROM casino_games WHERE id = $1`, id)

	var g domain.Game
	if err := row.Scan(&g.ID, &g.ProviderID, &g.ExternalGameID, &g.Name, &g.Enabled); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan game: %w", err)
	}
	return &g, nil
}

func (r *catalogRepo) FindProvider(ctx context.Context, db DBTX, id uuid.UUID) (*domain.GameProvider, error) {
	row := db.QueryRow(ctx, `
		SELECT id, name, api_url, enabled
		FROM casino_game_providers WHERE id = $1`, id)

	var p domain.GameProvider
	if err := row.Scan(&p.ID, &p.Name, &p.APIURL, &p.Enabled); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan provider: %w", err)
	}
	return &p, nil
}

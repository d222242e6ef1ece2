package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/greenfelt/casino/internal/domain"
	"github.com/jackc/pgx/v5"
)

type sessionRepo struct{}

// NewSessionRepository returns a pgx-backed SessionRepository.
func NewSessionRepository() SessionRepository {
	return &sessionRepo{}
}

const sessionColumns = `id, user_id, wallet_id, game_id, token, provider_session_id, active, created_at, ended_at`

func (r *sessionRepo) Insert(ctx context.Context, db DBTX, s *domain.Session) error {
	_, err := db.Exec(ctx, `
		INSERT INTO casino_game_sessions (id, user_id, wallet_id, game_id, token, active)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.UserID, s.WalletID, s.GameID, s.Token, s.Active)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *sessionRepo) FindByToken(ctx context.Context, db DBTX, token string) (*domain.Session, error) {
	row := db.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM casino_game_sessions WHERE token = $1`, token)
	return scanSession(row)
}

func (r *sessionRepo) AttachProviderSession(ctx context.Context, db DBTX, sessionID uuid.UUID, providerSessionID string) error {
	_, err := db.Exec(ctx, `
		UPDATE casino_game_sessions SET provider_session_id = $2
		WHERE id = $1`, sessionID, providerSessionID)
	if err != nil {
		return fmt.Errorf("attach provider session: %w", err)
	}
	return nil
}

func (r *sessionRepo) End(ctx context.Context, db DBTX, token string) (*domain.Session, error) {
	row := db.QueryRow(ctx, `
		UPDATE casino_game_sessions
		SET active = false, ended_at = now()
		WHERE token = $1
		RETURNING `+sessionColumns, token)
	return scanSession(row)
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	err := row.Scan(&s.ID, &s.UserID, &s.WalletID, &s.GameID, &s.Token,
		&s.ProviderSessionID, &s.Active, &s.CreatedAt, &s.EndedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &s, nil
}

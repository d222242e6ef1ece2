package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/greenfelt/casino/internal/domain"
	"github.com/greenfelt/casino/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Registry issues session tokens at launch and resolves them for the
// callback surface. Tokens are opaque to the provider: 32 bytes of
// CSPRNG entropy, hex-encoded, unique-indexed.
type Registry struct {
	pool     *pgxpool.Pool
	catalog  repository.CatalogRepository
	wallets  repository.WalletRepository
	sessions repository.SessionRepository
	outbox   repository.OutboxRepository
	logger   *slog.Logger
}

// NewRegistry creates a session registry.
func NewRegistry(
	pool *pgxpool.Pool,
	catalog repository.CatalogRepository,
	wallets repository.WalletRepository,
	sessions repository.SessionRepository,
	outbox repository.OutboxRepository,
	logger *slog.Logger,
) *Registry {
	return &Registry{
		pool:     pool,
		catalog:  catalog,
		wallets:  wallets,
		sessions: sessions,
		outbox:   outbox,
		logger:   logger,
	}
}

// LaunchParams holds the input for Launch.
type LaunchParams struct {
	UserID   uuid.UUID
	GameID   uuid.UUID
	Currency string
}

// LaunchResult carries everything the launch handler needs: the new
// session, its wallet state, and the resolved game/provider for the
// outbound provider call.
type LaunchResult struct {
	Session  *domain.Session
	Wallet   *domain.Wallet
	User     *domain.User
	Game     *domain.Game
	Provider *domain.GameProvider
}

// Launch resolves the user, game and provider, lazily creates the
// wallet for (user, currency), and mints a new active session.
func (r *Registry) Launch(ctx context.Context, params LaunchParams) (*LaunchResult, error) {
	currency := params.Currency
	if currency == "" {
		currency = "USD"
	}

	user, err := r.catalog.FindUser(ctx, r.pool, params.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrUserNotFound(params.UserID.String())
	}

	game, err := r.catalog.FindGame(ctx, r.pool, params.GameID)
	if err != nil {
		return nil, fmt.Errorf("resolve game: %w", err)
	}
	if game == nil || !game.Enabled {
		return nil, domain.ErrGameNotFound(params.GameID.String())
	}

	provider, err := r.catalog.FindProvider(ctx, r.pool, game.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("resolve provider: %w", err)
	}
	if provider == nil || !provider.Enabled {
		return nil, domain.ErrProviderNotFound(game.ProviderID.String())
	}

	wallet, err := r.wallets.GetOrCreate(ctx, r.pool, user.ID, currency)
	if err != nil {
		return nil, fmt.Errorf("get or create wallet: %w", err)
	}

	token, err := newToken()
	if err != nil {
		return nil, domain.ErrInternal("generate session token", err)
	}

	s := &domain.Session{
		ID:       uuid.New(),
		UserID:   user.ID,
		WalletID: wallet.ID,
		GameID:   game.ID,
		Token:    token,
		Active:   true,
	}

	err = pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := r.sessions.Insert(ctx, tx, s); err != nil {
			return err
		}
		return r.outbox.Insert(ctx, tx, domain.NewSessionEvent(domain.EventSessionLaunched, s))
	})
	if err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	r.logger.Info("session launched",
		"session_id", s.ID, "user_id", user.ID, "game_id", game.ID, "currency", currency)

	return &LaunchResult{Session: s, Wallet: wallet, User: user, Game: game, Provider: provider}, nil
}

// Resolve returns the active session for a token, or nil when the token
// is unknown or the session has ended.
func (r *Registry) Resolve(ctx context.Context, token string) (*domain.Session, error) {
	s, err := r.sessions.FindByToken(ctx, r.pool, token)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	if s == nil || !s.Active {
		return nil, nil
	}
	return s, nil
}

// AttachProviderSession records the provider-issued session id after a
// successful launch ack. Failures here are non-fatal: the session stays
// usable without a provider session id.
func (r *Registry) AttachProviderSession(ctx context.Context, sessionID uuid.UUID, providerSessionID string) error {
	return r.sessions.AttachProviderSession(ctx, r.pool, sessionID, providerSessionID)
}

// End marks the session inactive. Ending an unknown token is an
// INVALID_SESSION error.
func (r *Registry) End(ctx context.Context, token string) (*domain.Session, error) {
	var ended *domain.Session
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		s, err := r.sessions.End(ctx, tx, token)
		if err != nil {
			return err
		}
		if s == nil {
			return domain.ErrInvalidSession()
		}
		ended = s
		return r.outbox.Insert(ctx, tx, domain.NewSessionEvent(domain.EventSessionEnded, s))
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("session ended", "session_id", ended.ID)
	return ended, nil
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/greenfelt/casino/internal/domain"
	"github.com/greenfelt/casino/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Engine is the transactional wallet ledger. Every money-moving command
// follows the same contract: a duplicate probe on the external
// transaction id, then a single read-committed database transaction that
// locks the wallet row, writes the new balance, and appends the ledger
// entry with its cached response.
//
// The duplicate probe is an optimization; the unique index on
// external_transaction_id is the correctness anchor. A losing racer's
// insert fails with a unique violation and is converted into a normal
// duplicate replay.
type Engine struct {
	pool         *pgxpool.Pool
	wallets      repository.WalletRepository
	sessions     repository.SessionRepository
	transactions repository.TransactionRepository
	outbox       repository.OutboxRepository
	logger       *slog.Logger
}

// NewEngine creates a ledger engine with the given repositories.
func NewEngine(
	pool *pgxpool.Pool,
	wallets repository.WalletRepository,
	sessions repository.SessionRepository,
	transactions repository.TransactionRepository,
	outbox repository.OutboxRepository,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		pool:         pool,
		wallets:      wallets,
		sessions:     sessions,
		transactions: transactions,
		outbox:       outbox,
		logger:       logger,
	}
}

// Balance resolves the session and reads its wallet without locking.
// It never mutates state and is not an idempotency target.
func (e *Engine) Balance(ctx context.Context, sessionToken string) (*domain.BalanceResult, error) {
	session, err := e.resolveActiveSession(ctx, sessionToken)
	if err != nil {
		return nil, err
	}

	wallet, err := e.wallets.FindByID(ctx, e.pool, session.WalletID)
	if err != nil {
		return nil, fmt.Errorf("read wallet: %w", err)
	}
	if wallet == nil {
		return nil, domain.ErrInternal("session wallet missing", nil)
	}

	return &domain.BalanceResult{Balance: wallet.PlayableBalance, Currency: wallet.Currency}, nil
}

// resolveActiveSession maps a token to its session, failing with
// INVALID_SESSION when the token is unknown or the session has ended.
func (e *Engine) resolveActiveSession(ctx context.Context, token string) (*domain.Session, error) {
	if token == "" {
		return nil, domain.ErrInvalidSession()
	}
	session, err := e.sessions.FindByToken(ctx, e.pool, token)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	if session == nil || !session.Active {
		return nil, domain.ErrInvalidSession()
	}
	return session, nil
}

// findDuplicate probes the ledger for an existing entry with this
// external id. Runs outside the balance transaction.
func (e *Engine) findDuplicate(ctx context.Context, externalID string) (*domain.CommandResult, error) {
	existing, err := e.transactions.FindByExternalID(ctx, e.pool, externalID)
	if err != nil {
		return nil, fmt.Errorf("duplicate probe: %w", err)
	}
	if existing == nil {
		return nil, nil
	}
	return &domain.CommandResult{
		Entry:     existing,
		Response:  existing.ResponseCache,
		Duplicate: true,
	}, nil
}

// replayWinner re-reads the entry that won an insert race and returns
// its cached response. Called after a unique violation on insert.
func (e *Engine) replayWinner(ctx context.Context, externalID string) (*domain.CommandResult, error) {
	winner, err := e.transactions.FindByExternalID(ctx, e.pool, externalID)
	if err != nil {
		return nil, fmt.Errorf("re-read winning entry: %w", err)
	}
	if winner == nil {
		return nil, domain.ErrInternal("duplicate insert but winning entry not found", nil)
	}
	e.logger.Info("duplicate transaction replayed after insert race",
		"external_transaction_id", externalID, "kind", winner.Kind)
	return &domain.CommandResult{
		Entry:     winner,
		Response:  winner.ResponseCache,
		Duplicate: true,
	}, nil
}

// inTx runs fn inside one read-committed transaction, rolling back on error.
func (e *Engine) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return pgx.BeginTxFunc(ctx, e.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

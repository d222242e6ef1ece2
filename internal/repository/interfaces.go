package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/greenfelt/casino/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// CatalogRepository provides read-only access to users, games and
// providers. The ledger only ever resolves these at launch time.
type CatalogRepository interface {
	// FindUser returns a user by id, or nil if absent.
	FindUser(ctx context.Context, db DBTX, id uuid.UUID) (*domain.User, error)

	// FindGame returns a game by id, or nil if absent.
	FindGame(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Game, error)

	// FindProvider returns a game provider by id, or nil if absent.
	FindProvider(ctx context.Context, db DBTX, id uuid.UUID) (*domain.GameProvider, error)
}

// WalletRepository provides access to casino_wallets.
type WalletRepository interface {
	// FindByID returns a wallet by id, or nil if absent.
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Wallet, error)

	// GetOrCreate returns the wallet for (user, currency), creating it
	// with zero balances on first launch.
	GetOrCreate(ctx context.Context, db DBTX, userID uuid.UUID, currency string) (*domain.Wallet, error)

	// LockForUpdate acquires a row-level lock (SELECT FOR UPDATE) and
	// returns the wallet. Must be called within a transaction; the lock
	// is released on commit or abort.
	LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error)

	// UpdatePlayableBalance sets the new playable balance decided by the
	// caller while it holds the row lock. No other component writes
	// playable_balance.
	UpdatePlayableBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, newBalance int64) (*domain.Wallet, error)
}

// SessionRepository provides access to casino_game_sessions.
type SessionRepository interface {
	// Insert persists a freshly minted session.
	Insert(ctx context.Context, db DBTX, s *domain.Session) error

	// FindByToken returns the session carrying the token, active or not,
	// or nil if absent.
	FindByToken(ctx context.Context, db DBTX, token string) (*domain.Session, error)

	// AttachProviderSession records the provider-issued session id.
	AttachProviderSession(ctx context.Context, db DBTX, sessionID uuid.UUID, providerSessionID string) error

	// End marks the session inactive and stamps ended_at.
	End(ctx context.Context, db DBTX, token string) (*domain.Session, error)
}

// TransactionRepository provides access to the casino_transactions ledger.
type TransactionRepository interface {
	// FindByExternalID looks up an entry by its caller-supplied id.
	// Returns nil if no entry exists; this is the idempotency probe.
	FindByExternalID(ctx context.Context, db DBTX, externalID string) (*domain.Transaction, error)

	// Insert appends a ledger entry. The unique index on
	// external_transaction_id is the idempotency anchor; callers must
	// treat a unique violation as a duplicate, not an error.
	Insert(ctx context.Context, db DBTX, params domain.PostEntryParams) (*domain.Transaction, error)

	// MarkRolledBack flips is_rollback on the original debit entry.
	// Runs in the same transaction as the reversing entry's insert.
	// Returns ErrAlreadyRolledBack when the flag was already set, so a
	// reversal that lost the race aborts instead of crediting again.
	MarkRolledBack(ctx context.Context, tx pgx.Tx, externalID string) error

	// FindRollbackOf returns the rollback entry whose
	// related_external_transaction_id references the given original,
	// or nil if the original has not been reversed.
	FindRollbackOf(ctx context.Context, db DBTX, originalExternalID string) (*domain.Transaction, error)

	// ListByWallet returns entries for a wallet in insert order.
	ListByWallet(ctx context.Context, db DBTX, walletID uuid.UUID, limit int) ([]domain.Transaction, error)
}

// OutboxRepository provides access to casino_event_outbox.
type OutboxRepository interface {
	// Insert writes an outbox event within the same transaction as the
	// state change it describes.
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error
}

// ErrAlreadyRolledBack reports that an entry's is_rollback flag was set
// before the caller's conditional update ran.
var ErrAlreadyRolledBack = errors.New("entry already rolled back")

// IsUniqueViolation reports whether err is a PostgreSQL unique
// constraint violation (SQLSTATE 23505).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

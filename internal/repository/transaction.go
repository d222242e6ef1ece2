package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/greenfelt/casino/internal/domain"
	"github.com/jackc/pgx/v5"
)

type transactionRepo struct{}

// NewTransactionRepository returns a pgx-backed TransactionRepository.
func NewTransactionRepository() TransactionRepository {
	return &transactionRepo{}
}

const transactionColumns = `id, external_transaction_id, kind, amount, wallet_id, session_id,
	round_id, related_external_transaction_id, balance_after, response_cache, is_rollback, created_at`

func (r *transactionRepo) FindByExternalID(ctx context.Context, db DBTX, externalID string) (*domain.Transaction, error) {
	row := db.QueryRow(ctx, `
		SELECT `+transactionColumns+`
		FROM casino_transactions
		WHERE external_transaction_id = $1`, externalID)
	return scanTransaction(row)
}

func (r *transactionRepo) Insert(ctx context.Context, db DBTX, params domain.PostEntryParams) (*domain.Transaction, error) {
	cache := params.ResponseCache
	if cache == nil {
		cache = json.RawMessage(`{}`)
	}

	row := db.QueryRow(ctx, `
		INSERT INTO casino_transactions
		  (id, external_transaction_id, kind, amount, wallet_id, session_id,
		   round_id, related_external_transaction_id, balance_after, response_cache, is_rollback)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+transactionColumns,
		uuid.New(),
		params.ExternalTransactionID,
		string(params.Kind),
		params.Amount,
		params.WalletID,
		params.SessionID,
		params.RoundID,
		params.RelatedExternalID,
		params.BalanceAfter,
		cache,
		params.IsRollback,
	)
	return scanTransaction(row)
}

func (r *transactionRepo) MarkRolledBack(ctx context.Context, tx pgx.Tx, externalID string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE casino_transactions SET is_rollback = true
		WHERE external_transaction_id = $1 AND is_rollback = false`, externalID)
	if err != nil {
		return fmt.Errorf("mark rolled back: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyRolledBack
	}
	return nil
}

func (r *transactionRepo) FindRollbackOf(ctx context.Context, db DBTX, originalExternalID string) (*domain.Transaction, error) {
	row := db.QueryRow(ctx, `
		SELECT `+transactionColumns+`
		FROM casino_transactions
		WHERE kind = 'rollback' AND related_external_transaction_id = $1
		ORDER BY created_at ASC
		LIMIT 1`, originalExternalID)
	return scanTransaction(row)
}

func (r *transactionRepo) ListByWallet(ctx context.Context, db DBTX, walletID uuid.UUID, limit int) ([]domain.Transaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := db.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM casino_transactions
		WHERE wallet_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2`, walletID, limit)
	if err != nil {
		return nil, fmt.Errorf("query wallet transactions: %w", err)
	}
	defer rows.Close()

	var entries []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(
			&t.ID, &t.ExternalTransactionID, &t.Kind, &t.Amount, &t.WalletID, &t.SessionID,
			&t.RoundID, &t.RelatedExternalID, &t.BalanceAfter, &t.ResponseCache, &t.IsRollback, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		entries = append(entries, t)
	}
	return entries, rows.Err()
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	err := row.Scan(
		&t.ID, &t.ExternalTransactionID, &t.Kind, &t.Amount, &t.WalletID, &t.SessionID,
		&t.RoundID, &t.RelatedExternalID, &t.BalanceAfter, &t.ResponseCache, &t.IsRollback, &t.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

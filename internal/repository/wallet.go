package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/greenfelt/casino/internal/domain"
	"github.com/jackc/pgx/v5"
)

type walletRepo struct{}

// NewWalletRepository returns a pgx-backed WalletRepository.
func NewWalletRepository() WalletRepository {
	return &walletRepo{}
}

const walletColumns = `id, user_id, currency, playable_balance, redeemable_balance, created_at, updated_at`

func (r *walletRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Wallet, error) {
	row := db.QueryRow(ctx, `
		SELECT `+walletColumns+`
		FROM casino_wallets WHERE id = $1`, id)
	return scanWallet(row)
}

// GetOrCreate relies on the (user_id, currency) unique index: a
// concurrent first launch loses the insert race and falls back to the
// winner's row.
func (r *walletRepo) GetOrCreate(ctx context.Context, db DBTX, userID uuid.UUID, currency string) (*domain.Wallet, error) {
	row := db.QueryRow(ctx, `
		SELECT `+walletColumns+`
		FROM casino_wallets WHERE user_id = $1 AND currency = $2`, userID, currency)
	wallet, err := scanWallet(row)
	if err != nil {
		return nil, err
	}
	if wallet != nil {
		return wallet, nil
	}

	row = db.QueryRow(ctx, `
		INSERT INTO casino_wallets (id, user_id, currency, playable_balance, redeemable_balance)
		VALUES ($1, $2, $3, 0, 0)
		RETURNING `+walletColumns, uuid.New(), userID, currency)
	wallet, err = scanWallet(row)
	if err != nil {
		if IsUniqueViolation(err) {
			row = db.QueryRow(ctx, `
				SELECT `+walletColumns+`
				FROM casino_wallets WHERE user_id = $1 AND currency = $2`, userID, currency)
			return scanWallet(row)
		}
		return nil, fmt.Errorf("create wallet: %w", err)
	}
	return wallet, nil
}

func (r *walletRepo) LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+walletColumns+`
		FROM casino_wallets WHERE id = $1 FOR UPDATE`, id)
	return scanWallet(row)
}

func (r *walletRepo) UpdatePlayableBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, newBalance int64) (*domain.Wallet, error) {
	row := tx.QueryRow(ctx, `
		UPDATE casino_wallets
		SET playable_balance = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+walletColumns, id, newBalance)
	return scanWallet(row)
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var w domain.Wallet
	err := row.Scan(&w.ID, &w.UserID, &w.Currency, &w.PlayableBalance, &w.RedeemableBalance, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &w, nil
}

package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/greenfelt/casino/internal/domain"
	"github.com/greenfelt/casino/internal/repository"
	"github.com/jackc/pgx/v5"
)

// Debit removes a bet amount from the session's wallet.
//
// Order matters: the duplicate probe runs before session resolution so a
// retried debit on an ended session still replays its original response.
func (e *Engine) Debit(ctx context.Context, params domain.DebitParams) (*domain.CommandResult, error) {
	if dup, err := e.findDuplicate(ctx, params.ExternalTransactionID); err != nil || dup != nil {
		return dup, err
	}

	session, err := e.resolveActiveSession(ctx, params.SessionToken)
	if err != nil {
		return nil, err
	}

	if err := domain.ValidatePositiveAmount(params.Amount); err != nil {
		return nil, err
	}

	var result *domain.CommandResult
	err = e.inTx(ctx, func(tx pgx.Tx) error {
		wallet, err := e.wallets.LockForUpdate(ctx, tx, session.WalletID)
		if err != nil {
			return fmt.Errorf("lock wallet: %w", err)
		}
		if wallet == nil {
			return domain.ErrInternal("session wallet missing", nil)
		}

		if wallet.PlayableBalance < params.Amount {
			return domain.ErrInsufficientFunds()
		}

		newBalance := wallet.PlayableBalance - params.Amount
		updated, err := e.wallets.UpdatePlayableBalance(ctx, tx, wallet.ID, newBalance)
		if err != nil {
			return fmt.Errorf("update balance: %w", err)
		}

		cache, _ := json.Marshal(domain.MoneyResponse{
			Success:       true,
			TransactionID: params.ExternalTransactionID,
			Balance:       newBalance,
			Currency:      updated.Currency,
		})

		entry, err := e.transactions.Insert(ctx, tx, domain.PostEntryParams{
			ExternalTransactionID: params.ExternalTransactionID,
			Kind:                  domain.TxDebit,
			Amount:                params.Amount,
			WalletID:              wallet.ID,
			SessionID:             session.ID,
			RoundID:               strPtr(params.RoundID),
			BalanceAfter:          newBalance,
			ResponseCache:         cache,
		})
		if err != nil {
			return fmt.Errorf("insert debit entry: %w", err)
		}

		if err := e.outbox.Insert(ctx, tx, domain.NewTransactionPostedEvent(entry)); err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}

		result = &domain.CommandResult{Entry: entry, Wallet: updated, Response: cache}
		return nil
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return e.replayWinner(ctx, params.ExternalTransactionID)
		}
		return nil, err
	}

	return result, nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

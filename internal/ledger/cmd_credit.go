package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/greenfelt/casino/internal/domain"
	"github.com/greenfelt/casino/internal/repository"
	"github.com/jackc/pgx/v5"
)

// Credit adds a payout to the session's wallet. A zero amount is legal
// (a lost round's nominal payout) and records a real ledger entry whose
// balance_after equals the current balance.
func (e *Engine) Credit(ctx context.Context, params domain.CreditParams) (*domain.CommandResult, error) {
	if dup, err := e.findDuplicate(ctx, params.ExternalTransactionID); err != nil || dup != nil {
		return dup, err
	}

	session, err := e.resolveActiveSession(ctx, params.SessionToken)
	if err != nil {
		return nil, err
	}

	if err := domain.ValidateNonNegativeAmount(params.Amount); err != nil {
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

		newBalance := wallet.PlayableBalance + params.Amount
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
			Kind:                  domain.TxCredit,
			Amount:                params.Amount,
			WalletID:              wallet.ID,
			SessionID:             session.ID,
			RoundID:               strPtr(params.RoundID),
			RelatedExternalID:     strPtr(params.RelatedTransactionID),
			BalanceAfter:          newBalance,
			ResponseCache:         cache,
		})
		if err != nil {
			return fmt.Errorf("insert credit entry: %w", err)
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

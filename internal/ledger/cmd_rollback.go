package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/greenfelt/casino/internal/domain"
	"github.com/greenfelt/casino/internal/repository"
	"github.com/jackc/pgx/v5"
)

// Rollback reverses a bet. The decision tree, in order:
//
//  1. an entry with the rollback's own id exists → replay its response
//  2. locate the original by its external id
//  3. original unknown → record a zero-amount tombstone, no balance change
//  4. original is itself a rollback → refuse, record nothing
//  5. original already reversed → record a zero-amount marker
//  6. original is a credit → CANNOT_ROLLBACK_PAYOUT
//  7. original is a debit → reverse it: lock wallet, restore the amount,
//     flip is_rollback on the original, append the reversing entry
//
// Tombstones are never reconciled. A late debit reusing the rollback's
// own id replays the tombstone body through the duplicate probe; one
// arriving under the original id posts normally, but the tombstone
// already references that id, so step 5 answers every later rollback of
// it with a marker and the entry stays unreversible.
func (e *Engine) Rollback(ctx context.Context, params domain.RollbackParams) (*domain.CommandResult, error) {
	if dup, err := e.findDuplicate(ctx, params.ExternalTransactionID); err != nil || dup != nil {
		return dup, err
	}

	session, err := e.resolveActiveSession(ctx, params.SessionToken)
	if err != nil {
		return nil, err
	}

	original, err := e.transactions.FindByExternalID(ctx, e.pool, params.OriginalTransactionID)
	if err != nil {
		return nil, fmt.Errorf("locate original: %w", err)
	}

	if original == nil {
		e.logger.Warn("rollback for unknown original, recording tombstone",
			"external_transaction_id", params.ExternalTransactionID,
			"original_transaction_id", params.OriginalTransactionID)
		return e.recordMarker(ctx, session, params, markerTombstone)
	}

	if original.Kind == domain.TxRollback {
		// Refused without recording; the own-id check above already
		// prevents replay loops.
		wallet, err := e.wallets.FindByID(ctx, e.pool, session.WalletID)
		if err != nil || wallet == nil {
			return nil, domain.ErrInternal("session wallet missing", err)
		}
		resp, _ := json.Marshal(domain.RollbackResponse{
			Success:       true,
			TransactionID: params.ExternalTransactionID,
			RolledBack:    false,
			Balance:       wallet.PlayableBalance,
			Currency:      wallet.Currency,
			Message:       "cannot rollback a rollback",
		})
		return &domain.CommandResult{Wallet: wallet, Response: resp}, nil
	}

	reversed, err := e.transactions.FindRollbackOf(ctx, e.pool, original.ExternalTransactionID)
	if err != nil {
		return nil, fmt.Errorf("check prior reversal: %w", err)
	}
	if reversed != nil {
		return e.recordMarker(ctx, session, params, markerAlreadyRolledBack)
	}

	if original.Kind == domain.TxCredit {
		return nil, domain.ErrCannotRollbackPayout()
	}

	return e.reverseDebit(ctx, session, params, original)
}

// reverseDebit is the nominal path: restore the original debit's amount
// under the wallet row lock, mark the original reversed, and append the
// reversing entry in one transaction. The is_rollback flip is
// conditional, so when two rollbacks with distinct ids target the same
// original only the first reverses; the loser aborts its transaction and
// falls back to a zero-amount marker.
func (e *Engine) reverseDebit(
	ctx context.Context,
	session *domain.Session,
	params domain.RollbackParams,
	original *domain.Transaction,
) (*domain.CommandResult, error) {
	var result *domain.CommandResult
	err := e.inTx(ctx, func(tx pgx.Tx) error {
		wallet, err := e.wallets.LockForUpdate(ctx, tx, session.WalletID)
		if err != nil {
			return fmt.Errorf("lock wallet: %w", err)
		}
		if wallet == nil {
			return domain.ErrInternal("session wallet missing", nil)
		}

		newBalance := wallet.PlayableBalance + original.Amount
		updated, err := e.wallets.UpdatePlayableBalance(ctx, tx, wallet.ID, newBalance)
		if err != nil {
			return fmt.Errorf("update balance: %w", err)
		}

		if err := e.transactions.MarkRolledBack(ctx, tx, original.ExternalTransactionID); err != nil {
			return err
		}

		cache, _ := json.Marshal(domain.RollbackResponse{
			Success:       true,
			TransactionID: params.ExternalTransactionID,
			RolledBack:    true,
			Balance:       newBalance,
			Currency:      updated.Currency,
			Message:       "rolled back",
		})

		relatedID := original.ExternalTransactionID
		entry, err := e.transactions.Insert(ctx, tx, domain.PostEntryParams{
			ExternalTransactionID: params.ExternalTransactionID,
			Kind:                  domain.TxRollback,
			Amount:                original.Amount,
			WalletID:              wallet.ID,
			SessionID:             session.ID,
			RelatedExternalID:     &relatedID,
			BalanceAfter:          newBalance,
			ResponseCache:         cache,
			IsRollback:            true,
		})
		if err != nil {
			return fmt.Errorf("insert rollback entry: %w", err)
		}

		if err := e.outbox.Insert(ctx, tx, domain.NewTransactionPostedEvent(entry)); err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}

		result = &domain.CommandResult{Entry: entry, Wallet: updated, Response: cache}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyRolledBack) {
			return e.recordMarker(ctx, session, params, markerAlreadyRolledBack)
		}
		if repository.IsUniqueViolation(err) {
			return e.replayWinner(ctx, params.ExternalTransactionID)
		}
		return nil, err
	}

	return result, nil
}

type markerKind int

const (
	markerTombstone markerKind = iota
	markerAlreadyRolledBack
)

// recordMarker appends a zero-amount rollback entry that changes no
// balance: a tombstone for an unknown original, or an idempotency marker
// for an already-reversed one. The entry still owns its external id, so
// retries replay through the duplicate probe.
func (e *Engine) recordMarker(
	ctx context.Context,
	session *domain.Session,
	params domain.RollbackParams,
	kind markerKind,
) (*domain.CommandResult, error) {
	wallet, err := e.wallets.FindByID(ctx, e.pool, session.WalletID)
	if err != nil {
		return nil, fmt.Errorf("read wallet: %w", err)
	}
	if wallet == nil {
		return nil, domain.ErrInternal("session wallet missing", nil)
	}

	resp := domain.RollbackResponse{
		Success:       true,
		TransactionID: params.ExternalTransactionID,
		RolledBack:    true,
		Balance:       wallet.PlayableBalance,
		Currency:      wallet.Currency,
	}

	var relatedID *string
	switch kind {
	case markerTombstone:
		resp.Message = "tombstone"
		resp.Tombstone = true
		// Keep the unknown id for auditability; it references nothing.
		relatedID = strPtr(params.OriginalTransactionID)
	case markerAlreadyRolledBack:
		resp.Message = "already rolled back"
		resp.AlreadyRolledBack = true
		// No related id: the original keeps exactly one reversing entry.
	}
	cache, _ := json.Marshal(resp)

	var result *domain.CommandResult
	err = e.inTx(ctx, func(tx pgx.Tx) error {
		entry, err := e.transactions.Insert(ctx, tx, domain.PostEntryParams{
			ExternalTransactionID: params.ExternalTransactionID,
			Kind:                  domain.TxRollback,
			Amount:                0,
			WalletID:              wallet.ID,
			SessionID:             session.ID,
			RelatedExternalID:     relatedID,
			BalanceAfter:          wallet.PlayableBalance,
			ResponseCache:         cache,
			IsRollback:            true,
		})
		if err != nil {
			return fmt.Errorf("insert marker entry: %w", err)
		}

		if err := e.outbox.Insert(ctx, tx, domain.NewTransactionPostedEvent(entry)); err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}

		result = &domain.CommandResult{Entry: entry, Wallet: wallet, Response: cache}
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

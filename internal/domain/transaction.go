package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TransactionKind enumerates the three ledger entry kinds.
type TransactionKind string

const (
	TxDebit    TransactionKind = "debit"
	TxCredit   TransactionKind = "credit"
	TxRollback TransactionKind = "rollback"
)

// Transaction is a casino_transactions row: one append-only record of a
// money movement attempt. ExternalTransactionID is unique across the
// whole ledger and is the sole idempotency key.
type Transaction struct {
	ID                    uuid.UUID       `json:"id"`
	ExternalTransactionID string          `json:"external_transaction_id"`
	Kind                  TransactionKind `json:"kind"`
	Amount                int64           `json:"amount"`
	WalletID              uuid.UUID       `json:"wallet_id"`
	SessionID             uuid.UUID       `json:"session_id"`
	RoundID               *string         `json:"round_id,omitempty"`
	RelatedExternalID     *string         `json:"related_external_transaction_id,omitempty"`
	BalanceAfter          int64           `json:"balance_after"`
	ResponseCache         json.RawMessage `json:"response_cache"`
	// IsRollback is set on rollback entries, and also flipped on the
	// original debit once it has been reversed.
	IsRollback bool      `json:"is_rollback"`
	CreatedAt  time.Time `json:"created_at"`
}

// PostEntryParams is the input to TransactionRepository.Insert.
// BalanceAfter must be the wallet balance after this entry's effect,
// computed under the wallet row lock.
type PostEntryParams struct {
	ExternalTransactionID string
	Kind                  TransactionKind
	Amount                int64
	WalletID              uuid.UUID
	SessionID             uuid.UUID
	RoundID               *string
	RelatedExternalID     *string
	BalanceAfter          int64
	ResponseCache         json.RawMessage
	IsRollback            bool
}

// DebitParams holds the input for Engine.Debit.
type DebitParams struct {
	SessionToken          string
	ExternalTransactionID string
	RoundID               string
	Amount                int64
}

// CreditParams holds the input for Engine.Credit. A zero Amount is legal
// and records a real entry (a lost round's nominal payout).
type CreditParams struct {
	SessionToken          string
	ExternalTransactionID string
	RoundID               string
	Amount                int64
	RelatedTransactionID  string
}

// RollbackParams holds the input for Engine.Rollback.
// ExternalTransactionID names the rollback itself; OriginalTransactionID
// names the debit being reversed.
type RollbackParams struct {
	SessionToken          string
	ExternalTransactionID string
	OriginalTransactionID string
	Reason                string
}

// CommandResult is the return value of the money-moving engine commands.
// Response holds the exact body to write; on a duplicate it is the
// first-success body replayed verbatim from response_cache.
type CommandResult struct {
	Entry     *Transaction
	Wallet    *Wallet
	Response  json.RawMessage
	Duplicate bool
}

// MoneyResponse is the cached success body for debit and credit.
type MoneyResponse struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transactionId"`
	Balance       int64  `json:"balance"`
	Currency      string `json:"currency"`
}

// RollbackResponse is the cached success body for rollback, including
// the tombstone and already-rolled-back marker variants.
type RollbackResponse struct {
	Success           bool   `json:"success"`
	TransactionID     string `json:"transactionId"`
	RolledBack        bool   `json:"rolledBack"`
	Balance           int64  `json:"balance"`
	Currency          string `json:"currency"`
	Message           string `json:"message,omitempty"`
	Tombstone         bool   `json:"tombstone,omitempty"`
	AlreadyRolledBack bool   `json:"alreadyRolledBack,omitempty"`
}

// BalanceResult is the (non-cached) result of a balance read.
type BalanceResult struct {
	Balance  int64
	Currency string
}

package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AggregateType identifies the aggregate an event belongs to.
type AggregateType string

const AggregateWallet AggregateType = "wallet"

// EventType enumerates outbox event types.
type EventType string

const (
	EventTransactionPosted EventType = "transaction.posted"
	EventSessionLaunched   EventType = "session.launched"
	EventSessionEnded      EventType = "session.ended"
)

// OutboxDraft is an event written to casino_event_outbox in the same
// database transaction as the state change it describes.
type OutboxDraft struct {
	EventID       uuid.UUID       `json:"event_id"`
	AggregateType AggregateType   `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     EventType       `json:"event_type"`
	PartitionKey  string          `json:"partition_key"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// NewTransactionPostedEvent builds the outbox draft for a committed
// ledger entry. Partitioned by wallet so per-wallet order survives Kafka.
func NewTransactionPostedEvent(entry *Transaction) OutboxDraft {
	payload, _ := json.Marshal(map[string]interface{}{
		"transaction_id":          entry.ID,
		"external_transaction_id": entry.ExternalTransactionID,
		"kind":                    entry.Kind,
		"amount":                  entry.Amount,
		"wallet_id":               entry.WalletID,
		"session_id":              entry.SessionID,
		"balance_after":           entry.BalanceAfter,
		"is_rollback":             entry.IsRollback,
	})

	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateWallet,
		AggregateID:   entry.WalletID.String(),
		EventType:     EventTransactionPosted,
		PartitionKey:  entry.WalletID.String(),
		Payload:       payload,
		OccurredAt:    time.Now().UTC(),
	}
}

// NewSessionEvent builds the outbox draft for a session lifecycle change.
func NewSessionEvent(eventType EventType, s *Session) OutboxDraft {
	payload, _ := json.Marshal(map[string]interface{}{
		"session_id": s.ID,
		"user_id":    s.UserID,
		"wallet_id":  s.WalletID,
		"game_id":    s.GameID,
		"active":     s.Active,
	})

	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateWallet,
		AggregateID:   s.WalletID.String(),
		EventType:     eventType,
		PartitionKey:  s.WalletID.String(),
		Payload:       payload,
		OccurredAt:    time.Now().UTC(),
	}
}

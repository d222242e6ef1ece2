package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is an identity record. The ledger treats the id as opaque and
// never mutates users.
type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Wallet is the money-bearing record, keyed by (user, currency).
// PlayableBalance is the only column the ledger moves; RedeemableBalance
// is carried for reporting and never touched by callbacks.
type Wallet struct {
	ID                uuid.UUID `json:"id"`
	UserID            uuid.UUID `json:"user_id"`
	Currency          string    `json:"currency"`
	PlayableBalance   int64     `json:"playable_balance"`
	RedeemableBalance int64     `json:"redeemable_balance"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// GameProvider is the external game-logic service a game belongs to.
type GameProvider struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	APIURL  string    `json:"api_url"`
	Enabled bool      `json:"enabled"`
}

// Game is a provider-owned game, read-only from the ledger's view.
type Game struct {
	ID             uuid.UUID `json:"id"`
	ProviderID     uuid.UUID `json:"provider_id"`
	ExternalGameID string    `json:"external_game_id"`
	Name           string    `json:"name"`
	Enabled        bool      `json:"enabled"`
}

// Session binds a player to a wallet and a game for the duration of a
// launch. Token is 256 bits of CSPRNG entropy, hex-encoded (64 chars).
type Session struct {
	ID                uuid.UUID  `json:"id"`
	UserID            uuid.UUID  `json:"user_id"`
	WalletID          uuid.UUID  `json:"wallet_id"`
	GameID            uuid.UUID  `json:"game_id"`
	Token             string     `json:"token"`
	ProviderSessionID *string    `json:"provider_session_id,omitempty"`
	Active            bool       `json:"active"`
	CreatedAt         time.Time  `json:"created_at"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
}

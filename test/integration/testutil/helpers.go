//go:build integration

package testutil

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/greenfelt/casino/internal/signature"
)

// Seed is a complete playable fixture: user, wallet, provider, game and
// an active session.
type Seed struct {
	UserID     uuid.UUID
	WalletID   uuid.UUID
	ProviderID uuid.UUID
	GameID     uuid.UUID
	SessionID  uuid.UUID
	Token      string
	Currency   string
}

// CreateUser inserts a user and returns its id.
func (env *TestEnv) CreateUser() uuid.UUID {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id := uuid.New()
	_, err := env.Pool.Exec(ctx, `
		INSERT INTO casino_users (id, username, email)
		VALUES ($1, $2, $3)`,
		id, "user_"+id.String()[:8], id.String()[:8]+"@example.com")
	if err != nil {
		env.t.Fatalf("CreateUser: %v", err)
	}
	return id
}

// CreateProvider inserts an enabled game provider pointing at apiURL.
func (env *TestEnv) CreateProvider(apiURL string) uuid.UUID {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id := uuid.New()
	_, err := env.Pool.Exec(ctx, `
		INSERT INTO casino_game_providers (id, name, api_url, enabled)
		VALUES ($1, $2, $3, true)`,
		id, "provider_"+id.String()[:8], apiURL)
	if err != nil {
		env.t.Fatalf("CreateProvider: %v", err)
	}
	return id
}

// CreateGame inserts an enabled game for the provider.
func (env *TestEnv) CreateGame(providerID uuid.UUID) uuid.UUID {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id := uuid.New()
	_, err := env.Pool.Exec(ctx, `
		INSERT INTO casino_games (id, provider_id, external_game_id, name, enabled)
		VALUES ($1, $2, $3, $4, true)`,
		id, providerID, "ext_"+id.String()[:8], "game_"+id.String()[:8])
	if err != nil {
		env.t.Fatalf("CreateGame: %v", err)
	}
	return id
}

// SeedSession builds the whole fixture chain and returns it with an
// active session token, bypassing the launch endpoint.
func (env *TestEnv) SeedSession(currency string) *Seed {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	userID := env.CreateUser()
	providerID := env.CreateProvider("http://localhost:1")
	gameID := env.CreateGame(providerID)

	walletID := uuid.New()
	_, err := env.Pool.Exec(ctx, `
		INSERT INTO casino_wallets (id, user_id, currency, playable_balance, redeemable_balance)
		VALUES ($1, $2, $3, 0, 0)`, walletID, userID, currency)
	if err != nil {
		env.t.Fatalf("SeedSession: insert wallet: %v", err)
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		env.t.Fatalf("SeedSession: token: %v", err)
	}
	token := hex.EncodeToString(buf)

	sessionID := uuid.New()
	_, err = env.Pool.Exec(ctx, `
		INSERT INTO casino_game_sessions (id, user_id, wallet_id, game_id, token, active)
		VALUES ($1, $2, $3, $4, $5, true)`, sessionID, userID, walletID, gameID, token)
	if err != nil {
		env.t.Fatalf("SeedSession: insert session: %v", err)
	}

	return &Seed{
		UserID:     userID,
		WalletID:   walletID,
		ProviderID: providerID,
		GameID:     gameID,
		SessionID:  sessionID,
		Token:      token,
		Currency:   currency,
	}
}

// Deposit credits a wallet's playable balance directly.
func (env *TestEnv) Deposit(walletID uuid.UUID, amount int64) {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := env.Pool.Exec(ctx, `
		UPDATE casino_wallets SET playable_balance = playable_balance + $2, updated_at = now()
		WHERE id = $1`, walletID, amount)
	if err != nil {
		env.t.Fatalf("Deposit: %v", err)
	}
}

// WalletBalance reads the current playable balance.
func (env *TestEnv) WalletBalance(walletID uuid.UUID) int64 {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var balance int64
	err := env.Pool.QueryRow(ctx,
		"SELECT playable_balance FROM casino_wallets WHERE id = $1", walletID).Scan(&balance)
	if err != nil {
		env.t.Fatalf("WalletBalance: %v", err)
	}
	return balance
}

// EndSession flips the session inactive directly in the database.
func (env *TestEnv) EndSession(token string) {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := env.Pool.Exec(ctx, `
		UPDATE casino_game_sessions SET active = false, ended_at = now()
		WHERE token = $1`, token)
	if err != nil {
		env.t.Fatalf("EndSession: %v", err)
	}
}

// SignedPost sends a provider callback signed with the test provider
// secret and returns the response.
func (env *TestEnv) SignedPost(path string, payload interface{}) *http.Response {
	env.t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		env.t.Fatalf("SignedPost: marshal: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, env.Server.URL+path, bytes.NewReader(body))
	if err != nil {
		env.t.Fatalf("SignedPost: build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signature.HeaderProviderSignature, signature.New(TestProviderSecret).Sign(body))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("SignedPost: %v", err)
	}
	return resp
}

// PostBadSig sends a provider callback with a wrong signature.
func (env *TestEnv) PostBadSig(path string, payload interface{}) *http.Response {
	env.t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		env.t.Fatalf("PostBadSig: marshal: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, env.Server.URL+path, bytes.NewReader(body))
	if err != nil {
		env.t.Fatalf("PostBadSig: build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signature.HeaderProviderSignature, "deadbeef")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("PostBadSig: %v", err)
	}
	return resp
}

// OperatorPost sends a JWT-authenticated request to the casino surface.
func (env *TestEnv) OperatorPost(path string, payload interface{}) *http.Response {
	env.t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		env.t.Fatalf("OperatorPost: marshal: %v", err)
	}

	token, err := env.JWTMgr.GenerateToken("test-operator")
	if err != nil {
		env.t.Fatalf("OperatorPost: token: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, env.Server.URL+path, bytes.NewReader(body))
	if err != nil {
		env.t.Fatalf("OperatorPost: build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("OperatorPost: %v", err)
	}
	return resp
}

// OperatorGet sends a JWT-authenticated GET to the casino surface.
func (env *TestEnv) OperatorGet(path string) *http.Response {
	env.t.Helper()

	token, err := env.JWTMgr.GenerateToken("test-operator")
	if err != nil {
		env.t.Fatalf("OperatorGet: token: %v", err)
	}

	req, err := http.NewRequest(http.MethodGet, env.Server.URL+path, nil)
	if err != nil {
		env.t.Fatalf("OperatorGet: build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("OperatorGet: %v", err)
	}
	return resp
}

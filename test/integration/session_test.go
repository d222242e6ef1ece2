//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/greenfelt/casino/internal/signature"
	"github.com/greenfelt/casino/test/integration/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type launchResponse struct {
	Success      bool   `json:"success"`
	SessionID    string `json:"sessionId"`
	SessionToken string `json:"sessionToken"`
	Balance      int64  `json:"balance"`
	Currency     string `json:"currency"`
}

// mockProvider stands in for the provider's launch API.
func mockProvider(t *testing.T, providerSessionID string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.NotEmpty(t, r.Header.Get(signature.HeaderCasinoSignature), "launch call must be signed")

		var req map[string]interface{}
		assert.NoError(t, json.Unmarshal(body, &req))
		assert.NotEmpty(t, req["sessionToken"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":           true,
			"providerSessionId": providerSessionID,
		})
	}))
}

func TestLaunchGame(t *testing.T) {
	env := testutil.NewTestEnv(t)

	mock := mockProvider(t, "prov-sess-42")
	defer mock.Close()

	userID := env.CreateUser()
	providerID := env.CreateProvider(mock.URL)
	gameID := env.CreateGame(providerID)

	resp := env.OperatorPost("/casino/launchGame", map[string]interface{}{
		"userId":   userID.String(),
		"gameId":   gameID.String(),
		"currency": "EUR",
	})
	testutil.AssertStatus(t, resp, 200)

	var result launchResponse
	testutil.DecodeJSON(t, resp, &result)
	require.True(t, result.Success)
	assert.Len(t, result.SessionToken, 64)
	assert.Equal(t, int64(0), result.Balance)
	assert.Equal(t, "EUR", result.Currency)

	// The token works for callbacks immediately.
	bResp := env.SignedPost("/casino/getBalance", map[string]interface{}{
		"sessionToken": result.SessionToken,
	})
	testutil.AssertStatus(t, bResp, 200)
	bResp.Body.Close()

	// The provider's session id lands on the session row.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var providerSessionID string
	require.NoError(t, env.Pool.QueryRow(ctx, `
		SELECT provider_session_id FROM casino_game_sessions WHERE token = $1`,
		result.SessionToken).Scan(&providerSessionID))
	assert.Equal(t, "prov-sess-42", providerSessionID)
}

func TestLaunchGame_ReusesWallet(t *testing.T) {
	env := testutil.NewTestEnv(t)

	mock := mockProvider(t, "prov-sess-43")
	defer mock.Close()

	userID := env.CreateUser()
	providerID := env.CreateProvider(mock.URL)
	gameID := env.CreateGame(providerID)

	payload := map[string]interface{}{
		"userId": userID.String(),
		"gameId": gameID.String(),
	}

	resp := env.OperatorPost("/casino/launchGame", payload)
	testutil.AssertStatus(t, resp, 200)
	resp.Body.Close()

	resp = env.OperatorPost("/casino/launchGame", payload)
	testutil.AssertStatus(t, resp, 200)
	resp.Body.Close()

	// Two launches, one wallet per (user, currency).
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var wallets, sessions int
	require.NoError(t, env.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM casino_wallets WHERE user_id = $1", userID).Scan(&wallets))
	require.NoError(t, env.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM casino_game_sessions WHERE user_id = $1", userID).Scan(&sessions))
	assert.Equal(t, 1, wallets)
	assert.Equal(t, 2, sessions)
}

func TestLaunchGame_UnknownUser(t *testing.T) {
	env := testutil.NewTestEnv(t)
	providerID := env.CreateProvider("http://localhost:1")
	gameID := env.CreateGame(providerID)

	resp := env.OperatorPost("/casino/launchGame", map[string]interface{}{
		"userId": "0b6bfa8e-3b9e-44a1-9f5a-000000000000",
		"gameId": gameID.String(),
	})
	testutil.AssertStatus(t, resp, 404)
	testutil.AssertErrorCode(t, resp, "USER_NOT_FOUND")
}

func TestLaunchGame_ProviderUnreachable(t *testing.T) {
	env := testutil.NewTestEnv(t)

	userID := env.CreateUser()
	providerID := env.CreateProvider("http://localhost:1") // nothing listens here
	gameID := env.CreateGame(providerID)

	// The launch notification fails but the session is still issued.
	resp := env.OperatorPost("/casino/launchGame", map[string]interface{}{
		"userId": userID.String(),
		"gameId": gameID.String(),
	})
	testutil.AssertStatus(t, resp, 200)

	var result launchResponse
	testutil.DecodeJSON(t, resp, &result)
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.SessionToken)
}

func TestEndSession(t *testing.T) {
	env := testutil.NewTestEnv(t)
	seed := env.SeedSession("USD")
	env.Deposit(seed.WalletID, 1000)

	resp := env.OperatorPost("/casino/endSession", map[string]interface{}{
		"sessionToken": seed.Token,
	})
	testutil.AssertStatus(t, resp, 200)
	resp.Body.Close()

	resp = env.SignedPost("/casino/debit", map[string]interface{}{
		"sessionToken":  seed.Token,
		"transactionId": "tx-post-end",
		"amount":        100,
	})
	testutil.AssertStatus(t, resp, 401)
	testutil.AssertErrorCode(t, resp, "INVALID_SESSION")
}

func TestEndSession_UnknownToken(t *testing.T) {
	env := testutil.NewTestEnv(t)

	resp := env.OperatorPost("/casino/endSession", map[string]interface{}{
		"sessionToken": "no-such-token",
	})
	testutil.AssertStatus(t, resp, 401)
	testutil.AssertErrorCode(t, resp, "INVALID_SESSION")
}

func TestSessionTransactionHistory(t *testing.T) {
	env := testutil.NewTestEnv(t)
	seed := env.SeedSession("USD")
	env.Deposit(seed.WalletID, 5000)

	resp := env.SignedPost("/casino/debit", map[string]interface{}{
		"sessionToken":  seed.Token,
		"transactionId": "tx-hist-bet",
		"amount":        1000,
	})
	testutil.AssertStatus(t, resp, 200)
	resp.Body.Close()

	resp = env.SignedPost("/casino/credit", map[string]interface{}{
		"sessionToken":  seed.Token,
		"transactionId": "tx-hist-win",
		"amount":        500,
	})
	testutil.AssertStatus(t, resp, 200)
	resp.Body.Close()

	resp = env.OperatorGet("/casino/sessions/" + seed.Token + "/transactions")
	testutil.AssertStatus(t, resp, 200)

	var result struct {
		Success      bool `json:"success"`
		Transactions []struct {
			ExternalTransactionID string `json:"external_transaction_id"`
			Kind                  string `json:"kind"`
			Amount                int64  `json:"amount"`
			BalanceAfter          int64  `json:"balance_after"`
		} `json:"transactions"`
	}
	testutil.DecodeJSON(t, resp, &result)
	require.True(t, result.Success)
	require.Len(t, result.Transactions, 2)
	assert.Equal(t, "tx-hist-bet", result.Transactions[0].ExternalTransactionID)
	assert.Equal(t, "debit", result.Transactions[0].Kind)
	assert.Equal(t, int64(4000), result.Transactions[0].BalanceAfter)
	assert.Equal(t, "tx-hist-win", result.Transactions[1].ExternalTransactionID)
	assert.Equal(t, int64(4500), result.Transactions[1].BalanceAfter)
}

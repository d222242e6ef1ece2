//go:build integration

package integration

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/greenfelt/casino/internal/signature"
	"github.com/greenfelt/casino/test/integration/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallback_BadSignature(t *testing.T) {
	env := testutil.NewTestEnv(t)
	seed := env.SeedSession("USD")
	env.Deposit(seed.WalletID, 5000)

	resp := env.PostBadSig("/casino/debit", map[string]interface{}{
		"sessionToken":  seed.Token,
		"transactionId": "tx-bad-sig",
		"amount":        100,
	})
	testutil.AssertStatus(t, resp, 401)
	testutil.AssertErrorCode(t, resp, "SIGNATURE_INVALID")

	assert.Equal(t, int64(5000), env.WalletBalance(seed.WalletID))
	assert.Equal(t, 0, testutil.CountTransactions(t, env, seed.WalletID))
}

func TestCallback_MissingSignature(t *testing.T) {
	env := testutil.NewTestEnv(t)
	seed := env.SeedSession("USD")

	body := []byte(`{"sessionToken":"` + seed.Token + `"}`)
	resp, err := http.Post(env.Server.URL+"/casino/getBalance", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	testutil.AssertStatus(t, resp, 401)
	testutil.AssertErrorCode(t, resp, "SIGNATURE_INVALID")
}

func TestCallback_SignedMalformedJSON(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.SeedSession("USD")

	// Correctly signed but unparseable: signature passes, parsing fails.
	body := []byte(`{"sessionToken":`)
	req, err := http.NewRequest(http.MethodPost, env.Server.URL+"/casino/debit", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signature.HeaderProviderSignature,
		signature.New(testutil.TestProviderSecret).Sign(body))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	testutil.AssertStatus(t, resp, 400)
	testutil.AssertErrorCode(t, resp, "VALIDATION_ERROR")
}

func TestCallback_UnknownSessionToken(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.SeedSession("USD")

	resp := env.SignedPost("/casino/debit", map[string]interface{}{
		"sessionToken":  "not-a-real-token",
		"transactionId": "tx-bad-session",
		"amount":        100,
	})
	testutil.AssertStatus(t, resp, 401)
	testutil.AssertErrorCode(t, resp, "INVALID_SESSION")
}

func TestCallback_EndedSessionRejected(t *testing.T) {
	env := testutil.NewTestEnv(t)
	seed := env.SeedSession("USD")
	env.Deposit(seed.WalletID, 1000)
	env.EndSession(seed.Token)

	resp := env.SignedPost("/casino/debit", map[string]interface{}{
		"sessionToken":  seed.Token,
		"transactionId": "tx-after-end",
		"amount":        100,
	})
	testutil.AssertStatus(t, resp, 401)
	testutil.AssertErrorCode(t, resp, "INVALID_SESSION")
	assert.Equal(t, int64(1000), env.WalletBalance(seed.WalletID))
}

func TestOperator_MissingToken(t *testing.T) {
	env := testutil.NewTestEnv(t)

	body := []byte(`{"userId":"x","gameId":"y"}`)
	resp, err := http.Post(env.Server.URL+"/casino/launchGame", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 401, resp.StatusCode)
}

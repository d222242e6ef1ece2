//go:build integration

package integration

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/greenfelt/casino/test/integration/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rollbackResponse struct {
	Success           bool   `json:"success"`
	TransactionID     string `json:"transactionId"`
	RolledBack        bool   `json:"rolledBack"`
	Balance           int64  `json:"balance"`
	Currency          string `json:"currency"`
	Message           string `json:"message"`
	Tombstone         bool   `json:"tombstone"`
	AlreadyRolledBack bool   `json:"alreadyRolledBack"`
}

func TestRollback_ReversesDebit(t *testing.T) {
	env := testutil.NewTestEnv(t)
	seed := env.SeedSession("USD")
	env.Deposit(seed.WalletID, 10000)

	resp := env.SignedPost("/casino/debit", map[string]interface{}{
		"sessionToken":  seed.Token,
		"transactionId": "tx-rb-bet",
		"roundId":       "round-rb",
		"amount":        2000,
	})
	testutil.AssertStatus(t, resp, 200)
	resp.Body.Close()
	require.Equal(t, int64(8000), env.WalletBalance(seed.WalletID))

	resp = env.SignedPost("/casino/rollback", map[string]interface{}{
		"sessionToken":          seed.Token,
		"transactionId":         "tx-rb-1",
		"originalTransactionId": "tx-rb-bet",
		"reason":                "provider error",
	})
	testutil.AssertStatus(t, resp, 200)

	var result rollbackResponse
	testutil.DecodeJSON(t, resp, &result)
	assert.True(t, result.Success)
	assert.True(t, result.RolledBack)
	assert.Equal(t, int64(10000), result.Balance)
	assert.Equal(t, int64(10000), env.WalletBalance(seed.WalletID))

	// The original entry is flagged and the reversing entry references it.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var originalFlag bool
	require.NoError(t, env.Pool.QueryRow(ctx, `
		SELECT is_rollback FROM casino_transactions
		WHERE external_transaction_id = 'tx-rb-bet'`).Scan(&originalFlag))
	assert.True(t, originalFlag)

	var related string
	require.NoError(t, env.Pool.QueryRow(ctx, `
		SELECT related_external_transaction_id FROM casino_transactions
		WHERE external_transaction_id = 'tx-rb-1'`).Scan(&related))
	assert.Equal(t, "tx-rb-bet", related)
}

func TestRollback_Idempotent(t *testing.T) {
	env := testutil.NewTestEnv(t)
	seed := env.SeedSession("USD")
	env.Deposit(seed.WalletID, 5000)

	resp := env.SignedPost("/casino/debit", map[string]interface{}{
		"sessionToken":  seed.Token,
		"transactionId": "tx-ri-bet",
		"amount":        1000,
	})
	testutil.AssertStatus(t, resp, 200)
	resp.Body.Close()

	payload := map[string]interface{}{
		"sessionToken":          seed.Token,
		"transactionId":         "tx-ri-rb",
		"originalTransactionId": "tx-ri-bet",
	}

	resp = env.SignedPost("/casino/rollback", payload)
	testutil.AssertStatus(t, resp, 200)
	first := testutil.ReadBody(t, resp)

	resp = env.SignedPost("/casino/rollback", payload)
	testutil.AssertStatus(t, resp, 200)
	second := testutil.ReadBody(t, resp)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(5000), env.WalletBalance(seed.WalletID))
	assert.Equal(t, 2, testutil.CountTransactions(t, env, seed.WalletID))
}

func TestRollback_UnknownOriginalRecordsTombstone(t *testing.T) {
	env := testutil.NewTestEnv(t)
	seed := env.SeedSession("USD")
	env.Deposit(seed.WalletID, 3000)

	resp := env.SignedPost("/casino/rollback", map[string]interface{}{
		"sessionToken":          seed.Token,
		"transactionId":         "tx-ghost-rb",
		"originalTransactionId": "tx-never-arrived",
	})
	testutil.AssertStatus(t, resp, 200)

	var result rollbackResponse
	testutil.DecodeJSON(t, resp, &result)
	assert.True(t, result.Success)
	assert.True(t, result.Tombstone)
	assert.Equal(t, int64(3000), result.Balance)
	assert.Equal(t, int64(3000), env.WalletBalance(seed.WalletID))
	assert.Equal(t, 1, testutil.CountTransactions(t, env, seed.WalletID))
}

func TestRollback_TombstoneBlocksLateDebit(t *testing.T) {
	env := testutil.NewTestEnv(t)
	seed := env.SeedSession("USD")
	env.Deposit(seed.WalletID, 3000)

	resp := env.SignedPost("/casino/rollback", map[string]interface{}{
		"sessionToken":          seed.Token,
		"transactionId":         "tx-tomb-rb",
		"originalTransactionId": "tx-slow-bet",
	})
	testutil.AssertStatus(t, resp, 200)
	resp.Body.Close()

	// The debit finally arrives under the rollback's own id. The id is
	// taken by the tombstone, so the probe replays the tombstone body
	// instead of deducting.
	resp = env.SignedPost("/casino/debit", map[string]interface{}{
		"sessionToken":  seed.Token,
		"transactionId": "tx-tomb-rb",
		"amount":        1000,
	})
	testutil.AssertStatus(t, resp, 200)

	var result rollbackResponse
	testutil.DecodeJSON(t, resp, &result)
	assert.True(t, result.Tombstone)
	assert.Equal(t, int64(3000), env.WalletBalance(seed.WalletID))
}

func TestRollback_ConcurrentDistinctIDsReverseOnce(t *testing.T) {
	env := testutil.NewTestEnv(t)
	seed := env.SeedSession("USD")
	env.Deposit(seed.WalletID, 5000)

	resp := env.SignedPost("/casino/debit", map[string]interface{}{
		"sessionToken":  seed.Token,
		"transactionId": "tx-race-bet",
		"amount":        2000,
	})
	testutil.AssertStatus(t, resp, 200)
	resp.Body.Close()

	// A retrying provider that regenerates its rollback id on each
	// attempt: every request targets the same original under a fresh id,
	// so the unique index offers no protection.
	const workers = 6
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			resp := env.SignedPost("/casino/rollback", map[string]interface{}{
				"sessionToken":          seed.Token,
				"transactionId":         fmt.Sprintf("tx-race-rb-%d", i),
				"originalTransactionId": "tx-race-bet",
			})
			assert.Equal(t, 200, resp.StatusCode)
			resp.Body.Close()
		}(i)
	}
	wg.Wait()

	// The amount comes back exactly once; the losers degrade to
	// zero-amount already-rolled-back markers.
	assert.Equal(t, int64(5000), env.WalletBalance(seed.WalletID))
	assert.Equal(t, 1+workers, testutil.CountTransactions(t, env, seed.WalletID))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var reversals int
	require.NoError(t, env.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM casino_transactions
		WHERE kind = 'rollback' AND related_external_transaction_id = 'tx-race-bet'`).Scan(&reversals))
	assert.Equal(t, 1, reversals)
}

func TestRollback_TombstoneShadowsLateOriginal(t *testing.T) {
	env := testutil.NewTestEnv(t)
	seed := env.SeedSession("USD")
	env.Deposit(seed.WalletID, 3000)

	resp := env.SignedPost("/casino/rollback", map[string]interface{}{
		"sessionToken":          seed.Token,
		"transactionId":         "tx-shadow-rb",
		"originalTransactionId": "tx-shadow-bet",
	})
	testutil.AssertStatus(t, resp, 200)
	resp.Body.Close()

	// The debit finally arrives under its own original id. Nothing owns
	// that id, so it posts and deducts normally.
	resp = env.SignedPost("/casino/debit", map[string]interface{}{
		"sessionToken":  seed.Token,
		"transactionId": "tx-shadow-bet",
		"amount":        1000,
	})
	testutil.AssertStatus(t, resp, 200)
	resp.Body.Close()
	require.Equal(t, int64(2000), env.WalletBalance(seed.WalletID))

	// But the tombstone already references it, so the late debit can
	// never be reversed: any rollback of it lands on the marker path.
	resp = env.SignedPost("/casino/rollback", map[string]interface{}{
		"sessionToken":          seed.Token,
		"transactionId":         "tx-shadow-rb-2",
		"originalTransactionId": "tx-shadow-bet",
	})
	testutil.AssertStatus(t, resp, 200)

	var result rollbackResponse
	testutil.DecodeJSON(t, resp, &result)
	assert.True(t, result.AlreadyRolledBack)
	assert.Equal(t, int64(2000), env.WalletBalance(seed.WalletID))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var flagged bool
	require.NoError(t, env.Pool.QueryRow(ctx, `
		SELECT is_rollback FROM casino_transactions
		WHERE external_transaction_id = 'tx-shadow-bet'`).Scan(&flagged))
	assert.False(t, flagged)
}

func TestRollback_OfRollbackRefused(t *testing.T) {
	env := testutil.NewTestEnv(t)
	seed := env.SeedSession("USD")
	env.Deposit(seed.WalletID, 5000)

	resp := env.SignedPost("/casino/debit", map[string]interface{}{
		"sessionToken":  seed.Token,
		"transactionId": "tx-rr-bet",
		"amount":        500,
	})
	testutil.AssertStatus(t, resp, 200)
	resp.Body.Close()

	resp = env.SignedPost("/casino/rollback", map[string]interface{}{
		"sessionToken":          seed.Token,
		"transactionId":         "tx-rr-rb1",
		"originalTransactionId": "tx-rr-bet",
	})
	testutil.AssertStatus(t, resp, 200)
	resp.Body.Close()

	resp = env.SignedPost("/casino/rollback", map[string]interface{}{
		"sessionToken":          seed.Token,
		"transactionId":         "tx-rr-rb2",
		"originalTransactionId": "tx-rr-rb1",
	})
	testutil.AssertStatus(t, resp, 200)

	var result rollbackResponse
	testutil.DecodeJSON(t, resp, &result)
	assert.True(t, result.Success)
	assert.False(t, result.RolledBack)
	assert.Equal(t, "cannot rollback a rollback", result.Message)

	// Refused without recording: only the bet and its reversal exist.
	assert.Equal(t, 2, testutil.CountTransactions(t, env, seed.WalletID))
	assert.Equal(t, int64(5000), env.WalletBalance(seed.WalletID))
}

func TestRollback_AlreadyReversedRecordsMarker(t *testing.T) {
	env := testutil.NewTestEnv(t)
	seed := env.SeedSession("USD")
	env.Deposit(seed.WalletID, 5000)

	resp := env.SignedPost("/casino/debit", map[string]interface{}{
		"sessionToken":  seed.Token,
		"transactionId": "tx-ar-bet",
		"amount":        700,
	})
	testutil.AssertStatus(t, resp, 200)
	resp.Body.Close()

	resp = env.SignedPost("/casino/rollback", map[string]interface{}{
		"sessionToken":          seed.Token,
		"transactionId":         "tx-ar-rb1",
		"originalTransactionId": "tx-ar-bet",
	})
	testutil.AssertStatus(t, resp, 200)
	resp.Body.Close()

	// A second rollback under a fresh id targets the same original.
	resp = env.SignedPost("/casino/rollback", map[string]interface{}{
		"sessionToken":          seed.Token,
		"transactionId":         "tx-ar-rb2",
		"originalTransactionId": "tx-ar-bet",
	})
	testutil.AssertStatus(t, resp, 200)

	var result rollbackResponse
	testutil.DecodeJSON(t, resp, &result)
	assert.True(t, result.Success)
	assert.True(t, result.AlreadyRolledBack)
	assert.Equal(t, int64(5000), result.Balance)
	assert.Equal(t, int64(5000), env.WalletBalance(seed.WalletID))
	assert.Equal(t, 3, testutil.CountTransactions(t, env, seed.WalletID))
}

func TestRollback_CreditRejected(t *testing.T) {
	env := testutil.NewTestEnv(t)
	seed := env.SeedSession("USD")
	env.Deposit(seed.WalletID, 1000)

	resp := env.SignedPost("/casino/credit", map[string]interface{}{
		"sessionToken":  seed.Token,
		"transactionId": "tx-cr-win",
		"amount":        2000,
	})
	testutil.AssertStatus(t, resp, 200)
	resp.Body.Close()

	resp = env.SignedPost("/casino/rollback", map[string]interface{}{
		"sessionToken":          seed.Token,
		"transactionId":         "tx-cr-rb",
		"originalTransactionId": "tx-cr-win",
	})
	testutil.AssertStatus(t, resp, 400)
	testutil.AssertErrorCode(t, resp, "CANNOT_ROLLBACK_PAYOUT")

	assert.Equal(t, int64(3000), env.WalletBalance(seed.WalletID))
	assert.Equal(t, 1, testutil.CountTransactions(t, env, seed.WalletID))
}

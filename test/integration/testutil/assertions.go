//go:build integration

package testutil

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
)

// ReadBody reads and closes the response body, returning its raw bytes.
func ReadBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadBody: %v", err)
	}
	return body
}

// DecodeJSON reads and decodes a JSON response body into dst.
func DecodeJSON(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
}

// AssertStatus checks that the response has the expected HTTP status code.
func AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// AssertErrorCode checks that the response body carries the expected
// error code in the {success, error, code} wire shape.
func AssertErrorCode(t *testing.T, resp *http.Response, expectedCode string) {
	t.Helper()
	var errResp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
		Code    string `json:"code"`
	}
	DecodeJSON(t, resp, &errResp)
	if errResp.Success {
		t.Errorf("expected success=false on error response")
	}
	if errResp.Code != expectedCode {
		t.Errorf("expected error code %q, got %q (error: %s)", expectedCode, errResp.Code, errResp.Error)
	}
}

// CountTransactions returns the number of ledger entries for a wallet.
func CountTransactions(t *testing.T, env *TestEnv, walletID uuid.UUID) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var count int
	err := env.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM casino_transactions WHERE wallet_id = $1", walletID).Scan(&count)
	if err != nil {
		t.Fatalf("CountTransactions: %v", err)
	}
	return count
}

// CountOutboxEvents returns the number of outbox events for a wallet.
func CountOutboxEvents(t *testing.T, env *TestEnv, walletID uuid.UUID) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var count int
	err := env.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM casino_event_outbox WHERE aggregate_id = $1",
		walletID.String()).Scan(&count)
	if err != nil {
		t.Fatalf("CountOutboxEvents: %v", err)
	}
	return count
}

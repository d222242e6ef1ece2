package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/greenfelt/casino/internal/domain"
	"github.com/greenfelt/casino/internal/signature"
)

// launchTimeout bounds the outbound launch call; exceeding it is logged
// and swallowed by the caller, the session stays valid.
const launchTimeout = 10 * time.Second

// Client calls the game provider's own API. Every outbound body is
// signed with the casino secret over the exact bytes sent.
type Client struct {
	http   *http.Client
	signer *signature.Signer
	logger *slog.Logger
}

// NewClient creates a provider API client signing with the given signer.
func NewClient(signer *signature.Signer, logger *slog.Logger) *Client {
	return &Client{
		http:   &http.Client{Timeout: launchTimeout},
		signer: signer,
		logger: logger,
	}
}

// LaunchRequest is the body sent to the provider's launch endpoint.
type LaunchRequest struct {
	CasinoSessionID string `json:"casinoSessionId"`
	SessionToken    string `json:"sessionToken"`
	UserID          string `json:"userId"`
	GameID          string `json:"gameId"`
	Currency        string `json:"currency"`
}

// LaunchResponse is the provider's launch ack.
type LaunchResponse struct {
	Success           bool   `json:"success"`
	ProviderSessionID string `json:"providerSessionId"`
}

// Launch asks the provider to open its side of the session.
func (c *Client) Launch(ctx context.Context, apiURL string, req LaunchRequest) (*LaunchResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal launch request: %w", err)
	}

	url := strings.TrimRight(apiURL, "/") + "/provider/launch"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build launch request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(signature.HeaderCasinoSignature, c.signer.Sign(body))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, domain.ErrCasinoAPI("provider launch call failed", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, domain.ErrCasinoAPI("read provider launch response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("provider launch returned non-2xx",
			"status", resp.StatusCode, "url", url)
		return nil, domain.ErrCasinoAPI(
			fmt.Sprintf("provider launch returned status %d", resp.StatusCode), nil)
	}

	var ack LaunchResponse
	if err := json.Unmarshal(payload, &ack); err != nil {
		return nil, domain.ErrCasinoAPI("decode provider launch response", err)
	}

	return &ack, nil
}

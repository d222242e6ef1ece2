package callbackserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/greenfelt/casino/internal/auth"
	"github.com/greenfelt/casino/internal/domain"
	"github.com/greenfelt/casino/internal/infra"
	"github.com/greenfelt/casino/internal/ledger"
	"github.com/greenfelt/casino/internal/provider"
	"github.com/greenfelt/casino/internal/repository"
	"github.com/greenfelt/casino/internal/session"
	"github.com/greenfelt/casino/internal/signature"
	"github.com/jackc/pgx/v5/pgxpool"
)

// maxBodyBytes caps callback request bodies. Signed bodies are tiny;
// anything bigger is hostile.
const maxBodyBytes = 1 << 20

// Server hosts both HTTP surfaces: the provider-facing callback
// endpoints (signature-gated) and the casino-facing launch/session
// endpoints (operator JWT).
type Server struct {
	pool           *pgxpool.Pool
	engine         *ledger.Engine
	registry       *session.Registry
	provider       *provider.Client
	transactions   repository.TransactionRepository
	providerSigner *signature.Signer
	jwtMgr         *auth.JWTManager
	logger         *slog.Logger
}

// NewServer wires the HTTP surface to the ledger engine and session
// registry. providerSigner verifies inbound x-provider-signature
// headers; the outbound casino signer lives inside the provider client.
func NewServer(
	pool *pgxpool.Pool,
	engine *ledger.Engine,
	registry *session.Registry,
	providerClient *provider.Client,
	transactions repository.TransactionRepository,
	providerSigner *signature.Signer,
	jwtMgr *auth.JWTManager,
	logger *slog.Logger,
) *Server {
	return &Server{
		pool:           pool,
		engine:         engine,
		registry:       registry,
		provider:       providerClient,
		transactions:   transactions,
		providerSigner: providerSigner,
		jwtMgr:         jwtMgr,
		logger:         logger,
	}
}

// Router builds the chi router with middleware and all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(Recovery(s.logger))
	r.Use(RequestID)
	r.Use(RequestLogger(s.logger))

	r.Get("/health", s.handleHealth)

	// Provider callbacks. Each handler verifies the body signature
	// before parsing anything.
	r.Route("/casino", func(r chi.Router) {
		r.Post("/getBalance", s.handleGetBalance)
		r.Post("/debit", s.handleDebit)
		r.Post("/credit", s.handleCredit)
		r.Post("/rollback", s.handleRollback)

		r.Group(func(r chi.Router) {
			r.Use(auth.AuthenticateOperator(s.jwtMgr))
			r.Post("/launchGame", s.handleLaunchGame)
			r.Post("/endSession", s.handleEndSession)
			r.Get("/sessions/{token}/transactions", s.handleSessionTransactions)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := infra.HealthCheck(r.Context(), s.pool); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readVerifiedBody reads the raw body and checks its HMAC signature
// against the x-provider-signature header. Verification runs over the
// exact bytes received, before any JSON parsing.
func (s *Server) readVerifiedBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if !s.providerSigner.Configured() {
		respondError(w, r, s.logger, domain.ErrInternal("provider secret not configured", nil))
		return nil, false
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, r, s.logger, domain.ErrValidation("unreadable request body"))
		return nil, false
	}

	if !s.providerSigner.Verify(body, r.Header.Get(signature.HeaderProviderSignature)) {
		s.logger.Warn("callback signature rejected",
			"path", r.URL.Path, "request_id", requestID(r.Context()))
		respondError(w, r, s.logger, domain.ErrSignatureInvalid())
		return nil, false
	}

	return body, true
}

type balanceRequest struct {
	SessionToken string `json:"sessionToken"`
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readVerifiedBody(w, r)
	if !ok {
		return
	}

	var req balanceRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, r, s.logger, domain.ErrValidation("malformed JSON body"))
		return
	}
	if err := domain.ValidateRequired("sessionToken", req.SessionToken); err != nil {
		respondError(w, r, s.logger, err)
		return
	}

	result, err := s.engine.Balance(r.Context(), req.SessionToken)
	if err != nil {
		respondError(w, r, s.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"balance":  result.Balance,
		"currency": result.Currency,
	})
}

type debitRequest struct {
	SessionToken  string `json:"sessionToken"`
	TransactionID string `json:"transactionId"`
	RoundID       string `json:"roundId"`
	Amount        int64  `json:"amount"`
}

func (s *Server) handleDebit(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readVerifiedBody(w, r)
	if !ok {
		return
	}

	var req debitRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, r, s.logger, domain.ErrValidation("malformed JSON body"))
		return
	}
	if err := requireFields(map[string]string{
		"sessionToken":  req.SessionToken,
		"transactionId": req.TransactionID,
	}); err != nil {
		respondError(w, r, s.logger, err)
		return
	}

	result, err := s.engine.Debit(r.Context(), domain.DebitParams{
		SessionToken:          req.SessionToken,
		ExternalTransactionID: req.TransactionID,
		RoundID:               req.RoundID,
		Amount:                req.Amount,
	})
	if err != nil {
		respondError(w, r, s.logger, err)
		return
	}

	respondRaw(w, http.StatusOK, result.Response)
}

type creditRequest struct {
	SessionToken         string `json:"sessionToken"`
	TransactionID        string `json:"transactionId"`
	RoundID              string `json:"roundId"`
	Amount               int64  `json:"amount"`
	RelatedTransactionID string `json:"relatedTransactionId"`
}

func (s *Server) handleCredit(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readVerifiedBody(w, r)
	if !ok {
		return
	}

	var req creditRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, r, s.logger, domain.ErrValidation("malformed JSON body"))
		return
	}
	if err := requireFields(map[string]string{
		"sessionToken":  req.SessionToken,
		"transactionId": req.TransactionID,
	}); err != nil {
		respondError(w, r, s.logger, err)
		return
	}

	result, err := s.engine.Credit(r.Context(), domain.CreditParams{
		SessionToken:          req.SessionToken,
		ExternalTransactionID: req.TransactionID,
		RoundID:               req.RoundID,
		Amount:                req.Amount,
		RelatedTransactionID:  req.RelatedTransactionID,
	})
	if err != nil {
		respondError(w, r, s.logger, err)
		return
	}

	respondRaw(w, http.StatusOK, result.Response)
}

type rollbackRequest struct {
	SessionToken          string `json:"sessionToken"`
	TransactionID         string `json:"transactionId"`
	OriginalTransactionID string `json:"originalTransactionId"`
	Reason                string `json:"reason"`
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readVerifiedBody(w, r)
	if !ok {
		return
	}

	var req rollbackRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, r, s.logger, domain.ErrValidation("malformed JSON body"))
		return
	}
	if err := requireFields(map[string]string{
		"sessionToken":          req.SessionToken,
		"transactionId":         req.TransactionID,
		"originalTransactionId": req.OriginalTransactionID,
	}); err != nil {
		respondError(w, r, s.logger, err)
		return
	}

	result, err := s.engine.Rollback(r.Context(), domain.RollbackParams{
		SessionToken:          req.SessionToken,
		ExternalTransactionID: req.TransactionID,
		OriginalTransactionID: req.OriginalTransactionID,
		Reason:                req.Reason,
	})
	if err != nil {
		respondError(w, r, s.logger, err)
		return
	}

	respondRaw(w, http.StatusOK, result.Response)
}

type launchGameRequest struct {
	UserID   string `json:"userId"`
	GameID   string `json:"gameId"`
	Currency string `json:"currency"`
}

type launchGameResponse struct {
	Success      bool   `json:"success"`
	SessionID    string `json:"sessionId"`
	SessionToken string `json:"sessionToken"`
	Balance      int64  `json:"balance"`
	Currency     string `json:"currency"`
}

func (s *Server) handleLaunchGame(w http.ResponseWriter, r *http.Request) {
	var req launchGameRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, s.logger, err)
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		respondError(w, r, s.logger, domain.ErrValidation("userId must be a UUID"))
		return
	}
	gameID, err := uuid.Parse(req.GameID)
	if err != nil {
		respondError(w, r, s.logger, domain.ErrValidation("gameId must be a UUID"))
		return
	}

	result, err := s.registry.Launch(r.Context(), session.LaunchParams{
		UserID:   userID,
		GameID:   gameID,
		Currency: req.Currency,
	})
	if err != nil {
		respondError(w, r, s.logger, err)
		return
	}

	s.notifyProvider(r.Context(), result)

	respondJSON(w, http.StatusOK, launchGameResponse{
		Success:      true,
		SessionID:    result.Session.ID.String(),
		SessionToken: result.Session.Token,
		Balance:      result.Wallet.PlayableBalance,
		Currency:     result.Wallet.Currency,
	})
}

// notifyProvider tells the provider's API about the new session.
// Failures are logged and swallowed: the session is already persisted
// and the provider can still reach it through the token.
func (s *Server) notifyProvider(ctx context.Context, result *session.LaunchResult) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	ack, err := s.provider.Launch(ctx, result.Provider.APIURL, provider.LaunchRequest{
		CasinoSessionID: result.Session.ID.String(),
		SessionToken:    result.Session.Token,
		UserID:          result.User.ID.String(),
		GameID:          result.Game.ExternalGameID,
		Currency:        result.Wallet.Currency,
	})
	if err != nil {
		s.logger.Warn("provider launch notification failed",
			"session_id", result.Session.ID, "provider", result.Provider.Name, "error", err)
		return
	}

	if ack.ProviderSessionID != "" {
		if err := s.registry.AttachProviderSession(ctx, result.Session.ID, ack.ProviderSessionID); err != nil {
			s.logger.Warn("attach provider session failed",
				"session_id", result.Session.ID, "error", err)
		}
	}
}

type endSessionRequest struct {
	SessionToken string `json:"sessionToken"`
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	var req endSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, s.logger, err)
		return
	}
	if err := domain.ValidateRequired("sessionToken", req.SessionToken); err != nil {
		respondError(w, r, s.logger, err)
		return
	}

	ended, err := s.registry.End(r.Context(), req.SessionToken)
	if err != nil {
		respondError(w, r, s.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"sessionId": ended.ID.String(),
		"endedAt":   ended.EndedAt,
	})
}

func (s *Server) handleSessionTransactions(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	sess, err := s.registry.Resolve(r.Context(), token)
	if err != nil {
		respondError(w, r, s.logger, err)
		return
	}
	if sess == nil {
		respondError(w, r, s.logger, domain.ErrInvalidSession())
		return
	}

	entries, err := s.transactions.ListByWallet(r.Context(), s.pool, sess.WalletID, 200)
	if err != nil {
		respondError(w, r, s.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"sessionId":    sess.ID.String(),
		"transactions": entries,
	})
}

// decodeJSON parses a JSON body on the JWT-guarded surface, where no
// signature check needs the raw bytes.
func decodeJSON(r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return domain.ErrValidation("unreadable request body")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return domain.ErrValidation("malformed JSON body")
	}
	return nil
}

func requireFields(fields map[string]string) error {
	for name, value := range fields {
		if err := domain.ValidateRequired(name, value); err != nil {
			return err
		}
	}
	return nil
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/walletpay/infra/idempotency"
	"github.com/mstgnz/walletpay/infra/logger"
	"github.com/mstgnz/walletpay/infra/postgres"
	"github.com/mstgnz/walletpay/infra/response"
	"github.com/mstgnz/walletpay/infra/validate"
	"github.com/mstgnz/walletpay/payment"
)

const (
	adminQueryTimeout = 10 * time.Second

	defaultAttemptLimit = 20
	maxAttemptLimit     = 100
	defaultStatsHours   = 24
	maxStatsHours       = 8760
)

// AttemptReader lists recorded payment attempts, newest first
type AttemptReader interface {
	RecentAttempts(ctx context.Context, state string, limit int) ([]payment.Attempt, error)
}

// AttemptStatsReader aggregates recorded payment attempts
type AttemptStatsReader interface {
	Stats(ctx context.Context, hours int) (postgres.AttemptStats, error)
}

// StoreStatsReader reports the state of the idempotency store
type StoreStatsReader interface {
	Stats() idempotency.Stats
}

// AdminHandler edits the live transaction configuration and exposes the
// attempt history. All routes sit behind the admin API key.
type AdminHandler struct {
	config   *payment.TransactionConfig
	attempts AttemptReader
	stats    AttemptStatsReader
	store    StoreStatsReader
	validate *validator.Validate
}

// NewAdminHandler creates a new admin handler. attempts, stats and store may be nil.
func NewAdminHandler(config *payment.TransactionConfig, attempts AttemptReader, stats AttemptStatsReader, store StoreStatsReader) *AdminHandler {
	return &AdminHandler{
		config:   config,
		attempts: attempts,
		stats:    stats,
		store:    store,
		validate: validate.New(),
	}
}

// TransactionView is the admin view of the transaction configuration
type TransactionView struct {
	MerchantID          string                `json:"merchantId"`
	MerchantName        string                `json:"merchantName"`
	GatewayName         string                `json:"gatewayName"`
	Environment         payment.Environment   `json:"environment"`
	CurrencyCode        string                `json:"currencyCode"`
	CountryCode         string                `json:"countryCode"`
	TotalPrice          string                `json:"totalPrice"`
	AllowedCardNetworks []payment.CardNetwork `json:"allowedCardNetworks"`
	AllowedAuthMethods  []payment.AuthMethod  `json:"allowedAuthMethods"`
	Ready               bool                  `json:"ready"`
	Problem             string                `json:"problem,omitempty"`
}

type amountRequest struct {
	Amount string `json:"amount" validate:"required,max=32"`
}

type currencyRequest struct {
	CurrencyCode string `json:"currencyCode" validate:"required,len=3,alpha"`
	CountryCode  string `json:"countryCode" validate:"omitempty,len=2,alpha"`
}

// GetTransaction returns the current settings and whether they can be served
func (h *AdminHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	response.Success(w, http.StatusOK, "Transaction configuration", h.view())
}

// UpdateAmount sets the transaction total, {"amount":"12.50"}
func (h *AdminHandler) UpdateAmount(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.config.UpdateAmount(req.Amount); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	h.audit(r, "Transaction amount changed", map[string]any{"total_price": h.config.Snapshot().TotalPrice()})
	response.Success(w, http.StatusOK, "Amount updated", h.view())
}

// UpdateCurrency sets the currency and optionally the country
func (h *AdminHandler) UpdateCurrency(w http.ResponseWriter, r *http.Request) {
	var req currencyRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.config.SetCurrency(req.CurrencyCode, req.CountryCode); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid currency", err)
		return
	}

	snap := h.config.Snapshot()
	h.audit(r, "Transaction currency changed", map[string]any{
		"currency_code": snap.CurrencyCode,
		"country_code":  snap.CountryCode,
	})
	response.Success(w, http.StatusOK, "Currency updated", h.view())
}

// AddCardNetwork accepts {network}; adding an accepted network changes nothing
func (h *AdminHandler) AddCardNetwork(w http.ResponseWriter, r *http.Request) {
	network := chi.URLParam(r, "network")
	if err := h.config.AddCardNetwork(network); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid card network", err)
		return
	}

	h.audit(r, "Card network added", map[string]any{"card_network": strings.ToUpper(network)})
	response.Success(w, http.StatusOK, "Card network added", h.view())
}

// RemoveCardNetwork stops accepting {network}
func (h *AdminHandler) RemoveCardNetwork(w http.ResponseWriter, r *http.Request) {
	network := chi.URLParam(r, "network")
	h.config.RemoveCardNetwork(network)

	h.audit(r, "Card network removed", map[string]any{"card_network": strings.ToUpper(network)})
	response.Success(w, http.StatusOK, "Card network removed", h.view())
}

// AddAuthMethod accepts {method}
func (h *AdminHandler) AddAuthMethod(w http.ResponseWriter, r *http.Request) {
	method := chi.URLParam(r, "method")
	if err := h.config.AddAuthMethod(method); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid auth method", err)
		return
	}

	h.audit(r, "Auth method added", map[string]any{"auth_method": strings.ToUpper(method)})
	response.Success(w, http.StatusOK, "Auth method added", h.view())
}

// RemoveAuthMethod stops accepting {method}
func (h *AdminHandler) RemoveAuthMethod(w http.ResponseWriter, r *http.Request) {
	method := chi.URLParam(r, "method")
	h.config.RemoveAuthMethod(method)

	h.audit(r, "Auth method removed", map[string]any{"auth_method": strings.ToUpper(method)})
	response.Success(w, http.StatusOK, "Auth method removed", h.view())
}

// ListAttempts returns recent attempts, ?state=FAILED&limit=50
func (h *AdminHandler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	if h.attempts == nil {
		response.Error(w, http.StatusServiceUnavailable, "Attempt recording is not enabled", nil)
		return
	}

	state := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("state")))
	if state != "" && !isTerminalState(payment.State(state)) {
		response.Error(w, http.StatusBadRequest, "Invalid state", errors.New("state must be SUCCEEDED, FAILED or ERRORED"))
		return
	}

	limit, err := intQuery(r, "limit", defaultAttemptLimit, 1, maxAttemptLimit)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), adminQueryTimeout)
	defer cancel()

	attempts, err := h.attempts.RecentAttempts(ctx, state, limit)
	if err != nil {
		logger.Error("Failed to load payment attempts", err, requestLogContext(r))
		response.Error(w, http.StatusInternalServerError, "Failed to load payment attempts", nil)
		return
	}
	if attempts == nil {
		attempts = []payment.Attempt{}
	}

	response.Success(w, http.StatusOK, "Payment attempts", map[string]any{
		"count":    len(attempts),
		"attempts": attempts,
	})
}

// AttemptStats summarises the attempts of the last ?hours=24
func (h *AdminHandler) AttemptStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		response.Error(w, http.StatusServiceUnavailable, "Attempt statistics require PostgreSQL logging", nil)
		return
	}

	hours, err := intQuery(r, "hours", defaultStatsHours, 1, maxStatsHours)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid hours", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), adminQueryTimeout)
	defer cancel()

	stats, err := h.stats.Stats(ctx, hours)
	if err != nil {
		logger.Error("Failed to load attempt statistics", err, requestLogContext(r))
		response.Error(w, http.StatusInternalServerError, "Failed to load attempt statistics", nil)
		return
	}

	response.Success(w, http.StatusOK, "Attempt statistics", stats)
}

// IdempotencyStats reports the idempotency store counters
func (h *AdminHandler) IdempotencyStats(w http.ResponseWriter, r *http.Request) {
	stats := idempotency.Stats{Backend: idempotency.BackendNone}
	if h.store != nil {
		stats = h.store.Stats()
	}
	response.Success(w, http.StatusOK, "Idempotency store", stats)
}

func (h *AdminHandler) view() TransactionView {
	snap := h.config.Snapshot()
	view := TransactionView{
		MerchantID:          snap.MerchantID,
		MerchantName:        snap.MerchantName,
		GatewayName:         snap.GatewayName,
		Environment:         snap.Environment,
		CurrencyCode:        snap.CurrencyCode,
		CountryCode:         snap.CountryCode,
		TotalPrice:          snap.TotalPrice(),
		AllowedCardNetworks: snap.CardNetworks,
		AllowedAuthMethods:  snap.AuthMethods,
		Ready:               true,
	}
	if view.AllowedCardNetworks == nil {
		view.AllowedCardNetworks = []payment.CardNetwork{}
	}
	if view.AllowedAuthMethods == nil {
		view.AllowedAuthMethods = []payment.AuthMethod{}
	}
	if _, err := snap.Describe(); err != nil {
		view.Ready = false
		view.Problem = err.Error()
	}
	return view
}

func (h *AdminHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", nil)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", errors.New(validate.Describe(err)))
		return false
	}
	return true
}

func (h *AdminHandler) audit(r *http.Request, message string, fields map[string]any) {
	logCtx := requestLogContext(r)
	for k, v := range fields {
		logCtx.Fields[k] = v
	}
	logger.Info(message, logCtx)
}

func isTerminalState(s payment.State) bool {
	return s == payment.StateSucceeded || s == payment.StateFailed || s == payment.StateErrored
}

func intQuery(r *http.Request, name string, def, lo, hi int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("%s must be between %d and %d", name, lo, hi)
	}
	return n, nil
}

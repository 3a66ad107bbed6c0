package router

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/mstgnz/walletpay/handler"
	"github.com/mstgnz/walletpay/infra/config"
	"github.com/mstgnz/walletpay/infra/middle"
	"github.com/mstgnz/walletpay/infra/response"
	"github.com/mstgnz/walletpay/payment"
)

// Dependencies are the services the routes are built from.
// Attempts, Stats, Store, DB and RateLimiter are optional.
type Dependencies struct {
	App         *config.AppConfig
	Transaction *payment.TransactionConfig
	Processor   handler.PaymentProcessor
	Attempts    handler.AttemptReader
	Stats       handler.AttemptStatsReader
	Store       handler.StoreStatsReader
	DB          *sql.DB
	OpenSearch  bool
	RateLimiter *middle.RateLimiter
}

// New builds the HTTP router
func New(deps Dependencies) chi.Router {
	r := chi.NewRouter()
	Routes(r, deps)
	return r
}

// Routes registers middleware and all routes on r
func Routes(r chi.Router, deps Dependencies) {
	app := deps.App

	requestTimeout := app.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}

	r.Use(middleware.RealIP)
	r.Use(middle.RequestLoggingMiddleware())
	r.Use(middle.PanicRecoveryMiddleware())
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middle.SecurityHeadersMiddleware())
	if deps.RateLimiter != nil {
		r.Use(middle.RateLimitMiddleware(deps.RateLimiter))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: app.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Idempotent-Replayed"},
		MaxAge:         300, // Preflight cache time (second)
	}))

	paymentHandler := handler.NewPaymentHandler(deps.Transaction, deps.Processor, app.MaxBodyBytes)
	adminHandler := handler.NewAdminHandler(deps.Transaction, deps.Attempts, deps.Stats, deps.Store)
	healthHandler := handler.NewHealthHandler(app, deps.Transaction, deps.DB, deps.Store, deps.OpenSearch)

	// Health check endpoint (no auth required)
	r.Get("/health", healthHandler.CheckHealth)

	// Wallet button endpoints, called from the browser
	r.Route("/api", func(r chi.Router) {
		r.Get("/payment-config", paymentHandler.GetPaymentConfig)
		r.Get("/is-ready-to-pay", paymentHandler.GetReadiness)
		r.Post("/process-payment", paymentHandler.ProcessPayment)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(middle.IPWhitelistMiddleware(app.AdminIPs))
		r.Use(middle.AuthMiddleware(app.AdminAPIKey))
		r.Use(middle.RequestValidationMiddleware(app.MaxBodyBytes))

		r.Get("/transaction", adminHandler.GetTransaction)
		r.Put("/transaction/amount", adminHandler.UpdateAmount)
		r.Put("/transaction/currency", adminHandler.UpdateCurrency)

		r.Post("/card-networks/{network}", adminHandler.AddCardNetwork)
		r.Delete("/card-networks/{network}", adminHandler.RemoveCardNetwork)
		r.Post("/auth-methods/{method}", adminHandler.AddAuthMethod)
		r.Delete("/auth-methods/{method}", adminHandler.RemoveAuthMethod)

		r.Get("/attempts", adminHandler.ListAttempts)
		r.Get("/attempts/stats", adminHandler.AttemptStats)
		r.Get("/idempotency", adminHandler.IdempotencyStats)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, "Not Found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
	})
}

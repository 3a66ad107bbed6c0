// Package walletpay is a wallet payment service: it serves the configuration a
// Google Pay style button needs, accepts the payload the wallet returns and
// forwards its token to a payment gateway.
//
// # Overview
//
// The payment flow follows this pattern:
//
//	browser                      walletpay                        gateway
//	   │  GET /api/payment-config   │                                 │
//	   │ ─────────────────────────► │ TransactionConfig.Describe      │
//	   │ ◄───────────────────────── │                                 │
//	   │   (wallet sheet, token)    │                                 │
//	   │  POST /api/process-payment │                                 │
//	   │ ─────────────────────────► │ validate → extract → forward ──►│
//	   │ ◄───────────────────────── │ ◄─────────────── finalize ──────│
//
// The token is opaque to the service. It is never logged or stored, and
// never placed in an error; logs and attempt records carry a SHA-256
// fingerprint prefix instead.
//
// # Packages
//
//   - payment: TransactionConfig, payload schema, Processor and error kinds
//   - provider: gateway registry and the example, stripe, mercadopago and generic gateways
//   - handler, router: HTTP surface on chi
//   - infra/idempotency: memory and SQLite stores that stop double charges
//   - infra/postgres, infra/opensearch: attempt audit log
//   - infra/config, infra/logger, infra/middle, infra/response: ambient plumbing
//
// # Configuration
//
// Everything is read from the environment (a .env file is loaded when
// present). The main variables:
//
//	MERCHANT_ID, MERCHANT_NAME        required
//	GATEWAY_NAME                      example | stripe | mercadopago | generic
//	PAYMENT_ENVIRONMENT               TEST | PRODUCTION
//	CURRENCY_CODE, COUNTRY_CODE       BRL, BR
//	TOTAL_PRICE                       0.00
//	CARD_NETWORKS, AUTH_METHODS       comma separated
//	MERCHANT_CONFIG_FILE              optional YAML with the same settings
//	GATEWAY_TIMEOUT                   10s
//	IDEMPOTENCY_BACKEND               memory | sqlite | none
//	ADMIN_API_KEY, ADMIN_IP_WHITELIST admin routes
//	ENABLE_POSTGRES_LOGGING           DB_HOST, DB_PORT, DB_USER, DB_PASS, DB_NAME
//	ENABLE_OPENSEARCH_LOGGING         OPENSEARCH_URL, OPENSEARCH_USER, OPENSEARCH_PASSWORD
//
// Gateway credentials use the <GATEWAY>_<KEY> form, e.g. STRIPE_SECRET_KEY or
// MERCADOPAGO_ACCESS_TOKEN.
package walletpay

// Package handler provides the HTTP handlers of the wallet payment service.
//
// # Wallet endpoints
//
// PaymentHandler serves the browser-side wallet button:
//
//	paymentHandler := handler.NewPaymentHandler(txConfig, processor, cfg.MaxBodyBytes)
//
//	r.Get("/api/payment-config", paymentHandler.GetPaymentConfig)
//	r.Get("/api/is-ready-to-pay", paymentHandler.GetReadiness)
//	r.Post("/api/process-payment", paymentHandler.ProcessPayment)
//
// GET /api/payment-config answers with the configuration document itself, not
// wrapped in the usual response envelope, or with {"error": message} and 500
// when the configuration cannot be rendered.
//
// POST /api/process-payment takes the payload produced by the wallet and
// answers {"success": true} or {"success": false, "error": reason}:
//
//	200  approved, or declined by the gateway
//	400  malformed or incomplete payload
//	409  the same payment is still in flight
//	500  gateway unreachable, timed out or misconfigured
//
// An optional Idempotency-Key header deduplicates retries; replayed answers
// carry Idempotent-Replayed: true.
//
// # Admin endpoints
//
// AdminHandler edits the live TransactionConfig and reads the attempt log.
// Its routes are mounted under /admin behind the bearer API key:
//
//	PUT    /admin/transaction/amount         {"amount": "12.50"}
//	PUT    /admin/transaction/currency       {"currencyCode": "USD", "countryCode": "US"}
//	POST   /admin/card-networks/{network}
//	DELETE /admin/card-networks/{network}
//	POST   /admin/auth-methods/{method}
//	DELETE /admin/auth-methods/{method}
//	GET    /admin/transaction
//	GET    /admin/attempts?state=FAILED&limit=20
//	GET    /admin/attempts/stats?hours=24
//	GET    /admin/idempotency
//
// Admin answers use the response.Response envelope.
package handler

// Package provider turns payment gateways into payment.GatewayClient values.
//
// Each gateway lives in its own subpackage and registers a factory with the
// default registry from init, so a binary only carries the gateways it
// imports:
//
//	import (
//	    _ "github.com/mstgnz/walletpay/provider/example"
//	    _ "github.com/mstgnz/walletpay/provider/stripe"
//	)
//
//	gw, err := provider.NewGateway("stripe", payment.EnvironmentTest, map[string]string{
//	    "secretKey": "sk_test_...",
//	})
//
// NewGateway adds the "environment" key, validates the map against the
// gateway's GetRequiredConfig fields and calls Initialize. Credentials are
// usually read with config.LoadGatewayConfigFromEnv, which maps
// STRIPE_SECRET_KEY to stripe/secretKey.
//
// # Outcomes
//
// Forward reports a decision as a GatewayOutcome: SUCCESS for approved or
// pending-capture payments, FAILURE for declines and rejected requests. A
// gateway that cannot be reached, times out, rejects our credentials or
// answers 5xx returns a *payment.GatewayUnavailableError instead (see
// Unavailable). Outcome messages never contain token material.
//
// # Available gateways
//
//   - example: approves everything, logs only the token fingerprint
//   - stripe: PaymentMethod from the card token, then a confirmed PaymentIntent
//   - mercadopago: card-token payment through the official SDK
//   - generic: JSON POST to <baseUrl>/payments with a bearer key
package provider

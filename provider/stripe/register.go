package stripe

import "github.com/mstgnz/walletpay/provider"

// Register Stripe gateway with the gateway registry
func init() {
	provider.Register(GatewayName, NewProvider)
}

package generic

import "github.com/mstgnz/walletpay/provider"

// Register generic gateway with the gateway registry
func init() {
	provider.Register(GatewayName, NewProvider)
}

package example

import "github.com/mstgnz/walletpay/provider"

// Register example gateway with the gateway registry
func init() {
	provider.Register(GatewayName, NewProvider)
}

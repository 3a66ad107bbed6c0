package mercadopago

import "github.com/mstgnz/walletpay/provider"

// Register Mercado Pago gateway with the gateway registry
func init() {
	provider.Register(GatewayName, NewProvider)
}

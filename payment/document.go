package payment

const (
	paymentMethodCard     = "CARD"
	tokenizationGateway   = "PAYMENT_GATEWAY"
	totalPriceStatusFinal = "FINAL"
)

// Document is the configuration served to the wallet button script.
// Field order follows the wire format.
type Document struct {
	APIVersion            int             `json:"apiVersion"`
	APIVersionMinor       int             `json:"apiVersionMinor"`
	AllowedPaymentMethods []PaymentMethod `json:"allowedPaymentMethods"`
	MerchantInfo          MerchantInfo    `json:"merchantInfo"`
	TransactionInfo       TransactionInfo `json:"transactionInfo"`
}

// ReadinessDocument is the smaller document used by the button's readiness probe.
type ReadinessDocument struct {
	APIVersion            int             `json:"apiVersion"`
	APIVersionMinor       int             `json:"apiVersionMinor"`
	AllowedPaymentMethods []PaymentMethod `json:"allowedPaymentMethods"`
	MerchantInfo          MerchantInfo    `json:"merchantInfo"`
}

type PaymentMethod struct {
	Type                      string                    `json:"type"`
	Parameters                CardParameters            `json:"parameters"`
	TokenizationSpecification TokenizationSpecification `json:"tokenizationSpecification"`
}

type CardParameters struct {
	AllowedAuthMethods  []AuthMethod  `json:"allowedAuthMethods"`
	AllowedCardNetworks []CardNetwork `json:"allowedCardNetworks"`
}

type TokenizationSpecification struct {
	Type       string                 `json:"type"`
	Parameters TokenizationParameters `json:"parameters"`
}

type TokenizationParameters struct {
	Gateway           string `json:"gateway"`
	GatewayMerchantID string `json:"gatewayMerchantId"`
}

type MerchantInfo struct {
	MerchantID   string `json:"merchantId"`
	MerchantName string `json:"merchantName"`
}

type TransactionInfo struct {
	TotalPriceStatus string `json:"totalPriceStatus"`
	TotalPrice       string `json:"totalPrice"`
	CurrencyCode     string `json:"currencyCode"`
	CountryCode      string `json:"countryCode"`
}

// Describe renders the configuration document. It fails when either the card
// network or the auth method set is empty.
func (c *TransactionConfig) Describe() (Document, error) {
	return c.Snapshot().Describe()
}

// DescribeReadiness renders the readiness document, without transaction details.
func (c *TransactionConfig) DescribeReadiness() (ReadinessDocument, error) {
	return c.Snapshot().DescribeReadiness()
}

// Describe renders the configuration document for s.
func (s Snapshot) Describe() (Document, error) {
	method, err := s.paymentMethod()
	if err != nil {
		return Document{}, err
	}

	return Document{
		APIVersion:            s.APIVersion.Major,
		APIVersionMinor:       s.APIVersion.Minor,
		AllowedPaymentMethods: []PaymentMethod{method},
		MerchantInfo:          s.merchantInfo(),
		TransactionInfo: TransactionInfo{
			TotalPriceStatus: totalPriceStatusFinal,
			TotalPrice:       s.TotalPrice(),
			CurrencyCode:     s.CurrencyCode,
			CountryCode:      s.CountryCode,
		},
	}, nil
}

// DescribeReadiness renders the readiness document for s.
func (s Snapshot) DescribeReadiness() (ReadinessDocument, error) {
	method, err := s.paymentMethod()
	if err != nil {
		return ReadinessDocument{}, err
	}

	return ReadinessDocument{
		APIVersion:            s.APIVersion.Major,
		APIVersionMinor:       s.APIVersion.Minor,
		AllowedPaymentMethods: []PaymentMethod{method},
		MerchantInfo:          s.merchantInfo(),
	}, nil
}

// TotalPrice renders the amount with exactly two decimals, e.g. "12.50".
func (s Snapshot) TotalPrice() string {
	return s.TotalAmount.StringFixed(2)
}

func (s Snapshot) paymentMethod() (PaymentMethod, error) {
	if len(s.CardNetworks) == 0 {
		return PaymentMethod{}, configErr("allowedCardNetworks", "at least one card network is required")
	}
	if len(s.AuthMethods) == 0 {
		return PaymentMethod{}, configErr("allowedAuthMethods", "at least one auth method is required")
	}

	return PaymentMethod{
		Type: paymentMethodCard,
		Parameters: CardParameters{
			AllowedAuthMethods:  s.AuthMethods,
			AllowedCardNetworks: s.CardNetworks,
		},
		TokenizationSpecification: TokenizationSpecification{
			Type: tokenizationGateway,
			Parameters: TokenizationParameters{
				Gateway:           s.GatewayName,
				GatewayMerchantID: s.MerchantID,
			},
		},
	}, nil
}

func (s Snapshot) merchantInfo() MerchantInfo {
	return MerchantInfo{
		MerchantID:   s.MerchantID,
		MerchantName: s.MerchantName,
	}
}

package payment

import (
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/walletpay/infra/logger"
	"github.com/mstgnz/walletpay/infra/validate"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
)

// Environment selects the wallet environment the button talks to.
type Environment string

const (
	EnvironmentTest       Environment = "TEST"
	EnvironmentProduction Environment = "PRODUCTION"
)

// ParseEnvironment normalizes s and reports whether it names a known environment.
// An empty value selects TEST.
func ParseEnvironment(s string) (Environment, error) {
	switch env := Environment(strings.ToUpper(strings.TrimSpace(s))); env {
	case "":
		return EnvironmentTest, nil
	case EnvironmentTest, EnvironmentProduction:
		return env, nil
	default:
		return "", configErr("environment", "must be TEST or PRODUCTION, got %q", s)
	}
}

// CardNetwork is a card brand accepted by the wallet.
type CardNetwork string

const (
	NetworkAmex       CardNetwork = "AMEX"
	NetworkDiscover   CardNetwork = "DISCOVER"
	NetworkElectron   CardNetwork = "ELECTRON"
	NetworkElo        CardNetwork = "ELO"
	NetworkEloDebit   CardNetwork = "ELO_DEBIT"
	NetworkInterac    CardNetwork = "INTERAC"
	NetworkJCB        CardNetwork = "JCB"
	NetworkMaestro    CardNetwork = "MAESTRO"
	NetworkMastercard CardNetwork = "MASTERCARD"
	NetworkVisa       CardNetwork = "VISA"
)

var knownNetworks = []CardNetwork{
	NetworkAmex, NetworkDiscover, NetworkElectron, NetworkElo, NetworkEloDebit,
	NetworkInterac, NetworkJCB, NetworkMaestro, NetworkMastercard, NetworkVisa,
}

// ParseCardNetwork upper-cases s and checks it against the known networks.
func ParseCardNetwork(s string) (CardNetwork, bool) {
	n := CardNetwork(strings.ToUpper(strings.TrimSpace(s)))
	return n, slices.Contains(knownNetworks, n)
}

// AuthMethod is a card authentication method accepted by the wallet.
type AuthMethod string

const (
	AuthPANOnly       AuthMethod = "PAN_ONLY"
	AuthCryptogram3DS AuthMethod = "CRYPTOGRAM_3DS"
)

// ParseAuthMethod upper-cases s and checks it against the known methods.
func ParseAuthMethod(s string) (AuthMethod, bool) {
	m := AuthMethod(strings.ToUpper(strings.TrimSpace(s)))
	return m, m == AuthPANOnly || m == AuthCryptogram3DS
}

// APIVersion is the wallet protocol version.
type APIVersion struct {
	Major int
	Minor int
}

// DefaultAPIVersion is the protocol version served and accepted.
var DefaultAPIVersion = APIVersion{Major: 2, Minor: 0}

const (
	DefaultGatewayName  = "example"
	DefaultCurrencyCode = "BRL"
	DefaultCountryCode  = "BR"
)

var (
	defaultCardNetworks = []CardNetwork{NetworkVisa, NetworkMastercard, NetworkElo, NetworkAmex}
	defaultAuthMethods  = []AuthMethod{AuthPANOnly, AuthCryptogram3DS}
)

// Options holds the optional settings of a TransactionConfig.
// Zero values fall back to the defaults.
type Options struct {
	GatewayName  string   `json:"gatewayName" validate:"omitempty,max=64"`
	Environment  string   `json:"environment"`
	CurrencyCode string   `json:"currencyCode" validate:"omitempty,len=3,alpha"`
	CountryCode  string   `json:"countryCode" validate:"omitempty,len=2,alpha"`
	TotalPrice   string   `json:"totalPrice"`
	CardNetworks []string `json:"allowedCardNetworks" validate:"omitempty,dive,card_network"`
	AuthMethods  []string `json:"allowedAuthMethods" validate:"omitempty,dive,auth_method"`
}

var optionsValidator = newOptionsValidator()

func newOptionsValidator() *validator.Validate {
	v := validate.New()
	_ = v.RegisterValidation("card_network", func(fl validator.FieldLevel) bool {
		_, ok := ParseCardNetwork(fl.Field().String())
		return ok
	})
	_ = v.RegisterValidation("auth_method", func(fl validator.FieldLevel) bool {
		_, ok := ParseAuthMethod(fl.Field().String())
		return ok
	})
	return v
}

// TransactionConfig describes the merchant, the accepted instruments and the
// amount of the current transaction. It is safe for concurrent use.
type TransactionConfig struct {
	mu sync.RWMutex

	merchantID   string
	merchantName string
	gatewayName  string
	environment  Environment
	currencyCode string
	countryCode  string
	totalAmount  decimal.Decimal
	cardNetworks []CardNetwork
	authMethods  []AuthMethod
	apiVersion   APIVersion
}

// NewTransactionConfig builds a configuration for the given merchant.
func NewTransactionConfig(merchantID, merchantName string, opts Options) (*TransactionConfig, error) {
	merchantID = strings.TrimSpace(merchantID)
	merchantName = strings.TrimSpace(merchantName)
	if merchantID == "" {
		return nil, configErr("merchantId", "must not be empty")
	}
	if merchantName == "" {
		return nil, configErr("merchantName", "must not be empty")
	}

	env, err := ParseEnvironment(opts.Environment)
	if err != nil {
		return nil, err
	}

	if err := optionsValidator.Struct(opts); err != nil {
		return nil, &ConfigurationError{Reason: validate.Describe(err)}
	}

	c := &TransactionConfig{
		merchantID:   merchantID,
		merchantName: merchantName,
		gatewayName:  DefaultGatewayName,
		environment:  env,
		currencyCode: DefaultCurrencyCode,
		countryCode:  DefaultCountryCode,
		totalAmount:  decimal.Zero,
		cardNetworks: slices.Clone(defaultCardNetworks),
		authMethods:  slices.Clone(defaultAuthMethods),
		apiVersion:   DefaultAPIVersion,
	}

	if name := strings.TrimSpace(opts.GatewayName); name != "" {
		c.gatewayName = name
	}

	if opts.CurrencyCode != "" || opts.CountryCode != "" {
		cur := opts.CurrencyCode
		if cur == "" {
			cur = DefaultCurrencyCode
		}
		if err := c.SetCurrency(cur, opts.CountryCode); err != nil {
			return nil, err
		}
	}

	if opts.TotalPrice != "" {
		if err := c.UpdateAmount(opts.TotalPrice); err != nil {
			return nil, err
		}
	}

	if len(opts.CardNetworks) > 0 {
		c.cardNetworks = nil
		for _, n := range opts.CardNetworks {
			if err := c.AddCardNetwork(n); err != nil {
				return nil, err
			}
		}
	}

	if len(opts.AuthMethods) > 0 {
		c.authMethods = nil
		for _, m := range opts.AuthMethods {
			if err := c.AddAuthMethod(m); err != nil {
				return nil, err
			}
		}
	}

	return c, nil
}

// UpdateAmount sets the transaction total from its decimal string form.
func (c *TransactionConfig) UpdateAmount(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return configErr("totalPrice", "must not be empty")
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return configErr("totalPrice", "%q is not a decimal number", value)
	}
	return c.UpdateAmountDecimal(amount)
}

// Amounts are stored as NUMERIC(18,2), so at most 16 integer digits.
const (
	maxAmountIntegerDigits = 16
	maxAmountScale         = 20
)

// UpdateAmountDecimal sets the transaction total. Bounds are checked on the
// digit count before any rounding so huge exponents stay cheap.
func (c *TransactionConfig) UpdateAmountDecimal(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return configErr("totalPrice", "must not be negative")
	}
	if amount.IsZero() {
		amount = decimal.Zero
	}
	if amount.NumDigits()+int(amount.Exponent()) > maxAmountIntegerDigits {
		return configErr("totalPrice", "must not exceed 9999999999999999.99")
	}
	if amount.Exponent() < -maxAmountScale || !amount.Equal(amount.Round(2)) {
		return configErr("totalPrice", "must have at most two decimal places")
	}

	c.mu.Lock()
	c.totalAmount = amount
	c.mu.Unlock()

	logger.Debug("Transaction amount updated", logger.LogContext{
		Fields: map[string]any{"total_price": amount.StringFixed(2)},
	})
	return nil
}

// AddCardNetwork adds n to the accepted networks. Adding a member again is a no-op.
func (c *TransactionConfig) AddCardNetwork(n string) error {
	network, ok := ParseCardNetwork(n)
	if !ok {
		return configErr("allowedCardNetworks", "unknown card network %q", n)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !slices.Contains(c.cardNetworks, network) {
		c.cardNetworks = append(c.cardNetworks, network)
	}
	return nil
}

// RemoveCardNetwork removes n from the accepted networks. Removing a non-member is a no-op.
func (c *TransactionConfig) RemoveCardNetwork(n string) {
	network := CardNetwork(strings.ToUpper(strings.TrimSpace(n)))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cardNetworks = slices.DeleteFunc(c.cardNetworks, func(v CardNetwork) bool { return v == network })
}

// AddAuthMethod adds m to the accepted authentication methods. Adding a member again is a no-op.
func (c *TransactionConfig) AddAuthMethod(m string) error {
	method, ok := ParseAuthMethod(m)
	if !ok {
		return configErr("allowedAuthMethods", "unknown auth method %q", m)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !slices.Contains(c.authMethods, method) {
		c.authMethods = append(c.authMethods, method)
	}
	return nil
}

// RemoveAuthMethod removes m from the accepted authentication methods.
func (c *TransactionConfig) RemoveAuthMethod(m string) {
	method := AuthMethod(strings.ToUpper(strings.TrimSpace(m)))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.authMethods = slices.DeleteFunc(c.authMethods, func(v AuthMethod) bool { return v == method })
}

// SetCurrency sets the ISO 4217 currency and, when given, the ISO 3166 country.
func (c *TransactionConfig) SetCurrency(currencyCode string, countryCode ...string) error {
	cur := strings.ToUpper(strings.TrimSpace(currencyCode))
	if len(cur) != 3 || strings.IndexFunc(cur, func(r rune) bool { return r < 'A' || r > 'Z' }) != -1 {
		return configErr("currencyCode", "must be a 3-letter code, got %q", currencyCode)
	}
	if _, err := currency.ParseISO(cur); err != nil {
		return configErr("currencyCode", "%q is not an ISO 4217 currency", cur)
	}

	var country string
	if len(countryCode) > 0 && strings.TrimSpace(countryCode[0]) != "" {
		country = strings.ToUpper(strings.TrimSpace(countryCode[0]))
		if len(country) != 2 {
			return configErr("countryCode", "must be a 2-letter code, got %q", countryCode[0])
		}
		region, err := language.ParseRegion(country)
		if err != nil || !region.IsCountry() {
			return configErr("countryCode", "%q is not an ISO 3166 country", country)
		}
	}

	c.mu.Lock()
	c.currencyCode = cur
	if country != "" {
		c.countryCode = country
	}
	c.mu.Unlock()
	return nil
}

// Snapshot is an immutable copy of a TransactionConfig.
type Snapshot struct {
	MerchantID   string
	MerchantName string
	GatewayName  string
	Environment  Environment
	CurrencyCode string
	CountryCode  string
	TotalAmount  decimal.Decimal
	CardNetworks []CardNetwork
	AuthMethods  []AuthMethod
	APIVersion   APIVersion
}

// Snapshot returns a self-consistent copy of the current settings.
func (c *TransactionConfig) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		MerchantID:   c.merchantID,
		MerchantName: c.merchantName,
		GatewayName:  c.gatewayName,
		Environment:  c.environment,
		CurrencyCode: c.currencyCode,
		CountryCode:  c.countryCode,
		TotalAmount:  c.totalAmount,
		CardNetworks: slices.Clone(c.cardNetworks),
		AuthMethods:  slices.Clone(c.authMethods),
		APIVersion:   c.apiVersion,
	}
}

// MerchantID returns the immutable merchant identifier.
func (c *TransactionConfig) MerchantID() string {
	return c.merchantID
}

// GatewayName returns the configured gateway.
func (c *TransactionConfig) GatewayName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gatewayName
}

// Environment returns the configured wallet environment.
func (c *TransactionConfig) Environment() Environment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.environment
}

// APIVersion returns the protocol version the configuration is served with.
func (c *TransactionConfig) APIVersion() APIVersion {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiVersion
}

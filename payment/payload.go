package payment

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mstgnz/walletpay/infra/validate"
)

const (
	TokenTypePaymentGateway = "PAYMENT_GATEWAY"
	TokenTypeDirect         = "DIRECT"
)

// PaymentPayload is the document posted by the wallet button after the payer
// approves the payment. Unknown fields are ignored.
type PaymentPayload struct {
	APIVersion        *int               `json:"apiVersion" validate:"required"`
	APIVersionMinor   *int               `json:"apiVersionMinor" validate:"required"`
	Email             string             `json:"email,omitempty"`
	PaymentMethodData *PaymentMethodData `json:"paymentMethodData" validate:"required"`
}

type PaymentMethodData struct {
	Type             string            `json:"type"`
	Description      string            `json:"description,omitempty"`
	Info             *CardInfo         `json:"info,omitempty"`
	TokenizationData *TokenizationData `json:"tokenizationData"`
}

// CardInfo describes the card the payer picked. CardNetwork is persisted with
// the attempt and bounded to fit its column.
type CardInfo struct {
	CardNetwork string `json:"cardNetwork,omitempty" validate:"omitempty,max=32"`
	CardDetails string `json:"cardDetails,omitempty"`
}

type TokenizationData struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// TokenData is the opaque token pulled out of a payload. Its String form
// never includes the token itself.
type TokenData struct {
	Token       string
	Type        string
	Fingerprint string
	CardNetwork string
	CardDetails string
}

func (t TokenData) String() string {
	return fmt.Sprintf("TokenData{type=%s fingerprint=%s}", t.Type, t.Fingerprint)
}

func (t TokenData) GoString() string {
	return t.String()
}

// TokenFingerprint returns a short, stable, non-reversible identifier for token.
func TokenFingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])[:16]
}

var payloadValidator = validate.New()

// DecodePayload parses body into a PaymentPayload. Any syntax or type error is
// reported as a PaymentValidationError without echoing the input.
func DecodePayload(body []byte) (*PaymentPayload, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, validationErr("empty payload")
	}

	var p PaymentPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, validationErr("malformed payload")
	}
	return &p, nil
}

// ValidatePayload checks that p carries the required fields and the expected version.
func ValidatePayload(p *PaymentPayload, expected APIVersion) error {
	if p == nil {
		return validationErr("empty payload")
	}
	if err := payloadValidator.Struct(p); err != nil {
		return validationErr("%s", validate.Describe(err))
	}
	if *p.APIVersion != expected.Major || *p.APIVersionMinor != expected.Minor {
		return validationErr("unsupported api version %d.%d, expected %d.%d",
			*p.APIVersion, *p.APIVersionMinor, expected.Major, expected.Minor)
	}
	return nil
}

// ExtractToken returns the token and its type from a validated payload.
func ExtractToken(p *PaymentPayload) (TokenData, error) {
	if p == nil || p.PaymentMethodData == nil {
		return TokenData{}, validationErr("paymentMethodData is required")
	}

	td := p.PaymentMethodData.TokenizationData
	if td == nil {
		return TokenData{}, validationErr("paymentMethodData.tokenizationData is required")
	}
	if strings.TrimSpace(td.Token) == "" {
		return TokenData{}, validationErr("tokenizationData.token is required")
	}

	tokenType := strings.ToUpper(strings.TrimSpace(td.Type))
	switch tokenType {
	case "":
		return TokenData{}, validationErr("tokenizationData.type is required")
	case TokenTypePaymentGateway, TokenTypeDirect:
	default:
		return TokenData{}, validationErr("unsupported tokenization type %q", td.Type)
	}

	data := TokenData{
		Token:       td.Token,
		Type:        tokenType,
		Fingerprint: TokenFingerprint(td.Token),
	}
	if info := p.PaymentMethodData.Info; info != nil {
		data.CardNetwork = info.CardNetwork
		data.CardDetails = info.CardDetails
	}
	return data, nil
}

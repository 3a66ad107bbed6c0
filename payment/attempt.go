package payment

import (
	"context"
	"errors"
	"time"

	"github.com/mstgnz/walletpay/infra/logger"
)

// Attempt is the audit record of one pass through the processor.
// It never carries the token, only its fingerprint.
type Attempt struct {
	ID               string    `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	RequestID        string    `json:"request_id,omitempty"`
	Gateway          string    `json:"gateway"`
	Environment      string    `json:"environment"`
	MerchantID       string    `json:"merchant_id"`
	State            State     `json:"state"`
	ErrorKind        string    `json:"error_kind,omitempty"`
	Reason           string    `json:"reason,omitempty"`
	TokenFingerprint string    `json:"token_fingerprint,omitempty"`
	TokenType        string    `json:"token_type,omitempty"`
	CardNetwork      string    `json:"card_network,omitempty"`
	Amount           string    `json:"amount"`
	Currency         string    `json:"currency"`
	GatewayReference string    `json:"gateway_reference,omitempty"`
	Replayed         bool      `json:"replayed,omitempty"`
	DurationMs       int64     `json:"duration_ms"`
}

// AttemptRecorder persists attempts. Failures never change a payment result.
type AttemptRecorder interface {
	Record(ctx context.Context, attempt Attempt) error
}

// MultiRecorder fans an attempt out to several recorders.
type MultiRecorder []AttemptRecorder

func (m MultiRecorder) Record(ctx context.Context, attempt Attempt) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, attempt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Deduplicator keeps a payment from being charged twice for the same key.
//
// Begin returns the stored result when the key already completed, or
// ErrPaymentInFlight when another request holds it. A nil result and nil
// error means the caller now owns the key and must Complete or Release it.
type Deduplicator interface {
	Begin(ctx context.Context, key string) (*Result, error)
	Complete(ctx context.Context, key string, result Result) error
	Release(ctx context.Context, key string) error
}

type requestIDKey struct{}

// WithRequestID attaches a request id used to correlate logs and attempts.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id set by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func logContext(ctx context.Context, gateway string, fields map[string]any) logger.LogContext {
	return logger.LogContext{
		RequestID: RequestIDFromContext(ctx),
		Gateway:   gateway,
		Fields:    fields,
	}
}

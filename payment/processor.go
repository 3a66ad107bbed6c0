package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mstgnz/walletpay/infra/logger"
)

// State is a step of the payment pipeline.
type State string

const (
	StateReceived       State = "RECEIVED"
	StateValidated      State = "VALIDATED"
	StateTokenExtracted State = "TOKEN_EXTRACTED"
	StateForwarded      State = "FORWARDED"
	StateSucceeded      State = "SUCCEEDED"
	StateFailed         State = "FAILED"
	StateErrored        State = "ERRORED"
)

const (
	DefaultGatewayTimeout = 10 * time.Second
	defaultRecordTimeout  = 3 * time.Second

	MessageGatewayUnavailable = "payment gateway unavailable"
	MessagePaymentDeclined    = "payment declined"
)

// Result is the terminal outcome of a payment request.
// Err is nil for SUCCEEDED and for gateway declines.
type Result struct {
	State            State  `json:"state"`
	Success          bool   `json:"success"`
	Reason           string `json:"reason,omitempty"`
	GatewayReference string `json:"gatewayReference,omitempty"`
	Replayed         bool   `json:"-"`
	Err              error  `json:"-"`
}

// ProcessRequest is the raw input of one payment attempt.
type ProcessRequest struct {
	Body           []byte
	IdempotencyKey string
}

// ProcessorConfig tunes a Processor. Deduplicator and Recorder are optional.
type ProcessorConfig struct {
	Timeout       time.Duration
	RecordTimeout time.Duration
	Deduplicator  Deduplicator
	Recorder      AttemptRecorder
}

// Processor validates wallet payloads and forwards their tokens to a gateway.
type Processor struct {
	config        *TransactionConfig
	gateway       GatewayClient
	timeout       time.Duration
	recordTimeout time.Duration
	dedup         Deduplicator
	recorder      AttemptRecorder
	now           func() time.Time
}

// NewProcessor wires a processor around a transaction config and a gateway client.
func NewProcessor(config *TransactionConfig, gateway GatewayClient, pc ProcessorConfig) (*Processor, error) {
	if config == nil {
		return nil, configErr("processor", "transaction config is required")
	}
	if gateway == nil {
		return nil, configErr("processor", "gateway client is required")
	}

	p := &Processor{
		config:        config,
		gateway:       gateway,
		timeout:       pc.Timeout,
		recordTimeout: pc.RecordTimeout,
		dedup:         pc.Deduplicator,
		recorder:      pc.Recorder,
		now:           time.Now,
	}
	if p.timeout <= 0 {
		p.timeout = DefaultGatewayTimeout
	}
	if p.recordTimeout <= 0 {
		p.recordTimeout = defaultRecordTimeout
	}
	return p, nil
}

// Validate checks a decoded payload against the expected protocol version.
func (p *Processor) Validate(payload *PaymentPayload, expected APIVersion) error {
	return ValidatePayload(payload, expected)
}

// ExtractToken pulls the token out of a validated payload.
func (p *Processor) ExtractToken(payload *PaymentPayload) (TokenData, error) {
	return ExtractToken(payload)
}

// Process runs one request through validation, token extraction, forwarding
// and finalization. It never returns token material.
func (p *Processor) Process(ctx context.Context, req ProcessRequest) Result {
	start := p.now()
	snap := p.config.Snapshot()
	attempt := Attempt{
		ID:          uuid.New().String(),
		Timestamp:   start.UTC(),
		RequestID:   RequestIDFromContext(ctx),
		Gateway:     snap.GatewayName,
		Environment: string(snap.Environment),
		MerchantID:  snap.MerchantID,
		Amount:      snap.TotalPrice(),
		Currency:    snap.CurrencyCode,
	}

	result := p.process(ctx, req, snap, &attempt)

	attempt.State = result.State
	attempt.Reason = result.Reason
	attempt.ErrorKind = Kind(result.Err)
	attempt.GatewayReference = result.GatewayReference
	attempt.Replayed = result.Replayed
	attempt.DurationMs = p.now().Sub(start).Milliseconds()
	p.record(ctx, attempt)

	return result
}

func (p *Processor) process(ctx context.Context, req ProcessRequest, snap Snapshot, attempt *Attempt) Result {
	p.transition(ctx, snap.GatewayName, StateReceived, nil)

	payload, err := DecodePayload(req.Body)
	if err == nil {
		err = p.Validate(payload, snap.APIVersion)
	}
	if err != nil {
		return p.reject(ctx, snap.GatewayName, err)
	}
	p.transition(ctx, snap.GatewayName, StateValidated, nil)

	token, err := p.ExtractToken(payload)
	if err != nil {
		return p.reject(ctx, snap.GatewayName, err)
	}
	attempt.TokenFingerprint = token.Fingerprint
	attempt.TokenType = token.Type
	attempt.CardNetwork = token.CardNetwork
	p.transition(ctx, snap.GatewayName, StateTokenExtracted, map[string]any{
		"token_type":        token.Type,
		"token_fingerprint": token.Fingerprint,
	})

	key := dedupKey(req.IdempotencyKey, token)
	owned := false
	if p.dedup != nil {
		stored, err := p.dedup.Begin(ctx, key)
		switch {
		case errors.Is(err, ErrPaymentInFlight):
			logger.Warn("Duplicate payment rejected while in flight", logContext(ctx, snap.GatewayName, map[string]any{
				"token_fingerprint": token.Fingerprint,
			}))
			return Result{State: StateFailed, Reason: ErrPaymentInFlight.Error(), Err: ErrPaymentInFlight}
		case err != nil:
			logger.Error("Idempotency store unavailable, continuing without deduplication", err,
				logContext(ctx, snap.GatewayName, nil))
		case stored != nil:
			replay := *stored
			replay.Replayed = true
			logger.Info("Replaying stored payment result", logContext(ctx, snap.GatewayName, map[string]any{
				"state":             replay.State,
				"token_fingerprint": token.Fingerprint,
			}))
			return replay
		default:
			owned = true
		}
	}

	fwd := ForwardRequest{
		Token:          token.Token,
		TokenType:      token.Type,
		CardNetwork:    token.CardNetwork,
		GatewayName:    snap.GatewayName,
		Environment:    snap.Environment,
		MerchantID:     snap.MerchantID,
		Amount:         snap.TotalAmount,
		CurrencyCode:   snap.CurrencyCode,
		CountryCode:    snap.CountryCode,
		PayerEmail:     payload.Email,
		IdempotencyKey: key,
	}

	p.transition(ctx, snap.GatewayName, StateForwarded, nil)

	var late func(*GatewayOutcome, error)
	if owned {
		late = func(outcome *GatewayOutcome, err error) {
			result := Result{State: StateErrored, Reason: MessageGatewayUnavailable, Err: err}
			if err == nil {
				result = p.Finalize(snap.GatewayName, outcome)
			}
			logger.Warn("Gateway answered after the deadline", logContext(ctx, snap.GatewayName, map[string]any{
				"state":             result.State,
				"token_fingerprint": token.Fingerprint,
			}))
			p.settle(ctx, key, result, snap.GatewayName)
		}
	}
	outcome, abandoned, err := p.forward(ctx, fwd, late)
	result := p.gatewayResult(ctx, snap.GatewayName, token, outcome, err)

	// An abandoned call may still charge, so its key stays pending until
	// the late callback settles it.
	if owned && !abandoned {
		p.settle(ctx, key, result, snap.GatewayName)
	}

	p.transition(ctx, snap.GatewayName, result.State, map[string]any{
		"gateway_reference": result.GatewayReference,
	})
	return result
}

func (p *Processor) gatewayResult(ctx context.Context, gateway string, token TokenData, outcome *GatewayOutcome, err error) Result {
	if err != nil {
		logger.Error("Gateway call failed", err, logContext(ctx, gateway, map[string]any{
			"token_fingerprint": token.Fingerprint,
			"error_kind":        Kind(err),
		}))
		return Result{State: StateErrored, Reason: MessageGatewayUnavailable, Err: err}
	}
	return p.Finalize(gateway, outcome)
}

// Finalize maps an outcome of the named gateway onto a terminal result.
func (p *Processor) Finalize(gateway string, outcome *GatewayOutcome) Result {
	if outcome == nil {
		return Result{
			State:  StateErrored,
			Reason: MessageGatewayUnavailable,
			Err:    &GatewayUnavailableError{Gateway: gateway, Err: errors.New("empty gateway outcome")},
		}
	}

	switch outcome.Status {
	case OutcomeSuccess:
		return Result{State: StateSucceeded, Success: true, GatewayReference: outcome.GatewayReference}
	case OutcomeFailure:
		reason := strings.TrimSpace(outcome.Message)
		if reason == "" {
			reason = MessagePaymentDeclined
		}
		return Result{State: StateFailed, Reason: reason, GatewayReference: outcome.GatewayReference}
	case OutcomeError:
		return Result{
			State:            StateErrored,
			Reason:           MessageGatewayUnavailable,
			GatewayReference: outcome.GatewayReference,
			Err:              &GatewayUnavailableError{Gateway: gateway, Err: fmt.Errorf("gateway reported error: %s", outcome.Message)},
		}
	default:
		return Result{
			State:  StateErrored,
			Reason: MessageGatewayUnavailable,
			Err:    &GatewayUnavailableError{Gateway: gateway, Err: fmt.Errorf("unknown outcome status %q", outcome.Status)},
		}
	}
}

// forward calls the gateway bounded by the processor timeout. A client that
// ignores its context still cannot hold the request past the deadline; the
// call is then abandoned and late, when set, receives its eventual answer.
func (p *Processor) forward(ctx context.Context, req ForwardRequest, late func(*GatewayOutcome, error)) (*GatewayOutcome, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)

	type reply struct {
		outcome *GatewayOutcome
		err     error
	}
	replies := make(chan reply, 1)

	go func() {
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				replies <- reply{err: fmt.Errorf("gateway client panicked: %v", r)}
			}
		}()
		outcome, err := p.gateway.Forward(ctx, req)
		replies <- reply{outcome: outcome, err: err}
	}()

	select {
	case r := <-replies:
		if r.err != nil {
			return nil, false, asUnavailable(req.GatewayName, r.err)
		}
		return r.outcome, false, nil
	case <-ctx.Done():
		if late != nil {
			go func() {
				r := <-replies
				if r.err != nil {
					r.err = asUnavailable(req.GatewayName, r.err)
				}
				late(r.outcome, r.err)
			}()
		}
		return nil, true, &GatewayUnavailableError{Gateway: req.GatewayName, Err: ctx.Err()}
	}
}

func (p *Processor) reject(ctx context.Context, gateway string, err error) Result {
	logger.Warn("Payment payload rejected", logContext(ctx, gateway, map[string]any{
		"reason": err.Error(),
	}))
	return Result{State: StateFailed, Reason: err.Error(), Err: err}
}

// settle stores decided results and frees the key after transport errors so
// the client can retry. A key is only freed once the gateway call returned.
func (p *Processor) settle(ctx context.Context, key string, result Result, gateway string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.recordTimeout)
	defer cancel()

	var err error
	if result.State == StateErrored {
		err = p.dedup.Release(ctx, key)
	} else {
		stored := result
		stored.Err = nil
		err = p.dedup.Complete(ctx, key, stored)
	}
	if err != nil {
		logger.Error("Failed to update idempotency store", err, logContext(ctx, gateway, nil))
	}
}

func (p *Processor) record(ctx context.Context, attempt Attempt) {
	if p.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.recordTimeout)
	defer cancel()

	if err := p.recorder.Record(ctx, attempt); err != nil {
		logger.Error("Failed to record payment attempt", err, logContext(ctx, attempt.Gateway, map[string]any{
			"attempt_id": attempt.ID,
		}))
	}
}

func (p *Processor) transition(ctx context.Context, gateway string, state State, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any, 1)
	}
	fields["state"] = state
	logger.Debug("Payment state changed", logContext(ctx, gateway, fields))
}

func asUnavailable(gateway string, err error) error {
	var unavailable *GatewayUnavailableError
	if errors.As(err, &unavailable) {
		return err
	}
	return &GatewayUnavailableError{Gateway: gateway, Err: err}
}

// dedupKey prefers the client supplied idempotency key and falls back to the
// token fingerprint, so a resubmitted wallet token is charged once.
func dedupKey(idempotencyKey string, token TokenData) string {
	if k := strings.TrimSpace(idempotencyKey); k != "" {
		return "key:" + k
	}
	return "token:" + TokenFingerprint(token.Token)
}

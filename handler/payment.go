package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/mstgnz/walletpay/infra/logger"
	"github.com/mstgnz/walletpay/infra/response"
	"github.com/mstgnz/walletpay/payment"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	replayedHeader       = "Idempotent-Replayed"
	maxIdempotencyKeyLen = 255

	defaultMaxBodyBytes = 64 * 1024
)

// PaymentProcessor runs one payment request through the pipeline
type PaymentProcessor interface {
	Process(ctx context.Context, req payment.ProcessRequest) payment.Result
}

// ConfigDescriber renders the documents served to the wallet button
type ConfigDescriber interface {
	Describe() (payment.Document, error)
	DescribeReadiness() (payment.ReadinessDocument, error)
}

// PaymentHandler serves the wallet button endpoints
type PaymentHandler struct {
	config       ConfigDescriber
	processor    PaymentProcessor
	maxBodyBytes int64
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(config ConfigDescriber, processor PaymentProcessor, maxBodyBytes int64) *PaymentHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return &PaymentHandler{
		config:       config,
		processor:    processor,
		maxBodyBytes: maxBodyBytes,
	}
}

// GetPaymentConfig returns the configuration document for the wallet button
func (h *PaymentHandler) GetPaymentConfig(w http.ResponseWriter, r *http.Request) {
	doc, err := h.config.Describe()
	if err != nil {
		logger.Error("Failed to describe payment configuration", err, requestLogContext(r))
		response.ErrorMessage(w, http.StatusInternalServerError, err.Error())
		return
	}

	response.WriteJSON(w, http.StatusOK, doc)
}

// GetReadiness returns the document used by the button's readiness probe
func (h *PaymentHandler) GetReadiness(w http.ResponseWriter, r *http.Request) {
	doc, err := h.config.DescribeReadiness()
	if err != nil {
		logger.Error("Failed to describe readiness configuration", err, requestLogContext(r))
		response.ErrorMessage(w, http.StatusInternalServerError, err.Error())
		return
	}

	response.WriteJSON(w, http.StatusOK, doc)
}

// ProcessPayment accepts the wallet payload and answers with the outcome.
// Declines are 200, invalid payloads 400 and gateway faults 500.
func (h *PaymentHandler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
	if len(key) > maxIdempotencyKeyLen {
		response.Outcome(w, http.StatusBadRequest, false, "Idempotency-Key must not exceed 255 characters")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBodyBytes+1))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Outcome(w, http.StatusBadRequest, false, "request body too large")
			return
		}
		logger.Warn("Failed to read payment request body", requestLogContext(r))
		response.Outcome(w, http.StatusBadRequest, false, "failed to read request body")
		return
	}
	if int64(len(body)) > h.maxBodyBytes {
		response.Outcome(w, http.StatusBadRequest, false, "request body too large")
		return
	}

	result := h.processor.Process(r.Context(), payment.ProcessRequest{
		Body:           body,
		IdempotencyKey: key,
	})

	if result.Replayed {
		w.Header().Set(replayedHeader, "true")
	}

	status := http.StatusOK
	if result.Err != nil {
		status = payment.HTTPStatus(result.Err)
	}
	response.Outcome(w, status, result.Success, result.Reason)
}

func requestLogContext(r *http.Request) logger.LogContext {
	return logger.LogContext{
		RequestID: payment.RequestIDFromContext(r.Context()),
		Fields: map[string]any{
			"method": r.Method,
			"path":   r.URL.Path,
		},
	}
}

package response

import (
	"encoding/json"
	"net/http"

	"github.com/mstgnz/walletpay/infra/logger"
)

const contentTypeJSON = "application/json"

// encodeFailure is written when a body cannot be marshalled
var encodeFailure = []byte(`{"error":"failed to encode response"}`)

// Response is the envelope used by the admin and health endpoints
type Response struct {
	Code    int    `json:"code"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// PaymentOutcome is what the wallet button receives after a payment attempt.
// Error is left out on success.
type PaymentOutcome struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ErrorBody is the bare {"error": message} document
type ErrorBody struct {
	Error string `json:"error"`
}

// WriteJSON marshals data before touching the writer so that a failed encode
// can still produce a clean 500.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		logger.Error("Failed to encode response", err)
		statusCode, body = http.StatusInternalServerError, encodeFailure
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_, _ = w.Write(body)
}

func Success(w http.ResponseWriter, statusCode int, message string, data any) {
	WriteJSON(w, statusCode, Response{Code: statusCode, Success: true, Message: message, Data: data})
}

// Error writes the envelope with success false. err, when given, is exposed
// as-is, so callers pass nil for anything internal.
func Error(w http.ResponseWriter, statusCode int, message string, err error) {
	resp := Response{Code: statusCode, Message: message}
	if err != nil {
		resp.Error = err.Error()
	}
	WriteJSON(w, statusCode, resp)
}

// Outcome writes {"success":true} or {"success":false,"error":reason}
func Outcome(w http.ResponseWriter, statusCode int, success bool, reason string) {
	out := PaymentOutcome{Success: success}
	if !success {
		out.Error = reason
	}
	WriteJSON(w, statusCode, out)
}

// ErrorMessage writes {"error":message}
func ErrorMessage(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, ErrorBody{Error: message})
}

package payment

import (
	"errors"
	"fmt"

	"github.com/noah-isme/payment-relay/internal/schema"
)

// Provider error types as reported in the gateway's error envelope.
const (
	ErrorTypeAPI           = "api_error"
	ErrorTypeAPIConnection = "api_connection_error"
	ErrorTypeCard          = "card_error"
	ErrorTypeIdempotency   = "idempotency_error"
	ErrorTypeInvalidReq    = "invalid_request_error"
)

// ProviderError is a failure attributable to the payment gateway, either reported by it
// or caused by not being able to reach it.
type ProviderError struct {
	HTTPStatus  int
	Type        string
	Code        string
	DeclineCode string
	Param       string
	Message     string
	RequestID   string
	Err         error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = fmt.Sprintf("payment provider returned status %d", e.HTTPStatus)
	}
	if e.RequestID != "" {
		return "Request " + e.RequestID + ": " + msg
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IdempotencyConflict reports whether the key was already used for another request.
func (e *ProviderError) IdempotencyConflict() bool {
	return e != nil && e.Type == ErrorTypeIdempotency
}

// Detail renders the error as the fixed-shape detail of a failed response.
func (e *ProviderError) Detail() schema.ErrorDetail {
	code := e.Code
	if e.DeclineCode != "" {
		code = e.DeclineCode
	}
	if code == "" {
		code = e.Type
	}
	return schema.ErrorDetail{Message: e.Error(), Code: code}
}

// AsProviderError extracts a ProviderError from the chain.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

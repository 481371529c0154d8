package schema

import "encoding/json"

// Normalized gateway statuses.
const (
	StatusSuccess = "success"
	StatusPending = "pending"
	StatusFailed  = "failed"
)

// ErrorDetail is attached to failed responses only.
type ErrorDetail struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ChannelPaymentResponse is returned by create and cancel.
type ChannelPaymentResponse struct {
	ChannelOrderID *string      `json:"channel_order_id"`
	Status         string       `json:"status"`
	RedirectURL    *string      `json:"redirect_url"`
	Detail         *ErrorDetail `json:"detail"`
}

type RefundResponse struct {
	ChannelRefundID *string      `json:"channel_refund_id"`
	Status          string       `json:"status"`
	Detail          *ErrorDetail `json:"detail"`
}

// PaymentDetailsResponse flattens a payment with its charges and the refunds of those
// charges. Charge, refund and payment method records are relayed as the provider returned them.
type PaymentDetailsResponse struct {
	ChannelOrderID string            `json:"channel_order_id"`
	Status         string            `json:"status"`
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	Metadata       map[string]string `json:"metadata"`
	PaymentMethod  json.RawMessage   `json:"payment_method"`
	Created        int64             `json:"created"`
	Charges        []json.RawMessage `json:"charges"`
	Refunds        []json.RawMessage `json:"refunds"`
}

// CardPayment summarizes one payment made with a card instrument.
type CardPayment struct {
	ChannelOrderID string            `json:"channel_order_id"`
	Status         string            `json:"status"`
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	Created        int64             `json:"created"`
	Metadata       map[string]string `json:"metadata"`
	Charges        []json.RawMessage `json:"charges"`
}

type CardPaymentsResponse struct {
	Payments []CardPayment `json:"payments"`
}

// FailedPayment builds a create response for a provider-side failure.
func FailedPayment(detail ErrorDetail) ChannelPaymentResponse {
	return ChannelPaymentResponse{Status: StatusFailed, Detail: &detail}
}

// FailedRefund builds a refund response for a provider-side failure.
func FailedRefund(detail ErrorDetail) RefundResponse {
	return RefundResponse{Status: StatusFailed, Detail: &detail}
}

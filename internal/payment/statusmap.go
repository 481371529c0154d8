package payment

import "github.com/noah-isme/payment-relay/internal/schema"

// MapIntentStatus normalizes a payment intent status for create responses.
func MapIntentStatus(status string) string {
	switch status {
	case IntentSucceeded:
		return schema.StatusSuccess
	case IntentRequiresAction:
		return schema.StatusPending
	default:
		return schema.StatusFailed
	}
}

// MapRefundStatus normalizes a refund status.
func MapRefundStatus(status string) string {
	switch status {
	case RefundSucceeded:
		return schema.StatusSuccess
	case RefundPending:
		return schema.StatusPending
	default:
		return schema.StatusFailed
	}
}

package payment

import "context"

// BillingAddress is the postal address attached to a card instrument.
type BillingAddress struct {
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// CardMethodParams registers a raw card with the provider.
type CardMethodParams struct {
	Number     string
	ExpMonth   int
	ExpYear    int
	CVC        string
	HolderName string
	Email      string
	Address    BillingAddress
}

// IntentParams opens and immediately confirms a payment against a card instrument.
type IntentParams struct {
	Amount          int64
	Currency        string
	PaymentMethodID string
	ReturnURL       string
	Challenge3DS    bool
	Metadata        map[string]string
	IdempotencyKey  string
}

// RefundParams issues a refund. A nil Amount refunds the remaining balance.
type RefundParams struct {
	PaymentIntentID string
	Amount          *int64
	Metadata        map[string]string
	IdempotencyKey  string
}

// ListParams selects one page of a cursor-paginated listing.
type ListParams struct {
	Limit         int
	StartingAfter string
}

// Provider abstracts the operations required from the upstream payment gateway.
// Implementations return *ProviderError for failures attributable to the gateway.
type Provider interface {
	CreateCardMethod(ctx context.Context, params CardMethodParams) (*CardMethod, error)
	GetCardMethod(ctx context.Context, id string) (*CardMethod, error)
	CreateIntent(ctx context.Context, params IntentParams) (*Intent, error)
	GetIntent(ctx context.Context, id string, expand ...string) (*Intent, error)
	CancelIntent(ctx context.Context, id string) (*Intent, error)
	CreateRefund(ctx context.Context, params RefundParams) (*Refund, error)
	ListRefunds(ctx context.Context, paymentIntentID string, page ListParams) (*List[Refund], error)
	ListCharges(ctx context.Context, page ListParams, expand ...string) (*List[Charge], error)
}

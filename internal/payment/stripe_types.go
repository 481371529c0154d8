package payment

import (
	"bytes"
	"encoding/json"
)

// Intent statuses the relay maps explicitly.
const (
	IntentSucceeded      = "succeeded"
	IntentRequiresAction = "requires_action"
	IntentCanceled       = "canceled"
	RefundSucceeded      = "succeeded"
	RefundPending        = "pending"
)

// List is one page of a cursor-paginated collection.
type List[T any] struct {
	Object  string `json:"object"`
	Data    []T    `json:"data"`
	HasMore bool   `json:"has_more"`
	URL     string `json:"url"`
}

// Intent is a payment authorization at the provider.
type Intent struct {
	ID            string            `json:"id"`
	Object        string            `json:"object"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Status        string            `json:"status"`
	Created       int64             `json:"created"`
	Metadata      map[string]string `json:"metadata"`
	NextAction    *NextAction       `json:"next_action"`
	PaymentMethod *CardMethodRef    `json:"payment_method"`
	Charges       *List[Charge]     `json:"charges"`

	Raw json.RawMessage `json:"-"`
}

// NextAction describes what the shopper must do before an intent can proceed.
type NextAction struct {
	Type          string         `json:"type"`
	RedirectToURL *RedirectToURL `json:"redirect_to_url,omitempty"`
}

type RedirectToURL struct {
	URL       string `json:"url"`
	ReturnURL string `json:"return_url"`
}

// RedirectURL returns the 3-D Secure redirect the shopper must follow, or "".
func (i *Intent) RedirectURL() string {
	if i == nil || i.NextAction == nil || i.NextAction.RedirectToURL == nil {
		return ""
	}
	return i.NextAction.RedirectToURL.URL
}

func (i *Intent) UnmarshalJSON(b []byte) error {
	type plain Intent
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*i = Intent(p)
	i.Raw = append(json.RawMessage(nil), b...)
	return nil
}

// Charge is one attempt to move funds for an intent.
type Charge struct {
	ID            string            `json:"id"`
	Object        string            `json:"object"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Status        string            `json:"status"`
	Created       int64             `json:"created"`
	PaymentMethod string            `json:"payment_method"`
	PaymentIntent *IntentRef        `json:"payment_intent"`
	Refunds       *List[Refund]     `json:"refunds"`
	Metadata      map[string]string `json:"metadata"`

	Raw json.RawMessage `json:"-"`
}

func (c *Charge) UnmarshalJSON(b []byte) error {
	type plain Charge
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*c = Charge(p)
	c.Raw = append(json.RawMessage(nil), b...)
	return nil
}

type Refund struct {
	ID            string            `json:"id"`
	Object        string            `json:"object"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Status        string            `json:"status"`
	Created       int64             `json:"created"`
	Charge        string            `json:"charge"`
	PaymentIntent string            `json:"payment_intent"`
	Metadata      map[string]string `json:"metadata"`

	Raw json.RawMessage `json:"-"`
}

func (r *Refund) UnmarshalJSON(b []byte) error {
	type plain Refund
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*r = Refund(p)
	r.Raw = append(json.RawMessage(nil), b...)
	return nil
}

// CardMethod is a tokenized card instrument.
type CardMethod struct {
	ID       string            `json:"id"`
	Object   string            `json:"object"`
	Type     string            `json:"type"`
	Created  int64             `json:"created"`
	Card     *CardDetails      `json:"card,omitempty"`
	Metadata map[string]string `json:"metadata"`

	Raw json.RawMessage `json:"-"`
}

type CardDetails struct {
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
	Country  string `json:"country"`
}

func (m *CardMethod) UnmarshalJSON(b []byte) error {
	type plain CardMethod
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*m = CardMethod(p)
	m.Raw = append(json.RawMessage(nil), b...)
	return nil
}

// IntentRef is an expandable reference: either a bare id or the full intent.
type IntentRef struct {
	ID     string
	Object *Intent
}

func (r *IntentRef) UnmarshalJSON(b []byte) error {
	if isJSONString(b) {
		return json.Unmarshal(b, &r.ID)
	}
	var intent Intent
	if err := json.Unmarshal(b, &intent); err != nil {
		return err
	}
	r.ID, r.Object = intent.ID, &intent
	return nil
}

func (r IntentRef) MarshalJSON() ([]byte, error) {
	if r.Object != nil {
		return marshalRecord(r.Object, r.Object.Raw)
	}
	return json.Marshal(r.ID)
}

// CardMethodRef is an expandable reference to a card instrument.
type CardMethodRef struct {
	ID     string
	Object *CardMethod
}

func (r *CardMethodRef) UnmarshalJSON(b []byte) error {
	if isJSONString(b) {
		return json.Unmarshal(b, &r.ID)
	}
	var method CardMethod
	if err := json.Unmarshal(b, &method); err != nil {
		return err
	}
	r.ID, r.Object = method.ID, &method
	return nil
}

func (r CardMethodRef) MarshalJSON() ([]byte, error) {
	if r.Object != nil {
		return marshalRecord(r.Object, r.Object.Raw)
	}
	return json.Marshal(r.ID)
}

func isJSONString(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && b[0] == '"'
}

// marshalRecord relays the provider's own encoding when it is known.
func marshalRecord(v any, raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) > 0 {
		return raw, nil
	}
	return json.Marshal(v)
}

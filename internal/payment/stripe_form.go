package payment

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/go-querystring/query"
)

// Form bodies follow the gateway's bracket-nested encoding, which go-querystring
// produces for nested structs (billing_details[address][city]=...).

type cardMethodForm struct {
	Type           string      `url:"type"`
	Card           cardForm    `url:"card"`
	BillingDetails billingForm `url:"billing_details"`
}

type cardForm struct {
	Number   string `url:"number"`
	ExpMonth int    `url:"exp_month"`
	ExpYear  int    `url:"exp_year"`
	CVC      string `url:"cvc"`
}

type billingForm struct {
	Name    string      `url:"name,omitempty"`
	Email   string      `url:"email,omitempty"`
	Address addressForm `url:"address"`
}

type addressForm struct {
	Line1      string `url:"line1,omitempty"`
	Line2      string `url:"line2,omitempty"`
	City       string `url:"city,omitempty"`
	State      string `url:"state,omitempty"`
	PostalCode string `url:"postal_code,omitempty"`
	Country    string `url:"country,omitempty"`
}

type intentForm struct {
	Amount               int64             `url:"amount"`
	Currency             string            `url:"currency"`
	PaymentMethod        string            `url:"payment_method"`
	ConfirmationMethod   string            `url:"confirmation_method"`
	Confirm              bool              `url:"confirm"`
	ReturnURL            string            `url:"return_url,omitempty"`
	PaymentMethodOptions methodOptionsForm `url:"payment_method_options"`
}

type methodOptionsForm struct {
	Card cardOptionsForm `url:"card"`
}

type cardOptionsForm struct {
	RequestThreeDSecure string `url:"request_three_d_secure"`
}

type refundForm struct {
	PaymentIntent string `url:"payment_intent"`
	Amount        *int64 `url:"amount,omitempty"`
}

type listForm struct {
	PaymentIntent string   `url:"payment_intent,omitempty"`
	Limit         int      `url:"limit,omitempty"`
	StartingAfter string   `url:"starting_after,omitempty"`
	Expand        []string `url:"expand,omitempty,brackets"`
}

type expandForm struct {
	Expand []string `url:"expand,omitempty,brackets"`
}

func newCardMethodForm(p CardMethodParams) cardMethodForm {
	return cardMethodForm{
		Type: "card",
		Card: cardForm{
			Number:   p.Number,
			ExpMonth: p.ExpMonth,
			ExpYear:  p.ExpYear,
			CVC:      p.CVC,
		},
		BillingDetails: billingForm{
			Name:  p.HolderName,
			Email: p.Email,
			Address: addressForm{
				Line1:      p.Address.Line1,
				Line2:      p.Address.Line2,
				City:       p.Address.City,
				State:      p.Address.State,
				PostalCode: p.Address.PostalCode,
				Country:    p.Address.Country,
			},
		},
	}
}

func newIntentForm(p IntentParams) intentForm {
	threeDS := "automatic"
	if p.Challenge3DS {
		threeDS = "challenge"
	}
	return intentForm{
		Amount:             p.Amount,
		Currency:           strings.ToLower(p.Currency),
		PaymentMethod:      p.PaymentMethodID,
		ConfirmationMethod: "automatic",
		Confirm:            true,
		ReturnURL:          p.ReturnURL,
		PaymentMethodOptions: methodOptionsForm{
			Card: cardOptionsForm{RequestThreeDSecure: threeDS},
		},
	}
}

// encodeForm encodes v and appends metadata as metadata[key]=value pairs.
func encodeForm(v any, metadata map[string]string) (url.Values, error) {
	values, err := query.Values(v)
	if err != nil {
		return nil, fmt.Errorf("encode form: %w", err)
	}
	for k, val := range metadata {
		values.Set("metadata["+k+"]", val)
	}
	return values, nil
}

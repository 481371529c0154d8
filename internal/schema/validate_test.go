package schema_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/payment-relay/internal/schema"
)

var fixedNow = time.Date(2026, time.October, 16, 9, 0, 0, 0, time.UTC)

func newValidator() *schema.Validator {
	return schema.NewValidator(schema.WithClock(func() time.Time { return fixedNow }))
}

func validRequest() *schema.PaymentRequest {
	requires3DS := false
	amount := int64(10000)
	return &schema.PaymentRequest{
		Env: &schema.Env{
			TerminalType: "WEB",
			ClientIP:     "203.0.113.7",
			BrowserInfo:  &schema.BrowserInfo{UserAgent: "Mozilla/5.0", Language: "en_US"},
		},
		Order: &schema.Order{
			MerchantOrderID: "order_123",
			Goods: []schema.Goods{{
				GoodsID:            "sku-1",
				GoodsName:          "Product 1",
				GoodsCategory:      "food",
				GoodsQuantity:      1,
				GoodsURL:           "https://example.com/p/1",
				GoodsPrice:         5000,
				DeliveryMethodType: "PHYSICAL",
			}},
			Shipping: &schema.Shipping{
				ShippingName:    &schema.Name{FirstName: "Demo", LastName: "User", FullName: "Demo User"},
				ShippingAddress: &schema.Address{Country: "US", State: "CA", City: "Fresno", Address1: "1 Main St", ZipCode: "93706"},
				Email:           "shopper@example.org",
				Phone:           "+15550100",
			},
			PaymentAmount: &schema.PaymentAmount{Currency: "USD", Value: &amount},
			PaymentMethod: &schema.PaymentMethod{
				PaymentType: "CARD",
				PaymentData: &schema.PaymentData{
					CardNumber:     "4242424242424242",
					ExpiryYear:     "28",
					ExpiryMonth:    "12",
					CVV:            "123",
					Requires3DS:    &requires3DS,
					Country:        "US",
					CardHolderName: &schema.Name{FirstName: "Demo", LastName: "User", FullName: "Demo User"},
					BillingAddress: &schema.Address{Country: "US", State: "CA", City: "Fresno", Address1: "1 Main St", ZipCode: "93706"},
				},
			},
		},
		MerchantID:             "1",
		RedirectURL:            "https://example.com/return",
		ExternalRequestOrderID: "ext_1",
	}
}

func validationError(t *testing.T, err error) *schema.ValidationError {
	t.Helper()
	var verr *schema.ValidationError
	require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)
	return verr
}

func TestValidRequestPasses(t *testing.T) {
	require.NoError(t, newValidator().Struct(validRequest()))
}

func TestTrimsStringsAtEveryDepth(t *testing.T) {
	req := validRequest()
	req.MerchantID = "  1  "
	req.Env.BrowserInfo.UserAgent = "\tMozilla/5.0 "
	req.Order.Goods[0].GoodsName = " abc "
	req.Order.PaymentMethod.PaymentData.CardNumber = " 4242424242424242 "
	req.Order.PaymentMethod.PaymentData.BillingAddress.City = " Fresno\n"
	req.Order.Metadata = map[string]string{"shop": " happy "}

	require.NoError(t, newValidator().Struct(req))
	require.Equal(t, "1", req.MerchantID)
	require.Equal(t, "Mozilla/5.0", req.Env.BrowserInfo.UserAgent)
	require.Equal(t, "abc", req.Order.Goods[0].GoodsName)
	require.Equal(t, "4242424242424242", req.Order.PaymentMethod.PaymentData.CardNumber)
	require.Equal(t, "Fresno", req.Order.PaymentMethod.PaymentData.BillingAddress.City)
	require.Equal(t, " happy ", req.Order.Metadata["shop"])
}

func TestBlankAfterTrimIsRequiredFailure(t *testing.T) {
	req := validRequest()
	req.Env.BrowserInfo.UserAgent = "   "
	req.Order.MerchantOrderID = " "

	verr := validationError(t, newValidator().Struct(req))
	require.True(t, verr.Has("env.browser_info.user_agent", "required"))
	require.True(t, verr.Has("order.merchant_order_id", "required"))
}

func TestCardNumberLength(t *testing.T) {
	cases := map[string]bool{
		strings.Repeat("4", 12): false,
		strings.Repeat("4", 13): true,
		strings.Repeat("4", 19): true,
		strings.Repeat("4", 20): false,
		"4242-4242-4242-4242":   false,
	}
	v := newValidator()
	for number, ok := range cases {
		req := validRequest()
		req.Order.PaymentMethod.PaymentData.CardNumber = number
		err := v.Struct(req)
		if ok {
			require.NoError(t, err, number)
			continue
		}
		verr := validationError(t, err)
		require.True(t, verr.Has("order.payment_method.payment_data.card_number", "card_number"), number)
	}
}

func TestExpiry(t *testing.T) {
	v := newValidator()
	cases := []struct {
		name  string
		year  string
		month string
		rule  string
	}{
		{name: "two years behind", year: "24", month: "12", rule: schema.RuleCardExpired},
		{name: "previous month", year: "26", month: "09", rule: schema.RuleCardExpired},
		{name: "current month", year: "26", month: "10"},
		{name: "next year", year: "27", month: "01"},
		{name: "month out of range", year: "27", month: "13", rule: schema.RuleExpiryInvalid},
		{name: "non numeric year", year: "ab", month: "05", rule: schema.RuleExpiryInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			req.Order.PaymentMethod.PaymentData.ExpiryYear = tc.year
			req.Order.PaymentMethod.PaymentData.ExpiryMonth = tc.month
			err := v.Struct(req)
			if tc.rule == "" {
				require.NoError(t, err)
				return
			}
			verr := validationError(t, err)
			require.True(t, verr.Has("order.payment_method.payment_data.expiry", tc.rule), verr.Error())
		})
	}
}

func TestCVVAndMonthFormats(t *testing.T) {
	req := validRequest()
	req.Order.PaymentMethod.PaymentData.CVV = "12"
	req.Order.PaymentMethod.PaymentData.ExpiryMonth = "1"

	verr := validationError(t, newValidator().Struct(req))
	require.True(t, verr.Has("order.payment_method.payment_data.cvv", "cvv"))
	require.True(t, verr.Has("order.payment_method.payment_data.expiry_month", "expiry_month"))
}

func TestCollectsEveryFailingField(t *testing.T) {
	req := validRequest()
	req.Env.TerminalType = "KIOSK"
	req.Order.Shipping.Email = "not-an-email"
	req.Order.Shipping.ShippingAddress.Country = "USA"
	req.Order.Goods[0].GoodsID = ""
	req.Order.Goods[0].DeliveryMethodType = "DRONE"
	req.RedirectURL = ""

	verr := validationError(t, newValidator().Struct(req))
	require.True(t, verr.Has("env.terminal_type", "oneof"))
	require.True(t, verr.Has("order.shipping.email", "email"))
	require.True(t, verr.Has("order.shipping.shipping_address.country", "max"))
	require.True(t, verr.Has("order.goods[0].goods_id", "required"))
	require.True(t, verr.Has("order.goods[0].delivery_method_type", "oneof"))
	require.True(t, verr.Has("redirect_url", "required"))
	require.Len(t, verr.Fields, 6)
}

func TestMissingNestedObjects(t *testing.T) {
	req := validRequest()
	req.Env = nil
	req.Order.PaymentMethod = nil

	verr := validationError(t, newValidator().Struct(req))
	require.True(t, verr.Has("env", "required"))
	require.True(t, verr.Has("order.payment_method", "required"))
}

func TestDecodePayment(t *testing.T) {
	body := `{
		"env": {"terminal_type": " WEB ", "client_ip": "1.2.3.4", "browser_info": {"user_agent": "UA"}},
		"order": {
			"merchant_order_id": "o1",
			"shipping": {
				"shipping_name": {"first_name": "A", "last_name": "B", "full_name": "A B"},
				"shipping_address": {"country": "US", "state": "CA", "city": "X", "address1": "Y", "zip_code": "1"},
				"email": "a@example.org", "phone": "1"
			},
			"payment_amount": {"currency": "usd", "value": 100},
			"payment_method": {"payment_type": "CARD", "payment_data": {
				"card_number": "4000000000003220", "expiry_year": "30", "expiry_month": "01", "cvv": "123",
				"requires_3ds": true, "country": "US",
				"card_holder_name": {"first_name": "A", "last_name": "B", "full_name": "A B"},
				"billing_address": {"country": "US", "state": "CA", "city": "X", "address1": "Y", "zip_code": "1"}
			}}
		},
		"merchant_id": "m1",
		"redirect_url": "https://example.com"
	}`
	req, err := schema.Decode[schema.PaymentRequest](newValidator(), strings.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, "WEB", req.Env.TerminalType)
	require.True(t, req.Order.PaymentMethod.PaymentData.ChallengeRequested())
}

func TestDecodeTypeErrorNamesField(t *testing.T) {
	body := `{"channel_order_id": "pi_1", "refund_amount": "ten", "system_order_id": "s", "external_refund_id": "r", "refund_request_id": "q"}`
	_, err := schema.Decode[schema.RefundRequest](newValidator(), strings.NewReader(body))
	verr := validationError(t, err)
	require.Len(t, verr.Fields, 1)
	require.Equal(t, "refund_amount", verr.Fields[0].Field)
	require.Equal(t, "type", verr.Fields[0].Rule)
}

func TestDecodeMalformedAndEmptyBody(t *testing.T) {
	_, err := schema.Decode[schema.RefundRequest](newValidator(), strings.NewReader(`{"channel_order_id":`))
	require.True(t, validationError(t, err).Has("body", "json"))

	_, err = schema.Decode[schema.RefundRequest](newValidator(), strings.NewReader(""))
	require.True(t, validationError(t, err).Has("body", "required"))
}

func TestRefundAmountRules(t *testing.T) {
	v := newValidator()
	zero := int64(0)
	req := &schema.RefundRequest{ChannelOrderID: "pi_1", RefundAmount: &zero, SystemOrderID: "s", ExternalRefundID: "r1", RefundRequestID: "q"}
	require.True(t, validationError(t, v.Struct(req)).Has("refund_amount", "gt"))

	req.RefundAmount = nil
	require.NoError(t, v.Struct(req))
}

func TestDecodeRequiresPaymentAmountValue(t *testing.T) {
	raw, err := json.Marshal(validRequest())
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	amount := doc["order"].(map[string]any)["payment_amount"].(map[string]any)
	delete(amount, "value")
	body, err := json.Marshal(doc)
	require.NoError(t, err)

	_, err = schema.Decode[schema.PaymentRequest](newValidator(), bytes.NewReader(body))
	verr := validationError(t, err)
	require.True(t, verr.Has("order.payment_amount.value", "required"), verr.Error())
}

func TestZeroPaymentAmountIsAllowed(t *testing.T) {
	req := validRequest()
	zero := int64(0)
	req.Order.PaymentAmount.Value = &zero
	require.NoError(t, newValidator().Struct(req))
}

func TestDecodeRejectsTrailingData(t *testing.T) {
	body := `{"channel_order_id": "pi_1", "system_order_id": "s", "external_refund_id": "r", "refund_request_id": "q"}`
	for name, suffix := range map[string]string{
		"second document": `{"x":1}`,
		"garbage":         ` garbage`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := schema.Decode[schema.RefundRequest](newValidator(), strings.NewReader(body+suffix))
			require.True(t, validationError(t, err).Has("body", "json"))
		})
	}

	req, err := schema.Decode[schema.RefundRequest](newValidator(), strings.NewReader(body+"\n  \n"))
	require.NoError(t, err)
	require.Equal(t, "pi_1", req.ChannelOrderID)
}

func TestMalformedExpiryIsNotReportedAsExpired(t *testing.T) {
	req := validRequest()
	req.Order.PaymentMethod.PaymentData.ExpiryYear = "2"

	verr := validationError(t, newValidator().Struct(req))
	require.True(t, verr.Has("order.payment_method.payment_data.expiry_year", "expiry_year"))
	require.True(t, verr.Has("order.payment_method.payment_data.expiry", schema.RuleExpiryInvalid))
	require.False(t, verr.Has("order.payment_method.payment_data.expiry", schema.RuleCardExpired))
}

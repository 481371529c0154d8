package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/payment-relay/internal/auth"
)

const validPayment = `{
  "env": {"terminal_type": "WEB", "client_ip": "203.0.113.7", "browser_info": {"user_agent": "Mozilla/5.0"}},
  "order": {
    "merchant_order_id": " order_123 ",
    "shipping": {
      "shipping_name": {"first_name": "Demo", "last_name": "User", "full_name": "Demo User"},
      "shipping_address": {"country": "US", "state": "CA", "city": "Fresno", "address1": "1 Main St", "zip_code": "93706"},
      "email": "shopper@example.org",
      "phone": "+15550100"
    },
    "payment_amount": {"currency": "USD", "value": 10000},
    "payment_method": {
      "payment_type": "CARD",
      "payment_data": {
        "card_number": "4242424242424242", "expiry_year": "27", "expiry_month": "01", "cvv": "123", "country": "US",
        "card_holder_name": {"first_name": "Demo", "last_name": "User", "full_name": "Demo User"},
        "billing_address": {"country": "US", "state": "CA", "city": "Fresno", "address1": "1 Main St", "zip_code": "93706"}
      }
    }
  },
  "merchant_id": "1",
  "redirect_url": "https://example.com/return"
}`

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestPaymentValidPrintsNormalizedPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payment.json")
	require.NoError(t, os.WriteFile(path, []byte(validPayment), 0o600))

	out, _, err := run(t, "", "payment", path, "--at", "2026-10-16")
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Equal(t, "order_123", decoded["order"].(map[string]any)["merchant_order_id"])
}

func TestPaymentExpiredCardFails(t *testing.T) {
	_, errOut, err := run(t, validPayment, "payment", "-", "--at", "2027-02-01")
	var invalid errInvalid
	require.True(t, errors.As(err, &invalid))
	require.Equal(t, 1, invalid.fields)
	require.Contains(t, errOut, "card expired")
}

func TestRefundReportsEveryField(t *testing.T) {
	_, errOut, err := run(t, `{"refund_amount": -5}`, "refund", "-")
	var invalid errInvalid
	require.True(t, errors.As(err, &invalid))
	require.Equal(t, 5, invalid.fields)
	require.Contains(t, errOut, "external_refund_id")
}

func TestBadAtFlag(t *testing.T) {
	_, _, err := run(t, validPayment, "payment", "-", "--at", "16/10/2026")
	require.Error(t, err)
	var invalid errInvalid
	require.False(t, errors.As(err, &invalid))
}

func TestTokenCommand(t *testing.T) {
	out, _, err := run(t, "", "token", "merchant-1", "--secret", "s3cret", "--ttl", "5m")
	require.NoError(t, err)

	a, err := auth.NewAuthenticator("s3cret", "", "")
	require.NoError(t, err)
	subject, err := a.ParseToken(strings.TrimSpace(out))
	require.NoError(t, err)
	require.Equal(t, "merchant-1", subject)
}

func TestTokenCommandRequiresSecret(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "")
	_, _, err := run(t, "", "token", "merchant-1", "--secret", "", "--ttl", time.Minute.String())
	require.Error(t, err)
}

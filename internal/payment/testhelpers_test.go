package payment_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/payment-relay/internal/payment"
	"github.com/noah-isme/payment-relay/internal/resilience"
	"github.com/noah-isme/payment-relay/internal/schema"
)

type recordedRequest struct {
	Method  string
	Path    string
	Header  http.Header
	Form    url.Values
	Query   url.Values
	Attempt int
}

// fakeStripe is an httptest stand-in for the gateway. Routes are keyed by "METHOD /path".
type fakeStripe struct {
	t      *testing.T
	mu     sync.Mutex
	routes map[string]http.HandlerFunc
	calls  []recordedRequest
	server *httptest.Server
}

func newFakeStripe(t *testing.T) *fakeStripe {
	t.Helper()
	f := &fakeStripe{t: t, routes: map[string]http.HandlerFunc{}}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeStripe) handle(method, path string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[method+" "+path] = h
}

func (f *fakeStripe) serve(w http.ResponseWriter, r *http.Request) {
	require.NoError(f.t, r.ParseForm())
	f.mu.Lock()
	f.calls = append(f.calls, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Header: r.Header.Clone(),
		Form:   r.PostForm,
		Query:  r.URL.Query(),
	})
	h, ok := f.routes[r.Method+" "+r.URL.Path]
	f.mu.Unlock()
	if !ok {
		writeStripeError(w, http.StatusNotFound, payment.ErrorTypeInvalidReq, "resource_missing", "Unrecognized request URL")
		return
	}
	h(w, r)
}

func (f *fakeStripe) requests() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.calls...)
}

func (f *fakeStripe) client(t *testing.T, opts ...func(*payment.StripeConfig)) *payment.Stripe {
	t.Helper()
	cfg := payment.StripeConfig{
		SecretKey:    "sk_test_123",
		AccountID:    "acct_123",
		BaseURL:      f.server.URL,
		Timeout:      5 * time.Second,
		MaxRetries:   1,
		RetryBackoff: time.Millisecond,
		Breaker:      resilience.NewBreaker(20, 0.5, time.Minute).WithTarget("stripe"),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	client, err := payment.NewStripe(cfg)
	require.NoError(t, err)
	return client
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Request-Id", "req_test")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func writeStripeError(w http.ResponseWriter, status int, typ, code, message string) {
	body, _ := json.Marshal(map[string]any{"error": map[string]string{
		"type":    typ,
		"code":    code,
		"message": message,
	}})
	writeJSON(w, status, string(body))
}

// fakeProvider is an in-memory Provider. Unset funcs fail the test when called.
type fakeProvider struct {
	t *testing.T

	createCardMethod func(payment.CardMethodParams) (*payment.CardMethod, error)
	getCardMethod    func(string) (*payment.CardMethod, error)
	createIntent     func(payment.IntentParams) (*payment.Intent, error)
	getIntent        func(string, []string) (*payment.Intent, error)
	cancelIntent     func(string) (*payment.Intent, error)
	createRefund     func(payment.RefundParams) (*payment.Refund, error)
	listRefunds      func(string, payment.ListParams) (*payment.List[payment.Refund], error)
	listCharges      func(payment.ListParams, []string) (*payment.List[payment.Charge], error)
}

func (f *fakeProvider) unexpected(name string) {
	f.t.Helper()
	f.t.Fatalf("unexpected provider call %s", name)
}

func (f *fakeProvider) CreateCardMethod(_ context.Context, p payment.CardMethodParams) (*payment.CardMethod, error) {
	if f.createCardMethod == nil {
		f.unexpected("CreateCardMethod")
	}
	return f.createCardMethod(p)
}

func (f *fakeProvider) GetCardMethod(_ context.Context, id string) (*payment.CardMethod, error) {
	if f.getCardMethod == nil {
		f.unexpected("GetCardMethod")
	}
	return f.getCardMethod(id)
}

func (f *fakeProvider) CreateIntent(_ context.Context, p payment.IntentParams) (*payment.Intent, error) {
	if f.createIntent == nil {
		f.unexpected("CreateIntent")
	}
	return f.createIntent(p)
}

func (f *fakeProvider) GetIntent(_ context.Context, id string, expand ...string) (*payment.Intent, error) {
	if f.getIntent == nil {
		f.unexpected("GetIntent")
	}
	return f.getIntent(id, expand)
}

func (f *fakeProvider) CancelIntent(_ context.Context, id string) (*payment.Intent, error) {
	if f.cancelIntent == nil {
		f.unexpected("CancelIntent")
	}
	return f.cancelIntent(id)
}

func (f *fakeProvider) CreateRefund(_ context.Context, p payment.RefundParams) (*payment.Refund, error) {
	if f.createRefund == nil {
		f.unexpected("CreateRefund")
	}
	return f.createRefund(p)
}

func (f *fakeProvider) ListRefunds(_ context.Context, id string, page payment.ListParams) (*payment.List[payment.Refund], error) {
	if f.listRefunds == nil {
		f.unexpected("ListRefunds")
	}
	return f.listRefunds(id, page)
}

func (f *fakeProvider) ListCharges(_ context.Context, page payment.ListParams, expand ...string) (*payment.List[payment.Charge], error) {
	if f.listCharges == nil {
		f.unexpected("ListCharges")
	}
	return f.listCharges(page, expand)
}

func newTestService(t *testing.T, provider payment.Provider, mutate ...func(*payment.ServiceConfig)) *payment.Service {
	t.Helper()
	cfg := payment.ServiceConfig{Provider: provider}
	for _, m := range mutate {
		m(&cfg)
	}
	svc, err := payment.NewService(cfg)
	require.NoError(t, err)
	return svc
}

func paymentRequest() *schema.PaymentRequest {
	amount := int64(10000)
	return &schema.PaymentRequest{
		Env: &schema.Env{
			TerminalType: "WEB",
			ClientIP:     "203.0.113.7",
			BrowserInfo:  &schema.BrowserInfo{UserAgent: "Mozilla/5.0"},
		},
		Order: &schema.Order{
			MerchantOrderID: "order_123",
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
					ExpiryYear:     "30",
					ExpiryMonth:    "12",
					CVV:            "123",
					Country:        "US",
					CardHolderName: &schema.Name{FirstName: "Demo", LastName: "User", FullName: "Demo User"},
					BillingAddress: &schema.Address{Country: "US", State: "CA", City: "Fresno", Address1: "1 Main St", ZipCode: "93706"},
				},
			},
			Metadata: map[string]string{"campaign": "spring", "source": "caller"},
		},
		MerchantID:             "1",
		RedirectURL:            "https://example.com/return",
		ExternalRequestOrderID: "ext_123",
		SystemOrderID:          "sys_1",
		SystemThreeDSReturnURL: "https://example.com/3ds",
	}
}

func refundRequest() *schema.RefundRequest {
	return &schema.RefundRequest{
		ChannelOrderID:   "pi_1",
		SystemOrderID:    "sys_1",
		ExternalRefundID: "r1",
		RefundRequestID:  "rr_1",
	}
}

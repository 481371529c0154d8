package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/payment-relay/internal/obs"
	"github.com/noah-isme/payment-relay/internal/resilience"
)

const (
	defaultStripeBaseURL    = "https://api.stripe.com"
	defaultStripeAPIVersion = "2022-08-01"
)

// StripeConfig configures the Stripe REST client.
type StripeConfig struct {
	SecretKey    string
	AccountID    string
	BaseURL      string
	APIVersion   string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	Breaker      *resilience.Breaker
	Transport    http.RoundTripper
	Logger       zerolog.Logger
}

// Stripe implements Provider against the Stripe REST API.
type Stripe struct {
	client  *resty.Client
	breaker *resilience.Breaker
}

var _ Provider = (*Stripe)(nil)

// NewStripe builds a client. Requests are authenticated with the secret key and scoped to
// AccountID through the Stripe-Account header when it is set.
func NewStripe(cfg StripeConfig) (*Stripe, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("stripe: secret key is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultStripeBaseURL
	}
	version := strings.TrimSpace(cfg.APIVersion)
	if version == "" {
		version = defaultStripeAPIVersion
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	client := resty.NewWithClient(&http.Client{Transport: otelhttp.NewTransport(transport)}).
		SetBaseURL(baseURL).
		SetAuthToken(cfg.SecretKey).
		SetTimeout(timeout).
		SetHeader("Stripe-Version", version).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "payment-relay/1.0").
		SetLogger(restyLogger{logger: cfg.Logger}).
		SetRetryCount(max(cfg.MaxRetries, 0)).
		SetRetryWaitTime(backoff).
		SetRetryMaxWaitTime(backoff * 8).
		SetRetryAfter(func(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
			attempt := 1
			if resp != nil && resp.Request != nil {
				attempt = resp.Request.Attempt
			}
			return resilience.Backoff(backoff, attempt, 0.2), nil
		}).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= http.StatusInternalServerError
		})
	if account := strings.TrimSpace(cfg.AccountID); account != "" {
		client.SetHeader("Stripe-Account", account)
	}
	return &Stripe{client: client, breaker: cfg.Breaker}, nil
}

func (s *Stripe) CreateCardMethod(ctx context.Context, params CardMethodParams) (*CardMethod, error) {
	form, err := encodeForm(newCardMethodForm(params), nil)
	if err != nil {
		return nil, err
	}
	var out CardMethod
	if err := s.do(ctx, "create_payment_method", http.MethodPost, "/v1/payment_methods", form, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Stripe) GetCardMethod(ctx context.Context, id string) (*CardMethod, error) {
	var out CardMethod
	if err := s.do(ctx, "get_payment_method", http.MethodGet, "/v1/payment_methods/"+url.PathEscape(id), nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Stripe) CreateIntent(ctx context.Context, params IntentParams) (*Intent, error) {
	form, err := encodeForm(newIntentForm(params), params.Metadata)
	if err != nil {
		return nil, err
	}
	var out Intent
	if err := s.do(ctx, "create_payment_intent", http.MethodPost, "/v1/payment_intents", form, params.IdempotencyKey, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Stripe) GetIntent(ctx context.Context, id string, expand ...string) (*Intent, error) {
	q, err := encodeForm(expandForm{Expand: expand}, nil)
	if err != nil {
		return nil, err
	}
	var out Intent
	if err := s.do(ctx, "get_payment_intent", http.MethodGet, "/v1/payment_intents/"+url.PathEscape(id), q, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Stripe) CancelIntent(ctx context.Context, id string) (*Intent, error) {
	var out Intent
	if err := s.do(ctx, "cancel_payment_intent", http.MethodPost, "/v1/payment_intents/"+url.PathEscape(id)+"/cancel", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Stripe) CreateRefund(ctx context.Context, params RefundParams) (*Refund, error) {
	form, err := encodeForm(refundForm{PaymentIntent: params.PaymentIntentID, Amount: params.Amount}, params.Metadata)
	if err != nil {
		return nil, err
	}
	var out Refund
	if err := s.do(ctx, "create_refund", http.MethodPost, "/v1/refunds", form, params.IdempotencyKey, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Stripe) ListRefunds(ctx context.Context, paymentIntentID string, page ListParams) (*List[Refund], error) {
	q, err := encodeForm(listForm{PaymentIntent: paymentIntentID, Limit: page.Limit, StartingAfter: page.StartingAfter}, nil)
	if err != nil {
		return nil, err
	}
	var out List[Refund]
	if err := s.do(ctx, "list_refunds", http.MethodGet, "/v1/refunds", q, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Stripe) ListCharges(ctx context.Context, page ListParams, expand ...string) (*List[Charge], error) {
	q, err := encodeForm(listForm{Limit: page.Limit, StartingAfter: page.StartingAfter, Expand: expand}, nil)
	if err != nil {
		return nil, err
	}
	var out List[Charge]
	if err := s.do(ctx, "list_charges", http.MethodGet, "/v1/charges", q, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do performs one logical call, retries included. POST requests always carry an
// Idempotency-Key so transport retries cannot duplicate an operation.
func (s *Stripe) do(ctx context.Context, op, method, path string, params url.Values, idempotencyKey string, out any) error {
	start := time.Now()
	outcome := "error"
	defer func() { obs.ObserveProviderRequest(op, outcome, time.Since(start)) }()

	call := func(ctx context.Context) error {
		req := s.client.R().SetContext(ctx)
		if method == http.MethodPost {
			if idempotencyKey == "" {
				idempotencyKey = uuid.NewString()
			}
			req.SetHeader("Idempotency-Key", idempotencyKey)
			if len(params) > 0 {
				req.SetFormDataFromValues(params)
			}
		} else if len(params) > 0 {
			req.SetQueryParamsFromValues(params)
		}

		resp, err := req.Execute(method, path)
		if err != nil {
			outcome = "transport_error"
			return &ProviderError{
				Type:    ErrorTypeAPIConnection,
				Message: "could not reach payment provider: " + err.Error(),
				Err:     err,
			}
		}
		if resp.IsError() {
			outcome = "provider_error"
			return decodeProviderError(resp)
		}
		if out != nil {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				outcome = "decode_error"
				return fmt.Errorf("decode %s response: %w", op, err)
			}
		}
		outcome = "ok"
		return nil
	}

	if s.breaker == nil {
		return call(ctx)
	}
	err := s.breaker.Do(ctx, call, tripsBreaker)
	if errors.Is(err, resilience.ErrOpenCircuit) {
		outcome = "breaker_open"
		return &ProviderError{
			Type:    ErrorTypeAPIConnection,
			Message: "payment provider temporarily unavailable",
			Err:     resilience.ErrOpenCircuit,
		}
	}
	return err
}

// tripsBreaker counts unreachable-provider and 5xx replies against the breaker. Caller
// errors and undecodable 2xx bodies say nothing about provider health.
func tripsBreaker(err error) bool {
	pe, ok := AsProviderError(err)
	if !ok {
		return false
	}
	return pe.HTTPStatus == 0 || pe.HTTPStatus >= http.StatusInternalServerError
}

type errorEnvelope struct {
	Error struct {
		Type        string `json:"type"`
		Code        string `json:"code"`
		DeclineCode string `json:"decline_code"`
		Param       string `json:"param"`
		Message     string `json:"message"`
	} `json:"error"`
}

func decodeProviderError(resp *resty.Response) *ProviderError {
	pe := &ProviderError{
		HTTPStatus: resp.StatusCode(),
		RequestID:  resp.Header().Get("Request-Id"),
	}
	var env errorEnvelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil || env.Error.Message == "" && env.Error.Type == "" {
		pe.Type = ErrorTypeAPI
		pe.Message = fmt.Sprintf("payment provider returned status %d", resp.StatusCode())
		return pe
	}
	pe.Type = env.Error.Type
	pe.Code = env.Error.Code
	pe.DeclineCode = env.Error.DeclineCode
	pe.Param = env.Error.Param
	pe.Message = env.Error.Message
	return pe
}

// restyLogger routes resty's retry and transport warnings through zerolog.
type restyLogger struct {
	logger zerolog.Logger
}

func (l restyLogger) Errorf(format string, v ...any) { l.logger.Error().Msgf(format, v...) }
func (l restyLogger) Warnf(format string, v ...any)  { l.logger.Warn().Msgf(format, v...) }
func (l restyLogger) Debugf(format string, v ...any) { l.logger.Debug().Msgf(format, v...) }

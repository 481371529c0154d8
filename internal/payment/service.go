package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/payment-relay/internal/lock"
	"github.com/noah-isme/payment-relay/internal/obs"
	"github.com/noah-isme/payment-relay/internal/schema"
)

// Metadata keys the relay writes on provider objects. Caller metadata cannot override them.
const (
	MetaSystemOrderID          = "system_order_id"
	MetaMerchantOrderID        = "merchant_order_id"
	MetaExternalRequestOrderID = "external_request_order_id"
	MetaSource                 = "source"
	MetaMerchantID             = "merchant_id"
	MetaExternalRefundID       = "external_refund_id"
	MetaRefundRequestID        = "refund_request_id"
)

// Messages returned when an idempotent refund retry cannot be matched.
const (
	MsgIdempotencyKeyReused = "Idempotency key used with different parameters. Use a new key."
	msgRefundLookupFailed   = "Failed to check existing refund: "
)

const (
	maxProviderPageSize = 100
	refundLockPrefix    = "refund:"
)

// RefundLocker serializes refunds sharing an external refund id across replicas.
type RefundLocker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// ServiceConfig wires a Service.
type ServiceConfig struct {
	Provider            Provider
	MetadataSource      string
	RefundLookback      int
	CardHistoryPageSize int
	CardHistoryMaxPages int
	// Locker is optional. Without it concurrent retries rely on provider idempotency alone.
	Locker        RefundLocker
	RefundLockTTL time.Duration
}

// Service relays validated payment operations to the provider and normalizes the replies.
type Service struct {
	provider       Provider
	source         string
	refundLookback int
	pageSize       int
	maxPages       int
	locker         RefundLocker
	lockTTL        time.Duration
	tracer         trace.Tracer
}

// NewService validates cfg and applies defaults for unset bounds.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Provider == nil {
		return nil, errors.New("payment: provider is required")
	}
	s := &Service{
		provider:       cfg.Provider,
		source:         strings.TrimSpace(cfg.MetadataSource),
		refundLookback: cfg.RefundLookback,
		pageSize:       cfg.CardHistoryPageSize,
		maxPages:       cfg.CardHistoryMaxPages,
		locker:         cfg.Locker,
		lockTTL:        cfg.RefundLockTTL,
		tracer:         otel.Tracer("payment.Service"),
	}
	if s.source == "" {
		s.source = "DD"
	}
	if s.refundLookback <= 0 {
		s.refundLookback = 10
	}
	if s.pageSize <= 0 || s.pageSize > maxProviderPageSize {
		s.pageSize = maxProviderPageSize
	}
	if s.maxPages <= 0 {
		s.maxPages = 5
	}
	if s.lockTTL <= 0 {
		s.lockTTL = time.Minute
	}
	return s, nil
}

// CreatePayment registers the card and opens a confirmed intent against it. Provider
// failures come back as a failed response; the error is reserved for internal faults.
func (s *Service) CreatePayment(ctx context.Context, req *schema.PaymentRequest) (resp schema.ChannelPaymentResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.CreatePayment")
	defer func() { s.finish(span, "create_payment", resp.Status, err) }()
	logger := zerolog.Ctx(ctx)

	if req == nil || req.Order == nil || req.Order.PaymentMethod == nil || req.Order.PaymentMethod.PaymentData == nil ||
		req.Order.Shipping == nil || req.Order.PaymentAmount == nil {
		return resp, errors.New("payment request is incomplete")
	}
	data := req.Order.PaymentMethod.PaymentData
	span.SetAttributes(
		attribute.String("payment.merchant_id", req.MerchantID),
		attribute.String("payment.merchant_order_id", req.Order.MerchantOrderID),
		attribute.Bool("payment.requires_3ds", data.ChallengeRequested()),
	)

	expMonth, err := strconv.Atoi(data.ExpiryMonth)
	if err != nil {
		return resp, fmt.Errorf("parse expiry month: %w", err)
	}
	expYear, err := strconv.Atoi("20" + data.ExpiryYear)
	if err != nil {
		return resp, fmt.Errorf("parse expiry year: %w", err)
	}

	cardParams := CardMethodParams{
		Number:   data.CardNumber,
		ExpMonth: expMonth,
		ExpYear:  expYear,
		CVC:      data.CVV,
		Email:    req.Order.Shipping.Email,
	}
	if data.CardHolderName != nil {
		cardParams.HolderName = data.CardHolderName.FullName
	}
	if addr := data.BillingAddress; addr != nil {
		cardParams.Address = BillingAddress{
			Line1:      addr.Address1,
			Line2:      addr.Address2,
			City:       addr.City,
			State:      addr.State,
			PostalCode: addr.ZipCode,
			Country:    addr.Country,
		}
	}
	method, err := s.provider.CreateCardMethod(ctx, cardParams)
	if err != nil {
		return s.failedPayment(ctx, "create payment method", err)
	}

	intent, err := s.provider.CreateIntent(ctx, IntentParams{
		Amount:          *req.Order.PaymentAmount.Value,
		Currency:        req.Order.PaymentAmount.Currency,
		PaymentMethodID: method.ID,
		ReturnURL:       req.SystemThreeDSReturnURL,
		Challenge3DS:    data.ChallengeRequested(),
		Metadata:        s.intentMetadata(req),
		IdempotencyKey:  req.ExternalRequestOrderID,
	})
	if err != nil {
		return s.failedPayment(ctx, "create payment intent", err)
	}

	status := MapIntentStatus(intent.Status)
	redirect := ""
	if status == schema.StatusPending {
		redirect = intent.RedirectURL()
	}
	resp = schema.ChannelPaymentResponse{
		ChannelOrderID: &intent.ID,
		Status:         status,
		RedirectURL:    &redirect,
	}
	if status == schema.StatusFailed {
		resp.Detail = &schema.ErrorDetail{Message: "payment intent ended in status " + intent.Status, Code: intent.Status}
	}
	span.SetAttributes(attribute.String("payment.intent_id", intent.ID), attribute.String("payment.provider_status", intent.Status))
	logger.Info().Str("intent_id", intent.ID).Str("provider_status", intent.Status).Str("status", status).Msg("payment initiated")
	return resp, nil
}

func (s *Service) failedPayment(ctx context.Context, step string, err error) (schema.ChannelPaymentResponse, error) {
	pe, ok := AsProviderError(err)
	if !ok {
		return schema.ChannelPaymentResponse{}, fmt.Errorf("%s: %w", step, err)
	}
	logProviderError(ctx, step, pe)
	return schema.FailedPayment(pe.Detail()), nil
}

// intentMetadata merges the caller's order metadata under the relay's reserved keys.
func (s *Service) intentMetadata(req *schema.PaymentRequest) map[string]string {
	meta := make(map[string]string, len(req.Order.Metadata)+5)
	for k, v := range req.Order.Metadata {
		meta[k] = v
	}
	meta[MetaSystemOrderID] = req.SystemOrderID
	meta[MetaMerchantOrderID] = req.Order.MerchantOrderID
	meta[MetaExternalRequestOrderID] = req.ExternalRequestOrderID
	meta[MetaSource] = s.source
	meta[MetaMerchantID] = req.MerchantID
	return meta
}

// Refund issues a refund keyed on the caller's external refund id. When the provider
// reports the key as already used, the recent refunds of the payment are searched for
// one carrying the same key.
func (s *Service) Refund(ctx context.Context, req *schema.RefundRequest) (resp schema.RefundResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.Refund")
	defer func() { s.finish(span, "refund", resp.Status, err) }()
	if req == nil {
		return resp, errors.New("refund request is nil")
	}
	span.SetAttributes(
		attribute.String("payment.intent_id", req.ChannelOrderID),
		attribute.String("refund.external_id", req.ExternalRefundID),
	)

	if s.locker == nil {
		return s.refund(ctx, req)
	}
	var ran bool
	err = s.locker.WithLock(ctx, refundLockPrefix+req.ExternalRefundID, s.lockTTL, func(ctx context.Context) error {
		ran = true
		var innerErr error
		resp, innerErr = s.refund(ctx, req)
		return innerErr
	})
	if err != nil && !ran && errors.Is(err, lock.ErrUnavailable) {
		zerolog.Ctx(ctx).Warn().Err(err).Str("external_refund_id", req.ExternalRefundID).Msg("refund lock unavailable, continuing unlocked")
		return s.refund(ctx, req)
	}
	return resp, err
}

func (s *Service) refund(ctx context.Context, req *schema.RefundRequest) (resp schema.RefundResponse, err error) {
	refund, err := s.provider.CreateRefund(ctx, RefundParams{
		PaymentIntentID: req.ChannelOrderID,
		Amount:          req.RefundAmount,
		Metadata: map[string]string{
			MetaSystemOrderID:    req.SystemOrderID,
			MetaExternalRefundID: req.ExternalRefundID,
			MetaRefundRequestID:  req.RefundRequestID,
		},
		IdempotencyKey: req.ExternalRefundID,
	})
	if err != nil {
		pe, ok := AsProviderError(err)
		if !ok {
			return resp, fmt.Errorf("create refund: %w", err)
		}
		if pe.IdempotencyConflict() {
			zerolog.Ctx(ctx).Warn().Str("external_refund_id", req.ExternalRefundID).Msg("idempotency conflict, checking existing refunds")
			return s.recoverRefund(ctx, req)
		}
		logProviderError(ctx, "create refund", pe)
		return schema.FailedRefund(pe.Detail()), nil
	}

	zerolog.Ctx(ctx).Info().Str("refund_id", refund.ID).Str("provider_status", refund.Status).Msg("refund processed")
	return refundResponse(refund), nil
}

func (s *Service) recoverRefund(ctx context.Context, req *schema.RefundRequest) (schema.RefundResponse, error) {
	inspected := 0
	after := ""
	for inspected < s.refundLookback {
		limit := min(s.refundLookback-inspected, maxProviderPageSize)
		page, err := s.provider.ListRefunds(ctx, req.ChannelOrderID, ListParams{Limit: limit, StartingAfter: after})
		if err != nil {
			pe, ok := AsProviderError(err)
			if !ok {
				return schema.RefundResponse{}, fmt.Errorf("list refunds: %w", err)
			}
			logProviderError(ctx, "list refunds", pe)
			detail := pe.Detail()
			detail.Message = msgRefundLookupFailed + detail.Message
			return schema.FailedRefund(detail), nil
		}
		for i := range page.Data {
			inspected++
			if page.Data[i].Metadata[MetaExternalRefundID] == req.ExternalRefundID {
				zerolog.Ctx(ctx).Info().Str("refund_id", page.Data[i].ID).Msg("found existing refund")
				return refundResponse(&page.Data[i]), nil
			}
			if inspected >= s.refundLookback {
				break
			}
		}
		if !page.HasMore || len(page.Data) == 0 {
			break
		}
		after = page.Data[len(page.Data)-1].ID
	}
	return schema.FailedRefund(schema.ErrorDetail{Message: MsgIdempotencyKeyReused, Code: ErrorTypeIdempotency}), nil
}

func refundResponse(refund *Refund) schema.RefundResponse {
	id := refund.ID
	return schema.RefundResponse{ChannelRefundID: &id, Status: MapRefundStatus(refund.Status)}
}

// PaymentDetails fetches a payment with its charges and payment method expanded and
// flattens the charges and their refunds.
func (s *Service) PaymentDetails(ctx context.Context, paymentID string) (resp schema.PaymentDetailsResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.PaymentDetails")
	defer func() { s.finish(span, "payment_details", resp.Status, err) }()
	span.SetAttributes(attribute.String("payment.intent_id", paymentID))
	logger := zerolog.Ctx(ctx)

	intent, err := s.provider.GetIntent(ctx, paymentID, "charges.data", "payment_method")
	if err != nil {
		return resp, err
	}

	resp = schema.PaymentDetailsResponse{
		ChannelOrderID: intent.ID,
		Status:         intent.Status,
		Amount:         intent.Amount,
		Currency:       intent.Currency,
		Metadata:       nonNilMetadata(intent.Metadata),
		PaymentMethod:  json.RawMessage(`{}`),
		Created:        intent.Created,
		Charges:        []json.RawMessage{},
		Refunds:        []json.RawMessage{},
	}

	if intent.Charges == nil || len(intent.Charges.Data) == 0 {
		logger.Warn().Str("intent_id", intent.ID).Msg("no charge data on payment intent")
	} else {
		for i := range intent.Charges.Data {
			charge := &intent.Charges.Data[i]
			raw, err := marshalRecord(charge, charge.Raw)
			if err != nil {
				return resp, fmt.Errorf("encode charge %s: %w", charge.ID, err)
			}
			resp.Charges = append(resp.Charges, raw)
			if charge.Refunds == nil {
				continue
			}
			for j := range charge.Refunds.Data {
				refund := &charge.Refunds.Data[j]
				raw, err := marshalRecord(refund, refund.Raw)
				if err != nil {
					return resp, fmt.Errorf("encode refund %s: %w", refund.ID, err)
				}
				resp.Refunds = append(resp.Refunds, raw)
			}
		}
	}

	if intent.PaymentMethod == nil {
		logger.Warn().Str("intent_id", intent.ID).Msg("no payment method on payment intent")
	} else if pm, err := json.Marshal(intent.PaymentMethod); err == nil {
		resp.PaymentMethod = pm
	} else {
		return resp, fmt.Errorf("encode payment method: %w", err)
	}

	logger.Info().Str("intent_id", intent.ID).Int("charges", len(resp.Charges)).Int("refunds", len(resp.Refunds)).Msg("payment details retrieved")
	return resp, nil
}

// CardPayments lists the payments made with a card instrument. Charges are paged through
// newest first, bounded by the configured page size and page count; each payment appears
// once, represented by the first matching charge.
func (s *Service) CardPayments(ctx context.Context, paymentMethodID string) (resp schema.CardPaymentsResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.CardPayments")
	defer func() { s.finish(span, "card_payments", "", err) }()
	span.SetAttributes(attribute.String("payment.method_id", paymentMethodID))

	if _, err := s.provider.GetCardMethod(ctx, paymentMethodID); err != nil {
		return resp, err
	}

	resp.Payments = []schema.CardPayment{}
	seen := make(map[string]struct{})
	after := ""
	pages := 0
	for pages < s.maxPages {
		page, err := s.provider.ListCharges(ctx, ListParams{Limit: s.pageSize, StartingAfter: after}, "data.payment_intent")
		if err != nil {
			return resp, err
		}
		pages++
		for i := range page.Data {
			charge := &page.Data[i]
			if charge.PaymentMethod != paymentMethodID || charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" {
				continue
			}
			if _, dup := seen[charge.PaymentIntent.ID]; dup {
				continue
			}
			seen[charge.PaymentIntent.ID] = struct{}{}
			payment, err := cardPayment(charge)
			if err != nil {
				return resp, err
			}
			resp.Payments = append(resp.Payments, payment)
		}
		if !page.HasMore || len(page.Data) == 0 {
			break
		}
		after = page.Data[len(page.Data)-1].ID
	}
	span.SetAttributes(attribute.Int("payment.count", len(resp.Payments)), attribute.Int("provider.pages", pages))
	zerolog.Ctx(ctx).Info().Str("payment_method_id", paymentMethodID).Int("payments", len(resp.Payments)).Int("pages", pages).Msg("card payments retrieved")
	return resp, nil
}

func cardPayment(charge *Charge) (schema.CardPayment, error) {
	raw, err := marshalRecord(charge, charge.Raw)
	if err != nil {
		return schema.CardPayment{}, fmt.Errorf("encode charge %s: %w", charge.ID, err)
	}
	payment := schema.CardPayment{
		ChannelOrderID: charge.PaymentIntent.ID,
		Metadata:       map[string]string{},
		Charges:        []json.RawMessage{raw},
	}
	if intent := charge.PaymentIntent.Object; intent != nil {
		payment.Status = intent.Status
		payment.Amount = intent.Amount
		payment.Currency = intent.Currency
		payment.Created = intent.Created
		payment.Metadata = nonNilMetadata(intent.Metadata)
	}
	return payment, nil
}

// CancelPayment cancels an unfinished payment and relays the provider status verbatim.
func (s *Service) CancelPayment(ctx context.Context, paymentID string) (resp schema.ChannelPaymentResponse, err error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.CancelPayment")
	defer func() { s.finish(span, "cancel_payment", resp.Status, err) }()
	span.SetAttributes(attribute.String("payment.intent_id", paymentID))

	intent, err := s.provider.CancelIntent(ctx, paymentID)
	if err != nil {
		return resp, err
	}
	zerolog.Ctx(ctx).Info().Str("intent_id", intent.ID).Str("provider_status", intent.Status).Msg("payment canceled")
	return schema.ChannelPaymentResponse{ChannelOrderID: &intent.ID, Status: intent.Status}, nil
}

// finish ends the operation span and counts the outcome.
func (s *Service) finish(span trace.Span, operation, status string, err error) {
	defer span.End()
	label := status
	switch {
	case err != nil:
		label = "error"
		if _, ok := AsProviderError(err); ok {
			label = "provider_error"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case label == "":
		label = "ok"
	}
	span.SetAttributes(attribute.String("payment.result", label))
	obs.ObservePaymentOperation(operation, label)
}

func logProviderError(ctx context.Context, step string, pe *ProviderError) {
	zerolog.Ctx(ctx).Error().
		Str("step", step).
		Int("provider_status", pe.HTTPStatus).
		Str("provider_type", pe.Type).
		Str("provider_code", pe.Code).
		Str("provider_request_id", pe.RequestID).
		Msg(pe.Error())
}

func nonNilMetadata(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

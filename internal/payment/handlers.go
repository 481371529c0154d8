package payment

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/payment-relay/internal/common"
	"github.com/noah-isme/payment-relay/internal/schema"
)

// Handler exposes the relay operations over HTTP.
type Handler struct {
	Svc       *Service
	Validator *schema.Validator
}

// Routes mounts the relay endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/create-payment", h.CreatePayment)
	r.Post("/refund", h.Refund)
	r.Get("/payment/{payment_id}", h.PaymentDetails)
	r.Get("/card-payments/{payment_method_id}", h.CardPayments)
	r.Post("/cancel-payment/{payment_id}", h.CancelPayment)
}

// CreatePayment answers 200 for every provider outcome; the body carries the status.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	req, err := schema.Decode[schema.PaymentRequest](h.Validator, r.Body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp, err := h.Svc.CreatePayment(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, resp)
}

// Refund answers 200 for every provider outcome; the body carries the status.
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	req, err := schema.Decode[schema.RefundRequest](h.Validator, r.Body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp, err := h.Svc.Refund(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, resp)
}

func (h *Handler) PaymentDetails(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, ok := pathID(w, r, "payment_id")
	if !ok {
		return
	}
	resp, err := h.Svc.PaymentDetails(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, resp)
}

func (h *Handler) CardPayments(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, ok := pathID(w, r, "payment_method_id")
	if !ok {
		return
	}
	resp, err := h.Svc.CardPayments(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, resp)
}

func (h *Handler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	id, ok := pathID(w, r, "payment_id")
	if !ok {
		return
	}
	resp, err := h.Svc.CancelPayment(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, resp)
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h == nil || h.Svc == nil || h.Validator == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, param))
	if id == "" {
		verr := &schema.ValidationError{Fields: []schema.FieldError{{Field: param, Rule: "required", Message: "is required"}}}
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodeValidationFailed, verr.Error(), verr.Fields)
		return "", false
	}
	return id, true
}

type providerErrorDetails struct {
	Type        string `json:"type,omitempty"`
	Code        string `json:"code,omitempty"`
	DeclineCode string `json:"decline_code,omitempty"`
	Param       string `json:"param,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
}

// writeError maps the three error tiers onto HTTP responses.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *schema.ValidationError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &verr):
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodeValidationFailed, "request validation failed", verr.Fields)
	case errors.As(err, &tooLarge):
		common.JSONError(w, http.StatusRequestEntityTooLarge, common.CodePayloadTooLarge, "request body too large", nil)
	default:
		if pe, ok := AsProviderError(err); ok {
			common.JSONError(w, http.StatusBadRequest, common.CodeProviderError, pe.Error(), providerErrorDetails{
				Type:        pe.Type,
				Code:        pe.Code,
				DeclineCode: pe.DeclineCode,
				Param:       pe.Param,
				RequestID:   pe.RequestID,
			})
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("payment request failed")
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "internal server error", nil)
	}
}

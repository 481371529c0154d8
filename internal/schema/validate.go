package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
)

var (
	cardNumberPattern  = regexp.MustCompile(`^\d{13,19}$`)
	expiryYearPattern  = regexp.MustCompile(`^\d{2}$`)
	expiryMonthPattern = regexp.MustCompile(`^(0[1-9]|1[0-2])$`)
	cvvPattern         = regexp.MustCompile(`^\d{3,4}$`)
)

// Rules reported by the expiry cross-field check.
const (
	RuleExpiryInvalid = "expiry_invalid"
	RuleCardExpired   = "card_expired"
)

// FieldError names one failing field by its JSON path.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// ValidationError carries every field that failed, not just the first.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Has reports whether field failed with rule.
func (e *ValidationError) Has(field, rule string) bool {
	if e == nil {
		return false
	}
	for _, f := range e.Fields {
		if f.Field == field && f.Rule == rule {
			return true
		}
	}
	return false
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock overrides the clock used by the card expiry check.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

// Validator trims and validates inbound payloads. It is safe for concurrent use.
type Validator struct {
	validate *validator.Validate
	now      func() time.Time
}

// NewValidator builds a Validator with the payment rules registered.
func NewValidator(opts ...Option) *Validator {
	v := &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}

	v.validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	mustRegisterPattern(v.validate, "card_number", cardNumberPattern)
	mustRegisterPattern(v.validate, "expiry_year", expiryYearPattern)
	mustRegisterPattern(v.validate, "expiry_month", expiryMonthPattern)
	mustRegisterPattern(v.validate, "cvv", cvvPattern)
	v.validate.RegisterStructValidation(v.validateExpiry, PaymentData{})
	return v
}

func mustRegisterPattern(validate *validator.Validate, tag string, pattern *regexp.Regexp) {
	err := validate.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return pattern.MatchString(fl.Field().String())
	})
	if err != nil {
		panic(fmt.Sprintf("register %s: %v", tag, err))
	}
}

func (v *Validator) validateExpiry(sl validator.StructLevel) {
	data := sl.Current().Interface().(PaymentData)
	if data.ExpiryYear == "" || data.ExpiryMonth == "" {
		return
	}
	if !expiryYearPattern.MatchString(data.ExpiryYear) || !expiryMonthPattern.MatchString(data.ExpiryMonth) {
		sl.ReportError(data.ExpiryMonth, "expiry", "Expiry", RuleExpiryInvalid, "")
		return
	}
	year, yerr := strconv.Atoi("20" + data.ExpiryYear)
	month, merr := strconv.Atoi(data.ExpiryMonth)
	if yerr != nil || merr != nil || month < 1 || month > 12 {
		sl.ReportError(data.ExpiryMonth, "expiry", "Expiry", RuleExpiryInvalid, "")
		return
	}
	now := v.now()
	if year < now.Year() || (year == now.Year() && month < int(now.Month())) {
		sl.ReportError(data.ExpiryMonth, "expiry", "Expiry", RuleCardExpired, "")
	}
}

// Struct trims every string in ptr and validates the result.
func (v *Validator) Struct(ptr any) error {
	TrimStrings(ptr)
	err := v.validate.Struct(ptr)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fieldPath(fe.Namespace()),
			Rule:    fe.Tag(),
			Param:   fe.Param(),
			Message: ruleMessage(fe.Tag(), fe.Param()),
		})
	}
	return out
}

// Decode reads one JSON document from r into a new T, then trims and validates it.
func Decode[T any](v *Validator, r io.Reader) (*T, error) {
	out := new(T)
	dec := json.NewDecoder(r)
	if err := dec.Decode(out); err != nil {
		return nil, decodeError(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &ValidationError{Fields: []FieldError{{Field: "body", Rule: "json", Message: "body must hold a single JSON document"}}}
	}
	if err := v.Struct(out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	switch {
	case errors.Is(err, io.EOF):
		return &ValidationError{Fields: []FieldError{{Field: "body", Rule: "required", Message: "request body is required"}}}
	case errors.As(err, &typeErr):
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		return &ValidationError{Fields: []FieldError{{
			Field:   field,
			Rule:    "type",
			Param:   typeErr.Type.String(),
			Message: fmt.Sprintf("must be of type %s, got %s", jsonKind(typeErr.Type), typeErr.Value),
		}}}
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return &ValidationError{Fields: []FieldError{{Field: "body", Rule: "json", Message: "malformed JSON body"}}}
	default:
		return err
	}
}

func jsonKind(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Slice, reflect.Array:
		return "array"
	default:
		return "object"
	}
}

// fieldPath drops the root type name from a validator namespace.
func fieldPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func ruleMessage(tag, param string) string {
	switch tag {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + param + " characters"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(param, " ", ", ")
	case "gt":
		return "must be greater than " + param
	case "gte":
		return "must be at least " + param
	case "card_number":
		return "must be 13 to 19 digits"
	case "expiry_year":
		return "must be 2 digits"
	case "expiry_month":
		return "must be 01 to 12"
	case "cvv":
		return "must be 3 or 4 digits"
	case RuleExpiryInvalid:
		return "invalid expiry date"
	case RuleCardExpired:
		return "card expired"
	default:
		return "failed " + tag + " check"
	}
}

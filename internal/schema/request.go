package schema

// PaymentRequest is one checkout attempt submitted by a merchant.
type PaymentRequest struct {
	Env                      *Env   `json:"env" validate:"required"`
	Order                    *Order `json:"order" validate:"required"`
	MerchantID               string `json:"merchant_id" validate:"required"`
	RedirectURL              string `json:"redirect_url" validate:"required"`
	ExternalRequestOrderID   string `json:"external_request_order_id,omitempty"`
	SystemOrderID            string `json:"system_order_id,omitempty"`
	SystemThreeDSRedirectURL string `json:"system_three_ds_redirect_url,omitempty"`
	SystemThreeDSReturnURL   string `json:"system_three_ds_return_url,omitempty"`
}

// Env describes the shopper's terminal.
type Env struct {
	TerminalType string       `json:"terminal_type" validate:"required,oneof=WEB MOBILE APP MINI_APP"`
	ClientIP     string       `json:"client_ip" validate:"required,max=45"`
	BrowserInfo  *BrowserInfo `json:"browser_info" validate:"required"`
	DeviceInfo   *DeviceInfo  `json:"device_info,omitempty"`
}

type BrowserInfo struct {
	UserAgent         string `json:"user_agent" validate:"required,max=2048"`
	AcceptHeader      string `json:"accept_header,omitempty" validate:"max=2048"`
	JavaEnabled       bool   `json:"java_enabled"`
	JavaScriptEnabled bool   `json:"java_script_enabled"`
	Language          string `json:"language,omitempty" validate:"max=32"`
}

type DeviceInfo struct {
	ColorDepth     *int   `json:"color_depth,omitempty"`
	ScreenHeight   *int   `json:"screen_height,omitempty"`
	ScreenWidth    *int   `json:"screen_width,omitempty"`
	TimeZoneOffset *int   `json:"time_zone_offset,omitempty"`
	DeviceTokenID  string `json:"device_token_id,omitempty" validate:"max=256"`
	DeviceLanguage string `json:"device_language,omitempty" validate:"max=32"`
}

// Order carries the cart, shipping details and the card instrument.
type Order struct {
	MerchantOrderID string            `json:"merchant_order_id" validate:"required,max=64"`
	Goods           []Goods           `json:"goods,omitempty" validate:"omitempty,dive"`
	Shipping        *Shipping         `json:"shipping" validate:"required"`
	PaymentAmount   *PaymentAmount    `json:"payment_amount" validate:"required"`
	PaymentMethod   *PaymentMethod    `json:"payment_method" validate:"required"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

type Goods struct {
	GoodsID            string `json:"goods_id" validate:"required,max=64"`
	GoodsName          string `json:"goods_name" validate:"required,max=256"`
	GoodsCategory      string `json:"goods_category" validate:"required,max=64"`
	GoodsQuantity      int64  `json:"goods_quantity" validate:"required"`
	GoodsURL           string `json:"goods_url" validate:"required,max=2048"`
	GoodsImgURL        string `json:"goods_img_url,omitempty" validate:"max=2048"`
	GoodsPrice         int64  `json:"goods_price" validate:"required"`
	DeliveryMethodType string `json:"delivery_method_type" validate:"required,oneof=PHYSICAL DIGITAL"`
}

type Shipping struct {
	ShippingName    *Name    `json:"shipping_name" validate:"required"`
	ShippingAddress *Address `json:"shipping_address" validate:"required"`
	Email           string   `json:"email" validate:"required,max=64,email"`
	Phone           string   `json:"phone" validate:"required,max=25"`
	Carrier         string   `json:"carrier,omitempty" validate:"max=50"`
}

// Address is used for both the shipping and the billing address.
type Address struct {
	Country  string `json:"country" validate:"required,max=2"`
	State    string `json:"state" validate:"required,max=32"`
	City     string `json:"city" validate:"required,max=32"`
	Address1 string `json:"address1" validate:"required,max=256"`
	Address2 string `json:"address2,omitempty" validate:"max=256"`
	ZipCode  string `json:"zip_code" validate:"required,max=32"`
}

// Name is used for both the shipping recipient and the card holder.
type Name struct {
	FirstName string `json:"first_name" validate:"required,max=32"`
	LastName  string `json:"last_name" validate:"required,max=32"`
	FullName  string `json:"full_name" validate:"required,max=128"`
}

type PaymentMethod struct {
	PaymentType string       `json:"payment_type" validate:"required"`
	PaymentData *PaymentData `json:"payment_data" validate:"required"`
}

// PaymentData is the raw card instrument. Expiry is checked against the validator clock.
type PaymentData struct {
	CardNumber     string   `json:"card_number" validate:"required,card_number"`
	ExpiryYear     string   `json:"expiry_year" validate:"required,expiry_year"`
	ExpiryMonth    string   `json:"expiry_month" validate:"required,expiry_month"`
	CVV            string   `json:"cvv" validate:"required,cvv"`
	Requires3DS    *bool    `json:"requires_3ds,omitempty"`
	Country        string   `json:"country" validate:"required,max=2"`
	CardHolderName *Name    `json:"card_holder_name" validate:"required"`
	BillingAddress *Address `json:"billing_address" validate:"required"`
}

// ChallengeRequested reports whether the caller asked for a 3-D Secure challenge.
func (p *PaymentData) ChallengeRequested() bool {
	return p != nil && p.Requires3DS != nil && *p.Requires3DS
}

type PaymentAmount struct {
	Currency string `json:"currency" validate:"required,max=3"`
	Value    *int64 `json:"value" validate:"required,gte=0"`
}

// RefundRequest asks for a full or partial refund of a payment. ExternalRefundID is the
// idempotency key and must stay stable across retries of the same logical refund.
type RefundRequest struct {
	ChannelOrderID   string `json:"channel_order_id" validate:"required"`
	RefundAmount     *int64 `json:"refund_amount,omitempty" validate:"omitempty,gt=0"`
	SystemOrderID    string `json:"system_order_id" validate:"required"`
	ExternalRefundID string `json:"external_refund_id" validate:"required"`
	RefundRequestID  string `json:"refund_request_id" validate:"required"`
}

package paytiko

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
)

const hostedPagePath = "/api/payment/hosted-page"

// BillingInput is the payer block of a charge request as submitted by callers.
type BillingInput struct {
	FirstName    string `json:"first_name" validate:"required,max=255"`
	LastName     string `json:"last_name,omitempty" validate:"omitempty,max=255"`
	Email        string `json:"email" validate:"required,email,max=255"`
	Country      string `json:"country" validate:"required,len=2"`
	Phone        string `json:"phone" validate:"required,max=20"`
	Street       string `json:"street,omitempty" validate:"omitempty,max=255"`
	Region       string `json:"region,omitempty" validate:"omitempty,max=255"`
	City         string `json:"city,omitempty" validate:"omitempty,max=255"`
	ZipCode      string `json:"zip_code,omitempty" validate:"omitempty,max=20"`
	DateOfBirth  string `json:"date_of_birth,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Gender       string `json:"gender,omitempty" validate:"omitempty,oneof=Male Female"`
	Currency     string `json:"currency,omitempty" validate:"omitempty,len=3"`
	LockedAmount *int64 `json:"locked_amount,omitempty" validate:"omitempty,min=1"`
}

// PaymentData is the validated input of a charge. Amounts are in major
// currency units.
type PaymentData struct {
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency,omitempty" validate:"omitempty,len=3"`
	OrderID            string          `json:"order_id" validate:"required"`
	Description        string          `json:"description,omitempty" validate:"omitempty,max=1024"`
	BillingDetails     *BillingInput   `json:"billing_details" validate:"required"`
	WebhookURL         string          `json:"webhook_url,omitempty" validate:"omitempty,url"`
	SuccessRedirectURL string          `json:"success_redirect_url,omitempty" validate:"omitempty,url"`
	FailedRedirectURL  string          `json:"failed_redirect_url,omitempty" validate:"omitempty,url"`
	DisabledPspIDs     []int           `json:"disabled_psp_ids,omitempty"`
	CreditCardOnly     *bool           `json:"credit_card_only,omitempty"`
	IsPayOut           *bool           `json:"is_pay_out,omitempty"`
	Metadata           map[string]any  `json:"metadata,omitempty"`
}

// BillingDetails is the wire form of the payer block. Optional fields are
// omitted when empty.
type BillingDetails struct {
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName,omitempty"`
	Email        string `json:"email"`
	Street       string `json:"street,omitempty"`
	Region       string `json:"region,omitempty"`
	City         string `json:"city,omitempty"`
	Country      string `json:"country"`
	ZipCode      string `json:"zipCode,omitempty"`
	Phone        string `json:"phone"`
	DateOfBirth  string `json:"dateOfBirth,omitempty"`
	Gender       string `json:"gender,omitempty"`
	Currency     string `json:"currency"`
	LockedAmount *int64 `json:"lockedAmount,omitempty"`
}

// HostedPageRequest is the signed body posted to the hosted-page endpoint.
// Signature covers BillingDetails.Email and Timestamp; changing either after
// BuildRequest invalidates it.
type HostedPageRequest struct {
	Timestamp          int64          `json:"timestamp"`
	OrderID            string         `json:"orderId"`
	Signature          string         `json:"signature"`
	BillingDetails     BillingDetails `json:"billingDetails"`
	WebhookURL         string         `json:"webhookUrl,omitempty"`
	SuccessRedirectURL string         `json:"successRedirectUrl,omitempty"`
	FailedRedirectURL  string         `json:"failedRedirectUrl,omitempty"`
	DisabledPspIDs     []int          `json:"disabledPspIds,omitempty"`
	CreditCardOnly     *bool          `json:"creditCardOnly,omitempty"`
	CashierDescription string         `json:"cashierDescription,omitempty"`
	IsPayOut           *bool          `json:"isPayOut,omitempty"`
}

// HostedPageResponse is either a success with RedirectURL or a failure with
// Message and optional Errors.
type HostedPageResponse struct {
	Success     bool   `json:"success"`
	RedirectURL string `json:"redirect_url,omitempty"`
	Errors      any    `json:"errors,omitempty"`
	Message     string `json:"message,omitempty"`
}

func (r *HostedPageResponse) IsSuccessful() bool { return r.Success }
func (r *HostedPageResponse) IsFailed() bool     { return !r.Success }

// HostedPageClient builds and submits hosted payment page requests.
type HostedPageClient struct {
	client *Client
	signer *Signer
	now    func() time.Time
}

func NewHostedPageClient(client *Client, signer *Signer) *HostedPageClient {
	return &HostedPageClient{client: client, signer: signer, now: time.Now}
}

// BuildRequest assembles a signed request from payment data, filling
// currency and URLs from configuration when they are absent.
func (h *HostedPageClient) BuildRequest(data PaymentData) HostedPageRequest {
	cfg := h.client.Config()
	ts := h.now().Unix()

	var in BillingInput
	if data.BillingDetails != nil {
		in = *data.BillingDetails
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = cfg.currency()
	}

	locked := in.LockedAmount
	if locked == nil && data.Amount.IsPositive() && data.Amount.Equal(data.Amount.Truncate(0)) {
		v := data.Amount.IntPart()
		locked = &v
	}

	return HostedPageRequest{
		Timestamp: ts,
		OrderID:   data.OrderID,
		Signature: h.signer.HostedPageSignature(in.Email, ts),
		BillingDetails: BillingDetails{
			FirstName:    in.FirstName,
			LastName:     in.LastName,
			Email:        in.Email,
			Street:       in.Street,
			Region:       in.Region,
			City:         in.City,
			Country:      in.Country,
			ZipCode:      in.ZipCode,
			Phone:        in.Phone,
			DateOfBirth:  in.DateOfBirth,
			Gender:       in.Gender,
			Currency:     currency,
			LockedAmount: locked,
		},
		WebhookURL:         firstNonEmpty(data.WebhookURL, cfg.WebhookURL),
		SuccessRedirectURL: firstNonEmpty(data.SuccessRedirectURL, cfg.SuccessRedirectURL),
		FailedRedirectURL:  firstNonEmpty(data.FailedRedirectURL, cfg.FailedRedirectURL),
		DisabledPspIDs:     data.DisabledPspIDs,
		CreditCardOnly:     data.CreditCardOnly,
		CashierDescription: data.Description,
		IsPayOut:           data.IsPayOut,
	}
}

// Submit posts the request. Gateway and transport failures are reported in
// the response rather than as an error.
func (h *HostedPageClient) Submit(ctx context.Context, req HostedPageRequest) *HostedPageResponse {
	cfg := h.client.Config()
	data, err := h.client.do(ctx, http.MethodPost, hostedPagePath, nil, req, titleOnly)
	if err != nil {
		te := asTransportError(err)
		log.Errorw("paytiko hosted page creation failed",
			"order_id", req.OrderID,
			"error", te.Message,
			"error_data", te.Data,
		)
		resp := &HostedPageResponse{Success: false, Message: te.Message}
		if te.Data != nil {
			resp.Errors = te.Data["errors"]
		}
		return resp
	}

	redirect, _ := data["redirectUrl"].(string)
	if strings.TrimSpace(redirect) == "" {
		log.Errorw("paytiko hosted page response missing redirectUrl", "order_id", req.OrderID)
		return &HostedPageResponse{Success: false, Message: "Paytiko response did not include a redirect URL"}
	}
	if cfg.LoggingEnabled {
		log.Infow("paytiko hosted page created", "order_id", req.OrderID, "redirect_url", redirect)
	}
	return &HostedPageResponse{Success: true, RedirectURL: redirect}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

package paytiko

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// AccountDetails is the payer account snapshot attached to a webhook.
type AccountDetails struct {
	MerchantID  int64  `json:"merchant_id"`
	CreatedDate string `json:"created_date"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	Currency    string `json:"currency"`
	Country     string `json:"country"`
	Dob         string `json:"dob"`
	City        string `json:"city,omitempty"`
	ZipCode     string `json:"zip_code,omitempty"`
	Region      string `json:"region,omitempty"`
	Street      string `json:"street,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// WebhookEvent is the typed form of a Paytiko notification.
type WebhookEvent struct {
	OrderID               string          `json:"order_id"`
	AccountID             string          `json:"account_id"`
	AccountDetails        AccountDetails  `json:"account_details"`
	TransactionType       string          `json:"transaction_type"`
	TransactionStatus     string          `json:"transaction_status"`
	InitialAmount         decimal.Decimal `json:"initial_amount"`
	Currency              string          `json:"currency"`
	TransactionID         int64           `json:"transaction_id"`
	ExternalTransactionID string          `json:"external_transaction_id"`
	PaymentProcessor      string          `json:"payment_processor"`
	IssueDate             string          `json:"issue_date"`
	InternalPspID         string          `json:"internal_psp_id,omitempty"`
	Signature             string          `json:"signature"`
	DeclineReasonText     string          `json:"decline_reason_text,omitempty"`
	CardType              string          `json:"card_type,omitempty"`
	LastCcDigits          string          `json:"last_cc_digits,omitempty"`
	CascadingInfo         any             `json:"cascading_info,omitempty"`
	MaskedPan             string          `json:"masked_pan,omitempty"`
}

func (e *WebhookEvent) IsSuccessful() bool { return strings.EqualFold(e.TransactionStatus, "success") }
func (e *WebhookEvent) IsRejected() bool   { return strings.EqualFold(e.TransactionStatus, "rejected") }
func (e *WebhookEvent) IsFailed() bool     { return strings.EqualFold(e.TransactionStatus, "failed") }
func (e *WebhookEvent) IsPayIn() bool      { return strings.EqualFold(e.TransactionType, "payin") }
func (e *WebhookEvent) IsPayOut() bool     { return strings.EqualFold(e.TransactionType, "payout") }
func (e *WebhookEvent) IsRefund() bool     { return strings.EqualFold(e.TransactionType, "refund") }

// DecodePayload decodes a raw JSON webhook body into a generic map, keeping
// numbers as json.Number so amounts and ids survive without float rounding.
func DecodePayload(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode paytiko payload: %w", err)
	}
	if out == nil {
		return nil, &ParseError{Field: "body", Reason: "expected a JSON object"}
	}
	return out, nil
}

// ParseWebhookPayload maps the PascalCase wire payload into a WebhookEvent.
// Every required field must be present with a usable type; the first one
// that is not produces a *ParseError.
func ParseWebhookPayload(payload map[string]any) (*WebhookEvent, error) {
	p := fields{m: payload}

	accountRaw, ok := payload["AccountDetails"].(map[string]any)
	if !ok {
		return nil, &ParseError{Field: "AccountDetails"}
	}
	a := fields{m: accountRaw, prefix: "AccountDetails."}

	ev := &WebhookEvent{
		OrderID:   p.requiredString("OrderId"),
		AccountID: p.requiredString("AccountId"),
		AccountDetails: AccountDetails{
			MerchantID:  a.requiredInt("MerchantId"),
			CreatedDate: a.requiredString("CreatedDate"),
			FirstName:   a.requiredString("FirstName"),
			LastName:    a.requiredString("LastName"),
			Email:       a.requiredString("Email"),
			Currency:    a.requiredString("Currency"),
			Country:     a.requiredString("Country"),
			Dob:         a.requiredString("Dob"),
			City:        a.optionalString("City"),
			ZipCode:     a.optionalString("ZipCode"),
			Region:      a.optionalString("Region"),
			Street:      a.optionalString("Street"),
			Phone:       a.optionalString("Phone"),
		},
		TransactionType:       p.requiredString("TransactionType"),
		TransactionStatus:     p.requiredString("TransactionStatus"),
		InitialAmount:         p.requiredDecimal("InitialAmount"),
		Currency:              p.requiredString("Currency"),
		TransactionID:         p.requiredInt("TransactionId"),
		ExternalTransactionID: p.requiredString("ExternalTransactionId"),
		PaymentProcessor:      p.requiredString("PaymentProcessor"),
		IssueDate:             p.requiredString("IssueDate"),
		InternalPspID:         p.optionalString("InternalPspId"),
		Signature:             p.requiredString("Signature"),
		DeclineReasonText:     p.optionalString("DeclineReasonText"),
		CardType:              p.optionalString("CardType"),
		LastCcDigits:          p.optionalString("LastCcDigits"),
		CascadingInfo:         payload["CascadingInfo"],
		MaskedPan:             p.optionalString("MaskedPan"),
	}
	if p.err != nil {
		return nil, p.err
	}
	if a.err != nil {
		return nil, a.err
	}
	return ev, nil
}

// fields extracts typed values from one level of a decoded payload and
// remembers the first failure.
type fields struct {
	m      map[string]any
	prefix string
	err    error
}

func (f *fields) fail(key, reason string) {
	if f.err == nil {
		f.err = &ParseError{Field: f.prefix + key, Reason: reason}
	}
}

func (f *fields) requiredString(key string) string {
	v, ok := f.m[key]
	if !ok || v == nil {
		f.fail(key, "")
		return ""
	}
	s, ok := scalarString(v)
	if !ok {
		f.fail(key, "expected a string")
	}
	return s
}

// optionalString returns "" for absent or null values. Numbers are accepted
// and rendered in their JSON form since Paytiko is inconsistent about PSP
// ids and card digits.
func (f *fields) optionalString(key string) string {
	v, ok := f.m[key]
	if !ok || v == nil {
		return ""
	}
	s, _ := scalarString(v)
	return s
}

func (f *fields) requiredInt(key string) int64 {
	v, ok := f.m[key]
	if !ok || v == nil {
		f.fail(key, "")
		return 0
	}
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if d, err := decimal.NewFromString(n.String()); err == nil {
			return d.IntPart()
		}
	case float64:
		return int64(n)
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
			return i
		}
	}
	f.fail(key, "expected an integer")
	return 0
}

func (f *fields) requiredDecimal(key string) decimal.Decimal {
	v, ok := f.m[key]
	if !ok || v == nil {
		f.fail(key, "")
		return decimal.Zero
	}
	d, ok := toDecimal(v)
	if !ok {
		f.fail(key, "expected a number")
	}
	return d
}

func scalarString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case json.Number:
		return s.String(), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(s), true
	}
	return "", false
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(n), true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		return d, err == nil
	}
	return decimal.Zero, false
}

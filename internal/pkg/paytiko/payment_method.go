package paytiko

import (
	"strings"

	"github.com/ManuelReschke/cashier-paytiko/app/models"
)

// Payment method types.
const (
	MethodTypeCard          = "card"
	MethodTypeDigitalWallet = "digital_wallet"
	MethodTypeBankTransfer  = "bank_transfer"
)

// PaymentMethodSnapshot is the canonical payment method stored on a transaction.
type PaymentMethodSnapshot struct {
	Type        string `json:"payment_method_type"`
	Brand       string `json:"payment_method_brand"`
	LastFour    string `json:"payment_method_last_four,omitempty"`
	DisplayName string `json:"payment_method_display_name,omitempty"`
}

var cardBrands = map[string]string{
	"visa":             "visa",
	"mastercard":       "mastercard",
	"master":           "mastercard",
	"mc":               "mastercard",
	"amex":             "american_express",
	"american express": "american_express",
	"americanexpress":  "american_express",
	"discover":         "discover",
	"jcb":              "jcb",
	"diners":           "diners_club",
	"diners club":      "diners_club",
	"dinersclub":       "diners_club",
	"unionpay":         "union_pay",
	"union pay":        "union_pay",
}

var walletBrands = map[string]string{
	"fawry":         "fawry",
	"vodafone":      "vodafone",
	"vodafone cash": "vodafone",
	"orange":        "orange",
	"orange money":  "orange",
	"etisalat":      "etisalat",
	"etisalat cash": "etisalat",
	"instapay":      "instapay",
	"valu":          "valu",
	"binance":       "binance_pay",
	"binance pay":   "binance_pay",
	"paypal":        "paypal",
	"apple pay":     "apple_pay",
	"applepay":      "apple_pay",
	"google pay":    "google_pay",
	"googlepay":     "google_pay",
	"samsung pay":   "samsung_pay",
	"samsungpay":    "samsung_pay",
	"alipay":        "alipay",
	"wechat":        "wechat",
	"wechat pay":    "wechat",
}

// pspFragments is checked in order; the first fragment found in the PSP id wins.
var pspFragments = []struct {
	fragment string
	brand    string
}{
	{"fawry", "fawry"},
	{"vodafone", "vodafone"},
	{"orange", "orange"},
	{"etisalat", "etisalat"},
	{"instapay", "instapay"},
	{"valu", "valu"},
	{"binance", "binance_pay"},
	{"wire", "wire_transfer"},
	{"bank", "wire_transfer"},
}

// ClassifyPaymentMethod derives a snapshot from gateway fields. It returns
// nil when no field identifies the method.
func ClassifyPaymentMethod(cardType, lastFour, maskedPan, processor, internalPspID string) *PaymentMethodSnapshot {
	cardType = strings.ToLower(strings.TrimSpace(cardType))
	lastFour = strings.TrimSpace(lastFour)
	processor = strings.ToLower(strings.TrimSpace(processor))

	switch {
	case cardType != "" && lastFour != "":
		brand, ok := cardBrands[cardType]
		if !ok {
			// Unrecognized card text falls back to visa pending product confirmation.
			brand = "visa"
		}
		snap := &PaymentMethodSnapshot{Type: MethodTypeCard, Brand: brand, LastFour: lastFour}
		if pan := strings.TrimSpace(maskedPan); pan != "" {
			snap.DisplayName = upperFirst(brand) + " " + pan
		}
		return snap
	case processor != "":
		brand, ok := walletBrands[processor]
		if !ok {
			brand = "other"
		}
		return &PaymentMethodSnapshot{Type: MethodTypeDigitalWallet, Brand: brand}
	case strings.TrimSpace(internalPspID) != "":
		psp := strings.ToLower(internalPspID)
		brand := "other"
		for _, f := range pspFragments {
			if strings.Contains(psp, f.fragment) {
				brand = f.brand
				break
			}
		}
		if brand == "wire_transfer" {
			return &PaymentMethodSnapshot{Type: MethodTypeBankTransfer, Brand: brand}
		}
		return &PaymentMethodSnapshot{Type: MethodTypeDigitalWallet, Brand: brand}
	}
	return nil
}

// ClassifyWebhook classifies the payment method of a parsed event.
func ClassifyWebhook(ev *WebhookEvent) *PaymentMethodSnapshot {
	return ClassifyPaymentMethod(ev.CardType, ev.LastCcDigits, ev.MaskedPan, ev.PaymentProcessor, ev.InternalPspID)
}

// ClassifyPayload classifies directly from a decoded payload, tolerating
// missing or ill-typed fields.
func ClassifyPayload(payload map[string]any) *PaymentMethodSnapshot {
	f := fields{m: payload}
	return ClassifyPaymentMethod(
		f.optionalString("CardType"),
		f.optionalString("LastCcDigits"),
		f.optionalString("MaskedPan"),
		f.optionalString("PaymentProcessor"),
		f.optionalString("InternalPspId"),
	)
}

// ShouldApply reports whether the snapshot may be written over the stored
// one. Complete stored data is never downgraded.
func (s *PaymentMethodSnapshot) ShouldApply(tx *models.Transaction) bool {
	if s == nil {
		return false
	}
	return tx.PaymentMethodType == "" ||
		tx.PaymentMethodBrand == "" ||
		(s.LastFour != "" && tx.PaymentMethodLastFour == "")
}

// Apply writes the snapshot into the transaction's payment method columns.
func (s *PaymentMethodSnapshot) Apply(tx *models.Transaction) {
	tx.PaymentMethodType = s.Type
	tx.PaymentMethodBrand = s.Brand
	tx.PaymentMethodLastFour = s.LastFour
	tx.PaymentMethodDisplayName = s.DisplayName
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

package paytiko

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/cashier-paytiko/app/models"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Processor features.
const (
	FeatureCharge     = "charge"
	FeatureHostedPage = "hosted_page"
)

// ChargeParams are the optional overrides for SimpleCharge.
type ChargeParams struct {
	Currency       string
	OrderID        string
	Description    string
	BillingDetails *BillingInput
	DisabledPspIDs []int
	CreditCardOnly *bool
	IsPayOut       *bool
	Metadata       map[string]any
}

// PaymentResult reports a created hosted page. Status stays pending until a
// webhook or resync confirms the payment.
type PaymentResult struct {
	Success       bool                 `json:"success"`
	TransactionID string               `json:"transaction_id"`
	Amount        decimal.Decimal      `json:"amount"`
	Currency      string               `json:"currency"`
	Status        models.PaymentStatus `json:"status"`
	Message       string               `json:"message"`
	Metadata      map[string]any       `json:"metadata"`
}

// Processor creates Paytiko hosted payment pages.
type Processor struct {
	cfg        Config
	hostedPage *HostedPageClient
	store      TransactionStore
	now        func() time.Time
}

// NewProcessor creates a processor. store may be nil, in which case no local
// transaction is recorded for a charge.
func NewProcessor(cfg Config, hostedPage *HostedPageClient, store TransactionStore) *Processor {
	return &Processor{cfg: cfg, hostedPage: hostedPage, store: store, now: time.Now}
}

func (p *Processor) Name() string { return models.ProcessorPaytiko }

func (p *Processor) SupportedFeatures() []string {
	return []string{FeatureCharge, FeatureHostedPage}
}

func (p *Processor) Supports(feature string) bool {
	for _, f := range p.SupportedFeatures() {
		if f == feature {
			return true
		}
	}
	return false
}

// SimpleCharge charges amount, filling currency, order id, description and
// URLs from configuration where params leave them empty.
func (p *Processor) SimpleCharge(ctx context.Context, amount decimal.Decimal, params ChargeParams) (*PaymentResult, error) {
	return p.Charge(ctx, p.buildPaymentData(amount, params))
}

// CreateHostedPage is an alias of Charge.
func (p *Processor) CreateHostedPage(ctx context.Context, data PaymentData) (*PaymentResult, error) {
	return p.Charge(ctx, data)
}

// Charge validates data and creates a hosted page. Validation failures are
// returned as *ValidationError, gateway failures as *ProcessingError.
func (p *Processor) Charge(ctx context.Context, data PaymentData) (*PaymentResult, error) {
	if err := ValidatePaymentData(data); err != nil {
		return nil, err
	}

	req := p.hostedPage.BuildRequest(data)
	resp := p.hostedPage.Submit(ctx, req)
	if resp.IsFailed() {
		msg := resp.Message
		if msg == "" {
			msg = "Failed to create hosted page"
		}
		return nil, &ProcessingError{OrderID: data.OrderID, Message: msg}
	}

	currency := strings.ToUpper(strings.TrimSpace(data.Currency))
	if currency == "" {
		currency = p.cfg.currency()
	}

	if p.store != nil {
		if err := p.recordPending(ctx, data, currency, resp.RedirectURL); err != nil {
			return nil, &ProcessingError{OrderID: data.OrderID, Err: err}
		}
	}

	return &PaymentResult{
		Success:       true,
		TransactionID: data.OrderID,
		Amount:        data.Amount,
		Currency:      currency,
		Status:        models.PaymentStatusPending,
		Message:       "Hosted page created successfully",
		Metadata: map[string]any{
			"redirect_url":   resp.RedirectURL,
			"payment_method": FeatureHostedPage,
		},
	}, nil
}

// Refund is handled in the Paytiko admin panel.
func (p *Processor) Refund(ctx context.Context, transactionID string, amount *decimal.Decimal) error {
	return fmt.Errorf("direct refunds are processed via the Paytiko admin panel: %w", ErrUnsupported)
}

// PaymentStatus is delivered by webhooks only.
func (p *Processor) PaymentStatus(ctx context.Context, transactionID string) (models.PaymentStatus, error) {
	return "", fmt.Errorf("payment status is received via webhooks: %w", ErrUnsupported)
}

func (p *Processor) recordPending(ctx context.Context, data PaymentData, currency, redirectURL string) error {
	tx := &models.Transaction{
		ProcessorName:          models.ProcessorPaytiko,
		ProcessorTransactionID: data.OrderID,
		Amount:                 data.Amount,
		Currency:               currency,
		Status:                 models.PaymentStatusPending,
	}
	meta := map[string]any{}
	for k, v := range data.Metadata {
		meta[k] = v
	}
	meta["order_id"] = data.OrderID
	meta["redirect_url"] = redirectURL
	if err := tx.SetMetadata(meta); err != nil {
		return err
	}
	if err := p.store.Create(ctx, tx); err != nil {
		return err
	}
	if p.cfg.LoggingEnabled {
		log.Infow("paytiko pending transaction recorded", "order_id", data.OrderID, "transaction_id", tx.ID)
	}
	return nil
}

func (p *Processor) buildPaymentData(amount decimal.Decimal, params ChargeParams) PaymentData {
	return PaymentData{
		Amount:             amount,
		Currency:           firstNonEmpty(params.Currency, p.cfg.currency()),
		OrderID:            firstNonEmpty(params.OrderID, p.generateOrderID()),
		Description:        firstNonEmpty(params.Description, p.defaultDescription(amount)),
		BillingDetails:     params.BillingDetails,
		WebhookURL:         p.cfg.WebhookURL,
		SuccessRedirectURL: p.cfg.SuccessRedirectURL,
		FailedRedirectURL:  p.cfg.FailedRedirectURL,
		DisabledPspIDs:     params.DisabledPspIDs,
		CreditCardOnly:     params.CreditCardOnly,
		IsPayOut:           params.IsPayOut,
		Metadata:           params.Metadata,
	}
}

func (p *Processor) generateOrderID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("deposit-%d-%s", p.now().Unix(), suffix)
}

func (p *Processor) defaultDescription(amount decimal.Decimal) string {
	return fmt.Sprintf("Payment of %s %s via Paytiko", p.cfg.currency(), amount.String())
}

package paytiko

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/ManuelReschke/cashier-paytiko/app/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProcessor(t *testing.T, handler http.HandlerFunc, store TransactionStore) *Processor {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := testConfig(srv.URL)
	h := NewHostedPageClient(NewClient(cfg, srv.Client()), NewSigner(cfg.MerchantSecretKey))
	h.now = func() time.Time { return fixedNow }
	p := NewProcessor(cfg, h, store)
	p.now = func() time.Time { return fixedNow }
	return p
}

func redirectOK(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte(`{"redirectUrl":"https://pay.example.com/s/1"}`))
}

func TestChargeReturnsPendingResult(t *testing.T) {
	store := newMemStore()
	p := newTestProcessor(t, redirectOK, store)

	res, err := p.Charge(context.Background(), validPaymentData())
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, models.PaymentStatusPending, res.Status)
	assert.Equal(t, "order-1", res.TransactionID)
	assert.True(t, decimal.RequireFromString("100").Equal(res.Amount))
	assert.Equal(t, "USD", res.Currency)
	assert.Equal(t, "Hosted page created successfully", res.Message)
	assert.Equal(t, "https://pay.example.com/s/1", res.Metadata["redirect_url"])
	assert.Equal(t, "hosted_page", res.Metadata["payment_method"])

	tx := store.get("order-1")
	require.NotNil(t, tx)
	assert.Equal(t, models.ProcessorPaytiko, tx.ProcessorName)
	assert.Equal(t, models.PaymentStatusPending, tx.Status)
	assert.Equal(t, "order-1", tx.MetadataOrderID())
}

func TestChargeValidationFailsBeforeGateway(t *testing.T) {
	called := false
	p := newTestProcessor(t, func(w http.ResponseWriter, r *http.Request) { called = true }, nil)

	data := validPaymentData()
	data.Amount = decimal.Zero
	data.BillingDetails.Email = "not-an-email"

	_, err := p.Charge(context.Background(), data)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "amount")
	assert.Contains(t, verr.Fields, "billing_details.email")
	assert.False(t, called)
}

func TestChargeGatewayFailure(t *testing.T) {
	p := newTestProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"title":"Invalid merchant secret"}`))
	}, nil)

	_, err := p.Charge(context.Background(), validPaymentData())
	var perr *ProcessingError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "order-1", perr.OrderID)
	assert.Equal(t, "Invalid merchant secret", perr.Error())
}

func TestChargeStoreFailure(t *testing.T) {
	store := newMemStore()
	store.failOn = errors.New("db down")
	p := newTestProcessor(t, redirectOK, store)

	_, err := p.Charge(context.Background(), validPaymentData())
	var perr *ProcessingError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, err.Error(), "db down")
}

func TestSimpleChargeFillsDefaults(t *testing.T) {
	p := newTestProcessor(t, redirectOK, nil)

	data := p.buildPaymentData(decimal.RequireFromString("25"), ChargeParams{
		BillingDetails: validPaymentData().BillingDetails,
	})
	assert.Equal(t, "USD", data.Currency)
	assert.Regexp(t, regexp.MustCompile(`^deposit-1714564800-[0-9a-f]{8}$`), data.OrderID)
	assert.Equal(t, "Payment of USD 25 via Paytiko", data.Description)
	assert.Equal(t, "https://shop.example.com/api/webhooks/paytiko", data.WebhookURL)

	res, err := p.SimpleCharge(context.Background(), decimal.RequireFromString("25"), ChargeParams{
		OrderID:        "custom-1",
		BillingDetails: validPaymentData().BillingDetails,
	})
	require.NoError(t, err)
	assert.Equal(t, "custom-1", res.TransactionID)
}

func TestUnsupportedOperations(t *testing.T) {
	p := newTestProcessor(t, redirectOK, nil)
	assert.ErrorIs(t, p.Refund(context.Background(), "order-1", nil), ErrUnsupported)
	_, err := p.PaymentStatus(context.Background(), "order-1")
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.True(t, p.Supports(FeatureHostedPage))
	assert.False(t, p.Supports("refund"))
	assert.Equal(t, "paytiko", p.Name())
}

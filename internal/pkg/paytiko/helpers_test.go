package paytiko

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ManuelReschke/cashier-paytiko/app/models"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-merchant-secret"

func testConfig(baseURL string) Config {
	cfg := DefaultConfig()
	cfg.MerchantSecretKey = testSecret
	cfg.CoreURL = baseURL
	cfg.WebhookURL = "https://shop.example.com/api/webhooks/paytiko"
	cfg.SuccessRedirectURL = "https://shop.example.com/payment/success"
	cfg.FailedRedirectURL = "https://shop.example.com/payment/failed"
	cfg.LoggingEnabled = false
	return cfg
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// memStore is an in-memory TransactionStore keyed by order id.
type memStore struct {
	mu      sync.Mutex
	byOrder map[string]*models.Transaction
	saves   int
	failOn  error
}

func newMemStore(txs ...*models.Transaction) *memStore {
	s := &memStore{byOrder: map[string]*models.Transaction{}}
	for _, tx := range txs {
		s.byOrder[tx.ProcessorTransactionID] = tx
	}
	return s
}

func (s *memStore) Create(_ context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn != nil {
		return s.failOn
	}
	tx.ID = uint(len(s.byOrder) + 1)
	s.byOrder[tx.ProcessorTransactionID] = tx
	return nil
}

func (s *memStore) Update(_ context.Context, orderID string, mutate func(*models.Transaction) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.byOrder[orderID]
	if !ok {
		return ErrTransactionNotFound
	}
	cp := *tx
	if err := mutate(&cp); err != nil {
		if errors.Is(err, ErrNoChange) {
			return nil
		}
		return err
	}
	*tx = cp
	s.saves++
	return nil
}

func (s *memStore) get(orderID string) *models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byOrder[orderID]
}

// recorder captures published events.
type recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) names() []EventName {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventName, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Name)
	}
	return out
}

// memJournal collects recorded deliveries.
type memJournal struct {
	mu         sync.Mutex
	deliveries []*models.WebhookDelivery
}

func (j *memJournal) RecordDelivery(_ context.Context, d *models.WebhookDelivery) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.deliveries = append(j.deliveries, d)
	return nil
}

// memArchiver records archived payloads.
type memArchiver struct {
	keys []string
}

func (a *memArchiver) ArchivePayload(_ context.Context, d *models.WebhookDelivery, _ []byte) (string, error) {
	key := "paytiko/webhooks/" + d.State + "/" + d.OrderID + ".json"
	a.keys = append(a.keys, key)
	return key, nil
}

func samplePayload(orderID string) map[string]any {
	return map[string]any{
		"OrderId":   orderID,
		"AccountId": "acc-1",
		"AccountDetails": map[string]any{
			"MerchantId":  json.Number("42"),
			"CreatedDate": "2024-01-01T00:00:00Z",
			"FirstName":   "Jane",
			"LastName":    "Doe",
			"Email":       "jane@example.com",
			"Currency":    "USD",
			"Country":     "US",
			"Dob":         "1990-01-01",
		},
		"TransactionType":       "PayIn",
		"TransactionStatus":     "Success",
		"InitialAmount":         json.Number("100.50"),
		"Currency":              "USD",
		"TransactionId":         json.Number("987"),
		"ExternalTransactionId": "ext-1",
		"PaymentProcessor":      "Stripe",
		"IssueDate":             "2024-01-01T10:00:00Z",
		"Signature":             NewSigner(testSecret).WebhookSignature(orderID),
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func pendingTx(orderID string) *models.Transaction {
	return &models.Transaction{
		ID:                     1,
		ProcessorName:          models.ProcessorPaytiko,
		ProcessorTransactionID: orderID,
		Status:                 models.PaymentStatusPending,
		MetadataJSON:           `{"order_id":"` + orderID + `","user_id":7}`,
	}
}

package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/cashier-paytiko/app/models"
	"github.com/ManuelReschke/cashier-paytiko/app/repository"
	"github.com/ManuelReschke/cashier-paytiko/internal/pkg/paytiko"
)

const controllerSecret = "controller-secret"

type fakeWebhooks struct {
	result paytiko.DispatchResult
	raw    []byte
}

func (f *fakeWebhooks) Handle(_ context.Context, raw []byte) paytiko.DispatchResult {
	f.raw = raw
	return f.result
}

type fakeResync struct {
	batch     *paytiko.BatchResyncResult
	dateRange *paytiko.DateRangeResyncResult
	status    *paytiko.ResyncStatus
	replayErr error

	gotOrderIDs []string
	gotTypes    []string
	gotResyncID string
	replayed    map[string]any
}

func (f *fakeResync) ResyncMany(_ context.Context, orderIDs []string) *paytiko.BatchResyncResult {
	f.gotOrderIDs = orderIDs
	return f.batch
}

func (f *fakeResync) ResyncByDateRange(_ context.Context, _, _ string, types []string) *paytiko.DateRangeResyncResult {
	f.gotTypes = types
	return f.dateRange
}

func (f *fakeResync) Status(_ context.Context, resyncID string) *paytiko.ResyncStatus {
	f.gotResyncID = resyncID
	return f.status
}

func (f *fakeResync) ProcessResyncedWebhook(_ context.Context, payload map[string]any) (*paytiko.WebhookEvent, error) {
	f.replayed = payload
	if f.replayErr != nil {
		return nil, f.replayErr
	}
	return &paytiko.WebhookEvent{OrderID: payload["OrderId"].(string)}, nil
}

type fakeCharger struct {
	result *paytiko.PaymentResult
	err    error
	got    paytiko.PaymentData
}

func (f *fakeCharger) Charge(_ context.Context, data paytiko.PaymentData) (*paytiko.PaymentResult, error) {
	f.got = data
	return f.result, f.err
}

type fakeDeliveries struct {
	items  []models.WebhookDelivery
	counts map[string]int64
	filter repository.DeliveryFilter
	err    error
}

func (f *fakeDeliveries) ListRecent(_ context.Context, filter repository.DeliveryFilter) ([]models.WebhookDelivery, error) {
	f.filter = filter
	return f.items, f.err
}

func (f *fakeDeliveries) CountByState(context.Context) (map[string]int64, error) {
	return f.counts, f.err
}

type controllerDeps struct {
	webhooks   *fakeWebhooks
	resync     *fakeResync
	charges    *fakeCharger
	deliveries *fakeDeliveries
}

func newTestApp(t *testing.T, verify bool) (*fiber.App, *controllerDeps) {
	t.Helper()

	cfg := paytiko.DefaultConfig()
	cfg.MerchantSecretKey = controllerSecret
	cfg.VerifySignature = verify

	deps := &controllerDeps{
		webhooks:   &fakeWebhooks{},
		resync:     &fakeResync{},
		charges:    &fakeCharger{},
		deliveries: &fakeDeliveries{},
	}
	pc := NewPaytikoController(cfg, paytiko.NewSigner(controllerSecret), deps.webhooks, deps.resync, deps.charges, deps.deliveries)

	app := fiber.New()
	app.Post("/webhook", pc.HandleWebhook)
	app.Post("/resync", pc.HandleResync)
	app.Post("/resync-by-date", pc.HandleResyncByDateRange)
	app.Get("/resync-status/:resyncId", pc.HandleResyncStatus)
	app.Post("/process-resynced", pc.HandleProcessResynced)
	app.Post("/hosted-page", pc.HandleCreateHostedPage)
	app.Get("/deliveries", pc.HandleListDeliveries)
	return app, deps
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestHandleWebhook(t *testing.T) {
	tests := []struct {
		name     string
		state    paytiko.DispatchState
		wantCode int
		wantKey  string
		wantVal  string
	}{
		{name: "dispatched", state: paytiko.StateDispatched, wantCode: 200, wantKey: "status", wantVal: "success"},
		{name: "rejected", state: paytiko.StateRejected, wantCode: 400, wantKey: "error", wantVal: "Invalid signature"},
		{name: "failed", state: paytiko.StateFailed, wantCode: 500, wantKey: "error", wantVal: "Webhook processing failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, deps := newTestApp(t, true)
			deps.webhooks.result = paytiko.DispatchResult{State: tt.state}

			code, body := doJSON(t, app, "POST", "/webhook", `{"OrderId":"o-1"}`)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantVal, body[tt.wantKey])
			assert.JSONEq(t, `{"OrderId":"o-1"}`, string(deps.webhooks.raw))
		})
	}
}

func TestHandleResync_Success(t *testing.T) {
	app, deps := newTestApp(t, true)
	deps.resync.batch = &paytiko.BatchResyncResult{
		Success:        true,
		ResyncedCount:  1,
		Message:        "Resynced 1 of 2 orders",
		ResyncedOrders: []string{"A"},
		Errors:         []string{"Order B: declined"},
	}

	code, body := doJSON(t, app, "POST", "/resync", `{"order_ids":["A","B"]}`)
	assert.Equal(t, 200, code)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 1, body["resynced_count"])
	assert.Equal(t, []any{"A"}, body["resynced_orders"])
	assert.Equal(t, []string{"A", "B"}, deps.resync.gotOrderIDs)
}

func TestHandleResync_AllFailed(t *testing.T) {
	app, deps := newTestApp(t, true)
	deps.resync.batch = &paytiko.BatchResyncResult{
		Success: false,
		Message: "Resynced 0 of 1 orders",
		Errors:  []string{"Order A: gateway down"},
	}

	code, body := doJSON(t, app, "POST", "/resync", `{"order_ids":["A"]}`)
	assert.Equal(t, 400, code)
	assert.Equal(t, "Resynced 0 of 1 orders", body["error"])
	errorData, ok := body["error_data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"Order A: gateway down"}, errorData["errors"])
}

func TestHandleResync_Validation(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{name: "missing ids", body: `{}`, wantField: "order_ids"},
		{name: "empty id", body: `{"order_ids":["A",""]}`, wantField: "order_ids.1"},
		{name: "bad date", body: `{"order_ids":["A"],"start_date":"2024-01-01"}`, wantField: "start_date"},
		{name: "wrong type", body: `{"order_ids":"A"}`, wantField: "order_ids"},
		{name: "malformed", body: `{"order_ids":`, wantField: "body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, deps := newTestApp(t, true)

			code, body := doJSON(t, app, "POST", "/resync", tt.body)
			assert.Equal(t, 422, code)
			assert.Equal(t, "Validation failed", body["error"])
			errs, ok := body["errors"].(map[string]any)
			require.True(t, ok)
			assert.Contains(t, errs, tt.wantField)
			assert.Nil(t, deps.resync.gotOrderIDs)
		})
	}
}

func TestHandleResyncByDateRange(t *testing.T) {
	app, deps := newTestApp(t, true)
	deps.resync.dateRange = &paytiko.DateRangeResyncResult{
		Success:        true,
		ResyncedCount:  3,
		Message:        "Webhooks resynced successfully",
		ResyncedOrders: []string{"A", "B", "C"},
	}

	code, body := doJSON(t, app, "POST", "/resync-by-date",
		`{"start_date":"2024-01-01 00:00:00","end_date":"2024-01-02 00:00:00","transaction_types":["SALE"]}`)
	assert.Equal(t, 200, code)
	assert.EqualValues(t, 3, body["resynced_count"])
	assert.Equal(t, []string{"SALE"}, deps.resync.gotTypes)
}

func TestHandleResyncByDateRange_Errors(t *testing.T) {
	app, deps := newTestApp(t, true)
	deps.resync.dateRange = &paytiko.DateRangeResyncResult{
		Error:     "Invalid range",
		ErrorData: map[string]any{"title": "Invalid range"},
	}

	code, body := doJSON(t, app, "POST", "/resync-by-date",
		`{"start_date":"2024-01-02 00:00:00","end_date":"2024-01-01 00:00:00"}`)
	assert.Equal(t, 422, code)
	assert.Contains(t, body["errors"], "end_date")

	code, body = doJSON(t, app, "POST", "/resync-by-date",
		`{"start_date":"2024-01-01 00:00:00","end_date":"2024-01-02 00:00:00"}`)
	assert.Equal(t, 400, code)
	assert.Equal(t, "Invalid range", body["error"])
	assert.Equal(t, map[string]any{"title": "Invalid range"}, body["error_data"])
}

func TestHandleResyncStatus(t *testing.T) {
	app, deps := newTestApp(t, true)
	deps.resync.status = &paytiko.ResyncStatus{
		Success:           true,
		Status:            "completed",
		Progress:          100,
		TotalWebhooks:     10,
		ProcessedWebhooks: 9,
		FailedWebhooks:    1,
	}

	code, body := doJSON(t, app, "GET", "/resync-status/job-42", "")
	assert.Equal(t, 200, code)
	assert.Equal(t, "job-42", deps.resync.gotResyncID)
	assert.Equal(t, "completed", body["status"])
	assert.EqualValues(t, 100, body["progress"])
	assert.EqualValues(t, 10, body["total_webhooks"])
	assert.EqualValues(t, 9, body["processed_webhooks"])
	assert.EqualValues(t, 1, body["failed_webhooks"])

	deps.resync.status = &paytiko.ResyncStatus{Error: "Resync job not found"}
	code, body = doJSON(t, app, "GET", "/resync-status/missing", "")
	assert.Equal(t, 400, code)
	assert.Equal(t, "Resync job not found", body["error"])
}

func replayBody(orderID, signature string) string {
	b, _ := json.Marshal(map[string]any{"OrderId": orderID, "Signature": signature})
	return string(b)
}

func TestHandleProcessResynced(t *testing.T) {
	signer := paytiko.NewSigner(controllerSecret)

	t.Run("valid signature", func(t *testing.T) {
		app, deps := newTestApp(t, true)
		code, body := doJSON(t, app, "POST", "/process-resynced", replayBody("o-1", signer.WebhookSignature("o-1")))
		assert.Equal(t, 200, code)
		assert.Equal(t, "Resynced webhook processed successfully", body["message"])
		assert.Equal(t, "o-1", deps.resync.replayed["OrderId"])
	})

	t.Run("invalid signature", func(t *testing.T) {
		app, deps := newTestApp(t, true)
		code, body := doJSON(t, app, "POST", "/process-resynced", replayBody("o-1", "bogus"))
		assert.Equal(t, 400, code)
		assert.Equal(t, "Invalid signature", body["error"])
		assert.Nil(t, deps.resync.replayed)
	})

	t.Run("verification disabled", func(t *testing.T) {
		app, deps := newTestApp(t, false)
		code, _ := doJSON(t, app, "POST", "/process-resynced", replayBody("o-1", "bogus"))
		assert.Equal(t, 200, code)
		assert.NotNil(t, deps.resync.replayed)
	})

	t.Run("missing fields", func(t *testing.T) {
		app, deps := newTestApp(t, true)
		deps.resync.replayErr = &paytiko.ParseError{Field: "AccountDetails"}
		code, body := doJSON(t, app, "POST", "/process-resynced", replayBody("o-1", signer.WebhookSignature("o-1")))
		assert.Equal(t, 422, code)
		assert.Contains(t, body["errors"], "AccountDetails")
	})

	t.Run("processing failure", func(t *testing.T) {
		app, deps := newTestApp(t, true)
		deps.resync.replayErr = &paytiko.ProcessingError{OrderID: "o-1", Err: errors.New("listener exploded")}
		code, body := doJSON(t, app, "POST", "/process-resynced", replayBody("o-1", signer.WebhookSignature("o-1")))
		assert.Equal(t, 500, code)
		assert.Equal(t, "Failed to process resynced webhook", body["error"])
	})

	t.Run("malformed body", func(t *testing.T) {
		app, _ := newTestApp(t, true)
		code, _ := doJSON(t, app, "POST", "/process-resynced", `not-json`)
		assert.Equal(t, 422, code)
	})
}

func TestHandleCreateHostedPage(t *testing.T) {
	const chargeBody = `{"amount":"100.00","currency":"USD","order_id":"o-9","billing_details":{"first_name":"Ada","email":"ada@example.com","country":"GB","phone":"123"}}`

	t.Run("created", func(t *testing.T) {
		app, deps := newTestApp(t, true)
		deps.charges.result = &paytiko.PaymentResult{
			Success:       true,
			TransactionID: "o-9",
			Amount:        decimal.RequireFromString("100.00"),
			Currency:      "USD",
			Status:        models.PaymentStatusPending,
			Message:       "Hosted page created successfully",
			Metadata:      map[string]any{"redirect_url": "https://pay.example/abc"},
		}

		code, body := doJSON(t, app, "POST", "/hosted-page", chargeBody)
		assert.Equal(t, 201, code)
		assert.Equal(t, "pending", body["status"])
		assert.Equal(t, "o-9", body["transaction_id"])
		assert.True(t, deps.charges.got.Amount.Equal(decimal.RequireFromString("100")))
		require.NotNil(t, deps.charges.got.BillingDetails)
		assert.Equal(t, "ada@example.com", deps.charges.got.BillingDetails.Email)
	})

	t.Run("validation", func(t *testing.T) {
		app, deps := newTestApp(t, true)
		ve := &paytiko.ValidationError{}
		ve.Add("amount", "The amount must be at least 0.01.")
		deps.charges.err = ve

		code, body := doJSON(t, app, "POST", "/hosted-page", chargeBody)
		assert.Equal(t, 422, code)
		assert.Contains(t, body["errors"], "amount")
	})

	t.Run("gateway failure", func(t *testing.T) {
		app, deps := newTestApp(t, true)
		deps.charges.err = &paytiko.ProcessingError{OrderID: "o-9", Message: "Invalid merchant"}

		code, body := doJSON(t, app, "POST", "/hosted-page", chargeBody)
		assert.Equal(t, 400, code)
		assert.Equal(t, "Invalid merchant", body["error"])
	})

	t.Run("internal failure", func(t *testing.T) {
		app, deps := newTestApp(t, true)
		deps.charges.err = &paytiko.ProcessingError{OrderID: "o-9", Err: errors.New("db down")}

		code, body := doJSON(t, app, "POST", "/hosted-page", chargeBody)
		assert.Equal(t, 500, code)
		assert.Equal(t, "Payment processing failed", body["error"])
	})
}

func TestHandleListDeliveries(t *testing.T) {
	app, deps := newTestApp(t, true)
	deps.deliveries.items = []models.WebhookDelivery{{ID: 2, OrderID: "o-1", State: "rejected"}}
	deps.deliveries.counts = map[string]int64{"rejected": 1, "dispatched": 4}

	code, body := doJSON(t, app, "GET", "/deliveries?state=rejected&limit=5", "")
	assert.Equal(t, 200, code)
	assert.Equal(t, "rejected", deps.deliveries.filter.State)
	assert.Equal(t, 5, deps.deliveries.filter.Limit)
	items, ok := body["deliveries"].([]any)
	require.True(t, ok)
	assert.Len(t, items, 1)
	assert.EqualValues(t, 4, body["counts"].(map[string]any)["dispatched"])

	deps.deliveries.err = errors.New("db down")
	code, _ = doJSON(t, app, "GET", "/deliveries", "")
	assert.Equal(t, 500, code)
}

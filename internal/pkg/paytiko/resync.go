package paytiko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/cashier-paytiko/app/models"
	"github.com/gofiber/fiber/v2/log"
)

const (
	resyncPath          = "/api/webhook-resync"
	resyncByDatePath    = "/api/webhook/resync-by-date"
	resyncStatusPath    = "/api/webhook/resync-status/"
	extractPayloadPath  = "/api/webhook-resync/extract-payload"
	queryMerchantOrder  = "merchantOrderId"
	defaultDateRangeMsg = "Webhooks resynced successfully"
)

// TransactionStore is the persistence the coordinator needs. Update loads the
// Paytiko transaction for orderID, applies mutate and saves the result; it
// returns ErrTransactionNotFound when no transaction matches and skips the
// save when mutate returns ErrNoChange.
type TransactionStore interface {
	Create(ctx context.Context, tx *models.Transaction) error
	Update(ctx context.Context, orderID string, mutate func(*models.Transaction) error) error
}

// ResyncResult is the outcome of resyncing one order.
type ResyncResult struct {
	Success   bool           `json:"success"`
	OrderID   string         `json:"order_id"`
	Message   string         `json:"message,omitempty"`
	Error     string         `json:"error,omitempty"`
	ErrorData map[string]any `json:"error_data,omitempty"`
}

// BatchResyncResult aggregates a sequential resync of several orders.
type BatchResyncResult struct {
	Success        bool     `json:"success"`
	ResyncedCount  int      `json:"resynced_count"`
	Message        string   `json:"message"`
	ResyncedOrders []string `json:"resynced_orders"`
	Errors         []string `json:"errors"`
}

// DateRangeResyncResult carries the gateway's own counts for a date range resync.
type DateRangeResyncResult struct {
	Success        bool           `json:"success"`
	ResyncedCount  int            `json:"resynced_count"`
	Message        string         `json:"message,omitempty"`
	ResyncedOrders []string       `json:"resynced_orders"`
	Error          string         `json:"error,omitempty"`
	ErrorData      map[string]any `json:"error_data,omitempty"`
}

// ResyncStatus is a single poll of a resync job.
type ResyncStatus struct {
	Success           bool           `json:"success"`
	Status            string         `json:"status,omitempty"`
	Progress          float64        `json:"progress"`
	TotalWebhooks     int            `json:"total_webhooks"`
	ProcessedWebhooks int            `json:"processed_webhooks"`
	FailedWebhooks    int            `json:"failed_webhooks"`
	Error             string         `json:"error,omitempty"`
	ErrorData         map[string]any `json:"error_data,omitempty"`
}

// ExtractResult holds the stored webhook payload the gateway returned for an order.
type ExtractResult struct {
	Success   bool           `json:"success"`
	OrderID   string         `json:"order_id"`
	Payload   map[string]any `json:"payload,omitempty"`
	Message   string         `json:"message,omitempty"`
	Error     string         `json:"error,omitempty"`
	ErrorData map[string]any `json:"error_data,omitempty"`
}

// Coordinator repairs missed webhooks by asking the gateway to resync and
// applying the stored payload to the local transaction.
type Coordinator struct {
	options
	cfg    Config
	client *Client
	store  TransactionStore
	events Publisher
	now    func() time.Time
}

func NewCoordinator(client *Client, store TransactionStore, events Publisher, opts ...Option) *Coordinator {
	return &Coordinator{
		options: buildOptions(opts),
		cfg:     client.Config(),
		client:  client,
		store:   store,
		events:  events,
		now:     time.Now,
	}
}

// ResyncMany resyncs each order in turn. A failure never stops the batch and
// the batch succeeds when at least one order did.
func (c *Coordinator) ResyncMany(ctx context.Context, orderIDs []string) *BatchResyncResult {
	out := &BatchResyncResult{ResyncedOrders: []string{}, Errors: []string{}}
	for _, id := range orderIDs {
		r := c.ResyncOne(ctx, id)
		if r.Success {
			out.ResyncedCount++
			out.ResyncedOrders = append(out.ResyncedOrders, r.OrderID)
			continue
		}
		out.Errors = append(out.Errors, r.Error)
	}

	out.Success = out.ResyncedCount > 0
	if out.Success {
		out.Message = fmt.Sprintf("Successfully resynced %d out of %d webhooks", out.ResyncedCount, len(orderIDs))
	} else {
		out.Message = "No webhooks were resynced"
	}

	if c.cfg.LoggingEnabled {
		log.Infow("paytiko webhook resync batch completed",
			"order_ids", orderIDs,
			"success_count", out.ResyncedCount,
			"total_count", len(orderIDs),
			"errors", out.Errors,
		)
	}
	return out
}

// ResyncOne asks the gateway to resync an order. Every response is appended
// to the transaction's audit trail; a successful resync is followed by
// payload extraction and a local update.
func (c *Coordinator) ResyncOne(ctx context.Context, orderID string) *ResyncResult {
	orderID = strings.TrimSpace(orderID)
	if c.cfg.LoggingEnabled {
		log.Infow("paytiko webhook resync requested", "order_id", orderID)
	}

	q := url.Values{queryMerchantOrder: {orderID}}
	data, err := c.client.do(ctx, http.MethodPost, resyncPath, q, nil, errorMessageFirst)
	if err != nil {
		te := asTransportError(err)
		c.audit(ctx, orderID, models.AuditActionResyncError, auditBody(te))
		log.Errorw("paytiko webhook resync failed", "order_id", orderID, "error", te.Message, "error_data", te.Data)
		return &ResyncResult{OrderID: orderID, Error: te.Message, ErrorData: te.Data}
	}

	c.audit(ctx, orderID, models.AuditActionResync, data)

	res := &ResyncResult{OrderID: orderID, Success: truthy(data["isSuccess"])}
	if res.Success {
		res.Message = "Webhook resynced successfully"
		c.convergeFromGateway(ctx, orderID)
	} else {
		res.Message = stringOr(data["errorMessage"], "Unknown error")
		res.Error = res.Message
	}

	if c.cfg.LoggingEnabled {
		log.Infow("paytiko webhook resync completed", "order_id", orderID, "response", data)
	}
	return res
}

// ResyncByDateRange delegates a range resync to the gateway. Counts and order
// ids are reported as the gateway returns them.
func (c *Coordinator) ResyncByDateRange(ctx context.Context, startDate, endDate string, transactionTypes []string) *DateRangeResyncResult {
	body := map[string]any{"startDate": startDate, "endDate": endDate}
	if len(transactionTypes) > 0 {
		body["transactionTypes"] = transactionTypes
	}
	if c.cfg.LoggingEnabled {
		log.Infow("paytiko webhook resync by date range requested",
			"start_date", startDate, "end_date", endDate, "transaction_types", transactionTypes)
	}

	data, err := c.client.do(ctx, http.MethodPost, resyncByDatePath, nil, body, titleOnly)
	if err != nil {
		te := asTransportError(err)
		log.Errorw("paytiko webhook resync by date range failed",
			"start_date", startDate, "end_date", endDate, "error", te.Message, "error_data", te.Data)
		return &DateRangeResyncResult{ResyncedOrders: []string{}, Error: te.Message, ErrorData: te.Data}
	}

	out := &DateRangeResyncResult{
		Success:        true,
		ResyncedCount:  toInt(data["resyncedCount"]),
		Message:        stringOr(data["message"], defaultDateRangeMsg),
		ResyncedOrders: toStrings(data["resyncedOrders"]),
	}
	if c.cfg.LoggingEnabled {
		log.Infow("paytiko webhook resync by date range completed",
			"start_date", startDate, "end_date", endDate, "resynced_count", out.ResyncedCount)
	}
	return out
}

// Status fetches the progress of a resync job once. Callers poll.
func (c *Coordinator) Status(ctx context.Context, resyncID string) *ResyncStatus {
	data, err := c.client.do(ctx, http.MethodGet, resyncStatusPath+url.PathEscape(resyncID), nil, nil, titleOnly)
	if err != nil {
		te := asTransportError(err)
		log.Errorw("paytiko webhook resync status check failed", "resync_id", resyncID, "error", te.Message, "error_data", te.Data)
		return &ResyncStatus{Error: te.Message, ErrorData: te.Data}
	}
	return &ResyncStatus{
		Success:           true,
		Status:            stringOr(data["status"], "unknown"),
		Progress:          toFloat(data["progress"]),
		TotalWebhooks:     toInt(data["totalWebhooks"]),
		ProcessedWebhooks: toInt(data["processedWebhooks"]),
		FailedWebhooks:    toInt(data["failedWebhooks"]),
	}
}

// ExtractPayload fetches the webhook payload the gateway stored for an order.
// Every outcome is appended to the audit trail.
func (c *Coordinator) ExtractPayload(ctx context.Context, orderID string) *ExtractResult {
	orderID = strings.TrimSpace(orderID)
	if c.cfg.LoggingEnabled {
		log.Infow("paytiko webhook payload extraction requested", "order_id", orderID)
	}

	q := url.Values{queryMerchantOrder: {orderID}}
	data, err := c.client.do(ctx, http.MethodGet, extractPayloadPath, q, nil, errorMessageFirst)
	if err != nil {
		te := asTransportError(err)
		c.audit(ctx, orderID, models.AuditActionExtractPayloadError, auditBody(te))
		log.Errorw("paytiko webhook payload extraction failed", "order_id", orderID, "error", te.Message, "error_data", te.Data)
		return &ExtractResult{OrderID: orderID, Error: te.Message, ErrorData: te.Data}
	}

	c.audit(ctx, orderID, models.AuditActionExtractPayload, data)

	res := &ExtractResult{OrderID: orderID, Success: truthy(data["isSuccess"])}
	if obj, ok := data["resultObject"].(map[string]any); ok {
		res.Payload = obj
	}
	if res.Success {
		res.Message = "Payload extracted successfully"
	} else {
		res.Message = stringOr(data["errorMessage"], "Unknown error")
		res.Error = res.Message
	}
	if c.cfg.LoggingEnabled {
		log.Infow("paytiko webhook payload extraction completed", "order_id", orderID, "success", res.Success)
	}
	return res
}

// ProcessResyncedWebhook ingests a payload replayed by an operator. It is
// parsed like a live delivery, the payment method snapshot is refreshed and
// the same received event is published.
func (c *Coordinator) ProcessResyncedWebhook(ctx context.Context, payload map[string]any) (*WebhookEvent, error) {
	raw, _ := json.Marshal(payload)
	delivery := &models.WebhookDelivery{
		Source:         models.WebhookSourceReplay,
		SignatureValid: c.cfg.VerifySignature,
		PayloadJSON:    string(raw),
	}
	delivery.OrderID, _ = payload["OrderId"].(string)
	delivery.TransactionType, _ = payload["TransactionType"].(string)
	delivery.Status, _ = payload["TransactionStatus"].(string)

	ev, err := c.processResynced(ctx, payload)
	if err != nil {
		delivery.State = string(StateFailed)
		delivery.ProcessingError = err.Error()
		log.Errorw("paytiko resynced webhook processing failed", "error", err, "payload", string(raw))
	} else {
		delivery.State = string(StateDispatched)
		if c.cfg.LoggingEnabled {
			log.Infow("paytiko resynced webhook processed",
				"order_id", ev.OrderID, "transaction_id", ev.TransactionID, "status", ev.TransactionStatus)
		}
	}
	recordDelivery(ctx, c.journal, c.archive, delivery, raw)
	return ev, err
}

func (c *Coordinator) processResynced(ctx context.Context, payload map[string]any) (*WebhookEvent, error) {
	ev, err := ParseWebhookPayload(payload)
	if err != nil {
		return nil, err
	}

	snap := ClassifyWebhook(ev)
	if snap != nil {
		err := c.store.Update(ctx, ev.OrderID, func(tx *models.Transaction) error {
			if !snap.ShouldApply(tx) {
				return ErrNoChange
			}
			snap.Apply(tx)
			return nil
		})
		switch {
		case errors.Is(err, ErrTransactionNotFound):
			log.Warnw("paytiko transaction not found for payment method update", "order_id", ev.OrderID)
		case err != nil:
			log.Errorw("paytiko payment method update failed", "order_id", ev.OrderID, "error", err)
		}
	}

	if err := c.events.Publish(ctx, Event{Name: EventWebhookReceived, Webhook: ev, Payload: payload}); err != nil {
		return ev, &ProcessingError{OrderID: ev.OrderID, Err: err}
	}
	return ev, nil
}

// ConvergenceListener returns a listener that applies live, non-refund
// webhooks to the stored transaction with the same mapping a resync uses.
func (c *Coordinator) ConvergenceListener() Listener {
	return func(ctx context.Context, ev Event) error {
		if ev.Webhook == nil || ev.Payload == nil || ev.Webhook.IsRefund() {
			return nil
		}
		c.ApplyPayload(ctx, ev.Webhook.OrderID, ev.Payload)
		return nil
	}
}

// convergeFromGateway applies the extracted payload like the live listener
// does: refunds are audited but never rewrite the payment's status.
func (c *Coordinator) convergeFromGateway(ctx context.Context, orderID string) {
	ex := c.ExtractPayload(ctx, orderID)
	if !ex.Success || ex.Payload == nil {
		return
	}
	if strings.EqualFold(stringOr(ex.Payload["TransactionType"], ""), "refund") {
		if c.cfg.LoggingEnabled {
			log.Infow("paytiko resynced refund payload not applied", "order_id", orderID)
		}
		return
	}
	c.ApplyPayload(ctx, orderID, ex.Payload)
}

// ApplyPayload maps a gateway payload onto the stored transaction: status,
// timestamps, decline details, payment method and metadata. A missing
// transaction is logged and ignored.
func (c *Coordinator) ApplyPayload(ctx context.Context, orderID string, payload map[string]any) {
	gatewayStatus := stringOr(payload["TransactionStatus"], "")
	status := MapStatus(gatewayStatus)
	var oldStatus models.PaymentStatus
	var txID uint

	err := c.store.Update(ctx, orderID, func(tx *models.Transaction) error {
		oldStatus, txID = tx.Status, tx.ID
		now := c.now().UTC()

		tx.Status = status
		switch status {
		case models.PaymentStatusSucceeded:
			tx.ProcessedAt = &now
			tx.FailedAt = nil
		case models.PaymentStatusFailed:
			tx.FailedAt = &now
			tx.ErrorCode = optionalString(payload["DeclineReasonCode"])
			tx.ErrorMessage = optionalString(payload["DeclineReasonText"])
		}

		if snap := ClassifyPayload(payload); snap.ShouldApply(tx) {
			snap.Apply(tx)
		}

		amount := payload["InitialAmount"]
		if amount == nil {
			amount = payload["Amount"]
		}
		return tx.MergeMetadata(map[string]any{
			"paytiko_transaction_id":  payload["TransactionId"],
			"external_transaction_id": payload["ExternalTransactionId"],
			"payment_processor":       payload["PaymentProcessor"],
			"card_type":               payload["CardType"],
			"last_cc_digits":          payload["LastCcDigits"],
			"masked_pan":              payload["MaskedPan"],
			"currency":                payload["Currency"],
			"amount":                  amount,
			"resync_updated_at":       now.Format(time.RFC3339),
		})
	})
	switch {
	case errors.Is(err, ErrTransactionNotFound):
		log.Warnw("paytiko transaction not found for payload update", "order_id", orderID)
	case err != nil:
		log.Errorw("paytiko transaction update from payload failed", "order_id", orderID, "error", err)
	case c.cfg.LoggingEnabled:
		log.Infow("paytiko transaction updated from payload",
			"order_id", orderID,
			"transaction_id", txID,
			"old_status", oldStatus,
			"new_status", status,
			"paytiko_status", gatewayStatus,
		)
	}
}

// audit appends a gateway response to the transaction's resync trail.
func (c *Coordinator) audit(ctx context.Context, orderID, action string, response any) {
	err := c.store.Update(ctx, orderID, func(tx *models.Transaction) error {
		return tx.AppendAudit(models.AuditEntry{
			Action:    action,
			Timestamp: c.now().UTC().Format(time.RFC3339),
			Response:  response,
		})
	})
	switch {
	case errors.Is(err, ErrTransactionNotFound):
		log.Warnw("paytiko transaction not found for processor response storage", "order_id", orderID, "action", action)
	case err != nil:
		log.Errorw("paytiko processor response storage failed", "order_id", orderID, "action", action, "error", err)
	}
}

func auditBody(te *TransportError) any {
	if te.Data != nil {
		return te.Data
	}
	return map[string]any{"error": te.Message}
}

// truthy accepts the gateway's boolean flags in bool, numeric and string form.
func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case json.Number:
		f, err := b.Float64()
		return err == nil && f != 0
	case float64:
		return b != 0
	case int:
		return b != 0
	case string:
		ok, _ := strconv.ParseBool(strings.TrimSpace(b))
		return ok
	}
	return false
}

func stringOr(v any, def string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}

func optionalString(v any) *string {
	s, ok := scalarString(v)
	if !ok || s == "" {
		return nil
	}
	return &s
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case json.Number:
		f, _ := n.Float64()
		return f
	case float64:
		return n
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	}
	return 0
}

func toInt(v any) int {
	return int(toFloat(v))
}

func toStrings(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := scalarString(it); ok {
			out = append(out, s)
		}
	}
	return out
}

package paytiko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/ManuelReschke/cashier-paytiko/app/models"
	"github.com/gofiber/fiber/v2/log"
)

// DispatchState is the stage a webhook delivery reached.
type DispatchState string

const (
	StateReceived   DispatchState = "received"
	StateVerified   DispatchState = "verified"
	StateParsed     DispatchState = "parsed"
	StateClassified DispatchState = "classified"
	StateDispatched DispatchState = "dispatched"
	StateRejected   DispatchState = "rejected"
	StateFailed     DispatchState = "failed"
)

// DispatchResult is the terminal outcome of one delivery. Err is
// ErrInvalidSignature for rejected deliveries and the underlying failure for
// failed ones.
type DispatchResult struct {
	State   DispatchState
	Event   *WebhookEvent
	Outcome EventName
	Err     error
}

// DeliveryJournal stores a record of every handled delivery.
type DeliveryJournal interface {
	RecordDelivery(ctx context.Context, d *models.WebhookDelivery) error
}

// PayloadArchiver keeps a copy of a payload that could not be processed and
// returns the key it was stored under.
type PayloadArchiver interface {
	ArchivePayload(ctx context.Context, d *models.WebhookDelivery, raw []byte) (string, error)
}

type options struct {
	journal DeliveryJournal
	archive PayloadArchiver
}

// Option wires an optional collaborator into a Dispatcher or Coordinator.
type Option func(*options)

func WithJournal(j DeliveryJournal) Option {
	return func(o *options) { o.journal = j }
}

func WithArchiver(a PayloadArchiver) Option {
	return func(o *options) { o.archive = a }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Dispatcher verifies, parses and publishes inbound webhooks.
type Dispatcher struct {
	options
	cfg    Config
	signer *Signer
	events Publisher
}

func NewDispatcher(cfg Config, signer *Signer, events Publisher, opts ...Option) *Dispatcher {
	return &Dispatcher{options: buildOptions(opts), cfg: cfg, signer: signer, events: events}
}

// Handle runs a raw webhook body through the pipeline. It never panics;
// processing panics end in StateFailed.
func (d *Dispatcher) Handle(ctx context.Context, raw []byte) (res DispatchResult) {
	res.State = StateReceived
	delivery := &models.WebhookDelivery{Source: models.WebhookSourceLive, PayloadJSON: string(raw)}

	defer func() {
		if r := recover(); r != nil {
			res.State = StateFailed
			res.Err = fmt.Errorf("webhook processing panic: %v", r)
			log.Errorw("paytiko webhook processing panicked", "error", res.Err, "stack", string(debug.Stack()))
		}
		delivery.State = string(res.State)
		if res.Err != nil && !errors.Is(res.Err, ErrInvalidSignature) {
			delivery.ProcessingError = res.Err.Error()
		}
		recordDelivery(ctx, d.journal, d.archive, delivery, raw)
	}()

	payload, decodeErr := DecodePayload(raw)
	if payload != nil {
		delivery.OrderID, _ = payload["OrderId"].(string)
		delivery.TransactionType, _ = payload["TransactionType"].(string)
		delivery.Status, _ = payload["TransactionStatus"].(string)
	}

	if d.cfg.VerifySignature {
		if payload == nil || !d.signer.VerifyPayload(payload) {
			log.Warnw("paytiko webhook signature verification failed", "payload", redactPayload(payload, raw))
			res.State = StateRejected
			res.Err = ErrInvalidSignature
			return res
		}
		delivery.SignatureValid = true
	}
	res.State = StateVerified

	if decodeErr != nil {
		res.State = StateFailed
		res.Err = decodeErr
		d.logFailure(res.Err, raw)
		return res
	}

	ev, err := ParseWebhookPayload(payload)
	if err != nil {
		res.State = StateFailed
		res.Err = err
		d.logFailure(err, raw)
		return res
	}
	res.State = StateParsed
	res.Event = ev

	res.Outcome = OutcomeFor(ev)
	res.State = StateClassified

	if err := d.events.Publish(ctx, Event{Name: EventWebhookReceived, Webhook: ev, Payload: payload}); err != nil {
		res.State = StateFailed
		res.Err = err
		d.logFailure(err, raw)
		return res
	}
	if err := d.events.Publish(ctx, Event{Name: res.Outcome, Webhook: ev}); err != nil {
		res.State = StateFailed
		res.Err = err
		d.logFailure(err, raw)
		return res
	}
	res.State = StateDispatched

	if d.cfg.LoggingEnabled {
		log.Infow("paytiko webhook processed",
			"order_id", ev.OrderID,
			"transaction_id", ev.TransactionID,
			"status", ev.TransactionStatus,
			"type", ev.TransactionType,
		)
	}
	return res
}

func (d *Dispatcher) logFailure(err error, raw []byte) {
	log.Errorw("paytiko webhook processing failed", "error", err, "payload", string(raw))
}

// OutcomeFor picks the single outcome event for a parsed webhook. Refunds
// take precedence over status.
func OutcomeFor(ev *WebhookEvent) EventName {
	switch {
	case ev.IsRefund():
		return EventRefundProcessed
	case ev.IsSuccessful():
		return EventPaymentSuccessful
	default:
		return EventPaymentFailed
	}
}

// recordDelivery journals a delivery, archiving the body first when it was
// rejected or failed. Journal and archive errors are logged only.
func recordDelivery(ctx context.Context, journal DeliveryJournal, archive PayloadArchiver, d *models.WebhookDelivery, raw []byte) {
	if archive != nil && (d.State == string(StateRejected) || d.State == string(StateFailed)) {
		key, err := archive.ArchivePayload(ctx, d, raw)
		if err != nil {
			log.Warnw("paytiko webhook archive failed", "order_id", d.OrderID, "error", err)
		} else {
			d.ArchiveKey = key
		}
	}
	if journal == nil {
		return
	}
	if err := journal.RecordDelivery(ctx, d); err != nil {
		log.Warnw("paytiko webhook journal write failed", "order_id", d.OrderID, "error", err)
	}
}

// redactPayload renders a payload for logs, dropping any key that looks like
// a credential.
func redactPayload(payload map[string]any, raw []byte) string {
	if payload == nil {
		return string(raw)
	}
	clean := make(map[string]any, len(payload))
	for k, v := range payload {
		if strings.Contains(strings.ToLower(k), "secret") {
			continue
		}
		clean[k] = v
	}
	b, err := json.Marshal(clean)
	if err != nil {
		return ""
	}
	return string(b)
}

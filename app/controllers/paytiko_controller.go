package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/cashier-paytiko/app/models"
	"github.com/ManuelReschke/cashier-paytiko/app/repository"
	"github.com/ManuelReschke/cashier-paytiko/internal/pkg/paytiko"
)

const webhookTimeout = 15 * time.Second

type webhookHandler interface {
	Handle(ctx context.Context, raw []byte) paytiko.DispatchResult
}

type resyncService interface {
	ResyncMany(ctx context.Context, orderIDs []string) *paytiko.BatchResyncResult
	ResyncByDateRange(ctx context.Context, startDate, endDate string, transactionTypes []string) *paytiko.DateRangeResyncResult
	Status(ctx context.Context, resyncID string) *paytiko.ResyncStatus
	ProcessResyncedWebhook(ctx context.Context, payload map[string]any) (*paytiko.WebhookEvent, error)
}

type charger interface {
	Charge(ctx context.Context, data paytiko.PaymentData) (*paytiko.PaymentResult, error)
}

type deliveryLister interface {
	ListRecent(ctx context.Context, filter repository.DeliveryFilter) ([]models.WebhookDelivery, error)
	CountByState(ctx context.Context) (map[string]int64, error)
}

// PaytikoController serves the gateway webhook and the operator endpoints.
type PaytikoController struct {
	cfg        paytiko.Config
	signer     *paytiko.Signer
	webhooks   webhookHandler
	resync     resyncService
	charges    charger
	deliveries deliveryLister
}

func NewPaytikoController(cfg paytiko.Config, signer *paytiko.Signer, webhooks webhookHandler, resync resyncService, charges charger, deliveries deliveryLister) *PaytikoController {
	return &PaytikoController{
		cfg:        cfg,
		signer:     signer,
		webhooks:   webhooks,
		resync:     resync,
		charges:    charges,
		deliveries: deliveries,
	}
}

// HandleWebhook receives a live Paytiko notification.
func (pc *PaytikoController) HandleWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)

	ctx, cancel := context.WithTimeout(c.UserContext(), webhookTimeout)
	defer cancel()

	res := pc.webhooks.Handle(ctx, rawBody)
	switch res.State {
	case paytiko.StateDispatched:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "success"})
	case paytiko.StateRejected:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid signature"})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Webhook processing failed"})
}

// HandleResync resyncs the given order ids one after another.
func (pc *PaytikoController) HandleResync(c *fiber.Ctx) error {
	var req paytiko.ResyncRequest
	if err := decodeBody(c, &req); err != nil {
		return validationFailed(c, err)
	}
	if err := req.Validate(); err != nil {
		return validationFailed(c, err)
	}

	result := pc.resync.ResyncMany(c.UserContext(), req.OrderIDs)
	if !result.Success {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":      result.Message,
			"error_data": fiber.Map{"errors": result.Errors},
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success":         true,
		"message":         result.Message,
		"resynced_count":  result.ResyncedCount,
		"resynced_orders": result.ResyncedOrders,
	})
}

// HandleResyncByDateRange asks the gateway to redeliver a window of webhooks.
func (pc *PaytikoController) HandleResyncByDateRange(c *fiber.Ctx) error {
	var req paytiko.DateRangeRequest
	if err := decodeBody(c, &req); err != nil {
		return validationFailed(c, err)
	}
	if err := req.Validate(); err != nil {
		return validationFailed(c, err)
	}

	result := pc.resync.ResyncByDateRange(c.UserContext(), req.StartDate, req.EndDate, req.TransactionTypes)
	if !result.Success {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":      result.Error,
			"error_data": result.ErrorData,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success":         true,
		"message":         result.Message,
		"resynced_count":  result.ResyncedCount,
		"resynced_orders": result.ResyncedOrders,
	})
}

func (pc *PaytikoController) HandleResyncStatus(c *fiber.Ctx) error {
	resyncID := strings.TrimSpace(c.Params("resyncId"))
	if resyncID == "" {
		return validationFailed(c, &paytiko.ValidationError{Fields: map[string][]string{
			"resync_id": {"The resync id field is required."},
		}})
	}

	status := pc.resync.Status(c.UserContext(), resyncID)
	if !status.Success {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":      status.Error,
			"error_data": status.ErrorData,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success":            true,
		"status":             status.Status,
		"progress":           status.Progress,
		"total_webhooks":     status.TotalWebhooks,
		"processed_webhooks": status.ProcessedWebhooks,
		"failed_webhooks":    status.FailedWebhooks,
	})
}

// HandleProcessResynced replays a stored webhook payload submitted by an operator.
func (pc *PaytikoController) HandleProcessResynced(c *fiber.Ctx) error {
	payload, err := paytiko.DecodePayload(c.Body())
	if err != nil {
		return validationFailed(c, err)
	}

	if pc.cfg.VerifySignature && !pc.signer.VerifyPayload(payload) {
		log.Warnw("paytiko resynced webhook signature verification failed", "order_id", payload["OrderId"])
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid signature"})
	}

	if _, err := pc.resync.ProcessResyncedWebhook(c.UserContext(), payload); err != nil {
		var pe *paytiko.ParseError
		if errors.As(err, &pe) {
			return validationFailed(c, err)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process resynced webhook"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": "Resynced webhook processed successfully",
	})
}

// HandleCreateHostedPage creates a hosted payment page for the posted charge.
func (pc *PaytikoController) HandleCreateHostedPage(c *fiber.Ctx) error {
	var data paytiko.PaymentData
	if err := decodeBody(c, &data); err != nil {
		return validationFailed(c, err)
	}

	result, err := pc.charges.Charge(c.UserContext(), data)
	if err != nil {
		var ve *paytiko.ValidationError
		if errors.As(err, &ve) {
			return validationFailed(c, ve)
		}
		var pe *paytiko.ProcessingError
		if errors.As(err, &pe) && pe.Message != "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": pe.Message})
		}
		log.Errorw("paytiko hosted page creation failed", "order_id", data.OrderID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Payment processing failed"})
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

// HandleListDeliveries lists journaled webhook deliveries with per-state totals.
func (pc *PaytikoController) HandleListDeliveries(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	filter := repository.DeliveryFilter{
		OrderID: strings.TrimSpace(c.Query("order_id")),
		State:   strings.TrimSpace(c.Query("state")),
		Source:  strings.TrimSpace(c.Query("source")),
		Limit:   limit,
	}

	deliveries, err := pc.deliveries.ListRecent(c.UserContext(), filter)
	if err != nil {
		log.Errorw("webhook delivery listing failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to list webhook deliveries"})
	}
	counts, err := pc.deliveries.CountByState(c.UserContext())
	if err != nil {
		log.Errorw("webhook delivery counting failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to list webhook deliveries"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"deliveries": deliveries,
		"counts":     counts,
	})
}

func decodeBody(c *fiber.Ctx, v any) error {
	body := c.Body()
	if len(body) == 0 {
		body = []byte("{}")
	}
	if err := json.Unmarshal(body, v); err != nil {
		ve := &paytiko.ValidationError{}
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) && te.Field != "" {
			ve.Add(te.Field, "The "+strings.ReplaceAll(te.Field, "_", " ")+" field has an invalid type.")
		} else {
			ve.Add("body", "The request body must be valid JSON.")
		}
		return ve
	}
	return nil
}

func validationFailed(c *fiber.Ctx, err error) error {
	var ve *paytiko.ValidationError
	if errors.As(err, &ve) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "Validation failed", "errors": ve.Fields})
	}
	var pe *paytiko.ParseError
	if errors.As(err, &pe) {
		field := pe.Field
		if field == "" {
			field = "payload"
		}
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":  "Validation failed",
			"errors": fiber.Map{field: []string{pe.Error()}},
		})
	}
	return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
		"error":  "Validation failed",
		"errors": fiber.Map{"body": []string{"The request body must be valid JSON."}},
	})
}

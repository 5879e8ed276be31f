package paytiko

import (
	"strings"

	"github.com/ManuelReschke/cashier-paytiko/app/models"
)

// MapStatus converts a Paytiko transaction status into the internal payment
// status. Unknown and empty values map to pending.
func MapStatus(status string) models.PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "success", "approved", "completed":
		return models.PaymentStatusSucceeded
	case "rejected", "declined", "failed":
		return models.PaymentStatusFailed
	case "pending", "processing":
		return models.PaymentStatusProcessing
	case "canceled", "cancelled":
		return models.PaymentStatusCanceled
	case "requires_action", "action_required":
		return models.PaymentStatusRequiresAction
	case "requires_capture":
		return models.PaymentStatusRequiresCapture
	case "requires_confirmation":
		return models.PaymentStatusRequiresConfirmation
	default:
		return models.PaymentStatusPending
	}
}

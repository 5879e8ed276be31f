package models

import "time"

// Webhook delivery sources.
const (
	WebhookSourceLive   = "live"
	WebhookSourceReplay = "replay"
)

// WebhookDelivery journals every inbound Paytiko notification together with
// the state the dispatcher reached, for diagnosis of rejected or failed calls.
type WebhookDelivery struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Source          string    `gorm:"type:varchar(20);not null;default:'live';index" json:"source"`
	OrderID         string    `gorm:"type:varchar(191);not null;default:'';index" json:"order_id"`
	TransactionType string    `gorm:"type:varchar(50);not null;default:''" json:"transaction_type"`
	Status          string    `gorm:"type:varchar(50);not null;default:''" json:"status"`
	State           string    `gorm:"type:varchar(20);not null;index" json:"state"`
	SignatureValid  bool      `gorm:"default:false;index" json:"signature_valid"`
	PayloadJSON     string    `gorm:"type:text;not null" json:"payload_json"`
	ProcessingError string    `gorm:"type:text" json:"processing_error"`
	ArchiveKey      string    `gorm:"type:varchar(255);not null;default:''" json:"archive_key"`
	CreatedAt       time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ProcessorPaytiko is the processor_name stamped on every Paytiko transaction.
const ProcessorPaytiko = "paytiko"

// PaymentStatus is the internal lifecycle status of a transaction.
type PaymentStatus string

const (
	PaymentStatusPending              PaymentStatus = "pending"
	PaymentStatusProcessing           PaymentStatus = "processing"
	PaymentStatusSucceeded            PaymentStatus = "succeeded"
	PaymentStatusFailed               PaymentStatus = "failed"
	PaymentStatusCanceled             PaymentStatus = "canceled"
	PaymentStatusRequiresAction       PaymentStatus = "requires_action"
	PaymentStatusRequiresCapture      PaymentStatus = "requires_capture"
	PaymentStatusRequiresConfirmation PaymentStatus = "requires_confirmation"
)

// Audit actions appended to processor_response.webhook_resync.
const (
	AuditActionResync              = "resync"
	AuditActionResyncError         = "resync_error"
	AuditActionExtractPayload      = "extract_payload"
	AuditActionExtractPayloadError = "extract_payload_error"
)

const processorResponseResyncKey = "webhook_resync"

// Transaction is the locally stored payment record reconciled against the
// gateway. Metadata and ProcessorResponse are JSON documents kept as text so
// the table works the same on MySQL and PostgreSQL.
type Transaction struct {
	ID                       uint            `gorm:"primaryKey" json:"id"`
	ProcessorName            string          `gorm:"type:varchar(50);not null;index:idx_transactions_processor_ref,priority:1" json:"processor_name"`
	ProcessorTransactionID   string          `gorm:"type:varchar(191);not null;default:'';index:idx_transactions_processor_ref,priority:2" json:"processor_transaction_id"`
	Amount                   decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"amount"`
	Currency                 string          `gorm:"type:varchar(3);not null;default:''" json:"currency"`
	Status                   PaymentStatus   `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`
	ProcessedAt              *time.Time      `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	FailedAt                 *time.Time      `gorm:"type:timestamp;default:null" json:"failed_at,omitempty"`
	ErrorCode                *string         `gorm:"type:varchar(100);default:null" json:"error_code,omitempty"`
	ErrorMessage             *string         `gorm:"type:text" json:"error_message,omitempty"`
	PaymentMethodType        string          `gorm:"type:varchar(32);not null;default:''" json:"payment_method_type"`
	PaymentMethodBrand       string          `gorm:"type:varchar(50);not null;default:''" json:"payment_method_brand"`
	PaymentMethodLastFour    string          `gorm:"type:varchar(4);not null;default:''" json:"payment_method_last_four"`
	PaymentMethodDisplayName string          `gorm:"type:varchar(191);not null;default:''" json:"payment_method_display_name"`
	MetadataJSON             string          `gorm:"column:metadata;type:text" json:"-"`
	ProcessorResponseJSON    string          `gorm:"column:processor_response;type:text" json:"-"`
	CreatedAt                time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// AuditEntry is one append-only record of a gateway call made for this transaction.
type AuditEntry struct {
	Action    string `json:"action"`
	Timestamp string `json:"timestamp"`
	Response  any    `json:"response"`
}

// Metadata decodes the metadata document. Invalid or empty JSON yields an empty map.
func (t *Transaction) Metadata() map[string]any {
	out := map[string]any{}
	if t.MetadataJSON == "" {
		return out
	}
	if err := json.Unmarshal([]byte(t.MetadataJSON), &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

// SetMetadata replaces the metadata document.
func (t *Transaction) SetMetadata(m map[string]any) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	t.MetadataJSON = string(b)
	return nil
}

// MergeMetadata overlays values onto the existing metadata, keeping unrelated keys.
func (t *Transaction) MergeMetadata(values map[string]any) error {
	m := t.Metadata()
	for k, v := range values {
		m[k] = v
	}
	return t.SetMetadata(m)
}

// MetadataOrderID returns metadata.order_id when it is a string.
func (t *Transaction) MetadataOrderID() string {
	if v, ok := t.Metadata()["order_id"].(string); ok {
		return v
	}
	return ""
}

// ProcessorResponse decodes the processor_response document.
func (t *Transaction) ProcessorResponse() map[string]any {
	out := map[string]any{}
	if t.ProcessorResponseJSON == "" {
		return out
	}
	if err := json.Unmarshal([]byte(t.ProcessorResponseJSON), &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

// AuditTrail returns the resync audit entries in append order.
func (t *Transaction) AuditTrail() []AuditEntry {
	var doc struct {
		Entries []AuditEntry `json:"webhook_resync"`
	}
	if t.ProcessorResponseJSON == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(t.ProcessorResponseJSON), &doc); err != nil {
		return nil
	}
	return doc.Entries
}

// AppendAudit appends an entry to processor_response.webhook_resync. Existing
// entries and other top-level keys are never rewritten.
func (t *Transaction) AppendAudit(entry AuditEntry) error {
	doc := t.ProcessorResponse()
	var entries []any
	if existing, ok := doc[processorResponseResyncKey].([]any); ok {
		entries = existing
	}
	entries = append(entries, entry)
	doc[processorResponseResyncKey] = entries

	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	t.ProcessorResponseJSON = string(b)
	return nil
}

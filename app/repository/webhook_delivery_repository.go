package repository

import (
	"context"

	"github.com/ManuelReschke/cashier-paytiko/app/models"
	"gorm.io/gorm"
)

// webhookDeliveryRepository implements the WebhookDeliveryRepository interface
type webhookDeliveryRepository struct {
	db *gorm.DB
}

// NewWebhookDeliveryRepository creates a new webhook delivery repository instance
func NewWebhookDeliveryRepository(db *gorm.DB) WebhookDeliveryRepository {
	return &webhookDeliveryRepository{db: db}
}

// RecordDelivery appends a delivery to the journal
func (r *webhookDeliveryRepository) RecordDelivery(ctx context.Context, d *models.WebhookDelivery) error {
	return r.db.WithContext(ctx).Create(d).Error
}

// ListRecent returns the newest deliveries matching the filter
func (r *webhookDeliveryRepository) ListRecent(ctx context.Context, filter DeliveryFilter) ([]models.WebhookDelivery, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	q := r.db.WithContext(ctx).Model(&models.WebhookDelivery{})
	if filter.OrderID != "" {
		q = q.Where("order_id = ?", filter.OrderID)
	}
	if filter.State != "" {
		q = q.Where("state = ?", filter.State)
	}
	if filter.Source != "" {
		q = q.Where("source = ?", filter.Source)
	}

	var out []models.WebhookDelivery
	err := q.Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}

// CountByState returns the number of journaled deliveries per final state
func (r *webhookDeliveryRepository) CountByState(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		State string
		Total int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.WebhookDelivery{}).
		Select("state, COUNT(*) AS total").
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.State] = row.Total
	}
	return out, nil
}

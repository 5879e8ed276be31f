package repository

import (
	"context"

	"github.com/ManuelReschke/cashier-paytiko/app/models"
	"gorm.io/gorm"
)

// TransactionRepository defines the database operations on Paytiko transactions
type TransactionRepository interface {
	Create(ctx context.Context, tx *models.Transaction) error
	GetByOrderID(ctx context.Context, orderID string) (*models.Transaction, error)
	Update(ctx context.Context, orderID string, mutate func(*models.Transaction) error) error
	ListByStatus(ctx context.Context, status models.PaymentStatus, limit int) ([]models.Transaction, error)
}

// WebhookDeliveryRepository defines the operations on the webhook delivery journal
type WebhookDeliveryRepository interface {
	RecordDelivery(ctx context.Context, d *models.WebhookDelivery) error
	ListRecent(ctx context.Context, filter DeliveryFilter) ([]models.WebhookDelivery, error)
	CountByState(ctx context.Context) (map[string]int64, error)
}

// DeliveryFilter narrows ListRecent. Zero values match everything.
type DeliveryFilter struct {
	OrderID string
	State   string
	Source  string
	Limit   int
}

// Locker serializes read-modify-write cycles on a key across processes.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	Transaction     TransactionRepository
	WebhookDelivery WebhookDeliveryRepository
}

// NewRepositories creates a new instance of all repositories. locker may be nil.
func NewRepositories(db *gorm.DB, locker Locker) *Repositories {
	return &Repositories{
		Transaction:     NewTransactionRepository(db, locker),
		WebhookDelivery: NewWebhookDeliveryRepository(db),
	}
}

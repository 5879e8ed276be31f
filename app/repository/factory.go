package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	db     *gorm.DB
	locker Locker
	repos  *Repositories
	once   sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB, locker Locker) *Factory {
	return &Factory{
		db:     db,
		locker: locker,
	}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db, f.locker)
	})
	return f.repos
}

// GetTransactionRepository returns the transaction repository instance
func (f *Factory) GetTransactionRepository() TransactionRepository {
	return f.GetRepositories().Transaction
}

// GetWebhookDeliveryRepository returns the webhook delivery repository instance
func (f *Factory) GetWebhookDeliveryRepository() WebhookDeliveryRepository {
	return f.GetRepositories().WebhookDelivery
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ManuelReschke/cashier-paytiko/app/models"
	"github.com/ManuelReschke/cashier-paytiko/internal/pkg/paytiko"
	"gorm.io/gorm"
)

// metadataScanLimit bounds the candidate rows read by the metadata fallback.
const metadataScanLimit = 50

// transactionRepository implements the TransactionRepository interface
type transactionRepository struct {
	db     *gorm.DB
	locker Locker
}

// NewTransactionRepository creates a new transaction repository instance.
// When locker is set, Update holds a per-order lock for the whole cycle.
func NewTransactionRepository(db *gorm.DB, locker Locker) TransactionRepository {
	return &transactionRepository{db: db, locker: locker}
}

// Create inserts a new transaction
func (r *transactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	if tx.ProcessorName == "" {
		tx.ProcessorName = models.ProcessorPaytiko
	}
	return r.db.WithContext(ctx).Create(tx).Error
}

// GetByOrderID finds the Paytiko transaction for a merchant order id.
func (r *transactionRepository) GetByOrderID(ctx context.Context, orderID string) (*models.Transaction, error) {
	return findByOrderID(r.db.WithContext(ctx), orderID)
}

// Update runs mutate against the current row and saves it in one database
// transaction. A mutate returning paytiko.ErrNoChange skips the save.
func (r *transactionRepository) Update(ctx context.Context, orderID string, mutate func(*models.Transaction) error) error {
	if r.locker != nil {
		unlock, err := r.locker.Lock(ctx, "paytiko:transaction:"+orderID)
		if err != nil {
			return fmt.Errorf("lock transaction %s: %w", orderID, err)
		}
		defer unlock()
	}

	return r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		tx, err := findByOrderID(db, orderID)
		if err != nil {
			return err
		}
		if err := mutate(tx); err != nil {
			if errors.Is(err, paytiko.ErrNoChange) {
				return nil
			}
			return err
		}
		return db.Save(tx).Error
	})
}

// ListByStatus returns the newest transactions in a status
func (r *transactionRepository) ListByStatus(ctx context.Context, status models.PaymentStatus, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	var txs []models.Transaction
	err := r.db.WithContext(ctx).
		Where("processor_name = ? AND status = ?", models.ProcessorPaytiko, status).
		Order("id DESC").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

// findByOrderID looks up by processor_transaction_id first and falls back to
// the order_id embedded in metadata. The fallback narrows candidates with
// LIKE and confirms the decoded value, so it behaves the same on MySQL and
// PostgreSQL text columns.
func findByOrderID(db *gorm.DB, orderID string) (*models.Transaction, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, paytiko.ErrTransactionNotFound
	}

	var tx models.Transaction
	err := db.Where("processor_name = ? AND processor_transaction_id = ?", models.ProcessorPaytiko, orderID).
		First(&tx).Error
	if err == nil {
		return &tx, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// json.Marshal writes <, > and & as \u00XX, so a row stored by this
	// service only contains the escaped form of such ids.
	plain := "%" + escapeLike(orderID) + "%"
	encoded := "%" + escapeLike(jsonString(orderID)) + "%"

	var candidates []models.Transaction
	err = db.Where("processor_name = ? AND (metadata LIKE ? ESCAPE '!' OR metadata LIKE ? ESCAPE '!')",
		models.ProcessorPaytiko, plain, encoded).
		Order("id DESC").
		Limit(metadataScanLimit).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		if candidates[i].MetadataOrderID() == orderID {
			return &candidates[i], nil
		}
	}
	return nil, paytiko.ErrTransactionNotFound
}

// likeEscaper escapes with '!' since MySQL, PostgreSQL and SQLite disagree on
// a default LIKE escape character.
var likeEscaper = strings.NewReplacer(`!`, `!!`, `%`, `!%`, `_`, `!_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// jsonString returns s as it appears inside a marshaled JSON string, without
// the surrounding quotes.
func jsonString(s string) string {
	b, err := json.Marshal(s)
	if err != nil || len(b) < 2 {
		return s
	}
	return string(b[1 : len(b)-1])
}

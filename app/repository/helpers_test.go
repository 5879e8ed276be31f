package repository

import (
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/cashier-paytiko/app/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "paytiko.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Transaction{}, &models.WebhookDelivery{}))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func seedTransaction(t *testing.T, db *gorm.DB, processorTxID string, meta map[string]any) *models.Transaction {
	t.Helper()
	tx := &models.Transaction{
		ProcessorName:          models.ProcessorPaytiko,
		ProcessorTransactionID: processorTxID,
		Currency:               "USD",
		Status:                 models.PaymentStatusPending,
	}
	if meta != nil {
		require.NoError(t, tx.SetMetadata(meta))
	}
	require.NoError(t, db.Create(tx).Error)
	return tx
}

package models

import (
	"gorm.io/gorm"
)

// AutoMigrate keeps the three tables in sync with the model structs. The
// unique index on receipts.access_key is the real duplicate-ingestion
// guarantee; everything above it is an optimization.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Receipt{},
		&LineItem{},
		&GeminiKey{},
	)
}

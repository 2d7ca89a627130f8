package models

import (
	"context"
	"time"

	"github.com/nfce-scan/nfce_backend/config"
	"github.com/shopspring/decimal"
)

// LineItem is one product row of a receipt. ReceiptId is nullable because
// historically items were sometimes persisted before being linked; those
// orphans get re-parented by the rescan workflow. The standardized fields
// stay null until the AI normalization pass fills them.
type LineItem struct {
	ID          int             `gorm:"primary_key" json:"id"`
	ReceiptId   *int            `gorm:"index" json:"receipt_id"`
	Code        string          `gorm:"size:50" json:"code"`
	Description string          `gorm:"type:text;not null" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:decimal(10,4);not null;default:0" json:"quantity"`
	Unit        string          `gorm:"size:10" json:"unit"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"unit_price"`
	TotalPrice  decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"total_price"`

	PackagingType        *string `gorm:"size:50" json:"packaging_type"`
	StandardizedName     *string `gorm:"size:255" json:"standardized_name"`
	Brand                *string `gorm:"size:100" json:"brand"`
	StandardizedQuantity *int    `json:"standardized_quantity"`
	Weight               *string `gorm:"size:20" json:"weight"`
	Category             *string `gorm:"size:50" json:"category"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Receipt *Receipt `gorm:"foreignKey:ReceiptId" json:"receipt,omitempty"`
}

func (LineItem) TableName() string {
	return "line_items"
}

// SearchLineItems matches descriptions by substring, newest first, with the
// owning receipt attached for issuer display.
func SearchLineItems(ctx context.Context, term string) ([]LineItem, error) {
	db := config.GetDB()
	var items []LineItem
	err := db.WithContext(ctx).
		Preload("Receipt").
		Where("description LIKE ?", "%"+term+"%").
		Order("created_at DESC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ListLineItems pages through all items with their receipts. A nil limit
// returns everything, matching the legacy listing contract.
func ListLineItems(ctx context.Context, page int, limit *int) ([]LineItem, int64, error) {
	db := config.GetDB()
	var total int64
	if err := db.WithContext(ctx).Model(&LineItem{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	dbCtx := db.WithContext(ctx).Preload("Receipt").Order("created_at DESC")
	if limit != nil {
		pagination := NewPagination(page, *limit)
		dbCtx = dbCtx.Limit(pagination.Limit).Offset(pagination.Offset())
	}
	var items []LineItem
	if err := dbCtx.Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// FindOrphanLineItems returns every item with no receipt link.
func FindOrphanLineItems(ctx context.Context) ([]LineItem, error) {
	db := config.GetDB()
	var items []LineItem
	err := db.WithContext(ctx).
		Where("receipt_id IS NULL").
		Order("created_at DESC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

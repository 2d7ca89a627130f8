package models

import (
	"context"
	"errors"
	"time"

	"github.com/nfce-scan/nfce_backend/config"
	"github.com/nfce-scan/nfce_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Receipt is one scanned NFC-e. AccessKey is the 44-digit identity; the
// issuer registration columns start empty and are backfilled once the
// registry lookup for the issuer's CNPJ succeeds.
type Receipt struct {
	ID                int    `gorm:"primary_key" json:"id"`
	AccessKey         string `gorm:"size:44;not null;uniqueIndex" json:"access_key"`
	QRVersion         string `gorm:"size:10" json:"qr_version"`
	Environment       string `gorm:"size:1" json:"environment"`
	SecurityToken     string `gorm:"size:20" json:"security_token"`
	SignatureFragment string `gorm:"size:50" json:"signature_fragment"`

	// 20 chars so the masked form fits too
	IssuerTaxId        string `gorm:"size:20;index" json:"issuer_tax_id"`
	IssuerName         string `gorm:"size:255" json:"issuer_name"`
	IssuerRegistration string `gorm:"size:20" json:"issuer_registration"`

	IssuerTradeName string              `gorm:"size:255" json:"issuer_trade_name"`
	RegistryStatus  string              `gorm:"size:50" json:"registry_status"`
	FoundingDate    string              `gorm:"size:10" json:"founding_date"`
	ShareCapital    decimal.NullDecimal `gorm:"type:decimal(15,2)" json:"share_capital"`
	LegalNature     string              `gorm:"size:100" json:"legal_nature"`
	Address         string              `gorm:"size:255" json:"address"`
	PostalCode      string              `gorm:"size:10" json:"postal_code"`
	City            string              `gorm:"size:100" json:"city"`
	StateAbbrev     string              `gorm:"size:2" json:"state_abbrev"`
	Phone           string              `gorm:"size:20" json:"phone"`
	Email           string              `gorm:"size:255" json:"email"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Items []LineItem `gorm:"foreignKey:ReceiptId" json:"items,omitempty"`
}

func (Receipt) TableName() string {
	return "receipts"
}

// ReceiptSummary is the list-view projection.
type ReceiptSummary struct {
	ID         int       `json:"id"`
	AccessKey  string    `json:"access_key"`
	IssuerName string    `json:"issuer_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// FindReceiptByAccessKey returns utils.ErrorRecordNotFound when no receipt
// carries the key.
func FindReceiptByAccessKey(ctx context.Context, accessKey string) (*Receipt, error) {
	db := config.GetDB()
	var receipt Receipt
	err := db.WithContext(ctx).Where("access_key = ?", accessKey).First(&receipt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &receipt, nil
}

// GetReceiptWithItems loads one receipt and its line items.
func GetReceiptWithItems(ctx context.Context, id int) (*Receipt, error) {
	db := config.GetDB()
	var receipt Receipt
	err := db.WithContext(ctx).Preload("Items").First(&receipt, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &receipt, nil
}

// ListReceipts pages through receipts, newest first.
func ListReceipts(ctx context.Context, pagination Pagination) ([]ReceiptSummary, int64, error) {
	db := config.GetDB()
	var total int64
	if err := db.WithContext(ctx).Model(&Receipt{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var results []ReceiptSummary
	err := db.WithContext(ctx).Model(&Receipt{}).
		Select("id", "access_key", "issuer_name", "created_at").
		Order("created_at DESC").
		Limit(pagination.Limit).Offset(pagination.Offset()).
		Find(&results).Error
	if err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

// CreateReceiptWithItems persists a receipt and all of its items inside one
// transaction; any item failure rolls the receipt back too.
func CreateReceiptWithItems(ctx context.Context, receipt *Receipt, items []LineItem) error {
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(receipt).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].ReceiptId = &receipt.ID
			if err := tx.Create(&items[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// FindEnrichedReceiptByTaxId finds any receipt sharing the CNPJ that
// already carries registry data, so a repeat scan of the same issuer never
// re-queries the registry.
func FindEnrichedReceiptByTaxId(ctx context.Context, taxIdForms []string) (*Receipt, error) {
	db := config.GetDB()
	var receipt Receipt
	err := db.WithContext(ctx).
		Where("issuer_tax_id IN ?", taxIdForms).
		Where("issuer_trade_name <> '' OR registry_status <> ''").
		Order("updated_at DESC").
		First(&receipt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &receipt, nil
}

// UpdateReceiptsIssuerByTaxId backfills registry fields onto every receipt
// sharing the CNPJ, in any stored form (masked or bare).
func UpdateReceiptsIssuerByTaxId(ctx context.Context, taxIdForms []string, updates map[string]interface{}) (int64, error) {
	db := config.GetDB()
	result := db.WithContext(ctx).Model(&Receipt{}).
		Where("issuer_tax_id IN ?", taxIdForms).
		Updates(updates)
	return result.RowsAffected, result.Error
}

package workflow

import (
	"context"
	"errors"

	"github.com/nfce-scan/nfce_backend/config"
	"github.com/nfce-scan/nfce_backend/models"
	"github.com/nfce-scan/nfce_backend/nfce"
	"github.com/nfce-scan/nfce_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Rescan ("rebuscar") re-pulls the verification page of a stored receipt
// and reconciles its line items: items already linked here are left alone,
// orphaned rows and rows stuck on the wrong receipt are re-parented in
// place, and anything genuinely new on the page is inserted. All writes
// happen in one transaction.

var (
	ErrKeyMismatch = errors.New("qr code does not belong to this receipt")
)

// valueTolerance absorbs formatting drift between scans ("2,000" vs "2.0").
var valueTolerance = decimal.New(1, -2) // 0.01

// RescanOutcome summarizes one reconciliation run.
type RescanOutcome struct {
	ReceiptId     int      `json:"id"`
	ItemsOnPage   int      `json:"itemsOnPage"`
	AlreadyLinked int      `json:"alreadyLinked"`
	Reparented    int      `json:"reparented"`
	Inserted      int      `json:"inserted"`
	Warnings      []string `json:"warnings,omitempty"`
}

// RescanReceipt re-fetches the page behind qrCode and reconciles it against
// receipt id. The QR code must carry the receipt's own access key; the page
// URL is not stored, so the caller supplies it again.
func (ing *Ingestor) RescanReceipt(ctx context.Context, id int, qrCode string) (*RescanOutcome, error) {
	receipt, err := models.GetReceiptWithItems(ctx, id)
	if err != nil {
		return nil, err
	}

	payload, err := nfce.ParseQRPayload(qrCode)
	if err != nil {
		return nil, err
	}
	if payload.AccessKey != receipt.AccessKey {
		return nil, ErrKeyMismatch
	}

	pageText, err := ing.fetcher.FetchReceiptPage(ctx, qrCode, receipt.AccessKey)
	if err != nil {
		return nil, err
	}
	extracted := nfce.ExtractReceiptText(pageText)

	outcome := &RescanOutcome{ReceiptId: id, ItemsOnPage: len(extracted.Items)}
	if len(extracted.Items) == 0 {
		outcome.Warnings = append(outcome.Warnings, "no line items recognized on the page")
		return outcome, nil
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, pageItem := range extracted.Items {
			quantity := utils.ParseBrazilianDecimal(pageItem.Quantity)
			total := utils.ParseBrazilianDecimal(pageItem.TotalPrice)

			if hasLinkedMatch(receipt.Items, pageItem.Description, quantity, total) {
				outcome.AlreadyLinked++
				continue
			}

			// a previous partial save may have left this row orphaned or
			// linked to the wrong receipt
			var candidates []models.LineItem
			if err := tx.Where("description = ? AND (receipt_id IS NULL OR receipt_id <> ?)", pageItem.Description, id).
				Order("receipt_id IS NULL DESC, created_at DESC").
				Find(&candidates).Error; err != nil {
				return err
			}
			if match := pickReparentCandidate(candidates, id, quantity, total); match != nil {
				if err := tx.Model(match).Update("receipt_id", id).Error; err != nil {
					return err
				}
				outcome.Reparented++
				continue
			}

			receiptId := id
			item := models.LineItem{
				ReceiptId:   &receiptId,
				Code:        pageItem.Code,
				Description: pageItem.Description,
				Quantity:    quantity,
				Unit:        pageItem.Unit,
				UnitPrice:   utils.ParseBrazilianDecimal(pageItem.UnitPrice),
				TotalPrice:  total,
			}
			if err := tx.Create(&item).Error; err != nil {
				return err
			}
			outcome.Inserted++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// the cached page text was just consumed; the next rescan should see
	// fresh portal state
	if err := config.RemoveRedisKey("nfcePage:" + receipt.AccessKey); err != nil {
		config.LogError(config.GetLogger(), "workflow", "RescanReceipt", "drop page cache", receipt.AccessKey, err)
	}

	config.GetLogger().WithField("receiptId", id).
		WithField("reparented", outcome.Reparented).
		WithField("inserted", outcome.Inserted).
		Info("receipt rescanned")
	return outcome, nil
}

func hasLinkedMatch(items []models.LineItem, description string, quantity, total decimal.Decimal) bool {
	for _, it := range items {
		if it.Description == description &&
			decimalsClose(it.Quantity, quantity) &&
			decimalsClose(it.TotalPrice, total) {
			return true
		}
	}
	return false
}

// pickReparentCandidate chooses the row to relink for one page item. An
// unlinked row matches on description alone; a row linked to another receipt
// is only taken when its values agree within the tolerance window, so a
// genuinely different item of the same name is never stolen.
func pickReparentCandidate(items []models.LineItem, receiptId int, quantity, total decimal.Decimal) *models.LineItem {
	for i := range items {
		it := &items[i]
		if it.ReceiptId == nil {
			return it
		}
		if *it.ReceiptId != receiptId && decimalsClose(it.Quantity, quantity) && decimalsClose(it.TotalPrice, total) {
			return it
		}
	}
	return nil
}

func decimalsClose(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(valueTolerance)
}

package standardize

import (
	"context"
	"math"
	"strings"

	"github.com/nfce-scan/nfce_backend/config"
	"github.com/nfce-scan/nfce_backend/models"
	"gorm.io/gorm"
)

// Batch standardization of a receipt's line items. Items go to the model
// ten at a time; anything the batch response misses falls back to a
// per-item call. Each item commits in its own small transaction so one bad
// item never loses the rest of the batch.

const batchSize = 10

// ProductAttributes is the normalized shape the model returns per item.
type ProductAttributes struct {
	PackagingType *string  `json:"tipo_embalagem"`
	ProductName   *string  `json:"nome_produto"`
	Brand         *string  `json:"marca"`
	Quantity      *float64 `json:"quantidade"`
	Weight        *string  `json:"peso"`
	Category      *string  `json:"categoria"`
}

type batchElement struct {
	ID     int                `json:"id"`
	Result *ProductAttributes `json:"resultado"`
}

// ItemResult reports the outcome for one line item.
type ItemResult struct {
	ItemId  int    `json:"itemId"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// StandardizeResult summarizes one run over a receipt.
type StandardizeResult struct {
	ReceiptId int          `json:"id"`
	Total     int          `json:"total"`
	Updated   int          `json:"updated"`
	Results   []ItemResult `json:"results"`
}

// StandardizeReceiptItems runs the AI normalization pass over every line
// item of a receipt.
func (s *Service) StandardizeReceiptItems(ctx context.Context, receiptId int) (*StandardizeResult, error) {
	logger := config.GetLogger()

	receipt, err := models.GetReceiptWithItems(ctx, receiptId)
	if err != nil {
		return nil, err
	}

	result := &StandardizeResult{ReceiptId: receiptId, Total: len(receipt.Items)}
	if len(receipt.Items) == 0 {
		return result, nil
	}

	for start := 0; start < len(receipt.Items); start += batchSize {
		end := start + batchSize
		if end > len(receipt.Items) {
			end = len(receipt.Items)
		}
		slice := receipt.Items[start:end]

		byId := s.runBatch(ctx, slice)

		for _, item := range slice {
			if strings.TrimSpace(item.Description) == "" {
				result.Results = append(result.Results, ItemResult{ItemId: item.ID, Error: "empty description"})
				continue
			}

			attrs := byId[item.ID]
			if attrs == nil {
				// the batch response missed this one; ask for it alone
				attrs = s.runSingle(ctx, item.Description)
			}
			if attrs == nil {
				result.Results = append(result.Results, ItemResult{ItemId: item.ID, Error: "model returned no usable result"})
				continue
			}

			if err := applyAttributes(ctx, item.ID, attrs); err != nil {
				config.LogError(logger, "standardize", "StandardizeReceiptItems", "update item", item.ID, err)
				result.Results = append(result.Results, ItemResult{ItemId: item.ID, Error: err.Error()})
				continue
			}
			result.Updated++
			result.Results = append(result.Results, ItemResult{ItemId: item.ID, Success: true})
		}
	}

	logger.WithField("receiptId", receiptId).
		WithField("updated", result.Updated).
		WithField("total", result.Total).
		Info("items standardized")
	return result, nil
}

// runBatch sends one slice to the model; a failed or malformed batch
// response just yields an empty map and the caller falls back per item.
func (s *Service) runBatch(ctx context.Context, items []models.LineItem) map[int]*ProductAttributes {
	inputs := make([]batchInput, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.Description) == "" {
			continue
		}
		inputs = append(inputs, batchInput{ID: it.ID, Description: it.Description})
	}
	if len(inputs) == 0 {
		return nil
	}

	raw, err := s.processWithRotation(ctx, batchPrompt(inputs), 2048)
	if err != nil {
		config.LogError(config.GetLogger(), "standardize", "runBatch", "batch call", len(inputs), err)
		return nil
	}

	var elements []batchElement
	if err := decodeArray(raw, &elements); err != nil {
		config.GetLogger().WithField("error", err.Error()).Warn("batch response unusable; falling back per item")
		return nil
	}

	byId := make(map[int]*ProductAttributes, len(elements))
	for _, el := range elements {
		if el.Result != nil {
			byId[el.ID] = el.Result
		}
	}
	return byId
}

func (s *Service) runSingle(ctx context.Context, description string) *ProductAttributes {
	raw, err := s.processWithRotation(ctx, singleItemPrompt(description), 200)
	if err != nil {
		return nil
	}
	var attrs ProductAttributes
	if err := decodeObject(raw, &attrs); err != nil {
		return nil
	}
	return &attrs
}

// applyAttributes writes the six standardized columns in one small
// transaction.
func applyAttributes(ctx context.Context, itemId int, attrs *ProductAttributes) error {
	updates := map[string]interface{}{
		"packaging_type":        nilIfBlank(attrs.PackagingType),
		"standardized_name":     nilIfBlank(attrs.ProductName),
		"brand":                 nilIfBlank(attrs.Brand),
		"standardized_quantity": roundedQuantity(attrs.Quantity),
		"weight":                nilIfBlank(attrs.Weight),
		"category":              nilIfBlank(attrs.Category),
	}

	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Model(&models.LineItem{}).Where("id = ?", itemId).Updates(updates).Error
	})
}

func nilIfBlank(s *string) interface{} {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return strings.TrimSpace(*s)
}

func roundedQuantity(q *float64) interface{} {
	if q == nil {
		return nil
	}
	return int(math.Round(*q))
}

package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/nfce-scan/nfce_backend/config"
	"github.com/nfce-scan/nfce_backend/models"
	"github.com/nfce-scan/nfce_backend/nfce"
	"github.com/nfce-scan/nfce_backend/registry"
	"github.com/nfce-scan/nfce_backend/utils"
)

// Ingestor drives the scan pipeline: decode the QR payload, pull the
// verification page, extract issuer and items, enrich from the company
// registry, and persist the result exactly once per access key.
type Ingestor struct {
	fetcher  *nfce.Fetcher
	registry *registry.Client
	cache    *registry.EnrichmentCache
	retry    registry.RetryConfig
}

func NewIngestor() *Ingestor {
	return &Ingestor{
		fetcher:  nfce.NewFetcher(),
		registry: registry.NewClient(),
		cache:    registry.NewEnrichmentCache(),
		retry:    registry.DefaultRetryConfig(),
	}
}

// ReceiptDraft is the in-memory shape of a scan before persistence. Item
// values keep their raw Brazilian formatting until commit.
type ReceiptDraft struct {
	QRCode   string               `json:"qrCode"`
	Payload  *nfce.QRPayload      `json:"payload"`
	Issuer   nfce.ExtractedIssuer `json:"emitente"`
	Items    []nfce.ExtractedItem `json:"itens"`
	Registry *registry.IssuerData `json:"-"`
	Warnings []string             `json:"warnings,omitempty"`
}

const (
	OutcomeSaved     = "saved"
	OutcomeDuplicate = "duplicate"
)

// IngestOutcome reports what persisting a draft did.
type IngestOutcome struct {
	Status     string   `json:"status"`
	ReceiptId  int      `json:"id"`
	Message    string   `json:"message"`
	ItemsSaved int      `json:"itemsSaved"`
	Warnings   []string `json:"warnings,omitempty"`
}

// ProcessScan runs the whole pipeline for one scanned QR code. Only a
// malformed payload is fatal; page or registry trouble degrades to a
// receipt with fewer fields and a warning.
func (ing *Ingestor) ProcessScan(ctx context.Context, qrCode string) (*ReceiptDraft, *IngestOutcome, error) {
	draft, err := ing.BuildDraft(ctx, qrCode)
	if err != nil {
		return nil, nil, err
	}
	outcome, err := ing.SaveDraft(ctx, draft)
	if err != nil {
		return draft, nil, err
	}
	return draft, outcome, nil
}

// BuildDraft decodes and scrapes without touching the database.
func (ing *Ingestor) BuildDraft(ctx context.Context, qrCode string) (*ReceiptDraft, error) {
	logger := config.GetLogger()

	payload, err := nfce.ParseQRPayload(qrCode)
	if err != nil {
		return nil, err
	}

	draft := &ReceiptDraft{QRCode: qrCode, Payload: payload}

	pageText, err := ing.fetcher.FetchReceiptPage(ctx, qrCode, payload.AccessKey)
	if err != nil {
		config.LogError(logger, "workflow", "BuildDraft", "fetch receipt page", payload.AccessKey, err)
		draft.Warnings = append(draft.Warnings, "could not fetch the verification page; saving key data only")
	} else {
		extracted := nfce.ExtractReceiptText(pageText)
		draft.Issuer = extracted.Issuer
		draft.Items = extracted.Items
		if len(draft.Items) == 0 {
			draft.Warnings = append(draft.Warnings, "no line items recognized on the page")
		}
	}

	ing.EnrichDraft(ctx, draft)
	return draft, nil
}

// SaveDraft persists a draft idempotently: a key already on file short
// circuits to a duplicate outcome, and the receipt plus all items land in
// one transaction. The unique index on access_key is the final word when
// two saves race.
func (ing *Ingestor) SaveDraft(ctx context.Context, draft *ReceiptDraft) (*IngestOutcome, error) {
	logger := config.GetLogger()
	accessKey := draft.Payload.AccessKey

	if existing, err := models.FindReceiptByAccessKey(ctx, accessKey); err == nil {
		return &IngestOutcome{
			Status:    OutcomeDuplicate,
			ReceiptId: existing.ID,
			Message:   "nota já cadastrada",
			Warnings:  draft.Warnings,
		}, nil
	} else if !errors.Is(err, utils.ErrorRecordNotFound) {
		return nil, err
	}

	// best effort: serialize concurrent saves of the same key so only one
	// pays the insert-and-fail path
	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, "nfceSave:"+accessKey, 10*time.Second, nil)
		if err == nil {
			defer lock.Release(ctx)
		} else if !errors.Is(err, redislock.ErrNotObtained) {
			config.LogError(logger, "workflow", "SaveDraft", "obtain save lock", accessKey, err)
		}
	}

	receipt := receiptFromDraft(draft)
	items := lineItemsFromDraft(draft)

	if err := models.CreateReceiptWithItems(ctx, receipt, items); err != nil {
		// a racing save may have won; the unique index turns that into an
		// insert error, which we report as the duplicate it is
		if winner, findErr := models.FindReceiptByAccessKey(ctx, accessKey); findErr == nil {
			return &IngestOutcome{
				Status:    OutcomeDuplicate,
				ReceiptId: winner.ID,
				Message:   "nota já cadastrada",
				Warnings:  draft.Warnings,
			}, nil
		}
		return nil, err
	}

	logger.WithField("accessKey", accessKey).
		WithField("items", len(items)).
		Info("receipt saved")

	return &IngestOutcome{
		Status:     OutcomeSaved,
		ReceiptId:  receipt.ID,
		Message:    fmt.Sprintf("nota salva com %d itens", len(items)),
		ItemsSaved: len(items),
		Warnings:   draft.Warnings,
	}, nil
}

func receiptFromDraft(draft *ReceiptDraft) *models.Receipt {
	receipt := &models.Receipt{
		AccessKey:          draft.Payload.AccessKey,
		QRVersion:          draft.Payload.Version,
		Environment:        draft.Payload.Environment,
		SecurityToken:      draft.Payload.SecurityToken,
		SignatureFragment:  clipString(draft.Payload.Signature, 50),
		IssuerTaxId:        draft.Issuer.TaxId,
		IssuerName:         draft.Issuer.Name,
		IssuerRegistration: draft.Issuer.StateRegistration,
	}
	if receipt.IssuerTaxId == "" && draft.Payload.Fields != nil {
		receipt.IssuerTaxId = draft.Payload.Fields.IssuerTaxId
	}

	if reg := draft.Registry; reg != nil {
		if reg.LegalName != "" {
			receipt.IssuerName = reg.LegalName
		}
		receipt.IssuerTradeName = reg.TradeName
		receipt.RegistryStatus = reg.RegistryStatus
		receipt.FoundingDate = reg.FoundingDate
		if reg.ShareCapital != nil {
			receipt.ShareCapital.Decimal = *reg.ShareCapital
			receipt.ShareCapital.Valid = true
		}
		receipt.LegalNature = reg.LegalNature
		receipt.Address = reg.Address
		receipt.PostalCode = reg.PostalCode
		receipt.City = reg.City
		receipt.StateAbbrev = reg.StateAbbrev
		receipt.Phone = reg.Phone
		receipt.Email = reg.Email
		if receipt.IssuerRegistration == "" {
			receipt.IssuerRegistration = reg.StateRegistration
		}
	}
	return receipt
}

func lineItemsFromDraft(draft *ReceiptDraft) []models.LineItem {
	items := make([]models.LineItem, 0, len(draft.Items))
	for _, it := range draft.Items {
		items = append(items, models.LineItem{
			Code:        it.Code,
			Description: it.Description,
			Quantity:    utils.ParseBrazilianDecimal(it.Quantity),
			Unit:        it.Unit,
			UnitPrice:   utils.ParseBrazilianDecimal(it.UnitPrice),
			TotalPrice:  utils.ParseBrazilianDecimal(it.TotalPrice),
		})
	}
	return items
}

func clipString(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

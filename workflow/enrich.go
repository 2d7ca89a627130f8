package workflow

import (
	"context"
	"time"

	"github.com/nfce-scan/nfce_backend/config"
	"github.com/nfce-scan/nfce_backend/models"
	"github.com/nfce-scan/nfce_backend/registry"
)

// Registry enrichment for a draft. The lookup chain is: in-process cache,
// redis, then any already-enriched receipt of the same issuer, then the
// registry API with retry. A rate-limited CNPJ enters a short cooldown so
// the next scans of the same issuer skip the doomed call.

const (
	registryCooldown = 60 * time.Second
	// redis copy outlives the in-process cache so sibling instances skip
	// the lookup too
	issuerCacheTTL = time.Hour
)

// EnrichDraft fills draft.Registry when issuer data can be found. It never
// fails the scan; every miss becomes at most a warning on the draft.
func (ing *Ingestor) EnrichDraft(ctx context.Context, draft *ReceiptDraft) {
	logger := config.GetLogger()

	taxId := draft.Issuer.TaxId
	if registry.CleanTaxId(taxId) == "" && draft.Payload.Fields != nil {
		// the access key itself carries the issuer CNPJ
		taxId = draft.Payload.Fields.IssuerTaxId
	}
	cleaned := registry.CleanTaxId(taxId)
	if cleaned == "" {
		draft.Warnings = append(draft.Warnings, "no issuer CNPJ to enrich from")
		return
	}

	if data, ok := ing.cache.Get(cleaned); ok {
		draft.Registry = data
		return
	}

	var cached registry.IssuerData
	if ok, err := config.GetRedisObject("cnpjData:"+cleaned, &cached); err == nil && ok {
		ing.cache.Put(cleaned, &cached)
		draft.Registry = &cached
		return
	}

	forms := TaxIdForms(cleaned)
	if enriched, err := models.FindEnrichedReceiptByTaxId(ctx, forms); err == nil {
		data := issuerDataFromReceipt(enriched)
		ing.cacheIssuerData(cleaned, data)
		draft.Registry = data
		return
	}

	if ing.cache.InCooldown(cleaned) {
		draft.Warnings = append(draft.Warnings, "registry lookup skipped: recent rate limit for this CNPJ")
		return
	}

	result := ing.registry.LookupWithRetry(ctx, cleaned, ing.retry)
	switch result.Status {
	case registry.LookupOk:
		ing.cacheIssuerData(cleaned, result.Data)
		draft.Registry = result.Data
		ing.backfillIssuer(ctx, forms, result.Data)
	case registry.LookupNotFound:
		draft.Warnings = append(draft.Warnings, "CNPJ not found on the registry")
	case registry.LookupRateLimited:
		ing.cache.SetCooldown(cleaned, time.Now().Add(registryCooldown))
		config.LogWarn(logger, "workflow", "EnrichDraft", "registry rate limited", cleaned)
		draft.Warnings = append(draft.Warnings, "registry rate limited; issuer data left for a later scan")
	default:
		config.LogError(logger, "workflow", "EnrichDraft", "registry lookup", cleaned, result.Err)
		draft.Warnings = append(draft.Warnings, "registry lookup failed; issuer data left empty")
	}
}

// cacheIssuerData stores issuer data in both cache levels.
func (ing *Ingestor) cacheIssuerData(cleaned string, data *registry.IssuerData) {
	ing.cache.Put(cleaned, data)
	if err := config.SetRedisObject("cnpjData:"+cleaned, data, issuerCacheTTL); err != nil {
		config.LogError(config.GetLogger(), "workflow", "cacheIssuerData", "cache issuer data", cleaned, err)
	}
}

// backfillIssuer pushes fresh registry data onto every stored receipt of
// the same issuer, so one successful lookup upgrades the whole history.
func (ing *Ingestor) backfillIssuer(ctx context.Context, taxIdForms []string, data *registry.IssuerData) {
	updates := map[string]interface{}{
		"issuer_trade_name": data.TradeName,
		"registry_status":   data.RegistryStatus,
		"founding_date":     data.FoundingDate,
		"legal_nature":      data.LegalNature,
		"address":           data.Address,
		"postal_code":       data.PostalCode,
		"city":              data.City,
		"state_abbrev":      data.StateAbbrev,
		"phone":             data.Phone,
		"email":             data.Email,
	}
	if data.LegalName != "" {
		updates["issuer_name"] = data.LegalName
	}
	if data.ShareCapital != nil {
		updates["share_capital"] = *data.ShareCapital
	}

	rows, err := models.UpdateReceiptsIssuerByTaxId(ctx, taxIdForms, updates)
	if err != nil {
		config.LogError(config.GetLogger(), "workflow", "backfillIssuer", "backfill issuer data", taxIdForms, err)
		return
	}
	if rows > 0 {
		config.GetLogger().WithField("cnpj", registry.CleanTaxId(taxIdForms[0])).
			WithField("receipts", rows).
			Info("issuer data backfilled")
	}
}

// TaxIdForms returns the stored renderings of one CNPJ: bare digits and the
// masked XX.XXX.XXX/XXXX-XX form.
func TaxIdForms(cnpj string) []string {
	bare := registry.CleanTaxId(cnpj)
	if len(bare) != 14 {
		return []string{cnpj}
	}
	masked := bare[0:2] + "." + bare[2:5] + "." + bare[5:8] + "/" + bare[8:12] + "-" + bare[12:14]
	return []string{bare, masked}
}

func issuerDataFromReceipt(r *models.Receipt) *registry.IssuerData {
	data := &registry.IssuerData{
		TaxId:             r.IssuerTaxId,
		LegalName:         r.IssuerName,
		TradeName:         r.IssuerTradeName,
		RegistryStatus:    r.RegistryStatus,
		FoundingDate:      r.FoundingDate,
		LegalNature:       r.LegalNature,
		Address:           r.Address,
		PostalCode:        r.PostalCode,
		City:              r.City,
		StateAbbrev:       r.StateAbbrev,
		Phone:             r.Phone,
		Email:             r.Email,
		StateRegistration: r.IssuerRegistration,
	}
	if r.ShareCapital.Valid {
		capital := r.ShareCapital.Decimal
		data.ShareCapital = &capital
	}
	return data
}

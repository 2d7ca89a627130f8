package main

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nfce-scan/nfce_backend/config"
	"github.com/nfce-scan/nfce_backend/models"
	"github.com/nfce-scan/nfce_backend/nfce"
	"github.com/nfce-scan/nfce_backend/standardize"
	"github.com/nfce-scan/nfce_backend/utils"
	"github.com/nfce-scan/nfce_backend/workflow"
)

// The JSON field names mirror the contract the mobile client already
// speaks: Portuguese keys, nota/itens/emitente shapes.

var numericIdRe = regexp.MustCompile(`^\d+$`)

func statusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"db":     config.GetDB() != nil,
			"redis":  config.GetRedisDB() != nil,
		})
	}
}

type scanRequest struct {
	QRCode string `json:"qrCode" binding:"required"`
}

func processScanHandler(ingestor *workflow.Ingestor) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "scan.process")
		defer span.End()

		var req scanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "QR Code é obrigatório"})
			return
		}

		draft, err := ingestor.BuildDraft(ctx, req.QRCode)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "QR Code não é uma NFC-e válida"})
			return
		}

		data := gin.H{
			"chave":    draft.Payload.AccessKey,
			"versao":   draft.Payload.Version,
			"tpAmb":    draft.Payload.Environment,
			"cIdToken": draft.Payload.SecurityToken,
			"vSig":     draft.Payload.Signature,
			"campos":   draft.Payload.Fields,
			"emitente": draft.Issuer,
			"itens":    draft.Items,
		}

		outcome, err := ingestor.SaveDraft(ctx, draft)
		if err != nil {
			config.LogError(config.GetLogger(), "server", "processScanHandler", "save draft", draft.Payload.AccessKey, err)
			// processed data still goes back even when persistence failed
			c.JSON(http.StatusOK, gin.H{
				"success": true,
				"data":    data,
				"message": "NFC-e processada com sucesso (erro ao salvar)",
				"warning": "Dados processados mas não salvos no banco",
				"error":   err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    data,
			"message": "NFC-e processada e salva com sucesso",
			"salva":   outcome,
		})
	}
}

type saveReceiptRequest struct {
	Chave    string               `json:"chave" binding:"required"`
	Versao   string               `json:"versao"`
	TpAmb    string               `json:"tpAmb"`
	CIdToken string               `json:"cIdToken"`
	VSig     string               `json:"vSig"`
	Emitente nfce.ExtractedIssuer `json:"emitente"`
	Itens    []nfce.ExtractedItem `json:"itens"`
}

func saveReceiptHandler(ingestor *workflow.Ingestor) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req saveReceiptRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "chave é obrigatória", "errors": utils.ProcessValidationErrors(err)})
			return
		}

		// the key may arrive from an older client; decode what we can but
		// store the receipt regardless
		fields, _ := nfce.DecodeAccessKey(req.Chave)

		draft := &workflow.ReceiptDraft{
			Payload: &nfce.QRPayload{
				AccessKey:     req.Chave,
				Version:       req.Versao,
				Environment:   req.TpAmb,
				SecurityToken: req.CIdToken,
				Signature:     req.VSig,
				Fields:        fields,
			},
			Issuer: req.Emitente,
			Items:  req.Itens,
		}
		ingestor.EnrichDraft(c.Request.Context(), draft)

		outcome, err := ingestor.SaveDraft(c.Request.Context(), draft)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Erro interno ao salvar NFC-e.", "error": err.Error()})
			return
		}
		if outcome.Status == workflow.OutcomeDuplicate {
			c.JSON(http.StatusConflict, gin.H{"message": "NFC-e com esta chave já foi salva.", "id": outcome.ReceiptId})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"message": "NFC-e salva com sucesso!", "id": outcome.ReceiptId})
	}
}

func listReceiptsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(config.SearchLimit)))
		pagination := models.NewPagination(page, limit)

		receipts, total, err := models.ListReceipts(c.Request.Context(), pagination)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Erro interno ao listar NFC-e.", "error": err.Error()})
			return
		}

		notas := make([]gin.H, 0, len(receipts))
		for _, r := range receipts {
			notas = append(notas, gin.H{
				"id":           r.ID,
				"chave":        r.AccessKey,
				"nomeEmitente": r.IssuerName,
				"createdAt":    r.CreatedAt,
			})
		}
		c.JSON(http.StatusOK, gin.H{
			"notas": notas,
			"total": total,
			"page":  pagination.Page,
			"pages": pagination.Pages(total),
		})
	}
}

func searchItemsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		term := c.Query("q")
		if term == "" {
			c.JSON(http.StatusBadRequest, gin.H{"message": `Termo de busca "q" é obrigatório.`})
			return
		}

		items, err := models.SearchLineItems(c.Request.Context(), term)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Erro interno ao buscar itens.", "error": err.Error()})
			return
		}

		results := make([]gin.H, 0, len(items))
		for _, item := range items {
			issuerName := "Desconhecido"
			if item.Receipt != nil && item.Receipt.IssuerName != "" {
				issuerName = item.Receipt.IssuerName
			}
			results = append(results, gin.H{
				"id":            item.ID,
				"descricao":     item.Description,
				"quantidade":    item.Quantity,
				"unidade":       item.Unit,
				"valorUnitario": item.UnitPrice,
				"valorTotal":    item.TotalPrice,
				"notaFiscalId":  item.ReceiptId,
				"emitente":      gin.H{"nome": issuerName},
			})
		}
		c.JSON(http.StatusOK, gin.H{"itens": results, "total": len(results)})
	}
}

func listItemsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		var limit *int
		if raw := c.Query("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				limit = &n
			}
		}

		items, total, err := models.ListLineItems(c.Request.Context(), page, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Erro interno ao listar itens.", "error": err.Error()})
			return
		}

		formatted := make([]gin.H, 0, len(items))
		for _, item := range items {
			entry := gin.H{
				"id":              item.ID,
				"codigo":          item.Code,
				"descricao":       item.Description,
				"quantidade":      item.Quantity,
				"unidade":         item.Unit,
				"valorUnitario":   item.UnitPrice,
				"valorTotal":      item.TotalPrice,
				"notaFiscalId":    item.ReceiptId,
				"dataCriacao":     item.CreatedAt,
				"dataAtualizacao": item.UpdatedAt,
			}
			if item.Receipt != nil {
				entry["notaFiscal"] = gin.H{
					"id":              item.Receipt.ID,
					"chave":           item.Receipt.AccessKey,
					"versao":          item.Receipt.QRVersion,
					"ambiente":        item.Receipt.Environment,
					"cnpjEmitente":    item.Receipt.IssuerTaxId,
					"nomeEmitente":    item.Receipt.IssuerName,
					"ieEmitente":      item.Receipt.IssuerRegistration,
					"dataLeitura":     item.Receipt.CreatedAt,
					"dataAtualizacao": item.Receipt.UpdatedAt,
				}
			}
			formatted = append(formatted, entry)
		}

		response := gin.H{
			"itens": formatted,
			"total": total,
			"page":  page,
		}
		if limit != nil {
			pagination := models.NewPagination(page, *limit)
			response["limit"] = pagination.Limit
			response["pages"] = pagination.Pages(total)
		} else {
			response["limit"] = "todos"
		}
		c.JSON(http.StatusOK, response)
	}
}

// listOrphanItemsHandler lists items without a receipt link; these come
// from partial saves and are candidates for re-parenting on rescan.
func listOrphanItemsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := models.FindOrphanLineItems(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Erro interno ao listar itens órfãos.", "error": err.Error()})
			return
		}

		results := make([]gin.H, 0, len(items))
		for _, item := range items {
			results = append(results, gin.H{
				"id":            item.ID,
				"codigo":        item.Code,
				"descricao":     item.Description,
				"quantidade":    item.Quantity,
				"unidade":       item.Unit,
				"valorUnitario": item.UnitPrice,
				"valorTotal":    item.TotalPrice,
				"createdAt":     item.CreatedAt,
			})
		}
		c.JSON(http.StatusOK, gin.H{"itens": results, "total": len(results)})
	}
}

func receiptDetailsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"message": "NFC-e não encontrada."})
			return
		}
		respondReceiptDetails(c, id)
	}
}

// receiptByIdHandler keeps the legacy /api/notas/:id contract; non-numeric
// ids 404 instead of shadowing sibling routes.
func receiptByIdHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Param("id")
		if !numericIdRe.MatchString(raw) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Rota não encontrada."})
			return
		}
		id, _ := strconv.Atoi(raw)
		respondReceiptDetails(c, id)
	}
}

func respondReceiptDetails(c *gin.Context, id int) {
	receipt, err := models.GetReceiptWithItems(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "NFC-e não encontrada."})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Erro interno ao obter detalhes da NFC-e.", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, receiptJSON(receipt))
}

// receiptJSON renders one receipt with its items in the client's shape.
func receiptJSON(r *models.Receipt) gin.H {
	itens := make([]gin.H, 0, len(r.Items))
	for _, item := range r.Items {
		itens = append(itens, gin.H{
			"id":                    item.ID,
			"codigo":                item.Code,
			"descricao":             item.Description,
			"quantidade":            item.Quantity,
			"unidade":               item.Unit,
			"valorUnitario":         item.UnitPrice,
			"valorTotal":            item.TotalPrice,
			"tipoEmbalagem":         item.PackagingType,
			"nomePadronizado":       item.StandardizedName,
			"marca":                 item.Brand,
			"quantidadePadronizada": item.StandardizedQuantity,
			"peso":                  item.Weight,
			"categoria":             item.Category,
			"createdAt":             item.CreatedAt,
			"updatedAt":             item.UpdatedAt,
		})
	}

	var capitalSocial interface{}
	if r.ShareCapital.Valid {
		capitalSocial = r.ShareCapital.Decimal
	}

	return gin.H{
		"id":                r.ID,
		"chave":             r.AccessKey,
		"versao":            r.QRVersion,
		"ambiente":          r.Environment,
		"cIdToken":          r.SecurityToken,
		"vSig":              r.SignatureFragment,
		"cnpjEmitente":      r.IssuerTaxId,
		"nomeEmitente":      r.IssuerName,
		"ieEmitente":        r.IssuerRegistration,
		"nomeFantasia":      r.IssuerTradeName,
		"situacaoCadastral": r.RegistryStatus,
		"dataAbertura":      r.FoundingDate,
		"capitalSocial":     capitalSocial,
		"naturezaJuridica":  r.LegalNature,
		"endereco":          r.Address,
		"cep":               r.PostalCode,
		"municipio":         r.City,
		"uf":                r.StateAbbrev,
		"telefone":          r.Phone,
		"email":             r.Email,
		"createdAt":         r.CreatedAt,
		"updatedAt":         r.UpdatedAt,
		"itens":             itens,
	}
}

func rescanReceiptHandler(ingestor *workflow.Ingestor) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"message": "NFC-e não encontrada."})
			return
		}

		var req scanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "QR Code é obrigatório"})
			return
		}

		outcome, err := ingestor.RescanReceipt(c.Request.Context(), id, req.QRCode)
		if err != nil {
			switch {
			case errors.Is(err, utils.ErrorRecordNotFound):
				c.JSON(http.StatusNotFound, gin.H{"message": "NFC-e não encontrada."})
			case errors.Is(err, workflow.ErrKeyMismatch):
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "QR Code não pertence a esta NFC-e"})
			case errors.Is(err, nfce.ErrMalformedPayload), errors.Is(err, nfce.ErrInvalidAccessKey):
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "QR Code não é uma NFC-e válida"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"message": "Erro interno ao rebuscar itens.", "error": err.Error()})
			}
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "resultado": outcome})
	}
}

func standardizeReceiptHandler(standardizer *standardize.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"message": "NFC-e não encontrada."})
			return
		}

		result, err := standardizer.StandardizeReceiptItems(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"message": "NFC-e não encontrada."})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Erro ao padronizar itens.", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Itens padronizados: " + strconv.Itoa(result.Updated) + "/" + strconv.Itoa(result.Total),
			"updated": result.Updated,
			"results": result.Results,
		})
	}
}

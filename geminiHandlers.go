package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nfce-scan/nfce_backend/models"
	"github.com/nfce-scan/nfce_backend/standardize"
	"github.com/nfce-scan/nfce_backend/utils"
)

// Admin surface for the Gemini key pool. Responses never carry the key
// value itself.

func listGeminiKeysHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		keys, err := models.ListGeminiKeys(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Erro interno ao listar chaves.", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "keys": keys, "total": len(keys)})
	}
}

func getGeminiKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Chave não encontrada."})
			return
		}
		key, err := models.GetGeminiKey(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Chave não encontrada."})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Erro interno ao obter chave.", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "key": key})
	}
}

func createGeminiKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewGeminiKey
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "name e apiKey são obrigatórios.", "errors": utils.ProcessValidationErrors(err)})
			return
		}

		key, err := models.CreateGeminiKey(c.Request.Context(), &input)
		if err != nil {
			if strings.Contains(err.Error(), "already exists") {
				c.JSON(http.StatusConflict, gin.H{"success": false, "message": "Já existe uma chave com este valor."})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Erro interno ao criar chave.", "error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"success": true, "message": "Chave criada com sucesso!", "key": key})
	}
}

func updateGeminiKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Chave não encontrada."})
			return
		}

		var input models.UpdateGeminiKeyInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Corpo da requisição inválido."})
			return
		}

		key, err := models.UpdateGeminiKey(c.Request.Context(), id, &input)
		if err != nil {
			switch {
			case errors.Is(err, utils.ErrorRecordNotFound):
				c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Chave não encontrada."})
			case strings.Contains(err.Error(), "already uses"):
				c.JSON(http.StatusConflict, gin.H{"success": false, "message": "Já existe uma chave com este valor."})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Erro interno ao atualizar chave.", "error": err.Error()})
			}
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Chave atualizada com sucesso!", "key": key})
	}
}

func deleteGeminiKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Chave não encontrada."})
			return
		}
		if err := models.DeleteGeminiKey(c.Request.Context(), id); err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Chave não encontrada."})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Erro interno ao remover chave.", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Chave removida com sucesso!"})
	}
}

func testGeminiKeyHandler(standardizer *standardize.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Chave não encontrada."})
			return
		}
		if err := standardizer.TestKey(c.Request.Context(), id); err != nil {
			if errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Chave não encontrada."})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Erro ao testar chave: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Chave testada com sucesso! Está funcionando corretamente."})
	}
}

func geminiStatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := models.GetGeminiKeyStats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Erro interno ao obter estatísticas.", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
	}
}

package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dcawallet-api/internal/middleware"
	"dcawallet-api/internal/repositories"
	"dcawallet-api/internal/services"
)

// TransactionController serves manual ledger entries and CSV imports.
type TransactionController struct {
	transactions *services.TransactionService
	importer     *services.ImportService
}

// NewTransactionController creates a transaction controller.
func NewTransactionController(transactions *services.TransactionService, importer *services.ImportService) *TransactionController {
	return &TransactionController{
		transactions: transactions,
		importer:     importer,
	}
}

// RegisterRoutes mounts the transaction routes on the wallets group.
func (c *TransactionController) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/:walletId/transactions", c.Create)
	r.GET("/:walletId/transactions", c.List)
	r.POST("/:walletId/import/coinmarketcap", c.ImportCSV)
}

// Create godoc
// @Summary Record a manual transaction
// @Tags transactions
// @Accept json
// @Produce json
// @Param walletId path string true "Wallet ID"
// @Param request body services.CreateTransactionRequest true "Transaction"
// @Success 201 {object} models.Transaction
// @Router /wallets/{walletId}/transactions [post]
func (c *TransactionController) Create(ctx *gin.Context) {
	var req services.CreateTransactionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tx, err := c.transactions.CreateManual(ctx.Request.Context(), middleware.UserID(ctx), ctx.Param("walletId"), req)
	if err != nil {
		if errors.Is(err, repositories.ErrWalletNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "wallet not found"})
			return
		}
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusCreated, tx)
}

// List godoc
// @Summary List a wallet's transactions
// @Tags transactions
// @Produce json
// @Param walletId path string true "Wallet ID"
// @Success 200 {array} models.Transaction
// @Router /wallets/{walletId}/transactions [get]
func (c *TransactionController) List(ctx *gin.Context) {
	txs, err := c.transactions.List(ctx.Request.Context(), middleware.UserID(ctx), ctx.Param("walletId"))
	if err != nil {
		if errors.Is(err, repositories.ErrWalletNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "wallet not found"})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list transactions"})
		return
	}
	ctx.JSON(http.StatusOK, txs)
}

// ImportCSV godoc
// @Summary Import a CoinMarketCap CSV export
// @Tags transactions
// @Accept multipart/form-data
// @Produce json
// @Param walletId path string true "Wallet ID"
// @Param file formData file true "CSV export"
// @Success 200 {object} services.ImportResult
// @Router /wallets/{walletId}/import/coinmarketcap [post]
func (c *TransactionController) ImportCSV(ctx *gin.Context) {
	header, err := ctx.FormFile("file")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	file, err := header.Open()
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "failed to open file"})
		return
	}
	defer file.Close()

	result, err := c.importer.ImportCSV(ctx.Request.Context(), middleware.UserID(ctx), ctx.Param("walletId"), file)
	if err != nil {
		if errors.Is(err, repositories.ErrWalletNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "wallet not found"})
			return
		}
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, result)
}

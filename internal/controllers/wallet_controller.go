package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dcawallet-api/internal/clients/esplora"
	"dcawallet-api/internal/middleware"
	"dcawallet-api/internal/repositories"
	"dcawallet-api/internal/services"
)

// WalletController serves wallet CRUD, DCA configuration and blockchain
// sync endpoints.
type WalletController struct {
	wallets    *services.WalletService
	blockchain *services.BlockchainService
}

// NewWalletController creates a wallet controller.
func NewWalletController(wallets *services.WalletService, blockchain *services.BlockchainService) *WalletController {
	return &WalletController{
		wallets:    wallets,
		blockchain: blockchain,
	}
}

// RegisterRoutes mounts the wallet routes on the group.
func (c *WalletController) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("", c.Create)
	r.GET("", c.List)
	r.GET("/:walletId", c.Get)
	r.DELETE("/:walletId", c.Delete)
	r.PUT("/:walletId/dca", c.ConfigureDCA)
	r.POST("/blockchain-sync", c.CreateSynced)
	r.POST("/:walletId/reload-synced", c.ReloadSynced)
}

// Create godoc
// @Summary Create a wallet
// @Tags wallets
// @Accept json
// @Produce json
// @Param request body services.CreateWalletRequest true "Wallet"
// @Success 201 {object} models.Wallet
// @Router /wallets [post]
func (c *WalletController) Create(ctx *gin.Context) {
	var req services.CreateWalletRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	wallet, err := c.wallets.Create(ctx.Request.Context(), middleware.UserID(ctx), req)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create wallet"})
		return
	}
	ctx.JSON(http.StatusCreated, wallet)
}

// List godoc
// @Summary List the user's wallets
// @Tags wallets
// @Produce json
// @Success 200 {array} models.Wallet
// @Router /wallets [get]
func (c *WalletController) List(ctx *gin.Context) {
	wallets, err := c.wallets.List(ctx.Request.Context(), middleware.UserID(ctx))
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list wallets"})
		return
	}
	ctx.JSON(http.StatusOK, wallets)
}

// Get godoc
// @Summary Get one wallet
// @Tags wallets
// @Produce json
// @Param walletId path string true "Wallet ID"
// @Success 200 {object} models.Wallet
// @Failure 404 {object} map[string]string
// @Router /wallets/{walletId} [get]
func (c *WalletController) Get(ctx *gin.Context) {
	wallet, err := c.wallets.Get(ctx.Request.Context(), middleware.UserID(ctx), ctx.Param("walletId"))
	if err != nil {
		if errors.Is(err, repositories.ErrWalletNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "wallet not found"})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get wallet"})
		return
	}
	ctx.JSON(http.StatusOK, wallet)
}

// Delete removes a wallet.
func (c *WalletController) Delete(ctx *gin.Context) {
	err := c.wallets.Delete(ctx.Request.Context(), middleware.UserID(ctx), ctx.Param("walletId"))
	if err != nil {
		if errors.Is(err, repositories.ErrWalletNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "wallet not found"})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete wallet"})
		return
	}
	ctx.Status(http.StatusNoContent)
}

// ConfigureDCA godoc
// @Summary Configure a wallet's recurring buys
// @Tags wallets
// @Accept json
// @Produce json
// @Param walletId path string true "Wallet ID"
// @Param request body services.ConfigureDCARequest true "DCA configuration"
// @Success 200 {object} models.Wallet
// @Router /wallets/{walletId}/dca [put]
func (c *WalletController) ConfigureDCA(ctx *gin.Context) {
	var req services.ConfigureDCARequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	wallet, err := c.wallets.ConfigureDCA(ctx.Request.Context(), middleware.UserID(ctx), ctx.Param("walletId"), req)
	if err != nil {
		if errors.Is(err, repositories.ErrWalletNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "wallet not found"})
			return
		}
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, wallet)
}

// CreateSynced godoc
// @Summary Create a wallet synced from a Bitcoin address
// @Tags wallets
// @Accept json
// @Produce json
// @Param request body services.CreateSyncedWalletRequest true "Address"
// @Success 201 {object} models.Wallet
// @Failure 409 {object} map[string]string
// @Router /wallets/blockchain-sync [post]
func (c *WalletController) CreateSynced(ctx *gin.Context) {
	var req services.CreateSyncedWalletRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	wallet, err := c.blockchain.CreateSyncedWallet(ctx.Request.Context(), middleware.UserID(ctx), req)
	if err != nil {
		switch {
		case errors.Is(err, esplora.ErrInvalidAddress):
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrWalletAlreadySynced):
			ctx.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, esplora.ErrUnavailable):
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "blockchain explorer unavailable"})
		default:
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create synced wallet"})
		}
		return
	}
	ctx.JSON(http.StatusCreated, wallet)
}

// ReloadSynced refreshes a synced wallet from the chain.
func (c *WalletController) ReloadSynced(ctx *gin.Context) {
	wallet, err := c.blockchain.ReloadSyncedWallet(ctx.Request.Context(), middleware.UserID(ctx), ctx.Param("walletId"))
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrWalletNotFound):
			ctx.JSON(http.StatusNotFound, gin.H{"error": "wallet not found"})
		case errors.Is(err, esplora.ErrUnavailable):
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "blockchain explorer unavailable"})
		default:
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reload wallet"})
		}
		return
	}
	ctx.JSON(http.StatusOK, wallet)
}

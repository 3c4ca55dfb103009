package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"dcawallet-api/internal/middleware"
	"dcawallet-api/internal/models"
	"dcawallet-api/internal/monitoring"
	"dcawallet-api/internal/performance"
	"dcawallet-api/internal/repositories"
	"dcawallet-api/internal/services"
)

// RegisterValidators installs custom binding validations. Call once at
// startup before routes are served.
func RegisterValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("timespan", func(fl validator.FieldLevel) bool {
			return models.Timespan(fl.Field().String()).Valid()
		})
	}
}

// PerformanceController serves computed portfolio performance.
type PerformanceController struct {
	wallets   *services.WalletService
	engine    *performance.Engine
	summaries *services.SummaryService
	metrics   *monitoring.Metrics
}

// NewPerformanceController creates a performance controller.
func NewPerformanceController(wallets *services.WalletService, engine *performance.Engine,
	summaries *services.SummaryService, metrics *monitoring.Metrics) *PerformanceController {
	return &PerformanceController{
		wallets:   wallets,
		engine:    engine,
		summaries: summaries,
		metrics:   metrics,
	}
}

// RegisterRoutes mounts the performance routes on the wallets group.
func (c *PerformanceController) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/:walletId/performance/:timespan", c.GetPerformance)
	r.GET("/:walletId/summaries/:timespan", c.GetSummaries)
}

type performanceURI struct {
	WalletID string `uri:"walletId" binding:"required"`
	Timespan string `uri:"timespan" binding:"required,timespan"`
}

// GetPerformance godoc
// @Summary Compute a wallet's performance over a timespan
// @Tags performance
// @Produce json
// @Param walletId path string true "Wallet ID"
// @Param timespan path string true "Timespan" Enums(7d, 30d, 90d, 365d, ALL)
// @Success 200 {object} models.PerformanceResult
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /wallets/{walletId}/performance/{timespan} [get]
func (c *PerformanceController) GetPerformance(ctx *gin.Context) {
	var uri performanceURI
	if err := ctx.ShouldBindUri(&uri); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid timespan, expected one of 7d/30d/90d/365d/ALL"})
		return
	}
	timespan := models.Timespan(uri.Timespan)

	if _, err := c.wallets.Get(ctx.Request.Context(), middleware.UserID(ctx), uri.WalletID); err != nil {
		if errors.Is(err, repositories.ErrWalletNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "wallet not found"})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load wallet"})
		return
	}

	start := time.Now()
	result, err := c.engine.Calculate(ctx.Request.Context(), uri.WalletID, timespan)
	c.metrics.RecordPerformanceRun(string(timespan), err, time.Since(start))
	if err != nil {
		switch {
		case errors.Is(err, performance.ErrInvalidTimespan):
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, performance.ErrNoTransactions):
			ctx.JSON(http.StatusNotFound, gin.H{"error": "no transactions found for wallet"})
		case errors.Is(err, performance.ErrPriceUnavailable):
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "price data unavailable"})
		default:
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute performance"})
		}
		return
	}

	// Snapshot saving rides along without delaying the response.
	if result.Summary != nil {
		c.summaries.SaveDailyAsync(uri.WalletID, timespan, result.Summary)
		c.metrics.RecordSummary(string(timespan))
	}

	ctx.JSON(http.StatusOK, result)
}

// GetSummaries godoc
// @Summary List recorded daily summaries for a wallet
// @Tags performance
// @Produce json
// @Param walletId path string true "Wallet ID"
// @Param timespan path string true "Timespan" Enums(7d, 30d, 90d, 365d)
// @Success 200 {array} models.DailySummary
// @Router /wallets/{walletId}/summaries/{timespan} [get]
func (c *PerformanceController) GetSummaries(ctx *gin.Context) {
	var uri performanceURI
	if err := ctx.ShouldBindUri(&uri); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid timespan"})
		return
	}

	if _, err := c.wallets.Get(ctx.Request.Context(), middleware.UserID(ctx), uri.WalletID); err != nil {
		if errors.Is(err, repositories.ErrWalletNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "wallet not found"})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load wallet"})
		return
	}

	summaries, err := c.summaries.History(ctx.Request.Context(), uri.WalletID, models.Timespan(uri.Timespan), 90)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load summaries"})
		return
	}
	ctx.JSON(http.StatusOK, summaries)
}

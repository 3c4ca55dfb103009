package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"dcawallet-api/internal/models"
	"dcawallet-api/internal/performance"
	"dcawallet-api/internal/pricefeed"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is token-authenticated; browser origin checks add nothing.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// PriceController serves spot and historical BTC prices, plus a websocket
// stream of spot updates.
type PriceController struct {
	watcher *pricefeed.Watcher
	series  performance.PriceProvider
	log     *logrus.Entry
}

// NewPriceController creates a price controller.
func NewPriceController(watcher *pricefeed.Watcher, series performance.PriceProvider) *PriceController {
	return &PriceController{
		watcher: watcher,
		series:  series,
		log:     logrus.WithField("component", "price_controller"),
	}
}

// RegisterRoutes mounts the price routes on the group.
func (c *PriceController) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/now", c.Now)
	r.GET("/ws", c.Stream)
	r.GET("/:timespan", c.Series)
}

// Now godoc
// @Summary Current BTC spot price
// @Tags prices
// @Produce json
// @Success 200 {object} map[string]string
// @Router /price/now [get]
func (c *PriceController) Now(ctx *gin.Context) {
	price, err := c.watcher.Spot(ctx.Request.Context(), "usd")
	if err != nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "price data unavailable"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"currency": "usd",
		"price":    price,
	})
}

// Series godoc
// @Summary Daily BTC price series for a fixed timespan
// @Tags prices
// @Produce json
// @Param timespan path string true "Timespan" Enums(7d, 30d, 90d, 365d)
// @Success 200 {array} models.PricePoint
// @Router /price/{timespan} [get]
func (c *PriceController) Series(ctx *gin.Context) {
	timespan := models.Timespan(ctx.Param("timespan"))
	days, ok := timespan.Days()
	if !ok {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid timespan, expected one of 7d/30d/90d/365d"})
		return
	}

	points, err := c.series.GetDailySeries(ctx.Request.Context(), days, "usd")
	if err != nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "price data unavailable"})
		return
	}
	ctx.JSON(http.StatusOK, points)
}

// Stream upgrades to a websocket and pushes the latest spot observation
// every few seconds until the client goes away.
func (c *PriceController) Stream(ctx *gin.Context) {
	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		c.log.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	// Reader goroutine: its only job is to notice the peer closing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func() bool {
		point, err := c.watcher.Latest("usd")
		if errors.Is(err, pricefeed.ErrNoPrice) {
			return true
		}
		if err := conn.WriteJSON(point); err != nil {
			return false
		}
		return true
	}

	if !send() {
		return
	}
	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			if !send() {
				return
			}
		}
	}
}

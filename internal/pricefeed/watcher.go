package pricefeed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"dcawallet-api/internal/config"
	"dcawallet-api/internal/models"
	"dcawallet-api/internal/repositories"
)

// ErrNoPrice is returned when no spot price has been observed yet for the
// requested currency.
var ErrNoPrice = errors.New("no spot price observed")

// SpotSource provides current prices from the external market data API.
type SpotSource interface {
	GetSpotPrice(ctx context.Context, currency string) (decimal.Decimal, error)
}

// MetricsSink receives instrumentation from the polling loop.
type MetricsSink interface {
	RecordProviderCall(provider string, err error)
	SetSpotPrice(currency string, price float64)
}

// SpotCache is the slice of the redis client the watcher uses.
type SpotCache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
}

// Watcher polls the spot price on an interval, keeps the latest observation
// in memory and in Redis, and periodically persists points to Mongo so a
// restart does not lose recent history.
type Watcher struct {
	source  SpotSource
	cache   SpotCache
	history repositories.PriceHistoryRepository
	metrics MetricsSink
	cfg     config.PriceFeedConfig
	ttl     time.Duration
	log     *logrus.Entry

	mu     sync.RWMutex
	latest map[string]models.PricePoint

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher creates a price feed watcher.
func NewWatcher(source SpotSource, redis SpotCache, history repositories.PriceHistoryRepository,
	metrics MetricsSink, cfg config.PriceFeedConfig, spotTTL time.Duration) *Watcher {
	return &Watcher{
		source:  source,
		cache:   redis,
		history: history,
		metrics: metrics,
		cfg:     cfg,
		ttl:     spotTTL,
		log:     logrus.WithField("component", "pricefeed"),
		latest:  make(map[string]models.PricePoint),
	}
}

// Start launches the polling loop. It returns immediately.
func (w *Watcher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})

	warmCtx, warmCancel := context.WithTimeout(ctx, 10*time.Second)
	w.warmStart(warmCtx)
	warmCancel()

	go w.run(ctx)

	w.log.WithField("interval", w.cfg.PollInterval).Info("Price feed started")
}

// warmStart seeds the in-memory observations from the persisted history, so
// a restart with the provider down can still serve a recent price instead of
// nothing. Points older than the spot TTL stay out.
func (w *Watcher) warmStart(ctx context.Context) {
	for _, currency := range w.cfg.Currencies {
		points, err := w.history.Recent(ctx, currency, 1)
		if err != nil {
			w.log.WithError(err).WithField("currency", currency).Warn("Warm start read failed")
			continue
		}
		if len(points) == 0 || w.stale(points[0]) {
			continue
		}

		w.mu.Lock()
		w.latest[currency] = points[0]
		w.mu.Unlock()

		w.log.WithFields(logrus.Fields{
			"currency": currency,
			"price":    points[0].Price.String(),
		}).Info("Spot price warm-started from history")
	}
}

// Stop halts the polling loop and waits for it to drain.
func (w *Watcher) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
	w.log.Info("Price feed stopped")
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	poll := time.NewTicker(w.cfg.PollInterval)
	defer poll.Stop()
	persist := time.NewTicker(w.cfg.PersistInterval)
	defer persist.Stop()

	w.pollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			w.pollOnce(ctx)
		case <-persist.C:
			w.persistLatest(ctx)
		}
	}
}

func (w *Watcher) pollOnce(ctx context.Context) {
	for _, currency := range w.cfg.Currencies {
		price, err := w.source.GetSpotPrice(ctx, currency)
		w.metrics.RecordProviderCall("coingecko", err)
		if err != nil {
			// Keep serving the previous observation until its TTL runs out.
			w.log.WithError(err).WithField("currency", currency).Warn("Spot price poll failed")
			continue
		}
		w.metrics.SetSpotPrice(currency, price.InexactFloat64())

		point := models.PricePoint{
			TimestampMS: time.Now().UnixMilli(),
			Price:       price,
		}

		w.mu.Lock()
		w.latest[currency] = point
		w.mu.Unlock()

		if err := w.cache.Set(ctx, spotKey(currency), point, w.ttl); err != nil {
			w.log.WithError(err).Warn("Failed to cache spot price")
		}
	}
}

func (w *Watcher) persistLatest(ctx context.Context) {
	w.mu.RLock()
	snapshot := make(map[string]models.PricePoint, len(w.latest))
	for currency, point := range w.latest {
		snapshot[currency] = point
	}
	w.mu.RUnlock()

	for currency, point := range snapshot {
		if err := w.history.InsertPoint(ctx, currency, point); err != nil {
			w.log.WithError(err).WithField("currency", currency).Warn("Failed to persist price point")
		}
	}
}

// Latest returns the most recent in-memory observation for the currency.
// An observation older than the spot TTL is treated as absent, the same
// bound the Redis copy gets from its expiry, so a dead provider eventually
// stops serving its last price instead of serving it forever.
func (w *Watcher) Latest(currency string) (models.PricePoint, error) {
	w.mu.RLock()
	point, ok := w.latest[currency]
	w.mu.RUnlock()

	if !ok || w.stale(point) {
		return models.PricePoint{}, ErrNoPrice
	}
	return point, nil
}

func (w *Watcher) stale(point models.PricePoint) bool {
	return time.Since(time.UnixMilli(point.TimestampMS)) > w.ttl
}

// Spot returns the current price for the currency: the in-memory
// observation when fresh, the Redis copy when this process has not polled
// yet, and a direct provider call as the last resort.
func (w *Watcher) Spot(ctx context.Context, currency string) (decimal.Decimal, error) {
	if point, err := w.Latest(currency); err == nil {
		return point.Price, nil
	}

	var point models.PricePoint
	if err := w.cache.Get(ctx, spotKey(currency), &point); err == nil {
		return point.Price, nil
	}

	price, err := w.source.GetSpotPrice(ctx, currency)
	if err != nil {
		return decimal.Zero, err
	}
	return price, nil
}

func spotKey(currency string) string {
	return "price:spot:" + currency
}

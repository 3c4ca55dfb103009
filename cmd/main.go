package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "dcawallet-api/docs"
	"dcawallet-api/internal/clients/coingecko"
	"dcawallet-api/internal/clients/esplora"
	"dcawallet-api/internal/config"
	"dcawallet-api/internal/controllers"
	"dcawallet-api/internal/messaging"
	"dcawallet-api/internal/middleware"
	"dcawallet-api/internal/monitoring"
	"dcawallet-api/internal/performance"
	"dcawallet-api/internal/pricefeed"
	mongorepo "dcawallet-api/internal/repositories/mongo"
	"dcawallet-api/internal/scheduler"
	"dcawallet-api/internal/services"
	"dcawallet-api/pkg/cache"
	"dcawallet-api/pkg/database"
	"dcawallet-api/pkg/logger"
)

// @title DCA Wallet API
// @version 1.0
// @description Bitcoin DCA wallet tracker: portfolio performance, recurring buys and blockchain-synced wallets.

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal("Failed to load configuration: ", err)
	}

	logger.Init(cfg.Logger)
	log := logrus.WithField("service", "dcawallet-api")

	log.Info("Starting DCA Wallet API service...")

	db, err := database.NewMongoDB(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB: ", err)
	}
	defer db.Disconnect()

	cacheClient, err := cache.NewRedisClient(cfg.Cache)
	if err != nil {
		log.Fatal("Failed to connect to Redis: ", err)
	}
	defer cacheClient.Close()

	// Repositories
	walletRepo := mongorepo.NewWalletRepository(db.GetDatabase())
	transactionRepo := mongorepo.NewTransactionRepository(db.GetDatabase())
	summaryRepo := mongorepo.NewSummaryRepository(db.GetDatabase())
	priceHistoryRepo := mongorepo.NewPriceHistoryRepository(db.GetDatabase())

	// External clients
	geckoClient := coingecko.NewClient(cfg.CoinGecko)
	esploraClient := esplora.NewClient(cfg.Esplora)

	metrics := monitoring.NewMetrics()

	// Price feed
	watcher := pricefeed.NewWatcher(geckoClient, cacheClient, priceHistoryRepo, metrics, cfg.PriceFeed, cfg.Cache.SpotPriceTTL)
	if cfg.PriceFeed.Enabled {
		watcher.Start()
		defer watcher.Stop()
	}

	// Messaging (optional)
	var publisher *messaging.TransactionPublisher
	if cfg.RabbitMQ.Enabled {
		publisher, err = messaging.NewTransactionPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			log.Error("Failed to initialize RabbitMQ publisher: ", err)
		} else {
			defer publisher.Close()
		}
	}

	// Services
	engine := performance.NewEngine(geckoClient, transactionRepo)
	walletService := services.NewWalletService(walletRepo)
	transactionService := services.NewTransactionService(transactionRepo, walletRepo, cacheClient, publisher, cfg.Cache.WalletLockTTL)
	summaryService := services.NewSummaryService(summaryRepo, walletRepo, engine)
	dcaService := services.NewDCAService(walletRepo, transactionRepo, watcher, cacheClient, publisher, cfg.Cache.WalletLockTTL)
	importService := services.NewImportService(transactionRepo, walletRepo, cacheClient, publisher, cfg.Cache.WalletLockTTL)
	blockchainService := services.NewBlockchainService(walletRepo, transactionRepo, esploraClient, geckoClient, cacheClient, publisher, cfg.Cache.WalletLockTTL)

	// Background jobs
	var jobs *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		jobs, err = scheduler.NewScheduler(cfg.Scheduler, dcaService, summaryService, metrics)
		if err != nil {
			log.Fatal("Failed to build scheduler: ", err)
		}
		jobs.Start()
	}

	// Controllers
	controllers.RegisterValidators()
	walletController := controllers.NewWalletController(walletService, blockchainService)
	transactionController := controllers.NewTransactionController(transactionService, importService)
	performanceController := controllers.NewPerformanceController(walletService, engine, summaryService, metrics)
	priceController := controllers.NewPriceController(watcher, geckoClient)

	router := setupRouter(cfg, db, cacheClient, metrics,
		walletController, transactionController, performanceController, priceController)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Server.Port).Info("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server: ", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown: ", err)
	}

	if jobs != nil {
		jobs.Stop()
	}

	log.Info("Server exited")
}

func setupRouter(cfg *config.Config, db *database.MongoDB, cacheClient *cache.RedisClient,
	metrics *monitoring.Metrics,
	walletController *controllers.WalletController,
	transactionController *controllers.TransactionController,
	performanceController *controllers.PerformanceController,
	priceController *controllers.PriceController) *gin.Engine {

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(requestid.New())
	router.Use(cors.Default())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.HTTPMetrics(metrics))

	router.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		mongoOK := db.IsHealthy(c.Request.Context())
		redisOK := cacheClient.IsHealthy(c.Request.Context())
		if !mongoOK || !redisOK {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"service":   "dcawallet-api",
			"mongodb":   mongoOK,
			"redis":     redisOK,
			"timestamp": time.Now().UTC(),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	auth := middleware.NewAuthMiddleware(cfg.Auth)

	api := router.Group("/api")
	{
		price := api.Group("/price")
		priceController.RegisterRoutes(price)

		wallets := api.Group("/wallets")
		wallets.Use(auth.JWTAuth())
		{
			walletController.RegisterRoutes(wallets)
			transactionController.RegisterRoutes(wallets)
			performanceController.RegisterRoutes(wallets)
		}
	}

	return router
}

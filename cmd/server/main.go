package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/yourorg/market-insights/internal/client"
	"github.com/yourorg/market-insights/internal/config"
	"github.com/yourorg/market-insights/internal/handler"
	"github.com/yourorg/market-insights/internal/logging"
	"github.com/yourorg/market-insights/internal/middleware"
	"github.com/yourorg/market-insights/internal/queue"
	"github.com/yourorg/market-insights/internal/relay"
	"github.com/yourorg/market-insights/internal/repository"
	"github.com/yourorg/market-insights/internal/service"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Set up logger
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stop waiting on dependencies when asked to shut down during startup
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		cancel()
	}()

	// Connect to database
	store := repository.NewStore(cfg.Database, logger)
	if err := store.Connect(ctx); err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer store.Close()

	if cfg.Database.AutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Fatal("Failed to apply schema", zap.Error(err))
		}
	}

	// Connect to the ingestion queue
	broker, err := queue.New(ctx, cfg.Queue, logger)
	if err != nil {
		logger.Fatal("Failed to connect to queue", zap.Error(err))
	}
	defer broker.Close()

	// Initialize Redis client (if enabled)
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		// Test Redis connection
		if _, err := redisClient.Ping(ctx).Result(); err != nil {
			logger.Warn("Failed to connect to Redis, running without cache", zap.Error(err))
			redisClient.Close()
			redisClient = nil
		} else {
			logger.Info("Connected to Redis", zap.String("address", cfg.Redis.Addr()))
			defer redisClient.Close()
		}
	}

	// Create repositories
	tickerRepo := repository.NewTickerRepository(store, logger)
	ohlcRepo := repository.NewOHLCRepository(store, logger)
	companyRepo := repository.NewCompanyRepository(store, logger)
	userRepo := repository.NewUserRepository(store, logger)
	insightRepo := repository.NewInsightRepository(store, logger)
	marketRepo := repository.NewMarketRepository(store, logger)

	// Create services
	reviewer := client.NewTokenReviewer(cfg.Auth, logger)
	authService := service.NewAuthService(userRepo, reviewer, cfg.Auth, logger)
	insightService := service.NewInsightService(newChatModel(ctx, cfg.LLM, logger), insightRepo, logger)
	marketService := service.NewMarketService(marketRepo, companyRepo, insightService, logger)

	// Start relaying ingested bars into storage
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r := relay.New(ohlcRepo, store, logger)
		if redisClient != nil {
			r.WithCacheFlush(func(ctx context.Context) error {
				return middleware.FlushCache(ctx, redisClient, cfg.Redis.Prefix)
			})
		}
		r.Run(ctx, broker, cfg.Relay.Queue, cfg.Relay.Interval)
	}()

	router := setupRouter(routerDeps{
		cfg:         cfg,
		store:       store,
		redisClient: redisClient,
		authService: authService,
		tickers:     tickerRepo,
		ohlc:        ohlcRepo,
		companies:   companyRepo,
		market:      marketService,
	}, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start the server in a goroutine
	go func() {
		logger.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	<-ctx.Done()

	logger.Info("Shutting down server...")

	// Create a deadline for server shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	wg.Wait()

	logger.Info("Server exited properly")
}

type routerDeps struct {
	cfg         *config.Config
	store       handler.Pinger
	redisClient *redis.Client
	authService *service.AuthService
	tickers     handler.TickerReader
	ohlc        handler.OHLCStore
	companies   handler.CompanyWriter
	market      handler.MarketReader
}

func setupRouter(deps routerDeps, logger *zap.Logger) *gin.Engine {
	router := gin.New()

	// Use middlewares
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))

	router.GET("/health", handler.Health(deps.store))

	cache := middleware.RedisCache(deps.redisClient, middleware.CacheConfig{
		Enabled:         deps.redisClient != nil,
		DefaultDuration: deps.cfg.Redis.CacheTTL,
		PrefixKey:       deps.cfg.Redis.Prefix,
	}, logger)
	flush := middleware.FlushOnSuccess(deps.redisClient, deps.cfg.Redis.Prefix, logger)
	authenticate := middleware.Authenticate(deps.authService, logger)
	internalOnly := middleware.RequireInternal()

	// Credential routes
	limiter := middleware.NewRateLimiter(deps.cfg.Server.RateLimit.RequestsPerMinute, deps.cfg.Server.RateLimit.Burst)
	credentials := router.Group("", middleware.RateLimit(limiter))
	{
		authHandler := handler.NewAuthHandler(deps.authService, logger)
		credentials.POST("/users/register", authHandler.Register)
		credentials.POST("/users/login", authHandler.Token)
		credentials.POST("/token", authHandler.Token)
	}

	// Public reference data
	tickerHandler := handler.NewTickerHandler(deps.tickers, logger)
	router.GET("/tickers", cache, tickerHandler.List)
	router.GET("/tickers/:ticker", tickerHandler.Get)

	// Authenticated routes
	protected := router.Group("", authenticate)
	{
		ohlcHandler := handler.NewOHLCHandler(deps.ohlc, logger)
		companyHandler := handler.NewCompanyHandler(deps.companies, logger)
		marketHandler := handler.NewMarketHandler(deps.market)

		protected.GET("/ohlc", ohlcHandler.List)
		protected.POST("/ohlc", internalOnly, flush, ohlcHandler.Insert)
		protected.PUT("/companies", internalOnly, flush, companyHandler.Upsert)

		protected.GET("/latest", internalOnly, cache, marketHandler.Latest)
		protected.GET("/insights", cache, marketHandler.Insights)
		protected.GET("/movers", cache, marketHandler.Movers)
	}

	return router
}

// unavailableChat stands in for the chat model when none is configured so
// that insight requests degrade to empty results.
type unavailableChat struct {
	err error
}

func (u unavailableChat) Generate(context.Context, []*schema.Message, ...einomodel.Option) (*schema.Message, error) {
	return nil, u.err
}

func newChatModel(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) service.ChatGenerator {
	chat, err := client.NewChatModel(ctx, cfg)
	if err != nil {
		logger.Warn("Chat model unavailable, insights will be empty", zap.Error(err))
		return unavailableChat{err: err}
	}
	logger.Info("Initialized chat model", zap.String("model", cfg.Model))
	return chat
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "p2p/api/swagger" // swagger docs
	"p2p/internal/config"
	"p2p/internal/database"
	"p2p/internal/document"
	"p2p/internal/handler"
	"p2p/internal/middleware"
	"p2p/internal/model"
	"p2p/internal/policy"
	"p2p/internal/repository"
	"p2p/internal/service"
	"p2p/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const shutdownTimeout = 15 * time.Second

// @title           Procure-to-Pay API
// @version         1.0
// @description     Purchase requests, two-level approvals and purchase order generation.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load("configs/.env", ".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger()

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("server stopped")
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(cfg.Database.DSN(), database.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		AutoMigrate:     cfg.Database.AutoMigrate,
	}, logger)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	logger.Info("connected to PostgreSQL")

	var redisClient *redis.Client
	if cfg.NeedsRedis() {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		logger.Info("connected to Redis")
	}

	authz, err := policy.New(logger)
	if err != nil {
		return err
	}
	store, err := document.NewLocalStore(cfg.Document.StorageDir)
	if err != nil {
		return err
	}

	// Set up WebSocket Hub
	wsHub := websocket.NewHub(authz, logger)
	go wsHub.Run(ctx)

	// Set up dependencies (Repository -> Service -> Handler)
	txManager := repository.NewTransactionManager(db)
	requestRepo := repository.NewPurchaseRequestRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	orderRepo := repository.NewPurchaseOrderRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	userRepo := repository.NewUserRepository(db)

	var sequence repository.POSequence
	switch cfg.Sequence.Backend {
	case config.SequenceBackendRedis:
		sequence = repository.NewRedisPOSequence(redisClient, cfg.Sequence.KeyPrefix)
	default:
		sequence = repository.NewDBPOSequence(db)
	}

	renderer := document.NewPDFRenderer(store, cfg.Document.CompanyName)
	processor := document.NewProcessor(cfg.Document.MaxUploadSize, logger)
	generator := service.NewPurchaseOrderGenerator(orderRepo, auditRepo, sequence, renderer, logger)

	requestService := service.NewPurchaseRequestService(txManager, requestRepo, approvalRepo, orderRepo, auditRepo, authz, processor, store, wsHub, logger)
	workflowService := service.NewWorkflowService(txManager, requestRepo, approvalRepo, auditRepo, generator, authz, wsHub, logger)
	poService := service.NewPurchaseOrderService(txManager, orderRepo, approvalRepo, auditRepo, authz, store, wsHub, logger)
	auditService := service.NewAuditService(auditRepo, authz)
	userService := service.NewUserService(userRepo)

	// Initialize Handlers
	requestHandler := handler.NewPurchaseRequestHandler(requestService, workflowService, cfg.Document.MaxUploadSize)
	poHandler := handler.NewPurchaseOrderHandler(poService)
	auditHandler := handler.NewAuditHandler(auditService)
	userHandler := handler.NewUserHandler(userService)

	gin.SetMode(cfg.HTTP.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(logger))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", middleware.RequestIDHeader}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.ExposeHeaders = []string{middleware.RequestIDHeader, "Content-Disposition"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DOWN", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "OK", "ws_clients": wsHub.ClientCount()})
	})

	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	// WebSocket endpoint
	secret := []byte(cfg.JWTSecret)
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, func(token string) (model.Actor, error) {
			return middleware.ParseToken(secret, token)
		})
	})

	// API Routing
	api := router.Group("", middleware.Authenticate(secret))
	if cfg.RateLimit.Enabled {
		var limiterClient *redis.Client
		if strings.EqualFold(cfg.RateLimit.Storage, "redis") {
			limiterClient = redisClient
		}
		limit, err := middleware.RateLimit(cfg.RateLimit.Rate, limiterClient)
		if err != nil {
			return err
		}
		api.Use(limit)
	}
	requestHandler.RegisterRoutes(api)
	poHandler.RegisterRoutes(api)
	auditHandler.RegisterRoutes(api)
	userHandler.RegisterRoutes(api)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", srv.Addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

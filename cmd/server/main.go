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
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/redis/go-redis/v9"
	"github.com/sawaari/driveshare-backend/internal/config"
	"github.com/sawaari/driveshare-backend/internal/database"
	"github.com/sawaari/driveshare-backend/internal/events"
	"github.com/sawaari/driveshare-backend/internal/handlers"
	"github.com/sawaari/driveshare-backend/internal/middleware"
	"github.com/sawaari/driveshare-backend/internal/models"
	"github.com/sawaari/driveshare-backend/internal/services"
	"github.com/sawaari/driveshare-backend/internal/utils"
	"github.com/sawaari/driveshare-backend/pkg/cache"
	"github.com/sawaari/driveshare-backend/pkg/jwt"
	"github.com/sawaari/driveshare-backend/pkg/monitoring"
	"github.com/sawaari/driveshare-backend/pkg/websocket"
	"github.com/sirupsen/logrus"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting DriveShare reservation backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Database
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.WithField("driver", db.Driver).Info("Database connection established")

	// New Relic (optional)
	newRelic, err := monitoring.New(monitoring.Config{
		LicenseKey: cfg.NewRelic.LicenseKey,
		AppName:    cfg.NewRelic.AppName,
		Enabled:    cfg.NewRelic.Enabled,
	})
	if err != nil {
		logger.Fatalf("Failed to initialize New Relic: %v", err)
	}
	defer newRelic.Shutdown(10 * time.Second)

	// Live feed hub
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := websocket.NewHub(logger)
	go hub.Run(hubCtx)

	// Seat event fan-out: live feed, APM and (optionally) Kafka
	publishers := events.Multi{events.NewHubPublisher(hub), events.NewMetricsPublisher(newRelic)}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		if err != nil {
			logger.Fatalf("Failed to create Kafka publisher: %v", err)
		}
		defer kafkaPublisher.Close()
		publishers = append(publishers, kafkaPublisher)
		logger.WithField("topic", cfg.Kafka.Topic).Info("Kafka booking events enabled")
	}

	// Initialize services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTokenExpiry)
	store := database.NewReservationRepository(db.DB)
	sweeper := services.NewExpirySweeper(store, publishers, time.Now, logger)
	reservationService := services.NewReservationService(
		store,
		sweeper,
		services.DefaultAccessPolicy{},
		publishers,
		services.ReservationConfig{
			PaymentWindow: cfg.Reservation.PaymentWindow,
			Currency:      cfg.Reservation.Currency,
			Now:           time.Now,
		},
		logger,
	)

	var auditService *services.AuditService
	if cfg.Security.EnableAuditLog {
		auditService = services.NewAuditService(db)
	}

	cronService := services.NewCronService(sweeper, auditService, newRelic, services.CronSchedules{
		Sweep:          cfg.Reservation.SweepSchedule,
		AutoComplete:   cfg.Reservation.AutoCompleteSchedule,
		AuditRetention: cfg.Security.AuditCleanupSchedule,
		AuditMaxAge:    cfg.Security.AuditRetention,
	})
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}

	// Idempotency replay cache (optional)
	var idempotencyStore middleware.IdempotencyStore
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = cache.NewRedisClient(cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			logger.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer cache.Close(redisClient)
		idempotencyStore = middleware.NewRedisIdempotencyStore(redisClient, cfg.Reservation.IdempotencyTTL)
		logger.Info("Idempotency-Key replay enabled")
	}

	if err := handlers.RegisterValidators(); err != nil {
		logger.Fatalf("Failed to register validators: %v", err)
	}
	reservationHandler := handlers.NewReservationHandler(reservationService, auditService, logger)
	tripHandler := handlers.NewTripHandler(reservationService, auditService, logger)
	adminHandler := handlers.NewAdminHandler(reservationService, cronService, auditService, logger)
	liveHandler := handlers.NewLiveHandler(reservationService, hub, cfg.CORS.AllowedOrigins, logger)

	logger.Info("Services initialized")

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	if newRelic.IsEnabled() {
		router.Use(nrgin.Middleware(newRelic.Application))
	}
	if cfg.Security.EnableRequestLog {
		router.Use(requestLogger(logger))
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", middleware.ReplayedHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", healthCheckHandler(db, redisClient, hub))

	idempotent := middleware.Idempotency(idempotencyStore, logger)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware(jwtService))
	{
		bookings := v1.Group("/bookings")
		{
			bookings.POST("", idempotent, reservationHandler.CreateBooking)
			bookings.POST("/:id/confirm", idempotent, reservationHandler.ConfirmBooking)
			bookings.POST("/:id/cancel", reservationHandler.CancelBooking)
			bookings.GET("/:id/receipt", reservationHandler.GetReceipt)
		}

		trips := v1.Group("/trips")
		{
			trips.GET("", tripHandler.ListTrips)
			trips.GET("/:id", tripHandler.GetTrip)
			trips.POST("/:id/cancel", tripHandler.CancelTrip)
			trips.GET("/:id/live", liveHandler.WatchTrip)
		}

		v1.GET("/rider/bookings", reservationHandler.ListRiderBookings)
		v1.GET("/driver/bookings", middleware.RequireRole(models.RoleDriver, models.RoleAdmin), reservationHandler.ListOwnerBookings)
		v1.GET("/driver/stats", middleware.RequireRole(models.RoleDriver, models.RoleAdmin), reservationHandler.GetDriverStats)

		admin := v1.Group("/admin")
		admin.Use(middleware.RequireRole(models.RoleAdmin))
		{
			admin.POST("/sweep", adminHandler.RunSweep)
			admin.GET("/jobs", adminHandler.GetJobStatus)
			admin.GET("/trips/:id/consistency", adminHandler.CheckConsistency)
			admin.GET("/users/:id/audit", adminHandler.GetAuditTrail)
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cronService.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		userAgent := utils.GetUserAgent(c)
		device := utils.ParseUserAgent(userAgent)
		fields := logrus.Fields{
			"status":      c.Writer.Status(),
			"method":      c.Request.Method,
			"path":        path,
			"query":       c.Request.URL.RawQuery,
			"ip":          utils.GetRealIP(c),
			"latency_ms":  time.Since(start).Milliseconds(),
			"device_type": device.DeviceType,
			"platform":    device.Platform,
			"has_auth":    c.GetHeader("Authorization") != "",
		}
		if userCtx, ok := middleware.GetUserContext(c); ok {
			fields["user_id"] = userCtx.UserID
			fields["role"] = userCtx.Role
		}
		if c.Writer.Header().Get(middleware.ReplayedHeader) != "" {
			fields["idempotent_replay"] = true
		}

		entry := logger.WithFields(fields)

		if len(c.Errors) > 0 {
			for i, err := range c.Errors {
				entry = entry.WithField(fmt.Sprintf("error_%d", i), err.Error())
			}
			entry.Error("Request failed with errors")
			return
		}

		status := c.Writer.Status()
		switch {
		case status >= 500:
			entry.Error("Request completed with server error")
		case status >= 400:
			entry.Warn("Request completed with client error")
		default:
			entry.Info("Request completed successfully")
		}
	}
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db database.DB, redisClient *redis.Client, hub *websocket.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		body := gin.H{
			"status":       "healthy",
			"database":     "healthy",
			"live_clients": hub.GetActiveConnections(),
			"version":      version,
			"timestamp":    time.Now().Unix(),
		}
		if redisClient != nil {
			body["redis"] = cache.GetClientStats(redisClient)
		}
		c.JSON(http.StatusOK, body)
	}
}

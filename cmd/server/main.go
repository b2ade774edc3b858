package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-reservation-engine/internal/cache"
	"github.com/smarttransit/seat-reservation-engine/internal/config"
	"github.com/smarttransit/seat-reservation-engine/internal/database"
	"github.com/smarttransit/seat-reservation-engine/internal/events"
	"github.com/smarttransit/seat-reservation-engine/internal/handlers"
	"github.com/smarttransit/seat-reservation-engine/internal/metrics"
	"github.com/smarttransit/seat-reservation-engine/internal/middleware"
	"github.com/smarttransit/seat-reservation-engine/internal/services"
	"github.com/smarttransit/seat-reservation-engine/pkg/jwt"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

// storage bundles the stores selected by STORAGE_DRIVER
type storage struct {
	buses database.BusStore
	seats database.SeatStore
	db    database.DB // nil in memory mode
}

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting SmartTransit Seat Reservation Engine")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engineCfg, err := services.EngineConfigFromPolicy(cfg.Booking)
	if err != nil {
		logger.Fatalf("Invalid booking policy: %v", err)
	}

	store, closeStore := openStorage(cfg, engineCfg, logger)
	defer closeStore()

	availabilityCache, closeCache := openCache(cfg, logger)
	defer closeCache()

	publisher := openPublisher(cfg, logger)
	defer publisher.Close()

	// Initialize services
	logger.Info("Initializing services...")
	m := metrics.New()
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)
	auditService := services.NewAuditService(store.db, logger)
	notifier := services.NewBookingNotifier(availabilityCache, publisher, auditService, logger)
	locker := services.NewSeatLocker(store.seats, engineCfg, m, logger)

	reservationService := services.NewReservationService(store.buses, locker, notifier, m, logger, engineCfg)
	lifecycleService := services.NewBookingLifecycleService(store.buses, store.seats, locker, notifier, m, logger, engineCfg)
	availabilityService := services.NewAvailabilityService(store.buses, store.seats, availabilityCache, logger, engineCfg)
	busService := services.NewBusService(store.buses, logger, engineCfg)

	// Pending bookings are released by the sweep
	cronService := services.NewCronService(lifecycleService, cfg.Booking.ExpirySweepSchedule, logger)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}

	rateLimiter := middleware.NewRateLimiter(
		cfg.RateLimit.Requests,
		time.Duration(cfg.RateLimit.WindowSeconds)*time.Second,
		cfg.RateLimit.Burst,
	)
	defer rateLimiter.Stop()

	logger.Info("Services initialized")

	// Setup router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "Retry-After", "X-RateLimit-Limit"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", healthCheckHandler(store.db, cfg.Database.Driver))
	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(m.Handler()))
	}

	apiRouter := &handlers.Router{
		Bookings:    handlers.NewBookingHandler(reservationService, lifecycleService, engineCfg.Now, logger),
		Payments:    handlers.NewPaymentHandler(lifecycleService, logger),
		Buses:       handlers.NewBusHandler(busService, availabilityService, logger),
		Admin:       handlers.NewAdminHandler(lifecycleService, cronService, logger),
		JWT:         jwtService,
		RateLimiter: rateLimiter,
		Logger:      logger,
	}
	apiRouter.Register(router.Group("/api/v1"))

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	// Let an in-flight sweep finish before the stores close
	logger.Info("Stopping cron service...")
	cronService.Stop()

	logger.Info("Server exited successfully")
}

func openStorage(cfg *config.Config, engineCfg services.EngineConfig, logger *logrus.Logger) (storage, func()) {
	if cfg.Database.Driver == config.StorageDriverMemory {
		logger.Warn("Using in-memory storage; bookings are lost on restart and seat locks are process-local")
		mem := database.NewMemoryStore()
		return storage{buses: mem, seats: mem}, func() {}
	}

	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	logger.Info("Database connection established")

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			logger.Fatalf("Failed to apply schema: %v", err)
		}
		logger.Info("Database schema applied")
	}

	return storage{
			buses: database.NewBusRepository(db),
			seats: database.NewSeatRepository(db.DB, engineCfg.LockTimeout),
			db:    db,
		}, func() {
			if err := db.Close(); err != nil {
				logger.WithError(err).Warn("Failed to close database")
			}
		}
}

func openCache(cfg *config.Config, logger *logrus.Logger) (cache.AvailabilityCache, func()) {
	if cfg.Redis.URL == "" {
		logger.Info("REDIS_URL not set, seat map cache disabled")
		return cache.NopAvailabilityCache{}, func() {}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := cache.NewRedisClient(ctx, cfg.Redis.URL)
	if err != nil {
		// the cache only serves the display path
		logger.WithError(err).Warn("Redis unavailable, seat map cache disabled")
		return cache.NopAvailabilityCache{}, func() {}
	}
	logger.WithField("ttl", cfg.Redis.AvailabilityTTL.String()).Info("Seat map cache enabled")

	return cache.NewRedisAvailabilityCache(client, cfg.Redis.AvailabilityTTL, logger), func() {
		if err := client.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close Redis client")
		}
	}
}

func openPublisher(cfg *config.Config, logger *logrus.Logger) events.Publisher {
	if len(cfg.Kafka.Brokers) == 0 {
		logger.Info("KAFKA_BROKERS not set, booking events are logged only")
		return events.NewLogPublisher(logger)
	}

	publisher, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.BookingTopic)
	if err != nil {
		logger.WithError(err).Warn("Kafka unavailable, booking events are logged only")
		return events.NewLogPublisher(logger)
	}
	logger.WithFields(logrus.Fields{
		"brokers": cfg.Kafka.Brokers,
		"topic":   cfg.Kafka.BookingTopic,
	}).Info("Booking events published to Kafka")
	return publisher
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         c.ClientIP(),
			"latency_ms": latency.Milliseconds(),
			"user_agent": c.Request.UserAgent(),
			"has_auth":   c.GetHeader("Authorization") != "",
		}

		// Add user context if available
		if userCtx, exists := middleware.GetUserContext(c); exists {
			fields["user_id"] = userCtx.UserID
			fields["role"] = userCtx.Role
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
func healthCheckHandler(db database.DB, driver string) gin.HandlerFunc {
	return func(c *gin.Context) {
		dbStatus := "healthy"
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":   "unhealthy",
					"database": "unhealthy",
					"storage":  driver,
					"error":    err.Error(),
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  dbStatus,
			"storage":   driver,
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}

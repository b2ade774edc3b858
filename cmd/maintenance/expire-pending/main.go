package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-reservation-engine/internal/config"
	"github.com/smarttransit/seat-reservation-engine/internal/database"
	"github.com/smarttransit/seat-reservation-engine/internal/events"
	"github.com/smarttransit/seat-reservation-engine/internal/metrics"
	"github.com/smarttransit/seat-reservation-engine/internal/services"
)

// expire-pending runs one expiry sweep against the database, for use when
// the server's scheduler is disabled or a backlog needs clearing by hand.
func main() {
	var dbURLFlag string
	var batch int
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.IntVar(&batch, "batch", 500, "maximum bookings to release")
	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	db, err := database.NewConnection(config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     5,
		MaxIdleConnections: 2,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	cfg := services.DefaultEngineConfig()
	cfg.ExpiryBatchSize = batch

	m := metrics.New()
	seats := database.NewSeatRepository(db.DB, cfg.LockTimeout)
	buses := database.NewBusRepository(db)
	locker := services.NewSeatLocker(seats, cfg, m, logger)
	// no cache client here; the server's cache entries age out on their TTL
	notifier := services.NewBookingNotifier(nil, events.NewLogPublisher(logger), services.NewAuditService(db, logger), logger)
	lifecycle := services.NewBookingLifecycleService(buses, seats, locker, notifier, m, logger, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	expired, err := lifecycle.ExpirePending(ctx)
	if err != nil {
		log.Fatalf("expiry sweep failed: %v", err)
	}
	logger.WithField("expired", expired).Info("Expiry sweep finished")
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinicvoice-core/internal/availability"
	"github.com/wolfman30/clinicvoice-core/internal/booking"
	"github.com/wolfman30/clinicvoice-core/internal/cache"
	"github.com/wolfman30/clinicvoice-core/internal/clinic"
	appconfig "github.com/wolfman30/clinicvoice-core/internal/config"
	appmiddleware "github.com/wolfman30/clinicvoice-core/internal/http/middleware"
	"github.com/wolfman30/clinicvoice-core/internal/ids"
	"github.com/wolfman30/clinicvoice-core/internal/observability/metrics"
	"github.com/wolfman30/clinicvoice-core/internal/pmsclient"
	"github.com/wolfman30/clinicvoice-core/internal/store"
	"github.com/wolfman30/clinicvoice-core/internal/webhook"
	"github.com/wolfman30/clinicvoice-core/migrations"
	"github.com/wolfman30/clinicvoice-core/pkg/logging"

	"github.com/golang-migrate/migrate/v4"
	pgmigrate "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinicvoice-core API server", "env", cfg.Env, "port", cfg.Port)

	appCtx, stop := context.WithCancel(context.Background())
	defer stop()

	registry := prometheus.NewRegistry()
	coreMetrics := metrics.NewCoreMetrics(registry)
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	dbPool := connectPostgresPool(appCtx, cfg.DatabaseURL, logger)
	if dbPool == nil {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	defer dbPool.Close()

	sqlDB := connectSQLDB(dbPool, logger)
	defer sqlDB.Close()
	runAutoMigrate(sqlDB, logger)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := redisClient.Ping(appCtx).Err(); err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	coreStore := store.New(dbPool)

	clinicConfigStore := clinic.NewStore(redisClient, catalogClinicLookup{catalog: coreStore.Catalog()})

	pmsFactory := pmsclient.NewFactory(pmsclient.FactoryConfig{
		HostTemplate:   cfg.PMSBaseURL,
		HTTPClient:     &http.Client{Timeout: cfg.PMSTimeout},
		Credentials:    coreStore.Catalog(),
		MaxInFlight:    4,
		MaxRetries:     cfg.PMSMaxRetries,
		BackoffCeiling: cfg.PMSTimeout,
		RatePerSecond:  cfg.PMSRequestsPerSecond,
		Logger:         logger,
	})

	availabilityCache := cache.NewAvailabilityCache(redisClient, coreStore.Availability(), logger)
	bookingCtxCache := cache.NewBookingContextCache(redisClient, logger)
	patientCache := cache.NewPatientCache(redisClient, logger)
	serviceMatchCache := cache.NewServiceMatchCache(redisClient, logger)
	statsRecorder := cache.NewStatsRecorder(coreStore.Stats(), logger)

	engine := availability.New(availability.Config{
		Cache:          availabilityCache,
		PMSFactory:     pmsFactory,
		Schedule:       coreStore.Schedules(),
		RejectedSlots:  coreStore.Schedules(),
		FailedAttempts: coreStore.Schedules(),
		ScanDeadline:   cfg.WebhookDeadline,
		Logger:         logger,
	})

	locker := booking.NewLocker(redisClient)
	coordinator := booking.New(coreStore.Bookings(), booking.FactoryAdapter{Factory: pmsFactory}, availabilityCache, locker, logger)

	core := &webhook.CoreContext{
		Catalog:      coreStore.Catalog(),
		ClinicConfig: clinicConfigStore,
		Engine:       engine,
		Coordinator:  coordinator,
		BookingCtx:   bookingCtxCache,
		PatientCache: patientCache,
		ServiceMatch: serviceMatchCache,
		Stats:        statsRecorder,
		PMSFactory:   pmsFactory,
		Metrics:      coreMetrics,
		Logger:       logger,
		Deadline:     cfg.WebhookDeadline,
	}

	clinicHandler := clinic.NewHandler(clinicConfigStore, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(appmiddleware.RequestLogger(logger))
	r.Use(appmiddleware.CORS(cfg.CORSAllowedOrigins))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Handle("/metrics", metricsHandler)
	r.With(appmiddleware.RateLimit(cfg.PMSRequestsPerSecond*4, cfg.PMSBurst*4)).
		Mount("/webhook", webhook.Mount(core, cfg.WebhookAPIKey))
	r.With(appmiddleware.AdminJWT(cfg.AdminJWTSecret)).Mount("/admin/clinics", clinicHandler.Routes())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stop()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// catalogClinicLookup adapts store.CatalogRepository's GetClinic (which
// returns the durable-store projection store.Clinic) to clinic.catalogLookup
// (which wants clinic.ClinicRow), keeping internal/clinic free of an import
// on internal/store.
type catalogClinicLookup struct {
	catalog *store.CatalogRepository
}

func (a catalogClinicLookup) GetClinic(ctx context.Context, clinicID ids.ClinicID) (clinic.ClinicRow, error) {
	row, err := a.catalog.GetClinic(ctx, clinicID)
	if err != nil {
		return clinic.ClinicRow{}, err
	}
	return clinic.ClinicRow{ID: row.ID, Shard: row.Shard, Timezone: row.Timezone}, nil
}

func connectPostgresPool(ctx context.Context, dbURL string, logger *logging.Logger) *pgxpool.Pool {
	if dbURL == "" {
		return nil
	}
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(connectCtx, dbURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	if err := pool.Ping(connectCtx); err != nil {
		logger.Error("failed to ping postgres", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to postgres")
	return pool
}

func connectSQLDB(pool *pgxpool.Pool, logger *logging.Logger) *sql.DB {
	db := stdlib.OpenDBFromPool(pool)
	logger.Info("sql db wrapper initialized")
	return db
}

func runAutoMigrate(db *sql.DB, logger *logging.Logger) {
	srcDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		logger.Error("auto-migrate: failed to open migrations source", "error", err)
		return
	}
	dbDriver, err := pgmigrate.WithInstance(db, &pgmigrate.Config{})
	if err != nil {
		logger.Error("auto-migrate: failed to create db driver", "error", err)
		return
	}
	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		logger.Error("auto-migrate: failed to create migrator", "error", err)
		return
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Error("auto-migrate: migration failed", "error", err)
		return
	}
	logger.Info("auto-migrate: database migrations applied")
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/config"
	addressrepo "github.com/Ramsey-B/fern/internal/repositories/address"
	auditrepo "github.com/Ramsey-B/fern/internal/repositories/audit"
	entityrepo "github.com/Ramsey-B/fern/internal/repositories/entity"
	propertyrepo "github.com/Ramsey-B/fern/internal/repositories/entityproperty"
	personrepo "github.com/Ramsey-B/fern/internal/repositories/person"
	"github.com/Ramsey-B/fern/pkg/audit"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/merge"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/oracle"
	"github.com/Ramsey-B/fern/pkg/planner"
	entityroutes "github.com/Ramsey-B/fern/pkg/routes/entity"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/tracing/exporters"
)

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(&cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, &cfg, logger); err != nil {
		logger.WithError(err).Error("Service exited with error")
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) ectologger.Logger {
	var zapLogger *zap.Logger
	if cfg.PrettyLogs {
		zapLogger, _ = zap.NewDevelopment()
	} else {
		zapLogger, _ = zap.NewProduction()
	}
	return zapadapter.NewZapEctoLogger(zapLogger.With(zap.String("app", cfg.AppName)), nil)
}

func run(ctx context.Context, cfg *config.Config, logger ectologger.Logger) error {
	if cfg.TracingEnabled {
		shutdown, err := setupTracing(ctx, cfg)
		if err != nil {
			return fmt.Errorf("setup tracing: %w", err)
		}
		defer shutdown(context.Background())
	}

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName, cfg.DatabasePassword, cfg.DatabaseName, cfg.DatabaseSSLMode,
	)
	sqlxDB, err := sqlx.Connect(cfg.DatabaseDriver, dsn)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	sqlxDB.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	sqlxDB.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	sqlxDB.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

	db := database.NewDatabaseInstance(sqlxDB, logger)
	defer db.Close()

	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	driver, err := database.NewPostgresDriver(sqlxDB)
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	if err := migrations.Migrate(cfg.DatabaseName, driver); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	entities := entityrepo.NewRepository(db, logger)
	people := personrepo.NewRepository(db, logger)
	addresses := addressrepo.NewRepository(db, logger)
	properties := propertyrepo.NewRepository(db, logger)
	auditLogs := auditrepo.NewRepository(db, logger)

	var emitter *events.Emitter
	var producer *kafka.Producer
	if cfg.KafkaEnabled {
		producer = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaOutputTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
		defer producer.Close()
		emitter = events.NewEmitter(producer, logger)
	}

	oracleClient := oracle.NewClient(oracle.ClientConfig{
		URL:     cfg.OracleURL,
		APIKey:  cfg.OracleAPIKey,
		Timeout: time.Duration(cfg.OracleTimeoutSeconds) * time.Second,
	}, logger)

	dupePlanner := planner.NewPlanner(entities, people, addresses, properties, oracleClient, logger, cfg.MergeWorkerCount)
	validator := merge.NewValidator(entities)
	recorder := audit.NewRecorder(auditLogs, logger)
	executor := merge.NewExecutor(
		db, validator, entities, people, addresses, properties, recorder, emitter, logger,
		time.Duration(cfg.MergeTimeoutSeconds)*time.Second,
	)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.HTTPErrorHandler = middleware.Error(logger)

	checker := health.NewChecker(db, cfg.Version)
	checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	entityHandler := entityroutes.NewHandler(entities, auditLogs, dupePlanner, executor, logger)
	entityHandler.Register(api.Group("/entities"))

	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.ReadHeaderTimeout = time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	boot.AddDependency(&serverDependency{e: e, port: cfg.Port, checker: checker, logger: logger})
	if err := boot.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return boot.Stop(shutdownCtx)
}

func setupTracing(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	exporter, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
		Endpoint: cfg.TracingEndpoint,
		Protocol: cfg.TracingProtocol,
		Insecure: cfg.TracingInsecure,
		Timeout:  10 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.TracingSamplePct)),
	)
	otel.SetTracerProvider(provider)
	tracing.SetTracer(provider.Tracer(cfg.AppName))

	return provider.Shutdown, nil
}

// serverDependency runs the echo server under the startup orchestrator so
// boot retries and ordered shutdown cover it.
type serverDependency struct {
	e       *echo.Echo
	port    int
	checker *health.Checker
	logger  ectologger.Logger
}

func (s *serverDependency) GetName() string { return "http-server" }

func (s *serverDependency) DependsOn() []string { return nil }

func (s *serverDependency) Start(ctx context.Context) error {
	go func() {
		if err := s.e.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server stopped unexpectedly")
		}
	}()
	s.checker.SetReady(true)
	return nil
}

func (s *serverDependency) Stop(ctx context.Context) error {
	s.checker.SetReady(false)
	return s.e.Shutdown(ctx)
}

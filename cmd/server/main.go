package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	// Application
	"github.com/dreschagin/reskpoints/internal/application/port"
	"github.com/dreschagin/reskpoints/internal/application/usecase"

	// Domain
	"github.com/dreschagin/reskpoints/internal/domain/repository"
	"github.com/dreschagin/reskpoints/internal/domain/service"
	"github.com/dreschagin/reskpoints/internal/domain/valueobject"

	// Infrastructure
	"github.com/dreschagin/reskpoints/internal/infrastructure/awsconfig"
	redisCache "github.com/dreschagin/reskpoints/internal/infrastructure/cache/redis"
	"github.com/dreschagin/reskpoints/internal/infrastructure/fanout"
	natsMessaging "github.com/dreschagin/reskpoints/internal/infrastructure/messaging/nats"
	wsInfra "github.com/dreschagin/reskpoints/internal/infrastructure/notification/websocket"
	"github.com/dreschagin/reskpoints/internal/infrastructure/observability/cloudwatch"
	"github.com/dreschagin/reskpoints/internal/infrastructure/observability/metrics"
	"github.com/dreschagin/reskpoints/internal/infrastructure/persistence/clickhouse"
	"github.com/dreschagin/reskpoints/internal/infrastructure/persistence/memory"
	"github.com/dreschagin/reskpoints/internal/infrastructure/persistence/postgres"
	s3storage "github.com/dreschagin/reskpoints/internal/infrastructure/storage/s3"

	// Interfaces
	httpInterface "github.com/dreschagin/reskpoints/internal/interfaces/http"
	"github.com/dreschagin/reskpoints/internal/interfaces/http/handler"
	"github.com/dreschagin/reskpoints/internal/interfaces/http/middleware"

	// Shared
	"github.com/dreschagin/reskpoints/pkg/config"
	"github.com/dreschagin/reskpoints/pkg/logger"

	_ "github.com/lib/pq"
)

// closer - ресурс, который нужно освободить при остановке
type closer struct {
	name  string
	close func(ctx context.Context) error
}

func main() {
	// 1. Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Инициализируем logger
	log := logger.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format)
	defer func() { _ = log.Sync() }()
	log.Info("Starting ResKPoints")

	if err := run(cfg, log); err != nil {
		log.Error("ResKPoints stopped with error", err)
		_ = log.Sync()
		os.Exit(1)
	}

	log.Info("Server stopped gracefully")
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var closers []closer
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].close(shutdownCtx); err != nil {
				log.Warn("Failed to close resource", "resource", closers[i].name, "error", err)
			}
		}
	}()

	rules, err := config.LoadRules(cfg.Incident.RulesFile)
	if err != nil {
		return fmt.Errorf("failed to load ticket rules: %w", err)
	}

	// 3. Prometheus
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	telemetry := metrics.New(registry)

	// 4. Хранилища: PostgreSQL/TimescaleDB или память
	var (
		sinks       []fanout.NamedSink
		tickets     repository.TicketRepository
		reports     repository.MetricReportRepository
		readiness   = map[string]httpInterface.Pinger{}
		memoryStore *memory.MetricStore
	)

	if cfg.Database.Enabled {
		db, err := openDatabase(ctx, cfg.Database, log)
		if err != nil {
			return err
		}
		closers = append(closers, closer{"postgres", func(context.Context) error { return db.Close() }})

		store := postgres.NewMetricStore(db)
		sinks = append(sinks, fanout.NamedSink{Name: "postgres", Sink: store})
		tickets = postgres.NewTicketRepository(db)
		reports = store
		readiness["postgres"] = store
	} else {
		log.Warn("Database is disabled, using in-memory storage")
		memoryStore = memory.NewMetricStore(0)
		sinks = append(sinks, fanout.NamedSink{Name: "memory", Sink: memoryStore})
		tickets = memory.NewTicketRepository()
		reports = memoryStore
	}

	// 5. Redis cache
	var cache port.Cache
	if cfg.Redis.Enabled {
		rc, err := redisCache.NewRedisCache(redisCache.Options{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			TTL:          cfg.Redis.TTL,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		closers = append(closers, closer{"redis", func(context.Context) error { return rc.Close() }})
		cache = rc
		readiness["redis"] = rc
		log.Info("Redis cache connected", "host", cfg.Redis.Host)
	}

	// 6. Аналитические и архивные sinks
	if cfg.ClickHouse.Enabled {
		ch, err := clickhouse.NewAnalyticsSink(ctx, cfg.ClickHouse, log)
		if err != nil {
			return fmt.Errorf("failed to initialize clickhouse: %w", err)
		}
		closers = append(closers, closer{"clickhouse", func(context.Context) error { return ch.Close() }})
		sinks = append(sinks, fanout.NamedSink{Name: "clickhouse", Sink: ch})
	}

	awsOptions := awsconfig.Options{
		Region:          cfg.AWS.Region,
		Endpoint:        cfg.AWS.Endpoint,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
	}

	if cfg.AWS.CloudWatch.Enabled {
		cwMetrics, err := cloudwatch.NewMetricsPublisher(ctx, cloudwatch.MetricsPublisherConfig{
			Namespace: cfg.AWS.CloudWatch.Namespace,
			AWS:       awsOptions,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to initialize cloudwatch metrics: %w", err)
		}
		closers = append(closers, closer{"cloudwatch-metrics", cwMetrics.Close})

		cwLogs, err := cloudwatch.NewLogsPublisher(ctx, cloudwatch.LogsPublisherConfig{
			LogGroupName:  cfg.AWS.CloudWatch.LogGroupName,
			LogStreamName: cfg.AWS.CloudWatch.LogStreamName,
			AWS:           awsOptions,
			AutoCreate:    cfg.AWS.CloudWatch.AutoCreate,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to initialize cloudwatch logs: %w", err)
		}
		closers = append(closers, closer{"cloudwatch-logs", cwLogs.Close})

		sinks = append(sinks, fanout.NamedSink{Name: "cloudwatch", Sink: cloudwatch.NewSink(cwMetrics, cwLogs)})
	}

	if cfg.AWS.S3.Enabled {
		s3Options := awsOptions
		if cfg.AWS.S3.Endpoint != "" {
			s3Options.Endpoint = cfg.AWS.S3.Endpoint
		}
		objects, err := s3storage.NewObjectStorage(ctx, s3storage.Config{
			Bucket:       cfg.AWS.S3.Bucket,
			AWS:          s3Options,
			UsePathStyle: cfg.AWS.S3.UsePathStyle,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize s3 storage: %w", err)
		}
		sinks = append(sinks, fanout.NamedSink{Name: "s3-archive", Sink: s3storage.NewArchiveSink(objects, cfg.AWS.S3.KeyPrefix)})
	}

	log.Info("Ingestion sinks configured", "count", len(sinks))

	// 7. Уведомления: WebSocket, NATS, журнал
	hub := wsInfra.NewHub(log)
	notifiers := fanout.Notifiers{hub, fanout.NewLogNotifier(log)}
	ticketEvents := fanout.TicketEvents{hub}

	if cfg.NATS.Enabled {
		publisher, err := natsMessaging.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix, log)
		if err != nil {
			return fmt.Errorf("failed to connect to nats: %w", err)
		}
		closers = append(closers, closer{"nats", func(context.Context) error { return publisher.Close() }})
		notifiers = append(notifiers, publisher)
		ticketEvents = append(ticketEvents, publisher)
	}

	// 8. Domain и application слои
	detector := service.NewAnomalyDetector(service.DetectorConfig{
		HistoryCapacity: cfg.Detector.HistoryCapacity,
		WindowSize:      cfg.Detector.WindowSize,
		MinHistory:      cfg.Detector.MinHistory,
		ZThreshold:      cfg.Detector.ZThreshold,
		ModelMinHistory: cfg.Detector.ModelMinHistory,
		RetrainEvery:    cfg.Detector.RetrainEvery,
		Forest: service.ForestConfig{
			Trees:         cfg.Detector.Trees,
			SampleSize:    cfg.Detector.SampleSize,
			Contamination: cfg.Detector.Contamination,
			Seed:          cfg.Detector.Seed,
		},
		SeriesTTL: cfg.Detector.SeriesTTL,
		MaxSeries: cfg.Detector.MaxSeries,
	}, telemetry, time.Now, log)

	buffer := usecase.NewIngestionBuffer(usecase.IngestionConfig{
		MaxBatchSize:  cfg.Ingestion.MaxBatchSize,
		FlushInterval: cfg.Ingestion.FlushInterval,
	}, detector, fanout.NewSinks(sinks...), notifiers, telemetry, nil, log)

	lifecycle := usecase.NewTicketLifecycle(
		tickets,
		service.NewAssigner(rules.Assignment),
		cache,
		cfg.Incident.MetricsCacheTTL,
		ticketEvents,
		telemetry,
		nil,
		log,
	)

	if cfg.Incident.Enabled {
		buffer.AddObserver(usecase.NewIncidentBridge(lifecycle, usecase.IncidentBridgeConfig{
			MinSeverity: valueobject.Severity(cfg.Incident.MinSeverity),
			DedupWindow: cfg.Incident.DedupWindow,
		}, log))
	}

	modelMetrics := usecase.NewGetModelMetricsUseCase(reports, cache, cfg.Redis.ModelMetricsTTL, nil, log)
	submissions := usecase.NewSubmissionService(buffer, lifecycle, modelMetrics, nil, nil, log)

	var (
		engine           *usecase.EscalationEngine
		escalationStatus handler.EscalationStatusProvider
	)
	if cfg.Escalation.Enabled {
		engine = usecase.NewEscalationEngine(lifecycle, rules.Escalation, notifiers, nil, log, cfg.Escalation.Interval)
		escalationStatus = engine
		engine.Start(ctx)
		log.Info("Escalation engine started", "interval", cfg.Escalation.Interval.String())
	}

	// 9. HTTP
	authConfig := middleware.AuthConfig{
		Enabled:     cfg.Security.AuthEnabled,
		BearerToken: cfg.Security.AuthToken,
	}

	router := httpInterface.NewRouter(
		httpInterface.Handlers{
			Metrics:    handler.NewMetricsAPIHandler(submissions, 0, log),
			Errors:     handler.NewErrorAPIHandler(submissions, log),
			Tickets:    handler.NewTicketAPIHandler(submissions, log),
			Escalation: handler.NewEscalationAPIHandler(escalationStatus),
			WebSocket:  handler.NewWebSocketHandler(hub, cfg.Security.AllowedOrigins, authConfig, log),
		},
		telemetry,
		registry,
		readiness,
		cfg.Security,
		log,
	)
	defer router.Close()

	// 10. Запускаем фоновые процессы
	go hub.Run(ctx)
	buffer.Start(ctx)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// 11. Ожидаем сигнал для graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		log.Info("Shutdown signal received, starting graceful shutdown...", "signal", sig.String())
	case err := <-serverErr:
		runErr = fmt.Errorf("http server failed: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", err)
	}

	// Фоновые циклы завершаются до закрытия хранилищ и брокера
	if engine != nil {
		if err := engine.Stop(shutdownCtx); err != nil {
			log.Error("Escalation engine stop error", err)
		}
	}
	if err := buffer.Stop(shutdownCtx); err != nil {
		log.Error("Ingestion buffer stop error", err)
	}
	if memoryStore != nil {
		samples, errs := memoryStore.Stats()
		log.Info("In-memory storage discarded on exit", "samples", samples, "errors", errs)
	}

	cancel()
	return runErr
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Настраиваем connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	log.Info("Database connected successfully", "host", cfg.Host, "database", cfg.Database)

	if cfg.AutoMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		log.Info("Database schema is up to date")
	}

	return db, nil
}

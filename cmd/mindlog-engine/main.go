package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mindlog/mindlog/internal/config"
	"github.com/mindlog/mindlog/internal/domain/alert"
	"github.com/mindlog/mindlog/internal/domain/risk"
	"github.com/mindlog/mindlog/internal/domain/rules"
	"github.com/mindlog/mindlog/internal/domain/timeseries"
	"github.com/mindlog/mindlog/internal/platform/db"
	"github.com/mindlog/mindlog/internal/platform/inference"
	"github.com/mindlog/mindlog/internal/platform/metrics"
	"github.com/mindlog/mindlog/internal/platform/middleware"
	"github.com/mindlog/mindlog/internal/platform/queue"
	"github.com/mindlog/mindlog/internal/platform/websocket"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mindlog-engine",
		Short: "MindLog clinical evaluation engine",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(evaluateCmd())
	rootCmd.AddCommand(nightlyCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func newRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// engine wires the full evaluation stack from configuration.
type engine struct {
	cfg       *config.Config
	logger    zerolog.Logger
	pool      *pgxpool.Pool
	redis     *redis.Client
	metrics   *metrics.Collector
	hub       *websocket.Hub
	alerts    *alert.Service
	risk      *risk.Aggregator
	queue     *queue.Queue
	directory timeseries.Directory
	handler   queue.Handler
}

// buildEngine wires the stack. A nil publisher selects the WebSocket hub;
// the one-shot commands pass alert.NopPublisher to skip broadcasting.
func buildEngine(ctx context.Context, logger zerolog.Logger, publisher alert.Publisher) (*engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	redisClient, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		pool.Close()
		return nil, err
	}

	collector := metrics.NewCollector(redisClient, logger)
	hub := websocket.NewHub(logger)

	reader := timeseries.NewReaderPG(pool)
	directory := timeseries.NewDirectoryPG(pool)
	alerts := alert.NewService(alert.NewRepoPG(pool), collector, logger)
	if publisher == nil {
		publisher = alert.NewHubPublisher(hub)
	}
	aggregator := risk.NewAggregator(risk.DefaultEvaluators(reader), risk.NewRepoPG(pool), collector, logger)

	analyzer := inference.New(inference.Config{
		Enabled: cfg.JournalAnalysisEnabled(),
		URL:     cfg.InferenceURL,
		APIKey:  cfg.InferenceAPIKey,
		Timeout: cfg.InferenceTimeoutDuration(),
	})

	orchestrator := rules.NewOrchestrator(
		rules.DefaultRules(reader, analyzer, collector, logger),
		alerts, publisher, aggregator, collector, logger,
	)

	return &engine{
		cfg:       cfg,
		logger:    logger,
		pool:      pool,
		redis:     redisClient,
		metrics:   collector,
		hub:       hub,
		alerts:    alerts,
		risk:      aggregator,
		queue:     queue.New(redisClient, cfg.QueueMaxAttempts, logger),
		directory: directory,
		handler:   orchestrator,
	}, nil
}

func (e *engine) Close() {
	e.pool.Close()
	if err := e.redis.Close(); err != nil {
		e.logger.Warn().Err(err).Msg("redis close failed")
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the evaluation engine: HTTP API, WebSocket hub, and queue workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	logger := newLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng, err := buildEngine(ctx, logger, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build engine")
	}
	defer eng.Close()
	logger.Info().Msg("connected to database and redis")

	// Queue consumers and the metrics reporter run for the life of the
	// process.
	consumer := queue.NewConsumer(eng.queue, eng.handler, eng.cfg.WorkerConcurrency, logger)
	go consumer.Run(ctx)
	go eng.metrics.Run(ctx)

	// HTTP surface
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: eng.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", func(c echo.Context) error {
		return c.JSON(http.StatusOK, eng.metrics.Snapshot())
	})

	apiV1 := e.Group("/api/v1")
	alert.NewHandler(eng.alerts).RegisterRoutes(apiV1)
	risk.NewHandler(eng.risk).RegisterRoutes(apiV1)
	newEvaluationHandler(eng).RegisterRoutes(apiV1)

	wsGroup := e.Group("/ws")
	websocket.NewHandler(eng.hub).RegisterRoutes(wsGroup)

	go func() {
		addr := ":" + eng.cfg.Port
		logger.Info().Str("addr", addr).Msg("starting engine")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down engine")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("engine stopped")
	return nil
}

// evaluationHandler exposes the job-enqueue contract the check-in flow calls
// on submission.
type evaluationHandler struct {
	eng *engine
}

func newEvaluationHandler(eng *engine) *evaluationHandler {
	return &evaluationHandler{eng: eng}
}

func (h *evaluationHandler) RegisterRoutes(api *echo.Group) {
	api.POST("/evaluations", h.Enqueue)
}

type enqueueRequest struct {
	PatientID uuid.UUID `json:"patient_id"`
	OrgID     uuid.UUID `json:"org_id"`
	EntryDate time.Time `json:"entry_date"`
}

func (h *evaluationHandler) Enqueue(c echo.Context) error {
	var req enqueueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.PatientID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}
	if req.EntryDate.IsZero() {
		req.EntryDate = time.Now().UTC()
	}
	job := queue.Job{
		PatientID:   req.PatientID,
		OrgID:       req.OrgID,
		EntryDate:   req.EntryDate,
		TriggeredBy: queue.TriggerImmediate,
	}
	if err := h.eng.queue.Enqueue(c.Request().Context(), job); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "queued"})
}

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run one evaluation unit synchronously (bypasses the queue)",
		RunE: func(cmd *cobra.Command, args []string) error {
			patientArg, _ := cmd.Flags().GetString("patient")
			orgArg, _ := cmd.Flags().GetString("org")
			dateArg, _ := cmd.Flags().GetString("date")

			patientID, err := uuid.Parse(patientArg)
			if err != nil {
				return fmt.Errorf("--patient must be a uuid: %w", err)
			}
			orgID, err := uuid.Parse(orgArg)
			if err != nil {
				return fmt.Errorf("--org must be a uuid: %w", err)
			}
			asOf := time.Now().UTC()
			if dateArg != "" {
				asOf, err = time.Parse("2006-01-02", dateArg)
				if err != nil {
					return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
				}
			}

			logger := newLogger()
			ctx := context.Background()
			eng, err := buildEngine(ctx, logger, alert.NopPublisher{})
			if err != nil {
				return err
			}
			defer eng.Close()

			job := queue.Job{
				PatientID:   patientID,
				OrgID:       orgID,
				EntryDate:   asOf,
				TriggeredBy: queue.TriggerImmediate,
			}
			if err := eng.handler.Process(ctx, job); err != nil {
				return fmt.Errorf("evaluation failed: %w", err)
			}
			fmt.Println("Evaluation complete.")
			return nil
		},
	}
	cmd.Flags().String("patient", "", "Patient ID (uuid)")
	cmd.Flags().String("org", "", "Organization ID (uuid)")
	cmd.Flags().String("date", "", "As-of date (YYYY-MM-DD, default today)")
	return cmd
}

func nightlyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nightly",
		Short: "Enqueue the nightly batch over the active patient population",
		RunE: func(cmd *cobra.Command, args []string) error {
			dateArg, _ := cmd.Flags().GetString("date")
			asOf := time.Now().UTC()
			if dateArg != "" {
				var err error
				asOf, err = time.Parse("2006-01-02", dateArg)
				if err != nil {
					return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
				}
			}

			logger := newLogger()
			ctx := context.Background()
			eng, err := buildEngine(ctx, logger, alert.NopPublisher{})
			if err != nil {
				return err
			}
			defer eng.Close()

			n, err := rules.EnqueueNightly(ctx, eng.directory, eng.queue, asOf)
			if err != nil {
				return fmt.Errorf("nightly enqueue failed after %d patients: %w", n, err)
			}
			fmt.Printf("Enqueued %d evaluation job(s).\n", n)
			return nil
		},
	}
	cmd.Flags().String("date", "", "As-of date (YYYY-MM-DD, default today)")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

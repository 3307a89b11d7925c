package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator"
	"github.com/golang-migrate/migrate/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rabbitmq/amqp091-go"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/docgraph-io/docgraph/internal/graphs"
	"github.com/docgraph-io/docgraph/internal/queue"
	mid "github.com/docgraph-io/docgraph/internal/server/middleware"
	"github.com/docgraph-io/docgraph/internal/util"
	"github.com/docgraph-io/docgraph/pkg/config"
	"github.com/docgraph-io/docgraph/pkg/embed"
	oemb "github.com/docgraph-io/docgraph/pkg/embed/ollama"
	gemb "github.com/docgraph-io/docgraph/pkg/embed/openai"
	"github.com/docgraph-io/docgraph/pkg/leaselock"
	"github.com/docgraph-io/docgraph/pkg/logger"
	"github.com/docgraph-io/docgraph/pkg/store"
	pgxstore "github.com/docgraph-io/docgraph/pkg/store/pgx"
	s3store "github.com/docgraph-io/docgraph/pkg/store/s3"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

// NewEmbedder builds the embedding provider selected by AI_ADAPTER.
// Returns nil when no provider is configured; clients must then supply
// precomputed embeddings.
func NewEmbedder(cfg config.Config) embed.Embedder {
	adapter := util.GetEnv("AI_ADAPTER")
	switch adapter {
	case "ollama":
		client, err := oemb.NewOllamaEmbedder(oemb.NewOllamaEmbedderParams{
			Model:                 util.GetEnv("AI_EMBED_MODEL"),
			Dimension:             cfg.KnowledgeGraph.EmbeddingDimension,
			BaseURL:               util.GetEnv("AI_EMBED_URL"),
			APIKey:                util.GetEnv("AI_EMBED_KEY"),
			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 15)),
		})
		if err != nil {
			logger.Fatal("Failed to create Ollama embedder", "err", err)
		}
		return client
	case "openai":
		client, err := gemb.NewOpenAIEmbedder(gemb.NewOpenAIEmbedderParams{
			Model:                 util.GetEnv("AI_EMBED_MODEL"),
			Dimension:             cfg.KnowledgeGraph.EmbeddingDimension,
			BaseURL:               util.GetEnv("AI_EMBED_URL"),
			APIKey:                util.GetEnv("AI_EMBED_KEY"),
			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 15)),
		})
		if err != nil {
			logger.Fatal("Failed to create OpenAI embedder", "err", err)
		}
		return client
	default:
		return nil
	}
}

// RunMigrations applies the SQL migrations against the configured
// database.
func RunMigrations(databaseURL string) {
	sourceURL := util.GetEnvString("MIGRATIONS_URL", "file://migrations")
	m, err := migrate.New(sourceURL, databaseURL)
	if err != nil {
		logger.Fatal("Failed to initialize migrations", "err", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Fatal("Failed to run migrations", "err", err)
	}
}

func Init() {
	cfg, err := config.Load(util.GetEnv("CONFIG_PATH"))
	if err != nil {
		logger.Fatal("Invalid configuration", "err", err)
	}

	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var storage store.GraphStorage
	var locks *leaselock.Client
	databaseURL := util.GetEnv("DATABASE_URL")
	if databaseURL != "" {
		RunMigrations(databaseURL)

		poolCfg, err := pgxpool.ParseConfig(databaseURL)
		if err != nil {
			logger.Fatal("Invalid database URL", "err", err)
		}
		poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			return pgxvec.RegisterTypes(ctx, conn)
		}
		conn, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			logger.Fatal("Failed to connect to database", "err", err)
		}
		defer conn.Close()
		storage = pgxstore.NewGraphDBStorageWithConnection(conn)
		locks = leaselock.New(conn)
	}

	var snapshots store.SnapshotStore
	if util.GetEnv("AWS_BUCKET") != "" {
		s3Client, err := s3store.NewSnapshotStore(ctx, s3store.NewSnapshotStoreParams{})
		if err != nil {
			logger.Fatal("Failed to create snapshot store", "err", err)
		}
		snapshots = s3Client
	}

	var queueCh *amqp091.Channel
	if util.GetEnv("RABBITMQ_HOST") != "" {
		que := queue.Init()
		defer que.Close()
		queueCh, err = que.Channel()
		if err != nil {
			logger.Fatal("Failed to open channel", "err", err)
		}
		defer queueCh.Close()
		if err := queue.SetupQueues(queueCh, queue.Queues); err != nil {
			logger.Fatal("Failed to set up queues", "err", err)
		}
	}

	embedder := NewEmbedder(cfg)

	manager := graphs.NewManager(graphs.NewManagerParams{
		Config:        cfg,
		Embedder:      embedder,
		Storage:       storage,
		Snapshots:     snapshots,
		Locks:         locks,
		ParallelUnits: int(util.GetEnvNumeric("PARALLEL_UNITS", 4)),
	})

	app := &mid.App{
		Manager:      manager,
		Queue:        queueCh,
		Embedder:     embedder,
		MasterAPIKey: util.GetEnv("MASTER_API_KEY"),
	}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(echomw.CORS())
	e.Use(echomw.RequestLogger())
	e.Use(echomw.Recover())
	e.Use(echomw.BodyLimit("64M"))

	RegisterRoutes(e)

	go func() {
		port := util.GetEnv("PORT")
		if port == "" {
			port = "8080"
		}
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}

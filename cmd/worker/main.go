package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/golang-migrate/migrate/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/docgraph-io/docgraph/internal/graphs"
	"github.com/docgraph-io/docgraph/internal/queue"
	"github.com/docgraph-io/docgraph/internal/server"
	"github.com/docgraph-io/docgraph/internal/util"
	"github.com/docgraph-io/docgraph/pkg/config"
	"github.com/docgraph-io/docgraph/pkg/leaselock"
	"github.com/docgraph-io/docgraph/pkg/logger"
	"github.com/docgraph-io/docgraph/pkg/logger/console"
	"github.com/docgraph-io/docgraph/pkg/store"
	pgxstore "github.com/docgraph-io/docgraph/pkg/store/pgx"
	s3store "github.com/docgraph-io/docgraph/pkg/store/s3"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	cfg, err := config.Load(util.GetEnv("CONFIG_PATH"))
	if err != nil {
		logger.Fatal("Invalid configuration", "err", err)
	}

	// Init pgx client
	var storage store.GraphStorage
	var locks *leaselock.Client
	databaseURL := util.GetEnv("DATABASE_URL")
	if databaseURL != "" {
		sourceURL := util.GetEnvString("MIGRATIONS_URL", "file://migrations")
		m, err := migrate.New(sourceURL, databaseURL)
		if err != nil {
			logger.Fatal("Failed to initialize migrations", "err", err)
		}
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logger.Fatal("Failed to run migrations", "err", err)
		}

		poolCfg, err := pgxpool.ParseConfig(databaseURL)
		if err != nil {
			logger.Fatal("Invalid database URL", "err", err)
		}
		poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			return pgxvec.RegisterTypes(ctx, conn)
		}
		pgConn, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			logger.Fatal("Unable to connect to database", "err", err)
		}
		defer pgConn.Close()
		storage = pgxstore.NewGraphDBStorageWithConnection(pgConn)
		locks = leaselock.New(pgConn)
	}

	// Init snapshot store
	var snapshots store.SnapshotStore
	if util.GetEnv("AWS_BUCKET") != "" {
		s3Client, err := s3store.NewSnapshotStore(ctx, s3store.NewSnapshotStoreParams{})
		if err != nil {
			logger.Fatal("Failed to create snapshot store", "err", err)
		}
		snapshots = s3Client
	}

	manager := graphs.NewManager(graphs.NewManagerParams{
		Config:        cfg,
		Embedder:      server.NewEmbedder(cfg),
		Storage:       storage,
		Snapshots:     snapshots,
		Locks:         locks,
		ParallelUnits: int(util.GetEnvNumeric("PARALLEL_UNITS", 4)),
	})

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, queue.Queues); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	logger.Info("Listening for messages")

	// One consumer channel with prefetch=1 so only a single message is in
	// flight across all queues.
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	err = consumerCh.Qos(1, 0, true)
	if err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	type queuedMessage struct {
		msg       amqp.Delivery
		queueName string
	}

	messageChan := make(chan queuedMessage)

	for _, queueName := range queue.Queues {
		go func(qName string) {
			consumerTag := fmt.Sprintf("%s_consumer", qName)
			msgs, err := consumerCh.Consume(
				qName,
				consumerTag,
				false, // autoAck
				false, // exclusive
				false, // noLocal
				false, // noWait
				nil,   // args
			)
			if err != nil {
				logger.Fatal("Failed to start consuming", "queue", qName, "err", err)
			}

			for {
				select {
				case <-ctx.Done():
					logger.Info("Stopping consumer", "queue", qName)
					return
				case msg, ok := <-msgs:
					if !ok {
						logger.Info("Message channel closed", "queue", qName)
						return
					}
					messageChan <- queuedMessage{msg: msg, queueName: qName}
				}
			}
		}(queueName)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("Stopping message processor")
				return
			case qm := <-messageChan:
				startTime := time.Now()
				logger.Info("Received message", "queue", qm.queueName)

				var processingErr error
				switch qm.queueName {
				case queue.IngestQueue:
					processingErr = queue.ProcessIngestMessage(ctx, manager, string(qm.msg.Body))
				case queue.SnapshotQueue:
					processingErr = queue.ProcessSnapshotMessage(ctx, manager, string(qm.msg.Body))
				case queue.DeleteQueue:
					processingErr = queue.ProcessDeleteMessage(ctx, manager, string(qm.msg.Body))
				}

				if processingErr != nil {
					logger.Error("Error processing message", "queue", qm.queueName, "err", processingErr)
					queue.HandleProcessingError(ch, qm.msg, qm.queueName)
				} else {
					if err := qm.msg.Ack(false); err != nil {
						logger.Error("Failed to ack message", "err", err)
					}
					logger.Info("Message processed successfully", "queue", qm.queueName)
				}

				processingDuration := time.Since(startTime)
				hours := int(processingDuration.Hours())
				minutes := int(processingDuration.Minutes()) % 60
				seconds := int(processingDuration.Seconds()) % 60
				logger.Info(
					"Processing time",
					"duration", fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds),
				)
				logger.Info("Waiting for next message")
			}
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, exiting...")
}

package main

import (
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/config"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/dispatch"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/extraction"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/handlers"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/processor"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/queue"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/repository"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/services"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/storage"
	xhttp "github.com/ronaldochiavegatti/fiscalassistantsaas/pkg/http"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/pkg/logger"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/pkg/pg"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}

	// transport (tcp for now)
	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Server.ReadBufferSize = 1024 * 16
	s.Server.WriteBufferSize = 1024 * 16
	s.Use(xhttp.CompressMiddleware(6))
	s.Use(xhttp.TimeoutMiddleware(time.Second * 5))
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.RecoverMiddleware)
	s.Router = xhttp.CreateDefaultRouter()

	readConf := pg.Config{
		User:     config.Get().PostgresReadUser,
		Host:     config.Get().PostgresReadHost,
		Port:     config.Get().PostgresReadPort,
		Password: config.Get().PostgresReadPassword,
		Database: config.Get().PostgresReadDatabase,
	}
	writeConf := pg.Config{
		User:     config.Get().PostgresWriteUser,
		Host:     config.Get().PostgresWriteHost,
		Port:     config.Get().PostgresWritePort,
		Password: config.Get().PostgresWritePassword,
		Database: config.Get().PostgresWriteDatabase,
	}

	pgDebug := false
	if config.Get().AppEnv == "dev" {
		pgDebug = true
	}
	db, err := pg.CreateReadWrite(readConf, writeConf, pgDebug)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := redis.NewRedisAdapter("default", config.Get().RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{config.Get().RedisAddr},
		ClientName: "default",
		DB:         config.Get().RedisDatabase,
		Username:   config.Get().RedisUsername,
		Password:   config.Get().RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	q, err := queue.NewQueue(redisAdap, queue.QueueConfig{
		Name:              config.Get().QueueName,
		ConsumerGroup:     config.Get().QueueConsumerGroup,
		ConsumerName:      config.Get().QueueConsumerName,
		MaxRetries:        config.Get().QueueMaxRetries,
		VisibilityTimeout: config.Get().QueueVisibilityTimeout,
		PollInterval:      config.Get().QueuePollInterval,
		BatchSize:         config.Get().QueueBatchSize,
		MaxLen:            config.Get().QueueMaxLen,
		EnableDLQ:         config.Get().QueueEnableDLQ,
	})
	if err != nil {
		logger.Error("failed creating queue", "error", err)
		return
	}

	blobs, err := storage.NewFilesystemStore(config.Get().StorageDir)
	if err != nil {
		logger.Error("failed creating blob store", "error", err)
		return
	}

	documentRepo := repository.NewDocumentRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	eventRepo := repository.NewEventRepository(db)

	// The inline pipeline backs the dispatch fallback: when the queue is
	// unreachable the upload request processes its own document before
	// returning.
	engine := extraction.NewRegexEngine()
	docProcessor := processor.NewDocumentProcessor(documentRepo, transactionRepo, eventRepo, blobs, engine)
	if config.Get().ProcessingStaleAfter > 0 {
		docProcessor.WithStaleAfter(config.Get().ProcessingStaleAfter)
	}

	dispatcher := dispatch.NewFallbackDispatcher(
		dispatch.NewQueueDispatcher(q),
		dispatch.NewDirectDispatcher(docProcessor),
	)

	// services
	documentService := services.NewDocumentService(documentRepo, transactionRepo, blobs, dispatcher)
	healthService := services.NewHealthService(db)

	// v1 handlers
	documentHandler := handlers.NewDocumentHandler(documentService)
	healthHandler := handlers.NewHealthHandler(healthService)

	g := s.Router.Group("/api/v1")
	handlers.RegisterDocumentRoutes(g, documentHandler)
	handlers.RegisterHealthRoutes(g, healthHandler)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Kill)

	go func() {
		var err = s.ListenAndServe(config.Get().HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	select {
	case <-c:
		s.Shutdown()
	}
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}

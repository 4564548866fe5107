package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/config"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/dispatch"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/extraction"
	gateway "github.com/ronaldochiavegatti/fiscalassistantsaas/internal/gateways"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/processor"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/queue"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/repository"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/storage"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/pkg/logger"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/pkg/pg"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/pkg/prom"
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

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Kill, os.Interrupt, syscall.SIGTERM)

	blobs, err := storage.NewFilesystemStore(config.Get().StorageDir)
	if err != nil {
		logger.Error("failed creating blob store", "error", err)
		return
	}

	documentRepo := repository.NewDocumentRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	eventRepo := repository.NewEventRepository(db)

	// Remote extraction is optional. When provider urls are configured the
	// pipeline asks them first and falls back to local regex extraction,
	// so a provider outage never fails a document.
	var engine extraction.Engine = extraction.NewRegexEngine()
	if config.Get().ExtractorPrimaryUrl != "" {
		providers := []gateway.ProviderConfig{
			{Name: "primary", URL: config.Get().ExtractorPrimaryUrl, Weight: 100},
		}
		if config.Get().ExtractorSecondaryUrl != "" {
			providers = append(providers, gateway.ProviderConfig{Name: "secondary", URL: config.Get().ExtractorSecondaryUrl, Weight: 80})
		}
		client, err := gateway.NewClient(&gateway.Config{
			Providers:               providers,
			Timeout:                 time.Second * 5,
			MaxRetries:              3,
			RetryDelay:              time.Millisecond * 100,
			MaxConns:                1000,
			HealthCheckInterval:     30 * time.Second,
			CircuitBreakerThreshold: 5,
			CircuitBreakerTimeout:   60 * time.Second,
		})
		if err != nil {
			logger.Error("failed to create extractor gateway", "error", err)
			return
		}
		defer client.Close()
		engine = extraction.NewFallbackEngine(client, extraction.NewRegexEngine())
	}

	staleAfter := config.Get().ProcessingStaleAfter
	if staleAfter <= 0 {
		staleAfter = processor.DefaultStaleAfter
	}

	docProcessor := processor.NewDocumentProcessor(documentRepo, transactionRepo, eventRepo, blobs, engine).
		WithStaleAfter(staleAfter)

	service, err := processor.NewProcessorService(redisAdap)
	if err != nil {
		logger.Error("failed to create the processor service", "error", err)
		return
	}
	service.RegisterProcessor(docProcessor)

	// Stuck documents are resubmitted through the same queue the API
	// publishes to.
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
	service.RegisterReconciler(documentRepo, dispatch.NewQueueDispatcher(q), staleAfter)

	var hostname string
	hostname, err = os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	err = prom.Create(hostname, config.Get().AppEnv, config.Get().PromNamespace)
	if err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}

	go func() {
		prom.ListenAndServer(":9100", "/metrics")
	}()

	go func() {
		err := service.Start()
		if err != nil {
			logger.Error("failed to start processor", "error", err)
		}
	}()

	select {
	case <-c:
		service.Stop()
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

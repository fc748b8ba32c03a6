package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/leadflow/campaign-gateway/internal/audience"
	"github.com/leadflow/campaign-gateway/internal/campaign"
	"github.com/leadflow/campaign-gateway/internal/config"
	"github.com/leadflow/campaign-gateway/internal/dispatch"
	"github.com/leadflow/campaign-gateway/internal/handlers"
	"github.com/leadflow/campaign-gateway/internal/queue"
	"github.com/leadflow/campaign-gateway/internal/repository"
	"github.com/leadflow/campaign-gateway/internal/services"
	xhttp "github.com/leadflow/campaign-gateway/pkg/http"
	"github.com/leadflow/campaign-gateway/pkg/logger"
	"github.com/leadflow/campaign-gateway/pkg/pg"
	"github.com/leadflow/campaign-gateway/pkg/redis"
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

	campaignQ, err := queue.New(redisAdap, queue.Config{
		Name:              config.Get().QueueName,
		ConsumerGroup:     config.Get().QueueConsumerGroup,
		ConsumerName:      config.Get().QueueConsumerName,
		VisibilityTimeout: config.Get().QueueVisibilityTimeout,
		PollInterval:      config.Get().QueuePollInterval,
		BatchSize:         config.Get().QueueBatchSize,
		MaxLen:            config.Get().QueueMaxLen,
	})
	if err != nil {
		logger.Error("failed creating campaign queue", "error", err)
		return
	}

	directQ, err := queue.New(redisAdap, queue.Config{
		Name:              config.Get().DirectQueueName,
		ConsumerGroup:     config.Get().QueueConsumerGroup,
		ConsumerName:      config.Get().QueueConsumerName,
		VisibilityTimeout: config.Get().QueueVisibilityTimeout,
		PollInterval:      config.Get().QueuePollInterval,
		BatchSize:         config.Get().QueueBatchSize,
		MaxLen:            config.Get().QueueMaxLen,
	})
	if err != nil {
		logger.Error("failed creating direct queue", "error", err)
		return
	}

	leadRepo := repository.NewLeadRepository(db)
	campaignRepo := repository.NewCampaignRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	whatsappRepo := repository.NewWhatsAppRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	resolver := audience.NewResolver(db)
	reconciler := dispatch.NewReconciler(messageRepo, leadRepo, redisAdap)
	events := campaign.NewEmitter(auditRepo, 0)
	defer events.Close()

	// services
	campaignService := campaign.NewService(campaignRepo, messageRepo, resolver, campaignQ, events)
	leadService := services.NewLeadService(leadRepo, directQ)
	messagingService := services.NewMessagingService(whatsappRepo, messageRepo, leadRepo, reconciler, directQ)
	healthService := services.NewHealthService(db, redisAdap)

	// v1 handlers
	campaignHandler := handlers.NewCampaignHandler(campaignService, messageRepo)
	leadHandler := handlers.NewLeadHandler(leadService)
	whatsappHandler := handlers.NewWhatsAppHandler(messagingService, reconciler, config.Get().WebhookVerifyToken)
	queueHandler := handlers.NewQueueHandler(campaignQ, directQ)
	healthHandler := handlers.NewHealthHandler(healthService)

	g := s.Router.Group("/api/v1")
	handlers.RegisterCampaignRoutes(g, campaignHandler)
	handlers.RegisterLeadRoutes(g, leadHandler)
	handlers.RegisterWhatsAppRoutes(g, whatsappHandler)
	handlers.RegisterQueueRoutes(g, queueHandler)
	handlers.RegisterHealthRoutes(g, healthHandler)
	handlers.RegisterWebhookRoutes(s.Router, whatsappHandler)

	// Create new server
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

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

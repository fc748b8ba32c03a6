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
	gateway "github.com/leadflow/campaign-gateway/internal/gateways"
	"github.com/leadflow/campaign-gateway/internal/queue"
	"github.com/leadflow/campaign-gateway/internal/repository"
	"github.com/leadflow/campaign-gateway/pkg/logger"
	"github.com/leadflow/campaign-gateway/pkg/pg"
	"github.com/leadflow/campaign-gateway/pkg/prom"
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
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	client, err := gateway.NewClient(&gateway.Config{
		BaseURL:         config.Get().GraphApiBaseUrl,
		Version:         config.Get().GraphApiVersion,
		Timeout:         time.Second * 10,
		MaxConns:        1000,
		ReadBufferSize:  1024 * 4,
		WriteBufferSize: 1024 * 4,
	})
	if err != nil {
		logger.Error("failed to create graph client", "error", err)
		return
	}

	leadRepo := repository.NewLeadRepository(db)
	campaignRepo := repository.NewCampaignRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	whatsappRepo := repository.NewWhatsAppRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	// The dispatcher also runs the campaign side of completion and the
	// scheduled-start sweep, so it carries its own campaign service instance.
	campaignQ, err := queue.New(redisAdap, queue.Config{
		Name:          config.Get().QueueName,
		ConsumerGroup: config.Get().QueueConsumerGroup,
		ConsumerName:  config.Get().QueueConsumerName + "-scheduler",
	})
	if err != nil {
		logger.Error("failed creating campaign queue", "error", err)
		return
	}
	events := campaign.NewEmitter(auditRepo, 0)
	defer events.Close()
	campaignService := campaign.NewService(campaignRepo, messageRepo, audience.NewResolver(db), campaignQ, events)

	processor := dispatch.NewJobProcessor(messageRepo, leadRepo, whatsappRepo, campaignService, client, config.Get().FacebookPageToken)

	dispatcher, err := dispatch.NewDispatcher(redisAdap, processor, campaignService)
	if err != nil {
		logger.Error("failed to create dispatcher", "error", err)
		return
	}

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
		if err := dispatcher.Start(); err != nil {
			logger.Error("failed to start dispatcher", "error", err)
		}
	}()

	select {
	case <-c:
		dispatcher.Stop()
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

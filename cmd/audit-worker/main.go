package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/Hello-Vince/crm-system/internal/audit"
	"github.com/Hello-Vince/crm-system/pkg/config"
	"github.com/Hello-Vince/crm-system/pkg/database"
	"github.com/Hello-Vince/crm-system/pkg/event"
	"github.com/Hello-Vince/crm-system/pkg/kafkax"
	"github.com/Hello-Vince/crm-system/pkg/logger"
	"github.com/Hello-Vince/crm-system/pkg/telemetry"
)

const serviceName = "audit-worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(&logger.Config{
		Level:       logLevel(cfg),
		ServiceName: serviceName,
		Development: cfg.IsDevelopment(),
		OutputPath:  "stdout",
	}); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.Get()
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
	}); err != nil {
		log.Fatal("init telemetry", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			log.Error("telemetry shutdown", zap.Error(err))
		}
	}()

	db, err := database.NewPostgres(ctx, postgresConfig(cfg))
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer db.Close()

	dlqClient, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Kafka.Brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ClientID(serviceName+"-dlq"),
	)
	if err != nil {
		log.Fatal("create dlq producer", zap.Error(err))
	}
	defer dlqClient.Close()

	store := audit.NewPostgresStore(db.Pool())
	handler := audit.NewHandler(store, log)

	topics := cfg.Consumer.Topics
	if len(topics) == 0 {
		topics = []string{event.TopicCustomerCreated, event.TopicCustomerUpdated, event.TopicCompanyCreated}
	}
	group := cfg.Consumer.Group
	if group == "" {
		group = "audit-service-group"
	}

	runtime, err := kafkax.NewConsumer(kafkax.ConsumerConfig{
		Brokers:     cfg.Kafka.Brokers,
		Topics:      topics,
		Group:       group,
		ClientID:    serviceName,
		BaseDelay:   cfg.Consumer.BaseDelay,
		MaxDelay:    cfg.Consumer.MaxDelay,
		MaxAttempts: cfg.Consumer.MaxAttempts,
	}, handler, kafkax.NewKafkaDeadLetterRouter(dlqClient), log)
	if err != nil {
		log.Fatal("create consumer", zap.Error(err))
	}

	if err := runtime.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("consumer stopped", zap.Error(err))
	}
	log.Info("audit worker stopped")
}

func logLevel(cfg *config.Config) string {
	if cfg.App.Debug {
		return "debug"
	}
	return "info"
}

func postgresConfig(cfg *config.Config) *database.PostgresConfig {
	pg := database.DefaultPostgresConfig()
	pg.Host = cfg.Database.Host
	pg.Port = cfg.Database.Port
	pg.User = cfg.Database.User
	pg.Password = cfg.Database.Password
	pg.Database = cfg.Database.DBName
	pg.SSLMode = cfg.Database.SSLMode
	if cfg.Database.MaxOpenConns > 0 {
		pg.MaxConns = int32(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns > 0 {
		pg.MinConns = int32(cfg.Database.MaxIdleConns)
	}
	return pg
}

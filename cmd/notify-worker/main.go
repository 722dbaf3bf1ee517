package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/Hello-Vince/crm-system/internal/identity"
	"github.com/Hello-Vince/crm-system/internal/notify"
	"github.com/Hello-Vince/crm-system/pkg/config"
	"github.com/Hello-Vince/crm-system/pkg/database"
	"github.com/Hello-Vince/crm-system/pkg/event"
	"github.com/Hello-Vince/crm-system/pkg/kafkax"
	"github.com/Hello-Vince/crm-system/pkg/logger"
	"github.com/Hello-Vince/crm-system/pkg/middleware"
	"github.com/Hello-Vince/crm-system/pkg/telemetry"
)

const serviceName = "notify-worker"

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

	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("connect redis", zap.Error(err))
	}

	dlqClient, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Kafka.Brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ClientID(serviceName+"-dlq"),
	)
	if err != nil {
		log.Fatal("create dlq producer", zap.Error(err))
	}
	defer dlqClient.Close()

	store := notify.NewRedisStore(redisClient)
	handler := notify.NewHandler(store, log)

	// The read API resolves visibility against the company forest, rebuilt
	// from the shared companies table on startup.
	db, err := database.NewPostgres(ctx, postgresConfig(cfg))
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer db.Close()

	index := identity.NewIndex()
	companies, err := identity.NewPostgresCompanyRepository(db.Pool()).List(ctx)
	if err != nil {
		log.Fatal("load companies", zap.Error(err))
	}
	index.Rebuild(companies)
	readService := notify.NewService(store, identity.NewResolver(index))

	srv := startReadAPI(cfg, readService, log)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown", zap.Error(err))
		}
	}()

	topics := cfg.Consumer.Topics
	if len(topics) == 0 {
		topics = []string{event.TopicCustomerCreated, event.TopicCustomerUpdated}
	}
	group := cfg.Consumer.Group
	if group == "" {
		group = "notification-service-group"
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
	log.Info("notify worker stopped")
}

// startReadAPI serves GET /api/v1/notifications next to the consumer loop.
func startReadAPI(cfg *config.Config, service *notify.Service, log *logger.Logger) *http.Server {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	handler := notify.NewNotificationHandler(service)
	api := router.Group("/api/v1")
	api.Use(middleware.JWTMiddleware(&middleware.JWTConfig{Secret: cfg.JWT.Secret}))
	api.GET("/notifications", handler.List)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	go func() {
		log.Info("notification read api listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", zap.Error(err))
		}
	}()
	return srv
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

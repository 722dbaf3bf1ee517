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
	"go.uber.org/zap"

	"github.com/Hello-Vince/crm-system/internal/identity"
	"github.com/Hello-Vince/crm-system/pkg/config"
	"github.com/Hello-Vince/crm-system/pkg/database"
	"github.com/Hello-Vince/crm-system/pkg/kafkax"
	"github.com/Hello-Vince/crm-system/pkg/logger"
	"github.com/Hello-Vince/crm-system/pkg/middleware"
	"github.com/Hello-Vince/crm-system/pkg/response"
	"github.com/Hello-Vince/crm-system/pkg/telemetry"
)

const serviceName = "identity-api"

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

	publisher, err := kafkax.NewPublisher(kafkax.PublisherConfig{
		Brokers:      cfg.Kafka.Brokers,
		ClientID:     serviceName,
		MaxRetries:   cfg.Publisher.MaxRetries,
		RetryBackoff: cfg.Publisher.RetryBackoff,
	}, log)
	if err != nil {
		log.Fatal("create publisher", zap.Error(err))
	}
	defer publisher.Close()

	index := identity.NewIndex()
	repo := identity.NewPostgresCompanyRepository(db.Pool())
	service := identity.NewCompanyService(repo, index, publisher, log)
	if err := service.LoadIndex(ctx); err != nil {
		log.Fatal("load hierarchy index", zap.Error(err))
	}
	resolver := identity.NewResolver(index)
	handler := identity.NewCompanyHandler(service, resolver)

	router := buildRouter(cfg, db, handler)
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("identity api listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
}

func buildRouter(cfg *config.Config, db *database.PostgresDB, handler *identity.CompanyHandler) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))

	router.GET("/health", func(c *gin.Context) {
		if err := db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, response.ServiceUnavailable("database unreachable"))
			return
		}
		c.JSON(http.StatusOK, response.Success(gin.H{"status": "ok"}))
	})

	api := router.Group("/api/v1")
	api.Use(middleware.JWTMiddleware(&middleware.JWTConfig{Secret: cfg.JWT.Secret}))
	{
		api.POST("/companies", middleware.RequireRole(string(identity.RoleSystemAdmin), string(identity.RoleCompanyAdmin)), handler.Create)
		api.PATCH("/companies/:id/parent", middleware.RequireRole(string(identity.RoleSystemAdmin)), handler.SetParent)
		api.GET("/companies/:id", handler.GetByID)
		api.GET("/companies", handler.List)
	}
	return router
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

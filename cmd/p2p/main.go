package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/p2ptrading/internal/custody/blockradar"
	feeapp "github.com/wyfcoding/p2ptrading/internal/fee/application"
	feedomain "github.com/wyfcoding/p2ptrading/internal/fee/domain"
	feehttp "github.com/wyfcoding/p2ptrading/internal/fee/interfaces/http"
	feemysql "github.com/wyfcoding/p2ptrading/internal/fee/infrastructure/persistence/mysql"
	identityapp "github.com/wyfcoding/p2ptrading/internal/identity/application"
	identitydomain "github.com/wyfcoding/p2ptrading/internal/identity/domain"
	identitymysql "github.com/wyfcoding/p2ptrading/internal/identity/infrastructure/persistence/mysql"
	"github.com/wyfcoding/p2ptrading/internal/otp"
	p2papp "github.com/wyfcoding/p2ptrading/internal/p2p/application"
	p2pdomain "github.com/wyfcoding/p2ptrading/internal/p2p/domain"
	"github.com/wyfcoding/p2ptrading/internal/p2p/infrastructure/messaging"
	p2pmysql "github.com/wyfcoding/p2ptrading/internal/p2p/infrastructure/persistence/mysql"
	p2phttp "github.com/wyfcoding/p2ptrading/internal/p2p/interfaces/http"
	walletapp "github.com/wyfcoding/p2ptrading/internal/wallet/application"
	walletdomain "github.com/wyfcoding/p2ptrading/internal/wallet/domain"
	wallethttp "github.com/wyfcoding/p2ptrading/internal/wallet/interfaces/http"
	walletmysql "github.com/wyfcoding/p2ptrading/internal/wallet/infrastructure/persistence/mysql"
	"github.com/wyfcoding/p2ptrading/pkg/cache"
	"github.com/wyfcoding/p2ptrading/pkg/config"
	"github.com/wyfcoding/p2ptrading/pkg/db"
	"github.com/wyfcoding/p2ptrading/pkg/logger"
	"github.com/wyfcoding/p2ptrading/pkg/metrics"
	"github.com/wyfcoding/p2ptrading/pkg/middleware"
	"github.com/wyfcoding/p2ptrading/pkg/mq"
	"github.com/wyfcoding/p2ptrading/pkg/ratelimit"
)

func main() {
	configPath := flag.String("config", "configs/config.toml", "path to config file")
	flag.Parse()

	// 1. Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// 2. Logger
	if err := logger.Init(cfg.Logger); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	slogger := logger.Get()

	// 3. Database
	database, err := db.Init(db.Config{
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer database.Close()

	if err := database.AutoMigrate(
		&p2pdomain.Trade{},
		&p2pdomain.TradeLog{},
		&p2pdomain.MerchantAd{},
		&p2pdomain.OutboxMessage{},
		&feedomain.FeeRule{},
		&walletdomain.Wallet{},
		&walletdomain.LedgerTransaction{},
		&identitydomain.UserAccount{},
		&identitydomain.BankAccount{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	// 4. Redis
	redis, err := cache.New(cache.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MaxPoolSize:  cfg.Redis.MaxPoolSize,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer redis.Close()

	// 5. Kafka
	producer, err := mq.NewProducer(mq.KafkaConfig{
		Brokers:      cfg.Kafka.Brokers,
		MaxRetries:   cfg.Kafka.MaxRetries,
		RetryBackoff: cfg.Kafka.RetryBackoff,
	})
	if err != nil {
		log.Fatalf("failed to create kafka producer: %v", err)
	}
	defer producer.Close()

	// 6. Layers
	custodyClient := blockradar.NewClient(blockradar.Config{
		BaseURL:         cfg.Provider.BaseURL,
		APIKey:          cfg.Provider.APIKey,
		EscrowAccountID: cfg.Provider.EscrowAccountID,
		EscrowAddress:   cfg.Provider.EscrowAddress,
		Timeout:         time.Duration(cfg.Provider.Timeout) * time.Second,
	})

	tradeRepo := p2pmysql.NewTradeRepository(database)
	adRepo := p2pmysql.NewAdRepository(database)
	feeRepo := feemysql.NewFeeRepository(database.DB)
	walletRepo := walletmysql.NewWalletRepository(database.DB)
	userRepo := identitymysql.NewUserRepository(database.DB)

	identityGate := identityapp.NewIdentityGate(userRepo)
	otpService := otp.New(redis, otp.LogMailer{}, time.Duration(cfg.Trade.OTPTTL)*time.Second)
	feeService := feeapp.NewFeeService(feeRepo, slogger)
	walletService := walletapp.NewWalletService(walletRepo, custodyClient, redis,
		time.Duration(cfg.Trade.BalanceCacheTTL)*time.Second, slogger)
	webhookApplier := walletapp.NewWebhookApplier(walletRepo, walletService, slogger)

	tradeService := p2papp.NewTradeService(
		tradeRepo, adRepo,
		identityGate, identityGate,
		otpService, feeService, custodyClient,
		walletService, walletService, walletService,
		cfg.Kafka.TradeEventTopic, slogger,
	)
	adService := p2papp.NewAdService(adRepo, tradeRepo, identityGate, slogger)

	m := metrics.New("trading")

	sweeper := p2papp.NewSweeper(tradeRepo, tradeService,
		time.Duration(cfg.Trade.ExpirySweepInterval)*time.Second,
		time.Duration(cfg.Trade.SilentBuyerTimeout)*time.Minute,
		slogger).WithSweepCounter(m.SweepRunsTotal)
	dispatcher := messaging.NewOutboxDispatcher(database, producer, 2*time.Second, slogger).
		WithMetrics(m.OutboxPublishedTotal, m.OutboxPublishErrorsTotal)

	// 7. HTTP
	if cfg.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	limiter := ratelimit.NewRedisRateLimiter(redis.Client())
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.AccessLog(),
		middleware.Instrument(m),
		middleware.RateLimit(limiter, cfg.RateLimit),
	)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": cfg.ServiceName})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	p2phttp.NewTradeHandler(tradeService, adService).RegisterRoutes(router)
	wallethttp.NewWalletHandler(walletService, webhookApplier).RegisterRoutes(router)
	feehttp.NewFeeHandler(feeService).RegisterRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	// 8. Run
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slogger.Info("server started", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slogger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("server exited with error: %v", err)
	}
	slogger.Info("server stopped")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/serviceyard/marketplace-api/internal/config"
	"github.com/serviceyard/marketplace-api/internal/email"
	healthhandler "github.com/serviceyard/marketplace-api/internal/handler/health"
	"github.com/serviceyard/marketplace-api/internal/model"
	"github.com/serviceyard/marketplace-api/internal/repository"
	"github.com/serviceyard/marketplace-api/internal/repository/memory"
	"github.com/serviceyard/marketplace-api/internal/repository/postgres"
	"github.com/serviceyard/marketplace-api/internal/service/notification"
	"github.com/serviceyard/marketplace-api/internal/worker"
	"github.com/serviceyard/marketplace-api/pkg/clock"
	"github.com/serviceyard/marketplace-api/pkg/logger"
	"github.com/serviceyard/marketplace-api/pkg/metrics"
	redisbroker "github.com/serviceyard/marketplace-api/pkg/messaging/redis"
)

type repos struct {
	requests repository.RequestRepository
	quotes   repository.QuoteRepository
	outbox   repository.OutboxRepository
	tx       repository.Transactor
	ping     func() error
}

func buildRepos(cfg *config.Config) (*repos, error) {
	switch cfg.Database.Driver {
	case "memory":
		store := memory.NewStore()
		return &repos{
			requests: memory.NewRequestRepository(store),
			quotes:   memory.NewQuoteRepository(store),
			outbox:   memory.NewOutboxRepository(store),
			tx:       memory.NewTransactor(store),
			ping:     func() error { return nil },
		}, nil
	case "postgres":
		db, err := postgres.NewDB(cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(context.Background(), db); err != nil {
			return nil, err
		}
		base := postgres.NewBaseRepository(db)
		return &repos{
			requests: postgres.NewRequestRepository(base),
			quotes:   postgres.NewQuoteRepository(base),
			outbox:   postgres.NewOutboxRepository(base),
			tx:       postgres.NewTransactor(db),
			ping:     db.Ping,
		}, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(nil)
	m := metrics.New("marketplace", "sweeper")
	clk := clock.New()

	r, err := buildRepos(cfg)
	if err != nil {
		log.Fatal(err, "failed to initialize storage")
	}

	broker, err := redisbroker.NewRedisBroker(redisbroker.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &log.ZL)
	if err != nil {
		log.Fatal(err, "failed to connect to broker")
	}
	defer broker.Close()

	notifier := notification.NewService(r.outbox, clk, log)
	sweeper := worker.NewSweeper(r.requests, r.quotes, r.outbox, notifier, r.tx, m, clk, log,
		worker.SweeperConfig{
			Interval:        cfg.Sweeper.Interval,
			BatchSize:       cfg.Sweeper.BatchSize,
			OutboxRetention: cfg.Sweeper.OutboxRetention,
		})
	publisher := worker.NewNotifier(r.outbox, broker, m, log, worker.NotifierConfig{
		BatchSize:     cfg.Outbox.BatchSize,
		PollInterval:  cfg.Outbox.PollInterval,
		RetryAttempts: cfg.Outbox.RetryAttempts,
	})

	mailer := email.NewService(cfg.Email, log)
	addresses := email.AddressBook(func(kind model.ActorKind, id uuid.UUID) (string, bool) {
		if cfg.Email.RecipientDomain == "" {
			return "", false
		}
		return fmt.Sprintf("%s-%s@%s", kind, id, cfg.Email.RecipientDomain), true
	})
	consumer := email.NewConsumer(broker, mailer, addresses, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		publisher.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := consumer.Run(ctx); err != nil {
			log.Error(err, "email consumer failed")
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	healthhandler.NewHandler(map[string]healthhandler.Pinger{"database": r.ping}).RegisterRoutes(engine)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: engine,
	}
	go func() {
		log.Info("sweeper admin server listening", map[string]interface{}{"port": cfg.Server.Port})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "admin server failed")
		}
	}()

	<-ctx.Done()
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "admin server shutdown failed")
	}
	log.Info("sweeper stopped")
}

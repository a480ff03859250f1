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

	"github.com/jmoiron/sqlx"

	"github.com/serviceyard/marketplace-api/internal/config"
	availabilityhandler "github.com/serviceyard/marketplace-api/internal/handler/availability"
	bookinghandler "github.com/serviceyard/marketplace-api/internal/handler/booking"
	healthhandler "github.com/serviceyard/marketplace-api/internal/handler/health"
	quotehandler "github.com/serviceyard/marketplace-api/internal/handler/quote"
	requesthandler "github.com/serviceyard/marketplace-api/internal/handler/request"
	"github.com/serviceyard/marketplace-api/internal/repository"
	"github.com/serviceyard/marketplace-api/internal/repository/memory"
	"github.com/serviceyard/marketplace-api/internal/repository/postgres"
	"github.com/serviceyard/marketplace-api/internal/router"
	bookingservice "github.com/serviceyard/marketplace-api/internal/service/booking"
	"github.com/serviceyard/marketplace-api/internal/service/notification"
	"github.com/serviceyard/marketplace-api/internal/service/payment"
	quoteservice "github.com/serviceyard/marketplace-api/internal/service/quote"
	requestservice "github.com/serviceyard/marketplace-api/internal/service/request"
	slotservice "github.com/serviceyard/marketplace-api/internal/service/slot"
	"github.com/serviceyard/marketplace-api/pkg/clock"
	"github.com/serviceyard/marketplace-api/pkg/logger"
	"github.com/serviceyard/marketplace-api/pkg/metrics"
	"github.com/serviceyard/marketplace-api/pkg/validator"
)

type repos struct {
	requests       repository.RequestRepository
	quotes         repository.QuoteRepository
	bookings       repository.BookingRepository
	slots          repository.SlotRepository
	availabilities repository.AvailabilityRepository
	outbox         repository.OutboxRepository
	tx             repository.Transactor
	ping           func() error
}

func buildRepos(cfg *config.Config) (*repos, error) {
	switch cfg.Database.Driver {
	case "memory":
		store := memory.NewStore()
		return &repos{
			requests:       memory.NewRequestRepository(store),
			quotes:         memory.NewQuoteRepository(store),
			bookings:       memory.NewBookingRepository(store),
			slots:          memory.NewSlotRepository(store),
			availabilities: memory.NewAvailabilityRepository(store),
			outbox:         memory.NewOutboxRepository(store),
			tx:             memory.NewTransactor(store),
			ping:           func() error { return nil },
		}, nil
	case "postgres":
		db, err := postgres.NewDB(cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(context.Background(), db); err != nil {
			return nil, err
		}
		return postgresRepos(db), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

func postgresRepos(db *sqlx.DB) *repos {
	base := postgres.NewBaseRepository(db)
	return &repos{
		requests:       postgres.NewRequestRepository(base),
		quotes:         postgres.NewQuoteRepository(base),
		bookings:       postgres.NewBookingRepository(base),
		slots:          postgres.NewSlotRepository(base),
		availabilities: postgres.NewAvailabilityRepository(base),
		outbox:         postgres.NewOutboxRepository(base),
		tx:             postgres.NewTransactor(db),
		ping:           db.Ping,
	}
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(nil)
	m := metrics.New("marketplace", "api")
	clk := clock.New()
	validate := validator.New()

	r, err := buildRepos(cfg)
	if err != nil {
		log.Fatal(err, "failed to initialize storage")
	}

	notifier := notification.NewService(r.outbox, clk, log)
	gateway := payment.NewLogGateway(log)

	slotSvc := slotservice.NewService(r.slots, r.availabilities, r.tx, m, clk, log,
		cfg.Engine.SlotHorizonDays, cfg.Engine.SlotCacheTTL)
	requestSvc := requestservice.NewService(r.requests, r.quotes, notifier, r.tx, clk, log,
		cfg.Engine.RequestTTL)
	quoteSvc := quoteservice.NewService(r.quotes, r.requests, r.bookings, slotSvc, notifier,
		r.tx, m, clk, log, quoteservice.Config{
			QuoteValidity:           cfg.Engine.QuoteValidity,
			ProviderPendingQuoteCap: cfg.Engine.ProviderPendingQuoteCap,
			RequirePayment:          cfg.Engine.RequirePayment,
		})
	bookingSvc := bookingservice.NewService(r.bookings, slotSvc, gateway, notifier, r.tx, m,
		clk, log, bookingservice.Config{
			StartWindowBefore:  cfg.Engine.StartWindowBefore,
			StartWindowAfter:   cfg.Engine.StartWindowAfter,
			CancellationNotice: cfg.Engine.CancellationNotice,
			RetryBudget:        cfg.Engine.RetryBudget,
		})

	engine := router.New(log, router.Config{
		JWTSecret:      cfg.JWT.Secret,
		RequestTimeout: cfg.Server.RequestTimeout,
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
	}, router.Handlers{
		Health:       healthhandler.NewHandler(map[string]healthhandler.Pinger{"database": r.ping}),
		Request:      requesthandler.NewHandler(requestSvc, validate),
		Quote:        quotehandler.NewHandler(quoteSvc, validate),
		Booking:      bookinghandler.NewHandler(bookingSvc, validate),
		Availability: availabilityhandler.NewHandler(slotSvc, validate),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("api server listening", map[string]interface{}{"port": cfg.Server.Port})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err, "server failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "graceful shutdown failed")
	}
	log.Info("api server stopped")
}

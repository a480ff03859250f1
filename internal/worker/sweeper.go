package worker

import (
	"context"
	"time"

	"github.com/serviceyard/marketplace-api/internal/model"
	"github.com/serviceyard/marketplace-api/internal/repository"
	"github.com/serviceyard/marketplace-api/internal/service/notification"
	"github.com/serviceyard/marketplace-api/pkg/clock"
	"github.com/serviceyard/marketplace-api/pkg/logger"
	"github.com/serviceyard/marketplace-api/pkg/metrics"
)

// SweeperConfig controls the expiry sweep loop.
type SweeperConfig struct {
	Interval        time.Duration
	BatchSize       int
	OutboxRetention time.Duration
}

// Sweeper expires overdue quotes and requests in bounded batches and
// prunes old processed outbox events. Every expiry is CAS-guarded, so a
// concurrent user transition always wins and the sweep just skips.
type Sweeper struct {
	requests repository.RequestRepository
	quotes   repository.QuoteRepository
	outbox   repository.OutboxRepository
	notifier *notification.Service
	tx       repository.Transactor
	metrics  *metrics.Metrics
	clock    clock.Clock
	logger   *logger.Logger
	cfg      SweeperConfig
}

func NewSweeper(
	requests repository.RequestRepository,
	quotes repository.QuoteRepository,
	outbox repository.OutboxRepository,
	notifier *notification.Service,
	tx repository.Transactor,
	m *metrics.Metrics,
	clk clock.Clock,
	logger *logger.Logger,
	cfg SweeperConfig,
) *Sweeper {
	return &Sweeper{
		requests: requests,
		quotes:   quotes,
		outbox:   outbox,
		notifier: notifier,
		tx:       tx,
		metrics:  m,
		clock:    clk,
		logger:   logger,
		cfg:      cfg,
	}
}

// Run sweeps immediately, then on every tick until the context ends.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("sweeper started", map[string]interface{}{
		"interval":   s.cfg.Interval.String(),
		"batch_size": s.cfg.BatchSize,
	})

	s.Sweep(ctx)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one full pass: quotes, then requests, then outbox cleanup.
func (s *Sweeper) Sweep(ctx context.Context) {
	start := time.Now()
	defer func() {
		s.metrics.SweepDuration.Observe(time.Since(start).Seconds())
		s.metrics.SweepBacklog.Set(0)
	}()

	s.expireQuotes(ctx)
	s.expireRequests(ctx)
	s.cleanupOutbox(ctx)
}

func (s *Sweeper) expireQuotes(ctx context.Context) {
	now := s.clock.Now()
	for {
		if ctx.Err() != nil {
			return
		}
		batch, err := s.quotes.ListExpired(ctx, now, s.cfg.BatchSize)
		if err != nil {
			s.logger.Error(err, "failed to list expired quotes")
			return
		}
		s.metrics.SweepBacklog.Set(float64(len(batch)))
		if len(batch) == 0 {
			return
		}

		succeeded := 0
		for _, quote := range batch {
			if err := s.expireQuote(ctx, quote, now); err != nil {
				s.metrics.SweepFailures.WithLabelValues("quote").Inc()
				s.logger.Error(err, "failed to expire quote", map[string]interface{}{"quote_id": quote.ID})
				continue
			}
			succeeded++
		}
		// A batch where nothing moved would refetch the same records.
		if succeeded == 0 || len(batch) < s.cfg.BatchSize {
			return
		}
	}
}

func (s *Sweeper) expireQuote(ctx context.Context, quote *model.Quote, now time.Time) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := s.quotes.UpdateStatus(ctx, quote.ID, model.QuoteStatusExpired, now, nil)
		if err != nil {
			return err
		}
		if !ok {
			// Resolved by a user transition since the listing; not ours.
			return nil
		}
		s.metrics.QuotesExpired.Inc()
		provider := model.Actor{Kind: model.ActorProvider, ID: quote.ProviderID}
		return s.notifier.Notify(ctx, model.EventQuoteExpired, provider, quote)
	})
}

func (s *Sweeper) expireRequests(ctx context.Context) {
	now := s.clock.Now()
	for {
		if ctx.Err() != nil {
			return
		}
		batch, err := s.requests.ListExpired(ctx, now, s.cfg.BatchSize)
		if err != nil {
			s.logger.Error(err, "failed to list expired requests")
			return
		}
		s.metrics.SweepBacklog.Set(float64(len(batch)))
		if len(batch) == 0 {
			return
		}

		succeeded := 0
		for _, req := range batch {
			if err := s.expireRequest(ctx, req, now); err != nil {
				s.metrics.SweepFailures.WithLabelValues("request").Inc()
				s.logger.Error(err, "failed to expire request", map[string]interface{}{"request_id": req.ID})
				continue
			}
			succeeded++
		}
		if succeeded == 0 || len(batch) < s.cfg.BatchSize {
			return
		}
	}
}

func (s *Sweeper) expireRequest(ctx context.Context, req *model.ServiceRequest, now time.Time) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := s.requests.UpdateStatus(ctx, req.ID,
			[]model.RequestStatus{model.RequestStatusOpen, model.RequestStatusQuoting},
			model.RequestStatusExpired, &now)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		s.metrics.RequestsExpired.Inc()
		client := model.Actor{Kind: model.ActorClient, ID: req.ClientID}
		return s.notifier.Notify(ctx, model.EventRequestExpired, client, req)
	})
}

func (s *Sweeper) cleanupOutbox(ctx context.Context) {
	cutoff := s.clock.Now().Add(-s.cfg.OutboxRetention)
	removed, err := s.outbox.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error(err, "outbox cleanup failed")
		return
	}
	if removed > 0 {
		s.metrics.OutboxCleanedUp.Add(float64(removed))
		s.logger.Info("outbox cleaned up", map[string]interface{}{"removed": removed})
	}
}

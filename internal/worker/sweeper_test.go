package worker

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serviceyard/marketplace-api/internal/model"
	"github.com/serviceyard/marketplace-api/internal/repository"
	"github.com/serviceyard/marketplace-api/internal/repository/memory"
	"github.com/serviceyard/marketplace-api/internal/service/notification"
	"github.com/serviceyard/marketplace-api/pkg/clock"
	"github.com/serviceyard/marketplace-api/pkg/logger"
	"github.com/serviceyard/marketplace-api/pkg/metrics"
)

var testMetrics = metrics.New("test", "worker")

var baseTime = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	clk      *clock.Fixed
	requests repository.RequestRepository
	quotes   repository.QuoteRepository
	outbox   repository.OutboxRepository
	sweeper  *Sweeper
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	clk := clock.NewFixed(baseTime)
	log := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	tx := memory.NewTransactor(store)

	f := &fixture{
		clk:      clk,
		requests: memory.NewRequestRepository(store),
		quotes:   memory.NewQuoteRepository(store),
		outbox:   memory.NewOutboxRepository(store),
	}
	notifier := notification.NewService(f.outbox, clk, log)
	f.sweeper = NewSweeper(f.requests, f.quotes, f.outbox, notifier, tx, testMetrics, clk, log,
		SweeperConfig{
			Interval:        10 * time.Minute,
			BatchSize:       2,
			OutboxRetention: 7 * 24 * time.Hour,
		})
	return f
}

func (f *fixture) seedQuote(t *testing.T, status model.QuoteStatus, validUntil time.Time) *model.Quote {
	t.Helper()
	now := f.clk.Now()
	q := &model.Quote{
		Base:            model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		RequestID:       uuid.New(),
		ProviderID:      uuid.New(),
		AmountCents:     1000,
		ProposedAt:      now.AddDate(0, 0, 7),
		DurationMinutes: 60,
		Status:          status,
		ValidUntil:      validUntil,
	}
	require.NoError(t, f.quotes.Create(context.Background(), q))
	return q
}

func (f *fixture) seedRequest(t *testing.T, status model.RequestStatus, expiresAt time.Time) *model.ServiceRequest {
	t.Helper()
	now := f.clk.Now()
	req := &model.ServiceRequest{
		Base:          model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		ClientID:      uuid.New(),
		CategoryID:    uuid.New(),
		PreferredDate: now.AddDate(0, 0, 14),
		Frequency:     model.FrequencyOneOff,
		Status:        status,
		ExpiresAt:     expiresAt,
	}
	require.NoError(t, f.requests.Create(context.Background(), req))
	return req
}

func TestSweepExpiresOverdueQuotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Batch size is 2; five overdue quotes forces multiple batches.
	overdue := make([]*model.Quote, 5)
	for i := range overdue {
		overdue[i] = f.seedQuote(t, model.QuoteStatusPending, baseTime.Add(-time.Hour))
	}
	fresh := f.seedQuote(t, model.QuoteStatusPending, baseTime.Add(time.Hour))

	f.sweeper.Sweep(ctx)

	for _, q := range overdue {
		got, err := f.quotes.Get(ctx, q.ID)
		require.NoError(t, err)
		assert.Equal(t, model.QuoteStatusExpired, got.Status)
	}
	got, err := f.quotes.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QuoteStatusPending, got.Status)

	events, err := f.outbox.GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 5)
	for _, e := range events {
		assert.Equal(t, model.EventQuoteExpired, e.EventType)
		assert.Equal(t, model.ActorProvider, e.RecipientKind)
	}
}

func TestSweepExpiresOverdueRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	open := f.seedRequest(t, model.RequestStatusOpen, baseTime.Add(-time.Minute))
	quoting := f.seedRequest(t, model.RequestStatusQuoting, baseTime.Add(-time.Minute))
	inProgress := f.seedRequest(t, model.RequestStatusInProgress, baseTime.Add(-time.Minute))
	fresh := f.seedRequest(t, model.RequestStatusOpen, baseTime.Add(time.Hour))

	f.sweeper.Sweep(ctx)

	for _, id := range []uuid.UUID{open.ID, quoting.ID} {
		got, err := f.requests.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.RequestStatusExpired, got.Status)
		require.NotNil(t, got.ClosedAt)
	}

	// In-flight work and fresh requests are untouched.
	got, err := f.requests.Get(ctx, inProgress.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusInProgress, got.Status)
	got, err = f.requests.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusOpen, got.Status)
}

func TestSweepCleansProcessedOutboxEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	old := &model.OutboxEvent{
		ID:            uuid.New(),
		EventType:     model.EventQuoteExpired,
		RecipientKind: model.ActorProvider,
		RecipientID:   uuid.New(),
		Payload:       []byte(`{}`),
		Status:        model.OutboxStatusPending,
		CreatedAt:     baseTime,
	}
	require.NoError(t, f.outbox.Create(ctx, old))
	require.NoError(t, f.outbox.UpdateStatus(ctx, old.ID, model.OutboxStatusProcessed, nil))

	// Jump well past retention so the processed timestamp is stale.
	f.clk.Set(time.Now().Add(30 * 24 * time.Hour))
	f.sweeper.Sweep(ctx)

	removed, err := f.outbox.DeleteProcessedBefore(ctx, f.clk.Now())
	require.NoError(t, err)
	assert.Zero(t, removed, "sweep already removed the stale event")
}

type flakyBroker struct {
	mu        sync.Mutex
	failures  int
	published [][]byte
}

func (b *flakyBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures > 0 {
		b.failures--
		return errors.New("broker unavailable")
	}
	b.published = append(b.published, nil)
	return nil
}

func (b *flakyBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *flakyBroker) Close() error { return nil }

func TestNotifierMarksProcessed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	broker := &flakyBroker{}
	log := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	notifier := NewNotifier(f.outbox, broker, testMetrics, log, NotifierConfig{
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: 3,
	})

	event := &model.OutboxEvent{
		ID:            uuid.New(),
		EventType:     model.EventBookingConfirmed,
		RecipientKind: model.ActorClient,
		RecipientID:   uuid.New(),
		Payload:       []byte(`{}`),
		Status:        model.OutboxStatusPending,
		CreatedAt:     baseTime,
	}
	require.NoError(t, f.outbox.Create(ctx, event))

	notifier.ProcessBatch(ctx)

	pending, err := f.outbox.GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Len(t, broker.published, 1)
}

func TestNotifierParksEventAfterRetryBudget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	broker := &flakyBroker{failures: 100}
	log := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	notifier := NewNotifier(f.outbox, broker, testMetrics, log, NotifierConfig{
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: 3,
	})

	event := &model.OutboxEvent{
		ID:            uuid.New(),
		EventType:     model.EventBookingConfirmed,
		RecipientKind: model.ActorClient,
		RecipientID:   uuid.New(),
		Payload:       []byte(`{}`),
		Status:        model.OutboxStatusPending,
		CreatedAt:     baseTime,
	}
	require.NoError(t, f.outbox.Create(ctx, event))

	// Each pass consumes one attempt; the third parks it as FAILED.
	for i := 0; i < 3; i++ {
		notifier.ProcessBatch(ctx)
	}
	pending, err := f.outbox.GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "event parked after exhausting retries")
}

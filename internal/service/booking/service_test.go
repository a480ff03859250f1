package booking

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serviceyard/marketplace-api/internal/model"
	"github.com/serviceyard/marketplace-api/internal/repository"
	"github.com/serviceyard/marketplace-api/internal/repository/memory"
	"github.com/serviceyard/marketplace-api/internal/service/notification"
	"github.com/serviceyard/marketplace-api/internal/service/slot"
	"github.com/serviceyard/marketplace-api/pkg/clock"
	apperrors "github.com/serviceyard/marketplace-api/pkg/errors"
	"github.com/serviceyard/marketplace-api/pkg/logger"
	"github.com/serviceyard/marketplace-api/pkg/metrics"
)

var testMetrics = metrics.New("test", "bookingsvc")

var baseTime = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

type stubGateway struct {
	chargeErr error
	refundErr error
	charges   int
	refunds   int
	payouts   int
}

func (g *stubGateway) Charge(ctx context.Context, bookingID uuid.UUID, amountCents int64) (string, error) {
	if g.chargeErr != nil {
		return "", g.chargeErr
	}
	g.charges++
	return "charge-test", nil
}

func (g *stubGateway) Refund(ctx context.Context, chargeRef string, amountCents int64) error {
	if g.refundErr != nil {
		return g.refundErr
	}
	g.refunds++
	return nil
}

func (g *stubGateway) Payout(ctx context.Context, providerID uuid.UUID, amountCents int64) error {
	g.payouts++
	return nil
}

type fixture struct {
	clk      *clock.Fixed
	bookings repository.BookingRepository
	slots    repository.SlotRepository
	outbox   repository.OutboxRepository
	gateway  *stubGateway
	svc      *Service

	clientID   uuid.UUID
	providerID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, nil)
}

// newFixtureWith lets a test decorate the booking repository, e.g. to
// inject write conflicts.
func newFixtureWith(t *testing.T, wrap func(repository.BookingRepository) repository.BookingRepository) *fixture {
	t.Helper()
	store := memory.NewStore()
	clk := clock.NewFixed(baseTime)
	log := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	tx := memory.NewTransactor(store)

	bookings := repository.BookingRepository(memory.NewBookingRepository(store))
	if wrap != nil {
		bookings = wrap(bookings)
	}
	f := &fixture{
		clk:        clk,
		bookings:   bookings,
		slots:      memory.NewSlotRepository(store),
		outbox:     memory.NewOutboxRepository(store),
		gateway:    &stubGateway{},
		clientID:   uuid.New(),
		providerID: uuid.New(),
	}
	notifier := notification.NewService(f.outbox, clk, log)
	slotSvc := slot.NewService(f.slots, memory.NewAvailabilityRepository(store), tx,
		testMetrics, clk, log, 30, time.Second)
	f.svc = NewService(f.bookings, slotSvc, f.gateway, notifier, tx, testMetrics, clk, log, Config{
		StartWindowBefore:  2 * time.Hour,
		StartWindowAfter:   30 * time.Minute,
		CancellationNotice: 24 * time.Hour,
		RetryBudget:        3,
	})
	return f
}

// seedBooking creates a booking in the given status with its slot already
// reserved, mirroring what the accept cascade produces.
func (f *fixture) seedBooking(t *testing.T, status model.BookingStatus, scheduledAt time.Time) *model.Booking {
	t.Helper()
	ctx := context.Background()
	now := f.clk.Now()

	s := &model.Slot{
		Base:       model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		ProviderID: f.providerID,
		Date:       scheduledAt,
		StartTime:  scheduledAt.Add(-time.Hour),
		EndTime:    scheduledAt.Add(3 * time.Hour),
		Capacity:   1,
	}
	require.NoError(t, f.slots.Create(ctx, s))
	require.NoError(t, f.slots.Reserve(ctx, s.ID))

	b := &model.Booking{
		Base:            model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		RequestID:       uuid.New(),
		QuoteID:         uuid.New(),
		ClientID:        f.clientID,
		ProviderID:      f.providerID,
		SlotID:          s.ID,
		ScheduledAt:     scheduledAt,
		DurationMinutes: 60,
		AmountCents:     5000,
		Status:          status,
	}
	require.NoError(t, f.bookings.Create(ctx, b))
	return b
}

func (f *fixture) client() model.Actor   { return model.Actor{Kind: model.ActorClient, ID: f.clientID} }
func (f *fixture) provider() model.Actor { return model.Actor{Kind: model.ActorProvider, ID: f.providerID} }
func (f *fixture) admin() model.Actor    { return model.Actor{Kind: model.ActorAdmin, ID: uuid.New()} }

func (f *fixture) slotBookedCount(t *testing.T, id uuid.UUID) int {
	t.Helper()
	s, err := f.slots.Get(context.Background(), id)
	require.NoError(t, err)
	return s.BookedCount
}

func TestConfirmChargesWhenAwaitingPayment(t *testing.T) {
	f := newFixture(t)
	b := f.seedBooking(t, model.BookingStatusAwaitingPayment, baseTime.Add(48*time.Hour))

	got, err := f.svc.Confirm(context.Background(), f.provider(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusConfirmed, got.Status)
	require.NotNil(t, got.ChargeRef)
	assert.Equal(t, 1, f.gateway.charges)
}

func TestConfirmFromPendingSkipsCharge(t *testing.T) {
	f := newFixture(t)
	b := f.seedBooking(t, model.BookingStatusPending, baseTime.Add(48*time.Hour))

	got, err := f.svc.Confirm(context.Background(), f.provider(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusConfirmed, got.Status)
	assert.Nil(t, got.ChargeRef)
	assert.Equal(t, 0, f.gateway.charges)
}

func TestStartInsideWindow(t *testing.T) {
	f := newFixture(t)
	b := f.seedBooking(t, model.BookingStatusConfirmed, baseTime.Add(time.Hour))

	got, err := f.svc.Start(context.Background(), f.provider(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusInProgress, got.Status)
	require.NotNil(t, got.ActualStartTime)
	assert.Equal(t, baseTime, *got.ActualStartTime)
}

func TestStartOutsideWindow(t *testing.T) {
	f := newFixture(t)

	early := f.seedBooking(t, model.BookingStatusConfirmed, baseTime.Add(5*time.Hour))
	_, err := f.svc.Start(context.Background(), f.provider(), early.ID)
	assert.Equal(t, apperrors.ReasonOutsideStartWindow, apperrors.ReasonOf(err))

	late := f.seedBooking(t, model.BookingStatusConfirmed, baseTime.Add(-time.Hour))
	_, err = f.svc.Start(context.Background(), f.provider(), late.ID)
	assert.Equal(t, apperrors.ReasonOutsideStartWindow, apperrors.ReasonOf(err))
}

func TestStartRequiresProvider(t *testing.T) {
	f := newFixture(t)
	b := f.seedBooking(t, model.BookingStatusConfirmed, baseTime.Add(time.Hour))

	_, err := f.svc.Start(context.Background(), f.client(), b.ID)
	assert.Equal(t, apperrors.ReasonNotOwner, apperrors.ReasonOf(err))
}

func TestCompleteReleasesSlotAndPaysOut(t *testing.T) {
	f := newFixture(t)
	b := f.seedBooking(t, model.BookingStatusConfirmed, baseTime.Add(time.Hour))
	ctx := context.Background()

	_, err := f.svc.Start(ctx, f.provider(), b.ID)
	require.NoError(t, err)
	f.clk.Advance(2 * time.Hour)

	got, err := f.svc.Complete(ctx, f.provider(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCompleted, got.Status)
	require.NotNil(t, got.ActualEndTime)
	assert.Equal(t, 0, f.slotBookedCount(t, b.SlotID))
	assert.Equal(t, 1, f.gateway.payouts)
}

func TestCompleteWithoutStart(t *testing.T) {
	f := newFixture(t)
	b := f.seedBooking(t, model.BookingStatusConfirmed, baseTime.Add(time.Hour))
	ctx := context.Background()

	// Force the status past confirmed without the start hook.
	raw, err := f.bookings.Get(ctx, b.ID)
	require.NoError(t, err)
	raw.Status = model.BookingStatusInProgress
	require.NoError(t, f.bookings.Update(ctx, raw))

	_, err = f.svc.Complete(ctx, f.provider(), b.ID)
	assert.Equal(t, apperrors.ReasonNotStarted, apperrors.ReasonOf(err))
}

func TestCancelWithNotice(t *testing.T) {
	f := newFixture(t)
	b := f.seedBooking(t, model.BookingStatusConfirmed, baseTime.Add(72*time.Hour))

	got, err := f.svc.Cancel(context.Background(), f.client(), b.ID, &model.CancelBookingInput{Reason: "plans changed"})
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCancelled, got.Status)
	assert.False(t, got.LateCancellation)
	require.NotNil(t, got.CancelReason)
	assert.Equal(t, "plans changed", *got.CancelReason)
	assert.Equal(t, 0, f.slotBookedCount(t, b.SlotID))
}

func TestCancelInsideNoticeWindow(t *testing.T) {
	f := newFixture(t)
	b := f.seedBooking(t, model.BookingStatusConfirmed, baseTime.Add(6*time.Hour))
	ctx := context.Background()

	_, err := f.svc.Cancel(ctx, f.client(), b.ID, &model.CancelBookingInput{})
	assert.Equal(t, apperrors.ReasonCancellationWindowClosed, apperrors.ReasonOf(err))
	assert.Equal(t, 1, f.slotBookedCount(t, b.SlotID))

	got, err := f.svc.Cancel(ctx, f.client(), b.ID, &model.CancelBookingInput{AllowLate: true})
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCancelled, got.Status)
	assert.True(t, got.LateCancellation)
	assert.Equal(t, 0, f.slotBookedCount(t, b.SlotID))
}

func TestReportNoShow(t *testing.T) {
	f := newFixture(t)
	b := f.seedBooking(t, model.BookingStatusConfirmed, baseTime.Add(time.Hour))

	got, err := f.svc.ReportNoShow(context.Background(), f.provider(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusNoShow, got.Status)
	assert.Equal(t, 0, f.slotBookedCount(t, b.SlotID))
}

func TestSlotReleasedExactlyOnce(t *testing.T) {
	f := newFixture(t)
	b := f.seedBooking(t, model.BookingStatusConfirmed, baseTime.Add(time.Hour))
	ctx := context.Background()

	_, err := f.svc.Start(ctx, f.provider(), b.ID)
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, f.provider(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, f.slotBookedCount(t, b.SlotID))

	// A dispute after completion resolved as a refund must not release again.
	_, err = f.svc.Dispute(ctx, f.client(), b.ID)
	require.NoError(t, err)
	got, err := f.svc.Resolve(ctx, f.admin(), b.ID, model.BookingStatusRefunded)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusRefunded, got.Status)
	assert.Equal(t, 0, f.slotBookedCount(t, b.SlotID))
}

func TestRefundFailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	b := f.seedBooking(t, model.BookingStatusAwaitingPayment, baseTime.Add(48*time.Hour))
	ctx := context.Background()

	_, err := f.svc.Confirm(ctx, f.provider(), b.ID)
	require.NoError(t, err)
	f.clk.Set(b.ScheduledAt)
	_, err = f.svc.Start(ctx, f.provider(), b.ID)
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, f.provider(), b.ID)
	require.NoError(t, err)

	f.gateway.refundErr = errors.New("psp unavailable")
	_, err = f.svc.Refund(ctx, f.admin(), b.ID)
	require.Error(t, err)

	got, err := f.bookings.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCompleted, got.Status)

	f.gateway.refundErr = nil
	refunded, err := f.svc.Refund(ctx, f.admin(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusRefunded, refunded.Status)
	assert.Equal(t, 1, f.gateway.refunds)
}

// conflictingBookings fails the next n Updates with a version conflict,
// simulating a concurrent writer racing the transition loop.
type conflictingBookings struct {
	repository.BookingRepository
	conflicts int
}

func (r *conflictingBookings) Update(ctx context.Context, b *model.Booking) error {
	if r.conflicts > 0 {
		r.conflicts--
		return apperrors.Conflict(apperrors.ReasonConcurrentUpdate, "booking version is stale")
	}
	return r.BookingRepository.Update(ctx, b)
}

func TestConfirmChargesOnceAcrossRetries(t *testing.T) {
	wrapped := &conflictingBookings{}
	f := newFixtureWith(t, func(r repository.BookingRepository) repository.BookingRepository {
		wrapped.BookingRepository = r
		return wrapped
	})
	b := f.seedBooking(t, model.BookingStatusAwaitingPayment, baseTime.Add(48*time.Hour))

	wrapped.conflicts = 1
	got, err := f.svc.Confirm(context.Background(), f.provider(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusConfirmed, got.Status)
	require.NotNil(t, got.ChargeRef)
	assert.Equal(t, 1, f.gateway.charges, "a retried confirmation must not charge twice")
}

func TestRefundRefundsOnceAcrossRetries(t *testing.T) {
	wrapped := &conflictingBookings{}
	f := newFixtureWith(t, func(r repository.BookingRepository) repository.BookingRepository {
		wrapped.BookingRepository = r
		return wrapped
	})
	b := f.seedBooking(t, model.BookingStatusCompleted, baseTime.Add(time.Hour))
	ctx := context.Background()

	raw, err := f.bookings.Get(ctx, b.ID)
	require.NoError(t, err)
	ref := "charge-test"
	raw.ChargeRef = &ref
	require.NoError(t, f.bookings.Update(ctx, raw))

	wrapped.conflicts = 1
	got, err := f.svc.Refund(ctx, f.admin(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusRefunded, got.Status)
	assert.Equal(t, 1, f.gateway.refunds, "a retried refund must not refund twice")
}

func TestRefundRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	b := f.seedBooking(t, model.BookingStatusCompleted, baseTime.Add(time.Hour))

	_, err := f.svc.Refund(context.Background(), f.client(), b.ID)
	assert.Equal(t, apperrors.ReasonNotOwner, apperrors.ReasonOf(err))
}

func TestInvalidTransition(t *testing.T) {
	f := newFixture(t)
	b := f.seedBooking(t, model.BookingStatusPending, baseTime.Add(time.Hour))

	_, err := f.svc.Start(context.Background(), f.provider(), b.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidTransition))
}

func TestResolveOutcomes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := f.seedBooking(t, model.BookingStatusConfirmed, baseTime.Add(time.Hour))
	_, err := f.svc.Start(ctx, f.provider(), b.ID)
	require.NoError(t, err)
	_, err = f.svc.Dispute(ctx, f.client(), b.ID)
	require.NoError(t, err)

	_, err = f.svc.Resolve(ctx, f.client(), b.ID, model.BookingStatusCompleted)
	assert.Equal(t, apperrors.ReasonNotOwner, apperrors.ReasonOf(err))

	_, err = f.svc.Resolve(ctx, f.admin(), b.ID, model.BookingStatusPending)
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidTransition))

	got, err := f.svc.Resolve(ctx, f.admin(), b.ID, model.BookingStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCompleted, got.Status)
}

func TestTransitionEmitsNotifications(t *testing.T) {
	f := newFixture(t)
	b := f.seedBooking(t, model.BookingStatusConfirmed, baseTime.Add(72*time.Hour))
	ctx := context.Background()

	_, err := f.svc.Cancel(ctx, f.client(), b.ID, &model.CancelBookingInput{})
	require.NoError(t, err)

	events, err := f.outbox.GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	recipients := map[model.ActorKind]bool{}
	for _, e := range events {
		assert.Equal(t, model.EventBookingCancelled, e.EventType)
		recipients[e.RecipientKind] = true
	}
	assert.True(t, recipients[model.ActorClient])
	assert.True(t, recipients[model.ActorProvider])
}

package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/expert_sessions/internal/lifecycle"
	"github.com/Freeeeeet/expert_sessions/internal/model"
	"github.com/Freeeeeet/expert_sessions/internal/notify"
	"github.com/Freeeeeet/expert_sessions/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, time.October, 19, hour, minute, 0, 0, time.UTC)
}

func TestSessionLifecycle_HappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.booking.CreateBooking(ctx, f.bookingRequest(10, 0))
	require.NoError(t, err)

	s, err = f.lifecycle.RecordPayment(ctx, s.ID, 5000, "card")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatePaid, s.State)
	assert.Equal(t, 1, f.notifier.count(notify.TemplateSessionPaid))

	s, err = f.lifecycle.Confirm(ctx, s.ID, f.expert.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStateConfirmed, s.State)
	require.NotNil(t, s.VideoRoom)
	assert.NotEmpty(t, s.VideoRoom.ClientLink)

	f.clock.Set(at(9, 50))
	s, err = f.lifecycle.Start(ctx, s.ID, f.client.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStateInProgress, s.State)
	require.NotNil(t, s.VideoRoom.StartedAt)

	f.clock.Set(at(10, 50))
	s, err = f.lifecycle.Finish(ctx, s.ID, f.expert.ID, "plan agreed")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStateCompleted, s.State)
	require.NotNil(t, s.Result)
	assert.Equal(t, 60, s.Result.EffectiveMinutes)

	states := make([]model.SessionState, 0, len(s.History))
	for i, c := range s.History {
		states = append(states, c.State)
		if i > 0 {
			assert.True(t, c.At.After(s.History[i-1].At))
		}
	}
	assert.Equal(t, []model.SessionState{
		model.SessionStatePendingPayment,
		model.SessionStatePaid,
		model.SessionStateConfirmed,
		model.SessionStateInProgress,
		model.SessionStateCompleted,
	}, states)

	stored, err := f.sessions.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.History, stored.History)

	// подтверждение пришло клиенту со ссылкой на комнату
	var confirmed *sentNotification
	for i := range f.notifier.sent {
		if f.notifier.sent[i].Template == notify.TemplateSessionConfirmed {
			confirmed = &f.notifier.sent[i]
		}
	}
	require.NotNil(t, confirmed)
	assert.Equal(t, f.client.ID, confirmed.UserID)
	assert.Equal(t, s.VideoRoom.ClientLink, confirmed.Data[notify.KeyLink])
}

func TestPay_WithoutPaymentConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.booking.CreateBooking(ctx, f.bookingRequest(10, 0))
	require.NoError(t, err)

	_, err = f.lifecycle.Pay(ctx, s.ID)
	assert.ErrorIs(t, err, model.ErrConflict)

	_, err = f.lifecycle.RecordPayment(ctx, s.ID, 100, "card")
	assert.ErrorIs(t, err, model.ErrValidation)

	stored, err := f.sessions.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatePendingPayment, stored.State)
	assert.Len(t, stored.History, 1)
}

func TestPay_AfterHoldExpiredAndSlotRetakenRefunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	late, err := f.booking.CreateBooking(ctx, f.bookingRequest(10, 0))
	require.NoError(t, err)
	f.clock.Advance(DefaultOptions().PaymentHoldTTL + time.Minute)

	// 11:00 попадает в буфер после 10:00-11:00, но бронь 10:00 уже не держит время
	winner, err := f.booking.CreateBooking(ctx, f.bookingRequest(11, 0))
	require.NoError(t, err)
	_, err = f.lifecycle.RecordPayment(ctx, winner.ID, winner.Price, "card")
	require.NoError(t, err)

	_, err = f.lifecycle.RecordPayment(ctx, late.ID, late.Price, "card")
	assert.ErrorIs(t, err, lifecycle.ErrSlotTaken)
	assert.ErrorIs(t, err, model.ErrConflict)
	assert.Equal(t, []int64{late.ID}, f.payments.refunds())
	assert.Equal(t, 1, f.notifier.count(notify.TemplateSessionPaid))

	stored, err := f.sessions.GetByID(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatePendingPayment, stored.State)
	assert.Len(t, stored.History, 1)
}

func TestPay_AfterHoldExpiredSucceedsWhenSlotStillFree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.booking.CreateBooking(ctx, f.bookingRequest(10, 0))
	require.NoError(t, err)
	f.clock.Advance(DefaultOptions().PaymentHoldTTL + time.Minute)

	// неоплаченная чужая бронь рядом время не занимает
	_, err = f.booking.CreateBooking(ctx, f.bookingRequest(11, 0))
	require.NoError(t, err)

	s, err = f.lifecycle.RecordPayment(ctx, s.ID, s.Price, "card")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatePaid, s.State)
	assert.Empty(t, f.payments.refunds())
}

func TestPay_ConcurrentPaymentsForSameSlotSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.booking.CreateBooking(ctx, f.bookingRequest(10, 0))
	require.NoError(t, err)
	f.clock.Advance(DefaultOptions().PaymentHoldTTL + time.Minute)
	second, err := f.booking.CreateBooking(ctx, f.bookingRequest(10, 0))
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		paid      []int64
		conflicts int
		others    []error
	)
	for _, s := range []*model.Session{first, second} {
		wg.Add(1)
		go func(s *model.Session) {
			defer wg.Done()
			_, err := f.lifecycle.RecordPayment(ctx, s.ID, s.Price, "card")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				paid = append(paid, s.ID)
			case errors.Is(err, lifecycle.ErrSlotTaken):
				conflicts++
			default:
				others = append(others, err)
			}
		}(s)
	}
	wg.Wait()

	require.Empty(t, others)
	require.Len(t, paid, 1)
	assert.Equal(t, 1, conflicts)

	loser := first.ID
	if paid[0] == first.ID {
		loser = second.ID
	}
	assert.Equal(t, []int64{loser}, f.payments.refunds())

	occupying, err := f.sessions.ListBlocking(ctx, repository.BlockingWindow{
		ExpertID:      f.expert.ID,
		From:          testMonday,
		To:            testMonday.AddDate(0, 0, 1),
		OccupyingOnly: true,
	})
	require.NoError(t, err)
	require.Len(t, occupying, 1)
	assert.Equal(t, paid[0], occupying[0].ID)
}

func TestConfirm_ByClientForbiddenWithoutRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.booking.CreateBooking(ctx, f.bookingRequest(10, 0))
	require.NoError(t, err)
	_, err = f.lifecycle.RecordPayment(ctx, s.ID, s.Price, "card")
	require.NoError(t, err)

	_, err = f.lifecycle.Confirm(ctx, s.ID, f.client.ID)
	assert.ErrorIs(t, err, model.ErrForbidden)
	assert.Equal(t, 0, f.video.issued)
}

func TestStart_SkippingPaymentConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.booking.CreateBooking(ctx, f.bookingRequest(10, 0))
	require.NoError(t, err)
	f.clock.Set(at(10, 0))

	_, err = f.lifecycle.Start(ctx, s.ID, f.client.ID)
	assert.ErrorIs(t, err, model.ErrConflict)
}

func TestCancel_RefundsAndFreesSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	early := f.confirmedSession(t, 10)
	late := f.confirmedSession(t, 14)

	f.clock.Set(at(7, 0))
	s, err := f.lifecycle.Cancel(ctx, early.ID, f.client.ID, "schedule clash")
	require.NoError(t, err)
	assert.Equal(t, model.SessionStateRefunded, s.State)
	assert.Equal(t, []int64{early.ID}, f.payments.refunded)

	n := len(s.History)
	require.GreaterOrEqual(t, n, 2)
	assert.Equal(t, model.SessionStateCancelledByClient, s.History[n-2].State)
	assert.Equal(t, "schedule clash", s.History[n-2].Note)

	days, err := f.availability.Calendar(ctx, f.expert.ID, testMonday, 1)
	require.NoError(t, err)
	found := false
	for _, slot := range days[0].Slots {
		found = found || slot.Start.Equal(at(10, 0))
	}
	assert.True(t, found, "refunded session must release its slot")

	f.clock.Set(at(13, 0))
	_, err = f.lifecycle.Cancel(ctx, late.ID, f.expert.ID, "too late")
	assert.ErrorIs(t, err, model.ErrConflict)
	assert.Len(t, f.payments.refunded, 1)
}

func TestTransition_ConcurrentCancelsSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := f.confirmedSession(t, 14)
	before := len(s.History)
	f.clock.Set(at(9, 0))

	type outcome struct {
		session *model.Session
		err     error
	}
	results := make([]outcome, 2)

	var wg sync.WaitGroup
	for i, userID := range []int64{f.client.ID, f.expert.ID} {
		wg.Add(1)
		go func(i int, userID int64) {
			defer wg.Done()
			session, err := f.lifecycle.Cancel(ctx, s.ID, userID, "race")
			results[i] = outcome{session: session, err: err}
		}(i, userID)
	}
	wg.Wait()

	var winner *model.Session
	conflicts := 0
	for _, r := range results {
		if r.err == nil {
			require.Nil(t, winner, "both cancellations succeeded")
			winner = r.session
			continue
		}
		assert.ErrorIs(t, r.err, model.ErrConflict)
		conflicts++
	}
	require.NotNil(t, winner)
	assert.Equal(t, 1, conflicts)

	stored, err := f.sessions.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStateRefunded, stored.State)
	assert.Equal(t, winner.History, stored.History, "only the winner's changes are journaled")
	assert.Greater(t, len(stored.History), before)
	assert.Equal(t, []int64{s.ID}, f.payments.refunds())
}

func TestTransition_UnknownSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.lifecycle.Start(context.Background(), 4242, f.client.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

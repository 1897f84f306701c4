package api

import (
	"context"
	"time"

	"github.com/Freeeeeet/expert_sessions/internal/model"
	"github.com/Freeeeeet/expert_sessions/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type mockAvailability struct{ mock.Mock }

func (m *mockAvailability) GetProfile(ctx context.Context, expertID int64) (*model.AvailabilityProfile, error) {
	args := m.Called(ctx, expertID)
	profile, _ := args.Get(0).(*model.AvailabilityProfile)
	return profile, args.Error(1)
}

func (m *mockAvailability) Configure(ctx context.Context, expertID int64, template []model.WeeklyRange, cfg model.BookingConfig) (*model.AvailabilityProfile, error) {
	args := m.Called(ctx, expertID, template, cfg)
	profile, _ := args.Get(0).(*model.AvailabilityProfile)
	return profile, args.Error(1)
}

func (m *mockAvailability) AddException(ctx context.Context, expertID int64, start, end time.Time, reason string) (*model.ExceptionBlock, error) {
	args := m.Called(ctx, expertID, start, end, reason)
	block, _ := args.Get(0).(*model.ExceptionBlock)
	return block, args.Error(1)
}

func (m *mockAvailability) RemoveException(ctx context.Context, expertID int64, exceptionID uuid.UUID) error {
	return m.Called(ctx, expertID, exceptionID).Error(0)
}

func (m *mockAvailability) AddSpecialSlot(ctx context.Context, expertID int64, start time.Time, durationMinutes int, price int64) (*model.SpecialSlot, error) {
	args := m.Called(ctx, expertID, start, durationMinutes, price)
	slot, _ := args.Get(0).(*model.SpecialSlot)
	return slot, args.Error(1)
}

func (m *mockAvailability) Calendar(ctx context.Context, expertID int64, from time.Time, days int) ([]model.DaySlots, error) {
	args := m.Called(ctx, expertID, from, days)
	calendar, _ := args.Get(0).([]model.DaySlots)
	return calendar, args.Error(1)
}

type mockBookings struct{ mock.Mock }

func (m *mockBookings) CreateBooking(ctx context.Context, req service.CreateBookingRequest) (*model.Session, error) {
	args := m.Called(ctx, req)
	session, _ := args.Get(0).(*model.Session)
	return session, args.Error(1)
}

func (m *mockBookings) GetSession(ctx context.Context, id int64) (*model.Session, error) {
	args := m.Called(ctx, id)
	session, _ := args.Get(0).(*model.Session)
	return session, args.Error(1)
}

func (m *mockBookings) ListSessions(ctx context.Context, f model.SessionFilter) (*service.SessionPage, error) {
	args := m.Called(ctx, f)
	page, _ := args.Get(0).(*service.SessionPage)
	return page, args.Error(1)
}

type mockLifecycle struct{ mock.Mock }

func (m *mockLifecycle) RecordPayment(ctx context.Context, sessionID int64, amount int64, method string) (*model.Session, error) {
	args := m.Called(ctx, sessionID, amount, method)
	session, _ := args.Get(0).(*model.Session)
	return session, args.Error(1)
}

func (m *mockLifecycle) Pay(ctx context.Context, sessionID int64) (*model.Session, error) {
	args := m.Called(ctx, sessionID)
	session, _ := args.Get(0).(*model.Session)
	return session, args.Error(1)
}

func (m *mockLifecycle) Confirm(ctx context.Context, sessionID, userID int64) (*model.Session, error) {
	args := m.Called(ctx, sessionID, userID)
	session, _ := args.Get(0).(*model.Session)
	return session, args.Error(1)
}

func (m *mockLifecycle) Start(ctx context.Context, sessionID, userID int64) (*model.Session, error) {
	args := m.Called(ctx, sessionID, userID)
	session, _ := args.Get(0).(*model.Session)
	return session, args.Error(1)
}

func (m *mockLifecycle) Finish(ctx context.Context, sessionID, userID int64, summary string) (*model.Session, error) {
	args := m.Called(ctx, sessionID, userID, summary)
	session, _ := args.Get(0).(*model.Session)
	return session, args.Error(1)
}

func (m *mockLifecycle) Cancel(ctx context.Context, sessionID, userID int64, reason string) (*model.Session, error) {
	args := m.Called(ctx, sessionID, userID, reason)
	session, _ := args.Get(0).(*model.Session)
	return session, args.Error(1)
}

type mockUsers struct{ mock.Mock }

func (m *mockUsers) CreateUser(ctx context.Context, req service.CreateUserRequest) (*model.User, error) {
	args := m.Called(ctx, req)
	user, _ := args.Get(0).(*model.User)
	return user, args.Error(1)
}

func (m *mockUsers) GetByID(ctx context.Context, id int64) (*model.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*model.User)
	return user, args.Error(1)
}

func (m *mockUsers) ListExperts(ctx context.Context) ([]*model.User, error) {
	args := m.Called(ctx)
	users, _ := args.Get(0).([]*model.User)
	return users, args.Error(1)
}

type mockCategories struct{ mock.Mock }

func (m *mockCategories) Create(ctx context.Context, req service.CreateCategoryRequest) (*model.Category, error) {
	args := m.Called(ctx, req)
	category, _ := args.Get(0).(*model.Category)
	return category, args.Error(1)
}

func (m *mockCategories) ListActive(ctx context.Context) ([]*model.Category, error) {
	args := m.Called(ctx)
	categories, _ := args.Get(0).([]*model.Category)
	return categories, args.Error(1)
}

package service

import (
	"context"
	"time"

	"github.com/Freeeeeet/expert_sessions/internal/model"
	"github.com/Freeeeeet/expert_sessions/internal/repository"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/Freeeeeet/expert_sessions/internal/service")

// UserStore хранилище пользователей
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
	GetExperts(ctx context.Context) ([]*model.User, error)
}

// CategoryStore хранилище категорий консультаций
type CategoryStore interface {
	Create(ctx context.Context, category *model.Category) error
	GetByID(ctx context.Context, id int64) (*model.Category, error)
	GetActive(ctx context.Context) ([]*model.Category, error)
}

// AvailabilityStore хранилище профилей доступности
type AvailabilityStore interface {
	Get(ctx context.Context, expertID int64) (*model.AvailabilityProfile, error)
	Update(ctx context.Context, expertID int64, fn func(p *model.AvailabilityProfile) error) (*model.AvailabilityProfile, error)
}

// SessionStore хранилище сессий
type SessionStore interface {
	Reserve(ctx context.Context, w repository.BlockingWindow, build func(profile *model.AvailabilityProfile, existing []*model.Session) (*model.Session, error)) (*model.Session, error)
	GetByID(ctx context.Context, id int64) (*model.Session, error)
	Update(ctx context.Context, id int64, fn func(s *model.Session) error) (*model.Session, error)
	Occupy(ctx context.Context, id int64, fn func(s *model.Session, profile *model.AvailabilityProfile, occupied []*model.Session) error) (*model.Session, error)
	List(ctx context.Context, f model.SessionFilter) ([]*model.Session, int, error)
	ListBlocking(ctx context.Context, w repository.BlockingWindow) ([]*model.Session, error)
	ListDueReminders(ctx context.Context, from, to time.Time) ([]*model.Session, error)
	ClaimReminder(ctx context.Context, sessionID int64, party model.Party, at time.Time) (bool, error)
	ListNoShowCandidates(ctx context.Context, before time.Time) ([]*model.Session, error)
}

// Messaging создаёт переписку сторон по сессии
type Messaging interface {
	CreateThread(ctx context.Context, sessionID, clientID, expertID int64) error
}

// Options параметры планирования
type Options struct {
	PaymentHoldTTL  time.Duration // сколько неоплаченная сессия удерживает слот
	ReminderWindow  time.Duration // за сколько до начала отправляется напоминание
	MaxCalendarDays int
	MaxPageSize     int
}

func DefaultOptions() Options {
	return Options{
		PaymentHoldTTL:  30 * time.Minute,
		ReminderWindow:  time.Hour,
		MaxCalendarDays: 62,
		MaxPageSize:     100,
	}
}

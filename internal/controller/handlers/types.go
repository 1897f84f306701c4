package handlers

import (
	"context"
	"time"

	"github.com/Freeeeeet/expert_sessions/internal/clock"
	"github.com/Freeeeeet/expert_sessions/internal/model"
	"github.com/Freeeeeet/expert_sessions/internal/service"
	"go.uber.org/zap"
)

type UserService interface {
	RegisterUser(ctx context.Context, telegramID int64, username, firstName, lastName, languageCode string) (*model.User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
	MakeExpert(ctx context.Context, telegramID int64) (*model.User, error)
}

type SessionLister interface {
	ListSessions(ctx context.Context, f model.SessionFilter) (*service.SessionPage, error)
}

type CategoryLister interface {
	ListActive(ctx context.Context) ([]*model.Category, error)
}

// AvailabilityReader расписание эксперта для /week
type AvailabilityReader interface {
	GetProfile(ctx context.Context, expertID int64) (*model.AvailabilityProfile, error)
	Calendar(ctx context.Context, expertID int64, from time.Time, days int) ([]model.DaySlots, error)
}

// Handlers содержит все зависимости для обработки команд
type Handlers struct {
	userService     UserService
	sessionService  SessionLister
	categoryService CategoryLister
	availability    AvailabilityReader
	clock           clock.Clock
	logger          *zap.Logger
}

// NewHandlers создаёт новый обработчик команд
func NewHandlers(
	userService UserService,
	sessionService SessionLister,
	categoryService CategoryLister,
	availability AvailabilityReader,
	clk clock.Clock,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		userService:     userService,
		sessionService:  sessionService,
		categoryService: categoryService,
		availability:    availability,
		clock:           clk,
		logger:          logger,
	}
}

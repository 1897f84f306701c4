package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Freeeeeet/expert_sessions/internal/availability"
	"github.com/Freeeeeet/expert_sessions/internal/clock"
	"github.com/Freeeeeet/expert_sessions/internal/lifecycle"
	"github.com/Freeeeeet/expert_sessions/internal/model"
	"github.com/Freeeeeet/expert_sessions/internal/notify"
	"github.com/Freeeeeet/expert_sessions/internal/repository"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var validate = validator.New()

// reserveMargin окно выборки занятых сессий вокруг начала брони
const reserveMargin = 48 * time.Hour

// CreateBookingRequest заявка клиента на сессию
type CreateBookingRequest struct {
	ClientID        int64     `json:"client_id" validate:"required,gt=0"`
	ExpertID        int64     `json:"expert_id" validate:"required,gt=0,nefield=ClientID"`
	CategoryID      int64     `json:"category_id" validate:"required,gt=0"`
	Start           time.Time `json:"start" validate:"required"`
	DurationMinutes int       `json:"duration" validate:"required,gt=0,lte=1440"`
	Price           int64     `json:"price" validate:"gte=0"`
	PaymentMethod   string    `json:"payment_method" validate:"required,max=50"`
	Requirements    string    `json:"requirements" validate:"max=2000"`
}

// SessionPage страница списка сессий
type SessionPage struct {
	Items    []*model.Session `json:"items"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

type BookingService struct {
	users      UserStore
	categories CategoryStore
	sessions   SessionStore
	messaging  Messaging
	notifier   notify.Notifier
	clock      clock.Clock
	opts       Options
	logger     *zap.Logger
}

func NewBookingService(
	users UserStore,
	categories CategoryStore,
	sessions SessionStore,
	messaging Messaging,
	notifier notify.Notifier,
	clk clock.Clock,
	opts Options,
	logger *zap.Logger,
) *BookingService {
	return &BookingService{
		users:      users,
		categories: categories,
		sessions:   sessions,
		messaging:  messaging,
		notifier:   notifier,
		clock:      clk,
		opts:       opts,
		logger:     logger,
	}
}

// CreateBooking бронирует слот эксперта. Проверка слота и создание сессии
// выполняются атомарно: из двух одновременных заявок на пересекающееся время
// успешна ровно одна, вторая получает ErrConflict.
func (s *BookingService) CreateBooking(ctx context.Context, req CreateBookingRequest) (*model.Session, error) {
	ctx, span := tracer.Start(ctx, "BookingService.CreateBooking", trace.WithAttributes(
		attribute.Int64("client_id", req.ClientID),
		attribute.Int64("expert_id", req.ExpertID),
	))
	defer span.End()

	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrValidation, err)
	}

	client, err := s.users.GetByID(ctx, req.ClientID)
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("%w: client %d", model.ErrNotFound, req.ClientID)
	}

	expert, err := requireExpert(ctx, s.users, req.ExpertID)
	if err != nil {
		return nil, err
	}

	category, err := s.categories.GetByID(ctx, req.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	if category == nil || !category.IsActive {
		return nil, fmt.Errorf("%w: category %d", model.ErrNotFound, req.CategoryID)
	}

	// День брони в поясе эксперта лежит внутри ±1 сутки от start при любом
	// поясе, с запасом на соседние дни для буфера
	now := s.clock.Now()
	window := repository.BlockingWindow{
		ExpertID:  req.ExpertID,
		From:      req.Start.Add(-reserveMargin),
		To:        req.Start.Add(reserveMargin),
		HoldSince: now.Add(-s.opts.PaymentHoldTTL),
	}

	var timezone string
	session, err := s.sessions.Reserve(ctx, window, func(profile *model.AvailabilityProfile, existing []*model.Session) (*model.Session, error) {
		if profile == nil {
			profile = model.NewAvailabilityProfile(req.ExpertID)
		}
		timezone = profile.Config.Timezone

		localStart := req.Start.In(profile.Config.Location())
		slots := availability.GenerateSlots(profile, localStart, existing, now)
		slot, ok := availability.ContainsSlot(slots, req.Start, req.DurationMinutes)
		if !ok {
			return nil, fmt.Errorf("%w: slot unavailable", model.ErrConflict)
		}
		if slot.Price != req.Price {
			return nil, fmt.Errorf("%w: price changed, current price %d", model.ErrConflict, slot.Price)
		}

		clientActor := model.Actor{UserID: req.ClientID, Role: model.ActorClient}
		return &model.Session{
			ClientID:        req.ClientID,
			ExpertID:        req.ExpertID,
			CategoryID:      req.CategoryID,
			Start:           slot.Start,
			DurationMinutes: slot.DurationMinutes,
			Price:           slot.Price,
			PaymentMethod:   req.PaymentMethod,
			Requirements:    req.Requirements,
			State:           model.SessionStatePendingPayment,
			History:         []model.StateChange{lifecycle.Initial(clientActor, now)},
			CreatedAt:       now,
		}, nil
	})
	if err != nil {
		if !errors.Is(err, model.ErrConflict) {
			span.SetStatus(codes.Error, err.Error())
		}
		s.logger.Warn("Booking rejected",
			zap.Int64("client_id", req.ClientID),
			zap.Int64("expert_id", req.ExpertID),
			zap.Time("start", req.Start),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("Session booked",
		zap.Int64("session_id", session.ID),
		zap.Int64("client_id", req.ClientID),
		zap.Int64("expert_id", req.ExpertID),
		zap.Time("start", session.Start),
		zap.Int("duration", session.DurationMinutes))

	// Дальше best-effort: бронь уже сохранена
	if s.messaging != nil {
		if err := s.messaging.CreateThread(ctx, session.ID, session.ClientID, session.ExpertID); err != nil {
			s.logger.Error("Failed to create session thread", zap.Int64("session_id", session.ID), zap.Error(err))
		}
	}
	data := sessionData(session, timezone)
	s.send(ctx, session.ClientID, notify.TemplateNewSession, data)
	s.send(ctx, session.ExpertID, notify.TemplateNewRequest, data)

	session.Client = client
	session.Expert = expert
	session.Category = category
	return session, nil
}

// GetSession возвращает сессию со связанными сущностями
func (s *BookingService) GetSession(ctx context.Context, id int64) (*model.Session, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: session %d", model.ErrNotFound, id)
	}

	if err := s.resolve(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// ListSessions возвращает страницу сессий пользователя
func (s *BookingService) ListSessions(ctx context.Context, f model.SessionFilter) (*SessionPage, error) {
	if f.PageSize == 0 {
		f.PageSize = 20
	}
	if f.PageSize < 0 || f.PageSize > s.opts.MaxPageSize {
		return nil, fmt.Errorf("%w: page_size must be in [1, %d]", model.ErrValidation, s.opts.MaxPageSize)
	}
	if f.Page < 0 {
		return nil, fmt.Errorf("%w: page must not be negative", model.ErrValidation)
	}
	if f.Role != "" && f.Role != model.ActorClient && f.Role != model.ActorExpert {
		return nil, fmt.Errorf("%w: role must be client or expert", model.ErrValidation)
	}
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return nil, fmt.Errorf("%w: from must be before to", model.ErrValidation)
	}

	items, total, err := s.sessions.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if items == nil {
		items = []*model.Session{}
	}

	return &SessionPage{Items: items, Total: total, Page: f.Page, PageSize: f.PageSize}, nil
}

func (s *BookingService) resolve(ctx context.Context, session *model.Session) error {
	client, err := s.users.GetByID(ctx, session.ClientID)
	if err != nil {
		return fmt.Errorf("get client: %w", err)
	}
	expert, err := s.users.GetByID(ctx, session.ExpertID)
	if err != nil {
		return fmt.Errorf("get expert: %w", err)
	}
	category, err := s.categories.GetByID(ctx, session.CategoryID)
	if err != nil {
		return fmt.Errorf("get category: %w", err)
	}
	session.Client, session.Expert, session.Category = client, expert, category
	return nil
}

func (s *BookingService) send(ctx context.Context, userID int64, tpl notify.Template, data map[string]string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, userID, tpl, data); err != nil {
		s.logger.Error("Failed to send notification",
			zap.Int64("user_id", userID),
			zap.String("template", string(tpl)),
			zap.Error(err))
	}
}

// sessionData общие поля уведомления о сессии
func sessionData(s *model.Session, timezone string) map[string]string {
	return map[string]string{
		notify.KeySessionID: strconv.FormatInt(s.ID, 10),
		notify.KeyStart:     s.Start.UTC().Format(time.RFC3339),
		notify.KeyDuration:  strconv.Itoa(s.DurationMinutes),
		notify.KeyPrice:     strconv.FormatInt(s.Price, 10),
		notify.KeyTimezone:  timezone,
	}
}

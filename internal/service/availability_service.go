package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/expert_sessions/internal/availability"
	"github.com/Freeeeeet/expert_sessions/internal/clock"
	"github.com/Freeeeeet/expert_sessions/internal/model"
	"github.com/Freeeeeet/expert_sessions/internal/repository"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type AvailabilityService struct {
	users    UserStore
	profiles AvailabilityStore
	sessions SessionStore
	clock    clock.Clock
	opts     Options
	logger   *zap.Logger
}

func NewAvailabilityService(
	users UserStore,
	profiles AvailabilityStore,
	sessions SessionStore,
	clk clock.Clock,
	opts Options,
	logger *zap.Logger,
) *AvailabilityService {
	return &AvailabilityService{
		users:    users,
		profiles: profiles,
		sessions: sessions,
		clock:    clk,
		opts:     opts,
		logger:   logger,
	}
}

// GetProfile возвращает профиль эксперта. Эксперт без сохранённого профиля
// получает пустой шаблон с настройками по умолчанию.
func (s *AvailabilityService) GetProfile(ctx context.Context, expertID int64) (*model.AvailabilityProfile, error) {
	if _, err := requireExpert(ctx, s.users, expertID); err != nil {
		return nil, err
	}
	return s.loadProfile(ctx, expertID)
}

// Configure заменяет недельный шаблон и настройки бронирования
func (s *AvailabilityService) Configure(ctx context.Context, expertID int64, template []model.WeeklyRange, cfg model.BookingConfig) (*model.AvailabilityProfile, error) {
	ctx, span := tracer.Start(ctx, "AvailabilityService.Configure", trace.WithAttributes(attribute.Int64("expert_id", expertID)))
	defer span.End()

	if _, err := requireExpert(ctx, s.users, expertID); err != nil {
		return nil, err
	}
	if err := availability.ValidateTemplate(template); err != nil {
		return nil, err
	}
	if err := availability.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	profile, err := s.profiles.Update(ctx, expertID, func(p *model.AvailabilityProfile) error {
		p.WeeklyTemplate = append([]model.WeeklyRange(nil), template...)
		p.Config = cfg
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update availability: %w", err)
	}

	s.logger.Info("Availability configured",
		zap.Int64("expert_id", expertID),
		zap.Int("weekly_ranges", len(template)),
		zap.String("timezone", cfg.Timezone))

	return profile, nil
}

// AddException добавляет окно недоступности
func (s *AvailabilityService) AddException(ctx context.Context, expertID int64, start, end time.Time, reason string) (*model.ExceptionBlock, error) {
	if _, err := requireExpert(ctx, s.users, expertID); err != nil {
		return nil, err
	}
	if err := availability.ValidateException(start, end); err != nil {
		return nil, err
	}

	block := model.ExceptionBlock{
		ID:     uuid.New(),
		Start:  start,
		End:    end,
		Reason: reason,
	}

	_, err := s.profiles.Update(ctx, expertID, func(p *model.AvailabilityProfile) error {
		p.Exceptions = append(p.Exceptions, block)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("add exception: %w", err)
	}

	s.logger.Info("Availability exception added",
		zap.Int64("expert_id", expertID),
		zap.String("exception_id", block.ID.String()),
		zap.Time("start", start),
		zap.Time("end", end))

	return &block, nil
}

// RemoveException удаляет окно недоступности
func (s *AvailabilityService) RemoveException(ctx context.Context, expertID int64, exceptionID uuid.UUID) error {
	if _, err := requireExpert(ctx, s.users, expertID); err != nil {
		return err
	}

	_, err := s.profiles.Update(ctx, expertID, func(p *model.AvailabilityProfile) error {
		kept := p.Exceptions[:0]
		found := false
		for _, e := range p.Exceptions {
			if e.ID == exceptionID {
				found = true
				continue
			}
			kept = append(kept, e)
		}
		if !found {
			return fmt.Errorf("%w: exception %s", model.ErrNotFound, exceptionID)
		}
		p.Exceptions = kept
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove exception: %w", err)
	}

	s.logger.Info("Availability exception removed",
		zap.Int64("expert_id", expertID),
		zap.String("exception_id", exceptionID.String()))

	return nil
}

// AddSpecialSlot добавляет разовое окно со своей длительностью и ценой
func (s *AvailabilityService) AddSpecialSlot(ctx context.Context, expertID int64, start time.Time, durationMinutes int, price int64) (*model.SpecialSlot, error) {
	if _, err := requireExpert(ctx, s.users, expertID); err != nil {
		return nil, err
	}

	slot := model.SpecialSlot{
		ID:              uuid.New(),
		Start:           start,
		DurationMinutes: durationMinutes,
		Price:           price,
	}

	_, err := s.profiles.Update(ctx, expertID, func(p *model.AvailabilityProfile) error {
		// полночь проверяется в часовом поясе эксперта
		if err := availability.ValidateSpecialSlot(p.Config, start, durationMinutes, price); err != nil {
			return err
		}
		p.SpecialSlots = append(p.SpecialSlots, slot)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("add special slot: %w", err)
	}

	s.logger.Info("Special slot added",
		zap.Int64("expert_id", expertID),
		zap.Time("start", start),
		zap.Int("duration", durationMinutes),
		zap.Int64("price", price))

	return &slot, nil
}

// Calendar возвращает свободные слоты на days дней начиная с from
func (s *AvailabilityService) Calendar(ctx context.Context, expertID int64, from time.Time, days int) ([]model.DaySlots, error) {
	ctx, span := tracer.Start(ctx, "AvailabilityService.Calendar", trace.WithAttributes(
		attribute.Int64("expert_id", expertID),
		attribute.Int("days", days),
	))
	defer span.End()

	if days < 1 || days > s.opts.MaxCalendarDays {
		return nil, fmt.Errorf("%w: days must be in [1, %d]", model.ErrValidation, s.opts.MaxCalendarDays)
	}
	if _, err := requireExpert(ctx, s.users, expertID); err != nil {
		return nil, err
	}

	profile, err := s.loadProfile(ctx, expertID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	y, m, d := from.Date()
	first := time.Date(y, m, d, 0, 0, 0, 0, profile.Config.Location())
	existing, err := s.sessions.ListBlocking(ctx, repository.BlockingWindow{
		ExpertID:  expertID,
		From:      first.AddDate(0, 0, -1),
		To:        first.AddDate(0, 0, days+1),
		HoldSince: now.Add(-s.opts.PaymentHoldTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("list blocking sessions: %w", err)
	}

	return availability.Calendar(profile, from, days, existing, now), nil
}

func (s *AvailabilityService) loadProfile(ctx context.Context, expertID int64) (*model.AvailabilityProfile, error) {
	profile, err := s.profiles.Get(ctx, expertID)
	if err != nil {
		return nil, fmt.Errorf("get availability profile: %w", err)
	}
	if profile == nil {
		profile = model.NewAvailabilityProfile(expertID)
	}
	return profile, nil
}

// requireExpert проверяет, что пользователь существует и принимает сессии
func requireExpert(ctx context.Context, users UserStore, expertID int64) (*model.User, error) {
	user, err := users.GetByID(ctx, expertID)
	if err != nil {
		return nil, fmt.Errorf("get expert: %w", err)
	}
	if user == nil || !user.IsExpert {
		return nil, fmt.Errorf("%w: expert %d", model.ErrNotFound, expertID)
	}
	return user, nil
}

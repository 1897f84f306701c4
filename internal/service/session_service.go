package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/expert_sessions/internal/availability"
	"github.com/Freeeeeet/expert_sessions/internal/clock"
	"github.com/Freeeeeet/expert_sessions/internal/lifecycle"
	"github.com/Freeeeeet/expert_sessions/internal/model"
	"github.com/Freeeeeet/expert_sessions/internal/notify"
	"github.com/Freeeeeet/expert_sessions/internal/payment"
	"github.com/Freeeeeet/expert_sessions/internal/video"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Payments то, что сервису сессий нужно от учёта оплат
type Payments interface {
	payment.Status
	payment.Refunder
	payment.Recorder
}

// SessionService выполняет переходы жизненного цикла сессии
type SessionService struct {
	sessions SessionStore
	profiles AvailabilityStore
	machine  *lifecycle.Machine
	payments Payments
	video    video.Issuer
	notifier notify.Notifier
	clock    clock.Clock
	logger   *zap.Logger
}

func NewSessionService(
	sessions SessionStore,
	profiles AvailabilityStore,
	machine *lifecycle.Machine,
	payments Payments,
	videoIssuer video.Issuer,
	notifier notify.Notifier,
	clk clock.Clock,
	logger *zap.Logger,
) *SessionService {
	return &SessionService{
		sessions: sessions,
		profiles: profiles,
		machine:  machine,
		payments: payments,
		video:    videoIssuer,
		notifier: notifier,
		clock:    clk,
		logger:   logger,
	}
}

// RecordPayment фиксирует подтверждение оплаты от шлюза и переводит сессию в paid
func (s *SessionService) RecordPayment(ctx context.Context, sessionID int64, amount int64, method string) (*model.Session, error) {
	session, err := s.get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if amount != session.Price {
		return nil, fmt.Errorf("%w: payment amount %d does not match price %d", model.ErrValidation, amount, session.Price)
	}
	if err := s.payments.Record(ctx, sessionID, amount, method); err != nil {
		return nil, fmt.Errorf("record payment: %w", err)
	}
	return s.Pay(ctx, sessionID)
}

// Pay переводит сессию в paid, если платёжный учёт подтверждает оплату.
// Проверка занятости идёт под блокировкой расписания эксперта: пока сессия
// ждала оплату, её время мог занять другой клиент. Тогда побеждает тот, кто
// оплатил первым, а эта оплата возвращается.
func (s *SessionService) Pay(ctx context.Context, sessionID int64) (*model.Session, error) {
	paid, err := s.payments.IsPaid(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("check payment: %w", err)
	}

	var taken bool
	occupy := func(ctx context.Context, id int64, fn func(*model.Session) error) (*model.Session, error) {
		return s.sessions.Occupy(ctx, id, func(current *model.Session, profile *model.AvailabilityProfile, occupied []*model.Session) error {
			if profile == nil {
				profile = model.NewAvailabilityProfile(current.ExpertID)
			}
			buffer := time.Duration(profile.Config.BufferMinutes) * time.Minute
			taken = availability.Collides(current, buffer, occupied)
			return fn(current)
		})
	}

	session, err := s.run(ctx, sessionID, occupy, func(*model.Session) lifecycle.Command {
		return lifecycle.Command{
			Action:           lifecycle.ActionPay,
			Actor:            model.PaymentActor(),
			PaymentConfirmed: paid,
			SlotTaken:        taken,
		}
	})
	if err != nil && paid && errors.Is(err, lifecycle.ErrSlotTaken) {
		s.logger.Warn("Paid session lost its slot, refunding", zap.Int64("session_id", sessionID))
		if rerr := s.payments.Refund(ctx, sessionID); rerr != nil {
			s.logger.Error("Failed to refund session", zap.Int64("session_id", sessionID), zap.Error(rerr))
		}
	}
	return session, err
}

// Confirm подтверждение экспертом. Комната выдаётся только если переход допустим.
func (s *SessionService) Confirm(ctx context.Context, sessionID, userID int64) (*model.Session, error) {
	current, err := s.get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	check := lifecycle.Command{Action: lifecycle.ActionConfirm, Actor: actorFor(current, userID), Room: &model.VideoRoom{}}
	if _, err := s.machine.Decide(current, check, s.clock.Now()); err != nil {
		return nil, err
	}

	room, err := s.video.Issue(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: issue video room: %v", model.ErrInternal, err)
	}

	return s.transition(ctx, sessionID, func(current *model.Session) lifecycle.Command {
		return lifecycle.Command{Action: lifecycle.ActionConfirm, Actor: actorFor(current, userID), Room: room}
	})
}

// Start начало сессии любой из сторон
func (s *SessionService) Start(ctx context.Context, sessionID, userID int64) (*model.Session, error) {
	return s.transition(ctx, sessionID, func(current *model.Session) lifecycle.Command {
		return lifecycle.Command{Action: lifecycle.ActionStart, Actor: actorFor(current, userID)}
	})
}

// Finish завершение сессии экспертом
func (s *SessionService) Finish(ctx context.Context, sessionID, userID int64, summary string) (*model.Session, error) {
	return s.transition(ctx, sessionID, func(current *model.Session) lifecycle.Command {
		return lifecycle.Command{Action: lifecycle.ActionFinish, Actor: actorFor(current, userID), Summary: summary}
	})
}

// Cancel отмена стороной сессии с возвратом оплаты
func (s *SessionService) Cancel(ctx context.Context, sessionID, userID int64, reason string) (*model.Session, error) {
	return s.transition(ctx, sessionID, func(current *model.Session) lifecycle.Command {
		return lifecycle.Command{Action: lifecycle.ActionCancel, Actor: actorFor(current, userID), Reason: reason}
	})
}

// MarkNoShow отметка неявки клиента, вызывается планировщиком
func (s *SessionService) MarkNoShow(ctx context.Context, sessionID int64) (*model.Session, error) {
	return s.transition(ctx, sessionID, func(*model.Session) lifecycle.Command {
		return lifecycle.Command{Action: lifecycle.ActionNoShow, Actor: model.SchedulerActor()}
	})
}

// updater сохраняет изменения сессии, сделанные fn, в одной транзакции
type updater func(ctx context.Context, id int64, fn func(*model.Session) error) (*model.Session, error)

// transition выполняет переход под блокировкой строки сессии.
// Побочные эффекты исполняются после фиксации и не влияют на результат.
func (s *SessionService) transition(ctx context.Context, sessionID int64, command func(current *model.Session) lifecycle.Command) (*model.Session, error) {
	return s.run(ctx, sessionID, s.sessions.Update, command)
}

func (s *SessionService) run(ctx context.Context, sessionID int64, update updater, command func(current *model.Session) lifecycle.Command) (*model.Session, error) {
	ctx, span := tracer.Start(ctx, "SessionService.Transition", trace.WithAttributes(attribute.Int64("session_id", sessionID)))
	defer span.End()

	var (
		cmd    lifecycle.Command
		result *lifecycle.Result
	)
	session, err := update(ctx, sessionID, func(current *model.Session) error {
		cmd = command(current)
		r, err := s.machine.Decide(current, cmd, s.clock.Now())
		if err != nil {
			return err
		}
		lifecycle.Apply(current, r)
		result = r
		return nil
	})
	if err != nil {
		s.logger.Warn("Session transition rejected",
			zap.Int64("session_id", sessionID),
			zap.String("action", string(cmd.Action)),
			zap.String("actor_role", string(cmd.Actor.Role)),
			zap.Int64("actor_id", cmd.Actor.UserID),
			zap.Error(err))
		return nil, err
	}

	span.SetAttributes(attribute.String("from", string(result.From)), attribute.String("to", string(result.To)))
	s.logger.Info("Session transitioned",
		zap.Int64("session_id", sessionID),
		zap.String("action", string(cmd.Action)),
		zap.String("from", string(result.From)),
		zap.String("to", string(result.To)),
		zap.Int64("actor_id", cmd.Actor.UserID))

	s.runEffects(ctx, session, result.Effects)
	return session, nil
}

func (s *SessionService) runEffects(ctx context.Context, session *model.Session, effects []lifecycle.Effect) {
	if len(effects) == 0 {
		return
	}
	timezone := s.timezone(ctx, session.ExpertID)

	for _, e := range effects {
		switch e.Kind {
		case lifecycle.EffectRefund:
			if err := s.payments.Refund(ctx, session.ID); err != nil {
				s.logger.Error("Failed to refund session", zap.Int64("session_id", session.ID), zap.Error(err))
			}
		case lifecycle.EffectNotify:
			if s.notifier == nil {
				continue
			}
			data := sessionData(session, timezone)
			if e.Note != "" {
				if e.Template == notify.TemplateSessionConfirmed {
					data[notify.KeyLink] = e.Note
				} else {
					data[notify.KeyReason] = e.Note
				}
			}
			if err := s.notifier.Send(ctx, e.UserID, e.Template, data); err != nil {
				s.logger.Error("Failed to send notification",
					zap.Int64("session_id", session.ID),
					zap.Int64("user_id", e.UserID),
					zap.String("template", string(e.Template)),
					zap.Error(err))
			}
		}
	}
}

func (s *SessionService) get(ctx context.Context, sessionID int64) (*model.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("%w: session %d", model.ErrNotFound, sessionID)
	}
	return session, nil
}

// timezone часовой пояс эксперта для текста уведомлений, UTC если профиль недоступен
func (s *SessionService) timezone(ctx context.Context, expertID int64) string {
	if s.profiles == nil {
		return ""
	}
	profile, err := s.profiles.Get(ctx, expertID)
	if err != nil || profile == nil {
		return ""
	}
	return profile.Config.Timezone
}

// actorFor определяет роль пользователя в сессии
func actorFor(s *model.Session, userID int64) model.Actor {
	switch userID {
	case s.ExpertID:
		return model.Actor{UserID: userID, Role: model.ActorExpert}
	default:
		return model.Actor{UserID: userID, Role: model.ActorClient}
	}
}

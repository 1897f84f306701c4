package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Freeeeeet/expert_sessions/internal/clock"
	"github.com/Freeeeeet/expert_sessions/internal/lock"
	"github.com/Freeeeeet/expert_sessions/internal/model"
	"github.com/Freeeeeet/expert_sessions/internal/notify"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const sweepLockKey = "reminder-sweep"

// SweepReport итог одного прохода планировщика
type SweepReport struct {
	RemindersSent int
	NoShows       int
	Failures      int
	Skipped       bool // проход уже выполняется в другом месте
}

// ReminderService напоминания о подтверждённых сессиях и отметка неявок
type ReminderService struct {
	sessions  SessionStore
	lifecycle *SessionService
	profiles  AvailabilityStore
	notifier  notify.Notifier
	locker    lock.Locker
	clock     clock.Clock
	opts      Options
	logger    *zap.Logger
}

func NewReminderService(
	sessions SessionStore,
	lifecycle *SessionService,
	profiles AvailabilityStore,
	notifier notify.Notifier,
	locker lock.Locker,
	clk clock.Clock,
	opts Options,
	logger *zap.Logger,
) *ReminderService {
	return &ReminderService{
		sessions:  sessions,
		lifecycle: lifecycle,
		profiles:  profiles,
		notifier:  notifier,
		locker:    locker,
		clock:     clk,
		opts:      opts,
		logger:    logger,
	}
}

// Sweep один проход: напоминания, затем неявки.
// Ошибки по отдельным сессиям считаются в Failures и не прерывают проход.
func (s *ReminderService) Sweep(ctx context.Context) (SweepReport, error) {
	ctx, span := tracer.Start(ctx, "ReminderService.Sweep")
	defer span.End()

	var report SweepReport

	release, ok, err := s.locker.TryLock(ctx, sweepLockKey)
	if err != nil {
		return report, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !ok {
		s.logger.Debug("Sweep already running, skipping")
		report.Skipped = true
		return report, nil
	}
	defer release()

	now := s.clock.Now()

	due, err := s.sessions.ListDueReminders(ctx, now, now.Add(s.opts.ReminderWindow))
	if err != nil {
		return report, fmt.Errorf("list due reminders: %w", err)
	}
	for _, session := range due {
		s.remind(ctx, session, &report)
	}

	grace := s.lifecycle.machine.Policy().GracePeriod
	candidates, err := s.sessions.ListNoShowCandidates(ctx, now.Add(-grace))
	if err != nil {
		return report, fmt.Errorf("list no-show candidates: %w", err)
	}
	for _, session := range candidates {
		if _, err := s.lifecycle.MarkNoShow(ctx, session.ID); err != nil {
			if errors.Is(err, model.ErrConflict) {
				// сессию успели начать или отменить
				continue
			}
			report.Failures++
			s.logger.Error("Failed to mark no-show", zap.Int64("session_id", session.ID), zap.Error(err))
			continue
		}
		report.NoShows++
	}

	span.SetAttributes(
		attribute.Int("reminders_sent", report.RemindersSent),
		attribute.Int("no_shows", report.NoShows),
		attribute.Int("failures", report.Failures),
	)
	if report.RemindersSent > 0 || report.NoShows > 0 || report.Failures > 0 {
		s.logger.Info("Sweep finished",
			zap.Int("reminders_sent", report.RemindersSent),
			zap.Int("no_shows", report.NoShows),
			zap.Int("failures", report.Failures))
	}

	return report, nil
}

// remind отправляет напоминание каждой стороне не более одного раза:
// сначала флаг заявляется в хранилище, потом отправляется сообщение
func (s *ReminderService) remind(ctx context.Context, session *model.Session, report *SweepReport) {
	var timezone string
	if profile, err := s.profiles.Get(ctx, session.ExpertID); err == nil && profile != nil {
		timezone = profile.Config.Timezone
	}

	for _, party := range []model.Party{model.PartyClient, model.PartyExpert} {
		if session.RemindedAt(party) != nil {
			continue
		}

		claimed, err := s.sessions.ClaimReminder(ctx, session.ID, party, s.clock.Now())
		if err != nil {
			report.Failures++
			s.logger.Error("Failed to claim reminder",
				zap.Int64("session_id", session.ID),
				zap.String("party", string(party)),
				zap.Error(err))
			continue
		}
		if !claimed {
			continue
		}

		data := sessionData(session, timezone)
		if session.VideoRoom != nil {
			if party == model.PartyClient {
				data[notify.KeyLink] = session.VideoRoom.ClientLink
			} else {
				data[notify.KeyLink] = session.VideoRoom.ExpertLink
			}
		}

		if err := s.notifier.Send(ctx, session.PartyUserID(party), notify.TemplateReminder, data); err != nil {
			report.Failures++
			s.logger.Error("Failed to send reminder",
				zap.Int64("session_id", session.ID),
				zap.String("party", string(party)),
				zap.Error(err))
			continue
		}
		report.RemindersSent++
	}
}

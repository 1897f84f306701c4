package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/Freeeeeet/expert_sessions/internal/service"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper один проход напоминаний и неявок
type Sweeper interface {
	Sweep(ctx context.Context) (service.SweepReport, error)
}

// Scheduler управляет фоновыми задачами
type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	logger  *zap.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	first  sync.WaitGroup // стартовый проход идёт мимо cron
}

// NewScheduler создаёт планировщик с расписанием в формате cron ("@every 1m", "*/5 * * * *")
func NewScheduler(sweeper Sweeper, spec string, logger *zap.Logger) (*Scheduler, error) {
	cl := cronLogger{logger.Sugar().Named("cron")}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			// следующий тик пропускается, пока идёт предыдущий проход
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		sweeper: sweeper,
		logger:  logger,
		ctx:     context.Background(),
	}

	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start запускает фоновые задачи, первый проход сразу
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("Starting background scheduler")
	s.first.Add(1)
	go func() {
		defer s.first.Done()
		s.tick()
	}()
	s.cron.Start()
}

// Stop останавливает планировщик и ждёт завершения текущего прохода,
// в том числе стартового
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background scheduler")
	done := s.cron.Stop()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	<-done.Done()
	s.first.Wait()
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	s.RunOnce(ctx)
}

// RunOnce выполняет один проход и логирует итог
func (s *Scheduler) RunOnce(ctx context.Context) {
	report, err := s.sweeper.Sweep(ctx)
	if err != nil {
		s.logger.Error("Sweep failed", zap.Error(err))
		return
	}
	if report.Skipped {
		s.logger.Debug("Sweep skipped, lock held elsewhere")
	}
}

// cronLogger пишет служебные сообщения cron в zap
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

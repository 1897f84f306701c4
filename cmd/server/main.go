package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/Freeeeeet/expert_sessions/internal/api"
	"github.com/Freeeeeet/expert_sessions/internal/app"
	"github.com/Freeeeeet/expert_sessions/internal/clock"
	"github.com/Freeeeeet/expert_sessions/internal/config"
	"github.com/Freeeeeet/expert_sessions/internal/controller"
	"github.com/Freeeeeet/expert_sessions/internal/lifecycle"
	"github.com/Freeeeeet/expert_sessions/internal/lock"
	"github.com/Freeeeeet/expert_sessions/internal/notify"
	"github.com/Freeeeeet/expert_sessions/internal/payment"
	"github.com/Freeeeeet/expert_sessions/internal/repository"
	"github.com/Freeeeeet/expert_sessions/internal/service"
	"github.com/Freeeeeet/expert_sessions/internal/video"
	"github.com/go-redis/redis/v8"
	"github.com/go-telegram/bot"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := app.NewLogger(cfg.Environment, cfg.ServiceName)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Server stopped with error", zap.Error(err))
	}
	logger.Info("Server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	shutdownTracing, err := app.SetupTracing(ctx, cfg.OTELEndpoint, cfg.ServiceName, cfg.Environment)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("Failed to flush traces", zap.Error(err))
		}
	}()

	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return err
	}

	migrator, err := app.NewMigrator(pool, cfg.MigrationsPath, logger)
	if err != nil {
		return err
	}
	if err := migrator.Run(ctx); err != nil {
		return err
	}
	if err := migrator.Close(); err != nil {
		logger.Warn("Failed to close migrator", zap.Error(err))
	}

	clk := clock.Real{}

	// Репозитории
	userRepo := repository.NewUserRepository(pool)
	categoryRepo := repository.NewCategoryRepository(pool, logger)
	availabilityRepo := repository.NewAvailabilityRepository(pool, logger)
	sessionRepo := repository.NewSessionRepository(pool, logger)
	threadRepo := repository.NewThreadRepository(pool)
	ledger := payment.NewLedger(pool, clk)

	videoIssuer, err := video.NewLinkIssuer(cfg.VideoBaseURL)
	if err != nil {
		return err
	}

	// Уведомления: всегда в лог, в Telegram если задан токен
	notifiers := notify.Multi{notify.NewLogSender(logger)}
	var tgBot *bot.Bot
	if cfg.TelegramToken != "" {
		tgBot, err = bot.New(cfg.TelegramToken)
		if err != nil {
			return err
		}
		notifiers = append(notifiers, notify.NewTelegramSender(tgBot, userRepo))
	}

	// Блокировка прохода: локальная всегда, Redis между инстансами
	var locker lock.Locker = lock.NewLocal()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer rdb.Close()
		if err := lock.Ping(ctx, rdb); err != nil {
			return err
		}
		locker = lock.Chain{locker, lock.NewRedis(rdb, cfg.SweepLockTTL, logger)}
	}

	opts := service.DefaultOptions()
	opts.PaymentHoldTTL = cfg.PaymentHoldTTL
	opts.ReminderWindow = cfg.ReminderWindow

	machine := lifecycle.New(lifecycle.Policy{
		StartWindow:  cfg.StartWindow,
		CancelCutoff: cfg.CancelCutoff,
		GracePeriod:  cfg.GracePeriod,
	})

	// Сервисы
	userService := service.NewUserService(userRepo, logger)
	categoryService := service.NewCategoryService(categoryRepo, logger)
	availabilityService := service.NewAvailabilityService(userRepo, availabilityRepo, sessionRepo, clk, opts, logger)
	bookingService := service.NewBookingService(userRepo, categoryRepo, sessionRepo, threadRepo, notifiers, clk, opts, logger)
	sessionService := service.NewSessionService(sessionRepo, availabilityRepo, machine, ledger, videoIssuer, notifiers, clk, logger)
	reminderService := service.NewReminderService(sessionRepo, sessionService, availabilityRepo, notifiers, locker, clk, opts, logger)

	scheduler, err := app.NewScheduler(reminderService, cfg.SweepSchedule, logger)
	if err != nil {
		return err
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	if tgBot != nil {
		botController := controller.NewBotController(tgBot, userService, bookingService, categoryService, availabilityService, clk, logger)
		if err := botController.RegisterHandlers(ctx); err != nil {
			logger.Warn("Failed to register bot commands", zap.Error(err))
		}
		go botController.Start(ctx)
	}

	server := api.New(api.Services{
		Availability: availabilityService,
		Bookings:     bookingService,
		Lifecycle:    sessionService,
		Users:        userService,
		Categories:   categoryService,
	}, api.Config{
		RateLimit:    cfg.HTTPRateLimit,
		RateBurst:    cfg.HTTPRateBurst,
		ReadTimeout:  cfg.HTTPTimeout,
		WriteTimeout: cfg.HTTPTimeout,
	}, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Listen(cfg.HTTPAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

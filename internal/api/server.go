package api

import (
	"context"
	"time"

	"github.com/Freeeeeet/expert_sessions/internal/model"
	"github.com/Freeeeeet/expert_sessions/internal/service"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var validate = validator.New()

// Availability операции над расписанием эксперта
type Availability interface {
	GetProfile(ctx context.Context, expertID int64) (*model.AvailabilityProfile, error)
	Configure(ctx context.Context, expertID int64, template []model.WeeklyRange, cfg model.BookingConfig) (*model.AvailabilityProfile, error)
	AddException(ctx context.Context, expertID int64, start, end time.Time, reason string) (*model.ExceptionBlock, error)
	RemoveException(ctx context.Context, expertID int64, exceptionID uuid.UUID) error
	AddSpecialSlot(ctx context.Context, expertID int64, start time.Time, durationMinutes int, price int64) (*model.SpecialSlot, error)
	Calendar(ctx context.Context, expertID int64, from time.Time, days int) ([]model.DaySlots, error)
}

// Bookings создание и чтение сессий
type Bookings interface {
	CreateBooking(ctx context.Context, req service.CreateBookingRequest) (*model.Session, error)
	GetSession(ctx context.Context, id int64) (*model.Session, error)
	ListSessions(ctx context.Context, f model.SessionFilter) (*service.SessionPage, error)
}

// Lifecycle переходы состояний сессии
type Lifecycle interface {
	RecordPayment(ctx context.Context, sessionID int64, amount int64, method string) (*model.Session, error)
	Pay(ctx context.Context, sessionID int64) (*model.Session, error)
	Confirm(ctx context.Context, sessionID, userID int64) (*model.Session, error)
	Start(ctx context.Context, sessionID, userID int64) (*model.Session, error)
	Finish(ctx context.Context, sessionID, userID int64, summary string) (*model.Session, error)
	Cancel(ctx context.Context, sessionID, userID int64, reason string) (*model.Session, error)
}

type Users interface {
	CreateUser(ctx context.Context, req service.CreateUserRequest) (*model.User, error)
	GetByID(ctx context.Context, id int64) (*model.User, error)
	ListExperts(ctx context.Context) ([]*model.User, error)
}

type Categories interface {
	Create(ctx context.Context, req service.CreateCategoryRequest) (*model.Category, error)
	ListActive(ctx context.Context) ([]*model.Category, error)
}

// Services всё, что нужно HTTP-слою
type Services struct {
	Availability Availability
	Bookings     Bookings
	Lifecycle    Lifecycle
	Users        Users
	Categories   Categories
}

// Config параметры HTTP-сервера
type Config struct {
	RateLimit    float64 // запросов в секунду с одного IP, 0 = без ограничения
	RateBurst    int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Server struct {
	app    *fiber.App
	svc    Services
	logger *zap.Logger
}

// New собирает fiber-приложение со всеми маршрутами
func New(svc Services, cfg Config, logger *zap.Logger) *Server {
	s := &Server{svc: svc, logger: logger}

	s.app = fiber.New(fiber.Config{
		AppName:               "Expert Sessions",
		CaseSensitive:         true,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		IdleTimeout:           60 * time.Second,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	s.app.Use(recover.New())
	s.app.Use(s.requestLogger())
	if cfg.RateLimit > 0 {
		s.app.Use(newRateLimiter(cfg.RateLimit, cfg.RateBurst, logger).handler())
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := s.app.Group("/api/v1")

	api.Get("/experts", s.listExperts)

	experts := api.Group("/experts/:id")
	experts.Get("/availability", s.getCalendar)
	experts.Get("/availability/profile", s.getProfile)
	experts.Put("/availability", s.configureAvailability)
	experts.Post("/availability/block", s.addException)
	experts.Delete("/availability/block/:blockId", s.removeException)
	experts.Post("/availability/special", s.addSpecialSlot)

	bookings := api.Group("/bookings")
	bookings.Post("", s.createBooking)
	bookings.Get("", s.listSessions)
	bookings.Get("/:id", s.getSession)
	bookings.Post("/:id/:action", s.transition)

	api.Post("/payments", s.recordPayment)

	api.Post("/users", s.createUser)
	api.Get("/users/:id", s.getUser)

	api.Get("/categories", s.listCategories)
	api.Post("/categories", s.createCategory)
}

// App нужен для тестов через app.Test
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	s.logger.Info("HTTP server listening", zap.String("addr", addr))
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		started := time.Now()
		err := c.Next()
		s.logger.Debug("HTTP request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("latency", time.Since(started)))
		return err
	}
}

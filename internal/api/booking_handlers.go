package api

import (
	"strconv"
	"strings"
	"time"

	"github.com/Freeeeeet/expert_sessions/internal/lifecycle"
	"github.com/Freeeeeet/expert_sessions/internal/model"
	"github.com/Freeeeeet/expert_sessions/internal/service"
	"github.com/gofiber/fiber/v2"
)

// transitionRequest тело запроса на смену состояния.
// Личность участника передаётся явно, аутентификации нет.
type transitionRequest struct {
	ActorID int64  `json:"actor_id" validate:"gte=0"`
	Reason  string `json:"reason" validate:"max=1000"`
	Summary string `json:"summary" validate:"max=4000"`
}

type paymentRequest struct {
	SessionID int64  `json:"session_id" validate:"required,gt=0"`
	Amount    int64  `json:"amount" validate:"gte=0"`
	Method    string `json:"method" validate:"required,max=50"`
}

func (s *Server) createBooking(c *fiber.Ctx) error {
	var req service.CreateBookingRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("cannot parse JSON")
	}

	session, err := s.svc.Bookings.CreateBooking(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(session)
}

func (s *Server) getSession(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	session, err := s.svc.Bookings.GetSession(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(session)
}

// GET /api/v1/bookings?user=&role=&state=&from=&to=&page=&page_size=
func (s *Server) listSessions(c *fiber.Ctx) error {
	var (
		filter model.SessionFilter
		err    error
	)

	if raw := c.Query("user"); raw != "" {
		if filter.UserID, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return badRequest("user must be an integer")
		}
	}
	filter.Role = model.ActorRole(c.Query("role"))

	if raw := c.Query("state"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			state, ok := model.ParseSessionState(strings.TrimSpace(part))
			if !ok {
				return badRequest("unknown state: " + part)
			}
			filter.States = append(filter.States, state)
		}
	}

	if filter.From, err = queryTime(c, "from"); err != nil {
		return err
	}
	if filter.To, err = queryTime(c, "to"); err != nil {
		return err
	}

	filter.Page = c.QueryInt("page", 0)
	filter.PageSize = c.QueryInt("page_size", 0)

	page, err := s.svc.Bookings.ListSessions(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(page)
}

// POST /api/v1/bookings/:id/{pay|confirm|start|finish|cancel}
func (s *Server) transition(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	action, ok := lifecycle.ParseAction(c.Params("action"))
	if !ok || action == lifecycle.ActionNoShow {
		return fiber.NewError(fiber.StatusNotFound, "unknown action: "+c.Params("action"))
	}

	var req transitionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest("cannot parse JSON")
		}
	}
	if err := validate.Struct(req); err != nil {
		return validationError(err)
	}
	if action != lifecycle.ActionPay && req.ActorID == 0 {
		return badRequest("actor_id is required")
	}

	ctx := c.UserContext()
	var session *model.Session
	switch action {
	case lifecycle.ActionPay:
		session, err = s.svc.Lifecycle.Pay(ctx, id)
	case lifecycle.ActionConfirm:
		session, err = s.svc.Lifecycle.Confirm(ctx, id, req.ActorID)
	case lifecycle.ActionStart:
		session, err = s.svc.Lifecycle.Start(ctx, id, req.ActorID)
	case lifecycle.ActionFinish:
		session, err = s.svc.Lifecycle.Finish(ctx, id, req.ActorID, req.Summary)
	case lifecycle.ActionCancel:
		session, err = s.svc.Lifecycle.Cancel(ctx, id, req.ActorID, req.Reason)
	}
	if err != nil {
		return err
	}
	return c.JSON(session)
}

// POST /api/v1/payments фиксирует оплату и переводит сессию в paid
func (s *Server) recordPayment(c *fiber.Ctx) error {
	var req paymentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("cannot parse JSON")
	}
	if err := validate.Struct(req); err != nil {
		return validationError(err)
	}

	session, err := s.svc.Lifecycle.RecordPayment(c.UserContext(), req.SessionID, req.Amount, req.Method)
	if err != nil {
		return err
	}
	return c.JSON(session)
}

func queryTime(c *fiber.Ctx, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, badRequest(key + " must be RFC3339")
	}
	return &t, nil
}

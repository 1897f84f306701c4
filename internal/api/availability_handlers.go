package api

import (
	"strconv"
	"time"

	"github.com/Freeeeeet/expert_sessions/internal/model"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

type configureRequest struct {
	WeeklyTemplate []model.WeeklyRange `json:"weekly_template"`
	Config         model.BookingConfig `json:"config"`
}

type blockRequest struct {
	Start  time.Time `json:"start" validate:"required"`
	End    time.Time `json:"end" validate:"required"`
	Reason string    `json:"reason" validate:"max=500"`
}

type specialSlotRequest struct {
	Start    time.Time `json:"start" validate:"required"`
	Duration int       `json:"duration" validate:"required,gt=0"`
	Price    int64     `json:"price" validate:"gte=0"`
}

// GET /api/v1/experts/:id/availability?from=YYYY-MM-DD&days=N
func (s *Server) getCalendar(c *fiber.Ctx) error {
	expertID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	from := time.Now().UTC()
	if raw := c.Query("from"); raw != "" {
		from, err = time.Parse(dateLayout, raw)
		if err != nil {
			return badRequest("from must be YYYY-MM-DD")
		}
	}

	days := 7
	if raw := c.Query("days"); raw != "" {
		days, err = strconv.Atoi(raw)
		if err != nil {
			return badRequest("days must be an integer")
		}
	}

	calendar, err := s.svc.Availability.Calendar(c.UserContext(), expertID, from, days)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"expert_id": expertID, "days": calendar})
}

func (s *Server) getProfile(c *fiber.Ctx) error {
	expertID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	profile, err := s.svc.Availability.GetProfile(c.UserContext(), expertID)
	if err != nil {
		return err
	}
	return c.JSON(profile)
}

func (s *Server) configureAvailability(c *fiber.Ctx) error {
	expertID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req configureRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("cannot parse JSON")
	}

	profile, err := s.svc.Availability.Configure(c.UserContext(), expertID, req.WeeklyTemplate, req.Config)
	if err != nil {
		return err
	}
	return c.JSON(profile)
}

func (s *Server) addException(c *fiber.Ctx) error {
	expertID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req blockRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("cannot parse JSON")
	}
	if err := validate.Struct(req); err != nil {
		return validationError(err)
	}

	block, err := s.svc.Availability.AddException(c.UserContext(), expertID, req.Start, req.End, req.Reason)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(block)
}

func (s *Server) removeException(c *fiber.Ctx) error {
	expertID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	blockID, err := uuid.Parse(c.Params("blockId"))
	if err != nil {
		return badRequest("blockId must be a UUID")
	}

	if err := s.svc.Availability.RemoveException(c.UserContext(), expertID, blockID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) addSpecialSlot(c *fiber.Ctx) error {
	expertID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req specialSlotRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("cannot parse JSON")
	}
	if err := validate.Struct(req); err != nil {
		return validationError(err)
	}

	slot, err := s.svc.Availability.AddSpecialSlot(c.UserContext(), expertID, req.Start, req.Duration, req.Price)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(slot)
}

func paramID(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest(name + " must be a positive integer")
	}
	return id, nil
}

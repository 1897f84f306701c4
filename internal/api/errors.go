package api

import (
	"errors"
	"strings"

	"github.com/Freeeeeet/expert_sessions/internal/model"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// statusFor сопоставляет ошибку ядра с HTTP-кодом
func statusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, model.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, model.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, model.ErrForbidden):
		return fiber.StatusForbidden
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := statusFor(err)
	message := err.Error()

	if code >= fiber.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err))
		// детали хранилища наружу не отдаём
		message = "internal error"
	}

	return c.Status(code).JSON(fiber.Map{"error": message})
}

// badRequest ошибка разбора запроса, до вызова сервиса
func badRequest(msg string) error {
	return fiber.NewError(fiber.StatusBadRequest, msg)
}

func validationError(err error) error {
	return fiber.NewError(fiber.StatusBadRequest, strings.TrimSpace(err.Error()))
}

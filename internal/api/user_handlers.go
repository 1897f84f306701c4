package api

import (
	"github.com/Freeeeeet/expert_sessions/internal/service"
	"github.com/gofiber/fiber/v2"
)

func (s *Server) createUser(c *fiber.Ctx) error {
	var req service.CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("cannot parse JSON")
	}
	user, err := s.svc.Users.CreateUser(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(user)
}

func (s *Server) getUser(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	user, err := s.svc.Users.GetByID(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(user)
}

func (s *Server) listExperts(c *fiber.Ctx) error {
	experts, err := s.svc.Users.ListExperts(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"items": experts})
}

func (s *Server) listCategories(c *fiber.Ctx) error {
	categories, err := s.svc.Categories.ListActive(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"items": categories})
}

func (s *Server) createCategory(c *fiber.Ctx) error {
	var req service.CreateCategoryRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("cannot parse JSON")
	}
	category, err := s.svc.Categories.Create(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(category)
}

package service

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/expert_sessions/internal/model"
	"go.uber.org/zap"
)

// CreateCategoryRequest новая категория консультаций
type CreateCategoryRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=1000"`
}

type CategoryService struct {
	categories CategoryStore
	logger     *zap.Logger
}

func NewCategoryService(categories CategoryStore, logger *zap.Logger) *CategoryService {
	return &CategoryService{categories: categories, logger: logger}
}

// Create создаёт активную категорию
func (s *CategoryService) Create(ctx context.Context, req CreateCategoryRequest) (*model.Category, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrValidation, err)
	}

	category := &model.Category{Name: req.Name, Description: req.Description, IsActive: true}
	if err := s.categories.Create(ctx, category); err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	return category, nil
}

// ListActive активные категории
func (s *CategoryService) ListActive(ctx context.Context) ([]*model.Category, error) {
	categories, err := s.categories.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	if categories == nil {
		categories = []*model.Category{}
	}
	return categories, nil
}

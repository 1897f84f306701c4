package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/expert_sessions/internal/model"
	"github.com/Freeeeeet/expert_sessions/internal/repository/base"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type CategoryRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewCategoryRepository(pool *pgxpool.Pool, logger *zap.Logger) *CategoryRepository {
	return &CategoryRepository{
		pool:   pool,
		logger: logger,
	}
}

// Create создаёт новую категорию
func (r *CategoryRepository) Create(ctx context.Context, category *model.Category) error {
	query := `
		INSERT INTO categories (name, description, is_active)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(ctx, query, category.Name, category.Description, category.IsActive).
		Scan(&category.ID, &category.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to insert category into DB",
			zap.String("name", category.Name),
			zap.Error(err))
		return fmt.Errorf("create category: %w", base.MapError(err))
	}

	r.logger.Info("Category inserted successfully",
		zap.Int64("category_id", category.ID),
		zap.String("name", category.Name))

	return nil
}

// GetByID получает категорию по ID
func (r *CategoryRepository) GetByID(ctx context.Context, id int64) (*model.Category, error) {
	query := `
		SELECT id, name, description, is_active, created_at
		FROM categories
		WHERE id = $1
	`

	var category model.Category
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&category.ID,
		&category.Name,
		&category.Description,
		&category.IsActive,
		&category.CreatedAt,
	)

	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get category by id: %w", err)
	}

	return &category, nil
}

// GetActive получает все активные категории
func (r *CategoryRepository) GetActive(ctx context.Context) ([]*model.Category, error) {
	query := `
		SELECT id, name, description, is_active, created_at
		FROM categories
		WHERE is_active = true
		ORDER BY name
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get active categories: %w", err)
	}
	defer rows.Close()

	var categories []*model.Category
	for rows.Next() {
		var category model.Category
		if err := rows.Scan(
			&category.ID,
			&category.Name,
			&category.Description,
			&category.IsActive,
			&category.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, &category)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}

	return categories, nil
}

package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ThreadRepository создаёт переписку сторон по сессии.
// Сами сообщения вне системы, здесь только привязка.
type ThreadRepository struct {
	pool *pgxpool.Pool
}

func NewThreadRepository(pool *pgxpool.Pool) *ThreadRepository {
	return &ThreadRepository{pool: pool}
}

// CreateThread идемпотентно создаёт тред для сессии
func (r *ThreadRepository) CreateThread(ctx context.Context, sessionID, clientID, expertID int64) error {
	query := `
		INSERT INTO session_threads (session_id, client_id, expert_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO NOTHING
	`

	if _, err := r.pool.Exec(ctx, query, sessionID, clientID, expertID); err != nil {
		return fmt.Errorf("create thread: %w", err)
	}
	return nil
}

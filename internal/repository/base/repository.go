package base

import (
	"context"
	"errors"
	"fmt"

	"github.com/Freeeeeet/expert_sessions/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Коды ошибок PostgreSQL
const (
	codeUniqueViolation    = "23505"
	codeExclusionViolation = "23P01"
	codeForeignKey         = "23503"
)

// Querier общий интерфейс пула и транзакции
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// WithTx выполняет fn в транзакции. Коммит если fn вернула nil, иначе откат.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", MapError(err))
	}
	return nil
}

// LockExpert берёт advisory-блокировку расписания эксперта до конца транзакции.
// Её держат все операции, которые проверяют или меняют занятость эксперта.
func LockExpert(ctx context.Context, q Querier, expertID int64) error {
	if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, expertID); err != nil {
		return fmt.Errorf("lock expert schedule: %w", err)
	}
	return nil
}

// IsNotFound проверяет является ли ошибка "строка не найдена"
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// MapError переводит нарушения ограничений в ошибки домена
func MapError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeExclusionViolation:
		return fmt.Errorf("%w: time range overlaps another session (%s)", model.ErrConflict, pgErr.ConstraintName)
	case codeUniqueViolation:
		return fmt.Errorf("%w: duplicate value (%s)", model.ErrConflict, pgErr.ConstraintName)
	case codeForeignKey:
		return fmt.Errorf("%w: referenced entity missing (%s)", model.ErrNotFound, pgErr.ConstraintName)
	}
	return err
}

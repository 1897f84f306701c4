package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/expert_sessions/internal/model"
	"github.com/Freeeeeet/expert_sessions/internal/repository/base"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// AvailabilityRepository хранит профили доступности экспертов
type AvailabilityRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewAvailabilityRepository(pool *pgxpool.Pool, logger *zap.Logger) *AvailabilityRepository {
	return &AvailabilityRepository{
		pool:   pool,
		logger: logger,
	}
}

// Get возвращает профиль эксперта или nil, если он ещё не сохранялся
func (r *AvailabilityRepository) Get(ctx context.Context, expertID int64) (*model.AvailabilityProfile, error) {
	profile, err := loadProfile(ctx, r.pool, expertID, false)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get availability profile: %w", err)
	}
	return profile, nil
}

// Update блокирует расписание и профиль эксперта, применяет fn и целиком перезаписывает
// шаблон, исключения и разовые окна в одной транзакции.
// Если профиля ещё нет, fn получает профиль с настройками по умолчанию.
func (r *AvailabilityRepository) Update(ctx context.Context, expertID int64, fn func(p *model.AvailabilityProfile) error) (*model.AvailabilityProfile, error) {
	var result *model.AvailabilityProfile

	err := base.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		// правка профиля не должна проходить между проверкой слота и вставкой брони
		if err := base.LockExpert(ctx, tx, expertID); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO availability_profiles (expert_id, config)
			VALUES ($1, $2)
			ON CONFLICT (expert_id) DO NOTHING
		`, expertID, model.DefaultBookingConfig())
		if err != nil {
			return fmt.Errorf("ensure availability profile: %w", base.MapError(err))
		}

		profile, err := loadProfile(ctx, tx, expertID, true)
		if err != nil {
			return fmt.Errorf("lock availability profile: %w", err)
		}

		if err := fn(profile); err != nil {
			return err
		}

		if err := saveProfile(ctx, tx, profile); err != nil {
			return err
		}
		result = profile
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("Availability profile updated",
		zap.Int64("expert_id", expertID),
		zap.Int("weekly_ranges", len(result.WeeklyTemplate)),
		zap.Int("exceptions", len(result.Exceptions)),
		zap.Int("special_slots", len(result.SpecialSlots)))

	return result, nil
}

func loadProfile(ctx context.Context, q base.Querier, expertID int64, forUpdate bool) (*model.AvailabilityProfile, error) {
	query := `SELECT expert_id, config, updated_at FROM availability_profiles WHERE expert_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	profile := &model.AvailabilityProfile{}
	if err := q.QueryRow(ctx, query, expertID).Scan(&profile.ExpertID, &profile.Config, &profile.UpdatedAt); err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT weekday, start_minute, end_minute, is_active
		FROM availability_weekly_ranges
		WHERE expert_id = $1
		ORDER BY weekday, start_minute
	`, expertID)
	if err != nil {
		return nil, fmt.Errorf("query weekly ranges: %w", err)
	}
	for rows.Next() {
		var wr model.WeeklyRange
		if err := rows.Scan(&wr.Weekday, &wr.StartMinute, &wr.EndMinute, &wr.Active); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan weekly range: %w", err)
		}
		profile.WeeklyTemplate = append(profile.WeeklyTemplate, wr)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate weekly ranges: %w", err)
	}

	rows, err = q.Query(ctx, `
		SELECT id, start_at, end_at, reason
		FROM availability_exceptions
		WHERE expert_id = $1
		ORDER BY start_at
	`, expertID)
	if err != nil {
		return nil, fmt.Errorf("query exceptions: %w", err)
	}
	for rows.Next() {
		var e model.ExceptionBlock
		if err := rows.Scan(&e.ID, &e.Start, &e.End, &e.Reason); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan exception: %w", err)
		}
		profile.Exceptions = append(profile.Exceptions, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exceptions: %w", err)
	}

	rows, err = q.Query(ctx, `
		SELECT id, start_at, duration_minutes, price
		FROM availability_special_slots
		WHERE expert_id = $1
		ORDER BY start_at
	`, expertID)
	if err != nil {
		return nil, fmt.Errorf("query special slots: %w", err)
	}
	for rows.Next() {
		var sp model.SpecialSlot
		if err := rows.Scan(&sp.ID, &sp.Start, &sp.DurationMinutes, &sp.Price); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan special slot: %w", err)
		}
		profile.SpecialSlots = append(profile.SpecialSlots, sp)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate special slots: %w", err)
	}

	return profile, nil
}

// saveProfile перезаписывает все коллекции профиля
func saveProfile(ctx context.Context, tx pgx.Tx, p *model.AvailabilityProfile) error {
	err := tx.QueryRow(ctx, `
		UPDATE availability_profiles
		SET config = $2, updated_at = NOW()
		WHERE expert_id = $1
		RETURNING updated_at
	`, p.ExpertID, p.Config).Scan(&p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update availability config: %w", err)
	}

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM availability_weekly_ranges WHERE expert_id = $1`, p.ExpertID)
	batch.Queue(`DELETE FROM availability_exceptions WHERE expert_id = $1`, p.ExpertID)
	batch.Queue(`DELETE FROM availability_special_slots WHERE expert_id = $1`, p.ExpertID)

	for _, wr := range p.WeeklyTemplate {
		batch.Queue(`
			INSERT INTO availability_weekly_ranges (expert_id, weekday, start_minute, end_minute, is_active)
			VALUES ($1, $2, $3, $4, $5)
		`, p.ExpertID, wr.Weekday, wr.StartMinute, wr.EndMinute, wr.Active)
	}
	for _, e := range p.Exceptions {
		batch.Queue(`
			INSERT INTO availability_exceptions (id, expert_id, start_at, end_at, reason)
			VALUES ($1, $2, $3, $4, $5)
		`, e.ID, p.ExpertID, e.Start, e.End, e.Reason)
	}
	for _, sp := range p.SpecialSlots {
		batch.Queue(`
			INSERT INTO availability_special_slots (id, expert_id, start_at, duration_minutes, price)
			VALUES ($1, $2, $3, $4, $5)
		`, sp.ID, p.ExpertID, sp.Start, sp.DurationMinutes, sp.Price)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("rewrite availability collections: %w", base.MapError(err))
	}
	return nil
}

package availability

import (
	"fmt"
	"time"

	"github.com/Freeeeeet/expert_sessions/internal/model"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateConfig проверяет настройки бронирования на границе ввода
func ValidateConfig(cfg model.BookingConfig) error {
	if cfg.IncrementMinutes == 0 {
		return fmt.Errorf("%w: increment_minutes must be positive", model.ErrValidation)
	}
	if cfg.MinDuration > cfg.MaxDuration {
		return fmt.Errorf("%w: min_duration %d exceeds max_duration %d", model.ErrValidation, cfg.MinDuration, cfg.MaxDuration)
	}
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", model.ErrValidation, err)
	}

	seen := make(map[int]bool, len(cfg.Prices))
	for _, p := range cfg.Prices {
		if p.DurationMinutes < cfg.MinDuration || p.DurationMinutes > cfg.MaxDuration {
			return fmt.Errorf("%w: price duration %d outside [%d, %d]", model.ErrValidation, p.DurationMinutes, cfg.MinDuration, cfg.MaxDuration)
		}
		if seen[p.DurationMinutes] {
			return fmt.Errorf("%w: duplicate price for duration %d", model.ErrValidation, p.DurationMinutes)
		}
		seen[p.DurationMinutes] = true
	}
	return nil
}

// ValidateTemplate проверяет недельный шаблон: не больше одного активного интервала на день
func ValidateTemplate(template []model.WeeklyRange) error {
	active := make(map[int]bool, 7)
	for i, r := range template {
		if err := validate.Struct(r); err != nil {
			return fmt.Errorf("%w: weekly_template[%d]: %v", model.ErrValidation, i, err)
		}
		if !r.Active {
			continue
		}
		if active[r.Weekday] {
			return fmt.Errorf("%w: more than one active range for weekday %d", model.ErrValidation, r.Weekday)
		}
		active[r.Weekday] = true
	}
	return nil
}

// ValidateException проверяет окно недоступности
func ValidateException(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("%w: exception start and end are required", model.ErrValidation)
	}
	if !start.Before(end) {
		return fmt.Errorf("%w: exception end must be after start", model.ErrValidation)
	}
	return nil
}

// ValidateSpecialSlot проверяет разовое окно: положительная длительность, не пересекает полночь
func ValidateSpecialSlot(cfg model.BookingConfig, start time.Time, durationMinutes int, price int64) error {
	if start.IsZero() {
		return fmt.Errorf("%w: special slot start is required", model.ErrValidation)
	}
	if durationMinutes <= 0 || durationMinutes > model.MinutesPerDay {
		return fmt.Errorf("%w: special slot duration must be in (0, %d]", model.ErrValidation, model.MinutesPerDay)
	}
	if price < 0 {
		return fmt.Errorf("%w: special slot price must not be negative", model.ErrValidation)
	}
	_, dayEnd := DayBounds(cfg, start)
	if start.Add(time.Duration(durationMinutes) * time.Minute).After(dayEnd) {
		return fmt.Errorf("%w: special slot must not cross midnight", model.ErrValidation)
	}
	return nil
}

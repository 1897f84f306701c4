package model

import (
	"time"

	"github.com/google/uuid"
)

const MinutesPerDay = 24 * 60

// WeeklyRange рабочий интервал эксперта в конкретный день недели
type WeeklyRange struct {
	Weekday     int  `json:"weekday" validate:"min=0,max=6"`         // 0 = Sunday, 6 = Saturday
	StartMinute int  `json:"start_minute" validate:"min=0,max=1439"` // минуты от полуночи
	EndMinute   int  `json:"end_minute" validate:"gtfield=StartMinute,max=1440"`
	Active      bool `json:"active"`
}

// ExceptionBlock абсолютное окно недоступности (отпуск, болезнь)
type ExceptionBlock struct {
	ID     uuid.UUID `json:"id"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Reason string    `json:"reason"`
}

// Overlaps проверяет пересечение полуинтервалов [start, end)
func (e ExceptionBlock) Overlaps(start, end time.Time) bool {
	return start.Before(e.End) && end.After(e.Start)
}

// SpecialSlot разовое окно вне недельного шаблона со своей длительностью и ценой
type SpecialSlot struct {
	ID              uuid.UUID `json:"id"`
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
	Price           int64     `json:"price"`
}

type PriceOption struct {
	DurationMinutes int   `json:"duration" validate:"gt=0"`
	Price           int64 `json:"price" validate:"gte=0"` // в копейках/центах
}

// BookingConfig настройки бронирования эксперта
type BookingConfig struct {
	MinDuration      int           `json:"min_duration" validate:"gt=0"`
	MaxDuration      int           `json:"max_duration" validate:"gtefield=MinDuration,lte=1440"`
	IncrementMinutes int           `json:"increment_minutes" validate:"gt=0,lte=1440"`
	LeadTimeMinutes  int           `json:"lead_time_minutes" validate:"gte=0"`
	BufferMinutes    int           `json:"buffer_minutes" validate:"gte=0,lte=1440"`
	Prices           []PriceOption `json:"prices" validate:"required,min=1,dive"`
	Timezone         string        `json:"timezone" validate:"required,timezone"`
}

// DefaultBookingConfig конфигурация для эксперта, который ещё ничего не настроил
func DefaultBookingConfig() BookingConfig {
	return BookingConfig{
		MinDuration:      60,
		MaxDuration:      60,
		IncrementMinutes: 30,
		LeadTimeMinutes:  120,
		BufferMinutes:    15,
		Prices:           []PriceOption{{DurationMinutes: 60, Price: 0}},
		Timezone:         "UTC",
	}
}

// Location возвращает часовой пояс эксперта, UTC если тег не распознан
func (c BookingConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// PriceFor ищет цену для длительности
func (c BookingConfig) PriceFor(durationMinutes int) (int64, bool) {
	for _, p := range c.Prices {
		if p.DurationMinutes == durationMinutes {
			return p.Price, true
		}
	}
	return 0, false
}

// AvailabilityProfile профиль доступности, один на эксперта
type AvailabilityProfile struct {
	ExpertID       int64            `json:"expert_id"`
	WeeklyTemplate []WeeklyRange    `json:"weekly_template"`
	Exceptions     []ExceptionBlock `json:"exceptions"`
	SpecialSlots   []SpecialSlot    `json:"special_slots"`
	Config         BookingConfig    `json:"config"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// NewAvailabilityProfile пустой профиль с настройками по умолчанию
func NewAvailabilityProfile(expertID int64) *AvailabilityProfile {
	return &AvailabilityProfile{
		ExpertID: expertID,
		Config:   DefaultBookingConfig(),
	}
}

// ActiveRange возвращает активный интервал для дня недели
func (p *AvailabilityProfile) ActiveRange(weekday time.Weekday) (WeeklyRange, bool) {
	for _, r := range p.WeeklyTemplate {
		if r.Active && r.Weekday == int(weekday) {
			return r, true
		}
	}
	return WeeklyRange{}, false
}

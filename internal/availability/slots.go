// Package availability вычисляет слоты для бронирования из профиля эксперта.
//
// Все функции чистые: текущее время и уже занятые сессии передаются явно,
// поэтому повторный запрос с теми же входными данными даёт тот же результат.
package availability

import (
	"sort"
	"time"

	"github.com/Freeeeeet/expert_sessions/internal/model"
)

// GenerateSlots возвращает слоты, доступные для бронирования в день date.
//
// date интерпретируется по календарным полям (год, месяц, день) в часовом
// поясе эксперта. existing - сессии того же эксперта, удерживающие время;
// сессии в финальных состояниях игнорируются.
// Результат отсортирован по (start, duration) и не содержит дублей.
func GenerateSlots(profile *model.AvailabilityProfile, date time.Time, existing []*model.Session, now time.Time) []model.Slot {
	if profile == nil {
		return nil
	}

	cfg := profile.Config
	loc := cfg.Location()
	y, m, d := date.Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, loc)
	dayEnd := time.Date(y, m, d+1, 0, 0, 0, 0, loc)

	f := filter{
		exceptions: profile.Exceptions,
		earliest:   now.Add(time.Duration(cfg.LeadTimeMinutes) * time.Minute),
		buffer:     time.Duration(cfg.BufferMinutes) * time.Minute,
		busy:       busyIntervals(profile.ExpertID, existing),
	}

	var slots []model.Slot

	// Недельный шаблон
	if r, ok := profile.ActiveRange(dayStart.Weekday()); ok && cfg.IncrementMinutes > 0 {
		prices := sortedPrices(cfg.Prices)
		// смещения шаблона - настенное время: в день перехода на летнее или
		// зимнее время 09:00 остаётся 09:00, а не сдвигается на час
		for offset := r.StartMinute; offset < r.EndMinute; offset += cfg.IncrementMinutes {
			start := time.Date(y, m, d, 0, offset, 0, 0, loc)
			if start.Before(f.earliest) {
				continue
			}
			for _, p := range prices {
				if offset+p.DurationMinutes > r.EndMinute {
					continue
				}
				end := time.Date(y, m, d, 0, offset+p.DurationMinutes, 0, 0, loc)
				if end.After(dayEnd) || !f.allows(start, end) {
					continue
				}
				if !end.Equal(start.Add(time.Duration(p.DurationMinutes) * time.Minute)) {
					// слот пересекает сам переход, его длина не совпала бы с оплаченной
					continue
				}
				slots = append(slots, model.Slot{Start: start, DurationMinutes: p.DurationMinutes, Price: p.Price})
			}
		}
	}

	// Разовые окна вне шаблона
	for _, sp := range profile.SpecialSlots {
		start := sp.Start.In(loc)
		if start.Before(dayStart) || !start.Before(dayEnd) || sp.DurationMinutes <= 0 {
			continue
		}
		end := start.Add(time.Duration(sp.DurationMinutes) * time.Minute)
		if end.After(dayEnd) || start.Before(f.earliest) || !f.allows(start, end) {
			continue
		}
		slots = append(slots, model.Slot{Start: start, DurationMinutes: sp.DurationMinutes, Price: sp.Price})
	}

	return normalize(slots)
}

// ContainsSlot проверяет, что пара (start, duration) есть среди слотов
func ContainsSlot(slots []model.Slot, start time.Time, durationMinutes int) (model.Slot, bool) {
	for _, s := range slots {
		if s.Start.Equal(start) && s.DurationMinutes == durationMinutes {
			return s, true
		}
	}
	return model.Slot{}, false
}

// Collides проверяет, пересекается ли сессия с другими занятыми сессиями
// того же эксперта с учётом буфера
func Collides(s *model.Session, buffer time.Duration, occupied []*model.Session) bool {
	others := make([]*model.Session, 0, len(occupied))
	for _, o := range occupied {
		if o != nil && o.ID != s.ID {
			others = append(others, o)
		}
	}
	f := filter{buffer: buffer, busy: busyIntervals(s.ExpertID, others)}
	return !f.allows(s.Start, s.End())
}

// Calendar строит слоты на days дней начиная с from
func Calendar(profile *model.AvailabilityProfile, from time.Time, days int, existing []*model.Session, now time.Time) []model.DaySlots {
	y, m, d := from.Date()
	result := make([]model.DaySlots, 0, days)
	for i := 0; i < days; i++ {
		date := time.Date(y, m, d+i, 0, 0, 0, 0, time.UTC)
		slots := GenerateSlots(profile, date, existing, now)
		if slots == nil {
			slots = []model.Slot{}
		}
		result = append(result, model.DaySlots{
			Date:  date.Format("2006-01-02"),
			Slots: slots,
		})
	}
	return result
}

// DayBounds начало и конец календарного дня в часовом поясе эксперта
func DayBounds(cfg model.BookingConfig, t time.Time) (time.Time, time.Time) {
	local := t.In(cfg.Location())
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, local.Location()), time.Date(y, m, d+1, 0, 0, 0, 0, local.Location())
}

type interval struct {
	start, end time.Time
}

type filter struct {
	exceptions []model.ExceptionBlock
	earliest   time.Time
	buffer     time.Duration
	busy       []interval
}

// allows проверяет исключения и буфер относительно занятых сессий
func (f filter) allows(start, end time.Time) bool {
	for _, e := range f.exceptions {
		if e.Overlaps(start, end) {
			return false
		}
	}
	for _, b := range f.busy {
		if end.Add(f.buffer).After(b.start) && start.Add(-f.buffer).Before(b.end) {
			return false
		}
	}
	return true
}

func busyIntervals(expertID int64, sessions []*model.Session) []interval {
	busy := make([]interval, 0, len(sessions))
	for _, s := range sessions {
		if s == nil || s.State.IsTerminal() {
			continue
		}
		if expertID != 0 && s.ExpertID != expertID {
			continue
		}
		busy = append(busy, interval{start: s.Start, end: s.End()})
	}
	return busy
}

func sortedPrices(prices []model.PriceOption) []model.PriceOption {
	out := make([]model.PriceOption, 0, len(prices))
	for _, p := range prices {
		if p.DurationMinutes > 0 {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DurationMinutes < out[j].DurationMinutes
	})
	return out
}

// normalize сортирует по (start, duration) и убирает дубли.
// При совпадении остаётся слот из шаблона, он добавлен раньше.
func normalize(slots []model.Slot) []model.Slot {
	sort.SliceStable(slots, func(i, j int) bool {
		if !slots[i].Start.Equal(slots[j].Start) {
			return slots[i].Start.Before(slots[j].Start)
		}
		return slots[i].DurationMinutes < slots[j].DurationMinutes
	})

	out := slots[:0]
	for i, s := range slots {
		if i > 0 && s.Start.Equal(out[len(out)-1].Start) && s.DurationMinutes == out[len(out)-1].DurationMinutes {
			continue
		}
		out = append(out, s)
	}
	return out
}

package model

import "time"

// Slot кандидат для бронирования: начало + длительность
type Slot struct {
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration"`
	Price           int64     `json:"price"`
}

// End конец слота
func (s Slot) End() time.Time {
	return s.Start.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

// DaySlots слоты одного календарного дня
type DaySlots struct {
	Date  string `json:"date"` // 2006-01-02 в часовом поясе эксперта
	Slots []Slot `json:"slots"`
}

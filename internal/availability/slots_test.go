package availability

import (
	"fmt"
	"testing"
	"time"

	"github.com/Freeeeeet/expert_sessions/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2026-10-19 - понедельник
var monday = time.Date(2026, time.October, 19, 0, 0, 0, 0, time.UTC)

func at(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}

func mondayProfile() *model.AvailabilityProfile {
	return &model.AvailabilityProfile{
		ExpertID: 7,
		WeeklyTemplate: []model.WeeklyRange{
			{Weekday: int(time.Monday), StartMinute: 9 * 60, EndMinute: 17 * 60, Active: true},
		},
		Config: model.BookingConfig{
			MinDuration:      60,
			MaxDuration:      60,
			IncrementMinutes: 30,
			LeadTimeMinutes:  120,
			BufferMinutes:    15,
			Prices:           []model.PriceOption{{DurationMinutes: 60, Price: 5000}},
			Timezone:         "UTC",
		},
	}
}

func starts(slots []model.Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Start.Format("15:04"))
	}
	return out
}

func TestGenerateSlots_LeadTimeExcludesEarlyStarts(t *testing.T) {
	profile := mondayProfile()

	slots := GenerateSlots(profile, monday, nil, at(monday, 8, 0))

	require.NotEmpty(t, slots)
	assert.Equal(t, "10:00", slots[0].Start.Format("15:04"))
	assert.NotContains(t, starts(slots), "09:00")
	assert.NotContains(t, starts(slots), "09:30")
	assert.Equal(t, "16:00", slots[len(slots)-1].Start.Format("15:04"), "last 60-minute slot must end at range end")
	for _, s := range slots {
		assert.Equal(t, 60, s.DurationMinutes)
		assert.Equal(t, int64(5000), s.Price)
	}
}

func TestGenerateSlots_BufferAroundExistingSession(t *testing.T) {
	profile := mondayProfile()
	existing := []*model.Session{{
		ID:              1,
		ExpertID:        7,
		Start:           at(monday, 10, 0),
		DurationMinutes: 60,
		State:           model.SessionStateConfirmed,
	}}

	// запрос накануне, lead time не мешает
	slots := GenerateSlots(profile, monday, existing, monday.Add(-24*time.Hour))
	got := starts(slots)

	for _, removed := range []string{"09:00", "09:30", "10:00", "10:30", "11:00"} {
		assert.NotContains(t, got, removed)
	}
	assert.Contains(t, got, "11:30")
	assert.Equal(t, "11:30", got[0])
}

func TestGenerateSlots_IgnoresTerminalAndForeignSessions(t *testing.T) {
	profile := mondayProfile()
	existing := []*model.Session{
		{ExpertID: 7, Start: at(monday, 10, 0), DurationMinutes: 60, State: model.SessionStateRefunded},
		{ExpertID: 99, Start: at(monday, 12, 0), DurationMinutes: 60, State: model.SessionStateConfirmed},
	}

	got := starts(GenerateSlots(profile, monday, existing, monday.Add(-24*time.Hour)))

	assert.Contains(t, got, "10:00")
	assert.Contains(t, got, "12:00")
}

func TestGenerateSlots_ExceptionWindow(t *testing.T) {
	profile := mondayProfile()
	profile.Exceptions = []model.ExceptionBlock{{
		ID:     uuid.New(),
		Start:  at(monday, 12, 0),
		End:    at(monday, 14, 0),
		Reason: "doctor",
	}}

	slots := GenerateSlots(profile, monday, nil, monday.Add(-24*time.Hour))

	for _, s := range slots {
		assert.False(t, profile.Exceptions[0].Overlaps(s.Start, s.End()), "slot %s overlaps exception", s.Start)
	}
	got := starts(slots)
	assert.Contains(t, got, "11:00")
	assert.NotContains(t, got, "11:30")
	assert.Contains(t, got, "14:00")
}

func TestGenerateSlots_NoRangeForWeekday(t *testing.T) {
	profile := mondayProfile()
	tuesday := monday.AddDate(0, 0, 1)

	assert.Empty(t, GenerateSlots(profile, tuesday, nil, monday.Add(-24*time.Hour)))
}

func TestGenerateSlots_SpecialSlotOutsideTemplate(t *testing.T) {
	profile := mondayProfile()
	tuesday := monday.AddDate(0, 0, 1)
	profile.SpecialSlots = []model.SpecialSlot{{
		ID:              uuid.New(),
		Start:           at(tuesday, 18, 0),
		DurationMinutes: 90,
		Price:           9000,
	}}

	slots := GenerateSlots(profile, tuesday, nil, monday)

	require.Len(t, slots, 1)
	assert.Equal(t, 90, slots[0].DurationMinutes)
	assert.Equal(t, int64(9000), slots[0].Price)
}

func TestGenerateSlots_SortedUniqueMultipleDurations(t *testing.T) {
	profile := mondayProfile()
	profile.Config.MinDuration = 30
	profile.Config.MaxDuration = 90
	profile.Config.Prices = []model.PriceOption{
		{DurationMinutes: 90, Price: 120},
		{DurationMinutes: 30, Price: 50},
		{DurationMinutes: 60, Price: 90},
	}
	profile.SpecialSlots = []model.SpecialSlot{{Start: at(monday, 11, 0), DurationMinutes: 60, Price: 1}}

	now := monday.Add(-24 * time.Hour)
	slots := GenerateSlots(profile, monday, nil, now)
	again := GenerateSlots(profile, monday, nil, now)

	assert.Equal(t, slots, again, "output must be deterministic")

	r, _ := profile.ActiveRange(time.Monday)
	rangeStart := at(monday, 0, 0).Add(time.Duration(r.StartMinute) * time.Minute)
	rangeEnd := at(monday, 0, 0).Add(time.Duration(r.EndMinute) * time.Minute)

	seen := map[string]bool{}
	for i, s := range slots {
		key := fmt.Sprintf("%s/%d", s.Start.Format(time.RFC3339), s.DurationMinutes)
		assert.False(t, seen[key], "duplicate slot %v", s)
		seen[key] = true

		assert.False(t, s.Start.Before(rangeStart))
		assert.False(t, s.End().After(rangeEnd))
		_, priced := profile.Config.PriceFor(s.DurationMinutes)
		assert.True(t, priced)

		if i > 0 {
			prev := slots[i-1]
			ordered := prev.Start.Before(s.Start) || (prev.Start.Equal(s.Start) && prev.DurationMinutes < s.DurationMinutes)
			assert.True(t, ordered, "slots %v and %v out of order", prev, s)
		}
	}

	// дубль (11:00, 60) из разового окна отброшен, цена из шаблона
	slot, ok := ContainsSlot(slots, at(monday, 11, 0), 60)
	require.True(t, ok)
	assert.Equal(t, int64(90), slot.Price)
}

func TestGenerateSlots_RespectsExpertTimezone(t *testing.T) {
	profile := mondayProfile()
	profile.Config.Timezone = "Europe/Moscow"
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)

	slots := GenerateSlots(profile, monday, nil, monday.Add(-48*time.Hour))

	require.NotEmpty(t, slots)
	assert.Equal(t, time.Date(2026, time.October, 19, 9, 0, 0, 0, loc).Unix(), slots[0].Start.Unix())
}

func TestGenerateSlots_KeepsWallClockOnDSTSwitch(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	profile := mondayProfile()
	profile.Config.Timezone = "Europe/Berlin"
	profile.WeeklyTemplate = []model.WeeklyRange{
		{Weekday: int(time.Sunday), StartMinute: 9 * 60, EndMinute: 17 * 60, Active: true},
	}

	// 2026-03-29 переход на летнее время, 2026-10-25 на зимнее
	for _, day := range []time.Time{
		time.Date(2026, time.March, 29, 0, 0, 0, 0, loc),
		time.Date(2026, time.October, 25, 0, 0, 0, 0, loc),
	} {
		t.Run(day.Format("2006-01-02"), func(t *testing.T) {
			slots := GenerateSlots(profile, day, nil, day.Add(-48*time.Hour))

			require.Len(t, slots, 15)
			first, last := slots[0], slots[len(slots)-1]
			assert.Equal(t, "09:00", first.Start.In(loc).Format("15:04"))
			assert.Equal(t, "16:00", last.Start.In(loc).Format("15:04"))
			assert.Equal(t, "17:00", last.End().In(loc).Format("15:04"))
			for _, s := range slots {
				assert.Equal(t, 60, s.DurationMinutes)
			}
		})
	}
}

func TestCollides_HonoursBuffer(t *testing.T) {
	pending := &model.Session{ID: 1, ExpertID: 7, Start: at(monday, 10, 0), DurationMinutes: 60}
	buffer := 15 * time.Minute

	adjacent := &model.Session{ID: 2, ExpertID: 7, Start: at(monday, 11, 0), DurationMinutes: 60, State: model.SessionStatePaid}
	assert.True(t, Collides(pending, buffer, []*model.Session{adjacent}), "gap shorter than buffer")

	spaced := &model.Session{ID: 3, ExpertID: 7, Start: at(monday, 11, 15), DurationMinutes: 60, State: model.SessionStatePaid}
	assert.False(t, Collides(pending, buffer, []*model.Session{spaced}))

	otherExpert := &model.Session{ID: 4, ExpertID: 8, Start: at(monday, 10, 0), DurationMinutes: 60, State: model.SessionStatePaid}
	assert.False(t, Collides(pending, buffer, []*model.Session{otherExpert}))

	assert.False(t, Collides(pending, buffer, []*model.Session{pending}), "session never collides with itself")
}

func TestGenerateSlots_BufferInvariantAgainstEverySession(t *testing.T) {
	profile := mondayProfile()
	profile.Config.IncrementMinutes = 15
	existing := []*model.Session{
		{ExpertID: 7, Start: at(monday, 9, 45), DurationMinutes: 60, State: model.SessionStatePaid},
		{ExpertID: 7, Start: at(monday, 14, 0), DurationMinutes: 60, State: model.SessionStateInProgress},
	}
	buffer := 15 * time.Minute

	slots := GenerateSlots(profile, monday, existing, monday.Add(-24*time.Hour))

	require.NotEmpty(t, slots)
	for _, s := range slots {
		for _, other := range existing {
			separated := !s.End().Add(buffer).After(other.Start) || !other.End().Add(buffer).After(s.Start)
			assert.True(t, separated, "slot %s conflicts with session at %s", s.Start.Format("15:04"), other.Start.Format("15:04"))
		}
	}
}

func TestCalendar_DaysAndDates(t *testing.T) {
	profile := mondayProfile()

	days := Calendar(profile, monday, 7, nil, monday.Add(-24*time.Hour))

	require.Len(t, days, 7)
	assert.Equal(t, "2026-10-19", days[0].Date)
	assert.NotEmpty(t, days[0].Slots)
	for _, d := range days[1:] {
		assert.Empty(t, d.Slots)
		assert.NotNil(t, d.Slots)
	}
}

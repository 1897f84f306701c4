package weekview

import (
	"fmt"
	"sort"
	"time"

	"github.com/Freeeeeet/expert_sessions/internal/model"
)

// Build собирает блоки недели из календаря свободных слотов, сессий эксперта
// и исключений. Пересекающиеся свободные слоты склеиваются в одно окно,
// сессии в финальных состояниях не показываются.
func Build(days []model.DaySlots, sessions []*model.Session, exceptions []model.ExceptionBlock) []Block {
	var free []Block
	for _, day := range days {
		for _, slot := range day.Slots {
			free = append(free, Block{Start: slot.Start, End: slot.End(), Kind: KindFree})
		}
	}

	blocks := mergeFree(free)

	for _, s := range sessions {
		if s.State.IsTerminal() {
			continue
		}
		kind := KindBooked
		if s.State == model.SessionStatePendingPayment {
			kind = KindPending
		}
		label := fmt.Sprintf("#%d", s.ID)
		if s.Client != nil && s.Client.FirstName != "" {
			label = s.Client.FirstName
		}
		blocks = append(blocks, Block{Start: s.Start, End: s.End(), Kind: kind, Label: label})
	}

	for _, e := range exceptions {
		blocks = append(blocks, Block{Start: e.Start, End: e.End, Kind: KindBlocked, Label: e.Reason})
	}

	sort.SliceStable(blocks, func(i, j int) bool { return blocks[i].Start.Before(blocks[j].Start) })
	return blocks
}

func mergeFree(free []Block) []Block {
	if len(free) == 0 {
		return nil
	}
	sort.Slice(free, func(i, j int) bool { return free[i].Start.Before(free[j].Start) })

	merged := []Block{free[0]}
	for _, b := range free[1:] {
		last := &merged[len(merged)-1]
		if !b.Start.After(last.End) {
			if b.End.After(last.End) {
				last.End = b.End
			}
			continue
		}
		merged = append(merged, b)
	}
	return merged
}

// WeekRange границы недели, в которую попадает t, в часовом поясе loc
func WeekRange(t time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	start := weekStart(t.In(loc))
	return start, start.AddDate(0, 0, daysInWeek)
}

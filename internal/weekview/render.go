// Package weekview рисует неделю эксперта картинкой: свободные слоты,
// сессии и закрытые окна по дням и часам.
package weekview

import (
	"bytes"
	"fmt"
	"image/color"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/Freeeeeet/expert_sessions/internal/formatting"
	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// Kind тип блока на картинке
type Kind int

const (
	KindFree    Kind = iota // свободный слот
	KindBooked              // оплаченная или подтверждённая сессия
	KindPending             // ждёт оплаты
	KindBlocked             // исключение: отпуск, болезнь
)

// Block прямоугольник на сетке недели
type Block struct {
	Start time.Time
	End   time.Time
	Kind  Kind
	Label string
}

// Week данные для отрисовки
type Week struct {
	Start    time.Time // любой момент недели, нормализуется к понедельнику
	Location *time.Location
	Blocks   []Block
	Now      time.Time
}

const (
	imageWidth       = 1400
	imageHeight      = 900
	headerHeight     = 100
	leftLabelsWidth  = 80
	legendWidth      = 140
	dayPaddingX      = 8
	minBlockHeight   = 8.0
	blockRadius      = 6.0
	shadowOffset     = 3.0
	daysInWeek       = 7
	hourPaddingTop   = 1
	hourPaddingBot   = 1
	defaultStartHour = 8
	defaultEndHour   = 20
	maxLabelRunes    = 18
)

const (
	titleFontSize  = 25.0
	dayFontSize    = 24.0
	hourFontSize   = 18.0
	blockFontSize  = 16.0
	legendFontSize = 13.0
)

var (
	bgColor          = color.RGBA{245, 246, 248, 255}
	textColor        = color.RGBA{80, 85, 90, 220}
	hourLabelColor   = color.RGBA{110, 115, 120, 200}
	hourLineColor    = color.NRGBA{150, 150, 150, 255}
	todayBgColor     = color.NRGBA{255, 99, 71, 90}
	evenDayColor     = color.NRGBA{240, 240, 240, 255}
	oddDayColor      = color.NRGBA{225, 225, 225, 255}
	currentTimeColor = color.NRGBA{255, 80, 80, 200}
	shadowColor      = color.RGBA{0, 0, 0, 20}
	legendTextColor  = color.RGBA{70, 74, 78, 220}

	kindColors = map[Kind]color.RGBA{
		KindFree:    {133, 193, 85, 220},
		KindBooked:  {255, 182, 193, 255},
		KindPending: {255, 214, 130, 240},
		KindBlocked: {158, 158, 158, 200},
	}
	kindTextColors = map[Kind]color.RGBA{
		KindFree:    {20, 24, 28, 230},
		KindBooked:  {120, 40, 50, 255},
		KindPending: {110, 70, 10, 255},
		KindBlocked: {40, 40, 40, 230},
	}
	legend = []struct {
		label string
		kind  Kind
	}{
		{"Свободно", KindFree},
		{"Сессия", KindBooked},
		{"Ждёт оплаты", KindPending},
		{"Закрыто", KindBlocked},
	}
)

var (
	fontsOnce sync.Once
	regular   *opentype.Font
	bold      *opentype.Font
)

func setFont(dc *gg.Context, size float64, isBold bool) {
	fontsOnce.Do(func() {
		regular, _ = opentype.Parse(goregular.TTF)
		bold, _ = opentype.Parse(gobold.TTF)
	})

	f := regular
	if isBold {
		f = bold
	}
	if f != nil {
		face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
		if err == nil {
			dc.SetFontFace(face)
			return
		}
	}
	dc.SetFontFace(basicfont.Face7x13)
}

type hourRange struct {
	start, end, total int
}

// Render возвращает PNG с неделей
func Render(w Week) ([]byte, error) {
	loc := w.Location
	if loc == nil {
		loc = time.UTC
	}
	monday := weekStart(w.Start.In(loc))
	now := w.Now.In(loc)

	byDay := make(map[int][]Block, daysInWeek)
	for _, b := range w.Blocks {
		start, end := b.Start.In(loc), b.End.In(loc)
		// блок через полночь режется по дням
		for day := 0; day < daysInWeek; day++ {
			dayStart := monday.AddDate(0, 0, day)
			dayEnd := dayStart.AddDate(0, 0, 1)
			if !start.Before(dayEnd) || !end.After(dayStart) {
				continue
			}
			part := b
			part.Start, part.End = maxTime(start, dayStart), minTime(end, dayEnd)
			byDay[day] = append(byDay[day], part)
		}
	}
	for day := range byDay {
		sort.Slice(byDay[day], func(i, j int) bool { return byDay[day][i].Start.Before(byDay[day][j].Start) })
	}

	hours := visibleHours(monday, byDay)

	dc := gg.NewContext(imageWidth, imageHeight)
	dc.SetColor(bgColor)
	dc.Clear()

	dayWidth := (imageWidth - leftLabelsWidth - legendWidth) / daysInWeek
	dayHeight := imageHeight - headerHeight
	cellHeight := float64(dayHeight) / float64(hours.total)

	drawHeader(dc, monday)
	drawHourLabels(dc, hours, cellHeight)

	for day := 0; day < daysInWeek; day++ {
		date := monday.AddDate(0, 0, day)
		x := float64(leftLabelsWidth + day*dayWidth)
		y := float64(headerHeight)

		drawDayBackground(dc, x, y, dayWidth, dayHeight, day, sameDay(date, now))
		drawDayHeader(dc, date, x, y, dayWidth)
		drawHourLines(dc, x, y, dayWidth, hours, cellHeight)
		for _, b := range byDay[day] {
			drawBlock(dc, b, date, x, y, dayWidth, hours, cellHeight)
		}
	}

	if !now.Before(monday) && now.Before(monday.AddDate(0, 0, daysInWeek)) {
		drawCurrentTimeLine(dc, now, hours, cellHeight, dayWidth)
	}
	drawLegend(dc, dayWidth)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// weekStart понедельник 00:00 той же недели
func weekStart(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func visibleHours(monday time.Time, byDay map[int][]Block) hourRange {
	minHour, maxHour := 24, 0
	for day, blocks := range byDay {
		date := monday.AddDate(0, 0, day)
		for _, b := range blocks {
			if h := int(math.Floor(hourOffset(b.Start, date))); h < minHour {
				minHour = h
			}
			if h := int(math.Ceil(hourOffset(b.End, date))); h > maxHour {
				maxHour = h
			}
		}
	}
	if minHour == 24 {
		minHour, maxHour = defaultStartHour, defaultEndHour
	}

	start := minHour - hourPaddingTop
	end := maxHour + hourPaddingBot
	if start < 0 {
		start = 0
	}
	if end > 24 {
		end = 24
	}
	return hourRange{start: start, end: end, total: end - start}
}

func drawHeader(dc *gg.Context, monday time.Time) {
	sunday := monday.AddDate(0, 0, daysInWeek-1)
	title := monthName(monday.Month()) + " " + fmt.Sprint(monday.Year())
	if monday.Month() != sunday.Month() {
		title = monthName(monday.Month()) + " - " + monthName(sunday.Month()) + " " + fmt.Sprint(sunday.Year())
	}

	setFont(dc, titleFontSize, true)
	dc.SetColor(textColor)
	_, h := dc.MeasureString(title)
	dc.DrawStringAnchored(title, float64(leftLabelsWidth), float64(headerHeight)/8+h/2, 0, 0)
}

func drawHourLabels(dc *gg.Context, hours hourRange, cellHeight float64) {
	setFont(dc, hourFontSize, false)
	dc.SetColor(hourLabelColor)
	for i := 0; i <= hours.total; i++ {
		y := float64(headerHeight) + float64(i)*cellHeight
		dc.DrawStringAnchored(fmt.Sprintf("%02d:00", hours.start+i), float64(leftLabelsWidth)-10, y, 1, 0.5)
	}
}

func drawDayBackground(dc *gg.Context, x, y float64, dayWidth, dayHeight, day int, isToday bool) {
	switch {
	case isToday:
		dc.SetColor(todayBgColor)
	case day%2 == 0:
		dc.SetColor(evenDayColor)
	default:
		dc.SetColor(oddDayColor)
	}
	dc.DrawRectangle(x, y, float64(dayWidth), float64(dayHeight))
	dc.Fill()
}

func drawDayHeader(dc *gg.Context, date time.Time, x, y float64, dayWidth int) {
	setFont(dc, dayFontSize, true)
	dc.SetColor(textColor)
	dc.DrawStringAnchored(date.Format("02.01"), x+float64(dayWidth)/2, y, 0.5, -1)
	dc.DrawStringAnchored(formatting.GetWeekdayShortName(date.Weekday()), x+float64(dayWidth)/2, y, 0.5, -0.2)
}

func drawHourLines(dc *gg.Context, x, y float64, dayWidth int, hours hourRange, cellHeight float64) {
	dc.SetLineWidth(0.3)
	dc.SetColor(hourLineColor)
	for i := 0; i <= hours.total; i++ {
		hy := y + float64(i)*cellHeight
		dc.DrawLine(x, hy, x+float64(dayWidth), hy)
		dc.Stroke()
	}
}

// hourOffset часы от начала дня date, 24 для полуночи следующего дня
func hourOffset(t, date time.Time) float64 {
	return t.Sub(date).Hours()
}

func drawBlock(dc *gg.Context, b Block, date time.Time, x, y float64, dayWidth int, hours hourRange, cellHeight float64) {
	startH := hourOffset(b.Start, date)
	endH := hourOffset(b.End, date)

	blockY := y + (startH-float64(hours.start))*cellHeight
	height := (endH - startH) * cellHeight
	if height < minBlockHeight {
		height = minBlockHeight
	}

	fill := kindColors[b.Kind]
	width := float64(dayWidth) - float64(dayPaddingX*2)

	dc.SetColor(shadowColor)
	dc.DrawRoundedRectangle(x+dayPaddingX+shadowOffset, blockY+2+shadowOffset, width, height-4, blockRadius)
	dc.Fill()

	dc.SetColor(fill)
	dc.DrawRoundedRectangle(x+dayPaddingX, blockY+2, width, height-4, blockRadius)
	dc.Fill()

	dc.SetColor(darken(fill, 0.8))
	dc.SetLineWidth(1)
	dc.DrawRoundedRectangle(x+dayPaddingX, blockY+2, width, height-4, blockRadius)
	dc.Stroke()

	if height < 20 {
		return
	}

	txtColor := kindTextColors[b.Kind]
	txtX := x + dayPaddingX + 8
	txtY := blockY + 18

	setFont(dc, blockFontSize, false)
	dc.SetColor(txtColor)
	dc.DrawStringAnchored(formatting.FormatTimeRange(b.Start, b.End), txtX, txtY, 0, 0)

	if b.Label != "" && height > 36 {
		setFont(dc, blockFontSize-2, false)
		dc.DrawStringAnchored(truncate(b.Label, maxLabelRunes), txtX, txtY+16, 0, 0)
	}
}

func drawCurrentTimeLine(dc *gg.Context, now time.Time, hours hourRange, cellHeight float64, dayWidth int) {
	current := float64(now.Hour()) + float64(now.Minute())/60
	if current < float64(hours.start) || current > float64(hours.end) {
		return
	}
	y := float64(headerHeight) + (current-float64(hours.start))*cellHeight
	dc.SetColor(currentTimeColor)
	dc.SetLineWidth(2)
	dc.DrawLine(float64(leftLabelsWidth), y, float64(leftLabelsWidth+daysInWeek*dayWidth), y)
	dc.Stroke()
}

func drawLegend(dc *gg.Context, dayWidth int) {
	x := float64(leftLabelsWidth + daysInWeek*dayWidth + 10)
	y := float64(imageHeight) - 140

	const boxW, boxH = 20.0, 14.0
	for _, item := range legend {
		dc.SetColor(kindColors[item.kind])
		dc.DrawRoundedRectangle(x, y, boxW, boxH, 3)
		dc.Fill()

		setFont(dc, legendFontSize, false)
		dc.SetColor(legendTextColor)
		dc.DrawStringAnchored(item.label, x+boxW+8, y+boxH/2+1, 0, 0.2)
		y += boxH + 14
	}
}

func darken(c color.RGBA, factor float64) color.RGBA {
	return color.RGBA{
		R: uint8(float64(c.R) * factor),
		G: uint8(float64(c.G) * factor),
		B: uint8(float64(c.B) * factor),
		A: c.A,
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func monthName(m time.Month) string {
	return [...]string{"Январь", "Февраль", "Март", "Апрель", "Май", "Июнь",
		"Июль", "Август", "Сентябрь", "Октябрь", "Ноябрь", "Декабрь"}[m-1]
}

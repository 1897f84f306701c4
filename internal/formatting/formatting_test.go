package formatting

import (
	"testing"
	"time"

	"github.com/Freeeeeet/expert_sessions/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45 мин", FormatDuration(45))
	assert.Equal(t, "1 ч", FormatDuration(60))
	assert.Equal(t, "1 ч 30 мин", FormatDuration(90))
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "50.00 ₽", FormatPrice(5000))
	assert.Equal(t, "50 ₽", FormatPriceShort(5000))
	assert.Equal(t, "50.50 ₽", FormatPriceShort(5050))
}

func TestPluralizeSessions(t *testing.T) {
	assert.Equal(t, "сессия", PluralizeSessions(1))
	assert.Equal(t, "сессии", PluralizeSessions(3))
	assert.Equal(t, "сессий", PluralizeSessions(11))
	assert.Equal(t, "сессия", PluralizeSessions(21))
}

func TestFormatSessionTime(t *testing.T) {
	start := time.Date(2026, time.October, 19, 7, 0, 0, 0, time.UTC)

	assert.Equal(t, "Пн, 19.10.2026 10:00 (Europe/Moscow)", FormatSessionTime(start, "Europe/Moscow"))
	assert.Equal(t, "Пн, 19.10.2026 07:00 (UTC)", FormatSessionTime(start, ""))
}

func TestGetSessionStateDisplay(t *testing.T) {
	assert.Equal(t, "Оплачена", GetSessionStateDisplay(model.SessionStatePaid).Text)
	assert.Equal(t, "Неизвестно", GetSessionStateDisplay("lost").Text)
}

package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Freeeeeet/expert_sessions/internal/formatting"
)

// Render собирает текст уведомления (HTML для Telegram)
func Render(tpl Template, data map[string]string) string {
	var b strings.Builder

	switch tpl {
	case TemplateNewSession:
		b.WriteString("📝 <b>Запись создана</b>\n\nОплатите сессию, чтобы эксперт мог её подтвердить.\n")
	case TemplateNewRequest:
		b.WriteString("🔔 <b>Новая заявка на сессию</b>\n")
	case TemplateSessionPaid:
		b.WriteString("💳 <b>Сессия оплачена</b>\n\nПодтвердите её, чтобы клиент получил ссылку.\n")
	case TemplateSessionConfirmed:
		b.WriteString("✅ <b>Эксперт подтвердил сессию</b>\n")
	case TemplateSessionStarted:
		b.WriteString("🎥 <b>Сессия началась</b>\n")
	case TemplateSessionCompleted:
		b.WriteString("✔️ <b>Сессия завершена</b>\n")
	case TemplateSessionCancelled:
		b.WriteString("❌ <b>Сессия отменена</b>\n\nОплата будет возвращена.\n")
	case TemplateReminder:
		b.WriteString("⏰ <b>Напоминание о сессии</b>\n")
	case TemplateNoShow:
		b.WriteString("🚫 <b>Клиент не пришёл на сессию</b>\n")
	default:
		fmt.Fprintf(&b, "Уведомление: %s\n", tpl)
	}

	b.WriteString("\n")
	if id := data[KeySessionID]; id != "" {
		fmt.Fprintf(&b, "🆔 Сессия #%s\n", id)
	}
	if start := data[KeyStart]; start != "" {
		if t, err := time.Parse(time.RFC3339, start); err == nil {
			start = formatting.FormatSessionTime(t, data[KeyTimezone])
		}
		fmt.Fprintf(&b, "📅 %s\n", start)
	}
	if d, err := strconv.Atoi(data[KeyDuration]); err == nil && d > 0 {
		fmt.Fprintf(&b, "⏱ %s\n", formatting.FormatDuration(d))
	}
	if p, err := strconv.ParseInt(data[KeyPrice], 10, 64); err == nil {
		fmt.Fprintf(&b, "💰 %s\n", formatting.FormatPriceShort(p))
	}
	if reason := data[KeyReason]; reason != "" {
		fmt.Fprintf(&b, "💬 %s\n", reason)
	}
	if link := data[KeyLink]; link != "" {
		fmt.Fprintf(&b, "🔗 %s\n", link)
	}

	return strings.TrimRight(b.String(), "\n")
}

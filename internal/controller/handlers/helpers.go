package handlers

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/Freeeeeet/expert_sessions/internal/formatting"
	"github.com/Freeeeeet/expert_sessions/internal/model"
)

const helpText = "📚 <b>Справка по командам</b>\n\n" +
	"/start - Регистрация и приветствие\n" +
	"/sessions - Мои ближайшие сессии\n" +
	"/week - Расписание на неделю (для экспертов)\n" +
	"/categories - Темы консультаций\n" +
	"/becomeexpert - Стать экспертом\n" +
	"/help - Показать эту справку\n\n" +
	"Сюда же приходят уведомления о записях, оплате и напоминания перед началом."

func welcomeText(user *model.User) string {
	return fmt.Sprintf(
		"👋 Привет, %s!\n\n"+
			"Это бот консультаций с экспертами. Здесь вы будете получать подтверждения, "+
			"ссылки на видеокомнату и напоминания о сессиях.\n\n"+
			"/sessions - Мои сессии\n"+
			"/categories - Темы консультаций\n"+
			"/becomeexpert - Стать экспертом\n"+
			"/help - Справка",
		html.EscapeString(user.DisplayName()),
	)
}

// sessionsText список сессий, где пользователь клиент или эксперт
func sessionsText(user *model.User, sessions []*model.Session, total int) string {
	if len(sessions) == 0 {
		return "📭 У вас нет предстоящих сессий."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📅 <b>Ближайшие сессии</b> (%d %s)\n", total, formatting.PluralizeSessions(total))

	for _, s := range sessions {
		display := formatting.GetSessionStateDisplay(s.State)
		role := "клиент"
		if s.ExpertID == user.ID {
			role = "эксперт"
		}

		fmt.Fprintf(&sb, "\n%s <b>#%d</b> %s\n", display.Emoji, s.ID, formatting.FormatSessionTime(s.Start, ""))
		fmt.Fprintf(&sb, "   ⏱ %s · 💰 %s · вы %s\n",
			formatting.FormatDuration(s.DurationMinutes),
			formatting.FormatPrice(s.Price),
			role)
		fmt.Fprintf(&sb, "   📊 %s\n", display.Text)
		if s.VideoRoom != nil && s.State == model.SessionStateConfirmed {
			link := s.VideoRoom.ClientLink
			if s.ExpertID == user.ID {
				link = s.VideoRoom.ExpertLink
			}
			fmt.Fprintf(&sb, "   🔗 %s\n", html.EscapeString(link))
		}
	}

	if total > len(sessions) {
		fmt.Fprintf(&sb, "\n…и ещё %d", total-len(sessions))
	}
	return sb.String()
}

func categoriesText(categories []*model.Category) string {
	if len(categories) == 0 {
		return "📭 Пока нет доступных тем."
	}

	var sb strings.Builder
	sb.WriteString("🗂 <b>Темы консультаций</b>\n")
	for _, c := range categories {
		fmt.Fprintf(&sb, "\n• <b>%s</b>", html.EscapeString(c.Name))
		if c.Description != "" {
			fmt.Fprintf(&sb, " - %s", html.EscapeString(c.Description))
		}
	}
	return sb.String()
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

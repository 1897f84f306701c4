package formatting

import "github.com/Freeeeeet/expert_sessions/internal/model"

// SessionStateDisplay представляет отображение состояния сессии
type SessionStateDisplay struct {
	Emoji string
	Text  string
}

// GetSessionStateDisplay возвращает emoji и текст для состояния сессии
func GetSessionStateDisplay(state model.SessionState) SessionStateDisplay {
	displays := map[model.SessionState]SessionStateDisplay{
		model.SessionStatePendingPayment:    {"⏳", "Ожидает оплаты"},
		model.SessionStatePaid:              {"💳", "Оплачена"},
		model.SessionStateConfirmed:         {"✅", "Подтверждена"},
		model.SessionStateInProgress:        {"🎥", "Идёт"},
		model.SessionStateCompleted:         {"✔️", "Завершена"},
		model.SessionStateCancelledByClient: {"❌", "Отменена клиентом"},
		model.SessionStateCancelledByExpert: {"❌", "Отменена экспертом"},
		model.SessionStateNoShowClient:      {"🚫", "Клиент не пришёл"},
		model.SessionStateNoShowExpert:      {"🚫", "Эксперт не пришёл"},
		model.SessionStateRefunded:          {"↩️", "Возврат"},
	}

	if display, ok := displays[state]; ok {
		return display
	}

	return SessionStateDisplay{"❓", "Неизвестно"}
}

package notify

// Template шаблон уведомления
type Template string

const (
	TemplateNewSession       Template = "new-session"       // клиенту: запись создана
	TemplateNewRequest       Template = "new-request"       // эксперту: новая заявка
	TemplateSessionPaid      Template = "session-paid"      // эксперту: оплата получена
	TemplateSessionConfirmed Template = "session-confirmed" // клиенту: эксперт подтвердил
	TemplateSessionStarted   Template = "session-started"
	TemplateSessionCompleted Template = "session-completed"
	TemplateSessionCancelled Template = "session-cancelled"
	TemplateReminder         Template = "reminder"
	TemplateNoShow           Template = "no-show"
)

// Ключи данных уведомления
const (
	KeySessionID = "session_id"
	KeyStart     = "start"
	KeyDuration  = "duration"
	KeyPrice     = "price"
	KeyLink      = "link"
	KeyReason    = "reason"
	KeyTimezone  = "timezone"
)

package model

import "time"

type SessionState string

const (
	SessionStatePendingPayment    SessionState = "pending-payment" // Ожидает оплаты
	SessionStatePaid              SessionState = "paid"            // Оплачена, ждёт подтверждения эксперта
	SessionStateConfirmed         SessionState = "confirmed"       // Подтверждена экспертом
	SessionStateInProgress        SessionState = "in-progress"     // Идёт
	SessionStateCompleted         SessionState = "completed"       // Завершена
	SessionStateCancelledByClient SessionState = "cancelled-by-client"
	SessionStateCancelledByExpert SessionState = "cancelled-by-expert"
	SessionStateNoShowClient      SessionState = "no-show-client"
	SessionStateNoShowExpert      SessionState = "no-show-expert"
	SessionStateRefunded          SessionState = "refunded"
)

var allSessionStates = []SessionState{
	SessionStatePendingPayment,
	SessionStatePaid,
	SessionStateConfirmed,
	SessionStateInProgress,
	SessionStateCompleted,
	SessionStateCancelledByClient,
	SessionStateCancelledByExpert,
	SessionStateNoShowClient,
	SessionStateNoShowExpert,
	SessionStateRefunded,
}

// ParseSessionState проверяет строковое значение состояния
func ParseSessionState(s string) (SessionState, bool) {
	for _, st := range allSessionStates {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// IsTerminal финальное состояние, дальнейшие переходы запрещены
func (s SessionState) IsTerminal() bool {
	switch s {
	case SessionStateCompleted,
		SessionStateCancelledByClient,
		SessionStateCancelledByExpert,
		SessionStateNoShowClient,
		SessionStateNoShowExpert,
		SessionStateRefunded:
		return true
	}
	return false
}

// OccupiesTime состояние занимает время эксперта
func (s SessionState) OccupiesTime() bool {
	return s == SessionStatePaid || s == SessionStateConfirmed || s == SessionStateInProgress
}

// OccupyingStates состояния, блокирующие пересекающиеся слоты
func OccupyingStates() []SessionState {
	return []SessionState{SessionStatePaid, SessionStateConfirmed, SessionStateInProgress}
}

type ActorRole string

const (
	ActorClient    ActorRole = "client"
	ActorExpert    ActorRole = "expert"
	ActorScheduler ActorRole = "scheduler"
	ActorPayment   ActorRole = "payment"
)

// Actor кто выполняет переход. Для системных ролей UserID = 0
type Actor struct {
	UserID int64     `json:"user_id"`
	Role   ActorRole `json:"role"`
}

func SchedulerActor() Actor { return Actor{Role: ActorScheduler} }
func PaymentActor() Actor   { return Actor{Role: ActorPayment} }

// StateChange запись журнала переходов
type StateChange struct {
	State SessionState `json:"state"`
	At    time.Time    `json:"at"`
	Actor Actor        `json:"actor"`
	Note  string       `json:"note,omitempty"`
}

type VideoRoom struct {
	ID         string     `json:"id"`
	ClientLink string     `json:"client_link"`
	ExpertLink string     `json:"expert_link"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

type SessionResult struct {
	Summary          string `json:"summary"`
	EffectiveMinutes int    `json:"effective_minutes"`
}

// Party сторона сессии
type Party string

const (
	PartyClient Party = "client"
	PartyExpert Party = "expert"
)

type Session struct {
	ID               int64          `json:"id"`
	ClientID         int64          `json:"client_id"`
	ExpertID         int64          `json:"expert_id"`
	CategoryID       int64          `json:"category_id"`
	Start            time.Time      `json:"start"`
	DurationMinutes  int            `json:"duration"`
	Price            int64          `json:"price"`
	PaymentMethod    string         `json:"payment_method"`
	Requirements     string         `json:"requirements"`
	State            SessionState   `json:"state"`
	History          []StateChange  `json:"state_history"`
	VideoRoom        *VideoRoom     `json:"video_room,omitempty"`
	Result           *SessionResult `json:"result,omitempty"`
	ClientRemindedAt *time.Time     `json:"client_reminded_at,omitempty"`
	ExpertRemindedAt *time.Time     `json:"expert_reminded_at,omitempty"`
	Version          int            `json:"version"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`

	// Дополнительные поля для удобства (не из БД)
	Client   *User     `json:"client,omitempty"`
	Expert   *User     `json:"expert,omitempty"`
	Category *Category `json:"category,omitempty"`
}

// End плановое окончание
func (s *Session) End() time.Time {
	return s.Start.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

// IsParty участник ли пользователь сессии
func (s *Session) IsParty(userID int64) bool {
	return userID != 0 && (userID == s.ClientID || userID == s.ExpertID)
}

// Counterpart возвращает id второй стороны
func (s *Session) Counterpart(userID int64) int64 {
	if userID == s.ClientID {
		return s.ExpertID
	}
	return s.ClientID
}

// RemindedAt флаг напоминания для стороны
func (s *Session) RemindedAt(p Party) *time.Time {
	if p == PartyClient {
		return s.ClientRemindedAt
	}
	return s.ExpertRemindedAt
}

// PartyUserID id пользователя стороны
func (s *Session) PartyUserID(p Party) int64 {
	if p == PartyClient {
		return s.ClientID
	}
	return s.ExpertID
}

// SessionFilter фильтр для списка сессий
type SessionFilter struct {
	UserID   int64
	Role     ActorRole // client | expert | "" (любая сторона)
	States   []SessionState
	From     *time.Time
	To       *time.Time
	Page     int // 0-based
	PageSize int
}

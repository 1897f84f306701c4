// Package lifecycle описывает машину состояний сессии.
//
// Decide - чистая функция: по текущей сессии, команде и времени возвращает
// целевое состояние, записи журнала и список побочных эффектов, ничего не
// изменяя. Apply - единственное место, где меняются State, History,
// VideoRoom, Result и флаги напоминаний.
package lifecycle

import (
	"fmt"
	"math"
	"time"

	"github.com/Freeeeeet/expert_sessions/internal/model"
	"github.com/Freeeeeet/expert_sessions/internal/notify"
)

// ErrSlotTaken оплата пришла, когда время сессии уже заняла другая сессия
var ErrSlotTaken = fmt.Errorf("%w: slot no longer available", model.ErrConflict)

type Action string

const (
	ActionPay     Action = "pay"
	ActionConfirm Action = "confirm"
	ActionStart   Action = "start"
	ActionFinish  Action = "finish"
	ActionCancel  Action = "cancel"
	ActionNoShow  Action = "no-show"
)

// ParseAction разбирает действие из URL
func ParseAction(s string) (Action, bool) {
	switch a := Action(s); a {
	case ActionPay, ActionConfirm, ActionStart, ActionFinish, ActionCancel, ActionNoShow:
		return a, true
	}
	return "", false
}

// Policy временные ограничения переходов
type Policy struct {
	StartWindow  time.Duration // за сколько до начала можно стартовать
	CancelCutoff time.Duration // отмена не позже чем за столько до начала
	GracePeriod  time.Duration // после начала + grace неначатая сессия = no-show
}

func DefaultPolicy() Policy {
	return Policy{
		StartWindow:  15 * time.Minute,
		CancelCutoff: 2 * time.Hour,
		GracePeriod:  15 * time.Minute,
	}
}

type Command struct {
	Action           Action
	Actor            model.Actor
	Reason           string           // cancel
	Summary          string           // finish
	PaymentConfirmed bool             // pay: ответ платёжного коллаборатора
	SlotTaken        bool             // pay: время пересекается с занятой сессией
	Room             *model.VideoRoom // confirm: выданная комната
}

type EffectKind string

const (
	EffectNotify EffectKind = "notify"
	EffectRefund EffectKind = "refund"
)

// Effect побочный эффект, исполняется после фиксации перехода
type Effect struct {
	Kind     EffectKind
	UserID   int64
	Template notify.Template
	Note     string
}

type Result struct {
	From           model.SessionState
	To             model.SessionState
	Changes        []model.StateChange
	Room           *model.VideoRoom
	Outcome        *model.SessionResult
	ResetReminders bool
	Effects        []Effect
}

type Machine struct {
	policy Policy
}

func New(policy Policy) *Machine {
	return &Machine{policy: policy}
}

func (m *Machine) Policy() Policy {
	return m.policy
}

// Decide проверяет допустимость перехода и описывает его результат.
// Порядок проверок: исходное состояние (ErrConflict), роль и участие
// (ErrForbidden), временные ограничения (ErrConflict).
func (m *Machine) Decide(s *model.Session, cmd Command, now time.Time) (*Result, error) {
	switch cmd.Action {
	case ActionPay:
		return m.pay(s, cmd, now)
	case ActionConfirm:
		return m.confirm(s, cmd, now)
	case ActionStart:
		return m.start(s, cmd, now)
	case ActionFinish:
		return m.finish(s, cmd, now)
	case ActionCancel:
		return m.cancel(s, cmd, now)
	case ActionNoShow:
		return m.noShow(s, cmd, now)
	}
	return nil, fmt.Errorf("%w: unknown action %q", model.ErrValidation, cmd.Action)
}

func (m *Machine) pay(s *model.Session, cmd Command, now time.Time) (*Result, error) {
	if err := requireState(s, cmd.Action, model.SessionStatePendingPayment); err != nil {
		return nil, err
	}
	if cmd.Actor.Role != model.ActorPayment {
		return nil, forbidden(cmd, "only the payment collaborator can mark a session paid")
	}
	if !cmd.PaymentConfirmed {
		return nil, fmt.Errorf("%w: payment not confirmed for session %d", model.ErrConflict, s.ID)
	}
	if cmd.SlotTaken {
		return nil, fmt.Errorf("session %d: %w", s.ID, ErrSlotTaken)
	}

	r := newResult(s, model.SessionStatePaid)
	r.record(s, now, r.To, cmd.Actor, "payment confirmed")
	r.notify(s.ExpertID, notify.TemplateSessionPaid, "")
	return r, nil
}

func (m *Machine) confirm(s *model.Session, cmd Command, now time.Time) (*Result, error) {
	if err := requireState(s, cmd.Action, model.SessionStatePaid); err != nil {
		return nil, err
	}
	if !isExpert(s, cmd.Actor) {
		return nil, forbidden(cmd, "only the session expert can confirm")
	}
	if cmd.Room == nil {
		return nil, fmt.Errorf("%w: video room was not issued", model.ErrInternal)
	}

	r := newResult(s, model.SessionStateConfirmed)
	room := *cmd.Room
	r.Room = &room
	r.ResetReminders = true
	r.record(s, now, r.To, cmd.Actor, "")
	r.notify(s.ClientID, notify.TemplateSessionConfirmed, room.ClientLink)
	return r, nil
}

func (m *Machine) start(s *model.Session, cmd Command, now time.Time) (*Result, error) {
	if err := requireState(s, cmd.Action, model.SessionStateConfirmed); err != nil {
		return nil, err
	}
	if !isClient(s, cmd.Actor) && !isExpert(s, cmd.Actor) {
		return nil, forbidden(cmd, "only a session party can start it")
	}
	if now.Before(s.Start.Add(-m.policy.StartWindow)) {
		return nil, fmt.Errorf("%w: session %d cannot start before %s", model.ErrConflict, s.ID, s.Start.Add(-m.policy.StartWindow).Format(time.RFC3339))
	}

	r := newResult(s, model.SessionStateInProgress)
	room := copyRoom(s.VideoRoom)
	startedAt := now
	room.StartedAt = &startedAt
	r.Room = room
	r.record(s, now, r.To, cmd.Actor, "")
	r.notify(s.Counterpart(cmd.Actor.UserID), notify.TemplateSessionStarted, "")
	return r, nil
}

func (m *Machine) finish(s *model.Session, cmd Command, now time.Time) (*Result, error) {
	if err := requireState(s, cmd.Action, model.SessionStateInProgress); err != nil {
		return nil, err
	}
	if !isExpert(s, cmd.Actor) {
		return nil, forbidden(cmd, "only the session expert can finish it")
	}

	r := newResult(s, model.SessionStateCompleted)
	room := copyRoom(s.VideoRoom)
	endedAt := now
	room.EndedAt = &endedAt
	r.Room = room
	r.Outcome = &model.SessionResult{
		Summary:          cmd.Summary,
		EffectiveMinutes: effectiveMinutes(s, room, now),
	}
	r.record(s, now, r.To, cmd.Actor, cmd.Summary)
	r.notify(s.ClientID, notify.TemplateSessionCompleted, "")
	return r, nil
}

func (m *Machine) cancel(s *model.Session, cmd Command, now time.Time) (*Result, error) {
	if err := requireState(s, cmd.Action, model.SessionStatePaid, model.SessionStateConfirmed); err != nil {
		return nil, err
	}

	var cancelled model.SessionState
	switch {
	case isClient(s, cmd.Actor):
		cancelled = model.SessionStateCancelledByClient
	case isExpert(s, cmd.Actor):
		cancelled = model.SessionStateCancelledByExpert
	default:
		return nil, forbidden(cmd, "only a session party can cancel it")
	}

	deadline := s.Start.Add(-m.policy.CancelCutoff)
	if !now.Before(deadline) {
		return nil, fmt.Errorf("%w: session %d can only be cancelled before %s", model.ErrConflict, s.ID, deadline.Format(time.RFC3339))
	}

	// Отмена оплаченной или подтверждённой сессии сразу уходит в возврат
	r := newResult(s, model.SessionStateRefunded)
	r.record(s, now, cancelled, cmd.Actor, cmd.Reason)
	r.record(s, now, model.SessionStateRefunded, cmd.Actor, "refund after cancellation")
	r.notify(s.Counterpart(cmd.Actor.UserID), notify.TemplateSessionCancelled, cmd.Reason)
	r.Effects = append(r.Effects, Effect{Kind: EffectRefund, Note: cmd.Reason})
	return r, nil
}

func (m *Machine) noShow(s *model.Session, cmd Command, now time.Time) (*Result, error) {
	if err := requireState(s, cmd.Action, model.SessionStateConfirmed); err != nil {
		return nil, err
	}
	if cmd.Actor.Role != model.ActorScheduler {
		return nil, forbidden(cmd, "only the scheduler can mark a no-show")
	}
	if !now.After(s.Start.Add(m.policy.GracePeriod)) {
		return nil, fmt.Errorf("%w: grace period for session %d has not passed", model.ErrConflict, s.ID)
	}

	r := newResult(s, model.SessionStateNoShowClient)
	r.record(s, now, r.To, cmd.Actor, "client did not join")
	r.notify(s.ExpertID, notify.TemplateNoShow, "")
	return r, nil
}

// Apply применяет результат к сессии
func Apply(s *model.Session, r *Result) {
	s.State = r.To
	s.History = append(s.History, r.Changes...)
	if r.Room != nil {
		s.VideoRoom = r.Room
	}
	if r.Outcome != nil {
		s.Result = r.Outcome
	}
	if r.ResetReminders {
		s.ClientRemindedAt = nil
		s.ExpertRemindedAt = nil
	}
}

// Initial запись журнала для только что созданной сессии
func Initial(actor model.Actor, now time.Time) model.StateChange {
	return model.StateChange{
		State: model.SessionStatePendingPayment,
		At:    now,
		Actor: actor,
		Note:  "session requested",
	}
}

func newResult(s *model.Session, to model.SessionState) *Result {
	return &Result{From: s.State, To: to}
}

// record добавляет запись журнала. Время строго больше предыдущей записи,
// чтобы журнал оставался упорядоченным даже при одинаковом now.
func (r *Result) record(s *model.Session, now time.Time, state model.SessionState, actor model.Actor, note string) {
	last := time.Time{}
	if n := len(r.Changes); n > 0 {
		last = r.Changes[n-1].At
	} else if n := len(s.History); n > 0 {
		last = s.History[n-1].At
	}
	at := now
	if !at.After(last) {
		at = last.Add(time.Microsecond)
	}
	r.Changes = append(r.Changes, model.StateChange{State: state, At: at, Actor: actor, Note: note})
}

func (r *Result) notify(userID int64, tpl notify.Template, note string) {
	if userID == 0 {
		return
	}
	r.Effects = append(r.Effects, Effect{Kind: EffectNotify, UserID: userID, Template: tpl, Note: note})
}

func requireState(s *model.Session, action Action, allowed ...model.SessionState) error {
	for _, st := range allowed {
		if s.State == st {
			return nil
		}
	}
	return fmt.Errorf("%w: invalid transition %q from state %s", model.ErrConflict, action, s.State)
}

func forbidden(cmd Command, msg string) error {
	return fmt.Errorf("%w: %s (actor %s #%d)", model.ErrForbidden, msg, cmd.Actor.Role, cmd.Actor.UserID)
}

func isClient(s *model.Session, a model.Actor) bool {
	return a.Role == model.ActorClient && a.UserID != 0 && a.UserID == s.ClientID
}

func isExpert(s *model.Session, a model.Actor) bool {
	return a.Role == model.ActorExpert && a.UserID != 0 && a.UserID == s.ExpertID
}

func copyRoom(room *model.VideoRoom) *model.VideoRoom {
	if room == nil {
		return &model.VideoRoom{}
	}
	c := *room
	return &c
}

// effectiveMinutes фактическая длительность по стенным часам,
// плановая если комната так и не стартовала
func effectiveMinutes(s *model.Session, room *model.VideoRoom, now time.Time) int {
	if room == nil || room.StartedAt == nil {
		return s.DurationMinutes
	}
	elapsed := now.Sub(*room.StartedAt)
	if elapsed <= 0 {
		return 0
	}
	return int(math.Round(elapsed.Minutes()))
}

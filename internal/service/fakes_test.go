package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/expert_sessions/internal/clock"
	"github.com/Freeeeeet/expert_sessions/internal/lifecycle"
	"github.com/Freeeeeet/expert_sessions/internal/lock"
	"github.com/Freeeeeet/expert_sessions/internal/model"
	"github.com/Freeeeeet/expert_sessions/internal/notify"
	"github.com/Freeeeeet/expert_sessions/internal/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// In-memory хранилища с той же семантикой, что и pgx репозитории

type memUsers struct {
	mu   sync.Mutex
	byID map[int64]*model.User
	next int64
}

func newMemUsers() *memUsers {
	return &memUsers{byID: make(map[int64]*model.User)}
}

func (m *memUsers) Create(ctx context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.TelegramID != 0 {
		for _, u := range m.byID {
			if u.TelegramID == user.TelegramID {
				return fmt.Errorf("%w: duplicate telegram id", model.ErrConflict)
			}
		}
	}
	m.next++
	user.ID = m.next
	c := *user
	m.byID[user.ID] = &c
	return nil
}

func (m *memUsers) GetByID(ctx context.Context, id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, nil
}

func (m *memUsers) GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.TelegramID == telegramID {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memUsers) Update(ctx context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[user.ID]; !ok {
		return fmt.Errorf("update user %d: %w", user.ID, model.ErrNotFound)
	}
	c := *user
	m.byID[user.ID] = &c
	return nil
}

func (m *memUsers) GetExperts(ctx context.Context) ([]*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var experts []*model.User
	for _, u := range m.byID {
		if u.IsExpert {
			c := *u
			experts = append(experts, &c)
		}
	}
	sort.Slice(experts, func(i, j int) bool { return experts[i].ID < experts[j].ID })
	return experts, nil
}

type memCategories struct {
	mu   sync.Mutex
	byID map[int64]*model.Category
	next int64
}

func newMemCategories() *memCategories {
	return &memCategories{byID: make(map[int64]*model.Category)}
}

func (m *memCategories) Create(ctx context.Context, c *model.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	c.ID = m.next
	cp := *c
	m.byID[c.ID] = &cp
	return nil
}

func (m *memCategories) GetByID(ctx context.Context, id int64) (*model.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.byID[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (m *memCategories) GetActive(ctx context.Context) ([]*model.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Category
	for _, c := range m.byID {
		if c.IsActive {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type memProfiles struct {
	mu       sync.Mutex
	schedule *sync.Mutex // общий с memSessions.reserve
	m        map[int64]*model.AvailabilityProfile
}

func newMemProfiles() *memProfiles {
	return &memProfiles{m: make(map[int64]*model.AvailabilityProfile)}
}

func cloneProfile(p *model.AvailabilityProfile) *model.AvailabilityProfile {
	c := *p
	c.WeeklyTemplate = append([]model.WeeklyRange(nil), p.WeeklyTemplate...)
	c.Exceptions = append([]model.ExceptionBlock(nil), p.Exceptions...)
	c.SpecialSlots = append([]model.SpecialSlot(nil), p.SpecialSlots...)
	c.Config.Prices = append([]model.PriceOption(nil), p.Config.Prices...)
	return &c
}

func (m *memProfiles) Get(ctx context.Context, expertID int64) (*model.AvailabilityProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.m[expertID]; ok {
		return cloneProfile(p), nil
	}
	return nil, nil
}

func (m *memProfiles) Update(ctx context.Context, expertID int64, fn func(p *model.AvailabilityProfile) error) (*model.AvailabilityProfile, error) {
	if m.schedule != nil {
		m.schedule.Lock()
		defer m.schedule.Unlock()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.m[expertID]
	if !ok {
		current = model.NewAvailabilityProfile(expertID)
	}
	p := cloneProfile(current)
	if err := fn(p); err != nil {
		return nil, err
	}
	m.m[expertID] = cloneProfile(p)
	return p, nil
}

type memSessions struct {
	mu       sync.Mutex
	reserve  sync.Mutex // аналог pg_advisory_xact_lock
	profiles *memProfiles
	byID     map[int64]*model.Session
	next     int64

	// beforeReserve вызывается до блокировки расписания, имитирует
	// конкурентную запись, зафиксированную между чтениями сервиса и бронью
	beforeReserve func()
}

func newMemSessions(profiles *memProfiles) *memSessions {
	m := &memSessions{byID: make(map[int64]*model.Session), profiles: profiles}
	profiles.schedule = &m.reserve
	return m
}

func cloneSession(s *model.Session) *model.Session {
	c := *s
	c.History = append([]model.StateChange(nil), s.History...)
	if s.VideoRoom != nil {
		room := *s.VideoRoom
		c.VideoRoom = &room
	}
	if s.Result != nil {
		res := *s.Result
		c.Result = &res
	}
	return &c
}

func (m *memSessions) Reserve(ctx context.Context, w repository.BlockingWindow, build func(profile *model.AvailabilityProfile, existing []*model.Session) (*model.Session, error)) (*model.Session, error) {
	if m.beforeReserve != nil {
		m.beforeReserve()
	}
	m.reserve.Lock()
	defer m.reserve.Unlock()

	profile, err := m.profiles.Get(ctx, w.ExpertID)
	if err != nil {
		return nil, err
	}
	existing, err := m.ListBlocking(ctx, w)
	if err != nil {
		return nil, err
	}
	s, err := build(profile, existing)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	s.ID = m.next
	s.Version = 1
	s.UpdatedAt = s.CreatedAt
	m.byID[s.ID] = cloneSession(s)
	return s, nil
}

func (m *memSessions) GetByID(ctx context.Context, id int64) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.byID[id]; ok {
		return cloneSession(s), nil
	}
	return nil, nil
}

func (m *memSessions) Update(ctx context.Context, id int64, fn func(s *model.Session) error) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("session %d: %w", id, model.ErrNotFound)
	}
	s := cloneSession(stored)
	if err := fn(s); err != nil {
		return nil, err
	}
	s.Version++
	m.byID[id] = cloneSession(s)
	return s, nil
}

func (m *memSessions) Occupy(ctx context.Context, id int64, fn func(s *model.Session, profile *model.AvailabilityProfile, occupied []*model.Session) error) (*model.Session, error) {
	current, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("session %d: %w", id, model.ErrNotFound)
	}

	m.reserve.Lock()
	defer m.reserve.Unlock()

	profile, err := m.profiles.Get(ctx, current.ExpertID)
	if err != nil {
		return nil, err
	}
	occupied, err := m.ListBlocking(ctx, repository.BlockingWindow{
		ExpertID:      current.ExpertID,
		From:          current.Start.Add(-48 * time.Hour),
		To:            current.End().Add(48 * time.Hour),
		OccupyingOnly: true,
	})
	if err != nil {
		return nil, err
	}
	return m.Update(ctx, id, func(s *model.Session) error {
		return fn(s, profile, occupied)
	})
}

func (m *memSessions) List(ctx context.Context, f model.SessionFilter) ([]*model.Session, int, error) {
	all := m.filter(func(s *model.Session) bool {
		switch f.Role {
		case model.ActorClient:
			if s.ClientID != f.UserID {
				return false
			}
		case model.ActorExpert:
			if s.ExpertID != f.UserID {
				return false
			}
		default:
			if f.UserID != 0 && !s.IsParty(f.UserID) {
				return false
			}
		}
		if len(f.States) > 0 {
			found := false
			for _, st := range f.States {
				found = found || st == s.State
			}
			if !found {
				return false
			}
		}
		if f.From != nil && s.Start.Before(*f.From) {
			return false
		}
		if f.To != nil && !s.Start.Before(*f.To) {
			return false
		}
		return true
	})

	total := len(all)
	from := f.Page * f.PageSize
	if from > total {
		from = total
	}
	to := from + f.PageSize
	if to > total {
		to = total
	}
	return all[from:to], total, nil
}

func (m *memSessions) ListBlocking(ctx context.Context, w repository.BlockingWindow) ([]*model.Session, error) {
	return m.filter(func(s *model.Session) bool {
		if s.ExpertID != w.ExpertID || !s.End().After(w.From) || !s.Start.Before(w.To) {
			return false
		}
		return s.State.OccupiesTime() ||
			(!w.OccupyingOnly && s.State == model.SessionStatePendingPayment && s.CreatedAt.After(w.HoldSince))
	}), nil
}

func (m *memSessions) ListDueReminders(ctx context.Context, from, to time.Time) ([]*model.Session, error) {
	return m.filter(func(s *model.Session) bool {
		return s.State == model.SessionStateConfirmed &&
			!s.Start.Before(from) && !s.Start.After(to) &&
			(s.ClientRemindedAt == nil || s.ExpertRemindedAt == nil)
	}), nil
}

func (m *memSessions) ClaimReminder(ctx context.Context, sessionID int64, party model.Party, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[sessionID]
	if !ok || s.State != model.SessionStateConfirmed || s.RemindedAt(party) != nil {
		return false, nil
	}
	t := at
	if party == model.PartyClient {
		s.ClientRemindedAt = &t
	} else {
		s.ExpertRemindedAt = &t
	}
	return true, nil
}

func (m *memSessions) ListNoShowCandidates(ctx context.Context, before time.Time) ([]*model.Session, error) {
	return m.filter(func(s *model.Session) bool {
		return s.State == model.SessionStateConfirmed && s.Start.Before(before)
	}), nil
}

func (m *memSessions) filter(keep func(s *model.Session) bool) []*model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Session
	for _, s := range m.byID {
		if keep(s) {
			out = append(out, cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// put сохраняет сессию напрямую, минуя бронирование
func (m *memSessions) put(s *model.Session) *model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	s.ID = m.next
	m.byID[s.ID] = cloneSession(s)
	return s
}

type sentNotification struct {
	UserID   int64
	Template notify.Template
	Data     map[string]string
}

type memNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (n *memNotifier) Send(ctx context.Context, userID int64, tpl notify.Template, data map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{UserID: userID, Template: tpl, Data: data})
	return n.err
}

func (n *memNotifier) count(tpl notify.Template) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.sent {
		if s.Template == tpl {
			c++
		}
	}
	return c
}

type memPayments struct {
	mu       sync.Mutex
	paid     map[int64]int64
	refunded []int64
}

func newMemPayments() *memPayments {
	return &memPayments{paid: make(map[int64]int64)}
}

func (p *memPayments) Record(ctx context.Context, sessionID int64, amount int64, method string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.paid[sessionID]; !ok {
		p.paid[sessionID] = amount
	}
	return nil
}

func (p *memPayments) IsPaid(ctx context.Context, sessionID int64) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.paid[sessionID]
	return ok, nil
}

func (p *memPayments) refunds() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int64(nil), p.refunded...)
}

func (p *memPayments) Refund(ctx context.Context, sessionID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refunded = append(p.refunded, sessionID)
	return nil
}

type memVideo struct {
	issued int
}

func (v *memVideo) Issue(ctx context.Context, sessionID int64) (*model.VideoRoom, error) {
	v.issued++
	id := fmt.Sprintf("room-%d-%d", sessionID, v.issued)
	return &model.VideoRoom{ID: id, ClientLink: "https://video/" + id + "?client", ExpertLink: "https://video/" + id + "?expert"}, nil
}

type memMessaging struct {
	mu      sync.Mutex
	threads []int64
}

func (m *memMessaging) CreateThread(ctx context.Context, sessionID, clientID, expertID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads = append(m.threads, sessionID)
	return nil
}

// fixture собранные сервисы поверх in-memory хранилищ
type fixture struct {
	clock      *clock.Fixed
	users      *memUsers
	categories *memCategories
	profiles   *memProfiles
	sessions   *memSessions
	notifier   *memNotifier
	payments   *memPayments
	video      *memVideo
	messaging  *memMessaging

	availability *AvailabilityService
	booking      *BookingService
	lifecycle    *SessionService
	reminders    *ReminderService

	client   *model.User
	expert   *model.User
	category *model.Category
}

// 2026-10-19 - понедельник
var testMonday = time.Date(2026, time.October, 19, 0, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	f := &fixture{
		clock:      clock.NewFixed(testMonday.Add(-24 * time.Hour)),
		users:      newMemUsers(),
		categories: newMemCategories(),
		profiles:   newMemProfiles(),
		notifier:   &memNotifier{},
		payments:   newMemPayments(),
		video:      &memVideo{},
		messaging:  &memMessaging{},
	}
	f.sessions = newMemSessions(f.profiles)
	opts := DefaultOptions()
	machine := lifecycle.New(lifecycle.DefaultPolicy())

	f.availability = NewAvailabilityService(f.users, f.profiles, f.sessions, f.clock, opts, logger)
	f.booking = NewBookingService(f.users, f.categories, f.sessions, f.messaging, f.notifier, f.clock, opts, logger)
	f.lifecycle = NewSessionService(f.sessions, f.profiles, machine, f.payments, f.video, f.notifier, f.clock, logger)
	f.reminders = NewReminderService(f.sessions, f.lifecycle, f.profiles, f.notifier, lock.NewLocal(), f.clock, opts, logger)

	f.client = &model.User{FirstName: "Client", TelegramID: 1001}
	f.expert = &model.User{FirstName: "Expert", TelegramID: 1002, IsExpert: true}
	require.NoError(t, f.users.Create(ctx, f.client))
	require.NoError(t, f.users.Create(ctx, f.expert))
	f.category = &model.Category{Name: "Career", IsActive: true}
	require.NoError(t, f.categories.Create(ctx, f.category))

	// Пн 09:00-17:00, шаг 30, длительность 60, lead 120, буфер 15
	_, err := f.availability.Configure(ctx, f.expert.ID,
		[]model.WeeklyRange{{Weekday: int(time.Monday), StartMinute: 9 * 60, EndMinute: 17 * 60, Active: true}},
		model.BookingConfig{
			MinDuration:      60,
			MaxDuration:      60,
			IncrementMinutes: 30,
			LeadTimeMinutes:  120,
			BufferMinutes:    15,
			Prices:           []model.PriceOption{{DurationMinutes: 60, Price: 5000}},
			Timezone:         "UTC",
		})
	require.NoError(t, err)

	return f
}

func (f *fixture) bookingRequest(hour, minute int) CreateBookingRequest {
	return CreateBookingRequest{
		ClientID:        f.client.ID,
		ExpertID:        f.expert.ID,
		CategoryID:      f.category.ID,
		Start:           time.Date(2026, time.October, 19, hour, minute, 0, 0, time.UTC),
		DurationMinutes: 60,
		Price:           5000,
		PaymentMethod:   "card",
		Requirements:    "career change",
	}
}

// confirmedSession проводит бронь через оплату и подтверждение
func (f *fixture) confirmedSession(t *testing.T, hour int) *model.Session {
	t.Helper()
	ctx := context.Background()

	s, err := f.booking.CreateBooking(ctx, f.bookingRequest(hour, 0))
	require.NoError(t, err)
	_, err = f.lifecycle.RecordPayment(ctx, s.ID, s.Price, "card")
	require.NoError(t, err)
	s, err = f.lifecycle.Confirm(ctx, s.ID, f.expert.ID)
	require.NoError(t, err)
	return s
}

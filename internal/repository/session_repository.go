package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/expert_sessions/internal/model"
	"github.com/Freeeeeet/expert_sessions/internal/repository/base"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type SessionRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewSessionRepository(pool *pgxpool.Pool, logger *zap.Logger) *SessionRepository {
	return &SessionRepository{
		pool:   pool,
		logger: logger,
	}
}

const sessionColumns = `
	id, client_id, expert_id, category_id, start_at, duration_minutes, price,
	payment_method, requirements, state,
	room_id, client_link, expert_link, room_started_at, room_ended_at,
	result_summary, effective_minutes,
	client_reminded_at, expert_reminded_at, version, created_at, updated_at
`

// BlockingWindow выборка сессий эксперта, удерживающих время в [From, To).
// Неоплаченные сессии удерживают время, если созданы после HoldSince.
// С OccupyingOnly учитываются только оплаченные и подтверждённые сессии.
type BlockingWindow struct {
	ExpertID      int64
	From          time.Time
	To            time.Time
	HoldSince     time.Time
	OccupyingOnly bool
}

// occupyMargin окно вокруг сессии, в котором ищутся соседи при оплате
const occupyMargin = 48 * time.Hour

// Reserve атомарно бронирует время эксперта: под advisory-блокировкой
// эксперта загружает профиль и удерживающие сессии, вызывает build для
// проверки слота и построения сессии, затем сохраняет её вместе с журналом.
// profile равен nil, если эксперт ещё не сохранял профиль.
func (r *SessionRepository) Reserve(ctx context.Context, w BlockingWindow, build func(profile *model.AvailabilityProfile, existing []*model.Session) (*model.Session, error)) (*model.Session, error) {
	var session *model.Session

	err := base.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := base.LockExpert(ctx, tx, w.ExpertID); err != nil {
			return err
		}

		profile, err := lockedProfile(ctx, tx, w.ExpertID)
		if err != nil {
			return err
		}
		existing, err := listBlocking(ctx, tx, w)
		if err != nil {
			return err
		}

		s, err := build(profile, existing)
		if err != nil {
			return err
		}

		if err := insertSession(ctx, tx, s); err != nil {
			return err
		}
		if err := insertHistory(ctx, tx, s.ID, s.History); err != nil {
			return err
		}
		session = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("Session reserved",
		zap.Int64("session_id", session.ID),
		zap.Int64("expert_id", session.ExpertID),
		zap.Int64("client_id", session.ClientID),
		zap.Time("start", session.Start))

	return session, nil
}

// Occupy как Update, но дополнительно держит блокировку расписания эксперта
// и передаёт fn профиль и другие сессии эксперта, уже занимающие время рядом.
// Используется для переходов, после которых сессия начинает занимать время.
func (r *SessionRepository) Occupy(ctx context.Context, id int64, fn func(s *model.Session, profile *model.AvailabilityProfile, occupied []*model.Session) error) (*model.Session, error) {
	var session *model.Session

	err := base.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var expertID int64
		if err := tx.QueryRow(ctx, `SELECT expert_id FROM sessions WHERE id = $1`, id).Scan(&expertID); err != nil {
			if base.IsNotFound(err) {
				return fmt.Errorf("session %d: %w", id, model.ErrNotFound)
			}
			return fmt.Errorf("get session expert: %w", err)
		}
		// порядок блокировок как в Reserve: сначала эксперт, потом строка
		if err := base.LockExpert(ctx, tx, expertID); err != nil {
			return err
		}

		s, err := r.apply(ctx, tx, id, func(s *model.Session) error {
			profile, err := lockedProfile(ctx, tx, s.ExpertID)
			if err != nil {
				return err
			}
			neighbours, err := listBlocking(ctx, tx, BlockingWindow{
				ExpertID:      s.ExpertID,
				From:          s.Start.Add(-occupyMargin),
				To:            s.End().Add(occupyMargin),
				OccupyingOnly: true,
			})
			if err != nil {
				return err
			}

			occupied := neighbours[:0]
			for _, n := range neighbours {
				if n.ID != s.ID {
					occupied = append(occupied, n)
				}
			}
			return fn(s, profile, occupied)
		})
		if err != nil {
			return err
		}
		session = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	return session, nil
}

// GetByID получает сессию с журналом переходов
func (r *SessionRepository) GetByID(ctx context.Context, id int64) (*model.Session, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session by id: %w", err)
	}

	if err := attachHistory(ctx, r.pool, []*model.Session{s}); err != nil {
		return nil, err
	}
	return s, nil
}

// Update блокирует строку сессии, применяет fn и сохраняет изменения.
// Новые записи журнала - те, что fn добавила в конец History.
func (r *SessionRepository) Update(ctx context.Context, id int64, fn func(s *model.Session) error) (*model.Session, error) {
	var session *model.Session

	err := base.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		s, err := r.apply(ctx, tx, id, fn)
		if err != nil {
			return err
		}
		session = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	return session, nil
}

func (r *SessionRepository) apply(ctx context.Context, tx pgx.Tx, id int64, fn func(s *model.Session) error) (*model.Session, error) {
	s, err := scanSession(tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, fmt.Errorf("session %d: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("lock session: %w", err)
	}
	if err := attachHistory(ctx, tx, []*model.Session{s}); err != nil {
		return nil, err
	}

	persisted := len(s.History)
	if err := fn(s); err != nil {
		return nil, err
	}

	if err := updateSession(ctx, tx, s); err != nil {
		return nil, err
	}
	if err := insertHistory(ctx, tx, s.ID, s.History[persisted:]); err != nil {
		return nil, err
	}
	return s, nil
}

// List возвращает страницу сессий по фильтру и общее количество
func (r *SessionRepository) List(ctx context.Context, f model.SessionFilter) ([]*model.Session, int, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	switch f.Role {
	case model.ActorClient:
		conds = append(conds, "client_id = "+arg(f.UserID))
	case model.ActorExpert:
		conds = append(conds, "expert_id = "+arg(f.UserID))
	default:
		if f.UserID != 0 {
			p := arg(f.UserID)
			conds = append(conds, "(client_id = "+p+" OR expert_id = "+p+")")
		}
	}
	if len(f.States) > 0 {
		states := make([]string, 0, len(f.States))
		for _, st := range f.States {
			states = append(states, string(st))
		}
		conds = append(conds, "state = ANY("+arg(states)+")")
	}
	if f.From != nil {
		conds = append(conds, "start_at >= "+arg(*f.From))
	}
	if f.To != nil {
		conds = append(conds, "start_at < "+arg(*f.To))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sessions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions` + where +
		` ORDER BY start_at, id LIMIT ` + arg(f.PageSize) + ` OFFSET ` + arg(f.Page*f.PageSize)

	sessions, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, total, nil
}

// ListBlocking сессии эксперта, удерживающие время в окне
func (r *SessionRepository) ListBlocking(ctx context.Context, w BlockingWindow) ([]*model.Session, error) {
	return listBlocking(ctx, r.pool, w)
}

// ListDueReminders подтверждённые сессии со стартом в [from, to],
// у которых хотя бы одной стороне ещё не отправлено напоминание
func (r *SessionRepository) ListDueReminders(ctx context.Context, from, to time.Time) ([]*model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions
		WHERE state = $1 AND start_at >= $2 AND start_at <= $3
		  AND (client_reminded_at IS NULL OR expert_reminded_at IS NULL)
		ORDER BY start_at, id`

	sessions, err := r.query(ctx, query, model.SessionStateConfirmed, from, to)
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	return sessions, nil
}

// ClaimReminder помечает напоминание стороне отправленным.
// false - напоминание уже заявлено другим проходом или сессия не подтверждена.
func (r *SessionRepository) ClaimReminder(ctx context.Context, sessionID int64, party model.Party, at time.Time) (bool, error) {
	column := "expert_reminded_at"
	if party == model.PartyClient {
		column = "client_reminded_at"
	}

	query := `UPDATE sessions SET ` + column + ` = $2
		WHERE id = $1 AND state = $3 AND ` + column + ` IS NULL`

	tag, err := r.pool.Exec(ctx, query, sessionID, at, model.SessionStateConfirmed)
	if err != nil {
		return false, fmt.Errorf("claim reminder: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListNoShowCandidates подтверждённые сессии, начавшиеся раньше before
func (r *SessionRepository) ListNoShowCandidates(ctx context.Context, before time.Time) ([]*model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions
		WHERE state = $1 AND start_at < $2
		ORDER BY start_at, id`

	sessions, err := r.query(ctx, query, model.SessionStateConfirmed, before)
	if err != nil {
		return nil, fmt.Errorf("list no-show candidates: %w", err)
	}
	return sessions, nil
}

func (r *SessionRepository) query(ctx context.Context, query string, args ...any) ([]*model.Session, error) {
	return querySessions(ctx, r.pool, query, args...)
}

func listBlocking(ctx context.Context, q base.Querier, w BlockingWindow) ([]*model.Session, error) {
	occupying := make([]string, 0, 3)
	for _, st := range model.OccupyingStates() {
		occupying = append(occupying, string(st))
	}

	query := `SELECT ` + sessionColumns + ` FROM sessions
		WHERE expert_id = $1 AND end_at > $2 AND start_at < $3
		  AND (state = ANY($4) OR (NOT $7 AND state = $5 AND created_at > $6))
		ORDER BY start_at, id`

	sessions, err := querySessions(ctx, q, query, w.ExpertID, w.From, w.To, occupying,
		model.SessionStatePendingPayment, w.HoldSince, w.OccupyingOnly)
	if err != nil {
		return nil, fmt.Errorf("list blocking sessions: %w", err)
	}
	return sessions, nil
}

// lockedProfile профиль эксперта внутри транзакции, держащей LockExpert.
// nil, если профиль ещё не сохранялся.
func lockedProfile(ctx context.Context, tx pgx.Tx, expertID int64) (*model.AvailabilityProfile, error) {
	profile, err := loadProfile(ctx, tx, expertID, false)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load availability profile: %w", err)
	}
	return profile, nil
}

func querySessions(ctx context.Context, q base.Querier, query string, args ...any) ([]*model.Session, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	var sessions []*model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	if err := attachHistory(ctx, q, sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func scanSession(row rowScanner) (*model.Session, error) {
	var (
		s                                       model.Session
		roomID, clientLink, expertLink, summary *string
		roomStartedAt, roomEndedAt              *time.Time
		effectiveMinutes                        *int
	)
	err := row.Scan(
		&s.ID, &s.ClientID, &s.ExpertID, &s.CategoryID, &s.Start, &s.DurationMinutes, &s.Price,
		&s.PaymentMethod, &s.Requirements, &s.State,
		&roomID, &clientLink, &expertLink, &roomStartedAt, &roomEndedAt,
		&summary, &effectiveMinutes,
		&s.ClientRemindedAt, &s.ExpertRemindedAt, &s.Version, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if roomID != nil {
		s.VideoRoom = &model.VideoRoom{
			ID:        *roomID,
			StartedAt: roomStartedAt,
			EndedAt:   roomEndedAt,
		}
		if clientLink != nil {
			s.VideoRoom.ClientLink = *clientLink
		}
		if expertLink != nil {
			s.VideoRoom.ExpertLink = *expertLink
		}
	}
	if summary != nil || effectiveMinutes != nil {
		s.Result = &model.SessionResult{}
		if summary != nil {
			s.Result.Summary = *summary
		}
		if effectiveMinutes != nil {
			s.Result.EffectiveMinutes = *effectiveMinutes
		}
	}
	return &s, nil
}

func attachHistory(ctx context.Context, q base.Querier, sessions []*model.Session) error {
	if len(sessions) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(sessions))
	byID := make(map[int64]*model.Session, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
		byID[s.ID] = s
		s.History = nil
	}

	rows, err := q.Query(ctx, `
		SELECT session_id, state, at, COALESCE(actor_id, 0), actor_role, note
		FROM session_state_history
		WHERE session_id = ANY($1)
		ORDER BY session_id, at, id
	`, ids)
	if err != nil {
		return fmt.Errorf("query state history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			sessionID int64
			c         model.StateChange
		)
		if err := rows.Scan(&sessionID, &c.State, &c.At, &c.Actor.UserID, &c.Actor.Role, &c.Note); err != nil {
			return fmt.Errorf("scan state change: %w", err)
		}
		if s := byID[sessionID]; s != nil {
			s.History = append(s.History, c)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state history: %w", err)
	}
	return nil
}

func insertSession(ctx context.Context, tx pgx.Tx, s *model.Session) error {
	query := `
		INSERT INTO sessions (client_id, expert_id, category_id, start_at, end_at, duration_minutes, price,
			payment_method, requirements, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		RETURNING id, version
	`

	err := tx.QueryRow(
		ctx, query,
		s.ClientID, s.ExpertID, s.CategoryID, s.Start, s.End(), s.DurationMinutes, s.Price,
		s.PaymentMethod, s.Requirements, s.State, s.CreatedAt,
	).Scan(&s.ID, &s.Version)
	if err != nil {
		return fmt.Errorf("create session: %w", base.MapError(err))
	}
	s.UpdatedAt = s.CreatedAt
	return nil
}

func updateSession(ctx context.Context, tx pgx.Tx, s *model.Session) error {
	var (
		roomID, clientLink, expertLink, summary *string
		roomStartedAt, roomEndedAt              *time.Time
		effectiveMinutes                        *int
	)
	if s.VideoRoom != nil {
		roomID, clientLink, expertLink = &s.VideoRoom.ID, &s.VideoRoom.ClientLink, &s.VideoRoom.ExpertLink
		roomStartedAt, roomEndedAt = s.VideoRoom.StartedAt, s.VideoRoom.EndedAt
	}
	if s.Result != nil {
		summary, effectiveMinutes = &s.Result.Summary, &s.Result.EffectiveMinutes
	}

	query := `
		UPDATE sessions
		SET state = $2, room_id = $3, client_link = $4, expert_link = $5,
			room_started_at = $6, room_ended_at = $7, result_summary = $8, effective_minutes = $9,
			client_reminded_at = $10, expert_reminded_at = $11,
			version = version + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING version, updated_at
	`

	err := tx.QueryRow(
		ctx, query,
		s.ID, s.State, roomID, clientLink, expertLink,
		roomStartedAt, roomEndedAt, summary, effectiveMinutes,
		s.ClientRemindedAt, s.ExpertRemindedAt,
	).Scan(&s.Version, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update session: %w", base.MapError(err))
	}
	return nil
}

func insertHistory(ctx context.Context, tx pgx.Tx, sessionID int64, changes []model.StateChange) error {
	if len(changes) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range changes {
		batch.Queue(`
			INSERT INTO session_state_history (session_id, state, at, actor_id, actor_role, note)
			VALUES ($1, $2, $3, NULLIF($4::bigint, 0), $5, $6)
		`, sessionID, c.State, c.At, c.Actor.UserID, c.Actor.Role, c.Note)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert state history: %w", err)
	}
	return nil
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"finvisor/internal/domain/session"
	"finvisor/pkg/errors"
)

var _ session.Repository = (*SessionRepository)(nil)

// SessionRepository keeps sessions in finance_agent_sessions and their
// events in adk_events. App and user scoped state live in their own tables.
type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

type sessionRow struct {
	ID        uuid.UUID                     `db:"id"`
	AppName   string                        `db:"app_name"`
	UserID    string                        `db:"user_id"`
	SessionID string                        `db:"session_id"`
	State     jsonb[map[string]interface{}] `db:"state"`
	Title     string                        `db:"title"`
	UpdatedAt time.Time                     `db:"updated_at"`
	CreatedAt time.Time                     `db:"created_at"`
}

func (r sessionRow) toDomain() *session.Session {
	state := r.State.V
	if state == nil {
		state = map[string]interface{}{}
	}
	return &session.Session{
		ID:        r.ID,
		AppName:   r.AppName,
		UserID:    r.UserID,
		SessionID: r.SessionID,
		Title:     r.Title,
		State:     state,
		Events:    []session.Event{},
		UpdatedAt: r.UpdatedAt,
		CreatedAt: r.CreatedAt,
	}
}

type eventRow struct {
	ID           uuid.UUID                     `db:"id"`
	SessionUUID  uuid.UUID                     `db:"session_uuid"`
	EventID      string                        `db:"event_id"`
	InvocationID string                        `db:"invocation_id"`
	Author       string                        `db:"author"`
	Content      jsonb[map[string]interface{}] `db:"content"`
	Timestamp    time.Time                     `db:"timestamp"`
	Branch       string                        `db:"branch"`
	Partial      bool                          `db:"partial"`
	TurnComplete bool                          `db:"turn_complete"`
	Actions      jsonb[session.EventActions]   `db:"actions"`
	Usage        jsonb[*session.UsageMetadata] `db:"usage_metadata"`
}

func (r eventRow) toDomain() *session.Event {
	return &session.Event{
		ID:            r.ID,
		SessionID:     r.SessionUUID,
		EventID:       r.EventID,
		InvocationID:  r.InvocationID,
		Author:        r.Author,
		Content:       r.Content.V,
		Timestamp:     r.Timestamp,
		Branch:        r.Branch,
		Partial:       r.Partial,
		TurnComplete:  r.TurnComplete,
		Actions:       r.Actions.V,
		UsageMetadata: r.Usage.V,
	}
}

const sessionColumns = `id, app_name, user_id, session_id, state, updated_at, created_at`

func (r *SessionRepository) Create(ctx context.Context, sess *session.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO finance_agent_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sess.ID, sess.AppName, sess.UserID, sess.SessionID, stateColumn(sess.State), sess.UpdatedAt, sess.CreatedAt,
	)
	switch {
	case isUniqueViolation(err):
		return errors.Wrapf(errors.ErrAlreadyExists, "session %s", sess.SessionID)
	case err != nil:
		return errors.Wrap(err, "failed to create session")
	}
	return nil
}

// Get loads a session and the events selected by opts
func (r *SessionRepository) Get(ctx context.Context, appName, userID, sessionID string, opts *session.GetOptions) (*session.Session, error) {
	if opts == nil {
		opts = &session.GetOptions{}
	}

	var row sessionRow
	err := r.db.GetContext(ctx, &row, `
		SELECT `+sessionColumns+`, '' AS title
		FROM finance_agent_sessions
		WHERE app_name = $1 AND user_id = $2 AND session_id = $3`,
		appName, userID, sessionID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrNotFound, "session %s", sessionID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get session")
	}

	events, err := r.GetEvents(ctx, row.ID, &session.GetEventsOptions{
		Limit:    opts.NumRecentEvents,
		LastRuns: opts.NumRecentRuns,
		After:    opts.After,
	})
	if err != nil {
		return nil, err
	}

	sess := row.toDomain()
	sess.Events = make([]session.Event, 0, len(events))
	for _, e := range events {
		sess.Events = append(sess.Events, *e)
	}
	return sess, nil
}

// List returns the sessions of an app, newest first, without events.
// Title is the first user message. An empty userID lists every user.
func (r *SessionRepository) List(ctx context.Context, appName, userID string) ([]*session.Session, error) {
	query := `
		SELECT s.id, s.app_name, s.user_id, s.session_id, s.state, s.updated_at, s.created_at,
		       COALESCE((
		           SELECT e.content->'parts'->0->>'text'
		           FROM adk_events e
		           WHERE e.session_uuid = s.id AND e.author = 'user'
		           ORDER BY e.timestamp
		           LIMIT 1
		       ), '') AS title
		FROM finance_agent_sessions s
		WHERE s.app_name = $1`
	args := []interface{}{appName}
	if userID != "" {
		query += ` AND s.user_id = $2`
		args = append(args, userID)
	}
	query += ` ORDER BY s.updated_at DESC`

	var rows []sessionRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to list sessions")
	}

	sessions := make([]*session.Session, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, row.toDomain())
	}
	return sessions, nil
}

// Delete removes a session; its events go with it (ON DELETE CASCADE)
func (r *SessionRepository) Delete(ctx context.Context, appName, userID, sessionID string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM finance_agent_sessions
		WHERE app_name = $1 AND user_id = $2 AND session_id = $3`,
		appName, userID, sessionID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to delete session")
	}
	return requireAffected(res, "session "+sessionID)
}

func (r *SessionRepository) UpdateState(ctx context.Context, appName, userID, sessionID string, state map[string]interface{}) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE finance_agent_sessions
		SET state = $1, updated_at = $2
		WHERE app_name = $3 AND user_id = $4 AND session_id = $5`,
		stateColumn(state), time.Now().UTC(), appName, userID, sessionID,
	)
	return errors.Wrap(err, "failed to update session state")
}

// AppendEvent stores event and moves the session's updated_at to the event time
func (r *SessionRepository) AppendEvent(ctx context.Context, sessionUUID uuid.UUID, event *session.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO adk_events (
			id, session_uuid, event_id, invocation_id, author, content, timestamp, branch,
			partial, turn_complete, actions, usage_metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		event.ID, sessionUUID, event.EventID, event.InvocationID, event.Author,
		stateColumn(event.Content), event.Timestamp, event.Branch, event.Partial, event.TurnComplete,
		jsonb[session.EventActions]{V: event.Actions}, jsonb[*session.UsageMetadata]{V: event.UsageMetadata},
	)
	if err != nil {
		return errors.Wrap(err, "failed to append event")
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE finance_agent_sessions SET updated_at = $1 WHERE id = $2`, event.Timestamp, sessionUUID)
	return errors.Wrap(err, "failed to touch session")
}

// GetEvents returns events in chronological order. LastRuns keeps the
// newest invocations; Limit then keeps the newest events of those.
func (r *SessionRepository) GetEvents(ctx context.Context, sessionUUID uuid.UUID, opts *session.GetEventsOptions) ([]*session.Event, error) {
	if opts == nil {
		opts = &session.GetEventsOptions{}
	}

	var (
		where = []string{"session_uuid = $1"}
		args  = []interface{}{sessionUUID}
	)
	next := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !opts.After.IsZero() {
		where = append(where, "timestamp >= "+next(opts.After))
	}
	if opts.LastRuns > 0 {
		where = append(where, `invocation_id IN (
			SELECT invocation_id FROM adk_events
			WHERE session_uuid = $1
			GROUP BY invocation_id
			ORDER BY MAX(timestamp) DESC
			LIMIT `+next(opts.LastRuns)+`)`)
	}

	query := `
		SELECT id, session_uuid, event_id, invocation_id, author, content, timestamp, branch,
		       partial, turn_complete, actions, usage_metadata
		FROM adk_events
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY timestamp DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ` + next(opts.Limit)
	}

	var rows []eventRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to get events")
	}

	events := make([]*session.Event, len(rows))
	for i, row := range rows {
		events[len(rows)-1-i] = row.toDomain()
	}
	return events, nil
}

func (r *SessionRepository) GetAppState(ctx context.Context, appName string) (*session.AppState, error) {
	var row struct {
		AppName string                        `db:"app_name"`
		State   jsonb[map[string]interface{}] `db:"state"`
	}
	err := r.db.GetContext(ctx, &row, `SELECT app_name, state FROM adk_app_state WHERE app_name = $1`, appName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrNotFound, "app state %s", appName)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get app state")
	}
	return &session.AppState{AppName: row.AppName, State: row.State.V}, nil
}

func (r *SessionRepository) SetAppState(ctx context.Context, appName string, state map[string]interface{}) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO adk_app_state (app_name, state, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (app_name) DO UPDATE SET state = EXCLUDED.state, updated_at = NOW()`,
		appName, stateColumn(state),
	)
	return errors.Wrap(err, "failed to set app state")
}

func (r *SessionRepository) GetUserState(ctx context.Context, appName, userID string) (*session.UserState, error) {
	var row struct {
		AppName string                        `db:"app_name"`
		UserID  string                        `db:"user_id"`
		State   jsonb[map[string]interface{}] `db:"state"`
	}
	err := r.db.GetContext(ctx, &row,
		`SELECT app_name, user_id, state FROM adk_user_state WHERE app_name = $1 AND user_id = $2`, appName, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrNotFound, "user state %s", userID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user state")
	}
	return &session.UserState{AppName: row.AppName, UserID: row.UserID, State: row.State.V}, nil
}

func (r *SessionRepository) SetUserState(ctx context.Context, appName, userID string, state map[string]interface{}) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO adk_user_state (app_name, user_id, state, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (app_name, user_id) DO UPDATE SET state = EXCLUDED.state, updated_at = NOW()`,
		appName, userID, stateColumn(state),
	)
	return errors.Wrap(err, "failed to set user state")
}

// Package memory holds map-backed repositories for tests and local runs without Postgres.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"finvisor/internal/domain/session"
	"finvisor/pkg/errors"
)

// SessionRepository implements session.Repository in memory
type SessionRepository struct {
	mu        sync.RWMutex
	sessions  map[string]*session.Session
	events    map[uuid.UUID][]*session.Event
	appState  map[string]map[string]interface{}
	userState map[string]map[string]interface{}
}

// NewSessionRepository creates an empty in-memory session repository
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		sessions:  make(map[string]*session.Session),
		events:    make(map[uuid.UUID][]*session.Event),
		appState:  make(map[string]map[string]interface{}),
		userState: make(map[string]map[string]interface{}),
	}
}

func sessionKey(appName, userID, sessionID string) string {
	return appName + "\x00" + userID + "\x00" + sessionID
}

func (r *SessionRepository) Create(_ context.Context, sess *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := sessionKey(sess.AppName, sess.UserID, sess.SessionID)
	if _, ok := r.sessions[key]; ok {
		return errors.Wrap(errors.ErrAlreadyExists, "session exists")
	}
	stored := *sess
	stored.State = copyState(sess.State)
	stored.Events = nil
	r.sessions[key] = &stored
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, appName, userID, sessionID string, opts *session.GetOptions) (*session.Session, error) {
	r.mu.RLock()
	stored, ok := r.sessions[sessionKey(appName, userID, sessionID)]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Wrap(errors.ErrNotFound, "session not found")
	}

	if opts == nil {
		opts = &session.GetOptions{}
	}
	events, err := r.GetEvents(ctx, stored.ID, &session.GetEventsOptions{
		Limit:    opts.NumRecentEvents,
		LastRuns: opts.NumRecentRuns,
		After:    opts.After,
	})
	if err != nil {
		return nil, err
	}

	sess := *stored
	sess.State = copyState(stored.State)
	sess.Events = make([]session.Event, len(events))
	for i, e := range events {
		sess.Events[i] = *e
	}
	return &sess, nil
}

func (r *SessionRepository) List(_ context.Context, appName, userID string) ([]*session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*session.Session
	for _, stored := range r.sessions {
		if stored.AppName != appName || (userID != "" && stored.UserID != userID) {
			continue
		}
		sess := *stored
		sess.State = copyState(stored.State)
		for _, e := range r.events[stored.ID] {
			if e.Author == "user" {
				sess.Title = e.Text()
				break
			}
		}
		out = append(out, &sess)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r *SessionRepository) Delete(_ context.Context, appName, userID, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := sessionKey(appName, userID, sessionID)
	stored, ok := r.sessions[key]
	if !ok {
		return errors.Wrap(errors.ErrNotFound, "session not found")
	}
	delete(r.events, stored.ID)
	delete(r.sessions, key)
	return nil
}

func (r *SessionRepository) UpdateState(_ context.Context, appName, userID, sessionID string, state map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.sessions[sessionKey(appName, userID, sessionID)]
	if !ok {
		return errors.Wrap(errors.ErrNotFound, "session not found")
	}
	stored.State = copyState(state)
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *SessionRepository) AppendEvent(_ context.Context, sessionUUID uuid.UUID, event *session.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var owner *session.Session
	for _, stored := range r.sessions {
		if stored.ID == sessionUUID {
			owner = stored
			break
		}
	}
	if owner == nil {
		return errors.Wrap(errors.ErrNotFound, "session not found")
	}

	stored := *event
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	stored.SessionID = sessionUUID
	r.events[sessionUUID] = append(r.events[sessionUUID], &stored)
	owner.UpdatedAt = stored.Timestamp
	return nil
}

func (r *SessionRepository) GetEvents(_ context.Context, sessionUUID uuid.UUID, opts *session.GetEventsOptions) ([]*session.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if opts == nil {
		opts = &session.GetEventsOptions{}
	}

	all := r.events[sessionUUID]
	keep := lastRuns(all, opts.LastRuns)

	var out []*session.Event
	for _, e := range all {
		if !opts.After.IsZero() && e.Timestamp.Before(opts.After) {
			continue
		}
		if keep != nil && !keep[e.InvocationID] {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[len(out)-opts.Limit:]
	}
	return out, nil
}

// lastRuns returns the set of the n most recent invocation ids, or nil for no limit
func lastRuns(events []*session.Event, n int) map[string]bool {
	if n <= 0 {
		return nil
	}
	keep := make(map[string]bool, n)
	for i := len(events) - 1; i >= 0 && len(keep) < n; i-- {
		keep[events[i].InvocationID] = true
	}
	return keep
}

func (r *SessionRepository) GetAppState(_ context.Context, appName string) (*session.AppState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.appState[appName]
	if !ok {
		return nil, errors.Wrap(errors.ErrNotFound, "app state not found")
	}
	return &session.AppState{AppName: appName, State: copyState(state)}, nil
}

func (r *SessionRepository) SetAppState(_ context.Context, appName string, state map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appState[appName] = copyState(state)
	return nil
}

func (r *SessionRepository) GetUserState(_ context.Context, appName, userID string) (*session.UserState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.userState[appName+"\x00"+userID]
	if !ok {
		return nil, errors.Wrap(errors.ErrNotFound, "user state not found")
	}
	return &session.UserState{AppName: appName, UserID: userID, State: copyState(state)}, nil
}

func (r *SessionRepository) SetUserState(_ context.Context, appName, userID string, state map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userState[appName+"\x00"+userID] = copyState(state)
	return nil
}

func copyState(state map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(state))
	for k, v := range state {
		out[k] = v
	}
	return out
}

package session

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"finvisor/pkg/errors"
	"finvisor/pkg/logger"
)

// Service provides business logic for session management
type Service struct {
	repo Repository
	log  *logger.Logger
}

// NewService creates a new session service
func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		log:  logger.Get().With("component", "session_service"),
	}
}

// CreateSession creates a new session with initial state.
// app: and user: prefixed keys go to the shared state tables, temp: keys are dropped.
func (s *Service) CreateSession(ctx context.Context, appName, userID, sessionID string, initialState map[string]interface{}) (*Session, error) {
	if appName == "" || userID == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "app_name and user_id are required")
	}
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	scoped := splitStateDelta(initialState)
	if err := s.storeShared(ctx, appName, userID, scoped); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sess := &Session{
		ID:        uuid.New(),
		AppName:   appName,
		UserID:    userID,
		SessionID: sessionID,
		State:     scoped.session,
		Events:    []Event{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, errors.Wrap(err, "failed to create session")
	}

	if err := s.mergeStates(ctx, sess); err != nil {
		return nil, errors.Wrap(err, "failed to merge states")
	}

	s.log.Debugw("Created session", "app", appName, "user", userID, "session", sessionID)
	return sess, nil
}

// GetSession retrieves a session with its events
func (s *Service) GetSession(ctx context.Context, appName, userID, sessionID string, opts *GetOptions) (*Session, error) {
	if appName == "" || userID == "" || sessionID == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "app_name, user_id, and session_id are required")
	}

	sess, err := s.repo.Get(ctx, appName, userID, sessionID, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get session")
	}

	if err := s.mergeStates(ctx, sess); err != nil {
		return nil, errors.Wrap(err, "failed to merge states")
	}

	return sess, nil
}

// ListSessions lists all sessions for a user, newest first
func (s *Service) ListSessions(ctx context.Context, appName, userID string) ([]*Session, error) {
	if appName == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "app_name is required")
	}

	sessions, err := s.repo.List(ctx, appName, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list sessions")
	}

	for _, sess := range sessions {
		if err := s.mergeStates(ctx, sess); err != nil {
			s.log.Warnf("Failed to merge states for session %s: %v", sess.SessionID, err)
		}
	}

	return sessions, nil
}

// DeleteSession deletes a session and its events
func (s *Service) DeleteSession(ctx context.Context, appName, userID, sessionID string) error {
	if appName == "" || userID == "" || sessionID == "" {
		return errors.Wrap(errors.ErrInvalidInput, "app_name, user_id, and session_id are required")
	}

	if err := s.repo.Delete(ctx, appName, userID, sessionID); err != nil {
		return errors.Wrap(err, "failed to delete session")
	}

	s.log.Infow("Deleted session", "app", appName, "user", userID, "session", sessionID)
	return nil
}

// AppendEvent persists an event and applies its state delta.
// Partial (streaming) events are ignored. The in-memory session is updated
// with the merged view so later reads in the same run see the new state.
func (s *Service) AppendEvent(ctx context.Context, sess *Session, event *Event) error {
	if sess == nil || event == nil {
		return errors.Wrap(errors.ErrInvalidInput, "session and event are required")
	}

	if event.Partial {
		return nil
	}

	if delta := event.Actions.StateDelta; len(delta) > 0 {
		scoped := splitStateDelta(delta)
		if err := s.storeShared(ctx, sess.AppName, sess.UserID, scoped); err != nil {
			return err
		}
		if len(scoped.session) > 0 {
			persisted := splitStateDelta(sess.State).session
			mergeInto(persisted, "", scoped.session)
			if err := s.repo.UpdateState(ctx, sess.AppName, sess.UserID, sess.SessionID, persisted); err != nil {
				return errors.Wrap(err, "failed to update session state")
			}
		}

		if sess.State == nil {
			sess.State = make(map[string]interface{})
		}
		// temp keys stay visible for the rest of the invocation but are never stored
		mergeInto(sess.State, "", delta)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if err := s.repo.AppendEvent(ctx, sess.ID, event); err != nil {
		return errors.Wrap(err, "failed to append event")
	}

	event.SessionID = sess.ID
	sess.Events = append(sess.Events, *event)
	sess.UpdatedAt = event.Timestamp

	return nil
}

// scopedState is a state map split by key prefix. App and user keys have
// their prefix stripped.
type scopedState struct {
	app, user, session map[string]interface{}
}

// splitStateDelta routes keys by prefix; temp keys are dropped
func splitStateDelta(state map[string]interface{}) scopedState {
	out := scopedState{
		app:     map[string]interface{}{},
		user:    map[string]interface{}{},
		session: map[string]interface{}{},
	}
	for key, value := range state {
		switch {
		case strings.HasPrefix(key, KeyPrefixApp):
			out.app[strings.TrimPrefix(key, KeyPrefixApp)] = value
		case strings.HasPrefix(key, KeyPrefixUser):
			out.user[strings.TrimPrefix(key, KeyPrefixUser)] = value
		case strings.HasPrefix(key, KeyPrefixTemp):
		default:
			out.session[key] = value
		}
	}
	return out
}

func mergeInto(dst map[string]interface{}, prefix string, src map[string]interface{}) {
	for k, v := range src {
		dst[prefix+k] = v
	}
}

// storeShared read-modify-writes the app and user rows touched by scoped
func (s *Service) storeShared(ctx context.Context, appName, userID string, scoped scopedState) error {
	if len(scoped.app) > 0 {
		current, err := s.repo.GetAppState(ctx, appName)
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			return errors.Wrap(err, "failed to update app state")
		}
		next := map[string]interface{}{}
		if current != nil {
			mergeInto(next, "", current.State)
		}
		mergeInto(next, "", scoped.app)
		if err := s.repo.SetAppState(ctx, appName, next); err != nil {
			return errors.Wrap(err, "failed to update app state")
		}
	}

	if len(scoped.user) > 0 {
		current, err := s.repo.GetUserState(ctx, appName, userID)
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			return errors.Wrap(err, "failed to update user state")
		}
		next := map[string]interface{}{}
		if current != nil {
			mergeInto(next, "", current.State)
		}
		mergeInto(next, "", scoped.user)
		if err := s.repo.SetUserState(ctx, appName, userID, next); err != nil {
			return errors.Wrap(err, "failed to update user state")
		}
	}
	return nil
}

// mergeStates overlays app and user state onto the session state under their prefixes
func (s *Service) mergeStates(ctx context.Context, sess *Session) error {
	appState, err := s.repo.GetAppState(ctx, sess.AppName)
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		return errors.Wrap(err, "failed to get app state")
	}
	userState, err := s.repo.GetUserState(ctx, sess.AppName, sess.UserID)
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		return errors.Wrap(err, "failed to get user state")
	}

	merged := make(map[string]interface{}, len(sess.State))
	mergeInto(merged, "", sess.State)
	if appState != nil {
		mergeInto(merged, KeyPrefixApp, appState.State)
	}
	if userState != nil {
		mergeInto(merged, KeyPrefixUser, userState.State)
	}
	sess.State = merged
	return nil
}

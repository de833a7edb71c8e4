package adk

import (
	"context"
	"iter"
	"strings"
	"sync"
	"time"

	"google.golang.org/adk/session"

	domainsession "finvisor/internal/domain/session"
	"finvisor/pkg/errors"
	"finvisor/pkg/logger"
)

// SessionService adapts our domain session service to ADK's session.Service interface
type SessionService struct {
	domainService *domainsession.Service
	historyRuns   int
	log           *logger.Logger
}

// Option configures the SessionService
type Option func(*SessionService)

// WithHistoryRuns limits Get to the events of the last n runs when the caller
// does not ask for a specific number of events. n <= 0 loads the full history.
func WithHistoryRuns(n int) Option {
	return func(s *SessionService) { s.historyRuns = n }
}

// NewSessionService creates a new ADK session service adapter
func NewSessionService(domainService *domainsession.Service, opts ...Option) *SessionService {
	s := &SessionService{
		domainService: domainService,
		log:           logger.Get().With("component", "adk_session_adapter"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ session.Service = (*SessionService)(nil)

// Create creates a new session
func (s *SessionService) Create(ctx context.Context, req *session.CreateRequest) (*session.CreateResponse, error) {
	if req == nil || req.AppName == "" || req.UserID == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "app_name and user_id are required")
	}

	domainSess, err := s.domainService.CreateSession(ctx, req.AppName, req.UserID, req.SessionID, req.State)
	if err != nil {
		return nil, err
	}

	return &session.CreateResponse{Session: s.wrap(domainSess)}, nil
}

// Get retrieves a session
func (s *SessionService) Get(ctx context.Context, req *session.GetRequest) (*session.GetResponse, error) {
	if req == nil || req.AppName == "" || req.UserID == "" || req.SessionID == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "app_name, user_id, and session_id are required")
	}

	opts := &domainsession.GetOptions{
		NumRecentEvents: req.NumRecentEvents,
		After:           req.After,
	}
	if req.NumRecentEvents == 0 && req.After.IsZero() {
		opts.NumRecentRuns = s.historyRuns
	}

	domainSess, err := s.domainService.GetSession(ctx, req.AppName, req.UserID, req.SessionID, opts)
	if err != nil {
		return nil, err
	}

	return &session.GetResponse{Session: s.wrap(domainSess)}, nil
}

// List lists sessions
func (s *SessionService) List(ctx context.Context, req *session.ListRequest) (*session.ListResponse, error) {
	if req == nil || req.AppName == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "app_name is required")
	}

	domainSessions, err := s.domainService.ListSessions(ctx, req.AppName, req.UserID)
	if err != nil {
		return nil, err
	}

	adkSessions := make([]session.Session, len(domainSessions))
	for i, domainSess := range domainSessions {
		adkSessions[i] = s.wrap(domainSess)
	}

	return &session.ListResponse{Sessions: adkSessions}, nil
}

// Delete deletes a session
func (s *SessionService) Delete(ctx context.Context, req *session.DeleteRequest) error {
	if req == nil || req.AppName == "" || req.UserID == "" || req.SessionID == "" {
		return errors.Wrap(errors.ErrInvalidInput, "app_name, user_id, and session_id are required")
	}

	return s.domainService.DeleteSession(ctx, req.AppName, req.UserID, req.SessionID)
}

// AppendEvent persists an event and applies it to the in-memory session,
// so the rest of the run sees the new event and state.
func (s *SessionService) AppendEvent(ctx context.Context, sess session.Session, event *session.Event) error {
	if sess == nil || event == nil {
		return errors.Wrap(errors.ErrInvalidInput, "session and event are required")
	}
	if event.Partial {
		return nil
	}

	wrapped, ok := sess.(*adkSession)
	if !ok {
		// sessions not created by this service must be loaded to get their storage id
		resp, err := s.Get(ctx, &session.GetRequest{AppName: sess.AppName(), UserID: sess.UserID(), SessionID: sess.ID()})
		if err != nil {
			return errors.Wrap(err, "failed to load session")
		}
		wrapped = resp.Session.(*adkSession)
	}

	domainEvent, err := toDomainEvent(event)
	if err != nil {
		return errors.Wrap(err, "failed to convert event")
	}

	wrapped.mu.Lock()
	defer wrapped.mu.Unlock()

	if err := s.domainService.AppendEvent(ctx, wrapped.domain, domainEvent); err != nil {
		return err
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = domainEvent.Timestamp
	}
	wrapped.events = append(wrapped.events, event)
	return nil
}

func (s *SessionService) wrap(d *domainsession.Session) *adkSession {
	if d.State == nil {
		d.State = make(map[string]interface{})
	}
	events := make([]*session.Event, 0, len(d.Events))
	for i := range d.Events {
		events = append(events, toADKEvent(&d.Events[i]))
	}
	return &adkSession{domain: d, events: events}
}

// adkSession implements session.Session over a domain session.
// The domain pointer keeps the storage id so appended events reach the right row.
type adkSession struct {
	mu     sync.RWMutex
	domain *domainsession.Session
	events []*session.Event
}

func (s *adkSession) AppName() string { return s.domain.AppName }
func (s *adkSession) UserID() string  { return s.domain.UserID }
func (s *adkSession) ID() string      { return s.domain.SessionID }

func (s *adkSession) State() session.State {
	return &adkState{sess: s}
}

func (s *adkSession) Events() session.Events {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return adkEvents(append([]*session.Event(nil), s.events...))
}

func (s *adkSession) LastUpdateTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.domain.UpdatedAt
}

// adkState implements session.State on the session's state map
type adkState struct {
	sess *adkSession
}

func (s *adkState) Get(key string) (interface{}, error) {
	s.sess.mu.RLock()
	defer s.sess.mu.RUnlock()
	if val, ok := s.sess.domain.State[key]; ok {
		return val, nil
	}
	return nil, session.ErrStateKeyNotExist
}

// Set changes the in-memory view only; persisted state changes travel as event state deltas
func (s *adkState) Set(key string, val interface{}) error {
	if strings.TrimSpace(key) == "" {
		return errors.Wrap(errors.ErrInvalidInput, "state key is empty")
	}
	s.sess.mu.Lock()
	defer s.sess.mu.Unlock()
	s.sess.domain.State[key] = val
	return nil
}

func (s *adkState) All() iter.Seq2[string, interface{}] {
	return func(yield func(string, interface{}) bool) {
		s.sess.mu.RLock()
		snapshot := make(map[string]interface{}, len(s.sess.domain.State))
		for k, v := range s.sess.domain.State {
			snapshot[k] = v
		}
		s.sess.mu.RUnlock()

		for key, val := range snapshot {
			if !yield(key, val) {
				return
			}
		}
	}
}

// adkEvents implements session.Events
type adkEvents []*session.Event

func (e adkEvents) Len() int { return len(e) }

func (e adkEvents) At(i int) *session.Event {
	if i < 0 || i >= len(e) {
		return nil
	}
	return e[i]
}

func (e adkEvents) All() iter.Seq[*session.Event] {
	return func(yield func(*session.Event) bool) {
		for _, event := range e {
			if !yield(event) {
				return
			}
		}
	}
}

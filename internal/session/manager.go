package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/clientflow/internal/config"
	"github.com/phrazzld/clientflow/internal/domain"
	"github.com/phrazzld/clientflow/internal/events"
	"github.com/phrazzld/clientflow/internal/live"
	"github.com/phrazzld/clientflow/internal/metrics"
	"github.com/phrazzld/clientflow/internal/notify"
	"github.com/phrazzld/clientflow/internal/reminder"
)

// ChangeKind tells listeners whether a session started or ended.
type ChangeKind string

const (
	Opened ChangeKind = "opened"
	Closed ChangeKind = "closed"
)

// Change describes a session lifecycle transition.
type Change struct {
	Kind      ChangeKind
	SessionID string
	User      *domain.User
}

// ErrShuttingDown is returned by Open once CloseAll has run.
var ErrShuttingDown = errors.New("session manager is shutting down")

// Config tunes new sessions.
type Config struct {
	FeedCapacity int
	Reminder     config.ReminderConfig
}

// Manager owns every open session.
type Manager struct {
	broker  *live.Broker
	emitter events.EventEmitter
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.RWMutex
	sessions  map[string]*Session
	listeners []func(Change)
	closed    bool
}

// NewManager creates a session manager. Admin sessions run reminder sweeps
// against broker and emit through emitter.
func NewManager(broker *live.Broker, emitter events.EventEmitter, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		broker:   broker,
		emitter:  emitter,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "session_manager")),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

var _ events.EventHandler = (*Manager)(nil)

// OnSessionChange registers fn to run after every open and close.
func (m *Manager) OnSessionChange(fn func(Change)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Open starts a session for user. The feed starts with a welcome entry and
// admin sessions begin sweeping for reminders straight away. The session
// closes itself at expiresAt.
func (m *Manager) Open(ctx context.Context, user *domain.User, sessionID string, expiresAt time.Time, newAccount bool) (*Session, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	feed := notify.NewFeed(m.cfg.FeedCapacity, m.now)
	feed.AddEntry(domain.NotificationWelcome, domain.WelcomeMessage(user.DisplayName, newAccount), nil)
	s := newSession(sessionID, user, expiresAt, feed, m.broker)
	if user.IsAdmin() {
		s.scheduler = reminder.NewScheduler(m.broker, m.emitter, m.cfg.Reminder, m.logger)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if old, ok := m.sessions[sessionID]; ok {
		m.mu.Unlock()
		return old, nil
	}
	m.sessions[sessionID] = s
	if !expiresAt.IsZero() {
		s.expiry = time.AfterFunc(expiresAt.Sub(m.now()), func() { m.Close(sessionID) })
	}
	m.mu.Unlock()

	metrics.ActiveSessions.WithLabelValues(string(user.Role)).Inc()
	m.logger.Info("session opened",
		slog.String("session_id", sessionID),
		slog.String("user_id", user.ID.String()),
		slog.String("role", string(user.Role)))

	// started after registration so the first sweep's reminders reach this feed
	if s.scheduler != nil {
		if err := s.scheduler.Start(context.WithoutCancel(ctx)); err != nil {
			m.Close(sessionID)
			return nil, err
		}
	}

	m.notify(Change{Kind: Opened, SessionID: sessionID, User: user})
	return s, nil
}

// Get returns the open session with id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Close ends the session with id. It reports whether one was open.
func (m *Manager) Close(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return false
	}

	s.close()
	metrics.ActiveSessions.WithLabelValues(string(s.User.Role)).Dec()
	m.logger.Info("session closed", slog.String("session_id", id))
	m.notify(Change{Kind: Closed, SessionID: id, User: s.User})
	return true
}

// CloseAll ends every session, for shutdown. Later calls to Open fail with
// ErrShuttingDown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	m.closed = true
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Close(id)
	}
}

// Len is the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// HandleEvent adds the event to the feed of every session that may see it.
func (m *Manager) HandleEvent(_ context.Context, event *events.Event) error {
	m.mu.RLock()
	targets := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if event.VisibleTo(s.User) {
			targets = append(targets, s)
		}
	}
	m.mu.RUnlock()

	taskID := event.TaskID
	for _, s := range targets {
		s.Feed.AddEntry(event.NotificationKind(), event.Message, &taskID)
	}
	return nil
}

func (m *Manager) notify(c Change) {
	m.mu.RLock()
	listeners := append([]func(Change){}, m.listeners...)
	m.mu.RUnlock()
	for _, fn := range listeners {
		fn(c)
	}
}

// Package session holds per-user state for signed-in users: the notification
// feed, live task subscriptions and, for the administrator, the reminder
// scheduler. Workflow events are routed to the feeds of the sessions allowed
// to see them.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/phrazzld/clientflow/internal/domain"
	"github.com/phrazzld/clientflow/internal/live"
	"github.com/phrazzld/clientflow/internal/notify"
	"github.com/phrazzld/clientflow/internal/reminder"
	"github.com/phrazzld/clientflow/internal/service/workflow"
)

// Session is the state of one signed-in token.
type Session struct {
	ID        string
	User      *domain.User
	ExpiresAt time.Time
	Feed      *notify.Feed

	broker    *live.Broker
	scheduler *reminder.Scheduler
	expiry    *time.Timer
	done      chan struct{}

	mu       sync.Mutex
	closed   bool
	subs     map[*live.Subscription]struct{}
	watchers map[chan domain.Notification]struct{}
}

func newSession(id string, user *domain.User, expiresAt time.Time, feed *notify.Feed, broker *live.Broker) *Session {
	s := &Session{
		ID:        id,
		User:      user,
		ExpiresAt: expiresAt,
		Feed:      feed,
		broker:    broker,
		done:      make(chan struct{}),
		subs:      make(map[*live.Subscription]struct{}),
		watchers:  make(map[chan domain.Notification]struct{}),
	}
	feed.OnAdd(s.broadcast)
	return s
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Subscribe opens a live view of the tasks this session's user may see. The
// subscription ends with the session at the latest.
func (s *Session) Subscribe(ctx context.Context) *live.Subscription {
	sub := s.broker.Subscribe(ctx, workflow.VisibleFilter(s.User))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		sub.Close()
		return sub
	}
	s.subs[sub] = struct{}{}
	return sub
}

// Watch delivers notifications added to the feed from now on. A slow reader
// misses entries rather than blocking the feed. Call stop when done.
func (s *Session) Watch() (<-chan domain.Notification, func()) {
	ch := make(chan domain.Notification, 16)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.watchers[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.watchers[ch]; ok {
				delete(s.watchers, ch)
				close(ch)
			}
		})
	}
	return ch, stop
}

func (s *Session) broadcast(n domain.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.watchers {
		select {
		case ch <- n:
		default:
		}
	}
}

// close tears the session down. Only the first call does anything.
func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subs := s.subs
	s.subs = nil
	for ch := range s.watchers {
		close(ch)
	}
	s.watchers = nil
	s.mu.Unlock()

	if s.expiry != nil {
		s.expiry.Stop()
	}
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	for sub := range subs {
		sub.Close()
	}
	close(s.done)
}

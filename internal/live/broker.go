// Package live turns a task store into a change feed: every successful write
// through the Broker pushes a fresh snapshot to each matching subscriber.
package live

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/clientflow/internal/domain"
	"github.com/phrazzld/clientflow/internal/metrics"
	"github.com/phrazzld/clientflow/internal/store"
)

// Broker wraps a TaskStore. Reads pass through; writes notify subscribers.
type Broker struct {
	store.TaskStore

	logger *slog.Logger
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
}

// NewBroker creates a Broker around tasks.
func NewBroker(tasks store.TaskStore, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		TaskStore: tasks,
		logger:    logger.With(slog.String("component", "live_broker")),
		subs:      make(map[*Subscription]struct{}),
	}
}

var _ store.TaskStore = (*Broker)(nil)

// Subscription delivers task snapshots until it is closed or its context ends.
// Slow readers only ever see the latest snapshot.
type Subscription struct {
	C <-chan []*domain.Task

	out     chan []*domain.Task
	dirty   chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
	closing sync.Once
}

// Subscribe starts a subscription for tasks matching filter. The first
// snapshot is delivered immediately.
func (b *Broker) Subscribe(ctx context.Context, filter store.TaskFilter) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan []*domain.Task, 1)
	sub := &Subscription{
		C:      out,
		out:    out,
		dirty:  make(chan struct{}, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	sub.dirty <- struct{}{}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	metrics.LiveSubscribers.Inc()

	go b.run(ctx, sub, filter)
	return sub
}

// Close stops the subscription and waits for its goroutine to exit. C is
// closed afterwards. Safe to call more than once.
func (s *Subscription) Close() {
	s.closing.Do(s.cancel)
	<-s.done
}

// SubscriberCount reports active subscriptions.
func (b *Broker) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broker) run(ctx context.Context, sub *Subscription, filter store.TaskFilter) {
	defer func() {
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
		metrics.LiveSubscribers.Dec()
		close(sub.out)
		close(sub.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.dirty:
		}

		tasks, err := b.TaskStore.List(ctx, filter)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logger.Error("failed to load snapshot", slog.String("error", err.Error()))
			continue
		}

		// replace an unread snapshot rather than block
		select {
		case <-sub.out:
		default:
		}
		select {
		case sub.out <- tasks:
		case <-ctx.Done():
			return
		}
	}
}

func (b *Broker) publish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		select {
		case sub.dirty <- struct{}{}:
		default:
		}
	}
}

// Create implements store.TaskStore.Create
func (b *Broker) Create(ctx context.Context, task *domain.Task) error {
	if err := b.TaskStore.Create(ctx, task); err != nil {
		return err
	}
	b.publish()
	return nil
}

// UpdateStatus implements store.TaskStore.UpdateStatus
func (b *Broker) UpdateStatus(ctx context.Context, task *domain.Task, from domain.TaskStatus) error {
	if err := b.TaskStore.UpdateStatus(ctx, task, from); err != nil {
		return err
	}
	b.publish()
	return nil
}

// TouchReminder implements store.TaskStore.TouchReminder
func (b *Broker) TouchReminder(ctx context.Context, id uuid.UUID, prev, now time.Time) (bool, error) {
	ok, err := b.TaskStore.TouchReminder(ctx, id, prev, now)
	if err == nil && ok {
		b.publish()
	}
	return ok, err
}

// Delete implements store.TaskStore.Delete
func (b *Broker) Delete(ctx context.Context, id uuid.UUID) error {
	if err := b.TaskStore.Delete(ctx, id); err != nil {
		return err
	}
	b.publish()
	return nil
}

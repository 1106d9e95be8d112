// Package notify keeps the per-session notification feed.
package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/clientflow/internal/domain"
)

// DefaultCapacity is how many entries a feed keeps.
const DefaultCapacity = 10

// Feed is a bounded, newest-first list of notifications. It is safe for
// concurrent use.
type Feed struct {
	capacity int
	now      func() time.Time

	mu      sync.Mutex
	nextID  uint64
	entries []domain.Notification
	onAdd   func(domain.Notification)
}

// NewFeed creates an empty feed. Non-positive capacity selects
// DefaultCapacity; a nil clock selects time.Now.
func NewFeed(capacity int, now func() time.Time) *Feed {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if now == nil {
		now = time.Now
	}
	return &Feed{capacity: capacity, now: now}
}

// Add stamps message with the current time and puts it at the front,
// evicting the oldest entry when full.
func (f *Feed) Add(message string) domain.Notification {
	return f.AddEntry(domain.NotificationKind(""), message, nil)
}

// AddEntry is Add with a kind and an optional related task.
func (f *Feed) AddEntry(kind domain.NotificationKind, message string, taskID *uuid.UUID) domain.Notification {
	f.mu.Lock()
	f.nextID++
	n := domain.Notification{
		ID:        f.nextID,
		Kind:      kind,
		Message:   message,
		TaskID:    taskID,
		CreatedAt: f.now(),
	}

	entries := make([]domain.Notification, 0, f.capacity)
	entries = append(entries, n)
	entries = append(entries, f.entries...)
	if len(entries) > f.capacity {
		entries = entries[:f.capacity]
	}
	f.entries = entries
	onAdd := f.onAdd
	f.mu.Unlock()

	if onAdd != nil {
		onAdd(n)
	}
	return n
}

// OnAdd registers fn to be called after every Add. Only one callback is kept.
func (f *Feed) OnAdd(fn func(domain.Notification)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onAdd = fn
}

// List returns a copy of the entries, newest first.
func (f *Feed) List() []domain.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Notification{}, f.entries...)
}

// Clear removes every entry. IDs keep increasing afterwards.
func (f *Feed) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = nil
}

// Len is the number of entries held.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// FormatAge renders how long ago created was, relative to now: minutes under
// an hour, hours under a day, days otherwise. Future times read as 0m ago.
func FormatAge(created, now time.Time) string {
	age := now.Sub(created)
	if age < 0 {
		age = 0
	}
	switch {
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age/time.Minute))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age/time.Hour))
	default:
		return fmt.Sprintf("%dd ago", int(age/(24*time.Hour)))
	}
}

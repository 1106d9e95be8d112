// Package reminder nudges the administrator about pending tasks that have
// gone quiet. Deciding which tasks are due is a pure function; the Scheduler
// runs it on a cron tick and writes results back with compare-and-set.
package reminder

import (
	"time"

	"github.com/phrazzld/clientflow/internal/domain"
)

const (
	DefaultInterval  = 60 * time.Second
	DefaultThreshold = 4 * time.Hour
)

// Decision is a reminder that should fire for Task. Previous is the
// last_reminder value the write-back must still find in the store.
type Decision struct {
	Task     *domain.Task
	Previous time.Time
	Message  string
}

// Decide returns one decision per pending task whose last reminder is at
// least threshold before now, in input order.
func Decide(tasks []*domain.Task, now time.Time, threshold time.Duration) []Decision {
	var out []Decision
	for _, t := range tasks {
		if !t.ReminderDue(now, threshold) {
			continue
		}
		out = append(out, Decision{
			Task:     t,
			Previous: t.LastReminder,
			Message:  domain.ReminderMessage(t.Title, t.ClientName),
		})
	}
	return out
}

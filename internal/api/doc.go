// Package api exposes the task workflow over HTTP: JSON endpoints for
// identity, tasks, notifications and the admin summary, plus a Server-Sent
// Events stream of live task snapshots and feed entries.
package api

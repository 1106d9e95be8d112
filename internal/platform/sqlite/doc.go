// Package sqlite provides embedded SQLite implementations of the task and
// user stores, for single-machine deployments and for tests.
package sqlite

// Package postgres provides PostgreSQL implementations of the task and user
// stores defined in internal/store, plus the embedded goose migrations that
// create their schema.
package postgres

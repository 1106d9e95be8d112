// Package store defines the persistence contracts for tasks, users and
// attachment blobs. Implementations live under internal/platform; business
// code depends only on these interfaces.
package store

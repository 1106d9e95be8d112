// Package attachment stages image and video files chosen for a task
// submission. It enforces per-mode count and size limits, detects the media
// kind from file content and renders previews before anything is uploaded.
package attachment

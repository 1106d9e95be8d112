// Package events carries workflow events from the services that produce
// them to the components that react: session feeds, push notifications and
// the NATS bridge.
//
// The primary components are:
// - Event: a task workflow occurrence with its user-facing message
// - EventHandler: Interface for components that can handle events
// - EventEmitter: Interface for components that can emit events
package events

// Package notifications publishes operator alerts to ntfy.
//
// Only conditions that need a human are published: a message dead-lettered
// after exhausting its delivery attempts and a shutdown that ran out of time
// with handlers still in flight. NewService returns a no-op Service when no
// topic is configured, so callers never check for nil.
package notifications

// Package notifications delivers batch events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// the [notifications] section and degrades to a no-op when no topic is set.
// Events cover the batch milestones (started, completed, archive written) so
// callers emit consistent messages without duplicating HTTP glue.
package notifications

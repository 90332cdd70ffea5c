// Package logging builds the slog loggers used across filerelay.
//
// Terminal output uses a console handler that puts the component, message ID,
// and delivery count in a header line; files always receive JSON so that
// `filerelay logs` can filter them. WarnWithContext and ErrorWithContext
// guarantee event_type and error_hint on operator-facing records.
// CleanupOldLogs prunes per-run log files past the retention window.
package logging

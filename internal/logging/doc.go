// Package logging wires log/slog with the console and JSON handlers used by
// the daemon and CLI, plus the standardized field keys shared across the
// pipeline (component, session_id, stage, event_type).
package logging

// Package profiling generates the per-session developmental profile and
// coaching suggestions and validates them against an embedded JSON schema
// before persisting. The stage is best effort and never fails a session.
package profiling

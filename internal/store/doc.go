// Package store persists sessions, timelines, child records, developmental
// profiles, and milestone progression in SQLite.
package store

// Package api serves the session HTTP surface: the upload hooks that create
// and hand off sessions, and the read-only status and report endpoints.
// Authentication is an optional bearer token; when no token is configured
// every request passes through.
package api

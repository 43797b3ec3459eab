// Package daemon ties the long-running pieces together: the session store,
// the pipeline supervisor, and the HTTP API, guarded by a flock-based
// single-instance lock.
package daemon

// Command sproutd is the long-running analysis daemon: it owns the session
// store, the pipeline workers, and the HTTP API.
package main

// Package config loads, normalizes, and validates the TOML configuration that
// drives the Sprout daemon: filesystem paths, transcription and reasoning
// provider settings, pipeline retry policy, notifications, and logging.
package config

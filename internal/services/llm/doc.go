// Package llm wraps an OpenAI-compatible chat completion endpoint as the
// pipeline's reasoning capability. Every request pins temperature 0 and a
// JSON response format; callers decode the returned payload with DecodeJSON
// and validate the shape themselves.
package llm

// Package notifications delivers outbound push events through ntfy: the
// permanent-failure contract event, optional completion notices, and a test
// hook for operators. Without a configured topic the service is a noop.
package notifications

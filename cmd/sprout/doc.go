// Command sprout is the operator CLI: session status tables, report
// rendering, configuration utilities, and a notification test hook.
package main

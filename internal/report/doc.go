// Package report assembles the downstream session contract: the coded
// transcript, behavior code aggregates, the developmental profile, and the
// child's milestone states. The HTTP API and the CLI both render from it.
package report

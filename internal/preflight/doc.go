// Package preflight provides readiness checks for the filesystem paths and
// network endpoints filerelay depends on.
//
// The daemon runtime calls RunAll before starting the producer and consumer
// and refuses to start when a check fails, so a missing watch directory or an
// unreachable broker is reported once at startup instead of as a stream of
// per-message failures. Checks are gated by the configured role and backends.
package preflight

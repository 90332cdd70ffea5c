// Package daemonrun hosts the foreground daemon process: log files and
// retention, the pid file, preflight checks, the optional metrics endpoint,
// and signal-driven shutdown bounded by daemon.shutdown_timeout.
package daemonrun

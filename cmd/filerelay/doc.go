// Command filerelay runs the file relay daemon and its maintenance tools.
//
// `filerelay run` starts the producer and/or consumer in the foreground;
// `status`, `stop`, and `logs` inspect or control a running daemon. `scan`
// announces the watch directory once, `queue` inspects the SQLite queue,
// `config` creates or prints configuration, and `notify test` checks ntfy
// delivery.
package main

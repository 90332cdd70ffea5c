// Package daemon coordinates the long-running filerelay process.
//
// It ties the producer loop and the consumer subscription to one
// cancellable context, with flock-based locking to prevent multiple
// instances over the same state directory. Stop cancels that context, waits
// for the scan in progress, then closes the consumer, which waits for
// in-flight handlers before releasing the queue connection.
//
// Keep orchestration logic here: scanning and message handling live in the
// producer and consumer packages.
package daemon

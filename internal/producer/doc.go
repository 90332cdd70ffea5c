// Package producer scans the watched directory and sends one queue message
// per regular file found.
//
// A Producer scans once on start and then on every scan interval until its
// context is cancelled. It keeps no memory of earlier scans: a file that has
// not been relocated yet is announced again on the next scan, and the
// consumer's relocation is what ends the repetition. Per-file send failures
// are logged and counted; they never stop the scan or the loop.
package producer

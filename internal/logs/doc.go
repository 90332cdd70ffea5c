// Package logs reads the daemon's JSON log files for `filerelay logs`.
//
// Last returns the final lines of a file with bounded memory, Follow polls
// for appended lines, and Stream combines both behind a line filter so the
// CLI can trace a single message or file through the pipeline. Follow treats
// a file that shrinks (a new run replacing the filerelay.log pointer) as a
// fresh file and starts from its beginning.
package logs

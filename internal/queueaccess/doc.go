// Package queueaccess opens the configured queue backend as owned handles.
//
// The daemon gets one Sender for the producer and one Receiver for the
// consumer; each handle owns its own connection and is closed once by its
// owner. The CLI uses OpenAdmin for maintenance on the SQLite backend.
package queueaccess

// Package consumer handles file messages: it checks that the file is free,
// uploads its content to the object store, moves it into the processed
// directory next to it, and acknowledges the message.
//
// Process runs those steps and returns an Outcome plus the error that caused
// it. HandleMessage is the queue handler: it runs Process, then settles.
//
//	completed, already_processed  -> Complete
//	deferred (file locked)        -> left unsettled; the lock timeout redelivers
//	failed                        -> left unsettled, or dead-lettered once the
//	                                 delivery count reaches max_delivery_attempts
//
// Upload happens before the move, so a crash between the two uploads the
// same content again on redelivery. The upload is an upsert, which makes
// the repeat harmless.
package consumer

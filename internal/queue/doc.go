// Package queue defines the message queue contract shared by the producer and
// consumer, the bounded-concurrency dispatcher every receiver uses, and a
// durable SQLite-backed broker.
//
// Messages are delivered at least once under peek-lock semantics: a receiver
// claims a message for the visibility timeout, and unless the holder settles
// it with Complete, Abandon, or DeadLetter before the lock lapses, the message
// becomes visible again with an incremented delivery count.
//
// The SQLite broker is the default backend. Broker-specific backends live in
// internal/services/rabbitmq and internal/services/jetstream; all of them drive
// handlers through Dispatcher so concurrency limits, shutdown draining, and
// exception reporting behave the same regardless of transport.
//
// Schema changes bump the version in schema.go; operators clear the database
// to adopt the new schema.
package queue

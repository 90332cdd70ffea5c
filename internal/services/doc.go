// Package services defines shared utilities consumed by the producer, the
// consumer, and the broker and object store integrations.
//
// Key responsibilities:
//   - Context helpers that stamp message IDs, delivery counts, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper, and the mapping from a
//     handling failure to a settlement decision (complete vs redeliver).
//
// The subpackages wrap one external system each: rabbitmq and jetstream
// implement the queue contract, s3 and minio implement object uploads.
package services

// Package config loads, normalizes, and validates filerelay configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// FILERELAY_QUEUE_CONNECTION_STRING. The Config type centralizes every knob
// the producer, consumer, and CLI need so broker and storage credentials are
// discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical backend names, and clear validation errors.
package config

// Package objectstore defines the upsert-by-key contract the consumer uploads
// through and opens the configured backend behind it.
//
// Keys are derived from the source file's base name by ObjectKey, which
// normalises to Unicode NFC so a name typed on macOS and one typed on Linux
// address the same object. The filesystem backend lives here; the S3 and
// MinIO backends live under internal/services.
package objectstore

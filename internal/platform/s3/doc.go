// Package s3 is a thin client for S3-compatible object storage.
//
// It backs the remote state store: each plan's state document is a single
// object, replaced with one PUT. Missing keys and buckets surface as
// [ErrNotFound] so callers can tell "absent" apart from transport errors.
package s3

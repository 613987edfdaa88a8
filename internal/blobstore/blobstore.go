// Package blobstore provides triage.BlobStore implementations: MinIO (any
// S3-compatible endpoint) and an in-memory store for development and tests.
package blobstore

import "errors"

// ErrNotFound is returned by Get when the bucket or object does not exist.
var ErrNotFound = errors.New("object not found")

// ErrTooLarge is returned by Get when an object exceeds MaxObjectSize.
var ErrTooLarge = errors.New("object too large")

// MaxObjectSize bounds how much of a source object is read into memory.
const MaxObjectSize = 1 << 20

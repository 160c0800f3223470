// Package objectstore defines the S3-compatible storage contract used for
// model artifacts, plus an in-memory implementation for tests.
//
// Concrete drivers live in the minio and s3 subpackages. Keys are always
// slash separated regardless of the host platform.
package objectstore

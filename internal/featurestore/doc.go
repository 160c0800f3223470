// Package featurestore keeps a durable, deduplicated table of per-image
// feature records.
//
// Records are keyed by the MD5 digest of their source path, so upserting the
// same path twice replaces the earlier record wholesale. Each record carries
// a label, a capture timestamp assigned by the store, a sparse bag of scalar
// attributes, and optional opaque metadata. Different records may carry
// different attribute names; persisted files hold the union of all columns.
//
// Persistence goes through a Backend. JSONBackend (the default) writes a
// tabular features.json document, SQLiteBackend writes a features.db table,
// and MemoryBackend exists for tests. Both file backends refresh a
// metadata.json descriptor after every save.
//
// Every mutation stages a new table, persists it, and only then swaps it in,
// so a failed save leaves the in-memory view untouched. The store is safe for
// concurrent use within one process; separate processes are only protected
// from torn files by the optional advisory lock.
package featurestore

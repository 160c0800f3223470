// Package sqliteutil holds the SQLite plumbing shared by the feature store's
// SQLite backend and the experiment tracker: connection setup with the
// standard pragmas, SQLITE_BUSY retries, and identifier quoting.
package sqliteutil

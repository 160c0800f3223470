// Package tracking records experiment runs, their parameters, and their
// metrics in a SQLite database.
//
// A Tracker owns the database. StartRun creates a Run in the RUNNING state;
// the Run logs parameters (last write wins per key) and metrics (every
// observation is kept with its step) and is finally ended as FINISHED or
// FAILED. ListRuns and GetRun read the history back for the CLI.
//
// Schema changes bump schemaVersion in schema.go; users delete the tracking
// database to adopt the new schema.
package tracking

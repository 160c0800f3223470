// Package logs reads the per-run JSON log files written by the pipeline.
//
// Tail returns the last N lines of a file, or everything after a byte offset,
// with bounded memory. Follow keeps polling from an offset until the context
// ends. ParseEntry decodes one JSON line into an Entry for display; lines that
// are not JSON come back as plain messages.
package logs

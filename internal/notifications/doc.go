// Package notifications announces pipeline run outcomes via ntfy.
//
// NewService returns an ntfy-backed Service when a topic URL is configured and
// a no-op otherwise. Callers publish an Event with a loosely typed Payload;
// the service formats title, body, tags, and priority per event and drops
// events the configuration suppresses.
package notifications

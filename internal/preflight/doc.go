// Package preflight provides readiness checks for the filesystem paths and
// external services greenr depends on.
//
// These checks run in two contexts:
//   - "greenr pipeline run" calls RunAll before starting and refuses to run
//     when a check fails.
//   - "greenr status" uses the individual check functions to display health.
//
// Object storage checks are gated by object_storage.enabled.
package preflight

// Package main hosts the greenr CLI entrypoint and command graph.
//
// The Cobra command tree covers configuration scaffolding, feature store
// inspection and edits, dataset download, experiment run history, model
// artifact storage, and the feature pipeline. commandContext centralizes
// configuration resolution, logging setup, and store construction so
// subcommands only deal with presentation.
//
// Every listing command accepts the global --json flag; tables are rendered
// with go-pretty otherwise.
package main

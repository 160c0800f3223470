// Package pipeline runs the feature half of a training run as one fixed
// sequence: take the single-run lock, optionally download the dataset, start
// a tracking run, extract and store features for the first N images of each
// class, log store statistics, optionally publish a model directory, and end
// the run.
//
// Extraction and upsert failures for individual images are logged and
// counted; they never fail the run. Each run also writes a JSON log to
// <log_dir>/runs/<run_id>.log.
package pipeline

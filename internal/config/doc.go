// Package config loads, normalizes, and validates greenr configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// MINIO_ACCESS_KEY. The Config type centralizes every knob the CLI and the
// feature pipeline need, so data, feature store, and tracking locations are
// discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config

// Package config loads, normalizes, and validates aggregator configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// ANILIST_ACCESS_TOKEN and OSHIRASE_MONGODB_URI. The Config type centralizes
// every knob the worker, CLI, and read API need so source credentials, storage
// drivers, and matching thresholds are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical driver names, and clear validation errors.
package config

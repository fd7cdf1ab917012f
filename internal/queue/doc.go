// Package queue carries job tokens from producers to the worker.
//
// Delivery is at-least-once: a claimed token sits in the failed list until the
// worker clears it, so a crash mid-run leaves it there for Recover. Redis lists
// are the primary transport; a SQLite table serves single-host installs.
//
// The SQLite schema lives in schema.sql. Bump schemaVersion when it changes;
// users delete the queue database to adopt the new schema.
package queue

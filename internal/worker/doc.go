// Package worker implements the long-running job loop.
//
// Each pass checks the queue connection, claims one token (moving it to the
// failed list), runs the pipeline for run:all or run:user:<id>, and clears the
// failed list. A retryable pipeline failure requeues the token instead, so the
// next pass tries again. Unknown tokens are dropped silently. A flock on the
// configured lock path keeps a single worker per host.
package worker

// Package services defines shared utilities consumed by the pipeline
// components and source adapters.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, source names, and job
//     tokens for logging.
//   - Structured error markers plus the Wrap helper that let the coordinator,
//     worker, and CLI classify failures as retryable or fatal.
//
// Use these helpers when wiring new components so operational behaviour (error
// classification, observability) stays uniform across the pipeline.
package services

// Package aggregator coordinates one pipeline run.
//
// A run reads the whole-run cache first. On a miss it extracts the list and
// every enabled secondary source concurrently, enriches the records through
// the transform orchestrator (alt titles, then schedule, then the latest
// releases), upserts owner, lists, and alias entries concurrently, and caches
// the result for aggregator.ttl. The first source failure aborts the run
// before anything is written.
//
// Runner adapts a run to the worker's job loop.
package aggregator

// Package transform runs the enrichment stages over a batch of list entries.
//
// Records are independent and processed in parallel; the stages for a single
// record run sequentially so alias resolution can feed later title lookups.
// Stage failures are contained to the record and stage that produced them.
package transform

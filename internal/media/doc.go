// Package media defines the records the aggregator moves between sources,
// the matcher, and the document store: list entries, broadcast schedules,
// latest releases, alias lists, and the list owner.
//
// Every persisted type exposes ContentHash, an explicit per-type field list
// digest used by the store for change detection.
package media

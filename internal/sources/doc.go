// Package sources holds what the external source adapters share: extraction
// options, the Extractor contract, and the HTTP request helper that classifies
// failures with service markers.
//
// Each adapter lives in its own subpackage: anilist for the user's lists,
// subsplease for the broadcast schedule and release feed, mangadex for the
// latest chapters, and alttitles for the hand-maintained alias collection.
package sources

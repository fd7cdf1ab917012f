// Package match resolves list entries against keyed extras sets.
//
// Resolution is a fixed ladder of exact lookups (id, title, english title,
// alt titles) followed by a thresholded fuzzy fallback. Callers pick the
// threshold per set; exact-title sources typically use 0.8 or higher.
package match

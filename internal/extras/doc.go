// Package extras models secondary-source records as one tagged union with a
// uniform key/payload shape, and groups them into keyed sets the matcher
// resolves list entries against.
//
// Schedule and latest-release sets are keyed by normalized title; alias sets
// are keyed by list-entry id.
package extras

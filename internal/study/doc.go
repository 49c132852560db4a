// Package study selects study decks from the local cache and checks typed
// answers against them.
//
// Selection turns a Query (section, level, learned-only flag, sort mode) into
// an ordered list of Items. A Deck wraps selection with the presentation state
// a front-end needs: the item list, a loading flag, the last error and a
// cursor. A Session tracks which items were answered correctly since the deck
// was last loaded.
//
// Nothing in this package writes to the cache.
package study

// Package schema defines the records cached from the WaniKani API.
//
// # Overview
//
// Two record collections are cached locally:
//
//   - Subjects: kanji, vocabulary and kana-only vocabulary entries.
//   - Assignments: the learner's progress for one subject.
//
// Both are keyed by the numeric id assigned by the remote service. Ids are stable
// across syncs, so a record fetched twice replaces the earlier copy (last write wins).
//
// # Kinds
//
// Kind is the discriminant shared by subjects and assignments:
//
//	kanji           -> readings carry an onyomi/kunyomi/nanori type
//	vocabulary      -> readings have no type
//	kana_vocabulary -> no readings; the characters are the reading
//
// Consumers switch on Kind exhaustively; an unknown kind is a decoding error,
// never a silent default.
//
// # Timestamps
//
// UpdatedAt mirrors the API's data_updated_at field and drives incremental sync:
// the greatest UpdatedAt stored for a kind is the cursor for the next request.
package schema

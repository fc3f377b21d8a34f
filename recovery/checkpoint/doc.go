// Package checkpoint bounds recovery time by recording journal positions.
//
// A checkpoint captures the journal's head and tail plus the metadata and
// allocation sequence counters at one instant. Recovery then replays only
// [checkpoint.JournalSeq, journal.Head()) instead of the whole journal.
//
// Checkpoints are totally ordered by captured sequence and retained up to a
// configured maximum; creating one past the limit evicts the oldest. The
// manager persists checkpoint metadata through a Store (sqlite-backed in
// production, in-memory for tests) so the latest checkpoint survives a
// restart — which is exactly when it is needed.
package checkpoint

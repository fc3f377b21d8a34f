// Package journal defines the write-ahead journal contract consumed by the
// transaction and recovery cores, and provides a file-backed implementation.
//
// # Overview
//
// The journal is an append-only sequence of records, each stamped with a
// monotonically increasing sequence number. Three counters describe the
// journal at any moment:
//
//   - Tail: the oldest retained sequence (advanced by checkpoint truncation)
//   - Current: the last assigned sequence
//   - Head: the next sequence to be assigned (Current + 1)
//
// Recovery replays the half-open range [start, Head), where start is either
// the latest checkpoint's captured sequence or Tail when no checkpoint
// exists.
//
// # Record Protocol
//
// A transaction writes a Begin record when it opens, zero or more Op records
// as operations are attached, and exactly one terminal record (Commit or
// Abort) when it finishes. A Begin record inside a scanned range with no
// matching terminal record in that range marks a partial transaction.
//
// Link records carry explicit replay-ordering constraints: the header's
// prerequisite sequence must be applied before the dependent sequence stored
// in the record's 8-byte payload. Op records may carry a prerequisite for
// their own sequence inline in the header.
//
// # Durability
//
// Begin and terminal records are synced to disk when written (fdatasync on
// Linux, F_FULLFSYNC on macOS). Op records are written immediately but only
// synced at commit, so a crash can leave a Begin plus a prefix of the
// transaction's Op records on disk with no terminal record.
package journal

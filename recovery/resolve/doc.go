// Package resolve handles the two ordering problems replay leaves behind:
// transactions the crash cut short, and records whose effects must land in a
// specific order.
//
// A partial transaction is a Begin record with no Commit or Abort for the
// same transaction id anywhere in the scanned range. Its operations never
// became durable as a unit, so each is unwound according to its kind: plain
// writes and appends are discarded, creates are undone, and deletes are
// restored from the pre-image carried in the record payload.
//
// Dependency edges come from two places: an Op record's prerequisite header
// field, and standalone Link records whose header names the prerequisite and
// whose payload names the dependent. Order runs Kahn's algorithm over the
// edge set and yields a sequence order that honors every edge, preferring
// the lowest sequence among ready records so independent records keep their
// journal order. A cycle is unresolvable and fails the pass.
package resolve

// Package deadlock detects and resolves deadlocks among live cross-layer
// transactions.
//
// The detector runs on a fixed interval. Each pass builds a wait-for graph
// from the engine's lock tables: an edge Ti → Tj means Ti is blocked on a
// resource Tj holds. A cycle in that graph is a deadlock; the detector picks
// one victim per cycle and aborts it through the transaction manager, which
// the victim's caller observes as a failed commit.
//
// Victim selection minimizes rollback cost: the lowest-priority member of
// the cycle loses; on a priority tie, the most recently started member
// (least work to redo) loses.
package deadlock

// Package txn implements the cross-layer transaction manager: a single-node
// two-phase-commit engine spanning the base storage layer, the property-graph
// layer, and the semantic-event layer.
//
// # Overview
//
// A cross-layer transaction collects operations targeting one or more layers,
// then commits them atomically: every participating layer first prepares its
// changes, and only when all layers are prepared does the engine commit. The
// storage layer commits first by committing the underlying journal
// transaction; that journal commit is the irrevocable point of the protocol.
//
// Transaction lifecycle:
//  1. Begin(): allocate the transaction, open the journal sub-transaction
//     eagerly when the storage layer participates
//  2. AddOperation(): attach per-layer operations (INIT state only)
//  3. Commit(): prepare all layers, commit storage, commit remaining layers
//  4. Release(): drop the caller's reference; the last holder frees it
//
// # State Machine
//
// Legal transitions:
//
//	INIT → PREPARING → PREPARED → COMMITTING → COMMITTED
//	any non-terminal → ABORTING → ABORTED
//	PREPARING | COMMITTING → FAILED
//
// COMMITTED, ABORTED and FAILED are terminal; a transaction never leaves a
// terminal state.
//
// # Concurrency
//
// Begin/AddOperation/Commit/Abort are synchronous caller-thread calls and may
// block on journal I/O. The registry's structural lock is distinct from each
// transaction's own lock; statistics are lock-free atomics. The deadlock
// detector (txn/deadlock) and consistency auditor (txn/audit) run as
// independent periodic background tasks against the same registry.
package txn

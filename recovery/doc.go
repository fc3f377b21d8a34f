// Package recovery rebuilds engine state from the journal after a crash.
//
// # Overview
//
// A recovery run walks a fixed sequence of phases: pick the start sequence
// (the latest checkpoint's captured sequence, or the journal tail), scan the
// range for records, partial transactions and dependency edges, replay the
// committed operations — in dependency order when edges exist, across a
// worker pool otherwise — unwind the partial transactions, and optionally
// cut a fresh checkpoint. One run is active at a time; admission is a
// compare-and-swap on the orchestrator state.
//
// Each run carries a uuid for log correlation, exposes live progress
// (rate, ETA, percent complete) to a periodic reporter, and is cancelled
// through its context — including by the stall watchdog when no progress is
// made inside the configured window.
//
// Sub-packages: checkpoint persists and retains recovery start points,
// replay reads and applies journal records, resolve handles partial
// transactions and dependency ordering.
package recovery

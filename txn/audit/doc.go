// Package audit checks pairwise agreement between the storage, graph and
// semantic views of the same logical state.
//
// The storage layer is authoritative. Each audit pass pulls the entity
// id → version map from every layer and flags three divergence kinds:
//
//   - missing: storage has the entity, the derived layer does not
//   - stale: both have it, the derived layer's version lags
//   - orphaned: the derived layer has an entity storage no longer has
//
// A repair pass resolves each divergence by re-deriving (or dropping) the
// entity in the lagging layer from the authoritative one. The auditor runs
// on its own interval, independently of transactions, and also exposes
// on-demand checks, repairs, and point-in-time cross-layer snapshots.
package audit

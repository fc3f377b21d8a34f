package txn

import "context"

// LayerHooks is implemented by the graph and semantic collaborators. The
// engine never interprets the returned sub-transaction handle; it only
// threads it back into Commit/Abort.
//
// The transaction's declared isolation level is available to every hook via
// t.Isolation(); honoring it is the layer's responsibility.
type LayerHooks interface {
	// Prepare readies the layer's changes for t and returns the layer's
	// opaque sub-transaction handle. A Prepare error fails the whole
	// transaction before anything is durable.
	Prepare(ctx context.Context, t *Txn) (handle any, err error)

	// Commit durably applies the prepared changes. Called only after the
	// storage layer's journal commit succeeded.
	Commit(ctx context.Context, t *Txn, handle any) error

	// Abort discards prepared changes. handle may be nil when Prepare was
	// never reached.
	Abort(ctx context.Context, t *Txn, handle any) error
}

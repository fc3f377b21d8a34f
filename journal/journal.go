package journal

import "errors"

var (
	// ErrClosed indicates an operation on a closed journal.
	ErrClosed = errors.New("journal: closed")
	// ErrTxnDone indicates an operation on a transaction that already wrote
	// its terminal record.
	ErrTxnDone = errors.New("journal: transaction already terminated")
	// ErrCorrupt indicates the journal file failed structural validation.
	ErrCorrupt = errors.New("journal: corrupt journal file")
)

// Journal is the narrow write-ahead-journal contract the transaction and
// recovery cores consume. Implementations must assign strictly increasing
// sequence numbers across all records.
type Journal interface {
	// Begin opens a journal transaction, durably writing its Begin record.
	// hintSize is the expected total payload size in bytes (used for
	// preallocation); kind is the dominant operation kind.
	Begin(hintSize int, kind OpKind) (Txn, error)

	// Head returns the next sequence number to be assigned (Current + 1).
	Head() uint64
	// Tail returns the oldest retained sequence number.
	Tail() uint64
	// Current returns the last assigned sequence number, 0 if none.
	Current() uint64

	// BlockSize returns the journal's fixed block size in bytes.
	BlockSize() int64
	// BlockCount returns the number of blocks the journal currently spans.
	BlockCount() int64
}

// Txn is an open journal transaction handle. The storage layer's per-layer
// sub-transaction is exactly one of these; other layers use their own opaque
// handles.
type Txn interface {
	// ID returns the journal-assigned transaction id.
	ID() uint64
	// BeginSeq returns the sequence of the transaction's Begin record.
	BeginSeq() uint64
	// Append writes one Op or Link record and returns its sequence. Not
	// synced until Commit.
	Append(rec Record) (uint64, error)
	// Commit durably writes the Commit record. The transaction's records
	// are replayable once Commit returns.
	Commit() error
	// Abort durably writes the Abort record. Previously appended Op records
	// remain in the file but are never replayed.
	Abort() error
}

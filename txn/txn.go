package txn

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/stratafs/stratafs/journal"
)

// Layer is a bitmask selecting which storage layers an operation or
// transaction touches.
type Layer uint8

const (
	// LayerStorage is the base byte storage layer, journaled for real.
	LayerStorage Layer = 1 << iota
	// LayerGraph is the property-graph view.
	LayerGraph
	// LayerSemantic is the semantic event log.
	LayerSemantic
)

// LayerAll selects every layer.
const LayerAll = LayerStorage | LayerGraph | LayerSemantic

// layerOrder fixes the iteration order for prepare/commit fan-out. Storage
// first: its commit is the protocol's irrevocable point.
var layerOrder = [...]Layer{LayerStorage, LayerGraph, LayerSemantic}

// Has reports whether l includes all bits of m.
func (l Layer) Has(m Layer) bool { return l&m == m }

// Valid reports whether l is non-empty and contains no unknown bits.
func (l Layer) Valid() bool { return l != 0 && l&^LayerAll == 0 }

// Count returns the number of layers selected.
func (l Layer) Count() int {
	n := 0
	for _, m := range layerOrder {
		if l.Has(m) {
			n++
		}
	}
	return n
}

// String returns a mask like "storage|graph".
func (l Layer) String() string {
	names := []struct {
		m Layer
		s string
	}{{LayerStorage, "storage"}, {LayerGraph, "graph"}, {LayerSemantic, "semantic"}}
	out := ""
	for _, n := range names {
		if !l.Has(n.m) {
			continue
		}
		if out != "" {
			out += "|"
		}
		out += n.s
	}
	if out == "" {
		return "none"
	}
	return out
}

// IsolationLevel is the contract each layer's prepare/commit hooks consume.
// The cross-layer engine only threads the chosen level through; it does not
// implement MVCC itself.
type IsolationLevel uint8

const (
	ReadUncommitted IsolationLevel = iota
	ReadCommitted
	RepeatableRead
	Serializable
	Snapshot
)

// String returns the isolation level name.
func (il IsolationLevel) String() string {
	switch il {
	case ReadUncommitted:
		return "read-uncommitted"
	case ReadCommitted:
		return "read-committed"
	case RepeatableRead:
		return "repeatable-read"
	case Serializable:
		return "serializable"
	case Snapshot:
		return "snapshot"
	default:
		return "unknown"
	}
}

// State is a transaction's lifecycle state.
type State uint8

const (
	StateInit State = iota
	StatePreparing
	StatePrepared
	StateCommitting
	StateCommitted
	StateAborting
	StateAborted
	StateFailed
)

// Terminal reports whether the state is final. A transaction never leaves a
// terminal state.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateAborted || s == StateFailed
}

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StatePreparing:
		return "PREPARING"
	case StatePrepared:
		return "PREPARED"
	case StateCommitting:
		return "COMMITTING"
	case StateCommitted:
		return "COMMITTED"
	case StateAborting:
		return "ABORTING"
	case StateAborted:
		return "ABORTED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Txn is one cross-layer transaction.
//
// The immutable identity fields are set at Begin and read without locking.
// Mutable fields (state, operation lists, timestamps) are guarded by the
// transaction's own mutex, which is distinct from the registry lock.
type Txn struct {
	id        uint64
	layers    Layer
	isolation IsolationLevel
	timeout   time.Duration
	priority  uint8
	startTime time.Time

	refs atomic.Int32
	done chan struct{}

	mu          sync.Mutex
	state       State
	prepareTime time.Time
	commitTime  time.Time
	endTime     time.Time
	ops         map[Layer][]*Op
	opCount     map[Layer]int
	totalOps    int
	storageTxn  journal.Txn
	subTxns     map[Layer]any // opaque graph/semantic sub-transaction handles
	err         error
}

// ID returns the transaction's unique 64-bit id.
func (t *Txn) ID() uint64 { return t.id }

// Layers returns the participating layer mask.
func (t *Txn) Layers() Layer { return t.layers }

// Isolation returns the declared isolation level.
func (t *Txn) Isolation() IsolationLevel { return t.isolation }

// StartTime returns when the transaction began.
func (t *Txn) StartTime() time.Time { return t.startTime }

// Priority returns the transaction's priority (higher = more important;
// used by deadlock victim selection).
func (t *Txn) Priority() uint8 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.priority
}

// SetPriority sets the deadlock-victim priority. Legal only in state INIT;
// later calls are ignored.
func (t *Txn) SetPriority(p uint8) {
	t.mu.Lock()
	if t.state == StateInit {
		t.priority = p
	}
	t.mu.Unlock()
}

// Deadline returns the commit deadline, zero if the transaction has no
// timeout.
func (t *Txn) Deadline() time.Time {
	if t.timeout <= 0 {
		return time.Time{}
	}
	return t.startTime.Add(t.timeout)
}

// State returns the current lifecycle state.
func (t *Txn) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the error that failed the transaction, nil if none.
func (t *Txn) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Done returns a channel closed when the transaction reaches a terminal
// state.
func (t *Txn) Done() <-chan struct{} { return t.done }

// JournalTxn returns the storage layer's journal sub-transaction, nil when
// the storage layer does not participate.
func (t *Txn) JournalTxn() journal.Txn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.storageTxn
}

// SubTxn returns the opaque sub-transaction handle a layer's prepare hook
// returned, nil before prepare.
func (t *Txn) SubTxn(l Layer) any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.subTxns[l]
}

// OpCount returns the number of operations attached for one layer.
func (t *Txn) OpCount(l Layer) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opCount[l]
}

// TotalOps returns the total operation count. Per-layer counts always sum
// to this value.
func (t *Txn) TotalOps() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalOps
}

// Ops returns the operation list for one layer. The returned slice is a
// copy; operations themselves are shared.
func (t *Txn) Ops(l Layer) []*Op {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Op(nil), t.ops[l]...)
}

// Retain increments the reference count. Every Retain must be paired with a
// Manager.Release.
func (t *Txn) Retain() { t.refs.Add(1) }

// transition moves state from → to under the transaction lock. Returns false
// (and changes nothing) if the current state differs from from, or from is
// terminal.
func (t *Txn) transition(from, to State) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != from || from.Terminal() {
		return false
	}
	t.state = to
	return true
}

// finish marks the terminal state and wakes waiters. Safe to call once.
func (t *Txn) finish(s State) {
	t.mu.Lock()
	already := t.state.Terminal()
	if !already {
		t.state = s
		t.endTime = time.Now()
	}
	t.mu.Unlock()
	if !already {
		close(t.done)
	}
}

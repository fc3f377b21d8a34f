package txn

import (
	"time"

	"github.com/stratafs/stratafs/journal"
)

// inlinePayloadMax is the largest payload stored inside the Op itself.
// Larger payloads get their own allocation. Mirrors the journal's typical
// small-write size so the hot path stays allocation-light.
const inlinePayloadMax = 256

// Op is one operation attached to a cross-layer transaction. An Op is owned
// by exactly one transaction and freed with it.
type Op struct {
	ID       uint64
	Layers   Layer          // layers this operation targets
	Kind     journal.OpKind // logical operation type
	Time     time.Time
	Priority uint8
	Seq      uint64 // journal sequence of the Op record, 0 if storage not involved
	Result   error  // per-operation result, set during commit/replay

	inline    [inlinePayloadMax]byte
	inlineLen int
	spill     []byte // out-of-line payload when len > inlinePayloadMax
}

// newOp copies data into the operation, inline when small.
func newOp(id uint64, layers Layer, kind journal.OpKind, data []byte) *Op {
	op := &Op{
		ID:     id,
		Layers: layers,
		Kind:   kind,
		Time:   time.Now(),
	}
	if len(data) <= inlinePayloadMax {
		op.inlineLen = copy(op.inline[:], data)
	} else {
		op.spill = append([]byte(nil), data...)
	}
	return op
}

// Payload returns the operation's payload bytes. The slice must not be
// mutated.
func (o *Op) Payload() []byte {
	if o.spill != nil {
		return o.spill
	}
	return o.inline[:o.inlineLen]
}

// PayloadLen returns the payload size in bytes.
func (o *Op) PayloadLen() int {
	if o.spill != nil {
		return len(o.spill)
	}
	return o.inlineLen
}

package checkpoint

import (
	"sync/atomic"
	"time"

	"github.com/stratafs/stratafs/internal/format"
)

// Type classifies a checkpoint.
type Type uint8

const (
	// Full captures every counter and allows journal-tail truncation.
	Full Type = iota + 1
	// Incremental captures counters without truncating the journal.
	Incremental
	// MetadataOnly captures the metadata/allocation counters only.
	MetadataOnly
	// Emergency is taken on the failure path, best-effort.
	Emergency
)

// String returns the checkpoint type name.
func (t Type) String() string {
	switch t {
	case Full:
		return "full"
	case Incremental:
		return "incremental"
	case MetadataOnly:
		return "metadata-only"
	case Emergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// Checkpoint records the journal positions captured at one instant.
type Checkpoint struct {
	ID   uint64
	Type Type

	// JournalSeq is the first sequence NOT covered by this checkpoint;
	// recovery replays from here.
	JournalSeq uint64
	// TailSeq is the journal tail at capture time.
	TailSeq uint64
	// MetaSeq and AllocSeq capture the metadata and allocation journal
	// counters, 0 when those journals are absent.
	MetaSeq  uint64
	AllocSeq uint64

	// Location names where any associated snapshot data lives.
	Location string
	Size     int64
	Checksum uint32

	Created time.Time
	// Cost is how long the capture took.
	Cost time.Duration

	refs atomic.Int32
}

// Retain increments the reference count so concurrent readers can outlive a
// logical eviction.
func (c *Checkpoint) Retain() { c.refs.Add(1) }

// Release drops one reference and reports whether this was the last.
func (c *Checkpoint) Release() bool { return c.refs.Add(-1) <= 0 }

// clone copies the exported fields. The reference count does not travel:
// a stored or reloaded copy starts unreferenced.
func (c *Checkpoint) clone() *Checkpoint {
	return &Checkpoint{
		ID:         c.ID,
		Type:       c.Type,
		JournalSeq: c.JournalSeq,
		TailSeq:    c.TailSeq,
		MetaSeq:    c.MetaSeq,
		AllocSeq:   c.AllocSeq,
		Location:   c.Location,
		Size:       c.Size,
		Checksum:   c.Checksum,
		Created:    c.Created,
		Cost:       c.Cost,
	}
}

// computeChecksum covers the identifying fields; the stored value lets a
// reload detect a torn or tampered store row.
func (c *Checkpoint) computeChecksum() uint32 {
	var b [6 * 8]byte
	format.PutU64(b[:], 0, c.ID)
	format.PutU64(b[:], 8, uint64(c.Type))
	format.PutU64(b[:], 16, c.JournalSeq)
	format.PutU64(b[:], 24, c.TailSeq)
	format.PutU64(b[:], 32, c.MetaSeq)
	format.PutU64(b[:], 40, c.AllocSeq)
	return format.Checksum(append(b[:], []byte(c.Location)...))
}

// Valid reports whether the stored checksum matches the fields.
func (c *Checkpoint) Valid() bool {
	return c.Checksum == c.computeChecksum()
}

package journal

import (
	"fmt"
	"time"

	"github.com/stratafs/stratafs/internal/format"
)

// RecordType discriminates journal records.
type RecordType uint8

const (
	// RecordBegin opens a transaction.
	RecordBegin RecordType = iota + 1
	// RecordOp carries one attached operation's payload.
	RecordOp
	// RecordCommit terminates a transaction successfully.
	RecordCommit
	// RecordAbort terminates a transaction unsuccessfully.
	RecordAbort
	// RecordCheckpoint marks a checkpoint boundary in the sequence space.
	RecordCheckpoint
	// RecordLink carries an explicit replay-ordering constraint: the
	// header's prerequisite sequence orders before the dependent sequence
	// in the 8-byte payload.
	RecordLink
)

// String returns the record type mnemonic used in logs and dumps.
func (t RecordType) String() string {
	switch t {
	case RecordBegin:
		return "BEGIN"
	case RecordOp:
		return "OP"
	case RecordCommit:
		return "COMMIT"
	case RecordAbort:
		return "ABORT"
	case RecordCheckpoint:
		return "CHECKPOINT"
	case RecordLink:
		return "LINK"
	default:
		return fmt.Sprintf("RecordType(%d)", uint8(t))
	}
}

// Terminal reports whether the record type ends a transaction.
func (t RecordType) Terminal() bool {
	return t == RecordCommit || t == RecordAbort
}

// OpKind identifies the logical operation carried by an Op record. Kinds are
// shared across layers; the record's layer mask says which layers the
// operation touches.
type OpKind uint16

const (
	// OpWrite updates bytes of an existing object.
	OpWrite OpKind = iota + 1
	// OpCreate creates a new object.
	OpCreate
	// OpDelete removes an object. The record payload carries the pre-image
	// so recovery can restore it.
	OpDelete
	// OpMetadata updates object metadata only.
	OpMetadata
	// OpEdgeCreate adds a property-graph edge.
	OpEdgeCreate
	// OpEdgeDelete removes a property-graph edge.
	OpEdgeDelete
	// OpEventAppend appends a semantic-log event.
	OpEventAppend
)

// Record is one journal entry.
//
// The on-disk form is a fixed 64-byte header followed by the payload, padded
// to 8-byte alignment (see internal/format for the exact layout). The header
// carries a CRC32-C over itself and the payload.
type Record struct {
	Type    RecordType
	Layers  uint8  // layer mask bits, mirrors txn.Layer
	Op      OpKind // set for Op records
	Flags   uint16
	Seq     uint64
	TxnID   uint64
	Prereq  uint64 // prerequisite sequence, 0 = none
	Time    time.Time
	Payload []byte
}

// EncodedSize returns the number of bytes the record occupies on disk,
// including alignment padding.
func (r *Record) EncodedSize() int {
	return format.AlignRecord(format.RecordHeaderSize + len(r.Payload))
}

// AppendTo encodes the record onto dst and returns the extended slice.
func (r *Record) AppendTo(dst []byte) []byte {
	var hdr [format.RecordHeaderSize]byte
	copy(hdr[format.RecSignatureOffset:], format.RecordSignature)
	hdr[format.RecTypeOffset] = byte(r.Type)
	hdr[format.RecLayerOffset] = r.Layers
	format.PutU16(hdr[:], format.RecOpTypeOffset, uint16(r.Op))
	format.PutU16(hdr[:], format.RecFlagsOffset, r.Flags)
	format.PutU64(hdr[:], format.RecSeqOffset, r.Seq)
	format.PutU64(hdr[:], format.RecTxnIDOffset, r.TxnID)
	format.PutU64(hdr[:], format.RecPrereqOffset, r.Prereq)
	format.PutU64(hdr[:], format.RecTimestampOffset, uint64(r.Time.UnixNano()))
	format.PutU32(hdr[:], format.RecPayloadLenOffset, uint32(len(r.Payload)))
	format.PutU32(hdr[:], format.RecChecksumOffset, format.ChecksumRecord(hdr[:], r.Payload))

	dst = append(dst, hdr[:]...)
	dst = append(dst, r.Payload...)
	if pad := r.EncodedSize() - format.RecordHeaderSize - len(r.Payload); pad > 0 {
		dst = append(dst, make([]byte, pad)...)
	}
	return dst
}

// DecodeRecord decodes one record from the front of b, verifying signature
// and checksum. It returns the record and the number of bytes consumed
// (including alignment padding).
func DecodeRecord(b []byte) (Record, int, error) {
	if len(b) < format.RecordHeaderSize {
		return Record{}, 0, format.ErrTruncated
	}
	if b[0] != format.RecordSignature[0] || b[1] != format.RecordSignature[1] {
		return Record{}, 0, format.ErrSignatureMismatch
	}
	payloadLen := int(format.ReadU32(b, format.RecPayloadLenOffset))
	total := format.AlignRecord(format.RecordHeaderSize + payloadLen)
	if len(b) < format.RecordHeaderSize+payloadLen {
		return Record{}, 0, format.ErrTruncated
	}
	payload := b[format.RecordHeaderSize : format.RecordHeaderSize+payloadLen]
	want := format.ReadU32(b, format.RecChecksumOffset)
	if got := format.ChecksumRecord(b, payload); got != want {
		return Record{}, 0, fmt.Errorf("%w: seq %d: got 0x%08X want 0x%08X",
			format.ErrChecksumMismatch, format.ReadU64(b, format.RecSeqOffset), got, want)
	}
	rec := Record{
		Type:   RecordType(b[format.RecTypeOffset]),
		Layers: b[format.RecLayerOffset],
		Op:     OpKind(format.ReadU16(b, format.RecOpTypeOffset)),
		Flags:  format.ReadU16(b, format.RecFlagsOffset),
		Seq:    format.ReadU64(b, format.RecSeqOffset),
		TxnID:  format.ReadU64(b, format.RecTxnIDOffset),
		Prereq: format.ReadU64(b, format.RecPrereqOffset),
		Time:   time.Unix(0, int64(format.ReadU64(b, format.RecTimestampOffset))),
	}
	if payloadLen > 0 {
		rec.Payload = append([]byte(nil), payload...)
	}
	return rec, total, nil
}

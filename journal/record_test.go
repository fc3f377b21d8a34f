package journal

import (
	"testing"
	"time"

	"github.com/stratafs/stratafs/internal/format"
)

func TestRecordRoundTrip(t *testing.T) {
	rec := Record{
		Type:    RecordOp,
		Layers:  0b011,
		Op:      OpWrite,
		Seq:     42,
		TxnID:   7,
		Prereq:  41,
		Time:    time.Unix(0, 1700000000000000000),
		Payload: []byte("hello journal"),
	}
	buf := rec.AppendTo(nil)
	if len(buf) != rec.EncodedSize() {
		t.Fatalf("encoded %d bytes, EncodedSize says %d", len(buf), rec.EncodedSize())
	}
	if len(buf)%8 != 0 {
		t.Fatalf("encoded size %d not 8-byte aligned", len(buf))
	}

	got, n, err := DecodeRecord(buf)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("consumed %d bytes, want %d", n, len(buf))
	}
	if got.Type != rec.Type || got.Layers != rec.Layers || got.Op != rec.Op {
		t.Fatalf("header mismatch: got %+v", got)
	}
	if got.Seq != rec.Seq || got.TxnID != rec.TxnID || got.Prereq != rec.Prereq {
		t.Fatalf("sequence fields mismatch: got %+v", got)
	}
	if string(got.Payload) != string(rec.Payload) {
		t.Fatalf("payload mismatch: got %q", got.Payload)
	}
	if !got.Time.Equal(rec.Time) {
		t.Fatalf("time mismatch: got %v want %v", got.Time, rec.Time)
	}
}

func TestRecordEmptyPayload(t *testing.T) {
	rec := Record{Type: RecordCommit, TxnID: 3, Time: time.Now()}
	buf := rec.AppendTo(nil)
	if len(buf) != format.RecordHeaderSize {
		t.Fatalf("empty-payload record should be header-sized, got %d", len(buf))
	}
	got, _, err := DecodeRecord(buf)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}
	if got.Payload != nil {
		t.Fatalf("expected nil payload, got %v", got.Payload)
	}
}

func TestDecodeRecordChecksumMismatch(t *testing.T) {
	rec := Record{Type: RecordBegin, TxnID: 1, Time: time.Now(), Payload: []byte("x")}
	buf := rec.AppendTo(nil)
	buf[format.RecordHeaderSize] ^= 0xFF // flip a payload bit

	if _, _, err := DecodeRecord(buf); err == nil {
		t.Fatal("expected checksum error, got nil")
	}
}

func TestDecodeRecordTruncated(t *testing.T) {
	rec := Record{Type: RecordOp, TxnID: 1, Time: time.Now(), Payload: []byte("abcdef")}
	buf := rec.AppendTo(nil)

	for _, cut := range []int{0, 10, format.RecordHeaderSize, len(buf) - 5} {
		if _, _, err := DecodeRecord(buf[:cut]); err == nil {
			t.Fatalf("expected truncation error at %d bytes", cut)
		}
	}
}

func TestRecordTypeTerminal(t *testing.T) {
	for typ, want := range map[RecordType]bool{
		RecordBegin:      false,
		RecordOp:         false,
		RecordCommit:     true,
		RecordAbort:      true,
		RecordCheckpoint: false,
		RecordLink:       false,
	} {
		if got := typ.Terminal(); got != want {
			t.Errorf("%v.Terminal() = %v, want %v", typ, got, want)
		}
	}
}

package journal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stratafs/stratafs/internal/format"
)

const defaultBlockSize = 4096

// Options configures a file journal.
type Options struct {
	// BlockSize is the journal block size in bytes. Defaults to 4096.
	// Ignored when opening an existing journal.
	BlockSize int64

	// NoSync disables fdatasync after Begin/Commit/Abort records. Only safe
	// for tests; a crash can then lose terminal records.
	NoSync bool
}

// File is an append-only file-backed journal.
//
// Safe for concurrent use: record appends serialize on an internal mutex,
// sequence counters are atomics so readers never block writers.
type File struct {
	mu     sync.Mutex
	f      *os.File
	path   string
	size   int64 // file offset one past the last good record
	closed bool

	blockSize int64
	noSync    bool

	tail      atomic.Uint64
	current   atomic.Uint64
	nextTxnID atomic.Uint64
}

var _ Journal = (*File)(nil)

// Open opens the journal at path, creating it if absent. On open, the record
// area is scanned to restore the sequence counters; a torn record at the end
// of the file (from a crash mid-append) is discarded.
func Open(path string, opts *Options) (*File, error) {
	if opts == nil {
		opts = &Options{}
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	j := &File{
		f:         f,
		path:      path,
		blockSize: opts.BlockSize,
		noSync:    opts.NoSync,
	}
	if j.blockSize <= 0 {
		j.blockSize = defaultBlockSize
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() == 0 {
		if err := j.writeFileHeader(); err != nil {
			f.Close()
			return nil, err
		}
		j.size = format.FileHeaderSize
		j.tail.Store(1)
		return j, nil
	}
	if err := j.load(info.Size()); err != nil {
		f.Close()
		return nil, err
	}
	return j, nil
}

func (j *File) writeFileHeader() error {
	var hdr [format.FileHeaderSize]byte
	copy(hdr[format.FileSignatureOffset:], format.JournalSignature)
	format.PutU16(hdr[:], format.FileVersionOffset, format.FormatVersion)
	format.PutU32(hdr[:], format.FileBlockSizeOffset, uint32(j.blockSize))
	format.PutU64(hdr[:], format.FileTailSeqOffset, 1)
	if _, err := j.f.WriteAt(hdr[:], 0); err != nil {
		return err
	}
	return j.sync()
}

// load validates the file header and scans the record area to restore
// counters. The scan stops at the first torn or corrupt record; everything
// after it is discarded by truncating the file.
func (j *File) load(size int64) error {
	data := make([]byte, size)
	if _, err := io.ReadFull(io.NewSectionReader(j.f, 0, size), data); err != nil {
		return err
	}
	if len(data) < format.FileHeaderSize {
		return fmt.Errorf("%w: short file header (%d bytes)", ErrCorrupt, len(data))
	}
	for i, b := range format.JournalSignature {
		if data[i] != b {
			return fmt.Errorf("%w: bad signature", ErrCorrupt)
		}
	}
	if v := format.ReadU16(data, format.FileVersionOffset); v != format.FormatVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v)
	}
	j.blockSize = int64(format.ReadU32(data, format.FileBlockSizeOffset))
	if j.blockSize <= 0 {
		return fmt.Errorf("%w: bad block size %d", ErrCorrupt, j.blockSize)
	}
	j.tail.Store(format.ReadU64(data, format.FileTailSeqOffset))
	if j.tail.Load() == 0 {
		j.tail.Store(1)
	}

	off := format.FileHeaderSize
	var lastSeq, lastTxn uint64
	for off < len(data) {
		rec, n, err := DecodeRecord(data[off:])
		if err != nil {
			// Torn tail from a crash mid-append. Drop it.
			break
		}
		lastSeq = rec.Seq
		if rec.TxnID > lastTxn {
			lastTxn = rec.TxnID
		}
		off += n
	}
	j.size = int64(off)
	j.current.Store(lastSeq)
	j.nextTxnID.Store(lastTxn)
	if j.size < size {
		if err := j.f.Truncate(j.size); err != nil {
			return err
		}
	}
	return nil
}

// Begin opens a journal transaction and durably writes its Begin record.
func (j *File) Begin(hintSize int, kind OpKind) (Txn, error) {
	if hintSize < 0 {
		return nil, fmt.Errorf("journal: negative size hint %d", hintSize)
	}
	id := j.nextTxnID.Add(1)
	seq, err := j.appendRecord(&Record{
		Type:  RecordBegin,
		Op:    kind,
		TxnID: id,
		Time:  time.Now(),
	}, true)
	if err != nil {
		return nil, err
	}
	return &fileTxn{j: j, id: id, beginSeq: seq}, nil
}

// Head returns the next sequence number to be assigned.
func (j *File) Head() uint64 { return j.current.Load() + 1 }

// Tail returns the oldest retained sequence number.
func (j *File) Tail() uint64 { return j.tail.Load() }

// Current returns the last assigned sequence number, 0 if none.
func (j *File) Current() uint64 { return j.current.Load() }

// BlockSize returns the journal block size in bytes.
func (j *File) BlockSize() int64 { return j.blockSize }

// BlockCount returns the number of blocks the journal currently spans.
func (j *File) BlockCount() int64 {
	j.mu.Lock()
	size := j.size
	j.mu.Unlock()
	return (size + j.blockSize - 1) / j.blockSize
}

// Path returns the journal file path.
func (j *File) Path() string { return j.path }

// Fd returns the underlying file descriptor, -1 if closed. Used by the
// mapped journal reader.
func (j *File) Fd() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return -1
	}
	return int(j.f.Fd())
}

// DataBounds returns the file-offset range [start, end) holding records.
func (j *File) DataBounds() (int64, int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return format.FileHeaderSize, j.size
}

// AdvanceTail moves the retained-tail marker forward to seq. Called by the
// checkpoint manager after a checkpoint captures everything below seq.
// Physical space is not reclaimed; only the replay lower bound moves.
func (j *File) AdvanceTail(seq uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	if seq <= j.tail.Load() {
		return nil
	}
	var b [8]byte
	format.PutU64(b[:], 0, seq)
	if _, err := j.f.WriteAt(b[:], format.FileTailSeqOffset); err != nil {
		return err
	}
	if err := j.sync(); err != nil {
		return err
	}
	j.tail.Store(seq)
	return nil
}

// Close flushes and closes the journal file.
func (j *File) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	if err := j.sync(); err != nil {
		j.f.Close()
		return err
	}
	return j.f.Close()
}

// appendRecord assigns the next sequence, writes the record at the end of
// the file, and optionally syncs.
func (j *File) appendRecord(rec *Record, syncAfter bool) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return 0, ErrClosed
	}
	rec.Seq = j.current.Load() + 1
	buf := rec.AppendTo(make([]byte, 0, rec.EncodedSize()))
	if _, err := j.f.WriteAt(buf, j.size); err != nil {
		return 0, err
	}
	j.size += int64(len(buf))
	j.current.Store(rec.Seq)
	if syncAfter && !j.noSync {
		if err := j.sync(); err != nil {
			return 0, err
		}
	}
	return rec.Seq, nil
}

func (j *File) sync() error {
	if j.noSync {
		return nil
	}
	return fdatasync(int(j.f.Fd()))
}

// fileTxn is the File journal's transaction handle.
type fileTxn struct {
	mu       sync.Mutex
	j        *File
	id       uint64
	beginSeq uint64
	done     bool
}

func (t *fileTxn) ID() uint64       { return t.id }
func (t *fileTxn) BeginSeq() uint64 { return t.beginSeq }

// Append writes one Op or Link record. Not synced until Commit.
func (t *fileTxn) Append(rec Record) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return 0, ErrTxnDone
	}
	switch rec.Type {
	case RecordOp, RecordLink:
	default:
		return 0, fmt.Errorf("journal: cannot append %v record to transaction", rec.Type)
	}
	rec.TxnID = t.id
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}
	return t.j.appendRecord(&rec, false)
}

// Commit durably writes the Commit record.
func (t *fileTxn) Commit() error { return t.terminate(RecordCommit) }

// Abort durably writes the Abort record.
func (t *fileTxn) Abort() error { return t.terminate(RecordAbort) }

func (t *fileTxn) terminate(typ RecordType) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxnDone
	}
	_, err := t.j.appendRecord(&Record{
		Type:  typ,
		TxnID: t.id,
		Time:  time.Now(),
	}, true)
	if err != nil && !errors.Is(err, ErrClosed) {
		return err
	}
	t.done = true
	return err
}

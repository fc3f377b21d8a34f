package replay

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/stratafs/stratafs/internal/format"
	"github.com/stratafs/stratafs/journal"
)

// Cursor iterates journal records in sequence order. Next returns false when
// the range is exhausted.
type Cursor interface {
	Next() (journal.Record, bool, error)
	Close() error
}

// Source supplies cursors over a sequence range.
type Source interface {
	Scan(start, end uint64) (Cursor, error)
}

// FileSource reads the journal file sequentially with a buffered reader.
type FileSource struct {
	jnl *journal.File
}

// NewFileSource returns a sequential source over the journal.
func NewFileSource(jnl *journal.File) *FileSource {
	return &FileSource{jnl: jnl}
}

// Scan opens an independent read handle on the journal file and positions it
// at the start of the record area.
func (s *FileSource) Scan(start, end uint64) (Cursor, error) {
	f, err := os.Open(s.jnl.Path())
	if err != nil {
		return nil, fmt.Errorf("replay: open journal: %w", err)
	}
	lo, hi := s.jnl.DataBounds()
	return &fileCursor{
		r:     bufio.NewReaderSize(io.NewSectionReader(f, lo, hi-lo), 1<<16),
		f:     f,
		start: start,
		end:   end,
	}, nil
}

type fileCursor struct {
	r     *bufio.Reader
	f     *os.File
	start uint64
	end   uint64
}

// Next streams the next record whose sequence lies in [start, end).
// Records below the range are skipped; the first record at or past end stops
// the cursor.
func (c *fileCursor) Next() (journal.Record, bool, error) {
	for {
		var hdr [format.RecordHeaderSize]byte
		if _, err := io.ReadFull(c.r, hdr[:]); err != nil {
			if err == io.EOF {
				return journal.Record{}, false, nil
			}
			return journal.Record{}, false, fmt.Errorf("replay: read header: %w", err)
		}
		payloadLen := int(format.ReadU32(hdr[:], format.RecPayloadLenOffset))
		total := format.AlignRecord(format.RecordHeaderSize + payloadLen)

		buf := make([]byte, total)
		copy(buf, hdr[:])
		if _, err := io.ReadFull(c.r, buf[format.RecordHeaderSize:]); err != nil {
			return journal.Record{}, false, fmt.Errorf("replay: read payload: %w", err)
		}
		rec, _, err := journal.DecodeRecord(buf)
		if err != nil {
			return journal.Record{}, false, fmt.Errorf("replay: %w", err)
		}
		if rec.Seq >= c.end {
			return journal.Record{}, false, nil
		}
		if rec.Seq < c.start {
			continue
		}
		return rec, true, nil
	}
}

func (c *fileCursor) Close() error { return c.f.Close() }

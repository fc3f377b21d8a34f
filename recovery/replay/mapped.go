package replay

import (
	"fmt"
	"sync/atomic"

	"github.com/stratafs/stratafs/internal/mmfile"
	"github.com/stratafs/stratafs/journal"
)

// MappedSource reads records out of a memory-mapped view of the journal's
// record area. Each Scan maps its own region; Close unmaps it.
type MappedSource struct {
	jnl *journal.File

	mapOps  atomic.Uint64
	regions atomic.Int64
}

// NewMappedSource returns a memory-mapped source over the journal.
func NewMappedSource(jnl *journal.File) *MappedSource {
	return &MappedSource{jnl: jnl}
}

// MapOps returns how many regions this source has mapped in total.
func (s *MappedSource) MapOps() uint64 { return s.mapOps.Load() }

// ActiveRegions returns the number of currently mapped, unclosed regions.
func (s *MappedSource) ActiveRegions() int64 { return s.regions.Load() }

// Scan maps the journal record area and returns a cursor over [start, end).
func (s *MappedSource) Scan(start, end uint64) (Cursor, error) {
	lo, hi := s.jnl.DataBounds()
	if hi <= lo {
		return &mappedCursor{}, nil
	}
	data, unmap, err := mmfile.MapRegion(s.jnl.Fd(), lo, int(hi-lo))
	if err != nil {
		return nil, fmt.Errorf("replay: map journal region: %w", err)
	}
	s.mapOps.Add(1)
	s.regions.Add(1)
	return &mappedCursor{
		data:  data,
		start: start,
		end:   end,
		close: func() error {
			s.regions.Add(-1)
			return unmap()
		},
	}, nil
}

type mappedCursor struct {
	data  []byte
	off   int
	start uint64
	end   uint64
	close func() error
}

func (c *mappedCursor) Next() (journal.Record, bool, error) {
	for c.off < len(c.data) {
		rec, n, err := journal.DecodeRecord(c.data[c.off:])
		if err != nil {
			return journal.Record{}, false, fmt.Errorf("replay: %w", err)
		}
		c.off += n
		if rec.Seq >= c.end {
			return journal.Record{}, false, nil
		}
		if rec.Seq < c.start {
			continue
		}
		return rec, true, nil
	}
	return journal.Record{}, false, nil
}

func (c *mappedCursor) Close() error {
	if c.close == nil {
		return nil
	}
	fn := c.close
	c.close = nil
	return fn()
}

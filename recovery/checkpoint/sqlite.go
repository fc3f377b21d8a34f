package checkpoint

import (
	"database/sql"
	"fmt"
	"time"

	// Registers the "sqlite3" driver.
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	id          INTEGER PRIMARY KEY,
	type        INTEGER NOT NULL,
	journal_seq INTEGER NOT NULL,
	tail_seq    INTEGER NOT NULL,
	meta_seq    INTEGER NOT NULL,
	alloc_seq   INTEGER NOT NULL,
	location    TEXT NOT NULL,
	size        INTEGER NOT NULL,
	checksum    INTEGER NOT NULL,
	cost_ns     INTEGER NOT NULL,
	created_ns  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS checkpoints_journal_seq ON checkpoints(journal_seq);
`

// SQLiteStore persists checkpoint metadata in a local sqlite database so the
// latest checkpoint survives a crash of the engine process.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLiteStore opens (and if needed initializes) the store at path.
// Journal mode is WAL so checkpoint writes never block concurrent readers.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("checkpoint: init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Put inserts or replaces one checkpoint row.
func (s *SQLiteStore) Put(cp *Checkpoint) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO checkpoints
		(id, type, journal_seq, tail_seq, meta_seq, alloc_seq, location, size, checksum, cost_ns, created_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(cp.ID), int64(cp.Type), int64(cp.JournalSeq), int64(cp.TailSeq),
		int64(cp.MetaSeq), int64(cp.AllocSeq), cp.Location, cp.Size,
		int64(cp.Checksum), cp.Cost.Nanoseconds(), cp.Created.UnixNano())
	if err != nil {
		return fmt.Errorf("checkpoint: put %d: %w", cp.ID, err)
	}
	return nil
}

// Delete removes a checkpoint row by id.
func (s *SQLiteStore) Delete(id uint64) error {
	if _, err := s.db.Exec(`DELETE FROM checkpoints WHERE id = ?`, int64(id)); err != nil {
		return fmt.Errorf("checkpoint: delete %d: %w", id, err)
	}
	return nil
}

// Load returns every stored checkpoint ordered by captured sequence.
func (s *SQLiteStore) Load() ([]*Checkpoint, error) {
	rows, err := s.db.Query(`
		SELECT id, type, journal_seq, tail_seq, meta_seq, alloc_seq, location, size, checksum, cost_ns, created_ns
		FROM checkpoints ORDER BY journal_seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: load: %w", err)
	}
	defer rows.Close()

	var out []*Checkpoint
	for rows.Next() {
		var cp Checkpoint
		var typ, jseq, tseq, mseq, aseq, checksum, costNS, createdNS, id int64
		if err := rows.Scan(&id, &typ, &jseq, &tseq, &mseq, &aseq,
			&cp.Location, &cp.Size, &checksum, &costNS, &createdNS); err != nil {
			return nil, fmt.Errorf("checkpoint: scan row: %w", err)
		}
		cp.ID = uint64(id)
		cp.Type = Type(typ)
		cp.JournalSeq = uint64(jseq)
		cp.TailSeq = uint64(tseq)
		cp.MetaSeq = uint64(mseq)
		cp.AllocSeq = uint64(aseq)
		cp.Checksum = uint32(checksum)
		cp.Cost = time.Duration(costNS)
		cp.Created = time.Unix(0, createdNS)
		out = append(out, &cp)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

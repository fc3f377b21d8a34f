package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/stratafs/stratafs/journal"
	"github.com/stratafs/stratafs/recovery/replay"
	"github.com/stratafs/stratafs/recovery/resolve"
)

func init() {
	rootCmd.AddCommand(newStatsCmd())
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <journal>",
		Short: "Show journal statistics",
		Long: `The stats command scans a journal and shows record counts by type
and operation, transaction outcomes, and partial-transaction state.

Example:
  stratactl stats engine.journal
  stratactl stats engine.journal --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(args[0])
		},
	}
}

type journalStats struct {
	FilePath     string
	FileSize     int64
	LastModified time.Time

	TailSeq uint64
	HeadSeq uint64

	RecordsByType map[string]int
	OpsByKind     map[string]int

	Committed int
	Aborted   int
	Partial   int
	LinkEdges int
}

func runStats(path string) error {
	fileInfo, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat journal: %w", err)
	}

	jnl, err := journal.Open(path, nil)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer jnl.Close()

	stats := journalStats{
		FilePath:      path,
		FileSize:      fileInfo.Size(),
		LastModified:  fileInfo.ModTime(),
		TailSeq:       jnl.Tail(),
		HeadSeq:       jnl.Head(),
		RecordsByType: make(map[string]int),
		OpsByKind:     make(map[string]int),
	}

	cur, err := replay.NewFileSource(jnl).Scan(1, jnl.Head())
	if err != nil {
		return err
	}
	defer cur.Close()

	var records []journal.Record
	for {
		rec, ok, err := cur.Next()
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}
		if !ok {
			break
		}
		records = append(records, rec)
		stats.RecordsByType[rec.Type.String()]++
		switch rec.Type {
		case journal.RecordOp:
			stats.OpsByKind[opKindName(rec.Op)]++
		case journal.RecordCommit:
			stats.Committed++
		case journal.RecordAbort:
			stats.Aborted++
		case journal.RecordLink:
			stats.LinkEdges++
		}
	}
	partials, err := resolve.FindPartials(&staticCursor{recs: records})
	if err != nil {
		return err
	}
	stats.Partial = len(partials)

	if jsonOut {
		return printJSON(stats)
	}

	p := message.NewPrinter(language.English)
	printInfo("Journal: %s\n", path)
	printInfo("  Size: %s bytes\n", p.Sprintf("%d", stats.FileSize))
	printInfo("  Last Modified: %s\n", stats.LastModified.Format("2006-01-02 15:04:05"))
	printInfo("  Sequence Range: %s .. %s\n\n",
		p.Sprintf("%d", stats.TailSeq), p.Sprintf("%d", stats.HeadSeq))

	printInfo("Transactions:\n")
	printInfo("  Committed: %s\n", p.Sprintf("%d", stats.Committed))
	printInfo("  Aborted: %s\n", p.Sprintf("%d", stats.Aborted))
	printInfo("  Partial: %s\n", p.Sprintf("%d", stats.Partial))
	printInfo("  Link Edges: %s\n\n", p.Sprintf("%d", stats.LinkEdges))

	if len(stats.RecordsByType) > 0 {
		printInfo("Records by Type:\n")
		for _, name := range sortedKeys(stats.RecordsByType) {
			printInfo("  %s: %s\n", name, p.Sprintf("%d", stats.RecordsByType[name]))
		}
		printInfo("\n")
	}
	if len(stats.OpsByKind) > 0 {
		printInfo("Operations by Kind:\n")
		for _, name := range sortedKeys(stats.OpsByKind) {
			printInfo("  %s: %s\n", name, p.Sprintf("%d", stats.OpsByKind[name]))
		}
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func opKindName(k journal.OpKind) string {
	switch k {
	case journal.OpWrite:
		return "WRITE"
	case journal.OpCreate:
		return "CREATE"
	case journal.OpDelete:
		return "DELETE"
	case journal.OpMetadata:
		return "METADATA"
	case journal.OpEdgeCreate:
		return "EDGE_CREATE"
	case journal.OpEdgeDelete:
		return "EDGE_DELETE"
	case journal.OpEventAppend:
		return "EVENT_APPEND"
	default:
		return fmt.Sprintf("OP(%d)", uint16(k))
	}
}

// staticCursor feeds an already-scanned record slice through the cursor
// interface.
type staticCursor struct {
	recs []journal.Record
	i    int
}

func (c *staticCursor) Next() (journal.Record, bool, error) {
	if c.i >= len(c.recs) {
		return journal.Record{}, false, nil
	}
	rec := c.recs[c.i]
	c.i++
	return rec, true, nil
}

func (c *staticCursor) Close() error { return nil }

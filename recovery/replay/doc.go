// Package replay reads journal records back and applies them across a
// worker pool during recovery.
//
// Two record sources exist: a sequential file reader, and a memory-mapped
// reader used when the journal is large enough that mapping beats buffered
// reads. Both present the same Cursor interface and only yield records whose
// sequence lies in the requested [start, end) range.
//
// The Coordinator partitions a sequence range into contiguous, disjoint
// sub-ranges of size ceil((end-start)/W), one worker per sub-range. Workers
// run in an errgroup: the first failure cancels the group and wins; workers
// observe cancellation cooperatively at record boundaries.
package replay

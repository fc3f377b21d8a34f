package replay

// Range is a half-open sequence interval [Start, End).
type Range struct {
	Start uint64
	End   uint64
}

// Empty reports whether the range contains no sequences.
func (r Range) Empty() bool { return r.End <= r.Start }

// Len returns the number of sequences in the range.
func (r Range) Len() uint64 {
	if r.Empty() {
		return 0
	}
	return r.End - r.Start
}

// Partition splits [start, end) into at most workers contiguous, disjoint
// sub-ranges whose union is the input. Each sub-range holds
// ceil((end-start)/workers) sequences except possibly the last. An empty
// input or non-positive worker count yields nil.
func Partition(start, end uint64, workers int) []Range {
	if end <= start || workers <= 0 {
		return nil
	}
	total := end - start
	step := (total + uint64(workers) - 1) / uint64(workers)

	var out []Range
	for lo := start; lo < end; lo += step {
		hi := lo + step
		if hi > end {
			hi = end
		}
		out = append(out, Range{Start: lo, End: hi})
	}
	return out
}

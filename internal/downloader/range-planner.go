package downloader

// PlanRanges splits total bytes into parallelism contiguous inclusive ranges.
// Every range gets total/parallelism bytes except the last, which takes the
// remainder. A resource smaller than parallelism gets one byte per range.
func PlanRanges(total int64, parallelism int) ([]Range, error) {
	if parallelism <= 0 {
		return nil, ErrInvalidParallelism
	}
	if total <= 0 {
		return nil, ErrEmptyResource
	}
	count := int64(parallelism)
	if total < count {
		count = total
	}
	base := total / count
	ranges := make([]Range, 0, count)
	var start int64
	for i := int64(0); i < count; i++ {
		end := start + base - 1
		if i == count-1 {
			end = total - 1
		}
		ranges = append(ranges, Range{Start: start, End: end})
		start = end + 1
	}
	return ranges, nil
}

// Package timerange splits a global time span into calendar-aligned
// sub-ranges and derives the keys and directory labels used for them.
//
// Ranges are half-open [Start, End). Partition clips the first and last
// range to the requested bounds, so iterating the result covers the span
// exactly once:
//
//	ranges, err := timerange.Partition(start, end, timerange.Month)
//	for _, tr := range ranges {
//	    dir := timerange.ResultPath(root, "171", tr) // root/171/2020/03
//	}
package timerange

package freezestore

import "time"

// Overlaps reports whether two half-open freeze windows [aStart, aEnd) and
// [bStart, bEnd) intersect. A nil end is treated as +infinity. The single
// intersection test covers all three collision shapes: a start falling inside
// the other window, an end falling inside it, and one window containing the
// other.
func Overlaps(aStart time.Time, aEnd *time.Time, bStart time.Time, bEnd *time.Time) bool {
	startsBeforeEnds := func(start time.Time, end *time.Time) bool {
		return end == nil || start.Before(*end)
	}
	return startsBeforeEnds(aStart, bEnd) && startsBeforeEnds(bStart, aEnd)
}

package region

import (
	"sort"

	"github.com/dancrossnyc/hypatia/kernel"
)

var errNoRegions = &kernel.Error{Module: "region", Message: "no regions to normalize"}

// List implements sort.Interface over regions using Less.
type List []Region

func (l List) Len() int           { return len(l) }
func (l List) Less(i, j int) bool { return Less(l[i], l[j]) }
func (l List) Swap(i, j int)      { l[i], l[j] = l[j], l[i] }

// Less is the total order over regions: by start address, then by
// descending Priority, then by descending end address, then by Type.
// Among regions that cover the same address, the one that sorts first
// under Less claims it.
func Less(a, b Region) bool {
	switch {
	case a.Start != b.Start:
		return a.Start < b.Start
	case a.Type.Priority() != b.Type.Priority():
		return a.Type.Priority() > b.Type.Priority()
	case a.End != b.End:
		return a.End > b.End
	default:
		return a.Type < b.Type
	}
}

// Sort orders regions in place according to Less.
func Sort(regions []Region) {
	sort.Stable(List(regions))
}

// Normalize turns an arbitrary set of regions into a partition: the result is
// sorted by start address, no two entries overlap and together they cover
// exactly the addresses covered by the input. Where inputs overlap, the one
// with the higher Priority keeps the shared addresses and the other is cut
// down to the remainder on either side. Addresses covered by no input stay
// uncovered and empty inputs are dropped.
//
// Pieces that come from the same input and touch are emitted as one entry;
// pieces of different inputs are never merged, which makes Normalize
// idempotent.
//
// The input slice is not modified. Normalize returns an error if regions is
// empty.
func Normalize(regions []Region) ([]Region, *kernel.Error) {
	if len(regions) == 0 {
		return nil, errNoRegions
	}

	sorted := make([]Region, len(regions))
	copy(sorted, regions)
	Sort(sorted)

	// Every start and end address is a point where the winning input may
	// change; between two consecutive points it cannot.
	points := make([]uint64, 0, 2*len(sorted))
	for _, r := range sorted {
		if !r.Empty() {
			points = append(points, r.Start, r.End)
		}
	}
	sort.Slice(points, func(i, j int) bool { return points[i] < points[j] })
	points = dedup(points)

	var (
		out     = make([]Region, 0, len(sorted))
		cur     Region
		curFrom = -1
	)

	for i := 0; i+1 < len(points); i++ {
		lo, hi := points[i], points[i+1]

		winner := -1
		for j, r := range sorted {
			if r.Start > lo {
				break
			}
			if r.End <= lo {
				continue
			}
			if winner == -1 || r.Type.Priority() > sorted[winner].Type.Priority() {
				winner = j
			}
		}

		if winner != -1 && winner == curFrom && cur.End == lo {
			cur.End = hi
			continue
		}

		if curFrom != -1 {
			out = append(out, cur)
			curFrom = -1
		}

		// winner == -1 is a gap between inputs
		if winner != -1 {
			cur = Region{Start: lo, End: hi, Type: sorted[winner].Type}
			curFrom = winner
		}
	}

	if curFrom != -1 {
		out = append(out, cur)
	}

	return out, nil
}

// dedup removes repeated values from a sorted slice in place.
func dedup(points []uint64) []uint64 {
	if len(points) == 0 {
		return points
	}

	n := 1
	for _, p := range points[1:] {
		if p != points[n-1] {
			points[n] = p
			n++
		}
	}
	return points[:n]
}

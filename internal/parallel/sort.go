package parallel

import (
	"slices"
)

// below this size a single slices.SortFunc is faster than splitting
const serialSortThreshold = 1 << 14

// Sorts s with a parallel merge sort: runs are sorted concurrently and then merged pairwise,
// each round of merges running concurrently too. cmp must define a total order for the result
// to be deterministic.
func SortFunc[E any](s []E, cmp func(a, b E) int) {
	n := len(s)
	numRuns := Workers()
	if numRuns <= 1 || n < serialSortThreshold {
		slices.SortFunc(s, cmp)
		return
	}

	runSize := (n + numRuns - 1) / numRuns
	bounds := make([]int, 0, numRuns+1)
	for begin := 0; begin < n; begin += runSize {
		bounds = append(bounds, begin)
	}
	bounds = append(bounds, n)

	For(len(bounds)-1, 1, func(begin, end int) {
		for r := begin; r < end; r++ {
			slices.SortFunc(s[bounds[r]:bounds[r+1]], cmp)
		}
	})

	buf := make([]E, n)
	src, dst := s, buf
	for len(bounds) > 2 {
		last := len(bounds) - 1
		pairs := (last + 1) / 2
		For(pairs, 1, func(begin, end int) {
			for p := begin; p < end; p++ {
				lo := bounds[2*p]
				mid := bounds[min(2*p+1, last)]
				hi := bounds[min(2*p+2, last)]
				merge(src[lo:mid], src[mid:hi], dst[lo:hi], cmp)
			}
		})

		merged := make([]int, 0, pairs+1)
		for p := 0; p < pairs; p++ {
			merged = append(merged, bounds[2*p])
		}
		bounds = append(merged, n)
		src, dst = dst, src
	}

	if &src[0] != &s[0] {
		copy(s, src)
	}
}

func merge[E any](a, b, out []E, cmp func(a, b E) int) {
	i, j, k := 0, 0, 0
	for i < len(a) && j < len(b) {
		if cmp(b[j], a[i]) < 0 {
			out[k] = b[j]
			j++
		} else {
			out[k] = a[i]
			i++
		}
		k++
	}
	k += copy(out[k:], a[i:])
	copy(out[k:], b[j:])
}

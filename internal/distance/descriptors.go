package distance

import (
	"math"
	"math/bits"
)

// correspondence is one nearest-neighbour pairing between two descriptor sets.
type correspondence struct {
	query    int
	train    int
	distance int
}

// hamming returns the bit distance between two descriptor rows. Bytes past the
// shorter row count as fully mismatched.
func hamming(a, b []byte) int {
	n := min(len(a), len(b))
	d := 0
	for i := 0; i < n; i++ {
		d += bits.OnesCount8(a[i] ^ b[i])
	}
	d += 8 * (max(len(a), len(b)) - n)
	return d
}

// nearest returns, for every row of from, the index of the closest row in to
// and the distance to it. Ties keep the lowest index.
func nearest(from, to [][]byte) ([]int, []int) {
	idx := make([]int, len(from))
	dist := make([]int, len(from))
	for i, q := range from {
		best, bestDist := -1, math.MaxInt
		for j, t := range to {
			if d := hamming(q, t); d < bestDist {
				best, bestDist = j, d
			}
		}
		idx[i] = best
		dist[i] = bestDist
	}
	return idx, dist
}

// bruteForceMatch pairs every query row with its nearest train row. With
// crossCheck only mutual nearest neighbours are kept.
func bruteForceMatch(query, train [][]byte, crossCheck bool) []correspondence {
	if len(query) == 0 || len(train) == 0 {
		return nil
	}

	fwd, fwdDist := nearest(query, train)
	var back []int
	if crossCheck {
		back, _ = nearest(train, query)
	}

	matches := make([]correspondence, 0, len(query))
	for i, j := range fwd {
		if j < 0 {
			continue
		}
		if crossCheck && back[j] != i {
			continue
		}
		matches = append(matches, correspondence{query: i, train: j, distance: fwdDist[i]})
	}
	return matches
}

// descriptorDistance computes the normalized distance between two descriptor
// sets. Both empty gives 0, exactly one empty gives 1, no correspondence at
// all gives 1. Otherwise the distance is 1 - good/max(total, good) where a
// correspondence is good when its raw distance is under matchThreshold.
func descriptorDistance(a, b [][]byte, matchThreshold int, crossCheck bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	if len(a) == 0 || len(b) == 0 {
		return 1
	}

	matches := bruteForceMatch(a, b, crossCheck)
	if len(matches) == 0 {
		return 1
	}

	good := 0
	for _, m := range matches {
		if m.distance < matchThreshold {
			good++
		}
	}
	return 1 - float64(good)/float64(max(len(matches), good))
}

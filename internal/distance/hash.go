package distance

// hashDistance returns the normalized Hamming distance between two hash bit
// strings. Bytes past the shorter hash count as fully mismatched. Two empty
// hashes are identical; an empty hash against a non-empty one is a full
// mismatch.
func hashDistance(a, b []byte) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	if len(a) == 0 || len(b) == 0 {
		return 1
	}
	return float64(hamming(a, b)) / float64(max(len(a), len(b))*8)
}

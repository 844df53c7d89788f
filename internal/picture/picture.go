// Package picture holds the immutable picture record and its feature bundle.
package picture

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"
)

// Feature is the output of one extraction algorithm for one picture.
// Descriptor algorithms fill Descriptors (one binary row per keypoint),
// hash algorithms fill Hash. A nil Descriptors slice means the extractor
// found no keypoints.
type Feature struct {
	Descriptors [][]byte `json:"descriptors,omitempty"`
	Hash        []byte   `json:"hash,omitempty"`
}

// HasDescriptors reports whether at least one descriptor row is present.
func (f Feature) HasDescriptors() bool {
	return len(f.Descriptors) > 0
}

// FeatureBundle maps algorithm name to extracted feature.
type FeatureBundle map[string]Feature

// Algorithms returns the algorithm names present in the bundle, sorted.
func (b FeatureBundle) Algorithms() []string {
	names := make([]string, 0, len(b))
	for name := range b {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Picture is a stored, immutable picture record.
type Picture struct {
	ID        string
	Bundle    FeatureBundle
	RawRef    string // reference to the raw bytes, owned by storage
	CreatedAt time.Time
}

// IDFromContent derives a stable picture id from the raw image bytes.
func IDFromContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SignatureDim is the length of the vector produced by Signature.
const SignatureDim = 64

// Signature folds the hash features of a bundle into a fixed-length vector
// usable by a nearest-neighbour index. Each output slot counts the set bits
// that land on it across all hashes (in algorithm name order), so equal
// hashes give equal vectors and a few flipped bits give a small cosine
// distance. Bundles without any hash yield nil.
func Signature(b FeatureBundle) []float32 {
	var vec []float32
	for _, name := range b.Algorithms() {
		h := b[name].Hash
		if len(h) == 0 {
			continue
		}
		if vec == nil {
			vec = make([]float32, SignatureDim)
		}
		for i, by := range h {
			for bit := 0; bit < 8; bit++ {
				slot := (i*8 + bit) % SignatureDim
				if by&(1<<uint(7-bit)) != 0 {
					vec[slot]++
				} else {
					vec[slot]--
				}
			}
		}
	}
	return vec
}

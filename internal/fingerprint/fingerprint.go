// Package fingerprint extracts perceptual hash features from image bytes.
// It is the simple extractor behind the ingest command; keypoint descriptors
// come from upstream extractors.
package fingerprint

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"sort"

	"github.com/kozaktomas/photo-cluster/internal/picture"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// Hasher computes one 64-bit perceptual hash.
type Hasher interface {
	Name() string
	Hash(img image.Image) uint64
}

// PHash is the DCT based perceptual hash.
type PHash struct{}

// DHash is the horizontal gradient difference hash.
type DHash struct{}

// AHash is the mean brightness average hash.
type AHash struct{}

func (PHash) Name() string { return "phash" }
func (DHash) Name() string { return "dhash" }
func (AHash) Name() string { return "ahash" }

// DefaultHashers returns every hasher the package provides.
func DefaultHashers() []Hasher {
	return []Hasher{PHash{}, DHash{}, AHash{}}
}

// Extractor turns image bytes into a feature bundle.
type Extractor struct {
	hashers []Hasher
}

// NewExtractor creates an extractor for hashers; none means all.
func NewExtractor(hashers ...Hasher) *Extractor {
	if len(hashers) == 0 {
		hashers = DefaultHashers()
	}
	return &Extractor{hashers: hashers}
}

// Extract decodes imageData and computes one hash feature per hasher. Hashes
// are stored as 8 big-endian bytes.
func (e *Extractor) Extract(imageData []byte) (picture.FeatureBundle, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bundle := make(picture.FeatureBundle, len(e.hashers))
	for _, h := range e.hashers {
		bundle[h.Name()] = picture.Feature{Hash: HashBytes(h.Hash(img))}
	}
	return bundle, nil
}

// HashBytes encodes a 64-bit hash as 8 big-endian bytes.
func HashBytes(h uint64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, h)
	return out
}

// HammingDistance computes the Hamming distance between two 64-bit hashes.
func HammingDistance(hash1, hash2 uint64) int {
	xor := hash1 ^ hash2
	distance := 0
	for xor != 0 {
		distance++
		xor &= xor - 1
	}
	return distance
}

// Hash sets a bit for every 8x8 low-frequency DCT coefficient of the 32x32
// grayscale image above their median. The DC term is left out of the median.
func (PHash) Hash(img image.Image) uint64 {
	gray := toGrayscale(resizeImage(img, 32, 32))
	dct := computeDCT(gray)

	coeffs := make([]float64, 0, 64)
	for u := range 8 {
		for v := range 8 {
			coeffs = append(coeffs, dct[u][v])
		}
	}
	median := computeMedian(coeffs[1:])

	var hash uint64
	for i, c := range coeffs {
		if c > median {
			hash |= 1 << (63 - i)
		}
	}
	return hash
}

// Hash compares horizontally adjacent pixels of the 9x8 grayscale image.
func (DHash) Hash(img image.Image) uint64 {
	gray := toGrayscale(resizeImage(img, 9, 8))

	var hash uint64
	bit := 63
	for y := range 8 {
		for x := range 8 {
			if gray[x][y] > gray[x+1][y] {
				hash |= 1 << bit
			}
			bit--
		}
	}
	return hash
}

// Hash sets a bit for every pixel of the 8x8 grayscale image brighter than
// the mean.
func (AHash) Hash(img image.Image) uint64 {
	gray := toGrayscale(resizeImage(img, 8, 8))

	var mean float64
	for x := range 8 {
		for y := range 8 {
			mean += gray[x][y]
		}
	}
	mean /= 64

	var hash uint64
	bit := 63
	for y := range 8 {
		for x := range 8 {
			if gray[x][y] > mean {
				hash |= 1 << bit
			}
			bit--
		}
	}
	return hash
}

func resizeImage(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// toGrayscale returns BT.601 luma values indexed [x][y].
func toGrayscale(img *image.RGBA) [][]float64 {
	bounds := img.Bounds()
	gray := make([][]float64, bounds.Dx())
	for x := range gray {
		gray[x] = make([]float64, bounds.Dy())
		for y := range gray[x] {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			gray[x][y] = 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
		}
	}
	return gray
}

// computeDCT is a square DCT-II.
func computeDCT(gray [][]float64) [][]float64 {
	n := len(gray)
	cos := make([][]float64, n)
	for i := range cos {
		cos[i] = make([]float64, n)
		for j := range n {
			cos[i][j] = math.Cos(math.Pi * float64(i) * (2*float64(j) + 1) / (2 * float64(n)))
		}
	}

	out := make([][]float64, n)
	for u := range n {
		out[u] = make([]float64, n)
		for v := range n {
			var sum float64
			for x := range n {
				for y := range n {
					sum += gray[x][y] * cos[u][x] * cos[v][y]
				}
			}
			out[u][v] = sum
		}
	}
	return out
}

func computeMedian(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

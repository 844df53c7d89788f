package fingerprint

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func TestHammingDistance(t *testing.T) {
	tests := []struct {
		name     string
		hash1    uint64
		hash2    uint64
		expected int
	}{
		{"identical", 0x0, 0x0, 0},
		{"completely different", 0xFFFFFFFFFFFFFFFF, 0x0, 64},
		{"one bit different", 0x1, 0x0, 1},
		{"four bits different", 0xF, 0x0, 4},
		{"alternating", 0xAAAAAAAAAAAAAAAA, 0x5555555555555555, 64},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := HammingDistance(tc.hash1, tc.hash2)
			if result != tc.expected {
				t.Errorf("HammingDistance(%x, %x) = %d; want %d", tc.hash1, tc.hash2, result, tc.expected)
			}
		})
	}
}

func TestHashBytes(t *testing.T) {
	b := HashBytes(0x0102030405060708)
	if len(b) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(b))
	}
	if b[0] != 0x01 || b[7] != 0x08 {
		t.Errorf("expected big-endian bytes, got %x", b)
	}
}

func TestExtract(t *testing.T) {
	data := encodeJPEG(createGradientImage(100, 100))

	bundle, err := NewExtractor().Extract(data)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	for _, name := range []string{"phash", "dhash", "ahash"} {
		f, ok := bundle[name]
		if !ok {
			t.Errorf("expected %s in bundle", name)
			continue
		}
		if len(f.Hash) != 8 {
			t.Errorf("%s: expected 8 hash bytes, got %d", name, len(f.Hash))
		}
		if f.HasDescriptors() {
			t.Errorf("%s: hash feature should carry no descriptors", name)
		}
	}
}

func TestExtractSelectedHashers(t *testing.T) {
	data := encodeJPEG(createTestImage(50, 50, color.White))

	bundle, err := NewExtractor(DHash{}).Extract(data)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(bundle) != 1 {
		t.Fatalf("expected 1 feature, got %d", len(bundle))
	}
	if _, ok := bundle["dhash"]; !ok {
		t.Error("expected dhash in bundle")
	}
}

func TestExtractConsistency(t *testing.T) {
	data := encodeJPEG(createGradientImage(100, 100))
	e := NewExtractor()

	first, err := e.Extract(data)
	if err != nil {
		t.Fatalf("first Extract failed: %v", err)
	}
	second, err := e.Extract(data)
	if err != nil {
		t.Fatalf("second Extract failed: %v", err)
	}
	for name, f := range first {
		if !bytes.Equal(f.Hash, second[name].Hash) {
			t.Errorf("%s should be consistent: %x vs %x", name, f.Hash, second[name].Hash)
		}
	}
}

func TestExtractSimilarImages(t *testing.T) {
	original := createGradientImage(120, 120)
	resized := resizeImage(original, 60, 60)

	e := NewExtractor(DHash{})
	a, err := e.Extract(encodeJPEG(original))
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Extract(encodeJPEG(resized))
	if err != nil {
		t.Fatal(err)
	}

	d := HammingDistance(binary.BigEndian.Uint64(a["dhash"].Hash), binary.BigEndian.Uint64(b["dhash"].Hash))
	if d > 10 {
		t.Errorf("resized copy should stay within 10 bits, got %d", d)
	}
}

func TestExtractInvalidImage(t *testing.T) {
	if _, err := NewExtractor().Extract([]byte("not an image")); err == nil {
		t.Error("Extract should fail for invalid image data")
	}
}

func TestAHashUniformImage(t *testing.T) {
	// No pixel is brighter than the mean of a uniform image
	if h := (AHash{}).Hash(createTestImage(16, 16, color.Black)); h != 0 {
		t.Errorf("expected zero hash for uniform image, got %x", h)
	}
}

func TestToGrayscale(t *testing.T) {
	img := createTestImage(10, 10, color.RGBA{255, 0, 0, 255})

	gray := toGrayscale(img)

	if len(gray) != 10 || len(gray[0]) != 10 {
		t.Fatalf("expected 10x10, got %dx%d", len(gray), len(gray[0]))
	}
	expectedLuma := 0.299 * 255
	if gray[0][0] < expectedLuma-1 || gray[0][0] > expectedLuma+1 {
		t.Errorf("red pixel luma should be ~%.2f, got %.2f", expectedLuma, gray[0][0])
	}
}

func TestComputeMedian(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		expected float64
	}{
		{"odd count", []float64{1, 2, 3, 4, 5}, 3},
		{"even count", []float64{1, 2, 3, 4}, 2.5},
		{"single value", []float64{42}, 42},
		{"unsorted", []float64{5, 1, 3, 2, 4}, 3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if result := computeMedian(tc.values); result != tc.expected {
				t.Errorf("computeMedian(%v) = %f; want %f", tc.values, result, tc.expected)
			}
		})
	}
}

// Helper functions

func createTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func createGradientImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			gray := uint8((x*x + y) * 255 / (width*width + height))
			img.Set(x, y, color.RGBA{gray, gray, gray, 255})
		}
	}
	return img
}

func encodeJPEG(img image.Image) []byte {
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	return buf.Bytes()
}

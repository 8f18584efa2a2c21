package frames

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"golang.org/x/image/draw"
)

const hashSize = 8

// FrameHash is an 8x8 greyscale thumbnail used for near-duplicate detection.
type FrameHash [hashSize * hashSize]uint8

// HashImage downsamples the image to the hash thumbnail.
func HashImage(img image.Image) FrameHash {
	gray := image.NewGray(image.Rect(0, 0, hashSize, hashSize))
	draw.ApproxBiLinear.Scale(gray, gray.Bounds(), img, img.Bounds(), draw.Src, nil)
	var hash FrameHash
	copy(hash[:], gray.Pix)
	return hash
}

// HashFile decodes an image file and returns its hash.
func HashFile(path string) (FrameHash, error) {
	file, err := os.Open(path)
	if err != nil {
		return FrameHash{}, fmt.Errorf("hash frame: %w", err)
	}
	defer file.Close()
	img, _, err := image.Decode(file)
	if err != nil {
		return FrameHash{}, fmt.Errorf("hash frame %s: %w", path, err)
	}
	return HashImage(img), nil
}

// Distance returns the normalized mean absolute pixel difference in [0, 1].
// Identical frames score 0, a black frame against a white one scores 1.
func (h FrameHash) Distance(other FrameHash) float64 {
	diff := 0
	for i := range h {
		d := int(h[i]) - int(other[i])
		if d < 0 {
			d = -d
		}
		diff += d
	}
	return float64(diff) / float64(len(h)*255)
}

// distinctFrom reports whether the hash differs from every kept hash by at
// least the similarity threshold.
func (h FrameHash) distinctFrom(kept []FrameHash, threshold float64) bool {
	for _, existing := range kept {
		if h.Distance(existing) < threshold {
			return false
		}
	}
	return true
}

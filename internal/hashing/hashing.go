// Package hashing computes perceptual and exact digests for image bytes.
//
// The perceptual hash is a 256-bit DCT hash: the image is downscaled to a
// 64x64 luminance grid, a 16x16 block of low-frequency DCT coefficients is
// extracted, and each coefficient is thresholded against the block median.
// Hashes of visually similar images differ in few bits, so near-duplicate
// lookup reduces to hamming distance.
package hashing

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"image"
	"math"
	"math/bits"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/rotisserie/eris"
)

// Size is the hash length in bytes (256 bits).
const Size = 32

const (
	lumaGrid = 64
	dctGrid  = 16
)

// Hash is a 256-bit perceptual hash.
type Hash [Size]byte

// String returns the hash as a 64-character lowercase hex string, the form
// stored in signal documents and index snapshots.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Parse decodes a 64-character hex string into a Hash.
func Parse(s string) (Hash, error) {
	var h Hash
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, eris.Wrap(err, "hashing: parse hash")
	}
	if len(raw) != Size {
		return h, eris.Errorf("hashing: hash must be %d bytes, got %d", Size, len(raw))
	}
	copy(h[:], raw)
	return h, nil
}

// Distance returns the hamming distance between two hashes (0..256).
func Distance(a, b Hash) int {
	d := 0
	for i := range a {
		d += bits.OnesCount8(a[i] ^ b[i])
	}
	return d
}

// MD5Hex returns the lowercase hex MD5 digest of data, used for exact
// duplicate lookup alongside the perceptual hash.
func MD5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// FromBytes decodes image bytes and returns the perceptual hash. Supported
// formats are JPEG, PNG and GIF.
func FromBytes(data []byte) (Hash, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Hash{}, eris.Wrap(err, "hashing: decode image")
	}
	return FromImage(img), nil
}

// FromImage computes the perceptual hash of a decoded image.
func FromImage(img image.Image) Hash {
	luma := downscaleLuma(img)
	coeffs := dct2d(luma)

	// Threshold each low-frequency coefficient against the block median.
	// The DC term is excluded from the median so a uniform brightness
	// shift does not flip the whole hash.
	flat := make([]float64, 0, dctGrid*dctGrid-1)
	for y := 0; y < dctGrid; y++ {
		for x := 0; x < dctGrid; x++ {
			if x == 0 && y == 0 {
				continue
			}
			flat = append(flat, coeffs[y][x])
		}
	}
	m := median(flat)

	var h Hash
	bit := 0
	for y := 0; y < dctGrid; y++ {
		for x := 0; x < dctGrid; x++ {
			if coeffs[y][x] > m {
				h[bit/8] |= 1 << (7 - bit%8)
			}
			bit++
		}
	}
	return h
}

// downscaleLuma box-filters the image down to a lumaGrid square of
// luminance values.
func downscaleLuma(img image.Image) [lumaGrid][lumaGrid]float64 {
	var out [lumaGrid][lumaGrid]float64
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return out
	}

	for gy := 0; gy < lumaGrid; gy++ {
		y0 := b.Min.Y + gy*h/lumaGrid
		y1 := b.Min.Y + (gy+1)*h/lumaGrid
		if y1 <= y0 {
			y1 = y0 + 1
		}
		for gx := 0; gx < lumaGrid; gx++ {
			x0 := b.Min.X + gx*w/lumaGrid
			x1 := b.Min.X + (gx+1)*w/lumaGrid
			if x1 <= x0 {
				x1 = x0 + 1
			}

			var sum float64
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					r, g, bl, _ := img.At(x, y).RGBA()
					// Rec. 601 luma on 16-bit channels.
					sum += 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)
				}
			}
			out[gy][gx] = sum / float64((y1-y0)*(x1-x0)) / 257.0
		}
	}
	return out
}

// dct2d computes the top-left dctGrid x dctGrid block of the 2D DCT-II of
// the luma grid.
func dct2d(luma [lumaGrid][lumaGrid]float64) [dctGrid][dctGrid]float64 {
	// Separable DCT: rows first, then columns, keeping only the low
	// frequencies we need.
	var rows [lumaGrid][dctGrid]float64
	for y := 0; y < lumaGrid; y++ {
		for u := 0; u < dctGrid; u++ {
			var sum float64
			for x := 0; x < lumaGrid; x++ {
				sum += luma[y][x] * math.Cos(math.Pi*float64(u)*(2*float64(x)+1)/(2*lumaGrid))
			}
			rows[y][u] = sum
		}
	}

	var out [dctGrid][dctGrid]float64
	for v := 0; v < dctGrid; v++ {
		for u := 0; u < dctGrid; u++ {
			var sum float64
			for y := 0; y < lumaGrid; y++ {
				sum += rows[y][u] * math.Cos(math.Pi*float64(v)*(2*float64(y)+1)/(2*lumaGrid))
			}
			out[v][u] = sum
		}
	}
	return out
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	// Insertion sort is fine at this size.
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

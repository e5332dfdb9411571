// Package detector decides whether two consecutive frames of the same
// monitor differ enough to be worth recording.
package detector

import (
	"image"
)

// DefaultThreshold is the similarity at or above which a frame is treated
// as unchanged.
const DefaultThreshold = 0.9

const (
	c1 = (0.01 * 255) * (0.01 * 255)
	c2 = (0.03 * 255) * (0.03 * 255)
)

// Luma converts img to a row-major grayscale plane using the
// 0.2989/0.5870/0.1140 weighting on 8-bit channels.
func Luma(img image.Image) []float64 {
	b := img.Bounds()
	out := make([]float64, 0, b.Dx()*b.Dy())

	if rgba, ok := img.(*image.RGBA); ok {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := rgba.Pix[rgba.PixOffset(b.Min.X, y):rgba.PixOffset(b.Max.X, y)]
			for i := 0; i+3 < len(row); i += 4 {
				out = append(out, weigh(float64(row[i]), float64(row[i+1]), float64(row[i+2])))
			}
		}
		return out
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			out = append(out, weigh(float64(r>>8), float64(g>>8), float64(bl>>8)))
		}
	}
	return out
}

func weigh(r, g, b float64) float64 {
	return 0.2989*r + 0.5870*g + 0.1140*b
}

// Similarity returns one structural-similarity statistic computed over the
// whole frame (not windowed). Frames of different dimensions score 0.
func Similarity(a, b image.Image) float64 {
	if a.Bounds().Dx() != b.Bounds().Dx() || a.Bounds().Dy() != b.Bounds().Dy() {
		return 0
	}
	return ssim(Luma(a), Luma(b))
}

func ssim(x, y []float64) float64 {
	n := float64(len(x))
	if n == 0 {
		return 1
	}

	var sumX, sumY float64
	for i := range x {
		sumX += x[i]
		sumY += y[i]
	}
	muX, muY := sumX/n, sumY/n

	var varX, varY, cov float64
	for i := range x {
		dx := x[i] - muX
		dy := y[i] - muY
		varX += dx * dx
		varY += dy * dy
		cov += dx * dy
	}
	varX /= n
	varY /= n
	cov /= n

	num := (2*muX*muY + c1) * (2*cov + c2)
	den := (muX*muX + muY*muY + c1) * (varX + varY + c2)
	return num / den
}

// IsSimilar reports whether b is visually unchanged from a.
func IsSimilar(a, b image.Image) bool {
	return Similarity(a, b) >= DefaultThreshold
}

// Detector is a threshold-configurable wrapper around Similarity.
type Detector struct {
	Threshold float64
}

func New(threshold float64) *Detector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Detector{Threshold: threshold}
}

func (d *Detector) IsSimilar(a, b image.Image) bool {
	return Similarity(a, b) >= d.Threshold
}

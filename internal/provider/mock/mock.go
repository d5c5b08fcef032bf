// Package mock is a deterministic face detector for development and tests.
// It reports one centered face whenever the frame is reasonably lit and has
// some contrast, which is what a person in front of a webcam looks like.
package mock

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"github.com/saturnino-fabrica-de-software/dermalens/internal/domain"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/provider"
)

const (
	minLuma     = 40.0
	maxLuma     = 220.0
	minContrast = 12.0
	sampleGrid  = 32
)

// Provider implementa provider.FaceDetector para testes e desenvolvimento
type Provider struct{}

// New creates a mock detector
func New() *Provider {
	return &Provider{}
}

// DetectFaces decodes the image and applies the lighting heuristic
func (p *Provider) DetectFaces(ctx context.Context, data []byte) ([]provider.DetectedFace, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}

	mean, stddev := luminance(img)
	if mean < minLuma || mean > maxLuma || stddev < minContrast {
		return []provider.DetectedFace{}, nil
	}

	confidence := math.Min(0.99, 0.6+stddev/100)
	return []provider.DetectedFace{
		{
			BoundingBox: provider.BoundingBox{
				X:      0.3,
				Y:      0.25,
				Width:  0.4,
				Height: 0.5,
			},
			Confidence:   confidence,
			QualityScore: 1 - math.Abs(mean-128)/128,
		},
	}, nil
}

// luminance samples a grid of pixels and returns mean and standard deviation
// of their luma on a 0-255 scale
func luminance(img image.Image) (float64, float64) {
	b := img.Bounds()
	if b.Empty() {
		return 0, 0
	}

	stepX := max(1, b.Dx()/sampleGrid)
	stepY := max(1, b.Dy()/sampleGrid)

	var sum, sumSq, n float64
	for y := b.Min.Y; y < b.Max.Y; y += stepY {
		for x := b.Min.X; x < b.Max.X; x += stepX {
			r, g, bl, _ := img.At(x, y).RGBA()
			l := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)) / 257
			sum += l
			sumSq += l * l
			n++
		}
	}

	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}

var _ provider.FaceDetector = (*Provider)(nil)

package deepface

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"net/http"

	"github.com/saturnino-fabrica-de-software/dermalens/internal/provider"
)

const (
	// minFaceArea is the minimum face area (in pixels²) for reliable detection
	minFaceArea = 2500 // 50x50 pixels
	// maxFaceArea is used for confidence scaling
	maxFaceArea = 250000 // 500x500 pixels
)

// Provider implements provider.FaceDetector using the DeepFace API
type Provider struct {
	client *Client
}

// NewProvider creates a new DeepFace provider
func NewProvider(config Config) *Provider {
	return &Provider{
		client: NewClient(config),
	}
}

// DetectFaces detects faces in the image
func (p *Provider) DetectFaces(ctx context.Context, data []byte) ([]provider.DetectedFace, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImageFormat, err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, ErrInvalidImageFormat
	}

	imageBase64 := "data:" + http.DetectContentType(data) + ";base64," + base64.StdEncoding.EncodeToString(data)

	resp, err := p.client.Analyze(ctx, imageBase64)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	width, height := float64(cfg.Width), float64(cfg.Height)

	faces := make([]provider.DetectedFace, 0, len(resp.Results))
	for _, result := range resp.Results {
		area := result.Region

		// Without enforce_detection DeepFace answers "no face" with the whole frame
		if result.FaceConfidence == 0 && area.W >= cfg.Width && area.H >= cfg.Height {
			continue
		}

		faceArea := float64(area.W * area.H)
		confidence := result.FaceConfidence
		if confidence <= 0 || confidence > 1 {
			confidence = calculateConfidence(faceArea)
		}

		faces = append(faces, provider.DetectedFace{
			BoundingBox: provider.BoundingBox{
				X:      float64(area.X) / width,
				Y:      float64(area.Y) / height,
				Width:  float64(area.W) / width,
				Height: float64(area.H) / height,
			},
			Confidence:   confidence,
			QualityScore: calculateQuality(faceArea),
		})
	}

	return faces, nil
}

// calculateConfidence estimates confidence based on face area
// when the detector backend does not report one
func calculateConfidence(faceArea float64) float64 {
	if faceArea < minFaceArea {
		return 0.5 // Low confidence for very small faces
	}
	// Scale from 0.7 to 0.99 based on face area
	normalized := math.Min(1.0, (faceArea-minFaceArea)/(maxFaceArea-minFaceArea))
	return 0.7 + (normalized * 0.29)
}

// calculateQuality estimates quality score based on face area
func calculateQuality(faceArea float64) float64 {
	if faceArea < minFaceArea {
		return 0.4 // Low quality for very small faces
	}
	// Scale from 0.6 to 0.95 based on face area
	normalized := math.Min(1.0, (faceArea-minFaceArea)/(maxFaceArea-minFaceArea))
	return 0.6 + (normalized * 0.35)
}

// Ensure Provider implements provider.FaceDetector
var _ provider.FaceDetector = (*Provider)(nil)

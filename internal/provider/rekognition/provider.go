package rekognition

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/saturnino-fabrica-de-software/dermalens/internal/provider"
)

const (
	// maxImageSize is the maximum image size supported by AWS Rekognition (5MB)
	maxImageSize = 5 * 1024 * 1024
	// minImageSize is the minimum image size for valid processing
	minImageSize = 100
)

// Provider implements provider.FaceDetector using AWS Rekognition
type Provider struct {
	client *Client
}

// Ensure Provider implements provider.FaceDetector interface at compile time
var _ provider.FaceDetector = (*Provider)(nil)

// NewProvider creates a new Rekognition provider
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create rekognition client: %w", err)
	}
	return &Provider{client: client}, nil
}

// NewProviderWithClient creates a provider over an existing client
func NewProviderWithClient(client *Client) *Provider {
	return &Provider{client: client}
}

// validateImage checks if image data is valid for Rekognition processing
func validateImage(image []byte) error {
	if len(image) == 0 {
		return ErrInvalidImage
	}
	if len(image) < minImageSize {
		return fmt.Errorf("%w: image too small (%d bytes, minimum %d)", ErrInvalidImage, len(image), minImageSize)
	}
	if len(image) > maxImageSize {
		return fmt.Errorf("%w: image too large (%d bytes, maximum %d)", ErrInvalidImage, len(image), maxImageSize)
	}
	return nil
}

// DetectFaces detects faces in an image using AWS Rekognition DetectFaces API
// Returns an empty slice if no faces are detected (not an error)
func (p *Provider) DetectFaces(ctx context.Context, image []byte) ([]provider.DetectedFace, error) {
	if err := validateImage(image); err != nil {
		return nil, err
	}

	input := &rekognition.DetectFacesInput{
		Image: &types.Image{
			Bytes: image,
		},
		Attributes: []types.Attribute{types.AttributeDefault},
	}

	output, err := p.client.rekognition.DetectFaces(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", mapAPIError(err))
	}

	faces := make([]provider.DetectedFace, 0, len(output.FaceDetails))
	for _, detail := range output.FaceDetails {
		if detail.BoundingBox == nil || detail.Confidence == nil {
			continue
		}
		if float64(*detail.Confidence) < p.client.config.MinConfidence {
			continue
		}

		faces = append(faces, provider.DetectedFace{
			BoundingBox: provider.BoundingBox{
				X:      float64(value(detail.BoundingBox.Left)),
				Y:      float64(value(detail.BoundingBox.Top)),
				Width:  float64(value(detail.BoundingBox.Width)),
				Height: float64(value(detail.BoundingBox.Height)),
			},
			// Rekognition reports 0-100
			Confidence:   float64(*detail.Confidence) / 100.0,
			QualityScore: p.calculateQualityScore(detail.Quality),
			Pose:         convertPose(detail.Pose),
		})
	}

	return faces, nil
}

// calculateQualityScore computes an overall quality score from Rekognition quality metrics
// Returns a score between 0.0 (poor quality) and 1.0 (excellent quality)
func (p *Provider) calculateQualityScore(quality *types.ImageQuality) float64 {
	if quality == nil {
		return 0.0
	}

	// AWS Rekognition provides brightness and sharpness scores (0-100)
	brightness := 0.0
	sharpness := 0.0

	if quality.Brightness != nil {
		brightness = float64(*quality.Brightness) / 100.0
	}

	if quality.Sharpness != nil {
		sharpness = float64(*quality.Sharpness) / 100.0
	}

	// Sharpness matters most for lesion detail
	return brightness*0.3 + sharpness*0.7
}

func convertPose(pose *types.Pose) *provider.Pose {
	if pose == nil {
		return nil
	}
	return &provider.Pose{
		Pitch: float64(value(pose.Pitch)),
		Roll:  float64(value(pose.Roll)),
		Yaw:   float64(value(pose.Yaw)),
	}
}

func value(v *float32) float32 {
	if v == nil {
		return 0
	}
	return *v
}

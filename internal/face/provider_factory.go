// Package face selects the face detector the detection relay runs frames through
package face

import (
	"context"
	"fmt"

	"github.com/saturnino-fabrica-de-software/dermalens/internal/config"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/provider"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/provider/deepface"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/provider/mock"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/provider/rekognition"
)

// ProviderType defines supported face detection provider types
type ProviderType string

const (
	// ProviderTypeMock is the in-process luminance heuristic (no external service)
	ProviderTypeMock ProviderType = "mock"
	// ProviderTypeDeepFace is the DeepFace provider (local, for dev/test)
	ProviderTypeDeepFace ProviderType = "deepface"
	// ProviderTypeRekognition is the AWS Rekognition provider (cloud, for prod)
	ProviderTypeRekognition ProviderType = "rekognition"
)

// NewDetector creates a FaceDetector based on configuration
//
// Environment variables:
//   - FACE_PROVIDER: "mock", "deepface" or "rekognition" (default: "mock")
//   - DEEPFACE_URL: DeepFace API URL (default: "http://localhost:5005")
//   - AWS_REGION: AWS region for Rekognition (default: "us-east-1")
//   - AWS_ACCESS_KEY_ID: AWS credentials (via AWS SDK credential chain)
//   - AWS_SECRET_ACCESS_KEY: AWS credentials (via AWS SDK credential chain)
func NewDetector(ctx context.Context, cfg *config.Config) (provider.FaceDetector, error) {
	switch ProviderType(cfg.FaceProvider) {
	case ProviderTypeMock, "":
		return mock.New(), nil

	case ProviderTypeDeepFace:
		return createDeepFaceProvider(cfg), nil

	case ProviderTypeRekognition:
		return createRekognitionProvider(ctx, cfg)

	default:
		return nil, fmt.Errorf("unknown provider type: %s (supported: %s, %s, %s)",
			cfg.FaceProvider, ProviderTypeMock, ProviderTypeDeepFace, ProviderTypeRekognition)
	}
}

func createRekognitionProvider(ctx context.Context, cfg *config.Config) (provider.FaceDetector, error) {
	rekogConfig := rekognition.DefaultConfig()
	if cfg.AWSRegion != "" {
		rekogConfig.Region = cfg.AWSRegion
	}

	prov, err := rekognition.NewProvider(ctx, rekogConfig)
	if err != nil {
		return nil, fmt.Errorf("create rekognition provider: %w", err)
	}

	return prov, nil
}

func createDeepFaceProvider(cfg *config.Config) provider.FaceDetector {
	// Defaults for timeout, detector and retry
	deepfaceConfig := deepface.DefaultConfig()
	if cfg.DeepFaceURL != "" {
		deepfaceConfig.BaseURL = cfg.DeepFaceURL
	}

	return deepface.NewProvider(deepfaceConfig)
}

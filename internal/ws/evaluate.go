package ws

import (
	"github.com/saturnino-fabrica-de-software/dermalens/internal/detection"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/provider"
)

// Feedback shown to the user for each verdict
const (
	FeedbackNoFace        = "No face detected"
	FeedbackMultipleFaces = "Multiple faces detected, only one person should be in frame"
	FeedbackLowConfidence = "Face not clear, improve the lighting"
	FeedbackTooFar        = "Move closer to the camera"
	FeedbackNotCentered   = "Center your face in the frame"
	FeedbackReady         = "Hold still"
)

// Evaluate turns the faces found in one frame into the verdict sent back to
// the client. A frame is ready for capture when it holds exactly one face
// that is confident, large enough and centered.
func Evaluate(faces []provider.DetectedFace, cfg Config) detection.FaceDetectionResult {
	result := detection.FaceDetectionResult{
		FaceDetected: len(faces) > 0,
		FaceCount:    len(faces),
	}

	for _, f := range faces {
		if f.Confidence > result.Confidence {
			result.Confidence = f.Confidence
		}
	}

	switch {
	case len(faces) == 0:
		result.Message = FeedbackNoFace
	case len(faces) > 1:
		result.Message = FeedbackMultipleFaces
	case faces[0].Confidence < cfg.MinConfidence:
		result.Message = FeedbackLowConfidence
	case faces[0].BoundingBox.Area() < cfg.MinFaceArea:
		result.Message = FeedbackTooFar
	case !faces[0].BoundingBox.Centered(cfg.CenterMargin):
		result.Message = FeedbackNotCentered
	default:
		result.ReadyForCapture = true
		result.Message = FeedbackReady
	}

	return result
}

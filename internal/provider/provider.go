// Package provider defines the face detection backends the detection relay
// runs sampled frames through.
package provider

import "context"

// FaceDetector finds faces in one encoded image
type FaceDetector interface {
	// DetectFaces returns every face found. No face is an empty slice, not an error.
	DetectFaces(ctx context.Context, image []byte) ([]DetectedFace, error)
}

// DetectedFace is one face in the image. Confidence and QualityScore are in
// the 0-1 range; the bounding box is relative to the image size.
type DetectedFace struct {
	BoundingBox  BoundingBox `json:"bounding_box"`
	Confidence   float64     `json:"confidence"`
	QualityScore float64     `json:"quality_score"`
	Pose         *Pose       `json:"pose,omitempty"`
}

// Pose represents face orientation angles
type Pose struct {
	Pitch float64 `json:"pitch"` // up/down rotation
	Roll  float64 `json:"roll"`  // tilted rotation
	Yaw   float64 `json:"yaw"`   // left/right rotation
}

// BoundingBox represents the face area as fractions of the image
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns the fraction of the image covered by the box
func (b BoundingBox) Area() float64 {
	return b.Width * b.Height
}

// Centered reports whether the box center lies within margin of the image center
func (b BoundingBox) Centered(margin float64) bool {
	cx := b.X + b.Width/2
	cy := b.Y + b.Height/2
	return cx > 0.5-margin && cx < 0.5+margin && cy > 0.5-margin && cy < 0.5+margin
}

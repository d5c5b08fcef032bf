package docs

import (
	"github.com/go-swagno/swagno"
	"github.com/go-swagno/swagno/components/endpoint"
	"github.com/go-swagno/swagno/components/http/response"
	"github.com/go-swagno/swagno/components/mime"
	"github.com/go-swagno/swagno/components/parameter"
)

// HealthResponse represents the liveness and readiness payload
type HealthResponse struct {
	Status   string `json:"status" example:"ok"`
	Version  string `json:"version" example:"0.1.0"`
	Sessions int    `json:"sessions,omitempty" example:"2"`
}

// SessionInfo describes one live detection session
type SessionInfo struct {
	SessionID       string `json:"session_id" example:"f3b1c2d4-capture"`
	Clients         int    `json:"clients" example:"1"`
	FramesProcessed int64  `json:"frames_processed" example:"240"`
	ConnectedAt     string `json:"connected_at" example:"2024-01-01T00:00:00Z"`
}

// SessionsResponse lists the live detection sessions
type SessionsResponse struct {
	Sessions []SessionInfo `json:"sessions"`
}

// CaptureResponse acknowledges a capture command
type CaptureResponse struct {
	SessionID string `json:"session_id" example:"f3b1c2d4-capture"`
	Status    string `json:"status" example:"capture_sent"`
}

// BoundingBox is a face box normalized to the image size
type BoundingBox struct {
	X      float64 `json:"x" example:"0.3"`
	Y      float64 `json:"y" example:"0.2"`
	Width  float64 `json:"width" example:"0.4"`
	Height float64 `json:"height" example:"0.5"`
}

// DetectedFace is one face found in the image
type DetectedFace struct {
	BoundingBox BoundingBox `json:"bounding_box"`
	Confidence  float64     `json:"confidence" example:"0.97"`
	Quality     float64     `json:"quality" example:"0.82"`
}

// DetectResponse is the readiness verdict for one photo
type DetectResponse struct {
	FaceDetected    bool           `json:"face_detected" example:"true"`
	Confidence      float64        `json:"confidence" example:"0.97"`
	FaceCount       int            `json:"face_count" example:"1"`
	ReadyForCapture bool           `json:"ready_for_capture" example:"true"`
	Message         string         `json:"message" example:"Hold still"`
	Faces           []DetectedFace `json:"faces"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Code    string `json:"code" example:"BAD_REQUEST"`
	Message string `json:"message" example:"Invalid request"`
}

// NewSwagger builds the API documentation served at /swagger
func NewSwagger() *swagno.Swagger {
	sw := swagno.New(swagno.Config{
		Title:       "DermaLens Detection Relay",
		Version:     "v0.1.0",
		Description: "Face detection relay for the skin capture client. Live camera frames stream over WebSocket; single photos can be checked over HTTP.",
		Host:        "localhost:8765",
	})

	internalError := response.New(ErrorResponse{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"}, "500", "Internal Server Error")
	unauthorized := response.New(ErrorResponse{Code: "UNAUTHORIZED", Message: "Invalid or missing token"}, "401", "Unauthorized")

	endpoints := []*endpoint.EndPoint{
		// GET /health - Liveness
		endpoint.New(
			endpoint.GET,
			"/health",
			endpoint.WithTags("Health"),
			endpoint.WithSummary("Liveness probe"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(HealthResponse{}, "200", "Service is up"),
			}),
		),

		// GET /ready - Readiness
		endpoint.New(
			endpoint.GET,
			"/ready",
			endpoint.WithTags("Health"),
			endpoint.WithSummary("Readiness probe"),
			endpoint.WithDescription("Reports readiness and the number of live detection sessions"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(HealthResponse{}, "200", "Service is ready"),
			}),
		),

		// GET /ws/camera/{id} - Detection session
		endpoint.New(
			endpoint.GET,
			"/ws/camera/{id}",
			endpoint.WithTags("Detection"),
			endpoint.WithSummary("Open a detection session"),
			endpoint.WithDescription("WebSocket upgrade. The client sends face_detection frames as base64 data URLs and receives face_detection_result, countdown and capture_command events."),
			endpoint.WithParams(
				parameter.StrParam("id", parameter.Path, parameter.WithDescription("Session identifier chosen by the client")),
				parameter.StrParam("token", parameter.Query, parameter.WithDescription("Access token when the relay requires one")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(ErrorResponse{}, "101", "Switching Protocols"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "BAD_REQUEST", Message: "Invalid session id"}, "400", "Bad Request"),
				unauthorized,
				response.New(ErrorResponse{Code: "HTTP_ERROR", Message: "Upgrade Required"}, "426", "Upgrade Required"),
				response.New(ErrorResponse{Code: "RATE_LIMIT_EXCEEDED", Message: "Rate limit exceeded"}, "429", "Too Many Requests"),
			}),
		),

		// GET /v1/sessions - List sessions
		endpoint.New(
			endpoint.GET,
			"/v1/sessions",
			endpoint.WithTags("Sessions"),
			endpoint.WithSummary("List live detection sessions"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SessionsResponse{}, "200", "Sessions listed"),
			}),
			endpoint.WithErrors([]response.Response{unauthorized, internalError}),
			endpoint.WithSecurity([]map[string][]string{{"BearerAuth": {}}}),
		),

		// POST /v1/sessions/{id}/capture - Manual capture
		endpoint.New(
			endpoint.POST,
			"/v1/sessions/{id}/capture",
			endpoint.WithTags("Sessions"),
			endpoint.WithSummary("Trigger a capture"),
			endpoint.WithDescription("Sends capture_command to every client connected to the session"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("id", parameter.Path, parameter.WithDescription("Session identifier")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(CaptureResponse{}, "202", "Capture command sent"),
			}),
			endpoint.WithErrors([]response.Response{
				unauthorized,
				response.New(ErrorResponse{Code: "SESSION_NOT_FOUND", Message: "Detection session not found"}, "404", "Not Found"),
				internalError,
			}),
			endpoint.WithSecurity([]map[string][]string{{"BearerAuth": {}}}),
		),

		// POST /v1/detect - Check one photo
		endpoint.New(
			endpoint.POST,
			"/v1/detect",
			endpoint.WithTags("Detection"),
			endpoint.WithSummary("Detect faces in a photo"),
			endpoint.WithDescription("Runs face detection on an uploaded image and applies the same readiness rules as live sessions"),
			endpoint.WithConsume([]mime.MIME{mime.MIME("multipart/form-data")}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(DetectResponse{}, "200", "Detection completed"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "BAD_REQUEST", Message: "image is required"}, "400", "Bad Request"),
				unauthorized,
				response.New(ErrorResponse{Code: "INVALID_IMAGE", Message: "Invalid image format or corrupted"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "DETECTION_SERVER_ERROR", Message: "Detection server error"}, "502", "Bad Gateway"),
				internalError,
			}),
			endpoint.WithSecurity([]map[string][]string{{"BearerAuth": {}}}),
		),
	}

	sw.AddEndpoints(endpoints)

	return sw
}

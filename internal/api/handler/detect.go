package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/dermalens/internal/audit"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/detection"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/domain"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/provider"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/ws"
)

const (
	maxImageSize = 10 * 1024 * 1024 // 10MB
)

var validImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// DetectHandler checks a single uploaded photo with the same rules the
// detection sessions apply to live frames
type DetectHandler struct {
	detector provider.FaceDetector
	cfg      ws.Config
	auditLog audit.Logger
	logger   *slog.Logger
}

func NewDetectHandler(detector provider.FaceDetector, cfg ws.Config, auditLog audit.Logger, logger *slog.Logger) *DetectHandler {
	return &DetectHandler{
		detector: detector,
		cfg:      cfg.WithDefaults(),
		auditLog: auditLog,
		logger:   logger,
	}
}

// DetectResponse is the verdict plus every face found
type DetectResponse struct {
	detection.FaceDetectionResult
	Faces []provider.DetectedFace `json:"faces"`
}

// Detect POST /v1/detect - run face detection on one image
func (h *DetectHandler) Detect(c *fiber.Ctx) error {
	imageBytes, err := extractAndValidateImage(c)
	if err != nil {
		return fmt.Errorf("detect: %w", err)
	}

	faces, err := h.detector.DetectFaces(c.UserContext(), imageBytes)

	event := auditEvent(c, audit.EventPhotoChecked)
	event.Success = err == nil
	if err != nil {
		event.Error = err.Error()
	} else {
		event.Metadata = map[string]string{"faces_count": strconv.Itoa(len(faces))}
	}
	_ = h.auditLog.Log(c.UserContext(), event)

	if err != nil {
		var appErr *domain.AppError
		if errors.As(err, &appErr) {
			return appErr
		}
		h.logger.Warn("face detection failed", slog.Any("error", err))
		return domain.ErrDetectionServer.WithError(err)
	}
	if faces == nil {
		faces = []provider.DetectedFace{}
	}

	return c.JSON(DetectResponse{
		FaceDetectionResult: ws.Evaluate(faces, h.cfg),
		Faces:               faces,
	})
}

func extractAndValidateImage(c *fiber.Ctx) ([]byte, error) {
	file, err := c.FormFile("image")
	if err != nil {
		return nil, domain.ErrBadRequest.WithError(err)
	}

	if file.Size > maxImageSize || file.Size == 0 {
		return nil, domain.ErrInvalidImage.WithError(fmt.Errorf("image size %d out of range", file.Size))
	}

	contentType := file.Header.Get("Content-Type")
	if !validImageTypes[contentType] {
		return nil, domain.ErrInvalidImage.WithError(fmt.Errorf("unsupported content type %q", contentType))
	}

	f, err := file.Open()
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}
	defer func() {
		_ = f.Close()
	}()

	imageBytes, err := io.ReadAll(f)
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}

	return imageBytes, nil
}

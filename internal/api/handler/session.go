package handler

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/dermalens/internal/audit"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/domain"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/ws"
)

// SessionHub is the part of the detection hub the session API needs
type SessionHub interface {
	Sessions() []ws.SessionInfo
	TriggerCapture(sessionID string) bool
}

// SessionHandler exposes the live detection sessions
type SessionHandler struct {
	hub      SessionHub
	auditLog audit.Logger
	logger   *slog.Logger
}

func NewSessionHandler(hub SessionHub, auditLog audit.Logger, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{hub: hub, auditLog: auditLog, logger: logger}
}

type SessionsResponse struct {
	Sessions []ws.SessionInfo `json:"sessions"`
}

type CaptureResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// List GET /v1/sessions
func (h *SessionHandler) List(c *fiber.Ctx) error {
	return c.JSON(SessionsResponse{Sessions: h.hub.Sessions()})
}

// Capture POST /v1/sessions/:id/capture - tell the session's client to take the photo now
func (h *SessionHandler) Capture(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	sent := h.hub.TriggerCapture(sessionID)

	event := auditEvent(c, audit.EventCaptureTriggered)
	event.SessionID = sessionID
	event.Success = sent
	if !sent {
		event.Error = domain.ErrSessionNotFound.Message
	}
	_ = h.auditLog.Log(c.UserContext(), event)

	if !sent {
		return domain.ErrSessionNotFound
	}

	h.logger.Info("capture triggered", slog.String("session_id", sessionID))

	return c.Status(fiber.StatusAccepted).JSON(CaptureResponse{
		SessionID: sessionID,
		Status:    "capture_sent",
	})
}

// auditEvent starts an audit event carrying the caller's address
func auditEvent(c *fiber.Ctx, eventType audit.EventType) audit.Event {
	return audit.Event{
		EventType: eventType,
		IPAddress: c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
	}
}

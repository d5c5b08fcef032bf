package handler

import (
	"github.com/gofiber/fiber/v2"
)

// Version is reported by the health endpoint
const Version = "0.1.0"

// SessionCounter reports the live detection sessions
type SessionCounter interface {
	SessionCount() int
}

type HealthHandler struct {
	sessions SessionCounter
}

func NewHealthHandler(sessions SessionCounter) *HealthHandler {
	return &HealthHandler{sessions: sessions}
}

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Sessions *int   `json:"sessions,omitempty"`
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:  "ok",
		Version: Version,
	})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	resp := HealthResponse{Status: "ready"}
	if h.sessions != nil {
		n := h.sessions.SessionCount()
		resp.Sessions = &n
	}
	return c.JSON(resp)
}

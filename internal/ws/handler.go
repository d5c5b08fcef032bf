package ws

import (
	"context"
	"log/slog"
	"regexp"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/saturnino-fabrica-de-software/dermalens/internal/domain"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/provider"
)

// ParamSessionID is the route parameter holding the session id
const ParamSessionID = "id"

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// Handler serves one detection session per connection
func Handler(hub *Hub, detector provider.FaceDetector, cfg Config, logger *slog.Logger) fiber.Handler {
	cfg = cfg.WithDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	return websocket.New(func(c *websocket.Conn) {
		sessionID := c.Params(ParamSessionID)
		c.SetReadLimit(cfg.MaxFrameBytes)

		client := newClient(hub, c, sessionID, detector, cfg, logger)
		if !hub.registerClient(client) {
			_ = c.Close()
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		client.logger.Info("detection session opened")

		go client.WritePump()
		client.ReadPump(ctx)
		cancel()
		<-client.written

		client.logger.Info("detection session closed", slog.Int64("frames", client.frames.Load()))
	})
}

// UpgradeMiddleware rejects plain HTTP requests and malformed session ids
// before the upgrade
func UpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !sessionIDPattern.MatchString(c.Params(ParamSessionID)) {
			return domain.ErrBadRequest
		}
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

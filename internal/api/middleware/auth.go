package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/dermalens/internal/domain"
)

// QueryToken is the query parameter browsers use to pass the token, since
// they cannot set headers on a WebSocket handshake
const QueryToken = "token"

// Auth checks the shared relay token. An empty token disables the check.
// The token is read from the Authorization header or the token query parameter.
func Auth(token string) fiber.Handler {
	if token == "" {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	want := hashToken(token)

	return func(c *fiber.Ctx) error {
		got := extractBearerToken(c)
		if got == "" {
			got = c.Query(QueryToken)
		}
		if got == "" {
			return domain.ErrUnauthorized
		}

		// Compare digests so the comparison time does not depend on length
		have := hashToken(got)
		if subtle.ConstantTimeCompare(have[:], want[:]) != 1 {
			return domain.ErrUnauthorized
		}

		return c.Next()
	}
}

// extractBearerToken extracts token from Authorization header
func extractBearerToken(c *fiber.Ctx) string {
	auth := c.Get("Authorization")
	if auth == "" {
		return ""
	}

	// Expected format: "Bearer <token>"
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

func hashToken(token string) [sha256.Size]byte {
	return sha256.Sum256([]byte(token))
}

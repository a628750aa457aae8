// Package adminapi is the operator-facing dashboard surface: mint a bearer
// token against a shared API key, then list live rooms and recent
// connection-audit history. Grounded on internal/api's routes.go/jwt.go/
// middleware.go, stripped of its per-company room CRUD and token-storage
// concerns (no multi-tenant auth here) and rebuilt as three read-mostly
// endpoints under /admin/v1 served by fiber on its own port, separate from
// the net/http signaling surface.
package adminapi

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pion/logging"

	"sfu-conference/internal/audit"
	"sfu-conference/internal/room"
)

// Config configures the admin server.
type Config struct {
	Addr      string // e.g. ":9090"
	APIKey    string // gates POST /admin/v1/tokens
	JWTSecret string // signs/validates minted operator tokens
}

// New builds the fiber app with all /admin/v1 routes wired. trail may be
// nil when the audit feature is disabled; GET /admin/v1/audit then reports
// an empty list rather than erroring.
func New(cfg Config, rooms *room.Registry, trail *audit.Trail, log logging.LeveledLogger) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	group := app.Group("/admin/v1")
	group.Post("/tokens", requireAPIKey(cfg.APIKey), mintTokenHandler(cfg.JWTSecret))

	protected := group.Group("", requireOperatorToken(cfg.JWTSecret))
	protected.Get("/rooms", listRoomsHandler(rooms))
	protected.Get("/audit", listAuditHandler(trail, log))

	return app
}

type mintTokenRequest struct {
	Subject string `json:"subject"`
}

type mintTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func mintTokenHandler(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req mintTokenRequest
		if err := c.BodyParser(&req); err != nil || req.Subject == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "subject is required"})
		}

		token, expiresAt, err := GenerateToken(req.Subject, secret)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}

		return c.Status(fiber.StatusCreated).JSON(mintTokenResponse{Token: token, ExpiresAt: expiresAt})
	}
}

type roomSummary struct {
	RoomID    string `json:"room_id"`
	PeerCount int    `json:"peer_count"`
}

func listRoomsHandler(rooms *room.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		snapshot := rooms.Snapshot()
		out := make([]roomSummary, 0, len(snapshot))
		for id, count := range snapshot {
			out = append(out, roomSummary{RoomID: id, PeerCount: count})
		}
		return c.JSON(out)
	}
}

const defaultAuditLimit = 200

func listAuditHandler(trail *audit.Trail, log logging.LeveledLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if trail == nil {
			return c.JSON([]audit.ConnectionEvent{})
		}

		rows, err := trail.Recent(defaultAuditLimit)
		if err != nil {
			log.Errorf("adminapi: fetch audit history: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read audit history"})
		}
		return c.JSON(rows)
	}
}

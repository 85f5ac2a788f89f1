package handler

import (
	"strings"

	"trip-pivot-be/internal/pkg/logger"
	"trip-pivot-be/internal/pkg/serverutils"
	internalWS "trip-pivot-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// DeliveryHandler upgrades trip members to a websocket that receives pivot
// proposals and applied changes.
type DeliveryHandler struct {
	hub    *internalWS.Hub
	logger logger.ILogger
}

func NewDeliveryHandler(hub *internalWS.Hub, log logger.ILogger) *DeliveryHandler {
	return &DeliveryHandler{hub: hub, logger: log}
}

func (h *DeliveryHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/ws/trips/:id", h.ServeWs)
}

// bearerToken prefers the query param since browsers cannot set headers on
// a websocket handshake.
func bearerToken(c *fiber.Ctx) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	if auth := c.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return auth[len("Bearer "):]
	}
	return ""
}

func (h *DeliveryHandler) ServeWs(c *fiber.Ctx) error {
	tripID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid itinerary id")
	}

	token := bearerToken(c)
	if token == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "Missing token")
	}
	memberID, err := serverutils.ParseMemberToken(token)
	if err != nil {
		h.logger.Warn("DeliveryHandler", "Invalid token in websocket handshake", map[string]interface{}{"error": err.Error()})
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid token")
	}

	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return websocket.New(func(conn *websocket.Conn) {
		fields := map[string]interface{}{"trip_id": tripID, "member_id": memberID}
		h.logger.Debug("DeliveryHandler", "Websocket session started", fields)
		internalWS.ServeWs(h.hub, conn, tripID, memberID)
		h.logger.Debug("DeliveryHandler", "Websocket session ended", fields)
	})(c)
}

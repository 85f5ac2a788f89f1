package websocket

import (
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// ServeWs joins the connection to the trip room and blocks until it closes.
func ServeWs(hub *Hub, c *websocket.Conn, tripID, memberID uuid.UUID) {
	client := &Client{
		Hub:      hub,
		Conn:     c,
		TripID:   tripID,
		MemberID: memberID,
		Send:     make(chan []byte, sendBuffer),
	}
	select {
	case hub.register <- client:
	case <-hub.done:
		return
	}

	go client.writePump()
	client.readPump()
}

package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"reparto-backend/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// auth is by token, not origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWebSocket authenticates the token and upgrades the connection.
func HandleWebSocket(hub *Hub, secret string, log *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := middleware.TokenFromRequest(r)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		actor, err := middleware.ParseToken(tokenString, secret)
		if err != nil {
			log.WithError(err).Warn("❌ Invalid websocket token")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.WithError(err).Error("WebSocket upgrade failed")
			return
		}

		client := NewClient(actor, conn, hub)
		if !hub.join(client) {
			conn.Close()
			return
		}

		go client.WritePump()
		go client.ReadPump()
	}
}

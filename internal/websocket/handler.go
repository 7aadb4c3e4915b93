package websocket

import (
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/savory/internal/auth"
)

// HandleWebSocket upgrades an authenticated request and streams the user's
// notifications until the connection closes.
func HandleWebSocket(hub *Hub, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.UserID(r.Context())
		if userID == 0 {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{OriginPatterns: originPatterns})
		if err != nil {
			hub.logger.Warn("websocket accept failed", "user_id", userID, "error", err)
			return
		}
		NewClient(hub, conn, userID).Run(r.Context())
	}
}

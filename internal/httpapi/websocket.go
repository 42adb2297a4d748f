package httpapi

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// upgrader mirrors the teacher's wsUpgrader (internal/api/api.go): origin
// checking is handled by the CORS middleware ahead of it in the chain, so
// the upgrader itself accepts any origin.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleEvents upgrades to a WebSocket and streams every eventbus.Event
// published from this point on, per SPEC_FULL.md §7's "bearer token as a
// query parameter at upgrade" event-stream contract.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !tokenMatches(r.URL.Query().Get("token"), s.authToken) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Printf("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	sub := s.bus.Subscribe()
	defer sub.Unsubscribe()

	// Drain inbound frames (pings, close) on their own goroutine so a
	// client that never sends anything doesn't block detecting a closed
	// connection.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

package chat

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades requests to websocket connections served by relay. No
// credential is required to connect; events carry their own.
func Handler(relay *Relay, bufferSize int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			relay.log.Warn("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}

		client := NewClient(conn, bufferSize)
		if !relay.Connect(client) {
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump(relay)
	})
}

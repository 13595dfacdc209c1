// internal/httpserver/ws.go
//
// WebSocket view stream. One socket per session: the session's update signal
// is coalescing, so a second reader would starve the first. The server pushes
// the full view model after every state change plus periodic pings; the read
// pump exists only to notice the peer going away.

package httpserver

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Cross-origin access is already constrained by the token requirement;
	// the CORS origin check does not apply to WebSocket upgrades.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS upgrades the connection and streams the session view until the
// client disconnects or the session ends.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.roomSession(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// initial snapshot
	if err := writeView(conn, sess.View()); err != nil {
		return
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-sess.Updates():
			v := sess.View()
			if err := writeView(conn, v); err != nil {
				return
			}
			if v.Room == nil {
				// room gone or session left, nothing more to stream
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "room closed"),
					time.Now().Add(wsWriteWait))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func writeView(conn *websocket.Conn, v interface{}) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(v)
}

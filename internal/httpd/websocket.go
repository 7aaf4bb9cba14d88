package httpd

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/technikum29/t29-inventory-server/pkg/core"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Cross-origin browsers are allowed, matching the CORS policy of
	// the JSON endpoints.
	CheckOrigin: func(*http.Request) bool { return true },
}

type wsUpdate struct {
	CommitID  string          `json:"commitId"`
	Inventory json.RawMessage `json:"inventory"`
}

// handleSubscribe upgrades the connection and streams committed
// updates. The current snapshot goes out first so a (re)connecting
// client is consistent before live updates arrive. Subscription
// happens before the snapshot read: a commit landing during the
// handshake then shows up either in the snapshot or as a buffered
// update, never in neither. The resulting duplicate frame is harmless.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub)

	snap, err := s.svc.CurrentState(r.Context())
	if err != nil {
		s.logger.Error("snapshot read failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader exists only to notice the peer going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := writeUpdate(conn, core.Update{CommitID: snap.CommitID, Document: snap.Document}); err != nil {
		return
	}

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-sub.Updates():
			if !ok {
				// Dropped by the hub for falling behind; the client
				// reconnects and resyncs from the snapshot.
				s.logger.Warn("subscriber dropped", "remote", conn.RemoteAddr())
				return
			}
			if err := writeUpdate(conn, u); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeUpdate(conn *websocket.Conn, u core.Update) error {
	payload, err := json.Marshal(wsUpdate{CommitID: u.CommitID, Inventory: json.RawMessage(u.Document)})
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

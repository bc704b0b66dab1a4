package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/corvidlabs/plannerd/internal/bus"
)

// wsEvent is the hint pushed to connected clients when reminders come due.
// Clients follow up with a poll; nothing is delivered over the socket.
type wsEvent struct {
	Type    string `json:"type"`
	Session string `json:"session"`
	Count   int    `json:"count"`
}

type wsClient struct {
	conn *websocket.Conn
	id   string
}

type wsHub struct {
	clients sync.Map
	nextID  atomic.Int64
}

func newWSHub() *wsHub {
	return &wsHub{}
}

func (h *wsHub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[ws] accept error: %v", err)
		return
	}

	clientID := fmt.Sprintf("ws-%d", h.nextID.Add(1))
	h.clients.Store(clientID, &wsClient{conn: conn, id: clientID})
	log.Printf("[ws] client connected: %s", clientID)

	defer func() {
		h.clients.Delete(clientID)
		conn.CloseNow()
		log.Printf("[ws] client disconnected: %s", clientID)
	}()

	// Drain until the client goes away; the stream is push-only.
	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			return
		}
	}
}

func (h *wsHub) Broadcast(evt bus.DueEvent) {
	data, err := json.Marshal(wsEvent{
		Type:    "due",
		Session: evt.Session,
		Count:   evt.Count,
	})
	if err != nil {
		return
	}

	h.clients.Range(func(key, value any) bool {
		c := value.(*wsClient)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.conn.Write(ctx, websocket.MessageText, data)
		return true
	})
}

func (h *wsHub) Close() {
	h.clients.Range(func(key, value any) bool {
		c := value.(*wsClient)
		c.conn.CloseNow()
		return true
	})
}

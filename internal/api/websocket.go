package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/resonance-logs/meterd/internal/snapshot"
	"github.com/resonance-logs/meterd/internal/telemetry"
)

// upgrader accepts any origin: CheckOrigin always returns true. The
// default listen address (":7777") binds every interface, so /ws is not
// restricted to localhost.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// hub fans the single snapshot.Feed.Events() channel out to every
// connected WebSocket client, grounded on fight-club-go's WebSocketHub
// register/unregister/broadcast loop.
type hub struct {
	feed *snapshot.Feed
	log  *zap.Logger

	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}
}

func newHub(feed *snapshot.Feed, log *zap.Logger) *hub {
	return &hub{feed: feed, log: log, clients: make(map[*websocket.Conn]struct{})}
}

// run drains the feed and broadcasts each event until ctx is cancelled.
// Exactly one hub should run per Feed.
func (h *hub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-h.feed.Events():
			h.broadcast(ev)
		}
	}
}

func (h *hub) broadcast(ev snapshot.LiveEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.Warn("marshaling live event", zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.log.Debug("ws write failed, client will be reaped on next read error", zap.Error(err))
			continue
		}
		telemetry.WSMessagesTotal.Inc()
	}
}

func (h *hub) register(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	telemetry.WSConnectionsActive.Set(float64(count))
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	count := len(h.clients)
	h.mu.Unlock()
	telemetry.WSConnectionsActive.Set(float64(count))
	conn.Close()
}

// handleWS upgrades the connection and registers it with the hub. Reads
// are drained only to detect client-initiated close; this feed is
// server-push only, so no inbound command parsing happens here (commands
// arrive over the JSON routes, not the socket).
func (h *routerHandlers) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	h.hub.register(conn)
	defer h.hub.unregister(conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

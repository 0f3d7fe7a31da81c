package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/alim08/marketgql/pkg/logger"
	"github.com/alim08/marketgql/pkg/metrics"
	"github.com/alim08/marketgql/pkg/validation"
)

const (
	relayWriteWait  = 10 * time.Second
	relayPongWait   = 60 * time.Second
	relayPingPeriod = relayPongWait * 9 / 10
	relaySendBuffer = 256
)

// relay fans launchpad events from Redis pub/sub out to websocket clients.
type relay struct {
	mu       sync.Mutex
	clients  map[*relayClient]struct{}
	upgrader websocket.Upgrader
	log      *zap.Logger
}

type relayClient struct {
	conn *websocket.Conn
	send chan []byte
	// token is a "networkId:address" filter; empty receives everything.
	token string
	once  sync.Once
}

func newRelay() *relay {
	return &relay{
		clients:  make(map[*relayClient]struct{}),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		log:      logger.Named("relay"),
	}
}

// Handler upgrades the request. ?token=<networkId>:<address> limits the
// stream to one token.
func (rl *relay) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := rl.upgrader.Upgrade(w, r, nil)
		if err != nil {
			rl.log.Warn("websocket upgrade error", zap.Error(err))
			return
		}
		c := &relayClient{
			conn:  conn,
			send:  make(chan []byte, relaySendBuffer),
			token: normalizeTokenKey(r.URL.Query().Get("token")),
		}
		rl.mu.Lock()
		rl.clients[c] = struct{}{}
		rl.mu.Unlock()
		metrics.ActiveConnections.Inc()

		go rl.writePump(c)
		go rl.readPump(c)
	}
}

// remove is safe to call from both pumps and from Broadcast.
func (rl *relay) remove(c *relayClient) {
	c.once.Do(func() {
		rl.mu.Lock()
		delete(rl.clients, c)
		rl.mu.Unlock()
		close(c.send)
		metrics.ActiveConnections.Dec()
	})
}

// readPump discards client messages and notices disconnects.
func (rl *relay) readPump(c *relayClient) {
	defer rl.remove(c)
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(relayPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(relayPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (rl *relay) writePump(c *relayClient) {
	ticker := time.NewTicker(relayPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(relayWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				rl.log.Debug("websocket write error", zap.Error(err))
				rl.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(relayWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				rl.remove(c)
				return
			}
		}
	}
}

// eventKey extracts "networkId:address" from an event payload.
func eventKey(payload string) string {
	var head struct {
		Address   string `json:"address"`
		NetworkID int    `json:"networkId"`
	}
	if err := json.Unmarshal([]byte(payload), &head); err != nil || head.Address == "" {
		return ""
	}
	return strconv.Itoa(head.NetworkID) + ":" + validation.SanitizeAddress(head.Address)
}

// Broadcast queues payload for every matching client. Clients whose buffer
// is full are disconnected.
func (rl *relay) Broadcast(payload string) {
	key := eventKey(payload)
	msg := []byte(payload)

	rl.mu.Lock()
	var slow []*relayClient
	for c := range rl.clients {
		if c.token != "" && c.token != key {
			continue
		}
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	rl.mu.Unlock()

	for _, c := range slow {
		rl.log.Warn("dropping slow websocket client", zap.String("remote", c.conn.RemoteAddr().String()))
		rl.remove(c)
	}
}

// Run broadcasts payloads until ctx is done or the channel closes.
func (rl *relay) Run(ctx context.Context, payloads <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-payloads:
			if !ok {
				return
			}
			rl.Broadcast(p)
		}
	}
}

// Close disconnects every client.
func (rl *relay) Close() {
	rl.mu.Lock()
	clients := make([]*relayClient, 0, len(rl.clients))
	for c := range rl.clients {
		clients = append(clients, c)
	}
	rl.mu.Unlock()
	for _, c := range clients {
		rl.remove(c)
	}
}

func (rl *relay) count() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

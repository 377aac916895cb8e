package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// maxStatsClients bounds concurrent dashboard connections
	maxStatsClients = 64

	writeWait = 2 * time.Second
)

// StatsHub fans engine events out to websocket dashboards.
// Run is the only goroutine that writes to client connections.
type StatsHub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}

	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
}

// NewStatsHub creates a hub accepting websocket upgrades from allowedOrigins.
// A "*" entry accepts any origin; requests without an Origin header are always accepted.
func NewStatsHub(allowedOrigins []string) *StatsHub {
	h := &StatsHub{
		clients:    make(map[*websocket.Conn]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if originAllowed(allowedOrigins, origin) {
				return true
			}
			logrus.WithFields(logrus.Fields{
				"function": "StatsHub.CheckOrigin",
				"origin":   origin,
			}).Warn("Rejected websocket origin")
			return false
		},
	}
	return h
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

// Run services registrations and broadcasts until ctx is cancelled, then
// closes every client.
func (h *StatsHub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.clients {
				_ = conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return

		case conn := <-h.register:
			h.mu.Lock()
			if len(h.clients) >= maxStatsClients {
				h.mu.Unlock()
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many clients"),
					time.Now().Add(writeWait))
				_ = conn.Close()
				continue
			}
			h.clients[conn] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()

			logrus.WithFields(logrus.Fields{
				"function": "StatsHub.Run",
				"remote":   conn.RemoteAddr().String(),
				"clients":  count,
			}).Info("Dashboard connected")

		case conn := <-h.unregister:
			h.drop(conn)

		case msg := <-h.broadcast:
			h.mu.RLock()
			conns := make([]*websocket.Conn, 0, len(h.clients))
			for conn := range h.clients {
				conns = append(conns, conn)
			}
			h.mu.RUnlock()

			for _, conn := range conns {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					h.drop(conn)
				}
			}
		}
	}
}

func (h *StatsHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	count := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	_ = conn.Close()
	logrus.WithFields(logrus.Fields{
		"function": "StatsHub.drop",
		"clients":  count,
	}).Info("Dashboard disconnected")
}

// Broadcast queues event with data for every client. Messages are dropped
// when the hub is backlogged.
func (h *StatsHub) Broadcast(event string, data interface{}) {
	msg, err := json.Marshal(map[string]interface{}{
		"event": event,
		"data":  data,
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "StatsHub.Broadcast",
			"event":    event,
			"error":    err.Error(),
		}).Warn("Failed to encode event")
		return
	}

	select {
	case h.broadcast <- msg:
	default:
	}
}

// ClientCount returns the number of connected dashboards.
func (h *StatsHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and keeps the connection registered until
// the client goes away.
func (h *StatsHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "StatsHub.ServeHTTP",
			"error":    err.Error(),
		}).Debug("Websocket upgrade failed")
		return
	}

	select {
	case h.register <- conn:
	case <-h.done:
		_ = conn.Close()
		return
	}

	// Dashboards only listen; reading detects the close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

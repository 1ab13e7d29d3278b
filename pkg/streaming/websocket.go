// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package streaming

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jontk/npsched/pkg/logging"
)

// WebSocketServer provides a WebSocket interface to the graph stream
type WebSocketServer struct {
	broker   *Broker
	upgrader websocket.Upgrader
	logger   logging.Logger
}

// NewWebSocketServer creates a new WebSocket server over the broker
func NewWebSocketServer(broker *Broker, logger logging.Logger) *WebSocketServer {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &WebSocketServer{
		broker: broker,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// The observability server is bound to an operator-chosen
				// address; origin filtering is delegated to the auth guard.
				return true
			},
		},
	}
}

// StreamMessage represents a message sent over WebSocket
type StreamMessage struct {
	Type      string      `json:"type"`
	Data      *GraphEvent `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Error     string      `json:"error,omitempty"`
}

// HandleWebSocket handles WebSocket connections
func (ws *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Error("websocket upgrade failed", "error", err.Error())
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			ws.logger.Debug("websocket close", "error", err.Error())
		}
	}()

	events, cancel := ws.broker.Subscribe()
	defer cancel()

	ws.sendMessage(conn, StreamMessage{Type: "connected", Timestamp: time.Now()})

	// Drain (and ignore) client frames so close frames are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				ws.logger.Debug("websocket ping failed", "error", err.Error())
				return
			}
		case event, ok := <-events:
			if !ok {
				ws.sendMessage(conn, StreamMessage{Type: "stream_closed", Timestamp: time.Now()})
				return
			}
			e := event
			ws.sendMessage(conn, StreamMessage{Type: "event", Data: &e, Timestamp: time.Now()})
		}
	}
}

// sendMessage sends a message over the WebSocket
func (ws *WebSocketServer) sendMessage(conn *websocket.Conn, msg StreamMessage) {
	if err := conn.WriteJSON(msg); err != nil {
		ws.logger.Debug("websocket write failed", "error", err.Error())
	}
}

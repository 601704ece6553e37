package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Readm/mmu_sim/logger"
	"github.com/Readm/mmu_sim/plugins/visualization"
)

type wsHub struct {
	log       *logger.Logger
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	register  chan *websocket.Conn
	remove    chan *websocket.Conn
	broadcast chan []byte
	done      chan struct{}
	stopOnce  sync.Once
}

func newHub(log *logger.Logger) *wsHub {
	hub := &wsHub{
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:   make(map[*websocket.Conn]bool),
		register:  make(chan *websocket.Conn),
		remove:    make(chan *websocket.Conn),
		broadcast: make(chan []byte, 256),
		done:      make(chan struct{}),
	}
	go hub.run()
	return hub
}

func (h *wsHub) run() {
	for {
		select {
		case conn := <-h.register:
			h.clients[conn] = true
		case conn := <-h.remove:
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
		case msg := <-h.broadcast:
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					h.log.Warnf("Failed to send event to WebSocket client: %v", err)
					delete(h.clients, conn)
					conn.Close()
				}
			}
		case <-h.done:
			for conn := range h.clients {
				conn.Close()
			}
			h.clients = nil
			return
		}
	}
}

func (h *wsHub) stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// handle upgrades the connection, sends the latest result and runs the
// generate requests the client sends.
func (h *wsHub) handle(ws *WebServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.Errorf("WebSocket upgrade failed: %v", err)
			return
		}

		ws.mu.RLock()
		latest := ws.latest
		ws.mu.RUnlock()
		if latest != nil {
			if data, err := json.Marshal(latest); err == nil {
				conn.WriteMessage(websocket.TextMessage, data)
			}
		}

		select {
		case h.register <- conn:
		case <-h.done:
			conn.Close()
			return
		}

		go func() {
			defer func() {
				select {
				case h.remove <- conn:
				case <-h.done:
				}
			}()
			for {
				_, message, err := conn.ReadMessage()
				if err != nil {
					if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
						h.log.Warnf("WebSocket error: %v", err)
					}
					break
				}

				var req generateRequest
				if err := json.Unmarshal(message, &req); err != nil {
					h.log.Warnf("Ignoring malformed WebSocket request: %v", err)
					continue
				}
				if _, err := ws.generate(context.Background(), req); err != nil {
					h.send(map[string]string{"kind": "error", "error": err.Error()})
				}
			}
		}()
	}
}

// publish queues a hook event. Messages are dropped while the queue is full.
func (h *wsHub) publish(e visualization.Event) {
	h.send(e)
}

func (h *wsHub) publishResult(resp *generateResponse) {
	h.send(resp)
}

func (h *wsHub) send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Errorf("Failed to marshal message for WebSocket: %v", err)
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.done:
	default:
		h.log.Debugf("WebSocket queue full, dropping message")
	}
}

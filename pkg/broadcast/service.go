package broadcast

import (
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/NotCoffee418/cold_chain_telemetry/pkg/acquisition"
	"github.com/NotCoffee418/cold_chain_telemetry/pkg/types"
	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

func NewHub() *Hub {
	return &Hub{
		latest:  make(map[int]types.Reading),
		clients: make(map[*websocket.Conn]*sync.Mutex),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Dashboard may be served from anywhere on the LAN
			},
		},
	}
}

// Subscriber wires the hub to an acquisition worker.
func (h *Hub) Subscriber() acquisition.Subscriber {
	return acquisition.Subscriber{
		OnData: h.Publish,
		OnError: func(message string) {
			log.Printf("Worker reported: %s", message)
		},
	}
}

// Publish records the reading as its node's latest and sends it to every client.
func (h *Hub) Publish(reading types.Reading) {
	h.latestMu.Lock()
	h.latest[reading.NodeID] = reading
	h.latestMu.Unlock()

	data := reading.ToJsonBytes()
	if data == nil {
		return
	}

	h.clientsMu.RLock()
	clients := make(map[*websocket.Conn]*sync.Mutex, len(h.clients))
	for conn, mu := range h.clients {
		clients[conn] = mu
	}
	h.clientsMu.RUnlock()

	for conn, mu := range clients {
		mu.Lock()
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		err := conn.WriteMessage(websocket.TextMessage, data)
		mu.Unlock()
		if err != nil {
			h.removeClient(conn)
		}
	}
}

// Latest returns the newest reading of each node, ordered by node id.
func (h *Hub) Latest() []types.Reading {
	h.latestMu.RLock()
	defer h.latestMu.RUnlock()

	readings := make([]types.Reading, 0, len(h.latest))
	for _, r := range h.latest {
		readings = append(readings, r)
	}
	sort.Slice(readings, func(i, j int) bool {
		return readings[i].NodeID < readings[j].NodeID
	})
	return readings
}

func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *Hub) HandleLatest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	readings := h.Latest()
	if len(readings) == 0 {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "No readings available yet",
		})
		return
	}
	json.NewEncoder(w).Encode(readings)
}

// HandleWebSocket sends the current latest readings, then streams new ones.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	mu := &sync.Mutex{}
	mu.Lock()
	h.clientsMu.Lock()
	h.clients[conn] = mu
	h.clientsMu.Unlock()
	for _, reading := range h.Latest() {
		conn.WriteMessage(websocket.TextMessage, reading.ToJsonBytes())
	}
	mu.Unlock()

	// Keep connection alive until the client goes away
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.removeClient(conn)
			return
		}
	}
}

func (h *Hub) removeClient(conn *websocket.Conn) {
	h.clientsMu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	h.clientsMu.Unlock()
	if ok {
		conn.Close()
	}
}

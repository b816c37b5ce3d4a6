package broadcast

import (
	"sync"

	"github.com/NotCoffee418/cold_chain_telemetry/pkg/types"
	"github.com/gorilla/websocket"
)

// Hub keeps the latest reading of every node and streams new readings
// to connected websocket clients.
type Hub struct {
	latestMu sync.RWMutex
	latest   map[int]types.Reading

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]*sync.Mutex

	upgrader websocket.Upgrader
}

package server

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// sendQueue is how many messages a client may fall behind before further
// messages to it are dropped.
const sendQueue = 64

type wsClient struct {
	conn  *websocket.Conn
	queue chan []byte
}

// hub fans messages out to the connected dashboards.
type hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

func newHub() *hub {
	return &hub{clients: make(map[*wsClient]struct{})}
}

// attach registers conn and starts its writer. The returned function
// unregisters it and must be called once the connection is done.
func (h *hub) attach(conn *websocket.Conn) (detach func()) {
	c := &wsClient{conn: conn, queue: make(chan []byte, sendQueue)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	log.Printf("[ws] client connected (%d total)", n)

	go func() {
		defer conn.Close()
		for msg := range c.queue {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Printf("[ws] send failed: %v", err)
				return
			}
		}
	}()

	return func() {
		h.mu.Lock()
		delete(h.clients, c)
		n := len(h.clients)
		h.mu.Unlock()
		close(c.queue)
		log.Printf("[ws] client disconnected (%d total)", n)
	}
}

// broadcast queues msg for every client without blocking; a client whose
// queue is full misses it.
func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.queue <- msg:
		default:
		}
	}
}

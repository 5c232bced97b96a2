package hub

import (
	"sync"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/ZehenForever/sto-log-parser/internal/metrics"
)

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{conn: conn, send: make(chan []byte, 64), done: make(chan struct{})}
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		close(c.send)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// enqueueBytes never blocks; a full buffer counts as a failed send.
func (c *wsClient) enqueueBytes(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

func (c *wsClient) enqueueJSON(v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return c.enqueueBytes(b)
}

// room is the set of websocket subscribers fed by store updates.
type room struct {
	mu   sync.Mutex
	subs map[*wsClient]struct{}
}

func newRoom() *room {
	return &room{subs: make(map[*wsClient]struct{})}
}

// addSub registers c. When first is non-nil its value is queued as the opening
// message under the room lock, so no broadcast lands before it and none is
// missed after it.
func (r *room) addSub(c *wsClient, first func() any) {
	r.mu.Lock()
	if first != nil {
		_ = c.enqueueJSON(first())
	}
	r.subs[c] = struct{}{}
	n := len(r.subs)
	r.mu.Unlock()
	metrics.HubClients.Set(float64(n))
}

func (r *room) removeSub(c *wsClient) {
	r.mu.Lock()
	delete(r.subs, c)
	n := len(r.subs)
	r.mu.Unlock()
	metrics.HubClients.Set(float64(n))
}

func (r *room) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// broadcastJSON queues v for every subscriber. Subscribers that cannot keep
// up are dropped. It returns the number of successful sends.
func (r *room) broadcastJSON(msgType string, v any) int {
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	r.mu.Lock()
	sent := 0
	for c := range r.subs {
		if ok := c.enqueueBytes(b); !ok {
			c.close()
			delete(r.subs, c)
			continue
		}
		sent++
	}
	n := len(r.subs)
	r.mu.Unlock()

	metrics.HubClients.Set(float64(n))
	metrics.HubMessagesSent.WithLabelValues(msgType).Add(float64(sent))
	return sent
}

func (r *room) closeAll() {
	r.mu.Lock()
	for c := range r.subs {
		c.close()
		delete(r.subs, c)
	}
	r.mu.Unlock()
	metrics.HubClients.Set(0)
}

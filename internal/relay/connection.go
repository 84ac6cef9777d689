// ABOUTME: One connected agent: its websocket plus serialized send access.
// ABOUTME: Delivery to a single connection is sequential; connections are independent.

package relay

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/yotei-sh/yotei/internal/metrics"
)

// Connection is a registered agent on the relay.
type Connection struct {
	AgentID     string
	ConnectedAt time.Time

	sock *websocket.Conn

	mu         sync.Mutex // serializes writes and guards the fields below
	lastPing   time.Time
	subscribed map[string]struct{}
}

func newConnection(agentID string, sock *websocket.Conn) *Connection {
	now := time.Now().UTC()
	return &Connection{
		AgentID:     agentID,
		ConnectedAt: now,
		sock:        sock,
		lastPing:    now,
		subscribed:  make(map[string]struct{}),
	}
}

// Send writes an agent message to this connection.
func (c *Connection) Send(ctx context.Context, m *Message) error {
	return c.sendJSON(ctx, m)
}

// sendJSON writes any JSON value (control frames, system notices).
func (c *Connection) sendJSON(ctx context.Context, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	err := wsjson.Write(ctx, c.sock, v)
	metrics.DeliveryDuration.Observe(time.Since(start).Seconds())
	return err
}

// TouchPing records a heartbeat from the agent.
func (c *Connection) TouchPing() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPing = time.Now().UTC()
}

// LastPing returns the time of the most recent heartbeat.
func (c *Connection) LastPing() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPing
}

func (c *Connection) subscribe(eventID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed[eventID] = struct{}{}
}

func (c *Connection) unsubscribe(eventID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscribed, eventID)
}

// Subscriptions returns the event ids this connection subscribes to.
func (c *Connection) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subscribed))
	for id := range c.subscribed {
		out = append(out, id)
	}
	return out
}

// close closes the underlying socket with a normal status.
func (c *Connection) close(reason string) {
	_ = c.sock.Close(websocket.StatusNormalClosure, reason)
}

// closeNow drops the underlying socket without the close handshake.
func (c *Connection) closeNow() {
	_ = c.sock.CloseNow()
}

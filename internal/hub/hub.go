// Package hub maintains the live set of realtime push connections and
// delivers payloads to them best-effort. A user who is not connected at
// delivery time simply does not receive that realtime message; email remains
// the durable channel.
package hub

import (
	"fmt"
	"sync"
	"time"

	"notification-service/internal/logging"
)

// Conn is the write side of one client connection. *websocket.Conn
// satisfies it.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Frame is a named event frame pushed over a connection.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// connection is one registered client channel. Writes are serialized by mu;
// closing is guarded by once so concurrent removal never double-closes.
type connection struct {
	userID   int
	topic    string
	conn     Conn
	mu       sync.Mutex
	once     sync.Once
	lastSeen time.Time
}

func (c *connection) write(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(f); err != nil {
		return err
	}
	c.lastSeen = time.Now()
	return nil
}

func (c *connection) close() {
	c.once.Do(func() {
		_ = c.conn.Close()
	})
}

// Hub tracks live per-user and per-topic connections.
type Hub struct {
	logger            *logging.Logger
	heartbeatInterval time.Duration
	maxConnsPerUser   int

	mu     sync.RWMutex
	users  map[int]map[*connection]struct{}
	topics map[string]map[*connection]struct{}

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New constructs a Hub. Start must be called to run heartbeats.
func New(logger *logging.Logger, heartbeatInterval time.Duration, maxConnsPerUser int) *Hub {
	if maxConnsPerUser <= 0 {
		maxConnsPerUser = 10
	}
	return &Hub{
		logger:            logger,
		heartbeatInterval: heartbeatInterval,
		maxConnsPerUser:   maxConnsPerUser,
		users:             make(map[int]map[*connection]struct{}),
		topics:            make(map[string]map[*connection]struct{}),
		stop:              make(chan struct{}),
	}
}

// Start launches the heartbeat loop.
func (h *Hub) Start() {
	if h.heartbeatInterval <= 0 {
		return
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ticker := time.NewTicker(h.heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-h.stop:
				return
			case <-ticker.C:
				h.heartbeat()
			}
		}
	}()
}

// Stop halts heartbeats and closes every open connection.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
	h.wg.Wait()

	h.mu.Lock()
	var conns []*connection
	for _, set := range h.users {
		for c := range set {
			conns = append(conns, c)
		}
	}
	h.users = make(map[int]map[*connection]struct{})
	h.topics = make(map[string]map[*connection]struct{})
	h.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

// Register adds a connection for a user and immediately sends a connect
// acknowledgment frame over it.
func (h *Hub) Register(userID int, conn Conn) error {
	return h.add(userID, "", conn)
}

// Subscribe adds a connection for a user tagged with a topic for broadcast
// delivery. Topic connections still receive per-user unicasts.
func (h *Hub) Subscribe(topic string, userID int, conn Conn) error {
	return h.add(userID, topic, conn)
}

func (h *Hub) add(userID int, topic string, conn Conn) error {
	c := &connection{userID: userID, topic: topic, conn: conn, lastSeen: time.Now()}

	h.mu.Lock()
	if len(h.users[userID]) >= h.maxConnsPerUser {
		h.mu.Unlock()
		return fmt.Errorf("connection limit reached for user %d", userID)
	}
	if h.users[userID] == nil {
		h.users[userID] = make(map[*connection]struct{})
	}
	h.users[userID][c] = struct{}{}
	if topic != "" {
		if h.topics[topic] == nil {
			h.topics[topic] = make(map[*connection]struct{})
		}
		h.topics[topic][c] = struct{}{}
	}
	total := len(h.users[userID])
	h.mu.Unlock()

	ack := Frame{Event: "connect", Data: map[string]any{
		"userId":    userID,
		"message":   "connected",
		"timestamp": time.Now().UnixMilli(),
	}}
	if err := c.write(ack); err != nil {
		h.remove(c)
		return fmt.Errorf("connect ack failed for user %d: %w", userID, err)
	}

	if topic != "" {
		h.logger.Infof("User %d subscribed to topic %q (connections: %d)", userID, topic, total)
	} else {
		h.logger.Infof("User %d connected (connections: %d)", userID, total)
	}
	return nil
}

// remove drops a connection from all membership sets and closes it.
// Safe to call concurrently with delivery attempts to the same user.
func (h *Hub) remove(c *connection) {
	h.mu.Lock()
	if set, ok := h.users[c.userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.users, c.userID)
		}
	}
	if c.topic != "" {
		if set, ok := h.topics[c.topic]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.topics, c.topic)
			}
		}
	}
	h.mu.Unlock()
	c.close()
}

// Unregister removes a single connection, e.g. when its read loop ends.
func (h *Hub) Unregister(userID int, conn Conn) {
	h.mu.RLock()
	var target *connection
	for c := range h.users[userID] {
		if c.conn == conn {
			target = c
			break
		}
	}
	h.mu.RUnlock()
	if target != nil {
		h.remove(target)
		h.logger.Infof("User %d connection closed", userID)
	}
}

// SendToUser pushes a named event to all of a user's connections. It returns
// true iff at least one connection accepted the write. Connections whose
// write fails are removed.
func (h *Hub) SendToUser(userID int, event string, payload any) bool {
	h.mu.RLock()
	conns := make([]*connection, 0, len(h.users[userID]))
	for c := range h.users[userID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		return false
	}

	frame := Frame{Event: event, Data: payload}
	delivered := false
	for _, c := range conns {
		if err := c.write(frame); err != nil {
			h.logger.Warnf("Dropping dead connection for user %d: %v", userID, err)
			h.remove(c)
			continue
		}
		delivered = true
	}
	return delivered
}

// BroadcastToTopic pushes a named event to every connection subscribed to a
// topic and returns the number of connections it reached. Best-effort:
// failed connections are removed.
func (h *Hub) BroadcastToTopic(topic, event string, payload any) int {
	h.mu.RLock()
	conns := make([]*connection, 0, len(h.topics[topic]))
	for c := range h.topics[topic] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	frame := Frame{Event: event, Data: payload}
	reached := 0
	for _, c := range conns {
		if err := c.write(frame); err != nil {
			h.logger.Warnf("Dropping dead connection for user %d on topic %q: %v", c.userID, topic, err)
			h.remove(c)
			continue
		}
		reached++
	}
	return reached
}

// DisconnectUser forcibly closes and removes all of a user's connections,
// returning how many were closed.
func (h *Hub) DisconnectUser(userID int) int {
	h.mu.RLock()
	conns := make([]*connection, 0, len(h.users[userID]))
	for c := range h.users[userID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		h.remove(c)
	}
	if len(conns) > 0 {
		h.logger.Infof("Disconnected user %d (%d connections)", userID, len(conns))
	}
	return len(conns)
}

// IsConnected reports whether the user has at least one live connection.
func (h *Hub) IsConnected(userID int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// ActiveUsers returns the number of users with at least one connection.
func (h *Hub) ActiveUsers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users)
}

// ActiveConnections returns the total number of open connections.
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, set := range h.users {
		total += len(set)
	}
	return total
}

// heartbeat writes a no-op frame to every open connection. A failing write is
// the detection signal for a silently-dead connection; the frame also keeps
// intermediary proxies from timing out idle channels.
func (h *Hub) heartbeat() {
	h.mu.RLock()
	conns := make([]*connection, 0)
	for _, set := range h.users {
		for c := range set {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()

	frame := Frame{Event: "heartbeat", Data: map[string]any{"timestamp": time.Now().UnixMilli()}}
	for _, c := range conns {
		if err := c.write(frame); err != nil {
			h.logger.Warnf("Heartbeat failed for user %d, removing connection: %v", c.userID, err)
			h.remove(c)
		}
	}
}

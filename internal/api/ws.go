package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Connect upgrades the request to a websocket and registers the connection
// for the authenticated user. The read loop exists only to observe close
// frames; clients are not expected to send application data.
func (h *Handler) Connect(c *gin.Context) {
	id := identityFrom(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnf("websocket upgrade failed for user %d: %v", id.UserID, err)
		return
	}

	if err := h.hub.Register(id.UserID, conn); err != nil {
		h.logger.Warnf("rejecting connection for user %d: %v", id.UserID, err)
		conn.Close()
		return
	}

	go h.readLoop(id.UserID, conn)
}

// SubscribeTopic upgrades the request and attaches the connection to a named
// broadcast topic as well as to the user's own stream.
func (h *Handler) SubscribeTopic(c *gin.Context) {
	id := identityFrom(c)
	topic := c.Param("topic")
	if topic == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "topic is required"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnf("websocket upgrade failed for user %d: %v", id.UserID, err)
		return
	}

	if err := h.hub.Subscribe(topic, id.UserID, conn); err != nil {
		h.logger.Warnf("rejecting subscription for user %d to %q: %v", id.UserID, topic, err)
		conn.Close()
		return
	}

	go h.readLoop(id.UserID, conn)
}

func (h *Handler) readLoop(userID int, conn *websocket.Conn) {
	defer h.hub.Unregister(userID, conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// ConnectionStatus reports whether a user currently has at least one live
// connection. Callers may query their own id; admins may query anyone.
func (h *Handler) ConnectionStatus(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	if !selfOrAdmin(c, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"userId":    userID,
		"connected": h.hub.IsConnected(userID),
	})
}

// DisconnectUser force-closes every connection held by the target user.
func (h *Handler) DisconnectUser(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	if !selfOrAdmin(c, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	closed := h.hub.DisconnectUser(userID)
	c.JSON(http.StatusOK, gin.H{"userId": userID, "closedConnections": closed})
}

// HubStats returns connection counts for operators.
func (h *Handler) HubStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"activeUsers":       h.hub.ActiveUsers(),
		"activeConnections": h.hub.ActiveConnections(),
	})
}

type testSendRequest struct {
	UserID  int            `json:"userId" binding:"required"`
	Event   string         `json:"event" binding:"required"`
	Payload map[string]any `json:"payload"`
}

// TestSendToUser pushes an arbitrary event to one user's connections. Admin
// tooling for verifying delivery end to end.
func (h *Handler) TestSendToUser(c *gin.Context) {
	var req testSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	delivered := h.hub.SendToUser(req.UserID, req.Event, req.Payload)
	c.JSON(http.StatusOK, gin.H{"delivered": delivered})
}

type testBroadcastRequest struct {
	Topic   string         `json:"topic" binding:"required"`
	Event   string         `json:"event" binding:"required"`
	Payload map[string]any `json:"payload"`
}

// TestBroadcast pushes an arbitrary event to every subscriber of a topic.
func (h *Handler) TestBroadcast(c *gin.Context) {
	var req testBroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sent := h.hub.BroadcastToTopic(req.Topic, req.Event, req.Payload)
	c.JSON(http.StatusOK, gin.H{"recipients": sent})
}

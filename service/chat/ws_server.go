package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"OpsFlow/logger"
	"OpsFlow/service/storage"
	"OpsFlow/tools/ids"
	"OpsFlow/tools/safe"
)

const (
	presenceTTL = 24 * time.Hour
	activityTTL = time.Hour

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxFrameSize = 32 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// HandleWS upgrades an authenticated request to a websocket session.
// Auth runs before the upgrade: a bad token is an HTTP 401, not a
// websocket close.
func (s *Server) HandleWS(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	userID, err := s.verifier.VerifyToken(token)
	if err != nil {
		logger.Warnf("[gateway] token rejected: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	user, err := s.users.LookupUser(c.Request.Context(), userID)
	if err != nil {
		logger.Warnf("[gateway] user lookup %s: %v", userID, err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Errorf("[gateway] upgrade failed: %v", err)
		return
	}

	client := NewClient(ids.GenerateString(), *user, ws, s.conf.SendQueueSize)
	s.attach(client)
	safe.Go(func() { s.writePump(client) })
	s.readLoop(client)
}

func bearerToken(c *gin.Context) string {
	if t := c.Query("token"); t != "" {
		return t
	}
	h := c.GetHeader("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// attach registers the connection, marks the user online in the shared
// store and sends the newcomer the current online roster. Store errors
// degrade to local-only presence; the session still runs.
func (s *Server) attach(c *Client) {
	s.conns.Add(c)
	metricConnections.Inc()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.store.SetUserOnline(ctx, c.UserID, c.ConnID); err != nil {
		logger.Warnf("[gateway] mark online %s: %v", c.UserID, err)
	}

	// first connection for this user -> announce to everyone else
	if s.conns.UserConnCount(c.UserID) == 1 {
		s.broadcastAll(Encode(EvUserOnline, UserOnlineData{
			UserID:    c.UserID,
			Timestamp: s.now(),
		}), c.ConnID)
	}

	if online, err := s.store.GetOnlineUsers(ctx); err == nil {
		c.push(Encode(EvPresenceUpdate, map[string]any{"onlineUsers": online}))
	}

	logger.Infof("[gateway] user connected: %s (%s) conn=%s", c.User.Email, c.UserID, c.ConnID)
}

func (s *Server) readLoop(c *Client) {
	defer s.detach(c)

	c.WS.SetReadLimit(maxFrameSize)
	_ = c.WS.SetReadDeadline(time.Now().Add(pongWait))
	c.WS.SetPongHandler(func(string) error {
		return c.WS.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.WS.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warnf("[gateway] read conn=%s: %v", c.ConnID, err)
			}
			return
		}

		frame, err := ParseFrame(raw)
		if err != nil {
			logger.Warnf("[gateway] bad frame conn=%s: %v", c.ConnID, err)
			continue
		}

		// handlers run inline so one connection's events stay ordered
		if err := s.disp.Dispatch(context.Background(), s, c, frame); err != nil {
			logger.Warnf("[gateway] handle %s conn=%s: %v", frame.Event, c.ConnID, err)
		}
	}
}

// writePump is the only goroutine allowed to write to the socket.
func (s *Server) writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.WS.Close()
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			_ = c.WS.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.WS.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.WS.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.WS.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WS.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// detach tears a connection down. Shared-store cleanup only happens
// when the user's last connection goes; each step is attempted even if
// an earlier one fails.
func (s *Server) detach(c *Client) {
	c.markClosed()
	_ = c.WS.Close()

	remaining := s.conns.Remove(c.ConnID)
	metricConnections.Dec()
	logger.Infof("[gateway] user disconnected: %s conn=%s remaining=%d", c.User.Email, c.ConnID, remaining)

	if remaining > 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.store.SetUserOffline(ctx, c.UserID); err != nil {
		logger.Warnf("[gateway] mark offline %s: %v", c.UserID, err)
	}

	rooms, err := s.store.GetUserRooms(ctx, c.UserID)
	if err != nil {
		logger.Warnf("[gateway] rooms of %s: %v", c.UserID, err)
	}
	now := s.now()
	for _, roomID := range rooms {
		if err := s.store.LeaveRoom(ctx, c.UserID, roomID); err != nil {
			logger.Warnf("[gateway] leave room %s/%s: %v", c.UserID, roomID, err)
			continue
		}
		s.broadcastRoom(roomID, Encode(EvUserOffline, UserOfflineData{
			UserID:    c.UserID,
			Timestamp: now,
		}), c.ConnID)
	}

	blob, _ := json.Marshal(PresenceUpdateData{UserID: c.UserID, Status: "offline", LastSeen: now})
	if err := s.store.Set(ctx, storage.KeyPresence(c.UserID), string(blob), presenceTTL); err != nil {
		logger.Warnf("[gateway] presence %s: %v", c.UserID, err)
	}

	s.broadcastAll(Encode(EvUserOffline, UserOfflineData{
		UserID:    c.UserID,
		Timestamp: now,
	}), c.ConnID)
}

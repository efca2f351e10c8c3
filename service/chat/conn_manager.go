package chat

import (
	"sync"

	"github.com/gorilla/websocket"
)

// UserSummary is the authenticated identity attached to a connection.
type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Client is one live connection. A user may hold several at once; each
// gets its own send queue consumed by a single writer goroutine, so a
// slow peer only ever stalls itself.
type Client struct {
	ConnID string
	UserID string
	User   UserSummary
	WS     *websocket.Conn
	Send   chan []byte

	mu     sync.Mutex
	rooms  map[string]struct{}
	closed bool
}

func NewClient(connID string, user UserSummary, ws *websocket.Conn, sendQueueSize int) *Client {
	return &Client{
		ConnID: connID,
		UserID: user.ID,
		User:   user,
		WS:     ws,
		Send:   make(chan []byte, sendQueueSize),
		rooms:  make(map[string]struct{}),
	}
}

// push enqueues a frame without blocking. Frames to a full queue are
// dropped; realtime events are best-effort.
func (c *Client) push(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) joinLocal(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[roomID] = struct{}{}
}

func (c *Client) leaveLocal(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, roomID)
}

func (c *Client) inRoom(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[roomID]
	return ok
}

// Rooms snapshots the connection's joined rooms.
func (c *Client) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		out = append(out, r)
	}
	return out
}

func (c *Client) markClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// ConnManager indexes live connections two ways: by connection id and
// by user id. It also tracks per-user connection counts so offline is
// only declared when a user's last connection drops.
type ConnManager struct {
	mu     sync.RWMutex
	byConn map[string]*Client
	byUser map[string]map[string]*Client // userID -> connID -> client
}

func NewConnManager() *ConnManager {
	return &ConnManager{
		byConn: make(map[string]*Client),
		byUser: make(map[string]map[string]*Client),
	}
}

func (m *ConnManager) Add(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byConn[c.ConnID] = c
	set, ok := m.byUser[c.UserID]
	if !ok {
		set = make(map[string]*Client)
		m.byUser[c.UserID] = set
	}
	set[c.ConnID] = c
}

// Remove drops the connection and reports how many connections the
// user still holds on this node.
func (m *ConnManager) Remove(connID string) (remaining int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byConn[connID]
	if !ok {
		return 0
	}
	delete(m.byConn, connID)
	set := m.byUser[c.UserID]
	delete(set, connID)
	if len(set) == 0 {
		delete(m.byUser, c.UserID)
		return 0
	}
	return len(set)
}

func (m *ConnManager) Get(connID string) (*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byConn[connID]
	return c, ok
}

func (m *ConnManager) UserClients(userID string) []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Client, 0, len(m.byUser[userID]))
	for _, c := range m.byUser[userID] {
		out = append(out, c)
	}
	return out
}

func (m *ConnManager) UserConnCount(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byUser[userID])
}

func (m *ConnManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byConn)
}

// All snapshots every live client.
func (m *ConnManager) All() []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Client, 0, len(m.byConn))
	for _, c := range m.byConn {
		out = append(out, c)
	}
	return out
}

// RoomClients snapshots local clients joined to roomID.
func (m *ConnManager) RoomClients(roomID string) []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Client
	for _, c := range m.byConn {
		if c.inRoom(roomID) {
			out = append(out, c)
		}
	}
	return out
}

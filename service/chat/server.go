package chat

import (
	"context"
	"time"

	"OpsFlow/logger"
	"OpsFlow/middleware/security"
	"OpsFlow/service/storage"
)

// UserDirectory resolves an authenticated user id to its summary.
// Returns errs.ErrNotFound when the user no longer exists.
type UserDirectory interface {
	LookupUser(ctx context.Context, userID string) (*UserSummary, error)
}

// Relay replicates broadcasts to other gateway nodes. Optional; a
// single-node deployment runs without one.
type Relay interface {
	PublishGlobal(frame []byte) error
	PublishRoom(roomID string, frame []byte) error
	PublishUser(userID string, frame []byte) error
}

type ServerConf struct {
	GatewayID     string
	SendQueueSize int              // per-connection outbound buffer (default 64)
	Clock         func() time.Time // injectable for tests
}

func (c *ServerConf) norm() {
	if c.GatewayID == "" {
		c.GatewayID = "gateway-1"
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 64
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// Server is the realtime gateway: it owns live connections, dispatches
// inbound wire events and pushes outbound events sourced from the
// store or from job processors.
type Server struct {
	conf  ServerConf
	store *storage.Store
	conns *ConnManager
	disp  *Dispatcher

	verifier security.TokenVerifier
	users    UserDirectory
	relay    Relay
}

func NewServer(conf ServerConf, store *storage.Store, verifier security.TokenVerifier, users UserDirectory) *Server {
	conf.norm()
	s := &Server{
		conf:     conf,
		store:    store,
		conns:    NewConnManager(),
		disp:     NewDispatcher(),
		verifier: verifier,
		users:    users,
	}
	s.disp.Register(&joinRoomHandler{})
	s.disp.Register(&leaveRoomHandler{})
	s.disp.Register(&typingHandler{})
	s.disp.Register(&stopTypingHandler{})
	s.disp.Register(&updateActivityHandler{})
	s.disp.Register(&updatePresenceHandler{})
	return s
}

// SetRelay wires the cross-node relay; call before serving traffic.
func (s *Server) SetRelay(r Relay) { s.relay = r }

func (s *Server) ConnMgr() *ConnManager { return s.conns }
func (s *Server) Store() *storage.Store { return s.store }
func (s *Server) now() time.Time        { return s.conf.Clock() }

// ---- outbound push API (called by processors / HTTP, not by sockets) ----

// SendNotification delivers to the user's open connections. Returns
// false when the user has none here; persistence and other channels
// are the dispatcher's concern, not this layer's.
func (s *Server) SendNotification(userID string, n Notification) bool {
	frame := Encode(EvNotification, n)
	clients := s.conns.UserClients(userID)
	for _, c := range clients {
		c.push(frame)
	}
	if s.relay != nil {
		if err := s.relay.PublishUser(userID, frame); err != nil {
			logger.Warnf("[gateway] relay notification user=%s: %v", userID, err)
		}
	}
	return len(clients) > 0
}

// SendSystemAlert broadcasts to every open connection.
func (s *Server) SendSystemAlert(alert SystemAlert) {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = s.now()
	}
	s.broadcastAll(Encode(EvSystemAlert, alert), "")
}

// SendToRoom broadcasts an event to a room's current members.
func (s *Server) SendToRoom(roomID string, event Event, data any) {
	s.broadcastRoom(roomID, Encode(event, data), "")
}

// ---- broadcast internals ----

// broadcastAll fans a frame to every local connection except the
// originator, then hands it to the relay for other nodes.
func (s *Server) broadcastAll(frame []byte, exceptConnID string) {
	for _, c := range s.conns.All() {
		if c.ConnID == exceptConnID {
			continue
		}
		c.push(frame)
	}
	if s.relay != nil {
		if err := s.relay.PublishGlobal(frame); err != nil {
			logger.Warnf("[gateway] relay global: %v", err)
		}
	}
}

func (s *Server) broadcastRoom(roomID string, frame []byte, exceptConnID string) {
	for _, c := range s.conns.RoomClients(roomID) {
		if c.ConnID == exceptConnID {
			continue
		}
		c.push(frame)
	}
	if s.relay != nil {
		if err := s.relay.PublishRoom(roomID, frame); err != nil {
			logger.Warnf("[gateway] relay room=%s: %v", roomID, err)
		}
	}
}

// DeliverRelayed delivers a frame that arrived from another gateway
// node. Local-only: it must never be re-published.
func (s *Server) DeliverRelayed(scope, target string, frame []byte) {
	switch scope {
	case "global":
		for _, c := range s.conns.All() {
			c.push(frame)
		}
	case "room":
		for _, c := range s.conns.RoomClients(target) {
			c.push(frame)
		}
	case "user":
		for _, c := range s.conns.UserClients(target) {
			c.push(frame)
		}
	}
}

package chat

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is the wire event name. The protocol is message-typed JSON:
// {"event": "...", "data": {...}}.
type Event string

// Inbound (client -> server).
const (
	EvJoinRoom       Event = "joinRoom"
	EvLeaveRoom      Event = "leaveRoom"
	EvTyping         Event = "typing"
	EvStopTyping     Event = "stopTyping"
	EvUpdateActivity Event = "updateActivity"
	EvUpdatePresence Event = "updatePresence"
)

// Outbound (server -> client).
const (
	EvUserOnline        Event = "userOnline"
	EvUserOffline       Event = "userOffline"
	EvUserTyping        Event = "userTyping"
	EvUserStoppedTyping Event = "userStoppedTyping"
	EvNotification      Event = "notification"
	EvSystemAlert       Event = "systemAlert"
	EvActivityUpdate    Event = "activityUpdate"
	EvPresenceUpdate    Event = "presenceUpdate"
	EvRoomJoined        Event = "roomJoined"
	EvRoomLeft          Event = "roomLeft"
	EvRoomMessage       Event = "roomMessage"
)

type Frame struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func ParseFrame(raw []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("unmarshal frame failed: %w", err)
	}
	if f.Event == "" {
		return nil, fmt.Errorf("frame missing event")
	}
	return &f, nil
}

// Encode builds an outbound frame. Marshal failures cannot happen for
// the payload structs below, so the error is swallowed.
func Encode(event Event, data any) []byte {
	d, _ := json.Marshal(data)
	b, _ := json.Marshal(Frame{Event: event, Data: d})
	return b
}

// ---- inbound payloads ----

type JoinRoomData struct {
	RoomID string `json:"roomId"`
}

type LeaveRoomData struct {
	RoomID string `json:"roomId"`
}

type TypingData struct {
	RoomID string `json:"roomId"`
}

type UpdateActivityData struct {
	Activity string         `json:"activity"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type UpdatePresenceData struct {
	Status string `json:"status"` // online|away|busy|offline
}

func ValidPresenceStatus(s string) bool {
	switch s {
	case "online", "away", "busy", "offline":
		return true
	}
	return false
}

// ---- outbound payloads ----

type UserOnlineData struct {
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

type UserOfflineData struct {
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

type UserTypingData struct {
	UserID string `json:"userId"`
	RoomID string `json:"roomId"`
}

type Notification struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"` // info|success|warning|error
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	UserID    string         `json:"userId"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type SystemAlert struct {
	Type      string    `json:"type"` // maintenance|update|security|performance
	Message   string    `json:"message"`
	Severity  string    `json:"severity"` // low|medium|high|critical
	Timestamp time.Time `json:"timestamp"`
}

type ActivityUpdateData struct {
	UserID    string         `json:"userId"`
	Activity  string         `json:"activity"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type PresenceUpdateData struct {
	UserID   string    `json:"userId"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"lastSeen"`
}

type RoomJoinedData struct {
	RoomID string   `json:"roomId"`
	Users  []string `json:"users"`
}

type RoomLeftData struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type RoomMessageData struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	UserID    string    `json:"userId"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"` // text|system|file
}

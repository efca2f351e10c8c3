package chat

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OpsFlow/service/storage"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	store := storage.NewStore(storage.NewMemBackend())
	return NewServer(ServerConf{
		GatewayID: "gw-test",
		Clock:     func() time.Time { return time.Unix(1_700_000_000, 0) },
	}, store, nil, nil)
}

func addClient(s *Server, connID, userID string) *Client {
	c := NewClient(connID, UserSummary{ID: userID, Email: userID + "@test"}, nil, 16)
	s.conns.Add(c)
	return c
}

// recv pops one queued frame, failing when none is waiting.
func recv(t *testing.T, c *Client) *Frame {
	t.Helper()
	select {
	case raw := <-c.Send:
		f, err := ParseFrame(raw)
		require.NoError(t, err)
		return f
	default:
		t.Fatal("no frame queued")
		return nil
	}
}

func noFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.Send:
		t.Fatalf("unexpected frame: %s", raw)
	default:
	}
}

func dispatch(t *testing.T, s *Server, c *Client, event Event, payload any) error {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return s.disp.Dispatch(context.Background(), s, c, &Frame{Event: event, Data: data})
}

func TestJoinRoom(t *testing.T) {
	s := testServer(t)
	ctx := context.Background()

	alice := addClient(s, "c1", "alice")
	bob := addClient(s, "c2", "bob")

	require.NoError(t, dispatch(t, s, bob, EvJoinRoom, JoinRoomData{RoomID: "r1"}))
	recv(t, bob) // bob's own roomJoined

	require.NoError(t, dispatch(t, s, alice, EvJoinRoom, JoinRoomData{RoomID: "r1"}))

	// joining client gets the member snapshot
	f := recv(t, alice)
	assert.Equal(t, EvRoomJoined, f.Event)
	var joined RoomJoinedData
	require.NoError(t, json.Unmarshal(f.Data, &joined))
	assert.Equal(t, "r1", joined.RoomID)
	assert.ElementsMatch(t, []string{"alice", "bob"}, joined.Users)

	// the room is told, the joiner is not told about itself
	f = recv(t, bob)
	assert.Equal(t, EvUserOnline, f.Event)
	noFrame(t, alice)

	users, err := s.store.GetRoomUsers(ctx, "r1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, users)
}

func TestLeaveRoom(t *testing.T) {
	s := testServer(t)
	ctx := context.Background()

	alice := addClient(s, "c1", "alice")
	bob := addClient(s, "c2", "bob")
	require.NoError(t, dispatch(t, s, alice, EvJoinRoom, JoinRoomData{RoomID: "r1"}))
	require.NoError(t, dispatch(t, s, bob, EvJoinRoom, JoinRoomData{RoomID: "r1"}))
	for len(alice.Send) > 0 {
		<-alice.Send
	}
	for len(bob.Send) > 0 {
		<-bob.Send
	}

	require.NoError(t, dispatch(t, s, alice, EvLeaveRoom, LeaveRoomData{RoomID: "r1"}))

	f := recv(t, bob)
	assert.Equal(t, EvRoomLeft, f.Event)
	var left RoomLeftData
	require.NoError(t, json.Unmarshal(f.Data, &left))
	assert.Equal(t, "alice", left.UserID)
	noFrame(t, alice)

	users, err := s.store.GetRoomUsers(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, users)
}

func TestTypingRelayExcludesSender(t *testing.T) {
	s := testServer(t)

	alice := addClient(s, "c1", "alice")
	bob := addClient(s, "c2", "bob")
	carol := addClient(s, "c3", "carol")
	for _, c := range []*Client{alice, bob} {
		require.NoError(t, dispatch(t, s, c, EvJoinRoom, JoinRoomData{RoomID: "r1"}))
	}
	for _, c := range []*Client{alice, bob, carol} {
		for len(c.Send) > 0 {
			<-c.Send
		}
	}

	require.NoError(t, dispatch(t, s, alice, EvTyping, TypingData{RoomID: "r1"}))

	f := recv(t, bob)
	assert.Equal(t, EvUserTyping, f.Event)
	noFrame(t, alice)
	noFrame(t, carol) // not in the room

	// typing leaves no trace in the store
	ok, err := s.store.Exists(context.Background(), "typing:alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdatePresence(t *testing.T) {
	s := testServer(t)

	alice := addClient(s, "c1", "alice")
	bob := addClient(s, "c2", "bob")

	require.NoError(t, dispatch(t, s, alice, EvUpdatePresence, UpdatePresenceData{Status: "away"}))

	f := recv(t, bob)
	assert.Equal(t, EvPresenceUpdate, f.Event)
	var p PresenceUpdateData
	require.NoError(t, json.Unmarshal(f.Data, &p))
	assert.Equal(t, "alice", p.UserID)
	assert.Equal(t, "away", p.Status)
	noFrame(t, alice)

	raw, ok, err := s.store.Get(context.Background(), storage.KeyPresence("alice"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, raw, `"away"`)

	err = dispatch(t, s, alice, EvUpdatePresence, UpdatePresenceData{Status: "invisible"})
	assert.Error(t, err, "unknown status must be rejected")
}

func TestUpdateActivity(t *testing.T) {
	s := testServer(t)

	alice := addClient(s, "c1", "alice")
	bob := addClient(s, "c2", "bob")

	require.NoError(t, dispatch(t, s, alice, EvUpdateActivity, UpdateActivityData{
		Activity: "editing task",
		Metadata: map[string]any{"taskId": "t-1"},
	}))

	f := recv(t, bob)
	assert.Equal(t, EvActivityUpdate, f.Event)
	var a ActivityUpdateData
	require.NoError(t, json.Unmarshal(f.Data, &a))
	assert.Equal(t, "editing task", a.Activity)
	noFrame(t, alice)
}

func TestSendNotification(t *testing.T) {
	s := testServer(t)

	assert.False(t, s.SendNotification("ghost", Notification{Title: "hi"}),
		"no local connections means no delivery")

	alice1 := addClient(s, "c1", "alice")
	alice2 := addClient(s, "c2", "alice")
	bob := addClient(s, "c3", "bob")

	ok := s.SendNotification("alice", Notification{ID: "n1", Type: "info", Title: "hi", UserID: "alice"})
	assert.True(t, ok)

	for _, c := range []*Client{alice1, alice2} {
		f := recv(t, c)
		assert.Equal(t, EvNotification, f.Event)
		var n Notification
		require.NoError(t, json.Unmarshal(f.Data, &n))
		assert.Equal(t, "n1", n.ID)
	}
	noFrame(t, bob)
}

func TestSystemAlertBroadcast(t *testing.T) {
	s := testServer(t)
	alice := addClient(s, "c1", "alice")
	bob := addClient(s, "c2", "bob")

	s.SendSystemAlert(SystemAlert{Type: "maintenance", Message: "down at noon", Severity: "high"})

	for _, c := range []*Client{alice, bob} {
		f := recv(t, c)
		assert.Equal(t, EvSystemAlert, f.Event)
	}
}

func TestDeliverRelayed(t *testing.T) {
	s := testServer(t)

	alice := addClient(s, "c1", "alice")
	bob := addClient(s, "c2", "bob")
	require.NoError(t, dispatch(t, s, bob, EvJoinRoom, JoinRoomData{RoomID: "r1"}))
	for len(bob.Send) > 0 {
		<-bob.Send
	}

	frame := Encode(EvRoomMessage, RoomMessageData{RoomID: "r1", Message: "hello"})
	s.DeliverRelayed("room", "r1", frame)
	f := recv(t, bob)
	assert.Equal(t, EvRoomMessage, f.Event)
	noFrame(t, alice)

	s.DeliverRelayed("user", "alice", Encode(EvNotification, Notification{ID: "n2"}))
	f = recv(t, alice)
	assert.Equal(t, EvNotification, f.Event)
	noFrame(t, bob)
}

// relayRecorder captures relay publications for fan-out assertions.
type relayRecorder struct {
	global [][]byte
	rooms  map[string][][]byte
	users  map[string][][]byte
}

func newRelayRecorder() *relayRecorder {
	return &relayRecorder{rooms: map[string][][]byte{}, users: map[string][][]byte{}}
}

func (r *relayRecorder) PublishGlobal(frame []byte) error {
	r.global = append(r.global, frame)
	return nil
}

func (r *relayRecorder) PublishRoom(roomID string, frame []byte) error {
	r.rooms[roomID] = append(r.rooms[roomID], frame)
	return nil
}

func (r *relayRecorder) PublishUser(userID string, frame []byte) error {
	r.users[userID] = append(r.users[userID], frame)
	return nil
}

func TestBroadcastsReachRelay(t *testing.T) {
	s := testServer(t)
	relay := newRelayRecorder()
	s.SetRelay(relay)

	alice := addClient(s, "c1", "alice")
	require.NoError(t, dispatch(t, s, alice, EvJoinRoom, JoinRoomData{RoomID: "r1"}))
	require.NoError(t, dispatch(t, s, alice, EvTyping, TypingData{RoomID: "r1"}))

	assert.NotEmpty(t, relay.rooms["r1"])

	s.SendNotification("offline-user", Notification{ID: "n1", UserID: "offline-user"})
	assert.Len(t, relay.users["offline-user"], 1,
		"notification must still reach other nodes via the relay")
}

func TestUnknownEventRejected(t *testing.T) {
	s := testServer(t)

	alice := addClient(s, "c1", "alice")
	bob := addClient(s, "c2", "bob")

	err := dispatch(t, s, alice, Event("fileUpload"), map[string]any{"name": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no handler")

	// the frame went nowhere
	noFrame(t, alice)
	noFrame(t, bob)

	assert.Nil(t, s.disp.GetHandler(Event("fileUpload")))
	assert.NotNil(t, s.disp.GetHandler(EvJoinRoom))
}

func TestActivityRefreshesPresence(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := storage.NewStore(storage.NewMemBackendWithClock(clock))
	s := NewServer(ServerConf{GatewayID: "gw-test", Clock: clock}, store, nil, nil)
	ctx := context.Background()

	alice := addClient(s, "c1", "alice")
	bob := addClient(s, "c2", "bob")

	require.NoError(t, dispatch(t, s, alice, EvUpdatePresence, UpdatePresenceData{Status: "online"}))
	require.NoError(t, dispatch(t, s, bob, EvUpdatePresence, UpdatePresenceData{Status: "online"}))

	// near the end of the presence window, alice shows activity
	now = now.Add(23 * time.Hour)
	require.NoError(t, dispatch(t, s, alice, EvUpdateActivity, UpdateActivityData{Activity: "editing task"}))

	// past the original window: alice's record was renewed, bob's lapsed
	now = now.Add(2 * time.Hour)
	_, ok, err := store.Get(ctx, storage.KeyPresence("alice"))
	require.NoError(t, err)
	assert.True(t, ok, "activity renews the presence record")

	_, ok, err = store.Get(ctx, storage.KeyPresence("bob"))
	require.NoError(t, err)
	assert.False(t, ok, "idle presence expires")
}

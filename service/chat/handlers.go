package chat

import (
	"context"
	"encoding/json"

	"OpsFlow/logger"
	"OpsFlow/service/storage"
	errs "OpsFlow/tools/errs"
)

// Inbound event handlers. Store failures are soft: the event is logged
// and dropped, the connection stays up.

type joinRoomHandler struct{}

func (joinRoomHandler) Event() Event { return EvJoinRoom }

func (joinRoomHandler) Handle(ctx context.Context, s *Server, c *Client, data json.RawMessage) error {
	var d JoinRoomData
	if err := json.Unmarshal(data, &d); err != nil || d.RoomID == "" {
		return errs.ErrValidation.WrapMsg("joinRoom payload", "err", err)
	}

	c.joinLocal(d.RoomID)
	if err := s.store.JoinRoom(ctx, c.UserID, d.RoomID); err != nil {
		return err
	}

	users, err := s.store.GetRoomUsers(ctx, d.RoomID)
	if err != nil {
		return err
	}

	c.push(Encode(EvRoomJoined, RoomJoinedData{RoomID: d.RoomID, Users: users}))
	s.broadcastRoom(d.RoomID, Encode(EvUserOnline, UserOnlineData{
		UserID:    c.UserID,
		Timestamp: s.now(),
	}), c.ConnID)

	logger.Infof("[gateway] user %s joined room: %s", c.User.Email, d.RoomID)
	return nil
}

type leaveRoomHandler struct{}

func (leaveRoomHandler) Event() Event { return EvLeaveRoom }

func (leaveRoomHandler) Handle(ctx context.Context, s *Server, c *Client, data json.RawMessage) error {
	var d LeaveRoomData
	if err := json.Unmarshal(data, &d); err != nil || d.RoomID == "" {
		return errs.ErrValidation.WrapMsg("leaveRoom payload", "err", err)
	}

	c.leaveLocal(d.RoomID)
	if err := s.store.LeaveRoom(ctx, c.UserID, d.RoomID); err != nil {
		return err
	}

	s.broadcastRoom(d.RoomID, Encode(EvRoomLeft, RoomLeftData{
		RoomID: d.RoomID,
		UserID: c.UserID,
	}), c.ConnID)

	logger.Infof("[gateway] user %s left room: %s", c.User.Email, d.RoomID)
	return nil
}

// typing/stopTyping are a stateless relay to other room members only;
// nothing is written to the store.

type typingHandler struct{}

func (typingHandler) Event() Event { return EvTyping }

func (typingHandler) Handle(_ context.Context, s *Server, c *Client, data json.RawMessage) error {
	var d TypingData
	if err := json.Unmarshal(data, &d); err != nil || d.RoomID == "" {
		return errs.ErrValidation.WrapMsg("typing payload", "err", err)
	}
	s.broadcastRoom(d.RoomID, Encode(EvUserTyping, UserTypingData{
		UserID: c.UserID,
		RoomID: d.RoomID,
	}), c.ConnID)
	return nil
}

type stopTypingHandler struct{}

func (stopTypingHandler) Event() Event { return EvStopTyping }

func (stopTypingHandler) Handle(_ context.Context, s *Server, c *Client, data json.RawMessage) error {
	var d TypingData
	if err := json.Unmarshal(data, &d); err != nil || d.RoomID == "" {
		return errs.ErrValidation.WrapMsg("stopTyping payload", "err", err)
	}
	s.broadcastRoom(d.RoomID, Encode(EvUserStoppedTyping, UserTypingData{
		UserID: c.UserID,
		RoomID: d.RoomID,
	}), c.ConnID)
	return nil
}

type updateActivityHandler struct{}

func (updateActivityHandler) Event() Event { return EvUpdateActivity }

func (updateActivityHandler) Handle(ctx context.Context, s *Server, c *Client, data json.RawMessage) error {
	var d UpdateActivityData
	if err := json.Unmarshal(data, &d); err != nil || d.Activity == "" {
		return errs.ErrValidation.WrapMsg("updateActivity payload", "err", err)
	}

	now := s.now()
	s.broadcastAll(Encode(EvActivityUpdate, ActivityUpdateData{
		UserID:    c.UserID,
		Activity:  d.Activity,
		Timestamp: now,
		Metadata:  d.Metadata,
	}), c.ConnID)

	// activity counts as liveness, keep the presence record from lapsing
	if err := s.store.Refresh(ctx, storage.KeyPresence(c.UserID), presenceTTL); err != nil {
		logger.Warnf("[gateway] refresh presence %s: %v", c.UserID, err)
	}

	// time-bucketed record for analytics, 1h TTL
	blob, _ := json.Marshal(map[string]any{
		"activity":  d.Activity,
		"metadata":  d.Metadata,
		"timestamp": now,
	})
	return s.store.Set(ctx, storage.KeyActivity(c.UserID, now.UnixMilli()), string(blob), activityTTL)
}

type updatePresenceHandler struct{}

func (updatePresenceHandler) Event() Event { return EvUpdatePresence }

func (updatePresenceHandler) Handle(ctx context.Context, s *Server, c *Client, data json.RawMessage) error {
	var d UpdatePresenceData
	if err := json.Unmarshal(data, &d); err != nil || !ValidPresenceStatus(d.Status) {
		return errs.ErrValidation.WrapMsg("updatePresence payload", "err", err)
	}

	now := s.now()
	blob, _ := json.Marshal(PresenceUpdateData{UserID: c.UserID, Status: d.Status, LastSeen: now})
	if err := s.store.Set(ctx, storage.KeyPresence(c.UserID), string(blob), presenceTTL); err != nil {
		return err
	}

	s.broadcastAll(Encode(EvPresenceUpdate, PresenceUpdateData{
		UserID:   c.UserID,
		Status:   d.Status,
		LastSeen: now,
	}), c.ConnID)
	return nil
}

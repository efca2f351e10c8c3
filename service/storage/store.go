package storage

import (
	"context"
	"time"
)

// Store is the shared presence/room state, a thin façade over Backend.
// It owns no business logic; the gateway mirrors per-connection actions
// into it so that lookups work across processes.
type Store struct {
	b Backend
}

func NewStore(b Backend) *Store { return &Store{b: b} }

// Backend exposes the raw operation set for layers that keep ad-hoc
// records (activity blobs, notification history, analytics counters).
func (s *Store) Backend() Backend { return s.b }

// SetUserOnline records userID as online via connID. Idempotent; a
// second connection for the same user just overwrites the mapping.
func (s *Store) SetUserOnline(ctx context.Context, userID, connID string) error {
	if err := s.b.HSet(ctx, keyUsersOnline, userID, connID); err != nil {
		return err
	}
	return s.b.SAdd(ctx, keyOnlineUsers, userID)
}

// SetUserOffline removes userID from the online set regardless of which
// connection called it. The gateway only calls this when the user's
// last connection dropped.
func (s *Store) SetUserOffline(ctx context.Context, userID string) error {
	if err := s.b.HDel(ctx, keyUsersOnline, userID); err != nil {
		return err
	}
	return s.b.SRem(ctx, keyOnlineUsers, userID)
}

func (s *Store) GetOnlineUsers(ctx context.Context) ([]string, error) {
	return s.b.SMembers(ctx, keyOnlineUsers)
}

func (s *Store) IsUserOnline(ctx context.Context, userID string) (bool, error) {
	return s.b.SIsMember(ctx, keyOnlineUsers, userID)
}

// JoinRoom adds to both indexes (room->users and user->rooms). The two
// writes are independent; a crash in between leaves a dangling entry
// that disconnect cleanup self-heals.
func (s *Store) JoinRoom(ctx context.Context, userID, roomID string) error {
	if err := s.b.SAdd(ctx, keyRoomUsers(roomID), userID); err != nil {
		return err
	}
	return s.b.SAdd(ctx, keyUserRooms(userID), roomID)
}

func (s *Store) LeaveRoom(ctx context.Context, userID, roomID string) error {
	if err := s.b.SRem(ctx, keyRoomUsers(roomID), userID); err != nil {
		return err
	}
	return s.b.SRem(ctx, keyUserRooms(userID), roomID)
}

func (s *Store) GetRoomUsers(ctx context.Context, roomID string) ([]string, error) {
	return s.b.SMembers(ctx, keyRoomUsers(roomID))
}

func (s *Store) GetUserRooms(ctx context.Context, userID string) ([]string, error) {
	return s.b.SMembers(ctx, keyUserRooms(userID))
}

// Generic cached records for higher layers.

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.b.Set(ctx, key, value, ttl)
}

// Refresh extends the TTL of an existing key without rewriting its value.
func (s *Store) Refresh(ctx context.Context, key string, ttl time.Duration) error {
	return s.b.Expire(ctx, key, ttl)
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	return s.b.Get(ctx, key)
}

func (s *Store) Del(ctx context.Context, key string) error {
	return s.b.Del(ctx, key)
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	return s.b.Exists(ctx, key)
}

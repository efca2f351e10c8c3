package storage

import "strconv"

// Key layout. Presence and rooms live under stable names so that any
// gateway node sees the same state.
const (
	keyOnlineUsers = "online:users" // set of online user ids
	keyUsersOnline = "users:online" // hash userId -> connId
)

func keyRoomUsers(roomID string) string { return "room:" + roomID + ":users" }
func keyUserRooms(userID string) string { return "user:" + userID + ":rooms" }

func KeyPresence(userID string) string { return "presence:" + userID }

func KeyActivity(userID string, unixMS int64) string {
	return "activity:" + userID + ":" + strconv.FormatInt(unixMS, 10)
}

func KeyNotification(id string) string         { return "notification:" + id }
func KeyNotificationList(userID string) string { return "notifications:" + userID }

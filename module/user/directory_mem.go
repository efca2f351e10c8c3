package user

import (
	"context"
	"sync"

	"OpsFlow/service/chat"
	errs "OpsFlow/tools/errs"
)

// StaticDirectory serves a fixed user set from memory. Used in tests
// and single-binary demos where no mongo is available.
type StaticDirectory struct {
	mu    sync.RWMutex
	users map[string]chat.UserSummary
}

func NewStaticDirectory(users ...chat.UserSummary) *StaticDirectory {
	d := &StaticDirectory{users: make(map[string]chat.UserSummary, len(users))}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *StaticDirectory) Put(u chat.UserSummary) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

func (d *StaticDirectory) LookupUser(_ context.Context, userID string) (*chat.UserSummary, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[userID]
	if !ok {
		return nil, errs.ErrNotFound.WrapMsg("user not found", "userId", userID)
	}
	return &u, nil
}

package notify

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OpsFlow/service/chat"
	"OpsFlow/service/queue"
	"OpsFlow/service/storage"
	errs "OpsFlow/tools/errs"
)

type fakeGateway struct {
	online map[string]bool
	sent   []chat.Notification
}

func (g *fakeGateway) SendNotification(userID string, n chat.Notification) bool {
	g.sent = append(g.sent, n)
	return g.online[userID]
}

type fakeEnqueuer struct {
	added []struct {
		Queue, Type string
		Payload     map[string]any
	}
	err error
}

func (e *fakeEnqueuer) AddJob(_ context.Context, queueName, jobType string, payload map[string]any, _ queue.JobOptions) (*queue.Job, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.added = append(e.added, struct {
		Queue, Type string
		Payload     map[string]any
	}{queueName, jobType, payload})
	return &queue.Job{ID: fmt.Sprintf("job-%d", len(e.added))}, nil
}

type fakeUsers map[string]string // id -> email

func (u fakeUsers) LookupUser(_ context.Context, id string) (*chat.UserSummary, error) {
	email, ok := u[id]
	if !ok {
		return nil, errs.ErrNotFound.WrapMsg("user not found", "userId", id)
	}
	return &chat.UserSummary{ID: id, Email: email}, nil
}

func testProcessor(gw *fakeGateway, enq *fakeEnqueuer) (*Processor, *storage.Store) {
	store := storage.NewStore(storage.NewMemBackend())
	p := NewProcessor(store, gw, fakeUsers{"alice": "alice@test"}, enq)
	p.clock = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return p, store
}

func job(payload map[string]any) *queue.Job {
	return &queue.Job{ID: "j1", Queue: queue.QueueNotification, Type: queue.JobSendNotification, Payload: payload}
}

func TestProcessDefaultsToWebsocketAndPersists(t *testing.T) {
	gw := &fakeGateway{online: map[string]bool{"alice": true}}
	p, store := testProcessor(gw, &fakeEnqueuer{})
	ctx := context.Background()

	err := p.Process(ctx, job(map[string]any{
		"userId":  "alice",
		"type":    "info",
		"title":   "Task assigned",
		"message": "You got one",
	}))
	require.NoError(t, err)

	require.Len(t, gw.sent, 1)
	assert.Equal(t, "notification_j1", gw.sent[0].ID)
	assert.Equal(t, "alice", gw.sent[0].UserID)

	history, err := History(ctx, store, "alice", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Task assigned", history[0].Title)
}

func TestProcessOfflineUserStillPersists(t *testing.T) {
	gw := &fakeGateway{} // nobody online
	p, store := testProcessor(gw, &fakeEnqueuer{})
	ctx := context.Background()

	err := p.Process(ctx, job(map[string]any{
		"userId": "alice",
		"type":   "info",
		"title":  "Missed you",
	}))
	require.NoError(t, err, "offline websocket delivery is a skip, not a failure")

	history, err := History(ctx, store, "alice", 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestProcessNonPersistent(t *testing.T) {
	gw := &fakeGateway{online: map[string]bool{"alice": true}}
	p, store := testProcessor(gw, &fakeEnqueuer{})
	ctx := context.Background()

	err := p.Process(ctx, job(map[string]any{
		"userId":     "alice",
		"type":       "info",
		"title":      "Ephemeral",
		"persistent": false,
	}))
	require.NoError(t, err)

	history, err := History(ctx, store, "alice", 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestEmailChannelEnqueuesEmailJob(t *testing.T) {
	gw := &fakeGateway{}
	enq := &fakeEnqueuer{}
	p, _ := testProcessor(gw, enq)

	err := p.Process(context.Background(), job(map[string]any{
		"userId":   "alice",
		"type":     "warning",
		"title":    "Disk almost full",
		"message":  "92%",
		"channels": []string{"websocket", "email"},
	}))
	require.NoError(t, err)

	require.Len(t, enq.added, 1)
	assert.Equal(t, queue.QueueEmail, enq.added[0].Queue)
	assert.Equal(t, "alice@test", enq.added[0].Payload["to"])
	assert.Equal(t, "notification", enq.added[0].Payload["template"])
}

func TestEmailChannelUnknownUserFails(t *testing.T) {
	p, _ := testProcessor(&fakeGateway{}, &fakeEnqueuer{})

	err := p.Process(context.Background(), job(map[string]any{
		"userId":   "ghost",
		"type":     "info",
		"title":    "hi",
		"channels": []string{"email"},
	}))
	assert.True(t, errs.ErrNotFound.Is(err))
}

func TestUnknownChannelIsIgnored(t *testing.T) {
	gw := &fakeGateway{}
	p, _ := testProcessor(gw, &fakeEnqueuer{})

	err := p.Process(context.Background(), job(map[string]any{
		"userId":   "alice",
		"type":     "info",
		"title":    "hi",
		"channels": []string{"carrier-pigeon"},
	}))
	assert.NoError(t, err)
}

func TestHistoryCapEviction(t *testing.T) {
	gw := &fakeGateway{}
	p, store := testProcessor(gw, &fakeEnqueuer{})
	ctx := context.Background()

	for i := 0; i < historyCap+10; i++ {
		j := job(map[string]any{
			"userId": "alice",
			"type":   "info",
			"title":  fmt.Sprintf("n-%d", i),
		})
		j.ID = fmt.Sprintf("j-%d", i)
		require.NoError(t, p.Process(ctx, j))
	}

	ids, err := store.Backend().LRange(ctx, storage.KeyNotificationList("alice"), 0, -1)
	require.NoError(t, err)
	assert.Len(t, ids, historyCap)
	assert.Equal(t, "notification_j-109", ids[0], "newest first")
}

func TestDispatcherValidation(t *testing.T) {
	enq := &fakeEnqueuer{}
	d := NewDispatcher(enq)
	ctx := context.Background()

	_, err := d.Notify(ctx, "", "info", "title", "msg", Options{})
	assert.True(t, errs.ErrValidation.Is(err))

	_, err = d.Notify(ctx, "alice", "shouting", "title", "msg", Options{})
	assert.True(t, errs.ErrValidation.Is(err))

	j, err := d.Notify(ctx, "alice", "", "title", "msg", Options{})
	require.NoError(t, err)
	assert.NotNil(t, j)
	require.Len(t, enq.added, 1)
	assert.Equal(t, queue.QueueNotification, enq.added[0].Queue)
	assert.Equal(t, "info", enq.added[0].Payload["type"], "empty type defaults to info")
}

func TestNotifyBulk(t *testing.T) {
	enq := &fakeEnqueuer{}
	d := NewDispatcher(enq)

	jobs, err := d.NotifyBulk(context.Background(), []Request{
		{UserID: "a", Type: "info", Title: "one"},
		{UserID: "b", Type: "success", Title: "two"},
	})
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
	assert.Len(t, enq.added, 2)
}

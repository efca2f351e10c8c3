package analytics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OpsFlow/service/queue"
	"OpsFlow/service/storage"
	errs "OpsFlow/tools/errs"
)

type env struct {
	p   *Processor
	b   storage.Backend
	now time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{now: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
	e.b = storage.NewMemBackendWithClock(func() time.Time { return e.now })
	e.p = NewProcessor(e.b, nil)
	e.p.clock = func() time.Time { return e.now }
	return e
}

func (e *env) process(t *testing.T, payload map[string]any) {
	t.Helper()
	j := &queue.Job{ID: "j1", Queue: queue.QueueAnalytics, Type: queue.JobTrackEvent, Payload: payload}
	require.NoError(t, e.p.Process(context.Background(), j))
}

func TestTrackUserLogin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.process(t, map[string]any{"event": "user_login", "userId": "alice"})
	e.process(t, map[string]any{"event": "user_login", "userId": "alice"})
	e.process(t, map[string]any{"event": "user_login", "userId": "bob"})

	raw, ok, err := e.b.Get(ctx, "analytics:logins:daily:2026-03-14")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "3", raw)

	active, err := e.b.SCard(ctx, "analytics:active_users:2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, int64(2), active, "active users dedupe by id")
}

func TestTaskCompletionTiming(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.process(t, map[string]any{
		"event":     "task_created",
		"taskId":    "t1",
		"userId":    "alice",
		"projectId": "p1",
	})

	e.now = e.now.Add(90 * time.Second)
	e.process(t, map[string]any{"event": "task_completed", "taskId": "t1", "userId": "alice"})

	samples, err := e.b.LRange(ctx, "analytics:task_completion_times:2026-03-14", 0, -1)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, "90000", samples[0], "sample is elapsed milliseconds")

	// project counter picked up the creation
	raw, ok, err := e.b.Get(ctx, "analytics:project:p1:tasks_created")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", raw)
}

func TestTaskCompletionWithoutCreationRecord(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.process(t, map[string]any{"event": "task_completed", "taskId": "unknown", "userId": "alice"})

	raw, ok, err := e.b.Get(ctx, "analytics:tasks:completed:daily:2026-03-14")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", raw, "counter still moves")

	samples, err := e.b.LRange(ctx, "analytics:task_completion_times:2026-03-14", 0, -1)
	require.NoError(t, err)
	assert.Empty(t, samples, "no creation record, no timing sample")
}

func TestCompletionSampleCap(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	for i := 0; i < completionTimeCap+5; i++ {
		taskID := fmt.Sprintf("t%d", i)
		e.process(t, map[string]any{"event": "task_created", "taskId": taskID, "userId": "alice"})
		e.process(t, map[string]any{"event": "task_completed", "taskId": taskID, "userId": "alice"})
	}

	n, err := e.b.LLen(ctx, "analytics:task_completion_times:2026-03-14")
	require.NoError(t, err)
	assert.Equal(t, int64(completionTimeCap), n)
}

func TestGenericEvent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.process(t, map[string]any{"event": "file_uploaded", "userId": "alice", "metadata": map[string]any{"size": 1024}})

	raw, ok, err := e.b.Get(ctx, "analytics:events:file_uploaded:2026-03-14")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", raw)

	data, err := e.b.LRange(ctx, "analytics:events:file_uploaded:data:2026-03-14", 0, -1)
	require.NoError(t, err)
	require.Len(t, data, 1)
	assert.Contains(t, data[0], `"alice"`)
}

func TestUserActivityTracksType(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.process(t, map[string]any{
		"event":    "user_activity",
		"userId":   "alice",
		"metadata": map[string]any{"activityType": "comment"},
	})

	raw, ok, err := e.b.Get(ctx, "analytics:activity:comment:2026-03-14")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", raw)
}

func TestMissingEventRejected(t *testing.T) {
	e := newEnv(t)
	j := &queue.Job{ID: "j1", Payload: map[string]any{"userId": "alice"}}
	err := e.p.Process(context.Background(), j)
	assert.True(t, errs.ErrValidation.Is(err))
}

func TestGetSummary(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.process(t, map[string]any{"event": "user_login", "userId": "alice"})
	e.process(t, map[string]any{"event": "task_created", "taskId": "t1", "userId": "alice"})
	e.process(t, map[string]any{"event": "task_completed", "taskId": "t1", "userId": "alice"})
	e.process(t, map[string]any{"event": "project_created", "projectId": "p1", "userId": "bob"})

	s, err := e.p.GetSummary(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, Summary{
		Date:            "2026-03-14",
		Logins:          1,
		TasksCreated:    1,
		TasksCompleted:  1,
		ProjectsCreated: 1,
		ActiveUsers:     1,
	}, s)

	// a day with no traffic reads as zeros, not an error
	empty, err := e.p.GetSummary(ctx, "2026-01-01")
	require.NoError(t, err)
	assert.Equal(t, Summary{Date: "2026-01-01"}, empty)
}

func TestBucketsFollowEventTimestamp(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// processed on 2026-03-14 for events that happened the day before,
	// as with a delayed or retried job
	e.process(t, map[string]any{
		"event":     "task_created",
		"taskId":    "t1",
		"userId":    "alice",
		"timestamp": "2026-03-13T23:55:00Z",
	})
	e.process(t, map[string]any{
		"event":     "user_activity",
		"userId":    "alice",
		"timestamp": "2026-03-13T23:56:00Z",
	})

	raw, ok, err := e.b.Get(ctx, "analytics:tasks:created:daily:2026-03-13")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", raw)

	active, err := e.b.SCard(ctx, "analytics:active_users:2026-03-13")
	require.NoError(t, err)
	assert.Equal(t, int64(1), active)

	// nothing spilled into the processing day's bucket
	_, ok, err = e.b.Get(ctx, "analytics:tasks:created:daily:2026-03-14")
	require.NoError(t, err)
	assert.False(t, ok)
}

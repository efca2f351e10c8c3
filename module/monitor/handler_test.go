package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OpsFlow/service/analytics"
	"OpsFlow/service/notify"
	"OpsFlow/service/queue"
	"OpsFlow/service/storage"
)

func testRouter(t *testing.T) (*gin.Engine, *queue.Manager, *storage.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	b := storage.NewMemBackend()
	store := storage.NewStore(b)

	queues := queue.NewManager(b)
	queues.CreateQueue(queue.QueueEmail, queue.Conf{})
	queues.CreateQueue(queue.QueueNotification, queue.Conf{})
	queues.CreateQueue(queue.QueueAnalytics, queue.Conf{})

	notifier := notify.NewDispatcher(queues)
	ap := analytics.NewProcessor(b, nil)

	r := gin.New()
	NewHandler(store, queues, notifier, ap).Register(r)
	return r, queues, store
}

func TestNotifyEndpoint(t *testing.T) {
	r, queues, _ := testRouter(t)

	body := `{"userId":"alice","type":"info","title":"Deploy done","message":"v1.2 is live"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/notify", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["jobId"])

	st, err := queues.QueueStats(req.Context(), queue.QueueNotification)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Waiting)
}

func TestNotifyEndpointValidation(t *testing.T) {
	r, _, _ := testRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/notify", strings.NewReader(`{"title":"no user"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueueStatsEndpoint(t *testing.T) {
	r, _, _ := testRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/queues/stats", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var stats map[string]queue.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Contains(t, stats, queue.QueueEmail)
	assert.Contains(t, stats, queue.QueueNotification)
	assert.Contains(t, stats, queue.QueueAnalytics)
}

func TestAnalyticsSummaryEndpoint(t *testing.T) {
	r, _, _ := testRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/analytics/summary?date=2026-01-01", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var s analytics.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	assert.Equal(t, "2026-01-01", s.Date)
}

func TestNotificationHistoryEndpoint(t *testing.T) {
	r, _, store := testRouter(t)

	// empty history is an empty list, not an error
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/users/alice/notifications", nil))
	require.Equal(t, http.StatusOK, w.Code)

	// seed one stored notification
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()
	blob := `{"id":"notification_j1","type":"info","title":"stored","userId":"alice"}`
	require.NoError(t, store.Backend().Set(ctx, storage.KeyNotification("notification_j1"), blob, 0))
	require.NoError(t, store.Backend().LPush(ctx, storage.KeyNotificationList("alice"), "notification_j1"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/users/alice/notifications", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"stored"`)
}

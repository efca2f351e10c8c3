package monitor

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"OpsFlow/service/analytics"
	"OpsFlow/service/notify"
	"OpsFlow/service/queue"
	"OpsFlow/service/storage"
	errs "OpsFlow/tools/errs"
)

// Handler exposes the core's inputs and outputs over HTTP: the notify
// command, queue stats, the analytics summary and stored notification
// history.
type Handler struct {
	store     *storage.Store
	queues    *queue.Manager
	notifier  *notify.Dispatcher
	analytics *analytics.Processor
}

func NewHandler(store *storage.Store, queues *queue.Manager, notifier *notify.Dispatcher, ap *analytics.Processor) *Handler {
	return &Handler{store: store, queues: queues, notifier: notifier, analytics: ap}
}

// Register mounts the monitoring and command routes.
func (h *Handler) Register(r *gin.Engine) {
	r.POST("/api/notify", h.HandleNotify)
	r.GET("/api/queues/stats", h.HandleQueueStats)
	r.GET("/api/analytics/summary", h.HandleAnalyticsSummary)
	r.GET("/api/users/:id/notifications", h.HandleNotificationHistory)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func httpStatus(err error) int {
	switch {
	case errs.ErrValidation.Is(err):
		return http.StatusBadRequest
	case errs.ErrNotFound.Is(err):
		return http.StatusNotFound
	case errs.ErrAuthentication.Is(err):
		return http.StatusUnauthorized
	case errs.ErrTransientInfra.Is(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) HandleNotify(c *gin.Context) {
	var req notify.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request body"})
		return
	}

	job, err := h.notifier.Notify(c.Request.Context(), req.UserID, req.Type, req.Title, req.Message, req.Options)
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"jobId": job.ID})
}

func (h *Handler) HandleQueueStats(c *gin.Context) {
	stats, err := h.queues.AllStats(c.Request.Context())
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) HandleAnalyticsSummary(c *gin.Context) {
	summary, err := h.analytics.GetSummary(c.Request.Context(), c.Query("date"))
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) HandleNotificationHistory(c *gin.Context) {
	userID := c.Param("id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user id"})
		return
	}

	list, err := notify.History(c.Request.Context(), h.store, userID, 0)
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": userID, "notifications": list})
}

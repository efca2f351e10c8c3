package queue

import (
	"context"
	"sync"

	"OpsFlow/logger"
	"OpsFlow/service/storage"
	errs "OpsFlow/tools/errs"
)

// Standard queue names and job types.
const (
	QueueEmail        = "email"
	QueueNotification = "notification"
	QueueAnalytics    = "analytics"

	JobSendEmail        = "send_email"
	JobSendNotification = "send_notification"
	JobTrackEvent       = "track_event"
)

// Manager owns the process's queues. Constructed once at startup and
// passed by handle to everything that enqueues.
type Manager struct {
	mu     sync.RWMutex
	b      storage.Backend
	queues map[string]*Queue
}

func NewManager(b storage.Backend) *Manager {
	return &Manager{b: b, queues: make(map[string]*Queue)}
}

// CreateQueue is idempotent: a second call with the same name returns
// the existing queue and ignores the new conf.
func (m *Manager) CreateQueue(name string, conf Conf) *Queue {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.queues[name]; ok {
		return q
	}
	q := newQueue(name, m.b, conf)
	m.queues[name] = q
	return q
}

func (m *Manager) Get(name string) (*Queue, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.queues[name]
	return q, ok
}

// AddJob enqueues into a named queue.
func (m *Manager) AddJob(ctx context.Context, queueName, jobType string, payload map[string]any, opts JobOptions) (*Job, error) {
	q, ok := m.Get(queueName)
	if !ok {
		return nil, errs.ErrNotFound.WrapMsg("queue not found", "queue", queueName)
	}
	return q.Add(ctx, jobType, payload, opts)
}

func (m *Manager) QueueStats(ctx context.Context, queueName string) (Stats, error) {
	q, ok := m.Get(queueName)
	if !ok {
		return Stats{}, errs.ErrNotFound.WrapMsg("queue not found", "queue", queueName)
	}
	return q.Stats(ctx)
}

// AllStats snapshots every queue for the monitoring surface.
func (m *Manager) AllStats(ctx context.Context) (map[string]Stats, error) {
	m.mu.RLock()
	names := make([]string, 0, len(m.queues))
	for name := range m.queues {
		names = append(names, name)
	}
	m.mu.RUnlock()

	out := make(map[string]Stats, len(names))
	for _, name := range names {
		st, err := m.QueueStats(ctx, name)
		if err != nil {
			return nil, err
		}
		out[name] = st
	}
	return out, nil
}

// Start launches every registered queue.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, q := range m.queues {
		if err := q.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown stops intake on every queue and waits for in-flight work.
func (m *Manager) Shutdown(ctx context.Context) {
	logger.Info("shutting down queues...")
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, q := range m.queues {
		if err := q.Stop(ctx); err != nil {
			logger.Warnf("[queue:%s] stop: %v", q.Name(), err)
		}
	}
	logger.Info("all queues closed")
}

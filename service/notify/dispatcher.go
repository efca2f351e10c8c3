package notify

import (
	"context"

	"OpsFlow/service/queue"
	errs "OpsFlow/tools/errs"
)

// Enqueuer is the slice of the queue manager the dispatcher needs.
type Enqueuer interface {
	AddJob(ctx context.Context, queueName, jobType string, payload map[string]any, opts queue.JobOptions) (*queue.Job, error)
}

// Options controls delivery of one notification.
type Options struct {
	Metadata   map[string]any
	Channels   []string // websocket|email|sms|push; default websocket
	Persistent *bool    // default true
}

// Request is one notification command, used by the bulk path and the
// HTTP surface.
type Request struct {
	UserID  string `json:"userId"`
	Type    string `json:"type"` // info|success|warning|error
	Title   string `json:"title"`
	Message string `json:"message"`
	Options
}

// Dispatcher is the single entry point for sending notifications. It
// only enqueues; delivery happens in the notification processor.
type Dispatcher struct {
	jobs Enqueuer
}

func NewDispatcher(jobs Enqueuer) *Dispatcher {
	return &Dispatcher{jobs: jobs}
}

func validType(t string) bool {
	switch t {
	case "info", "success", "warning", "error":
		return true
	}
	return false
}

// Notify enqueues a notification job. The command is accepted once the
// job is persisted; it does not wait for delivery.
func (d *Dispatcher) Notify(ctx context.Context, userID, typ, title, message string, opts Options) (*queue.Job, error) {
	if userID == "" || title == "" {
		return nil, errs.ErrValidation.WrapMsg("userId and title are required")
	}
	if typ == "" {
		typ = "info"
	}
	if !validType(typ) {
		return nil, errs.ErrValidation.WrapMsg("bad notification type", "type", typ)
	}

	payload := map[string]any{
		"userId":  userID,
		"type":    typ,
		"title":   title,
		"message": message,
	}
	if len(opts.Metadata) > 0 {
		payload["metadata"] = opts.Metadata
	}
	if len(opts.Channels) > 0 {
		payload["channels"] = opts.Channels
	}
	if opts.Persistent != nil {
		payload["persistent"] = *opts.Persistent
	}
	return d.jobs.AddJob(ctx, queue.QueueNotification, queue.JobSendNotification, payload, queue.JobOptions{})
}

// NotifyBulk enqueues one job per request; the first enqueue error
// aborts the rest.
func (d *Dispatcher) NotifyBulk(ctx context.Context, reqs []Request) ([]*queue.Job, error) {
	jobs := make([]*queue.Job, 0, len(reqs))
	for _, r := range reqs {
		j, err := d.Notify(ctx, r.UserID, r.Type, r.Title, r.Message, r.Options)
		if err != nil {
			return jobs, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

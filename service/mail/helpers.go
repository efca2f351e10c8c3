package mail

import (
	"context"

	"OpsFlow/service/notify"
	"OpsFlow/service/queue"
)

// Request is one email command for the enqueue helpers.
type Request struct {
	To           []string       `json:"to"`
	Subject      string         `json:"subject"`
	HTML         string         `json:"html,omitempty"`
	Text         string         `json:"text,omitempty"`
	Template     string         `json:"template,omitempty"`
	TemplateData map[string]any `json:"templateData,omitempty"`
	UserID       string         `json:"userId,omitempty"`
}

func (r Request) payload() map[string]any {
	p := map[string]any{
		"to":      r.To,
		"subject": r.Subject,
	}
	if r.HTML != "" {
		p["html"] = r.HTML
	}
	if r.Text != "" {
		p["text"] = r.Text
	}
	if r.Template != "" {
		p["template"] = r.Template
		p["templateData"] = r.TemplateData
	}
	if r.UserID != "" {
		p["userId"] = r.UserID
	}
	return p
}

// Enqueue adds one email job.
func Enqueue(ctx context.Context, jobs notify.Enqueuer, r Request) (*queue.Job, error) {
	return jobs.AddJob(ctx, queue.QueueEmail, queue.JobSendEmail, r.payload(), queue.JobOptions{})
}

// EnqueueBulk adds one job per email at reduced priority so bulk sends
// never starve interactive ones.
func EnqueueBulk(ctx context.Context, jobs notify.Enqueuer, reqs []Request) ([]*queue.Job, error) {
	out := make([]*queue.Job, 0, len(reqs))
	for _, r := range reqs {
		j, err := jobs.AddJob(ctx, queue.QueueEmail, queue.JobSendEmail, r.payload(), queue.JobOptions{Priority: -1})
		if err != nil {
			return out, err
		}
		out = append(out, j)
	}
	return out, nil
}

package mail

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OpsFlow/service/notify"
	"OpsFlow/service/queue"
	errs "OpsFlow/tools/errs"
)

func TestRenderTemplate(t *testing.T) {
	html, text, err := RenderTemplate("welcome", map[string]any{
		"name":     "Alice",
		"loginUrl": "https://app.test/login",
	})
	require.NoError(t, err)
	assert.Contains(t, html, "Welcome to OpsFlow, Alice!")
	assert.Contains(t, html, `href="https://app.test/login"`)
	assert.Contains(t, text, "Alice")
	assert.NotContains(t, text, "{{name}}")
}

func TestRenderTemplateUnknownName(t *testing.T) {
	_, _, err := RenderTemplate("nope", nil)
	assert.True(t, errs.ErrNotFound.Is(err))
}

func TestRenderTemplateLeavesUnboundPlaceholders(t *testing.T) {
	html, _, err := RenderTemplate("taskAssigned", map[string]any{"taskTitle": "Ship it"})
	require.NoError(t, err)
	assert.Contains(t, html, "Ship it")
	assert.Contains(t, html, "{{dueDate}}", "missing data stays visible instead of rendering empty")
}

type fakeSender struct {
	sent []Message
	err  error
}

func (s *fakeSender) Send(_ context.Context, msg Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

type fakeEnqueuer struct {
	added []map[string]any
}

func (e *fakeEnqueuer) AddJob(_ context.Context, _, _ string, payload map[string]any, _ queue.JobOptions) (*queue.Job, error) {
	e.added = append(e.added, payload)
	return &queue.Job{ID: "queued"}, nil
}

func emailJob(payload map[string]any) *queue.Job {
	return &queue.Job{ID: "j1", Queue: queue.QueueEmail, Type: queue.JobSendEmail, Payload: payload}
}

func TestProcessSendsRenderedTemplate(t *testing.T) {
	sender := &fakeSender{}
	p := NewProcessor(sender, nil)

	err := p.Process(context.Background(), emailJob(map[string]any{
		"to":       "alice@test",
		"subject":  "Welcome aboard",
		"template": "welcome",
		"templateData": map[string]any{
			"name":     "Alice",
			"loginUrl": "https://app.test",
		},
	}))
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, []string{"alice@test"}, msg.To)
	assert.Equal(t, "Welcome aboard", msg.Subject)
	assert.Contains(t, msg.HTML, "Alice")
}

func TestProcessRawBody(t *testing.T) {
	sender := &fakeSender{}
	p := NewProcessor(sender, nil)

	err := p.Process(context.Background(), emailJob(map[string]any{
		"to":      []string{"a@test", "b@test"},
		"subject": "plain",
		"text":    "hello there",
	}))
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, []string{"a@test", "b@test"}, sender.sent[0].To)
	assert.Equal(t, "hello there", sender.sent[0].Text)
}

func TestProcessMissingRecipient(t *testing.T) {
	p := NewProcessor(&fakeSender{}, nil)
	err := p.Process(context.Background(), emailJob(map[string]any{"subject": "nobody"}))
	assert.True(t, errs.ErrValidation.Is(err))
}

func TestProcessUnknownTemplateFails(t *testing.T) {
	sender := &fakeSender{}
	p := NewProcessor(sender, nil)

	err := p.Process(context.Background(), emailJob(map[string]any{
		"to":       "alice@test",
		"subject":  "hm",
		"template": "missing",
	}))
	assert.Error(t, err)
	assert.Empty(t, sender.sent)
}

func TestProcessOutcomeNotifications(t *testing.T) {
	enq := &fakeEnqueuer{}
	notifier := notify.NewDispatcher(enq)

	sender := &fakeSender{}
	p := NewProcessor(sender, notifier)

	err := p.Process(context.Background(), emailJob(map[string]any{
		"to":      "alice@test",
		"subject": "Report",
		"text":    "body",
		"userId":  "alice",
	}))
	require.NoError(t, err)

	require.Len(t, enq.added, 1)
	assert.Equal(t, "success", enq.added[0]["type"])
	assert.Equal(t, "Email Sent", enq.added[0]["title"])

	// failure path: send error surfaces and an error notification goes out
	sender.err = errs.ErrTransientInfra.WrapMsg("smtp down")
	err = p.Process(context.Background(), emailJob(map[string]any{
		"to":      "alice@test",
		"subject": "Report",
		"text":    "body",
		"userId":  "alice",
	}))
	assert.Error(t, err)
	require.Len(t, enq.added, 2)
	assert.Equal(t, "error", enq.added[1]["type"])
}

func TestEnqueueBulkLowersPriority(t *testing.T) {
	var opts []queue.JobOptions
	enq := enqueuerFunc(func(_ context.Context, _, _ string, _ map[string]any, o queue.JobOptions) (*queue.Job, error) {
		opts = append(opts, o)
		return &queue.Job{ID: "x"}, nil
	})

	_, err := EnqueueBulk(context.Background(), enq, []Request{
		{To: []string{"a@test"}, Subject: "1"},
		{To: []string{"b@test"}, Subject: "2"},
	})
	require.NoError(t, err)
	require.Len(t, opts, 2)
	for _, o := range opts {
		assert.Equal(t, -1, o.Priority)
	}
}

type enqueuerFunc func(ctx context.Context, queueName, jobType string, payload map[string]any, opts queue.JobOptions) (*queue.Job, error)

func (f enqueuerFunc) AddJob(ctx context.Context, queueName, jobType string, payload map[string]any, opts queue.JobOptions) (*queue.Job, error) {
	return f(ctx, queueName, jobType, payload, opts)
}

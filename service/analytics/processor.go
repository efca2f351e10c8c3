package analytics

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"OpsFlow/logger"
	"OpsFlow/service/queue"
	"OpsFlow/service/storage"
	"OpsFlow/tools/decode"
	errs "OpsFlow/tools/errs"
)

const (
	taskRecordTTL     = 30 * 24 * time.Hour
	completionTimeCap = 1000 // per-day samples kept for averaging
)

type jobData struct {
	Event     string         `json:"event"`
	UserID    string         `json:"userId"`
	ProjectID string         `json:"projectId"`
	TaskID    string         `json:"taskId"`
	Metadata  map[string]any `json:"metadata"`
	Timestamp time.Time      `json:"timestamp"`
}

// Processor aggregates analytics events into daily UTC buckets in the
// shared store, optionally mirroring the raw events to Kafka.
type Processor struct {
	b        storage.Backend
	firehose *Firehose // nil when no brokers configured
	clock    func() time.Time
}

func NewProcessor(b storage.Backend, firehose *Firehose) *Processor {
	return &Processor{b: b, firehose: firehose, clock: time.Now}
}

// dayKey buckets by UTC calendar day, matching the summary API.
func dayKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	d, err := decode.Struct[jobData](job.Payload)
	if err != nil {
		return errs.ErrValidation.WrapMsg("decode analytics payload", "err", err)
	}
	if d.Event == "" {
		return errs.ErrValidation.WrapMsg("analytics job missing event")
	}
	// buckets key off the event's own timestamp, so a retried or delayed
	// job still lands in the day the event happened
	if d.Timestamp.IsZero() {
		d.Timestamp = p.clock()
	}

	if p.firehose != nil {
		// mirror is best-effort, counters are the source of truth
		if err := p.firehose.Publish(d.Event, job.Payload); err != nil {
			logger.Warnf("[analytics] firehose %s: %v", d.Event, err)
		}
	}

	logger.Infof("[analytics] processing job %s event=%s user=%s", job.ID, d.Event, d.UserID)

	switch d.Event {
	case "user_login":
		return p.trackUserLogin(ctx, d)
	case "task_created":
		return p.trackTaskCreated(ctx, d)
	case "task_completed":
		return p.trackTaskCompleted(ctx, d)
	case "project_created":
		return p.trackProjectCreated(ctx, d)
	case "user_activity":
		return p.trackUserActivity(ctx, d)
	default:
		return p.trackGenericEvent(ctx, d)
	}
}

func (p *Processor) trackUserLogin(ctx context.Context, d *jobData) error {
	day := dayKey(d.Timestamp)

	if _, err := p.b.Incr(ctx, "analytics:logins:daily:"+day); err != nil {
		return err
	}
	if _, err := p.b.Incr(ctx, "analytics:user:"+d.UserID+":logins:"+day); err != nil {
		return err
	}
	if err := p.b.Set(ctx, "analytics:user:"+d.UserID+":last_login", d.Timestamp.UTC().Format(time.RFC3339Nano), 0); err != nil {
		return err
	}
	return p.b.SAdd(ctx, "analytics:active_users:"+day, d.UserID)
}

func (p *Processor) trackTaskCreated(ctx context.Context, d *jobData) error {
	day := dayKey(d.Timestamp)

	if _, err := p.b.Incr(ctx, "analytics:tasks:created:daily:"+day); err != nil {
		return err
	}
	if _, err := p.b.Incr(ctx, "analytics:user:"+d.UserID+":tasks_created:"+day); err != nil {
		return err
	}
	if d.ProjectID != "" {
		if _, err := p.b.Incr(ctx, "analytics:project:"+d.ProjectID+":tasks_created"); err != nil {
			return err
		}
	}

	// creation record backs completion-time sampling
	blob, _ := json.Marshal(map[string]any{
		"userId":    d.UserID,
		"projectId": d.ProjectID,
		"timestamp": d.Timestamp.UTC(),
		"metadata":  d.Metadata,
	})
	return p.b.Set(ctx, "analytics:task:"+d.TaskID+":created", string(blob), taskRecordTTL)
}

func (p *Processor) trackTaskCompleted(ctx context.Context, d *jobData) error {
	day := dayKey(d.Timestamp)

	if _, err := p.b.Incr(ctx, "analytics:tasks:completed:daily:"+day); err != nil {
		return err
	}
	if _, err := p.b.Incr(ctx, "analytics:user:"+d.UserID+":tasks_completed:"+day); err != nil {
		return err
	}

	// completion time only when the creation record is still around
	raw, ok, err := p.b.Get(ctx, "analytics:task:"+d.TaskID+":created")
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	var created struct {
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.Unmarshal([]byte(raw), &created); err != nil || created.Timestamp.IsZero() {
		return nil
	}

	elapsed := d.Timestamp.Sub(created.Timestamp).Milliseconds()
	listKey := "analytics:task_completion_times:" + day
	if err := p.b.LPush(ctx, listKey, strconv.FormatInt(elapsed, 10)); err != nil {
		return err
	}
	return p.b.LTrim(ctx, listKey, 0, completionTimeCap-1)
}

func (p *Processor) trackProjectCreated(ctx context.Context, d *jobData) error {
	day := dayKey(d.Timestamp)

	if _, err := p.b.Incr(ctx, "analytics:projects:created:daily:"+day); err != nil {
		return err
	}
	if _, err := p.b.Incr(ctx, "analytics:user:"+d.UserID+":projects_created:"+day); err != nil {
		return err
	}
	return p.trackActivityType(ctx, d.Metadata, day)
}

func (p *Processor) trackUserActivity(ctx context.Context, d *jobData) error {
	day := dayKey(d.Timestamp)

	if err := p.b.Set(ctx, "analytics:user:"+d.UserID+":last_activity", strconv.FormatInt(d.Timestamp.UnixMilli(), 10), 0); err != nil {
		return err
	}
	if err := p.b.SAdd(ctx, "analytics:active_users:"+day, d.UserID); err != nil {
		return err
	}
	return p.trackActivityType(ctx, d.Metadata, day)
}

func (p *Processor) trackActivityType(ctx context.Context, metadata map[string]any, day string) error {
	at, _ := metadata["activityType"].(string)
	if at == "" {
		return nil
	}
	_, err := p.b.Incr(ctx, "analytics:activity:"+at+":"+day)
	return err
}

func (p *Processor) trackGenericEvent(ctx context.Context, d *jobData) error {
	day := dayKey(d.Timestamp)

	if _, err := p.b.Incr(ctx, "analytics:events:"+d.Event+":"+day); err != nil {
		return err
	}
	blob, _ := json.Marshal(map[string]any{
		"userId":    d.UserID,
		"projectId": d.ProjectID,
		"taskId":    d.TaskID,
		"metadata":  d.Metadata,
		"timestamp": d.Timestamp.UTC(),
	})
	return p.b.LPush(ctx, "analytics:events:"+d.Event+":data:"+day, string(blob))
}

// Summary is the per-day aggregate exposed over HTTP.
type Summary struct {
	Date            string `json:"date"`
	Logins          int64  `json:"logins"`
	TasksCreated    int64  `json:"tasksCreated"`
	TasksCompleted  int64  `json:"tasksCompleted"`
	ProjectsCreated int64  `json:"projectsCreated"`
	ActiveUsers     int64  `json:"activeUsers"`
}

// GetSummary reads one day's counters. An empty date means today (UTC).
func (p *Processor) GetSummary(ctx context.Context, date string) (Summary, error) {
	if date == "" {
		date = dayKey(p.clock())
	}

	s := Summary{Date: date}
	counters := []struct {
		key string
		dst *int64
	}{
		{"analytics:logins:daily:" + date, &s.Logins},
		{"analytics:tasks:created:daily:" + date, &s.TasksCreated},
		{"analytics:tasks:completed:daily:" + date, &s.TasksCompleted},
		{"analytics:projects:created:daily:" + date, &s.ProjectsCreated},
	}
	for _, c := range counters {
		raw, ok, err := p.b.Get(ctx, c.key)
		if err != nil {
			return Summary{}, err
		}
		if ok {
			*c.dst, _ = strconv.ParseInt(raw, 10, 64)
		}
	}

	active, err := p.b.SCard(ctx, "analytics:active_users:"+date)
	if err != nil {
		return Summary{}, err
	}
	s.ActiveUsers = active
	return s, nil
}

package queue

import (
	"encoding/json"
	"time"

	decode "OpsFlow/tools/decode"
	"OpsFlow/tools/ids"
)

type State string

const (
	StateWaiting   State = "waiting"
	StateDelayed   State = "delayed"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// JobOptions overrides the queue defaults for a single job.
type JobOptions struct {
	Priority int           // higher runs first; ties in enqueue order
	Delay    time.Duration // hold before becoming eligible
	Attempts int           // max attempts (default 3)
	Backoff  time.Duration // exponential backoff base (default 2s)
}

// Job is one unit of asynchronous work. The full record round-trips
// through the backend as JSON, so a recovered process sees the same
// attempt counters the dead one wrote.
type Job struct {
	ID       string         `json:"id"`
	Queue    string         `json:"queue"`
	Type     string         `json:"type"`
	Payload  map[string]any `json:"payload,omitempty"`
	Priority int            `json:"priority,omitempty"`

	Attempts     int   `json:"attempts"`
	AttemptsMade int   `json:"attemptsMade"`
	BackoffMS    int64 `json:"backoffMs"`

	State        State  `json:"state"`
	EnqueuedAtMS int64  `json:"enqueuedAtMs"`
	ReadyAtMS    int64  `json:"readyAtMs,omitempty"`
	FinishedAtMS int64  `json:"finishedAtMs,omitempty"`
	FailedReason string `json:"failedReason,omitempty"`

	seq int64 // enqueue order within the queue, not persisted
}

func newJob(queueName, jobType string, payload map[string]any, opts JobOptions, now time.Time) *Job {
	if opts.Attempts <= 0 {
		opts.Attempts = defaultAttempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	j := &Job{
		ID:           ids.GenerateString(),
		Queue:        queueName,
		Type:         jobType,
		Payload:      payload,
		Priority:     opts.Priority,
		Attempts:     opts.Attempts,
		BackoffMS:    opts.Backoff.Milliseconds(),
		State:        StateWaiting,
		EnqueuedAtMS: now.UnixMilli(),
	}
	if opts.Delay > 0 {
		j.State = StateDelayed
		j.ReadyAtMS = now.Add(opts.Delay).UnixMilli()
	}
	return j
}

// nextBackoff is the delay before retry n (1-based attemptsMade):
// base * 2^(attemptsMade-1).
func (j *Job) nextBackoff() time.Duration {
	base := time.Duration(j.BackoffMS) * time.Millisecond
	shift := j.AttemptsMade - 1
	if shift < 0 {
		shift = 0
	}
	if shift > 16 {
		shift = 16
	}
	return base << uint(shift)
}

func (j *Job) marshal() string {
	b, _ := json.Marshal(j)
	return string(b)
}

func unmarshalJob(raw string) (*Job, error) {
	var j Job
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// DecodePayload decodes the job payload into a typed struct.
func DecodePayload[T any](j *Job) (*T, error) {
	return decode.Struct[T](j.Payload)
}

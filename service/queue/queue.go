package queue

import (
	"context"
	"strconv"
	"sync"
	"time"

	"OpsFlow/logger"
	"OpsFlow/service/storage"
	errs "OpsFlow/tools/errs"

	"go.uber.org/zap"
)

const (
	defaultAttempts = 3
	defaultBackoff  = 2 * time.Second
)

// Processor consumes one job. Returning an error triggers the retry
// machinery; processors run concurrently across worker slots and may
// see the same job twice after stall recovery, so they must be
// idempotent-safe.
type Processor func(ctx context.Context, job *Job) error

// Conf configures one queue. Zero values fall back to defaults.
type Conf struct {
	Concurrency      int           // worker slots (default 1)
	RemoveOnComplete int           // completed jobs retained (default 50)
	RemoveOnFail     int           // failed jobs retained (default 100)
	LeaseTTL         time.Duration // liveness window for active jobs (default 30s)
	PollInterval     time.Duration // idle worker poll (default 100ms)
	StallInterval    time.Duration // stalled-job sweep period (default 15s)
	Clock            func() time.Time
}

func (c *Conf) norm() {
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.RemoveOnComplete <= 0 {
		c.RemoveOnComplete = 50
	}
	if c.RemoveOnFail <= 0 {
		c.RemoveOnFail = 100
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = 30 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.StallInterval <= 0 {
		c.StallInterval = 15 * time.Second
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// Stats is the monitoring snapshot of one queue.
type Stats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
	Total     int64 `json:"total"`
}

// Queue is a durable priority/delay queue over the storage backend,
// with a fixed pool of worker slots and at-least-once delivery.
type Queue struct {
	name string
	b    storage.Backend
	conf Conf

	mu   sync.RWMutex
	proc Processor

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool
}

func newQueue(name string, b storage.Backend, conf Conf) *Queue {
	conf.norm()
	return &Queue{
		name:   name,
		b:      b,
		conf:   conf,
		stopCh: make(chan struct{}),
	}
}

func (q *Queue) Name() string { return q.name }

// Process registers the processor invoked for every job of this queue.
func (q *Queue) Process(p Processor) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.proc = p
}

func (q *Queue) processor() Processor {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.proc
}

// ---- keys ----

func (q *Queue) kWaiting() string        { return "q:" + q.name + ":waiting" }
func (q *Queue) kDelayed() string        { return "q:" + q.name + ":delayed" }
func (q *Queue) kActive() string         { return "q:" + q.name + ":active" }
func (q *Queue) kCompleted() string      { return "q:" + q.name + ":completed" }
func (q *Queue) kFailed() string         { return "q:" + q.name + ":failed" }
func (q *Queue) kSeq() string            { return "q:" + q.name + ":seq" }
func (q *Queue) kJob(id string) string   { return "q:" + q.name + ":job:" + id }
func (q *Queue) kLease(id string) string { return "q:" + q.name + ":lease:" + id }

// waitingScore orders the waiting zset: higher priority pops first,
// FIFO within the same priority.
func waitingScore(priority int, seq int64) float64 {
	return float64(-priority)*1e12 + float64(seq)
}

// Add enqueues a job. Delayed jobs go to the delayed zset and are
// promoted by the scheduler once due.
func (q *Queue) Add(ctx context.Context, jobType string, payload map[string]any, opts JobOptions) (*Job, error) {
	j := newJob(q.name, jobType, payload, opts, q.conf.Clock())

	seq, err := q.b.Incr(ctx, q.kSeq())
	if err != nil {
		return nil, err
	}
	j.seq = seq

	if err := q.b.Set(ctx, q.kJob(j.ID), j.marshal(), 0); err != nil {
		return nil, err
	}
	if j.State == StateDelayed {
		if err := q.b.ZAdd(ctx, q.kDelayed(), float64(j.ReadyAtMS), q.member(j, seq)); err != nil {
			return nil, err
		}
	} else {
		if err := q.b.ZAdd(ctx, q.kWaiting(), waitingScore(j.Priority, seq), q.member(j, seq)); err != nil {
			return nil, err
		}
	}
	jobsEnqueued.WithLabelValues(q.name).Inc()
	logger.Debug("job added", zap.String("queue", q.name), zap.String("job", j.ID), zap.String("type", jobType))
	return j, nil
}

// member encodes id plus enqueue seq and priority so recovery can
// rebuild the waiting order without reading every blob.
func (q *Queue) member(j *Job, seq int64) string {
	return j.ID + "|" + strconv.FormatInt(seq, 10) + "|" + strconv.Itoa(j.Priority)
}

func parseMember(m string) (id string, seq int64, priority int) {
	first, rest := splitOnce(m, '|')
	id = first
	if rest == "" {
		return id, 0, 0
	}
	s, p := splitOnce(rest, '|')
	seq, _ = strconv.ParseInt(s, 10, 64)
	priority, _ = strconv.Atoi(p)
	return id, seq, priority
}

func splitOnce(s string, sep byte) (string, string) {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return s[:i], s[i+1:]
		}
	}
	return s, ""
}

// Start recovers abandoned work and launches the worker slots,
// the delayed-job scheduler and the stall sweeper.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return nil
	}
	q.started = true
	q.mu.Unlock()

	if err := q.recoverActive(ctx); err != nil {
		logger.Warnf("[queue:%s] recover active failed: %v", q.name, err)
	}

	for i := 0; i < q.conf.Concurrency; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.wg.Add(2)
	go q.scheduler()
	go q.stallSweeper()
	logger.Infof("[queue:%s] started workers=%d", q.name, q.conf.Concurrency)
	return nil
}

// Stop stops intake and waits for in-flight jobs. Jobs still active
// after ctx expires are abandoned; the next Start requeues them via
// lease recovery.
func (q *Queue) Stop(ctx context.Context) error {
	q.stopOnce.Do(func() { close(q.stopCh) })
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// recoverActive requeues jobs whose lease vanished (worker died while
// holding them). Runs once at startup.
func (q *Queue) recoverActive(ctx context.Context) error {
	members, err := q.b.SMembers(ctx, q.kActive())
	if err != nil {
		return err
	}
	for _, m := range members {
		id, seq, priority := parseMember(m)
		alive, err := q.b.Exists(ctx, q.kLease(id))
		if err != nil {
			return err
		}
		if alive {
			continue
		}
		if err := q.requeueStalled(ctx, m, id, seq, priority); err != nil {
			logger.Warnf("[queue:%s] requeue stalled job=%s: %v", q.name, id, err)
		}
	}
	return nil
}

func (q *Queue) requeueStalled(ctx context.Context, member, id string, seq int64, priority int) error {
	raw, ok, err := q.b.Get(ctx, q.kJob(id))
	if err != nil {
		return err
	}
	if err := q.b.SRem(ctx, q.kActive(), member); err != nil {
		return err
	}
	if !ok {
		return nil // blob purged, nothing to requeue
	}
	j, err := unmarshalJob(raw)
	if err != nil {
		return err
	}
	j.State = StateWaiting
	if err := q.b.Set(ctx, q.kJob(id), j.marshal(), 0); err != nil {
		return err
	}
	jobsStalled.WithLabelValues(q.name).Inc()
	logger.Warnf("[queue:%s] job stalled, requeued job=%s attemptsMade=%d", q.name, id, j.AttemptsMade)
	return q.b.ZAdd(ctx, q.kWaiting(), waitingScore(priority, seq), member)
}

// Stats returns current counts per lifecycle state.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var err error
	if st.Waiting, err = q.b.ZCard(ctx, q.kWaiting()); err != nil {
		return st, err
	}
	if st.Delayed, err = q.b.ZCard(ctx, q.kDelayed()); err != nil {
		return st, err
	}
	if st.Active, err = q.b.SCard(ctx, q.kActive()); err != nil {
		return st, err
	}
	if st.Completed, err = q.b.LLen(ctx, q.kCompleted()); err != nil {
		return st, err
	}
	if st.Failed, err = q.b.LLen(ctx, q.kFailed()); err != nil {
		return st, err
	}
	st.Total = st.Waiting + st.Active + st.Completed + st.Failed + st.Delayed
	return st, nil
}

// FailedJobs returns retained terminally-failed jobs, newest first.
func (q *Queue) FailedJobs(ctx context.Context) ([]*Job, error) {
	raws, err := q.b.LRange(ctx, q.kFailed(), 0, int64(q.conf.RemoveOnFail)-1)
	if err != nil {
		return nil, err
	}
	out := make([]*Job, 0, len(raws))
	for _, raw := range raws {
		j, err := unmarshalJob(raw)
		if err != nil {
			continue
		}
		out = append(out, j)
	}
	return out, nil
}

// ---- background loops ----

func (q *Queue) scheduler() {
	defer q.wg.Done()
	t := time.NewTicker(q.conf.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-q.stopCh:
			return
		case <-t.C:
			q.promoteDue(context.Background())
		}
	}
}

// promoteDue moves delayed jobs whose time arrived onto the waiting zset.
func (q *Queue) promoteDue(ctx context.Context) {
	now := q.conf.Clock().UnixMilli()
	due, err := q.b.ZRangeByScore(ctx, q.kDelayed(), float64(now))
	if err != nil {
		logger.Warnf("[queue:%s] promote scan: %v", q.name, err)
		return
	}
	for _, m := range due {
		id, seq, priority := parseMember(m)
		if err := q.b.ZRem(ctx, q.kDelayed(), m); err != nil {
			continue
		}
		if err := q.markWaiting(ctx, id); err != nil {
			logger.Warnf("[queue:%s] promote job=%s: %v", q.name, id, err)
		}
		if err := q.b.ZAdd(ctx, q.kWaiting(), waitingScore(priority, seq), m); err != nil {
			logger.Warnf("[queue:%s] promote push job=%s: %v", q.name, id, err)
		}
	}
}

func (q *Queue) markWaiting(ctx context.Context, id string) error {
	raw, ok, err := q.b.Get(ctx, q.kJob(id))
	if err != nil || !ok {
		return err
	}
	j, err := unmarshalJob(raw)
	if err != nil {
		return err
	}
	j.State = StateWaiting
	return q.b.Set(ctx, q.kJob(id), j.marshal(), 0)
}

func (q *Queue) stallSweeper() {
	defer q.wg.Done()
	t := time.NewTicker(q.conf.StallInterval)
	defer t.Stop()
	for {
		select {
		case <-q.stopCh:
			return
		case <-t.C:
			if err := q.recoverActive(context.Background()); err != nil {
				logger.Warnf("[queue:%s] stall sweep: %v", q.name, err)
			}
		}
	}
}

func (q *Queue) worker(slot int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.stopCh:
			return
		default:
		}
		ctx := context.Background()
		member, ok, err := q.b.ZPopMin(ctx, q.kWaiting())
		if err != nil {
			logger.Warnf("[queue:%s] pop: %v", q.name, err)
			q.idle()
			continue
		}
		if !ok {
			q.idle()
			continue
		}
		q.runOne(ctx, slot, member)
	}
}

func (q *Queue) idle() {
	select {
	case <-q.stopCh:
	case <-time.After(q.conf.PollInterval):
	}
}

func (q *Queue) runOne(ctx context.Context, slot int, member string) {
	id, seq, priority := parseMember(member)
	raw, ok, err := q.b.Get(ctx, q.kJob(id))
	if err != nil {
		logger.Warnf("[queue:%s] load job=%s: %v", q.name, id, err)
		// push back so the job is not lost on a transient read failure
		_ = q.b.ZAdd(ctx, q.kWaiting(), waitingScore(priority, seq), member)
		q.idle()
		return
	}
	if !ok {
		return // blob purged, drop the reference
	}
	j, err := unmarshalJob(raw)
	if err != nil {
		logger.Errorf("[queue:%s] corrupt job blob job=%s: %v", q.name, id, err)
		return
	}
	j.seq = seq

	j.State = StateActive
	j.AttemptsMade++
	_ = q.b.Set(ctx, q.kJob(id), j.marshal(), 0)
	_ = q.b.SAdd(ctx, q.kActive(), member)
	_ = q.b.Set(ctx, q.kLease(id), "1", q.conf.LeaseTTL)

	activeWorkers.WithLabelValues(q.name).Inc()
	defer activeWorkers.WithLabelValues(q.name).Dec()

	// Heartbeat keeps the lease alive while the processor runs. A dead
	// worker stops renewing, the lease expires and the sweeper requeues.
	hbStop := make(chan struct{})
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		t := time.NewTicker(q.conf.LeaseTTL / 3)
		defer t.Stop()
		for {
			select {
			case <-hbStop:
				return
			case <-t.C:
				_ = q.b.Set(context.Background(), q.kLease(id), "1", q.conf.LeaseTTL)
			}
		}
	}()

	perr := q.invoke(ctx, j)
	close(hbStop)
	<-hbDone

	_ = q.b.SRem(ctx, q.kActive(), member)
	_ = q.b.Del(ctx, q.kLease(id))

	if perr == nil {
		q.complete(ctx, j)
		return
	}
	q.fail(ctx, j, member, perr)
}

func (q *Queue) invoke(ctx context.Context, j *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.ErrPanic(r)
		}
	}()
	p := q.processor()
	if p == nil {
		return errs.ErrInternal.WrapMsg("no processor registered", "queue", q.name)
	}
	return p(ctx, j)
}

func (q *Queue) complete(ctx context.Context, j *Job) {
	j.State = StateCompleted
	j.FinishedAtMS = q.conf.Clock().UnixMilli()
	_ = q.b.Del(ctx, q.kJob(j.ID))
	_ = q.b.LPush(ctx, q.kCompleted(), j.marshal())
	_ = q.b.LTrim(ctx, q.kCompleted(), 0, int64(q.conf.RemoveOnComplete)-1)
	jobsProcessed.WithLabelValues(q.name, "completed").Inc()
	logger.Debug("job completed", zap.String("queue", q.name), zap.String("job", j.ID))
}

func (q *Queue) fail(ctx context.Context, j *Job, member string, perr error) {
	j.FailedReason = perr.Error()
	if j.AttemptsMade < j.Attempts {
		// retry with exponential backoff
		j.State = StateDelayed
		j.ReadyAtMS = q.conf.Clock().Add(j.nextBackoff()).UnixMilli()
		_ = q.b.Set(ctx, q.kJob(j.ID), j.marshal(), 0)
		_ = q.b.ZAdd(ctx, q.kDelayed(), float64(j.ReadyAtMS), member)
		jobsProcessed.WithLabelValues(q.name, "retried").Inc()
		logger.Warnf("[queue:%s] job failed, retrying job=%s attempt=%d/%d err=%v",
			q.name, j.ID, j.AttemptsMade, j.Attempts, perr)
		return
	}
	j.State = StateFailed
	j.FinishedAtMS = q.conf.Clock().UnixMilli()
	_ = q.b.Del(ctx, q.kJob(j.ID))
	_ = q.b.LPush(ctx, q.kFailed(), j.marshal())
	_ = q.b.LTrim(ctx, q.kFailed(), 0, int64(q.conf.RemoveOnFail)-1)
	jobsProcessed.WithLabelValues(q.name, "failed").Inc()
	logger.Error("job failed permanently",
		zap.String("queue", q.name), zap.String("job", j.ID),
		zap.Int("attempts", j.AttemptsMade), zap.String("reason", j.FailedReason))
}

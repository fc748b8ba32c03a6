package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leadflow/campaign-gateway/pkg/logger"
	"github.com/leadflow/campaign-gateway/pkg/redis"
)

type BackoffType string

const (
	BackoffFixed       BackoffType = "fixed"
	BackoffExponential BackoffType = "exponential"
)

// Backoff controls the delay between a job's attempts. Exponential doubles
// the base delay per completed attempt.
type Backoff struct {
	Type  BackoffType   `json:"type"`
	Delay time.Duration `json:"delay"`
}

// NextDelay returns the wait before the given attempt (1-based) is retried.
func (b Backoff) NextDelay(attempt int) time.Duration {
	if b.Delay <= 0 {
		return 0
	}
	if b.Type != BackoffExponential {
		return b.Delay
	}
	d := b.Delay
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// Options is the per-job enqueue policy.
type Options struct {
	// Attempts is the total number of tries, the first included.
	Attempts int
	Backoff  Backoff
	// Delay defers the first attempt (scheduled sends).
	Delay time.Duration
	// Retention bounds the completed and failed inspection sets.
	Retention int
}

// Job is one unit of queued work.
type Job struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Data        []byte    `json:"data"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	Backoff     Backoff   `json:"backoff"`
	Retention   int       `json:"retention"`
	EnqueuedAt  time.Time `json:"enqueued_at"`

	streamID string
}

// Handler processes a job attempt. A nil return acknowledges the job; an
// error triggers a retry with backoff until attempts are exhausted.
type Handler func(ctx context.Context, job *Job) error

// FailureHandler runs once when a job exhausts its attempts.
type FailureHandler func(ctx context.Context, job *Job, err error)

type Config struct {
	Name              string
	ConsumerGroup     string
	ConsumerName      string
	VisibilityTimeout time.Duration
	PollInterval      time.Duration
	BatchSize         int64
	MaxLen            int64
	DefaultOptions    Options
}

// Stats is a read-only snapshot of one named queue.
type Stats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Queue is a durable, at-least-once work queue on Redis Streams. Ready jobs
// live in the stream and are consumed through a consumer group; delayed and
// retrying jobs wait in a sorted set scored by their ready time and are
// promoted back into the stream by the poll loop. Completed and failed job
// ids are kept in bounded lists for inspection.
type Queue struct {
	adapter   redis.RedisAdapter
	config    Config
	handler   Handler
	onFailure FailureHandler
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

const defaultRetention = 100

func New(adapter redis.RedisAdapter, config Config) (*Queue, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("queue name is required")
	}
	if config.ConsumerGroup == "" {
		config.ConsumerGroup = "default-group"
	}
	if config.ConsumerName == "" {
		config.ConsumerName = fmt.Sprintf("consumer-%d", time.Now().UnixNano())
	}
	if config.VisibilityTimeout == 0 {
		config.VisibilityTimeout = 30 * time.Second
	}
	if config.PollInterval == 0 {
		config.PollInterval = 1 * time.Second
	}
	if config.BatchSize == 0 {
		config.BatchSize = 10
	}
	if config.DefaultOptions.Attempts == 0 {
		config.DefaultOptions.Attempts = 3
	}
	if config.DefaultOptions.Retention == 0 {
		config.DefaultOptions.Retention = defaultRetention
	}

	ctx, cancel := context.WithCancel(context.Background())

	q := &Queue{
		adapter: adapter,
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
	}

	if err := q.initConsumerGroup(); err != nil {
		// Group might already exist, which is fine
	}

	return q, nil
}

func (q *Queue) Name() string {
	return q.config.Name
}

func (q *Queue) initConsumerGroup() error {
	return q.adapter.XGroupCreateMkStream(q.config.Name, q.config.ConsumerGroup, "0")
}

func (q *Queue) scheduledKey() string { return q.config.Name + ":scheduled" }
func (q *Queue) completedKey() string { return q.config.Name + ":completed" }
func (q *Queue) failedKey() string    { return q.config.Name + ":failed" }

// Enqueue adds a job. The error, if any, is the enqueue failing, not the job:
// callers must not assume the work is queued unless the returned id is valid.
func (q *Queue) Enqueue(ctx context.Context, kind string, data interface{}, opts Options) (string, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job data: %w", err)
	}

	if opts.Attempts <= 0 {
		opts.Attempts = q.config.DefaultOptions.Attempts
	}
	if opts.Backoff.Delay == 0 {
		opts.Backoff = q.config.DefaultOptions.Backoff
	}
	if opts.Retention <= 0 {
		opts.Retention = q.config.DefaultOptions.Retention
	}

	job := &Job{
		ID:          uuid.NewString(),
		Kind:        kind,
		Data:        payload,
		Attempts:    0,
		MaxAttempts: opts.Attempts,
		Backoff:     opts.Backoff,
		Retention:   opts.Retention,
		EnqueuedAt:  time.Now().UTC(),
	}

	if opts.Delay > 0 {
		if err := q.schedule(job, time.Now().Add(opts.Delay)); err != nil {
			return "", err
		}
		return job.ID, nil
	}

	if err := q.push(job); err != nil {
		return "", err
	}
	return job.ID, nil
}

// ScheduleAt enqueues a job whose first attempt becomes visible at sendAt.
// A sendAt in the past enqueues immediately.
func (q *Queue) ScheduleAt(ctx context.Context, kind string, data interface{}, sendAt time.Time, opts Options) (string, error) {
	delay := time.Until(sendAt)
	if delay < 0 {
		delay = 0
	}
	opts.Delay = delay
	return q.Enqueue(ctx, kind, data, opts)
}

func (q *Queue) push(job *Job) error {
	values := map[string]interface{}{
		"id":           job.ID,
		"kind":         job.Kind,
		"data":         string(job.Data),
		"attempts":     job.Attempts,
		"max_attempts": job.MaxAttempts,
		"backoff_type": string(job.Backoff.Type),
		"backoff_ms":   job.Backoff.Delay.Milliseconds(),
		"retention":    job.Retention,
		"enqueued_at":  job.EnqueuedAt.Unix(),
	}

	if _, err := q.adapter.XAdd(q.config.Name, values); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	if q.config.MaxLen > 0 {
		_ = q.adapter.XTrimApprox(q.config.Name, q.config.MaxLen)
	}
	return nil
}

func (q *Queue) schedule(job *Job, readyAt time.Time) error {
	member, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal scheduled job: %w", err)
	}
	if err := q.adapter.ZAdd(q.scheduledKey(), float64(readyAt.UnixMilli()), string(member)); err != nil {
		return fmt.Errorf("failed to schedule job: %w", err)
	}
	return nil
}

// Consume starts the poll loop: promote due scheduled jobs, read new stream
// entries, reclaim entries stuck past the visibility timeout.
func (q *Queue) Consume(handler Handler) error {
	if handler == nil {
		return fmt.Errorf("job handler is required")
	}

	q.handler = handler
	q.wg.Add(1)

	go q.consumeLoop()

	return nil
}

// OnFailure registers the terminal-failure callback. Must be called before
// Consume.
func (q *Queue) OnFailure(fn FailureHandler) {
	q.onFailure = fn
}

func (q *Queue) consumeLoop() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			q.promoteScheduled()
			q.processReady()
			q.claimStuck()
		}
	}
}

// promoteScheduled moves due jobs from the scheduled set into the stream.
func (q *Queue) promoteScheduled() {
	members, err := q.adapter.ZRangeByScore(q.scheduledKey(), "-inf", redis.FormatScore(time.Now()), 100)
	if err != nil || len(members) == 0 {
		return
	}

	for _, member := range members {
		// Only the consumer whose ZRem actually removes the member may push;
		// the rest raced it and must skip, or the job runs twice.
		removed, err := q.adapter.ZRem(q.scheduledKey(), member)
		if err != nil || removed == 0 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(member), &job); err != nil {
			logger.Error("dropping unreadable scheduled job", "queue", q.config.Name, "error", err)
			continue
		}

		if err := q.push(&job); err != nil {
			logger.Error("failed to promote scheduled job", "queue", q.config.Name, "job_id", job.ID, "error", err)
			// Put it back for a later tick.
			_ = q.schedule(&job, time.Now())
		}
	}
}

func (q *Queue) processReady() {
	messages, err := q.adapter.XReadGroup(
		q.config.ConsumerGroup,
		q.config.ConsumerName,
		q.config.Name,
		">",
		q.config.BatchSize,
	)

	if err != nil {
		if err != redis.NilError {
			logger.Warn("queue read failed", "queue", q.config.Name, "error", err)
		}
		return
	}

	for _, streamMsg := range messages {
		job := q.streamMessageToJob(streamMsg)
		q.handleJob(job)
	}
}

func (q *Queue) claimStuck() {
	pending, err := q.adapter.XPending(q.config.Name, q.config.ConsumerGroup)
	if err != nil || pending == nil || pending.Count == 0 {
		return
	}

	pendingExt, err := q.adapter.XPendingExt(q.config.Name, q.config.ConsumerGroup, "-", "+", 100)
	if err != nil || len(pendingExt) == 0 {
		return
	}

	var idsToReclaim []string
	for _, msg := range pendingExt {
		if msg.Idle >= q.config.VisibilityTimeout {
			idsToReclaim = append(idsToReclaim, msg.ID)
		}
	}

	if len(idsToReclaim) == 0 {
		return
	}

	messages, err := q.adapter.XClaim(
		q.config.Name,
		q.config.ConsumerGroup,
		q.config.ConsumerName,
		q.config.VisibilityTimeout,
		idsToReclaim...,
	)

	if err != nil {
		return
	}

	for _, streamMsg := range messages {
		// A reclaimed entry means a worker died mid-attempt; that attempt
		// counts.
		job := q.streamMessageToJob(streamMsg)
		job.Attempts++
		q.handleJob(job)
	}
}

func (q *Queue) handleJob(job *Job) {
	attempt := job.Attempts + 1

	if attempt > job.MaxAttempts {
		q.recordFailure(job, fmt.Errorf("attempts exhausted"))
		q.ack(job)
		return
	}

	ctx, cancel := context.WithTimeout(q.ctx, q.config.VisibilityTimeout)
	defer cancel()

	err := q.handler(ctx, job)
	if err == nil {
		q.recordCompletion(job)
		q.ack(job)
		return
	}

	if attempt >= job.MaxAttempts {
		q.recordFailure(job, err)
		if q.onFailure != nil {
			q.onFailure(ctx, job, err)
		}
		q.ack(job)
		return
	}

	// Re-schedule the next attempt with backoff and release the stream entry.
	retry := *job
	retry.Attempts = attempt
	delay := job.Backoff.NextDelay(attempt)
	if err := q.schedule(&retry, time.Now().Add(delay)); err != nil {
		logger.Error("failed to schedule retry, leaving entry pending",
			"queue", q.config.Name, "job_id", job.ID, "error", err)
		// Not acked: the visibility timeout will resurface it.
		return
	}
	q.ack(job)
}

func (q *Queue) ack(job *Job) {
	if job.streamID == "" {
		return
	}
	if err := q.adapter.XAck(q.config.Name, q.config.ConsumerGroup, job.streamID); err != nil {
		logger.Warn("failed to ack job", "queue", q.config.Name, "job_id", job.ID, "error", err)
		return
	}
	// Drop the entry so the stream length only counts work still to be done.
	if err := q.adapter.XDel(q.config.Name, job.streamID); err != nil {
		logger.Warn("failed to delete acked job", "queue", q.config.Name, "job_id", job.ID, "error", err)
	}
}

func (q *Queue) recordCompletion(job *Job) {
	if err := q.adapter.LPush(q.completedKey(), job.ID); err != nil {
		return
	}
	_ = q.adapter.LTrim(q.completedKey(), 0, int64(job.Retention)-1)
}

func (q *Queue) recordFailure(job *Job, cause error) {
	entry, err := json.Marshal(map[string]interface{}{
		"id":        job.ID,
		"kind":      job.Kind,
		"attempts":  job.Attempts + 1,
		"error":     cause.Error(),
		"failed_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	if err := q.adapter.LPush(q.failedKey(), string(entry)); err != nil {
		return
	}
	_ = q.adapter.LTrim(q.failedKey(), 0, int64(job.Retention)-1)
}

func (q *Queue) streamMessageToJob(streamMsg redis.StreamMessage) *Job {
	job := &Job{streamID: streamMsg.ID}

	for k, v := range streamMsg.Values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		switch k {
		case "id":
			job.ID = s
		case "kind":
			job.Kind = s
		case "data":
			job.Data = []byte(s)
		case "attempts":
			job.Attempts, _ = strconv.Atoi(s)
		case "max_attempts":
			job.MaxAttempts, _ = strconv.Atoi(s)
		case "backoff_type":
			job.Backoff.Type = BackoffType(s)
		case "backoff_ms":
			ms, _ := strconv.ParseInt(s, 10, 64)
			job.Backoff.Delay = time.Duration(ms) * time.Millisecond
		case "retention":
			job.Retention, _ = strconv.Atoi(s)
		case "enqueued_at":
			unix, _ := strconv.ParseInt(s, 10, 64)
			job.EnqueuedAt = time.Unix(unix, 0).UTC()
		}
	}

	if job.MaxAttempts == 0 {
		job.MaxAttempts = q.config.DefaultOptions.Attempts
	}
	if job.Retention == 0 {
		job.Retention = q.config.DefaultOptions.Retention
	}

	return job
}

func (q *Queue) Stop(timeout time.Duration) error {
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for queue to stop")
	}
}

// GetStats reads queue counters without mutating queue state.
func (q *Queue) GetStats() (*Stats, error) {
	total, err := q.adapter.XLen(q.config.Name)
	if err != nil {
		return nil, err
	}

	var active int64
	if pending, err := q.adapter.XPending(q.config.Name, q.config.ConsumerGroup); err == nil && pending != nil {
		active = pending.Count
	}

	scheduled, err := q.adapter.ZCard(q.scheduledKey())
	if err != nil {
		scheduled = 0
	}

	completed, _ := q.adapter.LLen(q.completedKey())
	failed, _ := q.adapter.LLen(q.failedKey())

	waiting := total - active
	if waiting < 0 {
		waiting = 0
	}
	waiting += scheduled

	return &Stats{
		Waiting:   waiting,
		Active:    active,
		Completed: completed,
		Failed:    failed,
	}, nil
}

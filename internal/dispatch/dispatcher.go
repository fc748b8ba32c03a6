package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/leadflow/campaign-gateway/internal/config"
	"github.com/leadflow/campaign-gateway/internal/queue"
	"github.com/leadflow/campaign-gateway/pkg/logger"
	"github.com/leadflow/campaign-gateway/pkg/redis"
	"github.com/leadflow/campaign-gateway/pkg/worker"
)

const ProcessingTimeout = time.Second * 15
const HealthInterval = time.Second * 30
const ShutdownTimeout = time.Minute
const DefaultSweepInterval = time.Second * 30

// CampaignScheduler starts campaigns whose scheduled time has arrived.
// Satisfied by the campaign service.
type CampaignScheduler interface {
	StartDueScheduled(ctx context.Context, now time.Time) int
}

// Dispatcher consumes the dispatch queues and pushes jobs through a worker
// pool. It also sweeps SCHEDULED campaigns so timed starts fire without an
// API call.
type Dispatcher struct {
	adapter   redis.RedisAdapter
	queues    []*queue.Queue
	processor *JobProcessor
	scheduler CampaignScheduler
	metrics   *ServiceMetrics
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	worker    *worker.WorkerManager
}

func NewDispatcher(adapter redis.RedisAdapter, processor *JobProcessor, scheduler CampaignScheduler) (*Dispatcher, error) {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		adapter:   adapter,
		queues:    make([]*queue.Queue, 0),
		processor: processor,
		scheduler: scheduler,
		metrics:   NewServiceMetrics(),
		ctx:       ctx,
		cancel:    cancel,
		worker:    worker.NewWorkerManager(10_000, config.Get().WorkerCount, nil),
	}
	return d, nil
}

func (d *Dispatcher) Start() error {
	logger.Info("Starting dispatcher...")

	d.worker.SetWorker(d.workerHandler)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.worker.Start(); err != nil {
			logger.Error("Worker manager stopped", "error", err)
		}
	}()

	cfg := config.Get()

	// The campaign fan-out queue gets multiple consumer instances; direct
	// sends and imports share one.
	for i := 0; i < cfg.QueueConsumers; i++ {
		if err := d.startConsumer(cfg.QueueName, fmt.Sprintf("%s-instance-%d", cfg.QueueConsumerName, i)); err != nil {
			return err
		}
	}
	if err := d.startConsumer(cfg.DirectQueueName, cfg.QueueConsumerName+"-direct"); err != nil {
		return err
	}

	d.wg.Add(3)
	go d.metricsReporter()
	go d.healthChecker()
	go d.scheduleSweeper()

	logger.Info("Dispatcher started", "consumers", len(d.queues), "workers", cfg.WorkerCount)
	return nil
}

func (d *Dispatcher) startConsumer(queueName, consumerName string) error {
	cfg := config.Get()

	q, err := queue.New(d.adapter, queue.Config{
		Name:              queueName,
		ConsumerGroup:     cfg.QueueConsumerGroup,
		ConsumerName:      consumerName,
		VisibilityTimeout: cfg.QueueVisibilityTimeout,
		PollInterval:      cfg.QueuePollInterval,
		BatchSize:         cfg.QueueBatchSize,
		MaxLen:            cfg.QueueMaxLen,
	})
	if err != nil {
		return fmt.Errorf("failed to create queue %s: %w", queueName, err)
	}

	q.OnFailure(d.processor.HandleFailure)

	if err := q.Consume(d.jobHandler); err != nil {
		return fmt.Errorf("failed to start consumer %s: %w", consumerName, err)
	}

	d.queues = append(d.queues, q)
	logger.Info("Started consumer", "queue", queueName, "consumer", consumerName)
	return nil
}

// scheduleSweeper promotes due SCHEDULED campaigns into RUNNING.
func (d *Dispatcher) scheduleSweeper() {
	defer d.wg.Done()

	interval := config.Get().ScheduleSweepInterval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if d.scheduler == nil {
				continue
			}
			if started := d.scheduler.StartDueScheduled(d.ctx, time.Now()); started > 0 {
				logger.Info("Started scheduled campaigns", "count", started)
			}
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) metricsReporter() {
	defer d.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.reportMetrics()
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) reportMetrics() {
	stats := d.metrics.GetStats()

	logger.Info("Dispatcher metrics",
		"total_processed", stats["total_processed"],
		"total_failed", stats["total_failed"],
		"rate_per_second", stats["rate_per_second"],
		"avg_duration_ms", stats["avg_duration_ms"],
		"uptime_seconds", stats["uptime_seconds"])

	for _, q := range d.queues {
		if qStats, err := q.GetStats(); err == nil {
			logger.Info("Queue stats", "queue", q.Name(),
				"waiting", qStats.Waiting, "active", qStats.Active,
				"completed", qStats.Completed, "failed", qStats.Failed)
		}
	}
}

func (d *Dispatcher) healthChecker() {
	defer d.wg.Done()

	ticker := time.NewTicker(HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.performHealthCheck()
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) performHealthCheck() {
	if err := d.adapter.Client().Ping(context.Background()).Err(); err != nil {
		logger.Error("HEALTH CHECK FAILED: Redis connection error", "error", err)
		return
	}

	for _, q := range d.queues {
		stats, err := q.GetStats()
		if err != nil {
			logger.Warn("HEALTH CHECK WARNING: Queue stats unavailable", "queue", q.Name(), "error", err)
			continue
		}

		if stats.Waiting > 10000 {
			logger.Warn("HEALTH CHECK WARNING: Queue has high lag", "queue", q.Name(), "waiting", stats.Waiting)
		}
	}

	logger.Info("HEALTH CHECK: OK - Service healthy")
}

// Stop gracefully stops the dispatcher.
func (d *Dispatcher) Stop() {
	logger.Info("Shutting down dispatcher...")

	d.cancel()

	timeout := ShutdownTimeout
	stopChan := make(chan bool, len(d.queues))

	for _, q := range d.queues {
		go func(q *queue.Queue) {
			if err := q.Stop(timeout); err != nil {
				logger.Error("Error stopping queue", "queue", q.Name(), "error", err)
			}
			stopChan <- true
		}(q)
	}

	for range d.queues {
		select {
		case <-stopChan:
		case <-time.After(timeout + 5*time.Second):
			logger.Warn("Timeout waiting for queues to stop")
		}
	}

	d.worker.Exit()
	d.wg.Wait()
	d.reportMetrics()

	logger.Info("Dispatcher stopped")
}

type jobResult struct {
	job        *queue.Job
	resultChan chan error
	ctx        context.Context
}

// jobHandler hands queue jobs to the worker pool and waits for the outcome,
// so the queue's retry accounting stays accurate.
func (d *Dispatcher) jobHandler(ctx context.Context, job *queue.Job) error {
	resultChan := make(chan error, 1)

	jobCtx, cancel := context.WithTimeout(ctx, ProcessingTimeout+time.Second)
	defer cancel()

	d.worker.Enqueue(&jobResult{
		job:        job,
		resultChan: resultChan,
		ctx:        jobCtx,
	})

	select {
	case err := <-resultChan:
		return err
	case <-jobCtx.Done():
		return fmt.Errorf("timeout waiting for worker to process job: %w", jobCtx.Err())
	}
}

func (d *Dispatcher) workerHandler(workerIndex int, job interface{}) {
	jr, ok := job.(*jobResult)
	if !ok {
		logger.Error("Invalid job type in worker", "worker", workerIndex)
		return
	}

	select {
	case <-jr.ctx.Done():
		logger.Warn("Job context cancelled before processing started", "worker", workerIndex)
		return
	default:
	}

	start := time.Now()
	resultErr := d.processor.Process(jr.ctx, jr.job)
	if resultErr != nil {
		d.metrics.RecordFailure()
		logger.Error("Failed to process job", "worker", workerIndex, "kind", jr.job.Kind, "error", resultErr)
	} else {
		d.metrics.RecordSuccess(time.Since(start))
	}

	select {
	case jr.resultChan <- resultErr:
	case <-jr.ctx.Done():
		logger.Warn("Context cancelled while sending result, job handler timed out", "worker", workerIndex)
	}
}

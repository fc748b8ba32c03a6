package queue

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/leadflow/campaign-gateway/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	// Use unique connection name per test to avoid global adapter caching issues
	connName := t.Name() + "-" + mr.Addr()
	adapter, err := redis.NewRedisAdapter(connName, "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	return mr, adapter
}

func testConfig(name string) Config {
	return Config{
		Name:              name,
		ConsumerGroup:     "test-group",
		ConsumerName:      "test-consumer",
		VisibilityTimeout: 5 * time.Second,
		PollInterval:      50 * time.Millisecond,
		BatchSize:         10,
		MaxLen:            1000,
		DefaultOptions: Options{
			Attempts:  3,
			Backoff:   Backoff{Type: BackoffFixed, Delay: 50 * time.Millisecond},
			Retention: 100,
		},
	}
}

func TestBackoff_NextDelay(t *testing.T) {
	fixed := Backoff{Type: BackoffFixed, Delay: 2 * time.Second}
	assert.Equal(t, 2*time.Second, fixed.NextDelay(1))
	assert.Equal(t, 2*time.Second, fixed.NextDelay(3))

	exp := Backoff{Type: BackoffExponential, Delay: 2 * time.Second}
	assert.Equal(t, 2*time.Second, exp.NextDelay(1))
	assert.Equal(t, 4*time.Second, exp.NextDelay(2))
	assert.Equal(t, 8*time.Second, exp.NextDelay(3))

	none := Backoff{}
	assert.Equal(t, time.Duration(0), none.NextDelay(2))
}

func TestQueue_EnqueueAndConsume(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	defer mr.Close()

	q, err := New(adapter, testConfig("test:queue"))
	require.NoError(t, err)
	defer q.Stop(time.Second)

	ctx := context.Background()
	_, err = q.Enqueue(ctx, "test_job", map[string]string{"key": "value"}, Options{})
	require.NoError(t, err)

	received := make(chan *Job, 1)
	err = q.Consume(func(ctx context.Context, job *Job) error {
		received <- job
		return nil
	})
	require.NoError(t, err)

	select {
	case job := <-received:
		assert.Equal(t, "test_job", job.Kind)
		assert.NotEmpty(t, job.ID)
		var data map[string]string
		require.NoError(t, json.Unmarshal(job.Data, &data))
		assert.Equal(t, "value", data["key"])
	case <-time.After(2 * time.Second):
		t.Fatal("job not received")
	}
}

func TestQueue_DelayedJobNotVisibleEarly(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	defer mr.Close()

	q, err := New(adapter, testConfig("test:delayed:queue"))
	require.NoError(t, err)
	defer q.Stop(time.Second)

	ctx := context.Background()
	_, err = q.Enqueue(ctx, "delayed_job", map[string]string{"k": "v"}, Options{
		Delay: 300 * time.Millisecond,
	})
	require.NoError(t, err)

	var handled atomic.Int32
	received := make(chan struct{}, 1)
	err = q.Consume(func(ctx context.Context, job *Job) error {
		handled.Add(1)
		received <- struct{}{}
		return nil
	})
	require.NoError(t, err)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(0), handled.Load(), "delayed job ran before its ready time")

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("delayed job was never promoted")
	}
}

func TestQueue_ScheduleAt(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	defer mr.Close()

	q, err := New(adapter, testConfig("test:scheduleat:queue"))
	require.NoError(t, err)
	defer q.Stop(time.Second)

	ctx := context.Background()

	// A past sendAt enqueues immediately.
	_, err = q.ScheduleAt(ctx, "past_job", map[string]string{}, time.Now().Add(-time.Minute), Options{})
	require.NoError(t, err)

	received := make(chan struct{}, 1)
	err = q.Consume(func(ctx context.Context, job *Job) error {
		received <- struct{}{}
		return nil
	})
	require.NoError(t, err)

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("past-dated job not delivered immediately")
	}
}

func TestQueue_RetryThenSucceed(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	defer mr.Close()

	q, err := New(adapter, testConfig("test:retry:queue"))
	require.NoError(t, err)
	defer q.Stop(time.Second)

	ctx := context.Background()
	_, err = q.Enqueue(ctx, "flaky_job", map[string]string{}, Options{
		Attempts: 3,
		Backoff:  Backoff{Type: BackoffFixed, Delay: 50 * time.Millisecond},
	})
	require.NoError(t, err)

	var attempts atomic.Int32
	done := make(chan struct{}, 1)
	err = q.Consume(func(ctx context.Context, job *Job) error {
		n := attempts.Add(1)
		if n < 3 {
			return assert.AnError
		}
		done <- struct{}{}
		return nil
	})
	require.NoError(t, err)

	select {
	case <-done:
		assert.Equal(t, int32(3), attempts.Load())
	case <-time.After(5 * time.Second):
		t.Fatalf("job never succeeded, attempts=%d", attempts.Load())
	}

	stats, err := q.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Completed)
	assert.Equal(t, int64(0), stats.Failed)
}

func TestQueue_ExhaustedAttemptsInvokeFailureHandler(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	defer mr.Close()

	q, err := New(adapter, testConfig("test:fail:queue"))
	require.NoError(t, err)
	defer q.Stop(time.Second)

	ctx := context.Background()
	jobID, err := q.Enqueue(ctx, "broken_job", map[string]string{}, Options{
		Attempts: 2,
		Backoff:  Backoff{Type: BackoffFixed, Delay: 50 * time.Millisecond},
	})
	require.NoError(t, err)

	failed := make(chan *Job, 1)
	q.OnFailure(func(ctx context.Context, job *Job, err error) {
		failed <- job
	})

	var attempts atomic.Int32
	err = q.Consume(func(ctx context.Context, job *Job) error {
		attempts.Add(1)
		return assert.AnError
	})
	require.NoError(t, err)

	select {
	case job := <-failed:
		assert.Equal(t, jobID, job.ID)
		assert.Equal(t, int32(2), attempts.Load())
	case <-time.After(5 * time.Second):
		t.Fatalf("failure handler not invoked, attempts=%d", attempts.Load())
	}

	stats, err := q.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Failed)
}

func TestQueue_GetStats(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	defer mr.Close()

	q, err := New(adapter, testConfig("test:stats:queue"))
	require.NoError(t, err)
	defer q.Stop(time.Second)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := q.Enqueue(ctx, "stat_job", map[string]int{"count": i}, Options{})
		require.NoError(t, err)
	}
	_, err = q.Enqueue(ctx, "stat_job", map[string]int{"count": 5}, Options{Delay: time.Hour})
	require.NoError(t, err)

	stats, err := q.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(6), stats.Waiting)
	assert.Equal(t, int64(0), stats.Active)
}

func TestQueue_CompletedJobsLeaveTheStream(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	defer mr.Close()

	q, err := New(adapter, testConfig("test:drain:queue"))
	require.NoError(t, err)
	defer q.Stop(time.Second)

	ctx := context.Background()
	_, err = q.Enqueue(ctx, "drain_job", map[string]string{}, Options{})
	require.NoError(t, err)

	err = q.Consume(func(ctx context.Context, job *Job) error {
		return nil
	})
	require.NoError(t, err)

	// Once acked the entry is deleted, so an empty queue reports zero waiting.
	require.Eventually(t, func() bool {
		stats, err := q.GetStats()
		return err == nil && stats.Completed == 1 && stats.Waiting == 0
	}, 2*time.Second, 20*time.Millisecond)

	length, err := adapter.XLen("test:drain:queue")
	require.NoError(t, err)
	assert.Equal(t, int64(0), length)
}

func TestQueue_ScheduledPromotionIsExclusive(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	defer mr.Close()

	cfg := testConfig("test:promote:queue")
	q1, err := New(adapter, cfg)
	require.NoError(t, err)

	cfg.ConsumerName = "test-consumer-2"
	q2, err := New(adapter, cfg)
	require.NoError(t, err)

	// One due job in the scheduled set, two consumers promoting at once.
	require.NoError(t, q1.schedule(&Job{ID: "only-once", Kind: "promoted_job", MaxAttempts: 3}, time.Now().Add(-time.Second)))

	start := make(chan struct{})
	done := make(chan struct{}, 2)
	for _, q := range []*Queue{q1, q2} {
		go func(q *Queue) {
			<-start
			q.promoteScheduled()
			done <- struct{}{}
		}(q)
	}
	close(start)
	<-done
	<-done

	length, err := adapter.XLen("test:promote:queue")
	require.NoError(t, err)
	assert.Equal(t, int64(1), length, "the same scheduled job was promoted twice")

	remaining, err := adapter.ZCard("test:promote:queue:scheduled")
	require.NoError(t, err)
	assert.Equal(t, int64(0), remaining)
}

func TestQueue_ConcurrentEnqueue(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	defer mr.Close()

	q, err := New(adapter, testConfig("test:concurrent:queue"))
	require.NoError(t, err)
	defer q.Stop(time.Second)

	ctx := context.Background()
	numGoroutines := 10
	done := make(chan bool, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			_, err := q.Enqueue(ctx, "concurrent_job", map[string]int{"id": id}, Options{})
			assert.NoError(t, err)
			done <- true
		}(i)
	}

	for i := 0; i < numGoroutines; i++ {
		<-done
	}

	stats, err := q.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(numGoroutines), stats.Waiting)
}

func TestQueue_Stop(t *testing.T) {
	mr, adapter := setupTestRedis(t)
	defer mr.Close()

	q, err := New(adapter, testConfig("test:stop:queue"))
	require.NoError(t, err)

	err = q.Consume(func(ctx context.Context, job *Job) error {
		time.Sleep(100 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)

	err = q.Stop(2 * time.Second)
	assert.NoError(t, err)
}

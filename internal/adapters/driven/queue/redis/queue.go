package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
	"github.com/custodia-labs/sercha-sync/internal/core/ports/driven"
)

const (
	taskStream     = "sercha-sync:tasks"
	taskGroup      = "sercha-sync:workers"
	scheduledTasks = "sercha-sync:tasks:scheduled"
	taskKeyPrefix  = "sercha-sync:task:"

	consumerPrefix = "worker-"

	// taskTTL keeps finished tasks queryable for a day
	taskTTL = 24 * time.Hour

	// claimTimeout is how long a delivered task may sit unacknowledged
	// before another worker takes it over
	claimTimeout = 5 * time.Minute
)

// Verify interface compliance
var _ driven.TaskQueue = (*Queue)(nil)

// Queue implements TaskQueue using Redis Streams.
//
// Task bodies live under their own key; the stream only carries ids. Tasks
// waiting for a retry sit in a sorted set scored by their due time and are
// moved onto the stream by Dequeue.
type Queue struct {
	client       *redis.Client
	consumerName string
	now          func() time.Time
}

// NewQueue creates a Redis-backed task queue and its consumer group.
// consumerName should be unique per process; it defaults to a timestamped name.
func NewQueue(ctx context.Context, client *redis.Client, consumerName string) (*Queue, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if consumerName == "" {
		consumerName = fmt.Sprintf("%s%d", consumerPrefix, time.Now().UnixNano())
	}

	err := client.XGroupCreateMkStream(ctx, taskStream, taskGroup, "0").Err()
	if err != nil && !isGroupExistsError(err) {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &Queue{
		client:       client,
		consumerName: consumerName,
		now:          time.Now,
	}, nil
}

// Enqueue stores the task and makes it visible to workers once it is due.
func (q *Queue) Enqueue(ctx context.Context, task *domain.Task) error {
	if task == nil {
		return fmt.Errorf("%w: task is required", domain.ErrInvalidInput)
	}
	if err := task.Validate(); err != nil {
		return err
	}

	pipe := q.client.TxPipeline()
	if err := q.save(ctx, pipe, task); err != nil {
		return err
	}
	if task.ScheduledFor.After(q.now()) {
		pipe.ZAdd(ctx, scheduledTasks, redis.Z{
			Score:  float64(task.ScheduledFor.Unix()),
			Member: task.ID,
		})
	} else {
		pipe.XAdd(ctx, streamEntry(task))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// Dequeue returns the next due task, waiting up to wait for one to arrive.
// A non-positive wait polls once. Returns nil, nil when nothing is due.
func (q *Queue) Dequeue(ctx context.Context, wait time.Duration) (*domain.Task, error) {
	// best effort; a failed promotion is retried on the next call
	_ = q.promoteScheduledTasks(ctx)

	if task, err := q.claimAbandonedTask(ctx); err == nil && task != nil {
		return task, nil
	}

	block := wait
	if wait <= 0 {
		block = -1
	}
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    taskGroup,
		Consumer: q.consumerName,
		Streams:  []string{taskStream, ">"},
		Count:    1,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}

	return q.take(ctx, streams[0].Messages[0])
}

// Ack marks the task completed and removes its stream entry.
func (q *Queue) Ack(ctx context.Context, taskID, runID string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	task.MarkCompleted(runID, q.now())
	return q.finish(ctx, task, false)
}

// Nack schedules another attempt with backoff, or fails the task once its
// attempts are exhausted.
func (q *Queue) Nack(ctx context.Context, taskID, reason string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.CanRetry() {
		task.Retry(reason, q.now())
		return q.finish(ctx, task, true)
	}
	task.MarkFailed(reason, q.now())
	return q.finish(ctx, task, false)
}

// Fail marks the task failed without further attempts.
func (q *Queue) Fail(ctx context.Context, taskID, reason string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	task.MarkFailed(reason, q.now())
	return q.finish(ctx, task, false)
}

// GetTask retrieves a task by ID.
func (q *Queue) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	data, err := q.client.Get(ctx, taskKeyPrefix+taskID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: task %s", domain.ErrNotFound, taskID)
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	var task domain.Task
	if err := json.Unmarshal([]byte(data), &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &task, nil
}

// Ping checks if the queue backend is healthy.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// take loads the task behind a stream message and marks it processing.
// Messages whose task body is gone are acknowledged and skipped.
func (q *Queue) take(ctx context.Context, msg redis.XMessage) (*domain.Task, error) {
	taskID, ok := msg.Values["task_id"].(string)
	if !ok {
		q.drop(ctx, msg.ID)
		return nil, nil
	}
	task, err := q.GetTask(ctx, taskID)
	if errors.Is(err, domain.ErrNotFound) {
		q.drop(ctx, msg.ID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	task.MarkProcessing(q.now())
	pipe := q.client.TxPipeline()
	if err := q.save(ctx, pipe, task); err != nil {
		return nil, err
	}
	pipe.Set(ctx, msgKey(task.ID), msg.ID, taskTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to mark task processing: %w", err)
	}
	return task, nil
}

// finish stores the final state of a delivered task and releases its stream
// entry. reschedule puts the task back into the scheduled set.
func (q *Queue) finish(ctx context.Context, task *domain.Task, reschedule bool) error {
	msgID, err := q.client.Get(ctx, msgKey(task.ID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to get message id: %w", err)
	}

	pipe := q.client.TxPipeline()
	if msgID != "" {
		pipe.XAck(ctx, taskStream, taskGroup, msgID)
		pipe.XDel(ctx, taskStream, msgID)
	}
	if err := q.save(ctx, pipe, task); err != nil {
		return err
	}
	if reschedule {
		pipe.ZAdd(ctx, scheduledTasks, redis.Z{
			Score:  float64(task.ScheduledFor.Unix()),
			Member: task.ID,
		})
	}
	pipe.Del(ctx, msgKey(task.ID))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update task %s: %w", task.ID, err)
	}
	return nil
}

func (q *Queue) save(ctx context.Context, pipe redis.Pipeliner, task *domain.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	pipe.Set(ctx, taskKeyPrefix+task.ID, data, taskTTL)
	return nil
}

func (q *Queue) drop(ctx context.Context, msgID string) {
	q.client.XAck(ctx, taskStream, taskGroup, msgID)
	q.client.XDel(ctx, taskStream, msgID)
}

// promoteScheduledTasks moves due scheduled tasks onto the stream.
func (q *Queue) promoteScheduledTasks(ctx context.Context) error {
	due, err := q.client.ZRangeByScore(ctx, scheduledTasks, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", q.now().Unix()),
	}).Result()
	if err != nil || len(due) == 0 {
		return err
	}

	pipe := q.client.TxPipeline()
	for _, taskID := range due {
		pipe.ZRem(ctx, scheduledTasks, taskID)
		task, err := q.GetTask(ctx, taskID)
		if err != nil {
			continue
		}
		pipe.XAdd(ctx, streamEntry(task))
	}
	_, err = pipe.Exec(ctx)
	return err
}

// claimAbandonedTask takes over a task delivered to a worker that never
// acknowledged it.
func (q *Queue) claimAbandonedTask(ctx context.Context) (*domain.Task, error) {
	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: taskStream,
		Group:  taskGroup,
		Start:  "-",
		End:    "+",
		Count:  10,
		Idle:   claimTimeout,
	}).Result()
	if err != nil {
		return nil, err
	}

	for _, p := range pending {
		claimed, err := q.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   taskStream,
			Group:    taskGroup,
			Consumer: q.consumerName,
			MinIdle:  claimTimeout,
			Messages: []string{p.ID},
		}).Result()
		if err != nil || len(claimed) == 0 {
			continue
		}
		task, err := q.take(ctx, claimed[0])
		if err != nil || task == nil {
			continue
		}
		return task, nil
	}
	return nil, nil
}

func streamEntry(task *domain.Task) *redis.XAddArgs {
	return &redis.XAddArgs{
		Stream: taskStream,
		Values: map[string]interface{}{
			"task_id":   task.ID,
			"type":      string(task.Type),
			"source_id": task.SourceID,
		},
	}
}

func msgKey(taskID string) string {
	return taskKeyPrefix + taskID + ":msg"
}

func isGroupExistsError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

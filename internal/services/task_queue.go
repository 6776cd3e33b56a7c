package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/longtails/freemasons/internal/config"
	"github.com/longtails/freemasons/pkg/logger"
)

const (
	TaskTypeProjectSync = "project:sync"
	TaskTypeMemberSync  = "member:sync"

	syncQueueName      = "default"
	defaultConcurrency = 4
)

// SyncTask asks a worker to sync one project or member.
type SyncTask struct {
	Kind     string `json:"kind"` // project, member
	EntityID uint   `json:"entity_id"`
	Reason   string `json:"reason,omitempty"` // created, scheduled, manual
}

func (t *SyncTask) taskType() (string, error) {
	switch t.Kind {
	case SyncKindProject:
		return TaskTypeProjectSync, nil
	case SyncKindMember:
		return TaskTypeMemberSync, nil
	}
	return "", fmt.Errorf("unknown sync kind %q", t.Kind)
}

// TaskQueue defines the interface for sync task processing
type TaskQueue interface {
	// Enqueue adds a task to the queue
	Enqueue(task *SyncTask) error
	// IsAsync returns true if queue processes tasks asynchronously
	IsAsync() bool
	// Close gracefully shuts down the queue
	Close() error
}

// Global task queue instance
var (
	globalTaskQueue TaskQueue
	taskQueueOnce   sync.Once
)

// InitTaskQueue initializes the global task queue based on config
func InitTaskQueue(cfg *config.Config) TaskQueue {
	taskQueueOnce.Do(func() {
		if cfg.Redis.Enabled {
			queue, err := NewAsyncQueue(&cfg.Redis)
			if err != nil {
				logger.Infof("[TaskQueue] Redis unavailable, falling back to sync mode: %v", err)
				globalTaskQueue = NewSyncQueue(cfg.Sync.Concurrency)
			} else {
				logger.Infof("[TaskQueue] Async queue initialized with Redis at %s", cfg.Redis.Addr)
				globalTaskQueue = queue
			}
		} else {
			logger.Infof("[TaskQueue] Sync queue initialized (Redis disabled)")
			globalTaskQueue = NewSyncQueue(cfg.Sync.Concurrency)
		}
	})
	return globalTaskQueue
}

// GetTaskQueue returns the global task queue instance
func GetTaskQueue() TaskQueue {
	return globalTaskQueue
}

// AsyncQueue implements TaskQueue using asynq (Redis-based)
type AsyncQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

func redisOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// NewAsyncQueue creates a new Redis-based async queue
func NewAsyncQueue(cfg *config.RedisConfig) (*AsyncQueue, error) {
	opt := redisOpt(cfg)
	client := asynq.NewClient(opt)

	// Test connection by pinging Redis
	inspector := asynq.NewInspector(opt)
	if _, err := inspector.Queues(); err != nil {
		inspector.Close()
		client.Close()
		return nil, err
	}

	return &AsyncQueue{client: client, inspector: inspector}, nil
}

// Enqueue adds a sync task to the async queue. The task id is "kind:id", so
// a task for an entity that is already waiting or running is dropped. An
// archived or completed task with that id is deleted first, otherwise one
// exhausted retry would block the entity until asynq expires it.
func (q *AsyncQueue) Enqueue(task *SyncTask) error {
	typ, err := task.taskType()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}

	id := fmt.Sprintf("%s:%d", task.Kind, task.EntityID)
	t := asynq.NewTask(typ, payload)
	opts := []asynq.Option{
		asynq.Queue(syncQueueName),
		asynq.MaxRetry(3),
		asynq.TaskID(id),
		asynq.Retention(time.Minute),
	}

	info, err := q.client.Enqueue(t, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		var cleared bool
		cleared, err = q.clearFinished(id)
		if err != nil {
			return err
		}
		if !cleared {
			logger.Debug().Str("task_id", id).Msg("sync already queued")
			return nil
		}
		info, err = q.client.Enqueue(t, opts...)
	}
	if err != nil {
		return err
	}

	logger.Infof("[AsyncQueue] Task enqueued: id=%s, queue=%s, type=%s", info.ID, info.Queue, typ)
	return nil
}

// clearFinished deletes the task with id if it is archived or completed and
// reports whether the id is free again.
func (q *AsyncQueue) clearFinished(id string) (bool, error) {
	existing, err := q.inspector.GetTaskInfo(syncQueueName, id)
	if errors.Is(err, asynq.ErrTaskNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("inspect task %s: %w", id, err)
	}
	if existing.State != asynq.TaskStateArchived && existing.State != asynq.TaskStateCompleted {
		return false, nil
	}

	if err := q.inspector.DeleteTask(syncQueueName, id); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
		return false, fmt.Errorf("delete finished task %s: %w", id, err)
	}
	logger.Infof("[AsyncQueue] Cleared %s task %s for re-enqueue", existing.State, id)
	return true, nil
}

// IsAsync returns true for async queue
func (q *AsyncQueue) IsAsync() bool {
	return true
}

// Close closes the async queue client
func (q *AsyncQueue) Close() error {
	q.inspector.Close()
	return q.client.Close()
}

// SyncQueue implements TaskQueue in-process (no Redis). Enqueue never blocks
// a request; at most concurrency tasks run at once and the rest wait.
type SyncQueue struct {
	processor func(context.Context, *SyncTask) error
	slots     chan struct{}
	wg        sync.WaitGroup
}

// NewSyncQueue creates an in-process queue running up to concurrency tasks
func NewSyncQueue(concurrency int) *SyncQueue {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &SyncQueue{slots: make(chan struct{}, concurrency)}
}

// SetProcessor sets the function that runs each task
func (q *SyncQueue) SetProcessor(processor func(context.Context, *SyncTask) error) {
	q.processor = processor
}

// Enqueue schedules the task; it runs once a slot frees up
func (q *SyncQueue) Enqueue(task *SyncTask) error {
	if _, err := task.taskType(); err != nil {
		return err
	}
	if q.processor == nil {
		logger.Infof("[SyncQueue] Warning: no processor set, task will be dropped")
		return nil
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.slots <- struct{}{}
		defer func() { <-q.slots }()
		if err := q.processor(context.Background(), task); err != nil {
			logger.Infof("[SyncQueue] Task processing failed: %v", err)
		}
	}()

	return nil
}

// IsAsync returns false for sync queue
func (q *SyncQueue) IsAsync() bool {
	return false
}

// Close waits for running tasks to finish
func (q *SyncQueue) Close() error {
	q.wg.Wait()
	return nil
}

package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskType represents different types of async tasks
type TaskType string

// TaskStatus represents the current status of a task
type TaskStatus string

// TaskExecutor defines the function signature for task execution
type TaskExecutor func(t *Task) error

const (
	TaskStatusPending  TaskStatus = "pending"
	TaskStatusRunning  TaskStatus = "running"
	TaskStatusComplete TaskStatus = "complete"
	TaskStatusFailed   TaskStatus = "failed"
)

// TaskRegistry manages task type to executor mappings
type TaskRegistry struct {
	executors map[TaskType]TaskExecutor
	mu        sync.RWMutex
}

// Global task registry instance
var taskRegistry = &TaskRegistry{
	executors: make(map[TaskType]TaskExecutor),
}

// RegisterTaskExecutor registers a task executor for a specific task type
func RegisterTaskExecutor(taskType TaskType, executor TaskExecutor) {
	taskRegistry.mu.Lock()
	defer taskRegistry.mu.Unlock()
	taskRegistry.executors[taskType] = executor
}

// GetTaskExecutor retrieves the executor for a specific task type
func GetTaskExecutor(taskType TaskType) (TaskExecutor, bool) {
	taskRegistry.mu.RLock()
	defer taskRegistry.mu.RUnlock()
	executor, exists := taskRegistry.executors[taskType]
	return executor, exists
}

// Task represents an async task with its properties and callback
type Task struct {
	ID        string
	Type      TaskType
	Status    TaskStatus
	Params    interface{}
	Error     error
	Callback  TaskCallback
	CreatedAt time.Time
	Context   context.Context
}

func NewTask(ctx context.Context, taskType TaskType, params interface{}) *Task {
	return &Task{
		ID:        uuid.New().String(),
		Type:      taskType,
		Status:    TaskStatusPending,
		Params:    params,
		CreatedAt: time.Now(),
		Context:   ctx,
	}
}

// Execute executes the task and calls appropriate callbacks
func (t *Task) Execute() {
	defer func() {
		if r := recover(); r != nil {
			t.Status = TaskStatusFailed
			t.Error = fmt.Errorf("task panicked: %v", r)
			if t.Callback != nil {
				t.Callback.OnError(t.Error)
			}
		}
	}()

	select {
	case <-t.Context.Done():
		// 连接已断开，任务取消
		return
	default:
	}

	t.Status = TaskStatusRunning

	executor, exists := GetTaskExecutor(t.Type)
	if !exists {
		t.Error = fmt.Errorf("no executor registered for task type: %v", t.Type)
		t.Status = TaskStatusFailed
	} else {
		t.Error = executor(t)
	}

	if t.Error != nil {
		t.Status = TaskStatusFailed
		if t.Callback != nil {
			t.Callback.OnError(t.Error)
		}
	} else {
		t.Status = TaskStatusComplete
		if t.Callback != nil {
			t.Callback.OnComplete(t)
		}
	}
}

// TaskCallback defines the interface for task completion handling
type TaskCallback interface {
	OnComplete(t *Task)
	OnError(err error)
}

// WorkerStatus represents the current status of a worker
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusBusy    WorkerStatus = "busy"
	WorkerStatusStopped WorkerStatus = "stopped"
)

// ResourceConfig defines resource limits for task execution
type ResourceConfig struct {
	MaxWorkers int
	QueueSize  int
}

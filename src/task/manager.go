package task

import "fmt"

// TaskManager manages async tasks and their execution
type TaskManager struct {
	workerPool *WorkerPool
}

// NewTaskManager creates a new TaskManager instance
func NewTaskManager(config ResourceConfig) *TaskManager {
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = 4
	}
	if config.QueueSize <= 0 {
		config.QueueSize = config.MaxWorkers * 2
	}

	return &TaskManager{
		workerPool: NewWorkerPool(config),
	}
}

// Start starts the task manager and its components
func (tm *TaskManager) Start() {
	tm.workerPool.Start()
}

// Stop stops the task manager and its components
func (tm *TaskManager) Stop() {
	tm.workerPool.Stop()
}

// SubmitTask submits a task for execution
func (tm *TaskManager) SubmitTask(task *Task) error {
	// 检查任务类型是否已注册
	if _, exists := GetTaskExecutor(task.Type); !exists {
		return fmt.Errorf("task type %v is not registered", task.Type)
	}

	return tm.workerPool.Submit(task)
}

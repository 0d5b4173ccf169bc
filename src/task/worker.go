package task

import (
	"fmt"
	"sync"
)

// WorkerPool manages a pool of workers for executing tasks
type WorkerPool struct {
	config      ResourceConfig
	workers     []*Worker
	taskQueue   chan *Task
	stopChan    chan struct{}
	idleWorkers chan *Worker
	mu          sync.RWMutex
}

// Worker represents a task execution worker
type Worker struct {
	id       string
	status   WorkerStatus
	taskChan chan *Task
	stopChan chan struct{}
	pool     *WorkerPool
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(config ResourceConfig) *WorkerPool {
	wp := &WorkerPool{
		config:      config,
		taskQueue:   make(chan *Task, config.QueueSize),
		stopChan:    make(chan struct{}),
		idleWorkers: make(chan *Worker, config.MaxWorkers),
	}

	wp.initWorkers()
	return wp
}

// initWorkers initializes the worker pool
func (wp *WorkerPool) initWorkers() {
	wp.workers = make([]*Worker, wp.config.MaxWorkers)
	for i := 0; i < wp.config.MaxWorkers; i++ {
		worker := newWorker(fmt.Sprintf("worker-%d", i), wp)
		wp.workers[i] = worker
		// 初始化时所有工作者都是空闲的
		wp.idleWorkers <- worker
	}
}

// Start starts the worker pool
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	for _, worker := range wp.workers {
		go worker.start()
	}

	go wp.distributeItems()
}

// Stop stops the worker pool
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	close(wp.stopChan)
	for _, worker := range wp.workers {
		worker.stop()
	}
}

// Submit submits a task to the worker pool
func (wp *WorkerPool) Submit(task *Task) error {
	select {
	case wp.taskQueue <- task:
		return nil
	default:
		return fmt.Errorf("task queue is full")
	}
}

// distributeItems distributes tasks to idle workers
func (wp *WorkerPool) distributeItems() {
	for {
		select {
		case <-wp.stopChan:
			return
		case task := <-wp.taskQueue:
			select {
			case worker := <-wp.idleWorkers:
				worker.assignTask(task)
			case <-wp.stopChan:
				return
			}
		}
	}
}

// workerFinished 当工作者完成任务时调用
func (wp *WorkerPool) workerFinished(worker *Worker) {
	select {
	case wp.idleWorkers <- worker:
	default:
		// 这种情况不应该发生，但为了安全起见
		fmt.Printf("Warning: Failed to return worker %s to idle pool\n", worker.id)
	}
}

// newWorker creates a new worker
func newWorker(id string, pool *WorkerPool) *Worker {
	return &Worker{
		id:       id,
		status:   WorkerStatusIdle,
		taskChan: make(chan *Task, 1),
		stopChan: make(chan struct{}),
		pool:     pool,
	}
}

// start starts the worker
func (w *Worker) start() {
	for {
		select {
		case <-w.stopChan:
			return
		case task := <-w.taskChan:
			w.executeTask(task)
		}
	}
}

// executeTask executes a task
func (w *Worker) executeTask(task *Task) {
	w.status = WorkerStatusBusy

	defer func() {
		w.status = WorkerStatusIdle
		w.pool.workerFinished(w)
	}()

	task.Execute()
}

// stop stops the worker
func (w *Worker) stop() {
	w.status = WorkerStatusStopped
	close(w.stopChan)
}

// assignTask assigns a task to the worker
func (w *Worker) assignTask(task *Task) {
	select {
	case w.taskChan <- task:
	default:
		// taskChan 有缓冲，这种情况不应该发生
		fmt.Printf("Warning: Failed to assign task to worker %s\n", w.id)
	}
}

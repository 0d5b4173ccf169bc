package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitAndExecute(t *testing.T) {
	var executed int32
	RegisterTaskExecutor("test_execute", func(task *Task) error {
		atomic.AddInt32(&executed, 1)
		return nil
	})

	tm := NewTaskManager(ResourceConfig{MaxWorkers: 2})
	tm.Start()
	defer tm.Stop()

	for i := 0; i < 3; i++ {
		task := NewTask(context.Background(), "test_execute", nil)
		if err := tm.SubmitTask(task); err != nil {
			t.Fatalf("SubmitTask() error = %v", err)
		}
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&executed) == 3 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("执行次数 = %d, want 3", atomic.LoadInt32(&executed))
}

func TestSubmitUnregisteredType(t *testing.T) {
	tm := NewTaskManager(ResourceConfig{MaxWorkers: 1})
	tm.Start()
	defer tm.Stop()

	task := NewTask(context.Background(), "never_registered", nil)
	if err := tm.SubmitTask(task); err == nil {
		t.Error("未注册的任务类型应返回错误")
	}
}

func TestCanceledTaskSkipped(t *testing.T) {
	var executed int32
	RegisterTaskExecutor("test_canceled", func(task *Task) error {
		atomic.AddInt32(&executed, 1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	task := NewTask(ctx, "test_canceled", nil)
	task.Execute()

	if atomic.LoadInt32(&executed) != 0 {
		t.Error("已取消的任务不应执行")
	}
}

func TestTaskPanicRecovered(t *testing.T) {
	RegisterTaskExecutor("test_panic", func(task *Task) error {
		panic("boom")
	})

	task := NewTask(context.Background(), "test_panic", nil)
	task.Execute()

	if task.Status != TaskStatusFailed {
		t.Errorf("Status = %v, want %v", task.Status, TaskStatusFailed)
	}
	if task.Error == nil {
		t.Error("panic后任务应带错误")
	}
}

package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrQueueClosed = errors.New("queue is closed")
)

// Task is one URL waiting for a worker. Seq is its position in the
// submitted batch.
type Task struct {
	ID         string
	URL        string
	Seq        int
	EnqueuedAt time.Time
}

func NewTask(url string, seq int) *Task {
	return &Task{
		ID:         uuid.New().String(),
		URL:        url,
		Seq:        seq,
		EnqueuedAt: time.Now(),
	}
}

type Queue interface {
	Push(task *Task) error
	Pop(ctx context.Context) (*Task, error)
	Size() int
	Close() error
}

// InMemoryQueue is an unbounded FIFO. Pop blocks until a task is queued, the
// queue is closed and drained, or ctx is done.
type InMemoryQueue struct {
	mu     sync.Mutex
	tasks  []*Task
	closed bool
	ready  chan struct{}
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		tasks: make([]*Task, 0),
		ready: make(chan struct{}),
	}
}

func (q *InMemoryQueue) Push(task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.tasks = append(q.tasks, task)
	q.broadcast()

	return nil
}

// PushAll queues tasks in order.
func (q *InMemoryQueue) PushAll(tasks []*Task) error {
	for _, task := range tasks {
		if err := q.Push(task); err != nil {
			return err
		}
	}
	return nil
}

func (q *InMemoryQueue) Pop(ctx context.Context) (*Task, error) {
	for {
		q.mu.Lock()
		if len(q.tasks) > 0 {
			task := q.tasks[0]
			q.tasks[0] = nil
			q.tasks = q.tasks[1:]
			q.mu.Unlock()
			return task, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}
		ready := q.ready
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ready:
		}
	}
}

func (q *InMemoryQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Close stops new pushes. Queued tasks can still be popped.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		q.broadcast()
	}

	return nil
}

// broadcast wakes every waiting Pop. Callers hold q.mu.
func (q *InMemoryQueue) broadcast() {
	close(q.ready)
	q.ready = make(chan struct{})
}
